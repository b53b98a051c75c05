package enforce

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wardenhq/warden/platform"
)

// MemActionStore is an in-memory ActionStore and ContactSource for tests.
type MemActionStore struct {
	lk      sync.Mutex
	nextID  uint
	Records []*ActionRecord
	// Members maps account id to memberships.
	Members map[string][]Membership
	// Contacts marks accounts with an open private channel.
	Contacts map[string]bool
}

var (
	_ ActionStore   = (*MemActionStore)(nil)
	_ ContactSource = (*MemActionStore)(nil)
)

func NewMemActionStore() *MemActionStore {
	return &MemActionStore{
		Members:  make(map[string][]Membership),
		Contacts: make(map[string]bool),
	}
}

func (m *MemActionStore) Memberships(ctx context.Context, accountID string) ([]Membership, error) {
	m.lk.Lock()
	defer m.lk.Unlock()
	return m.Members[accountID], nil
}

func (m *MemActionStore) IsProtected(ctx context.Context, accountID string) (bool, error) {
	m.lk.Lock()
	defer m.lk.Unlock()
	for _, mem := range m.Members[accountID] {
		if mem.Admin {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemActionStore) InsertAction(ctx context.Context, rec *ActionRecord) error {
	m.lk.Lock()
	defer m.lk.Unlock()
	now := time.Now().UTC()
	if rec.Kind == KindBan || rec.Kind == KindTrust {
		// supersede the prior active record of the same kind
		for _, prev := range m.Records {
			if prev.AccountID == rec.AccountID && prev.Kind == rec.Kind && prev.State(now) == StateActive {
				t := now
				prev.ReversedAt = &t
			}
		}
	}
	m.nextID++
	rec.ID = m.nextID
	m.Records = append(m.Records, rec)
	return nil
}

func (m *MemActionStore) ActiveAction(ctx context.Context, accountID string, kind ActionKind) (*ActionRecord, error) {
	m.lk.Lock()
	defer m.lk.Unlock()
	now := time.Now().UTC()
	for _, rec := range m.Records {
		if rec.AccountID == accountID && rec.Kind == kind && rec.State(now) == StateActive {
			return rec, nil
		}
	}
	return nil, nil
}

func (m *MemActionStore) RevokeTrust(ctx context.Context, accountID string) (bool, error) {
	m.lk.Lock()
	defer m.lk.Unlock()
	now := time.Now().UTC()
	for _, rec := range m.Records {
		if rec.AccountID == accountID && rec.Kind == KindTrust && rec.State(now) == StateActive {
			t := now
			rec.ReversedAt = &t
			return true, nil
		}
	}
	return false, nil
}

func (m *MemActionStore) MarkReversed(ctx context.Context, id uint) error {
	m.lk.Lock()
	defer m.lk.Unlock()
	for _, rec := range m.Records {
		if rec.ID == id {
			if rec.ReversedAt == nil {
				t := time.Now().UTC()
				rec.ReversedAt = &t
			}
			return nil
		}
	}
	return fmt.Errorf("no action record with id %d", id)
}

func (m *MemActionStore) ClaimExpired(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]ActionRecord, error) {
	m.lk.Lock()
	defer m.lk.Unlock()
	var out []ActionRecord
	for _, rec := range m.Records {
		if len(out) >= limit {
			break
		}
		if rec.State(now) != StateExpired {
			continue
		}
		if rec.ClaimedAt != nil && rec.ClaimedAt.After(now.Add(-lease)) {
			continue
		}
		t := now
		rec.ClaimedAt = &t
		out = append(out, *rec)
	}
	return out, nil
}

func (m *MemActionStore) PrivateContact(ctx context.Context, accountID string) (bool, error) {
	m.lk.Lock()
	defer m.lk.Unlock()
	return m.Contacts[accountID], nil
}

// ActiveCount counts active records of a kind for an account.
func (m *MemActionStore) ActiveCount(accountID string, kind ActionKind) int {
	m.lk.Lock()
	defer m.lk.Unlock()
	now := time.Now().UTC()
	n := 0
	for _, rec := range m.Records {
		if rec.AccountID == accountID && rec.Kind == kind && rec.State(now) == StateActive {
			n++
		}
	}
	return n
}

// OrchestratorTestFixture wires an orchestrator from in-memory parts.
func OrchestratorTestFixture() (*Orchestrator, *MemActionStore, *platform.FakeClient) {
	store := NewMemActionStore()
	client := platform.NewFakeClient()
	o := &Orchestrator{
		Logger:   slog.Default(),
		Store:    store,
		Platform: client,
		Notifier: NewNotifier(slog.Default(), client, store),
		Locks:    NewKeyedLocks(),
	}
	return o, store, client
}
