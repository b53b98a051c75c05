package enforce

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memAudit struct {
	lk      sync.Mutex
	entries []string
}

func (m *memAudit) AppendAudit(ctx context.Context, actor, target, action, outcome, detail string) error {
	m.lk.Lock()
	defer m.lk.Unlock()
	m.entries = append(m.entries, fmt.Sprintf("%s %s %s %s", actor, target, action, outcome))
	return nil
}

func seedMemberships(store *MemActionStore, accountID string, communities ...string) {
	for _, c := range communities {
		store.Members[accountID] = append(store.Members[accountID], Membership{CommunityID: c})
	}
}

func TestBanFansOutToAllCommunities(t *testing.T) {
	o, store, client := OrchestratorTestFixture()
	audit := &memAudit{}
	o.Audit = audit
	seedMemberships(store, "acct-1", "com-1", "com-2", "com-3")

	out, err := o.Execute(context.Background(), Intent{
		AccountID:   "acct-1",
		Executor:    "admin-9",
		Kind:        KindBan,
		Reason:      "spam",
		MessageID:   "msg-7",
		CommunityID: "com-1",
	})
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, 3, out.CommunitiesAffected)
	assert.Nil(t, out.ExpiresAt)
	assert.NoError(t, out.FirstErr)

	assert.Len(t, client.Calls("Restrict"), 3)
	require.Len(t, client.Calls("DeleteMessage"), 1)
	assert.Equal(t, "msg-7", client.Calls("DeleteMessage")[0].MessageID)
	assert.Equal(t, 1, store.ActiveCount("acct-1", KindBan))
	require.Len(t, audit.entries, 1)
	assert.Equal(t, "admin-9 acct-1 ban ok", audit.entries[0])
}

func TestPartialFailureIsQualifiedSuccess(t *testing.T) {
	o, store, client := OrchestratorTestFixture()
	seedMemberships(store, "acct-1", "com-1", "com-2", "com-3")
	client.FailOn("Restrict/com-2", fmt.Errorf("permission denied"))

	out, err := o.Execute(context.Background(), Intent{
		AccountID: "acct-1",
		Executor:  "admin-9",
		Kind:      KindBan,
		Reason:    "spam",
	})
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, 2, out.CommunitiesAffected)
	require.Error(t, out.FirstErr)
	assert.Contains(t, out.FirstErr.Error(), "com-2")

	// the record is still persisted so the ban is durable
	assert.Equal(t, 1, store.ActiveCount("acct-1", KindBan))
}

func TestTotalFailureIsHardError(t *testing.T) {
	o, store, client := OrchestratorTestFixture()
	seedMemberships(store, "acct-1", "com-1", "com-2")
	client.FailOn("Restrict", fmt.Errorf("platform down"))

	_, err := o.Execute(context.Background(), Intent{
		AccountID: "acct-1",
		Executor:  "admin-9",
		Kind:      KindBan,
	})
	require.Error(t, err)
	assert.Equal(t, 0, store.ActiveCount("acct-1", KindBan))
}

func TestValidationRejectsBeforeAnyCall(t *testing.T) {
	o, _, client := OrchestratorTestFixture()

	cases := []struct {
		name   string
		intent Intent
		want   error
	}{
		{"mute without duration", Intent{AccountID: "a", Executor: "e", Kind: KindMute}, ErrDurationRequired},
		{"ban with duration", Intent{AccountID: "a", Executor: "e", Kind: KindBan, Duration: time.Hour}, ErrDurationForbidden},
		{"unknown kind", Intent{AccountID: "a", Executor: "e", Kind: "obliterate"}, ErrUnknownKind},
		{"missing target", Intent{Executor: "e", Kind: KindBan}, ErrMissingTarget},
		{"missing executor", Intent{AccountID: "a", Kind: KindBan}, ErrMissingExecutor},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := o.Execute(context.Background(), tc.intent)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Empty(t, client.Calls("Restrict"))
}

func TestAdminsAreProtectedFromBans(t *testing.T) {
	o, store, client := OrchestratorTestFixture()
	store.Members["acct-1"] = []Membership{
		{CommunityID: "com-1"},
		{CommunityID: "com-2", Admin: true},
	}

	_, err := o.Execute(context.Background(), Intent{AccountID: "acct-1", Executor: "admin-9", Kind: KindBan})
	assert.ErrorIs(t, err, ErrProtectedTarget)
	assert.Empty(t, client.Calls("Restrict"))

	// trust-state changes still apply to admins
	out, err := o.Execute(context.Background(), Intent{AccountID: "acct-1", Executor: "admin-9", Kind: KindTrust})
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, 1, store.ActiveCount("acct-1", KindTrust))
}

func TestTimedActionsCarryExpiry(t *testing.T) {
	o, store, client := OrchestratorTestFixture()
	seedMemberships(store, "acct-1", "com-1")

	before := time.Now().UTC()
	out, err := o.Execute(context.Background(), Intent{
		AccountID: "acct-1",
		Executor:  "admin-9",
		Kind:      KindMute,
		Duration:  5 * time.Minute,
	})
	require.NoError(t, err)
	require.NotNil(t, out.ExpiresAt)
	assert.WithinDuration(t, before.Add(5*time.Minute), *out.ExpiresAt, 2*time.Second)

	calls := client.Calls("Restrict")
	require.Len(t, calls, 1)
	require.NotNil(t, calls[0].Until)
	assert.Equal(t, *out.ExpiresAt, *calls[0].Until)
}

func TestBanRevokesTrust(t *testing.T) {
	o, store, _ := OrchestratorTestFixture()
	seedMemberships(store, "acct-1", "com-1")

	_, err := o.Execute(context.Background(), Intent{AccountID: "acct-1", Executor: "admin-9", Kind: KindTrust})
	require.NoError(t, err)

	out, err := o.Execute(context.Background(), Intent{AccountID: "acct-1", Executor: "admin-9", Kind: KindBan, Reason: "spam"})
	require.NoError(t, err)
	assert.True(t, out.TrustRevoked)
	assert.Equal(t, 0, store.ActiveCount("acct-1", KindTrust))
}

func TestTrustToggleIsIdempotent(t *testing.T) {
	o, store, _ := OrchestratorTestFixture()

	for i := 0; i < 3; i++ {
		out, err := o.Execute(context.Background(), Intent{AccountID: "acct-1", Executor: "admin-9", Kind: KindTrust})
		require.NoError(t, err)
		assert.True(t, out.OK)
	}
	assert.Equal(t, 1, store.ActiveCount("acct-1", KindTrust))

	for i := 0; i < 3; i++ {
		out, err := o.Execute(context.Background(), Intent{AccountID: "acct-1", Executor: "admin-9", Kind: KindUntrust})
		require.NoError(t, err)
		assert.True(t, out.OK)
	}
	assert.Equal(t, 0, store.ActiveCount("acct-1", KindTrust))
}

func TestConcurrentTrustGrantsProduceOneRecord(t *testing.T) {
	o, store, _ := OrchestratorTestFixture()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.Execute(context.Background(), Intent{AccountID: "acct-1", Executor: "admin-9", Kind: KindTrust})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, store.ActiveCount("acct-1", KindTrust))
}

func TestUnbanOfUnbannedAccountIsNoop(t *testing.T) {
	o, _, client := OrchestratorTestFixture()

	out, err := o.Execute(context.Background(), Intent{AccountID: "acct-1", Executor: "admin-9", Kind: KindUnban})
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, 0, out.CommunitiesAffected)
	assert.Empty(t, client.Calls("Unrestrict"))
}

func TestUnbanLiftsActiveBanEverywhere(t *testing.T) {
	o, store, client := OrchestratorTestFixture()
	seedMemberships(store, "acct-1", "com-1", "com-2")

	_, err := o.Execute(context.Background(), Intent{AccountID: "acct-1", Executor: "admin-9", Kind: KindBan, Reason: "spam"})
	require.NoError(t, err)

	out, err := o.Execute(context.Background(), Intent{AccountID: "acct-1", Executor: "admin-9", Kind: KindUnban})
	require.NoError(t, err)
	assert.Equal(t, 2, out.CommunitiesAffected)
	assert.Len(t, client.Calls("Unrestrict"), 2)
	assert.Equal(t, 0, store.ActiveCount("acct-1", KindBan))
}

func TestZeroMembershipRestrictSucceedsWithRecord(t *testing.T) {
	o, store, client := OrchestratorTestFixture()

	out, err := o.Execute(context.Background(), Intent{AccountID: "acct-new", Executor: "admin-9", Kind: KindBan, Reason: "spam"})
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, 0, out.CommunitiesAffected)
	assert.Empty(t, client.Calls("Restrict"))
	// the record still exists so later joins can be reconciled against it
	assert.Equal(t, 1, store.ActiveCount("acct-new", KindBan))
}
