package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wardenhq/warden/detect"
	"github.com/wardenhq/warden/enforce"
)

// In-memory store implementations shared by engine tests and dev tooling.

type MemConfigSource struct {
	lk      sync.Mutex
	Configs map[string]detect.EffectiveConfig // key: check + "/" + communityID
}

func NewMemConfigSource() *MemConfigSource {
	return &MemConfigSource{Configs: make(map[string]detect.EffectiveConfig)}
}

func (m *MemConfigSource) Set(check detect.CheckName, communityID string, cfg detect.EffectiveConfig) {
	m.lk.Lock()
	defer m.lk.Unlock()
	m.Configs[fmt.Sprintf("%s/%s", check, communityID)] = cfg
}

func (m *MemConfigSource) GetCheckConfig(ctx context.Context, check detect.CheckName, communityID string) (*detect.EffectiveConfig, error) {
	m.lk.Lock()
	defer m.lk.Unlock()
	cfg, ok := m.Configs[fmt.Sprintf("%s/%s", check, communityID)]
	if !ok {
		return nil, nil
	}
	out := cfg
	return &out, nil
}

type MemDecisionStore struct {
	lk        sync.Mutex
	Decisions []*detect.Decision
	Training  map[string]bool
}

func NewMemDecisionStore() *MemDecisionStore {
	return &MemDecisionStore{Training: make(map[string]bool)}
}

func (m *MemDecisionStore) LatestEditVersion(ctx context.Context, messageID string) (int, error) {
	m.lk.Lock()
	defer m.lk.Unlock()
	latest := 0
	for _, d := range m.Decisions {
		if d.MessageID == messageID && d.EditVersion > latest {
			latest = d.EditVersion
		}
	}
	return latest, nil
}

func (m *MemDecisionStore) InsertDecision(ctx context.Context, d *detect.Decision) error {
	m.lk.Lock()
	defer m.lk.Unlock()
	for _, prev := range m.Decisions {
		if prev.MessageID == d.MessageID && prev.EditVersion >= d.EditVersion {
			return fmt.Errorf("%w: message %s version %d", ErrStaleEdit, d.MessageID, d.EditVersion)
		}
	}
	m.Decisions = append(m.Decisions, d)
	return nil
}

func (m *MemDecisionStore) TrainingMode(ctx context.Context, communityID string) (bool, error) {
	m.lk.Lock()
	defer m.lk.Unlock()
	return m.Training[communityID], nil
}

// RecordingEnforcer captures executed intents without touching a platform.
type RecordingEnforcer struct {
	lk      sync.Mutex
	Intents []enforce.Intent
	Err     error
}

func (r *RecordingEnforcer) Execute(ctx context.Context, intent enforce.Intent) (enforce.Outcome, error) {
	r.lk.Lock()
	defer r.lk.Unlock()
	if r.Err != nil {
		return enforce.Outcome{}, r.Err
	}
	r.Intents = append(r.Intents, intent)
	return enforce.Outcome{OK: true, CommunitiesAffected: 1, NotifiedVia: enforce.ChannelNone}, nil
}

type MemAuditSink struct {
	lk      sync.Mutex
	Entries []string
}

func (m *MemAuditSink) AppendAudit(ctx context.Context, actor, target, action, outcome, detail string) error {
	m.lk.Lock()
	defer m.lk.Unlock()
	m.Entries = append(m.Entries, fmt.Sprintf("%s %s %s %s %s", actor, target, action, outcome, detail))
	return nil
}

// staticCheck returns a fixed result; for tests.
type staticCheck struct {
	name    detect.CheckName
	verdict detect.Verdict
	conf    int
	err     error
	delay   time.Duration
}

func (s *staticCheck) Name() detect.CheckName { return s.name }

func (s *staticCheck) Evaluate(ctx context.Context, content *detect.Content, cfg detect.EffectiveConfig) (detect.CheckResult, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return detect.CheckResult{}, ctx.Err()
		}
	}
	if s.err != nil {
		return detect.CheckResult{}, s.err
	}
	return detect.CheckResult{Check: s.name, Verdict: s.verdict, Confidence: s.conf, Elapsed: time.Millisecond}, nil
}

// EngineTestFixture wires an engine from in-memory parts with one enabled
// static spam check.
func EngineTestFixture(checks ...detect.Check) (*Engine, *MemConfigSource, *MemDecisionStore, *RecordingEnforcer) {
	if len(checks) == 0 {
		checks = []detect.Check{&staticCheck{name: "static", verdict: detect.VerdictSpam, conf: 90}}
	}
	reg, err := detect.NewRegistry(checks...)
	if err != nil {
		panic(err)
	}
	cfgs := NewMemConfigSource()
	for _, c := range checks {
		cfgs.Set(c.Name(), "", detect.EffectiveConfig{Enabled: true, Threshold: 50})
	}
	store := NewMemDecisionStore()
	enforcer := &RecordingEnforcer{}
	eng := &Engine{
		Logger:   slog.Default(),
		Checks:   reg,
		Resolver: NewScopeResolver(cfgs),
		Policy:   DefaultPolicy(),
		Store:    store,
		Enforcer: enforcer,
		Audit:    &MemAuditSink{},
	}
	return eng, cfgs, store, enforcer
}
