package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/detect"
	"github.com/wardenhq/warden/detect/corpus"
	"github.com/wardenhq/warden/detect/engine"
	"github.com/wardenhq/warden/enforce"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := SetupDatabase("sqlite://:memory:", 1)
	require.NoError(t, err)
	s, err := NewStore(db)
	require.NoError(t, err)
	return s
}

func TestCheckConfigScopes(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	// no record at any scope
	cfg, err := s.GetCheckConfig(ctx, detect.CheckKeyword, "com-1")
	require.NoError(t, err)
	assert.Nil(t, cfg)

	// global record
	require.NoError(t, s.PutCheckConfig(ctx, detect.CheckKeyword, "", detect.EffectiveConfig{
		Enabled:   true,
		Threshold: 60,
		Params:    map[string]float64{"extra_hit_bonus": 15},
	}))
	cfg, err = s.GetCheckConfig(ctx, detect.CheckKeyword, "")
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 60, cfg.Threshold)
	assert.Equal(t, float64(15), cfg.Param("extra_hit_bonus", 0))

	// community override is a separate record
	require.NoError(t, s.PutCheckConfig(ctx, detect.CheckKeyword, "com-1", detect.EffectiveConfig{
		Enabled:   false,
		UseGlobal: true,
	}))
	cfg, err = s.GetCheckConfig(ctx, detect.CheckKeyword, "com-1")
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.True(t, cfg.UseGlobal)

	// update in place, not duplicate
	require.NoError(t, s.PutCheckConfig(ctx, detect.CheckKeyword, "", detect.EffectiveConfig{
		Enabled:   true,
		Threshold: 75,
	}))
	cfg, err = s.GetCheckConfig(ctx, detect.CheckKeyword, "")
	require.NoError(t, err)
	assert.Equal(t, 75, cfg.Threshold)
}

func decisionFixture(msgID string, version int) *detect.Decision {
	return &detect.Decision{
		ID:          fmt.Sprintf("dec-%s-%d", msgID, version),
		MessageID:   msgID,
		AccountID:   "acct-1",
		CommunityID: "com-1",
		CreatedAt:   time.Now().UTC(),
		Verdict:     detect.VerdictSpam,
		NetConfidence: 90,
		Results: []detect.CheckResult{
			{Check: detect.CheckKeyword, Verdict: detect.VerdictSpam, Confidence: 90},
		},
		Source:      detect.SourceAutomatic,
		EditVersion: version,
	}
}

func TestDecisionEditVersionMonotonic(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	latest, err := s.LatestEditVersion(ctx, "msg-1")
	require.NoError(t, err)
	assert.Equal(t, 0, latest)

	require.NoError(t, s.InsertDecision(ctx, decisionFixture("msg-1", 1)))
	require.NoError(t, s.InsertDecision(ctx, decisionFixture("msg-1", 2)))

	latest, err = s.LatestEditVersion(ctx, "msg-1")
	require.NoError(t, err)
	assert.Equal(t, 2, latest)

	// late evaluation of an older edit is rejected
	err = s.InsertDecision(ctx, decisionFixture("msg-1", 2))
	assert.ErrorIs(t, err, engine.ErrStaleEdit)
	err = s.InsertDecision(ctx, decisionFixture("msg-1", 1))
	assert.ErrorIs(t, err, engine.ErrStaleEdit)
}

func TestDecisionRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	in := decisionFixture("msg-1", 1)
	require.NoError(t, s.InsertDecision(ctx, in))

	out, err := s.GetDecision(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, in.MessageID, out.MessageID)
	assert.Equal(t, in.Verdict, out.Verdict)
	assert.Equal(t, in.NetConfidence, out.NetConfidence)
	require.Len(t, out.Results, 1)
	assert.Equal(t, detect.CheckKeyword, out.Results[0].Check)

	require.NoError(t, s.SetTrainingEligible(ctx, in.ID, true))
	out, err = s.GetDecision(ctx, in.ID)
	require.NoError(t, err)
	assert.True(t, out.TrainingEligible)
}

func TestTrainingModeDefaultsOff(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	on, err := s.TrainingMode(ctx, "com-1")
	require.NoError(t, err)
	assert.False(t, on)

	require.NoError(t, s.SetTrainingMode(ctx, "com-1", true))
	on, err = s.TrainingMode(ctx, "com-1")
	require.NoError(t, err)
	assert.True(t, on)

	require.NoError(t, s.SetTrainingMode(ctx, "com-1", false))
	on, err = s.TrainingMode(ctx, "com-1")
	require.NoError(t, err)
	assert.False(t, on)
}

func TestCorpusRetention(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertSample(ctx, corpus.Sample{
		Label: detect.VerdictSpam, Source: corpus.SourceManual, Text: "manual one",
	}))
	for i := 0; i < 5; i++ {
		require.NoError(t, s.InsertSample(ctx, corpus.Sample{
			Label: detect.VerdictSpam, Source: corpus.SourceAutomatic, Text: fmt.Sprintf("auto %d", i),
		}))
	}

	require.NoError(t, s.PruneAutoSamples(ctx, detect.VerdictSpam, 3))

	auto, err := s.RecentAutoSamples(ctx, detect.VerdictSpam, 100)
	require.NoError(t, err)
	require.Len(t, auto, 3)
	assert.Equal(t, "auto 4", auto[0].Text)

	// manual samples survive pruning
	manual, err := s.ManualSamples(ctx, detect.VerdictSpam)
	require.NoError(t, err)
	require.Len(t, manual, 1)
	assert.Equal(t, "manual one", manual[0].Text)
}

func TestMembershipsAndProtection(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.PutMembership(ctx, "acct-1", "com-1", false))
	require.NoError(t, s.PutMembership(ctx, "acct-1", "com-2", false))

	members, err := s.Memberships(ctx, "acct-1")
	require.NoError(t, err)
	assert.Len(t, members, 2)

	protected, err := s.IsProtected(ctx, "acct-1")
	require.NoError(t, err)
	assert.False(t, protected)

	// promotion updates the existing row
	require.NoError(t, s.PutMembership(ctx, "acct-1", "com-2", true))
	members, err = s.Memberships(ctx, "acct-1")
	require.NoError(t, err)
	assert.Len(t, members, 2)
	protected, err = s.IsProtected(ctx, "acct-1")
	require.NoError(t, err)
	assert.True(t, protected)

	require.NoError(t, s.RemoveMembership(ctx, "acct-1", "com-2"))
	protected, err = s.IsProtected(ctx, "acct-1")
	require.NoError(t, err)
	assert.False(t, protected)
}

func TestPrivateContactFlag(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	ok, err := s.PrivateContact(ctx, "acct-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.MarkPrivateContact(ctx, "acct-1"))
	require.NoError(t, s.MarkPrivateContact(ctx, "acct-1"))
	ok, err = s.PrivateContact(ctx, "acct-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestActionLifecycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	rec := &enforce.ActionRecord{
		AccountID: "acct-1",
		Kind:      enforce.KindBan,
		Issuer:    "admin-9",
		Reason:    "spam",
	}
	require.NoError(t, s.InsertAction(ctx, rec))
	assert.NotZero(t, rec.ID)

	active, err := s.ActiveAction(ctx, "acct-1", enforce.KindBan)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, rec.ID, active.ID)

	// a new ban supersedes the old one; exactly one stays active
	require.NoError(t, s.InsertAction(ctx, &enforce.ActionRecord{
		AccountID: "acct-1", Kind: enforce.KindBan, Issuer: "admin-9", Reason: "again",
	}))
	actions, err := s.ActionsForAccount(ctx, "acct-1")
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, enforce.StateReversed, actions[1].State(time.Now().UTC()))
	assert.Equal(t, enforce.StateActive, actions[0].State(time.Now().UTC()))

	require.NoError(t, s.MarkReversed(ctx, actions[0].ID))
	active, err = s.ActiveAction(ctx, "acct-1", enforce.KindBan)
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestRevokeTrust(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	revoked, err := s.RevokeTrust(ctx, "acct-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, s.InsertAction(ctx, &enforce.ActionRecord{
		AccountID: "acct-1", Kind: enforce.KindTrust, Issuer: "admin-9",
	}))
	revoked, err = s.RevokeTrust(ctx, "acct-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	active, err := s.ActiveAction(ctx, "acct-1", enforce.KindTrust)
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestClaimExpiredLeasesOnce(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	lease := 5 * time.Minute

	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)
	require.NoError(t, s.InsertAction(ctx, &enforce.ActionRecord{
		AccountID: "acct-1", Kind: enforce.KindMute, Issuer: "admin-9", ExpiresAt: &past,
	}))
	require.NoError(t, s.InsertAction(ctx, &enforce.ActionRecord{
		AccountID: "acct-2", Kind: enforce.KindTempBan, Issuer: "admin-9", ExpiresAt: &future,
	}))

	claimed, err := s.ClaimExpired(ctx, now, lease, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, "acct-1", claimed[0].AccountID)
	// the claim is a lease, not a reversal
	assert.Nil(t, claimed[0].ReversedAt)

	// leased: a concurrent sweep inside the window gets nothing
	claimed, err = s.ClaimExpired(ctx, now, lease, 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)

	// lease lapsed without a reversal: the record is handed out again
	claimed, err = s.ClaimExpired(ctx, now.Add(lease+time.Second), lease, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	// once reversed it is never claimed again
	require.NoError(t, s.MarkReversed(ctx, claimed[0].ID))
	claimed, err = s.ClaimExpired(ctx, now.Add(2*lease), lease, 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestPruneActionRecords(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.InsertAction(ctx, &enforce.ActionRecord{
		AccountID: "acct-1", Kind: enforce.KindBan, Issuer: "admin-9",
	}))
	require.NoError(t, s.InsertAction(ctx, &enforce.ActionRecord{
		AccountID: "acct-2", Kind: enforce.KindBan, Issuer: "admin-9",
	}))
	// reverse acct-2's ban so it becomes prunable
	active, err := s.ActiveAction(ctx, "acct-2", enforce.KindBan)
	require.NoError(t, err)
	require.NoError(t, s.MarkReversed(ctx, active.ID))

	n, err := s.PruneActionRecords(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// the active ban survives
	active, err = s.ActiveAction(ctx, "acct-1", enforce.KindBan)
	require.NoError(t, err)
	assert.NotNil(t, active)
}

func TestAuditAppendAndQuery(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendAudit(ctx, "admin-9", "acct-1", "ban", "ok", "communities=3"))
	require.NoError(t, s.AppendAudit(ctx, "warden:auto", "acct-1", "decision", "spam", "confidence=90"))
	require.NoError(t, s.AppendAudit(ctx, "admin-9", "acct-2", "mute", "ok", ""))

	events, err := s.AuditForTarget(ctx, "acct-1", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "decision", events[0].Action)
	assert.Equal(t, "ban", events[1].Action)
}
