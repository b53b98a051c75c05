package enforce

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wardenhq/warden/platform"
)

// Orchestrator executes enforcement intents against every community the
// target account is known in. Per-community failures are collected, not
// fatal; there is no cross-community transaction. Consistency model:
// eventually fully enforced, always audit-accurate.
type Orchestrator struct {
	Logger   *slog.Logger
	Store    ActionStore
	Platform platform.Client
	Notifier *Notifier
	// Webhook optionally tells administrators about actions. Best-effort.
	Webhook *WebhookNotifier
	Audit   AuditSink
	Locks   *KeyedLocks

	// MaxConcurrent bounds community fan-out.
	MaxConcurrent int
	// CallTimeout bounds each platform call.
	CallTimeout time.Duration
}

func (o *Orchestrator) callTimeout() time.Duration {
	if o.CallTimeout > 0 {
		return o.CallTimeout
	}
	return 10 * time.Second
}

// Execute applies one intent. Validation failures and full enforcement
// failures return an error; partial failures return a qualified success
// with FirstErr populated.
func (o *Orchestrator) Execute(ctx context.Context, intent Intent) (Outcome, error) {
	if err := intent.Validate(); err != nil {
		return Outcome{}, err
	}

	if intent.Kind.ExemptsAdmins() {
		protected, err := o.Store.IsProtected(ctx, intent.AccountID)
		if err != nil {
			return Outcome{}, fmt.Errorf("checking protected role: %w", err)
		}
		if protected {
			return Outcome{}, fmt.Errorf("%w: %s", ErrProtectedTarget, intent.AccountID)
		}
	}

	var (
		out Outcome
		err error
	)
	switch intent.Kind {
	case KindTrust, KindUntrust:
		out, err = o.toggleTrust(ctx, intent)
	case KindUnban:
		out, err = o.unban(ctx, intent)
	default:
		out, err = o.restrict(ctx, intent)
	}

	outcome := "ok"
	detail := fmt.Sprintf("communities=%d", out.CommunitiesAffected)
	if err != nil {
		outcome = "error"
		detail = err.Error()
	} else if out.FirstErr != nil {
		outcome = "partial"
		detail = fmt.Sprintf("communities=%d first_err=%v", out.CommunitiesAffected, out.FirstErr)
	}
	o.appendAudit(ctx, intent.Executor, intent.AccountID, string(intent.Kind), outcome, detail)
	actionCount.WithLabelValues(string(intent.Kind), outcome).Inc()

	if err == nil && o.Webhook != nil {
		if werr := o.Webhook.NotifyAction(ctx, intent, out); werr != nil {
			o.Logger.Warn("admin webhook notification failed", "err", werr)
		}
	}
	return out, err
}

// restrict handles ban, tempban, and mute.
func (o *Orchestrator) restrict(ctx context.Context, intent Intent) (Outcome, error) {
	members, err := o.Store.Memberships(ctx, intent.AccountID)
	if err != nil {
		return Outcome{}, fmt.Errorf("resolving memberships: %w", err)
	}

	issuedAt := time.Now().UTC()
	var expiresAt *time.Time
	if intent.Kind.Timed() {
		t := issuedAt.Add(intent.Duration)
		expiresAt = &t
	}

	rkind := platform.RestrictBan
	if intent.Kind == KindMute {
		rkind = platform.RestrictMute
	}

	hit, firstErr := o.fanOut(ctx, members, func(cctx context.Context, communityID string) error {
		return o.Platform.Restrict(cctx, communityID, intent.AccountID, rkind, expiresAt)
	})
	if hit == 0 && firstErr != nil {
		return Outcome{}, fmt.Errorf("enforcement failed in every community: %w", firstErr)
	}

	// delete the offending message where we know it
	if intent.MessageID != "" && intent.CommunityID != "" {
		dctx, cancel := context.WithTimeout(ctx, o.callTimeout())
		if derr := o.Platform.DeleteMessage(dctx, intent.CommunityID, intent.MessageID); derr != nil {
			o.Logger.Warn("offending message delete failed", "community", intent.CommunityID, "message", intent.MessageID, "err", derr)
		}
		cancel()
	}

	rec := &ActionRecord{
		AccountID: intent.AccountID,
		Kind:      intent.Kind,
		Issuer:    intent.Executor,
		Reason:    intent.Reason,
		MessageID: intent.MessageID,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}
	if err := o.Store.InsertAction(ctx, rec); err != nil {
		return Outcome{}, fmt.Errorf("persisting action record: %w", err)
	}

	out := Outcome{
		OK:                  true,
		CommunitiesAffected: hit,
		ExpiresAt:           expiresAt,
		FirstErr:            firstErr,
		NotifiedVia:         ChannelNone,
	}

	// banning revokes an existing trust grant for the same account
	if intent.Kind == KindBan || intent.Kind == KindTempBan {
		revoked, rerr := o.Store.RevokeTrust(ctx, intent.AccountID)
		if rerr != nil {
			o.Logger.Warn("trust revocation failed", "account", intent.AccountID, "err", rerr)
		}
		out.TrustRevoked = revoked
	}

	if intent.Kind.Notifies() && o.Notifier != nil {
		text := notificationText(intent, expiresAt)
		res := o.Notifier.Deliver(ctx, intent.AccountID, intent.CommunityID, intent.MessageID, text)
		out.NotifiedVia = res.Channel
	}
	return out, nil
}

// unban lifts an active ban everywhere. Unbanning an unbanned account is a
// no-op success so the command is safe to retry.
func (o *Orchestrator) unban(ctx context.Context, intent Intent) (Outcome, error) {
	active, err := o.Store.ActiveAction(ctx, intent.AccountID, KindBan)
	if err != nil {
		return Outcome{}, fmt.Errorf("reading ban state: %w", err)
	}
	if active == nil {
		return Outcome{OK: true, NotifiedVia: ChannelNone}, nil
	}

	members, err := o.Store.Memberships(ctx, intent.AccountID)
	if err != nil {
		return Outcome{}, fmt.Errorf("resolving memberships: %w", err)
	}
	hit, firstErr := o.fanOut(ctx, members, func(cctx context.Context, communityID string) error {
		return o.Platform.Unrestrict(cctx, communityID, intent.AccountID, platform.RestrictBan)
	})
	if hit == 0 && firstErr != nil {
		return Outcome{}, fmt.Errorf("unban failed in every community: %w", firstErr)
	}
	if err := o.Store.MarkReversed(ctx, active.ID); err != nil {
		return Outcome{}, fmt.Errorf("marking ban reversed: %w", err)
	}
	return Outcome{OK: true, CommunitiesAffected: hit, FirstErr: firstErr, NotifiedVia: ChannelNone}, nil
}

// toggleTrust runs the read-then-act trust transition as one critical
// section per account. Redundant transitions are no-op successes.
func (o *Orchestrator) toggleTrust(ctx context.Context, intent Intent) (Outcome, error) {
	unlock := o.Locks.Lock(intent.AccountID)
	defer unlock()

	active, err := o.Store.ActiveAction(ctx, intent.AccountID, KindTrust)
	if err != nil {
		return Outcome{}, fmt.Errorf("reading trust state: %w", err)
	}

	switch intent.Kind {
	case KindTrust:
		if active != nil {
			return Outcome{OK: true, NotifiedVia: ChannelNone}, nil
		}
		rec := &ActionRecord{
			AccountID: intent.AccountID,
			Kind:      KindTrust,
			Issuer:    intent.Executor,
			Reason:    intent.Reason,
			IssuedAt:  time.Now().UTC(),
		}
		if err := o.Store.InsertAction(ctx, rec); err != nil {
			return Outcome{}, fmt.Errorf("persisting trust grant: %w", err)
		}
	case KindUntrust:
		if active == nil {
			return Outcome{OK: true, NotifiedVia: ChannelNone}, nil
		}
		if _, err := o.Store.RevokeTrust(ctx, intent.AccountID); err != nil {
			return Outcome{}, fmt.Errorf("revoking trust: %w", err)
		}
	}
	return Outcome{OK: true, NotifiedVia: ChannelNone}, nil
}

// fanOut runs fn against each community concurrently with a bounded group
// and per-call timeouts, returning the success count and first error.
func (o *Orchestrator) fanOut(ctx context.Context, members []Membership, fn func(ctx context.Context, communityID string) error) (int, error) {
	var (
		mu       sync.Mutex
		hit      int
		firstErr error
	)
	g := new(errgroup.Group)
	if o.MaxConcurrent > 0 {
		g.SetLimit(o.MaxConcurrent)
	}
	for _, m := range members {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, o.callTimeout())
			defer cancel()
			err := fn(cctx, m.CommunityID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				o.Logger.Warn("community enforcement call failed", "community", m.CommunityID, "err", err)
				if firstErr == nil {
					firstErr = fmt.Errorf("community %s: %w", m.CommunityID, err)
				}
				return nil
			}
			hit++
			return nil
		})
	}
	_ = g.Wait()
	return hit, firstErr
}

func notificationText(intent Intent, expiresAt *time.Time) string {
	switch intent.Kind {
	case KindMute:
		return fmt.Sprintf("You have been muted until %s. Reason: %s", expiresAt.Format(time.RFC3339), intent.Reason)
	case KindTempBan:
		return fmt.Sprintf("You have been banned until %s. Reason: %s", expiresAt.Format(time.RFC3339), intent.Reason)
	default:
		return fmt.Sprintf("You have been banned. Reason: %s", intent.Reason)
	}
}

func (o *Orchestrator) appendAudit(ctx context.Context, actor, target, action, outcome, detail string) {
	if o.Audit == nil {
		return
	}
	if err := o.Audit.AppendAudit(ctx, actor, target, action, outcome, detail); err != nil {
		o.Logger.Error("audit append failed", "action", action, "target", target, "err", err)
	}
}
