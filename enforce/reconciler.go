package enforce

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wardenhq/warden/platform"
)

// Reconciler sweeps for time-bound actions past their expiry and reverses
// each exactly once. Safe to run concurrently with itself: the store's
// lease hands any record to at most one sweep at a time, and the platform
// lift call is idempotent. A record is only marked reversed after its
// restriction was lifted; failed lifts stay claimable so a later sweep
// retries them.
type Reconciler struct {
	Logger   *slog.Logger
	Store    ActionStore
	Platform platform.Client
	Audit    AuditSink

	Interval  time.Duration
	BatchSize int
	// ClaimLease is how long a swept record stays reserved before a
	// failed lift becomes retryable.
	ClaimLease time.Duration
}

func (r *Reconciler) interval() time.Duration {
	if r.Interval > 0 {
		return r.Interval
	}
	return time.Minute
}

func (r *Reconciler) batchSize() int {
	if r.BatchSize > 0 {
		return r.BatchSize
	}
	return 100
}

func (r *Reconciler) claimLease() time.Duration {
	if r.ClaimLease > 0 {
		return r.ClaimLease
	}
	return 5 * time.Minute
}

// Run sweeps on a ticker until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := r.Sweep(ctx)
			if err != nil {
				r.Logger.Error("expiry sweep failed", "err", err)
				continue
			}
			if n > 0 {
				r.Logger.Info("expiry sweep reversed actions", "count", n)
			}
		}
	}
}

// Sweep leases expired records, lifts their restrictions, and marks each
// record reversed only once every lift succeeded. Returns the number of
// records reversed. A lift failure leaves the record leased; the lease
// lapses and a later sweep retries, relying on the platform's idempotent
// unrestrict for communities already lifted.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	records, err := r.Store.ClaimExpired(ctx, time.Now().UTC(), r.claimLease(), r.batchSize())
	if err != nil {
		return 0, fmt.Errorf("claiming expired actions: %w", err)
	}
	reversed := 0
	for _, rec := range records {
		lifted, firstErr := r.lift(ctx, rec)
		if firstErr != nil {
			r.appendAudit(ctx, rec, "error", fmt.Sprintf("record=%d kind=%s communities=%d first_err=%v", rec.ID, rec.Kind, lifted, firstErr))
			continue
		}
		if err := r.Store.MarkReversed(ctx, rec.ID); err != nil {
			r.Logger.Error("marking action reversed failed", "record", rec.ID, "err", err)
			continue
		}
		sweepReversedCount.Inc()
		reversed++
		r.appendAudit(ctx, rec, "ok", fmt.Sprintf("record=%d kind=%s communities=%d", rec.ID, rec.Kind, lifted))
	}
	return reversed, nil
}

// lift unrestricts the account in every community it is known in, returning
// the success count and first error.
func (r *Reconciler) lift(ctx context.Context, rec ActionRecord) (int, error) {
	rkind := platform.RestrictBan
	if rec.Kind == KindMute {
		rkind = platform.RestrictMute
	}

	members, err := r.Store.Memberships(ctx, rec.AccountID)
	if err != nil {
		return 0, fmt.Errorf("resolving memberships: %w", err)
	}
	lifted := 0
	var firstErr error
	for _, m := range members {
		if err := r.Platform.Unrestrict(ctx, m.CommunityID, rec.AccountID, rkind); err != nil {
			r.Logger.Warn("lift failed", "community", m.CommunityID, "account", rec.AccountID, "err", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("community %s: %w", m.CommunityID, err)
			}
			continue
		}
		lifted++
	}
	return lifted, firstErr
}

func (r *Reconciler) appendAudit(ctx context.Context, rec ActionRecord, outcome, detail string) {
	if r.Audit == nil {
		return
	}
	if err := r.Audit.AppendAudit(ctx, "warden:reconciler", rec.AccountID, "expire", outcome, detail); err != nil {
		r.Logger.Error("audit append failed", "record", rec.ID, "err", err)
	}
}
