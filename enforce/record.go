package enforce

import (
	"context"
	"time"
)

type ActionState string

const (
	StateActive   ActionState = "active"
	StateExpired  ActionState = "expired"
	StateReversed ActionState = "reversed"
)

// ActionRecord is the durable record of one issued enforcement action.
// Created on enforcement; mutated only to set reversal. For the ban and
// trust kinds at most one record per account may be concurrently active;
// issuing a new one supersedes the prior active record.
type ActionRecord struct {
	ID        uint
	AccountID string
	Kind      ActionKind
	Issuer    string
	Reason    string
	MessageID string
	IssuedAt  time.Time
	// ExpiresAt nil means permanent.
	ExpiresAt  *time.Time
	ReversedAt *time.Time
	// ClaimedAt is the reconciler's lease marker: set when a sweep takes
	// the record, cleared implicitly by the lease lapsing. Never affects
	// State; only ReversedAt does.
	ClaimedAt *time.Time
}

// State reports where the record sits in the Active -> Expired -> Reversed
// machine. Expired means past expiry but not yet reversed by the
// reconciler.
func (r *ActionRecord) State(now time.Time) ActionState {
	if r.ReversedAt != nil {
		return StateReversed
	}
	if r.ExpiresAt != nil && !r.ExpiresAt.After(now) {
		return StateExpired
	}
	return StateActive
}

// Membership places an account in a community.
type Membership struct {
	CommunityID string
	// Admin marks the protected community-admin role.
	Admin bool
}

// ActionStore is the persistence surface the orchestrator and reconciler
// need. Requires read-your-writes consistency within one call.
type ActionStore interface {
	// Memberships lists every community the account is known present in.
	Memberships(ctx context.Context, accountID string) ([]Membership, error)
	// IsProtected reports whether the account holds an admin role anywhere.
	IsProtected(ctx context.Context, accountID string) (bool, error)
	// InsertAction persists a record, superseding any prior active record
	// of the same kind for ban and trust.
	InsertAction(ctx context.Context, rec *ActionRecord) error
	// ActiveAction returns the account's active record of a kind, nil when
	// none.
	ActiveAction(ctx context.Context, accountID string, kind ActionKind) (*ActionRecord, error)
	// RevokeTrust reverses an active trust grant; reports whether one
	// existed.
	RevokeTrust(ctx context.Context, accountID string) (bool, error)
	// MarkReversed sets the reversal marker on a record by id.
	MarkReversed(ctx context.Context, id uint) error
	// ClaimExpired leases up to limit expired, unreversed records for
	// reversal. A leased record goes to at most one caller until the
	// lease lapses; it stays claimable until MarkReversed is called, so a
	// sweep that dies or fails to lift gets retried by a later one.
	ClaimExpired(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]ActionRecord, error)
}

// ContactSource gates private-channel delivery.
type ContactSource interface {
	// PrivateContact reports whether the account ever interacted with the
	// system over a private channel.
	PrivateContact(ctx context.Context, accountID string) (bool, error)
}

// AuditSink appends enforcement events. Append-only.
type AuditSink interface {
	AppendAudit(ctx context.Context, actor, target, action, outcome, detail string) error
}
