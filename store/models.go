package store

import (
	"time"
)

// CheckConfig is the stored per-check configuration record. CommunityID ""
// is the global scope; at most one record exists per (check, community).
type CheckConfig struct {
	ID          uint   `gorm:"primarykey"`
	CheckName   string `gorm:"index:idx_check_scope,unique"`
	CommunityID string `gorm:"index:idx_check_scope,unique;default:''"`
	Enabled     bool
	UseGlobal   bool
	Threshold   int
	AlwaysRun   bool
	// ParamsJSON holds check-specific numeric tunables as a JSON object.
	ParamsJSON string
	UpdatedAt  time.Time
}

// Decision rows are immutable once written, except the training-eligible
// flag which reviewers may flip. The unique (message, edit version) pair
// backs the stale-edit rejection.
type Decision struct {
	ID          string `gorm:"primarykey"`
	MessageID   string `gorm:"index:idx_decision_edit,unique"`
	EditVersion int    `gorm:"index:idx_decision_edit,unique"`
	AccountID   string `gorm:"index"`
	CommunityID string
	CreatedAt   time.Time

	Verdict       string
	NetConfidence int
	// ResultsJSON is the full per-check result array.
	ResultsJSON string
	Source      string

	TrainingEligible bool
}

type CorpusSample struct {
	ID         uint   `gorm:"primarykey"`
	Label      string `gorm:"index:idx_sample_label"`
	Source     string `gorm:"index:idx_sample_label"`
	Text       string
	DecisionID string
	CreatedAt  time.Time
}

// ActionRecord is the durable enforcement record. ReversedAt doubles as the
// reconciler's claim marker.
type ActionRecord struct {
	ID         uint   `gorm:"primarykey"`
	AccountID  string `gorm:"index"`
	Kind       string `gorm:"index"`
	Issuer     string
	Reason     string
	MessageID  string
	IssuedAt   time.Time
	ExpiresAt  *time.Time `gorm:"index"`
	ReversedAt *time.Time
	// ClaimedAt leases the record to one reconciler sweep; reversal is a
	// separate step once the restriction is actually lifted.
	ClaimedAt *time.Time
}

// Membership places an account in a community, as observed from platform
// events.
type Membership struct {
	ID          uint   `gorm:"primarykey"`
	AccountID   string `gorm:"index:idx_membership,unique"`
	CommunityID string `gorm:"index:idx_membership,unique"`
	Admin       bool
	UpdatedAt   time.Time
}

type Account struct {
	ID        uint   `gorm:"primarykey"`
	AccountID string `gorm:"uniqueindex"`
	// PrivateContact is set once the account has opened a private channel,
	// unlocking private-message notification delivery.
	PrivateContact bool
	UpdatedAt      time.Time
}

type CommunitySettings struct {
	ID          uint   `gorm:"primarykey"`
	CommunityID string `gorm:"uniqueindex"`
	// TrainingMode suppresses automatic enforcement while decisions keep
	// being recorded.
	TrainingMode bool
	UpdatedAt    time.Time
}

// AuditEvent is append-only; no update or delete path exists.
type AuditEvent struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time
	Actor     string `gorm:"index"`
	Target    string `gorm:"index"`
	Action    string
	Outcome   string
	Detail    string
}
