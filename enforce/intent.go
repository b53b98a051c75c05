// Package enforce turns moderation decisions and admin commands into
// federation-wide enforcement: fan-out to every community the target is
// known in, best-effort notification, scheduled reversal of timed actions,
// and an append-only audit trail.
package enforce

import (
	"errors"
	"fmt"
	"time"
)

type ActionKind string

const (
	KindBan     ActionKind = "ban"
	KindMute    ActionKind = "mute"
	KindTempBan ActionKind = "tempban"
	KindTrust   ActionKind = "trust"
	KindUntrust ActionKind = "untrust"
	KindUnban   ActionKind = "unban"
)

var (
	ErrDurationRequired  = errors.New("timed action requires a positive duration")
	ErrDurationForbidden = errors.New("permanent action forbids a duration")
	ErrProtectedTarget   = errors.New("target account holds a protected role")
	ErrUnknownKind       = errors.New("unknown action kind")
	ErrMissingTarget     = errors.New("intent missing target account")
	ErrMissingExecutor   = errors.New("intent missing executor")
)

// Timed reports whether the kind carries an expiry.
func (k ActionKind) Timed() bool {
	return k == KindMute || k == KindTempBan
}

// Notifies reports whether the target account is notified of the action.
func (k ActionKind) Notifies() bool {
	return k == KindBan || k == KindTempBan || k == KindMute
}

// ExemptsAdmins reports whether community admins are protected from the
// kind. Trust-state changes apply to anyone.
func (k ActionKind) ExemptsAdmins() bool {
	return k == KindBan || k == KindMute || k == KindTempBan
}

func (k ActionKind) valid() bool {
	switch k {
	case KindBan, KindMute, KindTempBan, KindTrust, KindUntrust, KindUnban:
		return true
	}
	return false
}

// Intent is a request to apply one moderation action to one account. It is
// consumed by Execute and never persisted directly.
type Intent struct {
	AccountID string
	// Executor identifies who or what authorized the action (an admin
	// account id, or "warden:auto" for engine-issued intents).
	Executor string
	Kind     ActionKind
	// Duration is required for timed kinds and forbidden otherwise.
	Duration time.Duration
	Reason   string
	// MessageID optionally names the offending message; it is deleted in
	// the originating community and used as the notification reply target.
	MessageID string
	// CommunityID is the originating community, used for the notification
	// fallback channel and message deletion.
	CommunityID string
}

// Validate rejects malformed intents before any external call is made.
func (i Intent) Validate() error {
	if !i.Kind.valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, i.Kind)
	}
	if i.AccountID == "" {
		return ErrMissingTarget
	}
	if i.Executor == "" {
		return ErrMissingExecutor
	}
	if i.Kind.Timed() && i.Duration <= 0 {
		return ErrDurationRequired
	}
	if !i.Kind.Timed() && i.Duration != 0 {
		return ErrDurationForbidden
	}
	return nil
}

type DeliveryChannel string

const (
	ChannelPrivateMessage   DeliveryChannel = "private-message"
	ChannelCommunityMention DeliveryChannel = "community-mention"
	ChannelNone             DeliveryChannel = "none"
)

// Outcome reports what one Execute call accomplished. Partial enforcement
// failure is a qualified success: OK stays true while FirstErr carries the
// first underlying cause for visibility.
type Outcome struct {
	OK bool
	// CommunitiesAffected counts communities where the platform call
	// succeeded.
	CommunitiesAffected int
	// ExpiresAt is set for timed kinds.
	ExpiresAt *time.Time
	// TrustRevoked is set when a ban revoked an existing trust grant as a
	// side effect.
	TrustRevoked bool
	NotifiedVia  DeliveryChannel
	FirstErr     error
}
