// Package platform defines the outbound chat-platform client surface the
// rest of the system depends on. Concrete transports (Telegram, Matrix,
// test fakes) live behind this interface; errors are surfaced to callers,
// never interpreted here.
package platform

import (
	"context"
	"time"
)

// RestrictKind selects the enforcement primitive applied in a community.
type RestrictKind string

const (
	RestrictBan  RestrictKind = "ban"
	RestrictMute RestrictKind = "mute"
)

// Client is the per-community enforcement and messaging primitive set.
// Implementations are expected to honor context deadlines; every method is
// a potential suspension point.
type Client interface {
	// Restrict applies a restriction in one community. until is nil for
	// permanent restrictions.
	Restrict(ctx context.Context, communityID, accountID string, kind RestrictKind, until *time.Time) error
	// Unrestrict lifts a restriction. Must be idempotent: lifting an
	// absent restriction is not an error.
	Unrestrict(ctx context.Context, communityID, accountID string, kind RestrictKind) error
	DeleteMessage(ctx context.Context, communityID, messageID string) error
	// SendPrivate delivers a direct message to an account. Fails when the
	// account has never opened a private channel.
	SendPrivate(ctx context.Context, accountID, text string) error
	// ReplyInCommunity posts a message into a community, attached as a
	// reply when replyToMessageID is non-empty.
	ReplyInCommunity(ctx context.Context, communityID, replyToMessageID, text string) error
}
