package enforce

import (
	"context"
	"log/slog"

	"github.com/wardenhq/warden/platform"
)

// DeliveryResult reports which channel a notification landed on, if any.
type DeliveryResult struct {
	Channel DeliveryChannel
	// Err holds the last channel's failure when Channel is None. Soft:
	// recorded for observability, never escalated.
	Err error
}

// Notifier implements the delivery strategy: private message first (gated
// on a previously opened private channel), then an in-community mention
// attached as a reply to the offending message. One attempt per channel per
// call, never more.
type Notifier struct {
	Logger   *slog.Logger
	Platform platform.Client
	Contacts ContactSource
}

func NewNotifier(logger *slog.Logger, client platform.Client, contacts ContactSource) *Notifier {
	return &Notifier{Logger: logger, Platform: client, Contacts: contacts}
}

func (n *Notifier) Deliver(ctx context.Context, accountID, fallbackCommunityID, replyToMessageID, text string) DeliveryResult {
	var lastErr error
	eligible, err := n.Contacts.PrivateContact(ctx, accountID)
	if err != nil {
		n.Logger.Warn("private contact lookup failed", "account", accountID, "err", err)
		eligible = false
	}
	if eligible {
		if err := n.Platform.SendPrivate(ctx, accountID, text); err == nil {
			notifyCount.WithLabelValues(string(ChannelPrivateMessage)).Inc()
			return DeliveryResult{Channel: ChannelPrivateMessage}
		} else {
			n.Logger.Info("private delivery failed, falling back", "account", accountID, "err", err)
			lastErr = err
		}
	}

	if fallbackCommunityID == "" {
		notifyCount.WithLabelValues(string(ChannelNone)).Inc()
		return DeliveryResult{Channel: ChannelNone, Err: lastErr}
	}
	if err := n.Platform.ReplyInCommunity(ctx, fallbackCommunityID, replyToMessageID, text); err != nil {
		n.Logger.Warn("community mention delivery failed", "account", accountID, "community", fallbackCommunityID, "err", err)
		notifyCount.WithLabelValues(string(ChannelNone)).Inc()
		return DeliveryResult{Channel: ChannelNone, Err: err}
	}
	notifyCount.WithLabelValues(string(ChannelCommunityMention)).Inc()
	return DeliveryResult{Channel: ChannelCommunityMention}
}
