package enforce

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"context"

	"github.com/wardenhq/warden/util"
)

// WebhookNotifier posts action summaries to an admin incoming-webhook
// (Slack-compatible payload). Automatic enforcement is silent in the
// community; this is how administrators hear about it.
type WebhookNotifier struct {
	URL string

	client *http.Client
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{URL: url, client: util.RobustHTTPClient()}
}

type webhookBody struct {
	Text string `json:"text"`
}

func (n *WebhookNotifier) NotifyAction(ctx context.Context, intent Intent, out Outcome) error {
	msg := fmt.Sprintf("moderation action `%s` on `%s` by `%s`\n", intent.Kind, intent.AccountID, intent.Executor)
	msg += fmt.Sprintf("communities affected: %d\n", out.CommunitiesAffected)
	if out.ExpiresAt != nil {
		msg += fmt.Sprintf("expires: %s\n", out.ExpiresAt.Format(time.RFC3339))
	}
	if out.TrustRevoked {
		msg += "trust grant revoked\n"
	}
	if out.FirstErr != nil {
		msg += fmt.Sprintf("partial failure: %v\n", out.FirstErr)
	}
	if intent.Reason != "" {
		msg += fmt.Sprintf("reason: %s\n", intent.Reason)
	}
	return n.send(ctx, msg)
}

func (n *WebhookNotifier) send(ctx context.Context, msg string) error {
	body, err := json.Marshal(webhookBody{Text: msg})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Add("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("webhook POST failed, status=%d", resp.StatusCode)
	}
	return nil
}
