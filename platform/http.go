package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/wardenhq/warden/util"
)

// HTTPClient talks to a chat-platform gateway over its REST moderation API.
// Calls are rate limited client-side to stay under the gateway's quota.
type HTTPClient struct {
	host    string
	token   string
	client  *http.Client
	limiter *rate.Limiter
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient builds a gateway client. reqPerSec bounds outbound calls;
// zero disables the limiter.
func NewHTTPClient(host, token string, reqPerSec int) *HTTPClient {
	var limiter *rate.Limiter
	if reqPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(reqPerSec), 1)
	}
	return &HTTPClient{
		host:    host,
		token:   token,
		client:  util.RobustHTTPClient(),
		limiter: limiter,
	}
}

func (c *HTTPClient) post(ctx context.Context, path string, body any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("platform gateway request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("platform gateway %s: status %d", path, resp.StatusCode)
	}
	return nil
}

func (c *HTTPClient) Restrict(ctx context.Context, communityID, accountID string, kind RestrictKind, until *time.Time) error {
	body := map[string]any{
		"community_id": communityID,
		"account_id":   accountID,
		"kind":         string(kind),
	}
	if until != nil {
		body["until"] = until.UTC().Format(time.RFC3339)
	}
	return c.post(ctx, "/v1/restrict", body)
}

func (c *HTTPClient) Unrestrict(ctx context.Context, communityID, accountID string, kind RestrictKind) error {
	return c.post(ctx, "/v1/unrestrict", map[string]any{
		"community_id": communityID,
		"account_id":   accountID,
		"kind":         string(kind),
	})
}

func (c *HTTPClient) DeleteMessage(ctx context.Context, communityID, messageID string) error {
	return c.post(ctx, "/v1/messages/delete", map[string]any{
		"community_id": communityID,
		"message_id":   messageID,
	})
}

func (c *HTTPClient) SendPrivate(ctx context.Context, accountID, text string) error {
	return c.post(ctx, "/v1/messages/private", map[string]any{
		"account_id": accountID,
		"text":       text,
	})
}

func (c *HTTPClient) ReplyInCommunity(ctx context.Context, communityID, replyToMessageID, text string) error {
	body := map[string]any{
		"community_id": communityID,
		"text":         text,
	}
	if replyToMessageID != "" {
		body["reply_to"] = replyToMessageID
	}
	return c.post(ctx, "/v1/messages/send", body)
}
