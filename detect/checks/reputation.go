package checks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/RussellLuo/slidingwindow"

	"github.com/wardenhq/warden/detect"
	"github.com/wardenhq/warden/util"
)

func windowFunc() (slidingwindow.Window, slidingwindow.StopFunc) {
	return slidingwindow.NewLocalWindow()
}

// Reputation queries an external account-reputation service. The service
// enforces daily and per-minute quotas; when a local sliding-window cap is
// exhausted the check fails open (clean) instead of blocking the pipeline.
type Reputation struct {
	Host  string
	Token string

	client    *http.Client
	perMinute *slidingwindow.Limiter
	perDay    *slidingwindow.Limiter
}

func NewReputation(host, token string, perMinuteCap, dailyCap int64) *Reputation {
	perMin, _ := slidingwindow.NewLimiter(time.Minute, perMinuteCap, windowFunc)
	perDay, _ := slidingwindow.NewLimiter(24*time.Hour, dailyCap, windowFunc)
	return &Reputation{
		Host:      host,
		Token:     token,
		client:    util.RobustHTTPClient(),
		perMinute: perMin,
		perDay:    perDay,
	}
}

func (c *Reputation) Name() detect.CheckName { return detect.CheckReputation }

type reputationResponse struct {
	// Score is the service's spam likelihood, 0-100.
	Score int `json:"score"`
}

func (c *Reputation) Evaluate(ctx context.Context, content *detect.Content, cfg detect.EffectiveConfig) (detect.CheckResult, error) {
	start := time.Now()

	// quota exhausted: fail open, don't block the pipeline
	if !c.perMinute.Allow() || !c.perDay.Allow() {
		return detect.CheckResult{
			Check:   c.Name(),
			Verdict: detect.VerdictClean,
			Elapsed: time.Since(start),
		}, nil
	}

	q := url.Values{}
	q.Set("account", content.AccountID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Host+"/v1/reputation?"+q.Encode(), nil)
	if err != nil {
		return detect.NeutralResult(c.Name(), time.Since(start)), err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.client.Do(req)
	if err != nil {
		return detect.NeutralResult(c.Name(), time.Since(start)), err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return detect.NeutralResult(c.Name(), time.Since(start)), fmt.Errorf("reputation service status %d", resp.StatusCode)
	}

	var out reputationResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return detect.NeutralResult(c.Name(), time.Since(start)), fmt.Errorf("decoding reputation response: %w", err)
	}

	res := detect.CheckResult{Check: c.Name(), Verdict: detect.VerdictClean, Elapsed: time.Since(start)}
	if out.Score >= cfg.Threshold && cfg.Threshold > 0 {
		res.Verdict = detect.VerdictSpam
		res.Confidence = out.Score
	}
	return res, nil
}
