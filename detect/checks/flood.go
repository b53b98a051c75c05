package checks

import (
	"context"
	"time"

	"github.com/wardenhq/warden/detect"
	"github.com/wardenhq/warden/detect/countstore"
)

// Flood scores message velocity per account. Every evaluation increments
// the account's hourly counter; the verdict reflects how far past the
// configured rate the account is. A second signal tracks how many distinct
// communities the account messaged this hour, catching cross-posting
// campaigns that stay under the raw rate in any single community.
type Flood struct {
	Counters countstore.CountStore
}

func NewFlood(counters countstore.CountStore) *Flood {
	return &Flood{Counters: counters}
}

func (c *Flood) Name() detect.CheckName { return detect.CheckFlood }

func (c *Flood) Evaluate(ctx context.Context, content *detect.Content, cfg detect.EffectiveConfig) (detect.CheckResult, error) {
	start := time.Now()
	maxHourly := int(cfg.Param("max_hourly", 30))
	maxCommunities := int(cfg.Param("max_communities_hourly", 10))
	perExtra := cfg.Param("per_extra_bonus", 5)

	if err := c.Counters.Increment(ctx, "msg", content.AccountID); err != nil {
		return detect.NeutralResult(c.Name(), time.Since(start)), err
	}
	count, err := c.Counters.GetCount(ctx, "msg", content.AccountID, countstore.PeriodHour)
	if err != nil {
		return detect.NeutralResult(c.Name(), time.Since(start)), err
	}

	distinct := 0
	if content.CommunityID != "" {
		if err := c.Counters.IncrementDistinct(ctx, "communities", content.AccountID, content.CommunityID); err != nil {
			return detect.NeutralResult(c.Name(), time.Since(start)), err
		}
		distinct, err = c.Counters.GetCountDistinct(ctx, "communities", content.AccountID, countstore.PeriodHour)
		if err != nil {
			return detect.NeutralResult(c.Name(), time.Since(start)), err
		}
	}

	overRate := count - maxHourly
	if fanOut := distinct - maxCommunities; fanOut > overRate {
		overRate = fanOut
	}

	res := detect.CheckResult{Check: c.Name(), Verdict: detect.VerdictClean}
	if overRate > 0 {
		score := 50 + int(float64(overRate)*perExtra)
		if score > 100 {
			score = 100
		}
		res.Verdict = detect.VerdictSpam
		res.Confidence = score
	}
	res.Elapsed = time.Since(start)
	return res, nil
}
