package checks

import (
	"context"
	"time"

	"github.com/wardenhq/warden/detect"
	"github.com/wardenhq/warden/detect/keyword"
)

// Keyword matches message tokens against configured stoplists. Confidence
// scales with the fraction of banned tokens in the message, floored at the
// per-hit base so a single slur still registers.
type Keyword struct {
	Lists map[string]*keyword.StopList
}

func NewKeyword(lists map[string]*keyword.StopList) *Keyword {
	return &Keyword{Lists: lists}
}

func (c *Keyword) Name() detect.CheckName { return detect.CheckKeyword }

func (c *Keyword) Evaluate(ctx context.Context, content *detect.Content, cfg detect.EffectiveConfig) (detect.CheckResult, error) {
	start := time.Now()
	base := int(cfg.Param("hit_confidence", 60))
	perHit := int(cfg.Param("per_hit_bonus", 15))

	tokens := keyword.TokenizeText(content.Text)
	hits := 0
	for _, tok := range tokens {
		for _, list := range c.Lists {
			if list.Contains(tok) {
				hits++
				break
			}
		}
	}

	res := detect.CheckResult{Check: c.Name(), Verdict: detect.VerdictClean}
	if hits > 0 {
		score := base + (hits-1)*perHit
		if score > 100 {
			score = 100
		}
		res.Verdict = detect.VerdictSpam
		res.Confidence = score
	}
	res.Elapsed = time.Since(start)
	return res, nil
}
