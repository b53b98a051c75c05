// Package checks holds the built-in detector implementations. Each one is
// an opaque scorer behind the detect.Check interface; the engine never
// depends on a specific check.
package checks

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/wardenhq/warden/detect"
	"github.com/wardenhq/warden/detect/keyword"
)

// ShortMsg flags very short messages. Short drive-by messages ("hi", a bare
// link) are a common first move for spam accounts, but the signal is far too
// weak to act on alone, so deployments point the veto threshold at it.
type ShortMsg struct{}

func NewShortMsg() *ShortMsg { return &ShortMsg{} }

func (c *ShortMsg) Name() detect.CheckName { return detect.CheckShortMsg }

func (c *ShortMsg) Evaluate(ctx context.Context, content *detect.Content, cfg detect.EffectiveConfig) (detect.CheckResult, error) {
	start := time.Now()
	minLen := int(cfg.Param("min_len", 12))
	confidence := int(cfg.Param("confidence", 96))

	bare := keyword.Slugify(content.Text)
	verdict := detect.VerdictClean
	score := 0
	if utf8.RuneCountInString(bare) < minLen {
		verdict = detect.VerdictSpam
		score = confidence
	}
	return detect.CheckResult{
		Check:      c.Name(),
		Verdict:    verdict,
		Confidence: score,
		Elapsed:    time.Since(start),
	}, nil
}
