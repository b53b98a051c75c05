package checks

import (
	"context"
	"sync"
	"time"

	"github.com/wardenhq/warden/detect"
	"github.com/wardenhq/warden/detect/corpus"
	"github.com/wardenhq/warden/detect/keyword"
)

// WordFreq is a token-frequency scorer trained from the corpus feed. It
// pulls fresh samples on its own cadence rather than being pushed to, so a
// slow retrain never sits on the evaluation path.
type WordFreq struct {
	Feed    *corpus.Feed
	Refresh time.Duration

	lk          sync.RWMutex
	spamCounts  map[string]int
	cleanCounts map[string]int
	spamTotal   int
	cleanTotal  int
	lastRefresh time.Time
}

func NewWordFreq(feed *corpus.Feed, refresh time.Duration) *WordFreq {
	if refresh <= 0 {
		refresh = 15 * time.Minute
	}
	return &WordFreq{
		Feed:        feed,
		Refresh:     refresh,
		spamCounts:  make(map[string]int),
		cleanCounts: make(map[string]int),
	}
}

func (c *WordFreq) Name() detect.CheckName { return detect.CheckWordFreq }

func (c *WordFreq) maybeRefresh(ctx context.Context) error {
	c.lk.RLock()
	fresh := time.Since(c.lastRefresh) < c.Refresh
	c.lk.RUnlock()
	if fresh {
		return nil
	}

	spam, err := c.Feed.Samples(ctx, detect.VerdictSpam)
	if err != nil {
		return err
	}
	clean, err := c.Feed.Samples(ctx, detect.VerdictClean)
	if err != nil {
		return err
	}

	spamCounts := make(map[string]int)
	cleanCounts := make(map[string]int)
	spamTotal, cleanTotal := 0, 0
	for _, s := range spam {
		for _, tok := range keyword.TokenizeText(s.Text) {
			spamCounts[tok]++
			spamTotal++
		}
	}
	for _, s := range clean {
		for _, tok := range keyword.TokenizeText(s.Text) {
			cleanCounts[tok]++
			cleanTotal++
		}
	}

	c.lk.Lock()
	c.spamCounts = spamCounts
	c.cleanCounts = cleanCounts
	c.spamTotal = spamTotal
	c.cleanTotal = cleanTotal
	c.lastRefresh = time.Now()
	c.lk.Unlock()
	return nil
}

// tokenSpamProb estimates P(spam|token) with add-one smoothing.
func (c *WordFreq) tokenSpamProb(tok string) float64 {
	spam := float64(c.spamCounts[tok]+1) / float64(c.spamTotal+2)
	clean := float64(c.cleanCounts[tok]+1) / float64(c.cleanTotal+2)
	return spam / (spam + clean)
}

func (c *WordFreq) Evaluate(ctx context.Context, content *detect.Content, cfg detect.EffectiveConfig) (detect.CheckResult, error) {
	start := time.Now()
	minTokens := int(cfg.Param("min_tokens", 3))
	spamCutoff := cfg.Param("spam_cutoff", 0.8)

	if err := c.maybeRefresh(ctx); err != nil {
		return detect.NeutralResult(c.Name(), time.Since(start)), err
	}

	tokens := keyword.TokenizeText(content.Text)
	res := detect.CheckResult{Check: c.Name(), Verdict: detect.VerdictClean}

	c.lk.RLock()
	trained := c.spamTotal > 0 && c.cleanTotal > 0
	var sum float64
	for _, tok := range tokens {
		sum += c.tokenSpamProb(tok)
	}
	c.lk.RUnlock()

	// untrained or too-short input: abstain rather than guess
	if !trained || len(tokens) < minTokens {
		res.Elapsed = time.Since(start)
		return res, nil
	}

	mean := sum / float64(len(tokens))
	if mean >= spamCutoff {
		res.Verdict = detect.VerdictSpam
		res.Confidence = int(mean * 100)
		if res.Confidence > 100 {
			res.Confidence = 100
		}
	}
	res.Elapsed = time.Since(start)
	return res, nil
}
