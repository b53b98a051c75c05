package checks

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spaolacci/murmur3"

	"github.com/wardenhq/warden/detect"
	"github.com/wardenhq/warden/detect/keyword"
)

// Similarity flags near-duplicates of recently confirmed spam. Messages are
// collapsed to a slug and hashed; known spam hashes live in a bounded LRU
// refreshed by callers (typically from the training corpus or confirmed
// decisions). Repeat sightings raise confidence.
type Similarity struct {
	seen *lru.Cache[uint64, int]
}

func NewSimilarity(size int) (*Similarity, error) {
	if size <= 0 {
		size = 4096
	}
	cache, err := lru.New[uint64, int](size)
	if err != nil {
		return nil, fmt.Errorf("initializing similarity cache: %w", err)
	}
	return &Similarity{seen: cache}, nil
}

func contentHash(text string) uint64 {
	return murmur3.Sum64([]byte(keyword.Slugify(text)))
}

// Learn records a confirmed spam message so future near-duplicates match.
func (c *Similarity) Learn(text string) {
	h := contentHash(text)
	count, _ := c.seen.Get(h)
	c.seen.Add(h, count+1)
}

func (c *Similarity) Name() detect.CheckName { return detect.CheckSimilarity }

func (c *Similarity) Evaluate(ctx context.Context, content *detect.Content, cfg detect.EffectiveConfig) (detect.CheckResult, error) {
	start := time.Now()
	base := int(cfg.Param("base_confidence", 70))
	perRepeat := int(cfg.Param("per_repeat_bonus", 10))

	res := detect.CheckResult{Check: c.Name(), Verdict: detect.VerdictClean}
	if count, ok := c.seen.Get(contentHash(content.Text)); ok && count > 0 {
		score := base + (count-1)*perRepeat
		if score > 100 {
			score = 100
		}
		res.Verdict = detect.VerdictSpam
		res.Confidence = score
	}
	res.Elapsed = time.Since(start)
	return res, nil
}
