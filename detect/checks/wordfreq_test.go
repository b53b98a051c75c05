package checks

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/detect"
	"github.com/wardenhq/warden/detect/corpus"
)

func trainedFeed(t *testing.T) *corpus.Feed {
	t.Helper()
	ctx := context.Background()
	feed := corpus.NewFeed(slog.Default(), corpus.NewMemSampleStore(), 1000)

	spamTexts := []string{
		"free crypto airdrop claim now",
		"claim your free crypto bonus",
		"crypto giveaway claim airdrop today",
	}
	cleanTexts := []string{
		"anyone up for dinner tonight",
		"the meeting moved to thursday",
		"great game last night everyone",
	}
	for i, text := range spamTexts {
		d := &detect.Decision{ID: fmt.Sprintf("s%d", i), Verdict: detect.VerdictSpam, Source: detect.SourceManual, TrainingEligible: true}
		require.NoError(t, feed.Record(ctx, d, text))
	}
	for i, text := range cleanTexts {
		d := &detect.Decision{ID: fmt.Sprintf("c%d", i), Verdict: detect.VerdictClean, Source: detect.SourceManual, TrainingEligible: true}
		require.NoError(t, feed.Record(ctx, d, text))
	}
	return feed
}

func TestWordFreqScoring(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	c := NewWordFreq(trainedFeed(t), time.Hour)
	cfg := enabledConfig(map[string]float64{"spam_cutoff": 0.7})

	res, err := c.Evaluate(ctx, &detect.Content{Text: "claim free crypto airdrop"}, cfg)
	assert.NoError(err)
	assert.Equal(detect.VerdictSpam, res.Verdict)
	assert.GreaterOrEqual(res.Confidence, 70)
	assert.LessOrEqual(res.Confidence, 100)

	res, err = c.Evaluate(ctx, &detect.Content{Text: "see you at dinner tonight then"}, cfg)
	assert.NoError(err)
	assert.Equal(detect.VerdictClean, res.Verdict)
}

func TestWordFreqAbstains(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	// untrained: no samples at all
	empty := corpus.NewFeed(slog.Default(), corpus.NewMemSampleStore(), 1000)
	c := NewWordFreq(empty, time.Hour)
	res, err := c.Evaluate(ctx, &detect.Content{Text: "free crypto airdrop claim now"}, enabledConfig(nil))
	assert.NoError(err)
	assert.Equal(detect.VerdictClean, res.Verdict)
	assert.Equal(0, res.Confidence)

	// trained but input too short to score
	c = NewWordFreq(trainedFeed(t), time.Hour)
	res, err = c.Evaluate(ctx, &detect.Content{Text: "crypto"}, enabledConfig(nil))
	assert.NoError(err)
	assert.Equal(detect.VerdictClean, res.Verdict)
}
