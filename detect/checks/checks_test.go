package checks

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardenhq/warden/detect"
	"github.com/wardenhq/warden/detect/countstore"
	"github.com/wardenhq/warden/detect/keyword"
)

func enabledConfig(params map[string]float64) detect.EffectiveConfig {
	return detect.EffectiveConfig{Enabled: true, Threshold: 50, Params: params}
}

func TestShortMsg(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	c := NewShortMsg()

	res, err := c.Evaluate(ctx, &detect.Content{Text: "hi"}, enabledConfig(nil))
	assert.NoError(err)
	assert.Equal(detect.VerdictSpam, res.Verdict)
	assert.Equal(96, res.Confidence)

	res, err = c.Evaluate(ctx, &detect.Content{Text: "this is a perfectly ordinary message about dinner plans"}, enabledConfig(nil))
	assert.NoError(err)
	assert.Equal(detect.VerdictClean, res.Verdict)

	// punctuation padding doesn't dodge the length check
	res, err = c.Evaluate(ctx, &detect.Content{Text: "hi!!!!!!!!!!!!!!!!!!!!"}, enabledConfig(nil))
	assert.NoError(err)
	assert.Equal(detect.VerdictSpam, res.Verdict)
}

func TestKeyword(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	lists := map[string]*keyword.StopList{
		"scams": keyword.NewStopList("scams", []string{"crypto", "airdrop"}),
	}
	c := NewKeyword(lists)

	res, err := c.Evaluate(ctx, &detect.Content{Text: "lovely weather today"}, enabledConfig(nil))
	assert.NoError(err)
	assert.Equal(detect.VerdictClean, res.Verdict)

	res, err = c.Evaluate(ctx, &detect.Content{Text: "free CRYPTO airdrop now"}, enabledConfig(nil))
	assert.NoError(err)
	assert.Equal(detect.VerdictSpam, res.Verdict)
	assert.Equal(75, res.Confidence) // 60 base + 15 for the second hit
}

func TestSimilarity(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	c, err := NewSimilarity(16)
	require.NoError(err)

	content := &detect.Content{Text: "Buy cheap followers at spamsite dot com"}
	res, err := c.Evaluate(ctx, content, enabledConfig(nil))
	assert.NoError(err)
	assert.Equal(detect.VerdictClean, res.Verdict)

	c.Learn("BUY cheap followers!!! at spamsite... dot com")
	res, err = c.Evaluate(ctx, content, enabledConfig(nil))
	assert.NoError(err)
	assert.Equal(detect.VerdictSpam, res.Verdict)
	assert.Equal(70, res.Confidence)

	c.Learn(content.Text)
	res, err = c.Evaluate(ctx, content, enabledConfig(nil))
	assert.NoError(err)
	assert.Equal(80, res.Confidence)
}

func TestFlood(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	c := NewFlood(countstore.NewMemCountStore())
	cfg := enabledConfig(map[string]float64{"max_hourly": 3})
	content := &detect.Content{AccountID: "acct1", Text: "hello"}

	for i := 0; i < 3; i++ {
		res, err := c.Evaluate(ctx, content, cfg)
		assert.NoError(err)
		assert.Equal(detect.VerdictClean, res.Verdict)
	}
	res, err := c.Evaluate(ctx, content, cfg)
	assert.NoError(err)
	assert.Equal(detect.VerdictSpam, res.Verdict)
	assert.GreaterOrEqual(res.Confidence, 50)
}

func TestFloodDistinctCommunityFanOut(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	c := NewFlood(countstore.NewMemCountStore())
	cfg := enabledConfig(map[string]float64{
		"max_hourly":             100, // raw rate never trips
		"max_communities_hourly": 2,
	})

	// same message blasted across communities: raw count stays low per
	// community but the distinct-community counter crosses the line
	for i, com := range []string{"com-1", "com-2"} {
		res, err := c.Evaluate(ctx, &detect.Content{AccountID: "acct1", CommunityID: com, Text: "buy now"}, cfg)
		assert.NoError(err)
		assert.Equal(detect.VerdictClean, res.Verdict, "community %d", i)
	}
	res, err := c.Evaluate(ctx, &detect.Content{AccountID: "acct1", CommunityID: "com-3", Text: "buy now"}, cfg)
	assert.NoError(err)
	assert.Equal(detect.VerdictSpam, res.Verdict)
	assert.GreaterOrEqual(res.Confidence, 50)

	// repeats in an already-seen community do not raise the distinct count
	again, err := c.Evaluate(ctx, &detect.Content{AccountID: "acct1", CommunityID: "com-3", Text: "buy now"}, cfg)
	assert.NoError(err)
	assert.Equal(res.Confidence, again.Confidence)
}

func TestReputationFailsOpenWhenCapped(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode(reputationResponse{Score: 99})
	}))
	defer srv.Close()

	c := NewReputation(srv.URL, "token", 2, 100)
	cfg := enabledConfig(nil)
	content := &detect.Content{AccountID: "acct1"}

	for i := 0; i < 2; i++ {
		res, err := c.Evaluate(ctx, content, cfg)
		assert.NoError(err)
		assert.Equal(detect.VerdictSpam, res.Verdict)
		assert.Equal(99, res.Confidence)
	}

	// per-minute cap exhausted: clean, no request issued
	res, err := c.Evaluate(ctx, content, cfg)
	assert.NoError(err)
	assert.Equal(detect.VerdictClean, res.Verdict)
	assert.Equal(2, calls)
}

func TestReputationTransportErrorIsNeutral(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotImplemented)
	}))
	defer srv.Close()

	c := NewReputation(srv.URL, "token", 10, 10)
	res, err := c.Evaluate(ctx, &detect.Content{AccountID: "acct1"}, enabledConfig(nil))
	assert.Error(err)
	assert.Equal(detect.VerdictNeutral, res.Verdict)
}
