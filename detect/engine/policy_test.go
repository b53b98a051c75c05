package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wardenhq/warden/detect"
)

func spamResult(name detect.CheckName, conf int) scoredResult {
	return scoredResult{
		result:    detect.CheckResult{Check: name, Verdict: detect.VerdictSpam, Confidence: conf},
		threshold: 50,
		enforcing: true,
	}
}

func TestNetConfidence(t *testing.T) {
	assert := assert.New(t)
	p := DefaultPolicy()

	assert.Equal(0, p.NetConfidence(nil))
	assert.Equal(85, p.NetConfidence([]scoredResult{
		spamResult("a", 60),
		spamResult("b", 85),
	}))

	// below per-check threshold: non-voting
	under := spamResult("c", 40)
	assert.Equal(0, p.NetConfidence([]scoredResult{under}))

	// neutral and clean results never vote
	neutral := scoredResult{result: detect.NeutralResult("d", 0), threshold: 50, enforcing: true}
	clean := scoredResult{result: detect.CheckResult{Check: "e", Verdict: detect.VerdictClean, Confidence: 90}, threshold: 50, enforcing: true}
	assert.Equal(0, p.NetConfidence([]scoredResult{neutral, clean}))

	// non-enforcing (always-run-only) checks never vote
	shadow := spamResult("f", 99)
	shadow.enforcing = false
	assert.Equal(0, p.NetConfidence([]scoredResult{shadow}))
}

func TestClassifyOrder(t *testing.T) {
	assert := assert.New(t)
	p := Policy{AutoBanThreshold: 80, ReviewQueueThreshold: 50, MaxConfidenceVetoThreshold: 95}

	assert.Equal(ClassClean, p.Classify(0))
	assert.Equal(ClassClean, p.Classify(49))
	assert.Equal(ClassReview, p.Classify(50))
	assert.Equal(ClassReview, p.Classify(79))
	assert.Equal(ClassAutoEnforce, p.Classify(80))
	assert.Equal(ClassAutoEnforce, p.Classify(94))
	// veto outranks auto-ban
	assert.Equal(ClassReview, p.Classify(95))
	assert.Equal(ClassReview, p.Classify(100))
}

func TestVerdictDerivation(t *testing.T) {
	assert := assert.New(t)
	p := DefaultPolicy()

	assert.Equal(detect.VerdictClean, p.Verdict(0))
	assert.Equal(detect.VerdictClean, p.Verdict(49))
	assert.Equal(detect.VerdictSpam, p.Verdict(50))
	assert.Equal(detect.VerdictSpam, p.Verdict(100))
}
