package engine

import (
	"github.com/wardenhq/warden/detect"
)

type Classification string

const (
	// ClassClean: below all thresholds, logged only.
	ClassClean Classification = "clean"
	// ClassReview: routed to human review, no enforcement.
	ClassReview Classification = "review"
	// ClassAutoEnforce: confident enough to act without a human.
	ClassAutoEnforce Classification = "auto-enforce"
)

// Policy holds the three decision thresholds. Evaluation order is veto,
// auto-ban, review; see Classify.
type Policy struct {
	// AutoBanThreshold triggers automatic enforcement.
	AutoBanThreshold int
	// ReviewQueueThreshold routes to human review without enforcement.
	ReviewQueueThreshold int
	// MaxConfidenceVetoThreshold is a hard veto: confidence at or above it
	// must never auto-act alone (single weak-signal checks like very short
	// messages report in this band), so it downgrades to review.
	MaxConfidenceVetoThreshold int
}

func DefaultPolicy() Policy {
	return Policy{
		AutoBanThreshold:           80,
		ReviewQueueThreshold:       50,
		MaxConfidenceVetoThreshold: 95,
	}
}

// scoredResult pairs a check result with the resolved config it ran under.
// enforcing is false for checks that only ran because of AlwaysRun; those
// feed the accuracy view but never the enforcement dimension.
type scoredResult struct {
	result    detect.CheckResult
	threshold int
	enforcing bool
}

// NetConfidence aggregates individual results into the decision's net
// confidence: the maximum confidence among spam verdicts from enforcing
// checks that cleared their own per-check threshold. Deterministic for a
// given input set.
func (p Policy) NetConfidence(scored []scoredResult) int {
	net := 0
	for _, s := range scored {
		if !s.enforcing {
			continue
		}
		if s.result.Verdict != detect.VerdictSpam {
			continue
		}
		if s.result.Confidence < s.threshold {
			continue
		}
		if s.result.Confidence > net {
			net = s.result.Confidence
		}
	}
	if net > 100 {
		net = 100
	}
	return net
}

// Classify maps net confidence to an action class. The veto threshold is
// evaluated first and always wins; then auto-ban, then review.
func (p Policy) Classify(net int) Classification {
	if p.MaxConfidenceVetoThreshold > 0 && net >= p.MaxConfidenceVetoThreshold {
		return ClassReview
	}
	if p.AutoBanThreshold > 0 && net >= p.AutoBanThreshold {
		return ClassAutoEnforce
	}
	if p.ReviewQueueThreshold > 0 && net >= p.ReviewQueueThreshold {
		return ClassReview
	}
	return ClassClean
}

// Verdict derives the recorded verdict from net confidence: anything at
// least review-worthy is spam.
func (p Policy) Verdict(net int) detect.Verdict {
	if p.ReviewQueueThreshold > 0 && net >= p.ReviewQueueThreshold {
		return detect.VerdictSpam
	}
	return detect.VerdictClean
}
