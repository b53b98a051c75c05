package detect

import (
	"context"
	"fmt"
	"time"
)

// Name of a single detector. The set of checks is closed: every check the
// engine can run is registered explicitly at startup, never discovered.
type CheckName string

const (
	CheckShortMsg   CheckName = "shortmsg"
	CheckKeyword    CheckName = "keyword"
	CheckSimilarity CheckName = "similarity"
	CheckFlood      CheckName = "flood"
	CheckWordFreq   CheckName = "wordfreq"
	CheckReputation CheckName = "reputation"
)

type Verdict string

const (
	VerdictSpam  Verdict = "spam"
	VerdictClean Verdict = "clean"
	// VerdictNeutral marks a check that errored or timed out. Neutral
	// results are recorded but never vote.
	VerdictNeutral Verdict = "neutral"
)

// CheckResult is the immutable output of one check over one piece of
// content. Confidence is 0-100.
type CheckResult struct {
	Check      CheckName     `json:"check"`
	Verdict    Verdict       `json:"verdict"`
	Confidence int           `json:"confidence"`
	Elapsed    time.Duration `json:"elapsed"`
}

// NeutralResult is what a failed or timed-out check degrades to.
func NeutralResult(name CheckName, elapsed time.Duration) CheckResult {
	return CheckResult{Check: name, Verdict: VerdictNeutral, Confidence: 0, Elapsed: elapsed}
}

// EffectiveConfig is the resolved per-check configuration for one scope.
// See ScopeResolver for the global/override merge semantics.
type EffectiveConfig struct {
	Enabled bool
	// UseGlobal is only meaningful on stored community overrides; a resolved
	// config never carries it set.
	UseGlobal bool
	// Threshold is the per-check confidence cutoff; results below it are
	// reported as clean by well-behaved checks.
	Threshold int
	// AlwaysRun checks execute even when disabled, feeding the accuracy
	// view, but do not contribute to the enforcement dimension.
	AlwaysRun bool
	// Params holds check-specific numeric tunables (lengths, rates,
	// timeouts in seconds).
	Params map[string]float64
}

// Param returns a named tunable or the given default when unset.
func (c EffectiveConfig) Param(name string, def float64) float64 {
	if v, ok := c.Params[name]; ok {
		return v
	}
	return def
}

// Check is the capability the engine depends on. Implementations are opaque
// scorers: the engine never inspects how a verdict was produced.
type Check interface {
	Name() CheckName
	Evaluate(ctx context.Context, content *Content, cfg EffectiveConfig) (CheckResult, error)
}

// Registry is the fixed set of checks known to an engine instance.
type Registry struct {
	checks []Check
	byName map[CheckName]Check
}

func NewRegistry(checks ...Check) (*Registry, error) {
	r := &Registry{byName: make(map[CheckName]Check, len(checks))}
	for _, c := range checks {
		if _, dupe := r.byName[c.Name()]; dupe {
			return nil, fmt.Errorf("duplicate check registration: %s", c.Name())
		}
		r.byName[c.Name()] = c
		r.checks = append(r.checks, c)
	}
	return r, nil
}

// All returns checks in registration order.
func (r *Registry) All() []Check {
	return r.checks
}

func (r *Registry) Get(name CheckName) (Check, bool) {
	c, ok := r.byName[name]
	return c, ok
}
