package detect

import (
	"time"
)

type Source string

const (
	SourceAutomatic Source = "automatic"
	SourceManual    Source = "manual"
)

// Decision is the aggregate outcome of one evaluation. Created once,
// immutable afterwards except for TrainingEligible, which a human reviewer
// or an accuracy correction may flip.
//
// NetConfidence and Verdict are always derived from Results by the engine
// policy; they are never set independently.
type Decision struct {
	ID          string
	MessageID   string
	AccountID   string
	CommunityID string
	CreatedAt   time.Time

	Verdict       Verdict
	NetConfidence int
	Results       []CheckResult
	Source        Source

	// EditVersion increments each time the same message is re-evaluated
	// after an edit. Strictly increasing per message.
	EditVersion int

	TrainingEligible bool
}

// SpamResults returns the subset of results that voted spam.
func (d *Decision) SpamResults() []CheckResult {
	var out []CheckResult
	for _, r := range d.Results {
		if r.Verdict == VerdictSpam {
			out = append(out, r)
		}
	}
	return out
}
