// Package corpus maintains the bounded set of labeled examples that
// statistical checks retrain from. Decisions flow in; checks pull samples
// out on their own refresh cadence.
package corpus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wardenhq/warden/detect"
)

type SampleSource string

const (
	SourceManual    SampleSource = "manual"
	SourceAutomatic SampleSource = "automatic"
)

// Sample is one labeled training example.
type Sample struct {
	ID         uint
	Label      detect.Verdict
	Source     SampleSource
	Text       string
	DecisionID string
	CreatedAt  time.Time
}

// SampleStore is the persistence surface the feed needs. Implemented by the
// primary store.
type SampleStore interface {
	InsertSample(ctx context.Context, s Sample) error
	// ManualSamples returns every human-labeled sample for a verdict.
	ManualSamples(ctx context.Context, label detect.Verdict) ([]Sample, error)
	// RecentAutoSamples returns the newest n automatically labeled samples.
	RecentAutoSamples(ctx context.Context, label detect.Verdict, n int) ([]Sample, error)
	// PruneAutoSamples deletes automatic samples beyond the newest keep.
	PruneAutoSamples(ctx context.Context, label detect.Verdict, keep int) error
}

var ErrNotEligible = errors.New("decision is not training-eligible")

// Feed accepts confirmed decisions and hands bounded sample sets to
// statistical checks.
type Feed struct {
	Logger *slog.Logger
	Store  SampleStore
	// MaxAutoSamples bounds retained automatic samples per label. Manual
	// samples are never pruned; human-verified signal is the scarce input.
	MaxAutoSamples int
}

func NewFeed(logger *slog.Logger, store SampleStore, maxAuto int) *Feed {
	if maxAuto <= 0 {
		maxAuto = 10000
	}
	return &Feed{Logger: logger, Store: store, MaxAutoSamples: maxAuto}
}

// Record stores a decision's text as a labeled sample. Only neutral-free,
// training-eligible decisions are accepted; everything else is rejected
// with ErrNotEligible so callers can distinguish skip from failure.
func (f *Feed) Record(ctx context.Context, d *detect.Decision, text string) error {
	if !d.TrainingEligible {
		return ErrNotEligible
	}
	if d.Verdict != detect.VerdictSpam && d.Verdict != detect.VerdictClean {
		return ErrNotEligible
	}
	src := SourceAutomatic
	if d.Source == detect.SourceManual {
		src = SourceManual
	}
	if err := f.Store.InsertSample(ctx, Sample{
		Label:      d.Verdict,
		Source:     src,
		Text:       text,
		DecisionID: d.ID,
	}); err != nil {
		return fmt.Errorf("recording corpus sample: %w", err)
	}
	if src == SourceAutomatic {
		if err := f.Store.PruneAutoSamples(ctx, d.Verdict, f.MaxAutoSamples); err != nil {
			// retention is advisory; don't fail the write path over it
			f.Logger.Warn("corpus prune failed", "label", d.Verdict, "err", err)
		}
	}
	return nil
}

// Samples returns all manual samples plus the most recent automatic ones
// for a label.
func (f *Feed) Samples(ctx context.Context, label detect.Verdict) ([]Sample, error) {
	manual, err := f.Store.ManualSamples(ctx, label)
	if err != nil {
		return nil, fmt.Errorf("loading manual samples: %w", err)
	}
	auto, err := f.Store.RecentAutoSamples(ctx, label, f.MaxAutoSamples)
	if err != nil {
		return nil, fmt.Errorf("loading automatic samples: %w", err)
	}
	return append(manual, auto...), nil
}
