package corpus

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wardenhq/warden/detect"
)

// MemSampleStore is an in-process SampleStore for tests and dev runs.
type MemSampleStore struct {
	lk      sync.Mutex
	nextID  uint
	samples []Sample
}

func NewMemSampleStore() *MemSampleStore {
	return &MemSampleStore{}
}

func (m *MemSampleStore) InsertSample(ctx context.Context, s Sample) error {
	m.lk.Lock()
	defer m.lk.Unlock()
	m.nextID++
	s.ID = m.nextID
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	m.samples = append(m.samples, s)
	return nil
}

func (m *MemSampleStore) ManualSamples(ctx context.Context, label detect.Verdict) ([]Sample, error) {
	m.lk.Lock()
	defer m.lk.Unlock()
	var out []Sample
	for _, s := range m.samples {
		if s.Source == SourceManual && s.Label == label {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *MemSampleStore) RecentAutoSamples(ctx context.Context, label detect.Verdict, n int) ([]Sample, error) {
	m.lk.Lock()
	defer m.lk.Unlock()
	var out []Sample
	for _, s := range m.samples {
		if s.Source == SourceAutomatic && s.Label == label {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (m *MemSampleStore) PruneAutoSamples(ctx context.Context, label detect.Verdict, keep int) error {
	m.lk.Lock()
	defer m.lk.Unlock()
	var auto []int
	for i, s := range m.samples {
		if s.Source == SourceAutomatic && s.Label == label {
			auto = append(auto, i)
		}
	}
	if len(auto) <= keep {
		return nil
	}
	drop := make(map[int]bool)
	for _, i := range auto[:len(auto)-keep] {
		drop[i] = true
	}
	kept := m.samples[:0]
	for i, s := range m.samples {
		if !drop[i] {
			kept = append(kept, s)
		}
	}
	m.samples = kept
	return nil
}
