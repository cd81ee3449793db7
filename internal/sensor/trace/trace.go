// Package trace times named code sections with scoped start/end handles.
package trace

import (
	"sort"
	"sync"
	"time"
)

// WindowSize is the number of samples kept per section.
const WindowSize = 100

// Tracer opens a timed section. The returned func closes it.
type Tracer interface {
	Start(section string) (end func())
}

type nop struct{}

func (nop) Start(string) func() { return func() {} }

// Nop is a Tracer that records nothing.
var Nop Tracer = nop{}

// LatencyWindow is a ring of the most recent samples, in milliseconds.
type LatencyWindow struct {
	Samples [WindowSize]float64
	Index   int
	Count   int
}

// AddSample records one sample, overwriting the oldest once full.
func (w *LatencyWindow) AddSample(ms float64) {
	w.Samples[w.Index] = ms
	w.Index = (w.Index + 1) % len(w.Samples)
	if w.Count < len(w.Samples) {
		w.Count++
	}
}

// GetStats returns mean, p95 and max. An empty window returns zeros.
func (w *LatencyWindow) GetStats() (mean, p95, max float64) {
	if w.Count == 0 {
		return 0, 0, 0
	}
	sorted := make([]float64, w.Count)
	copy(sorted, w.Samples[:w.Count])
	sort.Float64s(sorted)

	var sum float64
	for _, s := range sorted {
		sum += s
	}
	idx := int(float64(len(sorted))*0.95+0.5) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sum / float64(len(sorted)), sorted[idx], sorted[len(sorted)-1]
}

// SectionStats summarizes one section.
type SectionStats struct {
	Calls  uint64  `json:"calls"`
	MeanMS float64 `json:"mean_ms"`
	P95MS  float64 `json:"p95_ms"`
	MaxMS  float64 `json:"max_ms"`
}

// Recorder is a Tracer that keeps a LatencyWindow per section.
// It is safe for concurrent use, so one recorder may serve several streams.
type Recorder struct {
	mu       sync.Mutex
	sections map[string]*section
	now      func() time.Time
}

type section struct {
	calls  uint64
	window LatencyWindow
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		sections: make(map[string]*section),
		now:      time.Now,
	}
}

// Start implements Tracer.
func (r *Recorder) Start(name string) func() {
	begin := r.now()
	return func() {
		elapsed := r.now().Sub(begin)
		r.mu.Lock()
		defer r.mu.Unlock()
		s, ok := r.sections[name]
		if !ok {
			s = &section{}
			r.sections[name] = s
		}
		s.calls++
		s.window.AddSample(float64(elapsed) / float64(time.Millisecond))
	}
}

// Snapshot returns the current stats of every section seen so far.
func (r *Recorder) Snapshot() map[string]SectionStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]SectionStats, len(r.sections))
	for name, s := range r.sections {
		mean, p95, max := s.window.GetStats()
		out[name] = SectionStats{Calls: s.calls, MeanMS: mean, P95MS: p95, MaxMS: max}
	}
	return out
}
