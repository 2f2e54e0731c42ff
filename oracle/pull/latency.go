// Package pull holds the per-queue response-latency statistics backing
// the /stats endpoint. The periodic reconciliation source itself lives
// in package node (queue_source.go).
package pull

import (
	"sync"

	"gonum.org/v1/gonum/stat"
)

// LatencyTracker keeps the running average response time (in slots) per
// queue, per spec §4.5's "new_avg = (old_avg*n + (response_slot -
// enqueue_slot)) / (n+1)" formula, plus a bounded sample window used to
// derive mean/variance/p95 for operational visibility.
type LatencyTracker struct {
	mu      sync.RWMutex
	avg     map[string]float64
	count   map[string]uint64
	samples map[string][]float64
	window  int
}

// NewLatencyTracker creates a tracker retaining up to window most recent
// samples per queue for the richer stats surface; window <= 0 disables
// sample retention (only the running average is kept).
func NewLatencyTracker(window int) *LatencyTracker {
	return &LatencyTracker{
		avg:     make(map[string]float64),
		count:   make(map[string]uint64),
		samples: make(map[string][]float64),
		window:  window,
	}
}

// Observe folds one (enqueue_slot, response_slot) pair into the running
// average for queueKey.
func (t *LatencyTracker) Observe(queueKey string, enqueueSlot, responseSlot uint64) {
	delta := float64(responseSlot - enqueueSlot)

	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.count[queueKey]
	t.avg[queueKey] = (t.avg[queueKey]*float64(n) + delta) / float64(n+1)
	t.count[queueKey] = n + 1

	if t.window > 0 {
		s := append(t.samples[queueKey], delta)
		if len(s) > t.window {
			s = s[len(s)-t.window:]
		}
		t.samples[queueKey] = s
	}
}

// Average returns the running average response latency in slots for
// queueKey (spec §4.5's avg_response_slots).
func (t *LatencyTracker) Average(queueKey string) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.avg[queueKey]
}

// Stats summarizes mean, sample (unbiased) variance, and the 95th percentile
// of the retained sample window for queueKey.
type Stats struct {
	Mean     float64
	Variance float64
	P95      float64
	Samples  int
}

func (t *LatencyTracker) Stats(queueKey string) Stats {
	t.mu.RLock()
	samples := append([]float64(nil), t.samples[queueKey]...)
	t.mu.RUnlock()

	if len(samples) == 0 {
		return Stats{}
	}
	sorted := append([]float64(nil), samples...)
	stat.SortWeighted(sorted, nil)

	mean := stat.Mean(sorted, nil)
	variance := stat.Variance(sorted, nil)
	p95 := stat.Quantile(0.95, stat.Empirical, sorted, nil)

	return Stats{Mean: mean, Variance: variance, P95: p95, Samples: len(sorted)}
}

// AllAverages returns a snapshot of every tracked queue's running
// average, for the /stats HTTP handler.
func (t *LatencyTracker) AllAverages() map[string]float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]float64, len(t.avg))
	for k, v := range t.avg {
		out[k] = v
	}
	return out
}
