// Package progress aggregates heterogeneous per-invocation progress into one
// monotonically non-decreasing job percentage. Each pipeline stage owns a
// work-weight (its share of total job duration); stage-local fractions are
// projected into the global percentage through that weight.
package progress

import (
	"math"
	"sync"
)

// Default work-weights: segment extraction dominates a typical job, the
// final concatenation/encode takes the rest.
const (
	ExtractWeight = 0.7
	ConcatWeight  = 0.3
)

// The published percentage is capped below 100 until the output has been
// verified; process exit alone never yields "done".
const preVerifyCap = 99

// Tracker accumulates weighted progress for one job. Each job owns an
// independent instance; methods are safe for concurrent use.
type Tracker struct {
	mu            sync.Mutex
	done          float64 // accumulated weight of completed stages
	currentWeight float64 // weight of the active stage, 0 when idle
	currentFrac   float64 // stage-local progress of the active stage
	last          int     // last published percentage
	verified      bool

	// notify, when set, receives each newly published percentage. Invoked
	// while holding the tracker lock; keep callbacks cheap.
	notify func(percent int)
}

// NewTracker returns a tracker at 0%.
func NewTracker() *Tracker {
	return &Tracker{}
}

// OnPublish registers a callback for newly published percentages.
func (t *Tracker) OnPublish(fn func(percent int)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.notify = fn
}

// Begin starts a stage holding the given share of total weighted work.
// Any previously active stage is considered complete.
func (t *Tracker) Begin(weight float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done += t.currentWeight
	t.currentWeight = weight
	t.currentFrac = 0
}

// Update reports stage-local progress in [0,1] and publishes the projected
// global percentage when it is strictly greater than the last published one.
func (t *Tracker) Update(frac float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	if frac > t.currentFrac {
		t.currentFrac = frac
	}
	t.publishLocked()
}

// Complete marks the active stage finished.
func (t *Tracker) Complete() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done += t.currentWeight
	t.currentWeight = 0
	t.currentFrac = 0
	t.publishLocked()
}

// MarkVerified lifts the pre-verification cap and publishes 100. Called only
// after the output file has been verified on disk.
func (t *Tracker) MarkVerified() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.verified = true
	t.done = 1
	t.currentWeight = 0
	t.currentFrac = 0
	t.publishLocked()
}

// Percent returns the last published percentage.
func (t *Tracker) Percent() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

func (t *Tracker) publishLocked() {
	work := t.done + t.currentFrac*t.currentWeight
	pct := int(math.Round(work * 100))
	if !t.verified && pct > preVerifyCap {
		pct = preVerifyCap
	}
	if t.verified && pct > 100 {
		pct = 100
	}
	if pct <= t.last {
		return
	}
	t.last = pct
	if t.notify != nil {
		t.notify(pct)
	}
}

// SplitWeight divides a stage's weight across sub-invocations proportional
// to their durations, so e.g. extracting many segments of different lengths
// still advances the bar smoothly.
func SplitWeight(total float64, durations []float64) []float64 {
	weights := make([]float64, len(durations))
	var sum float64
	for _, d := range durations {
		sum += d
	}
	if sum <= 0 {
		// Degenerate input: split evenly.
		for i := range weights {
			weights[i] = total / float64(len(durations))
		}
		return weights
	}
	for i, d := range durations {
		weights[i] = total * d / sum
	}
	return weights
}
