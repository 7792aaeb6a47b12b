package acquisition

import (
	"sync/atomic"
	"time"
)

// RateTracker estimates the event rate over a short period. RecordEvent is
// safe to call from the ingestion goroutine; Start, Due and Tick belong to
// the control loop.
type RateTracker struct {
	events      atomic.Uint64
	period      time.Duration
	periodStart time.Time
	rate        float64
}

// NewRateTracker returns a tracker recomputing the rate every period.
func NewRateTracker(period time.Duration) *RateTracker {
	return &RateTracker{period: period}
}

// Start opens the first period at now.
func (r *RateTracker) Start(now time.Time) {
	r.events.Store(0)
	r.periodStart = now
	r.rate = 0
}

// RecordEvent counts one event in the current period.
func (r *RateTracker) RecordEvent() {
	r.events.Add(1)
}

// Due reports whether the current period has elapsed.
func (r *RateTracker) Due(now time.Time) bool {
	return now.Sub(r.periodStart) >= r.period
}

// Tick closes the current period and returns the new rate in events per
// second. A non-positive elapsed time keeps the previous rate and leaves
// the period open.
func (r *RateTracker) Tick(now time.Time) float64 {
	elapsed := now.Sub(r.periodStart).Seconds()
	if elapsed <= 0 {
		return r.rate
	}

	n := r.events.Swap(0)
	r.rate = float64(n) / elapsed
	r.periodStart = now

	return r.rate
}

// Rate returns the most recently computed rate.
func (r *RateTracker) Rate() float64 {
	return r.rate
}
