package acquisition

import "time"

// DefaultDeadTime is the RadAngel dead time per registered event, in seconds.
const DefaultDeadTime = 1e-5

// DeadTimeFactor returns the live fraction 1 - countRate*deadTime clamped to
// [0, 1], and whether clamping was needed.
func DeadTimeFactor(countRate, deadTime float64) (float64, bool) {
	f := 1 - countRate*deadTime
	switch {
	case f < 0:
		return 0, true
	case f > 1:
		return 1, true
	default:
		return f, false
	}
}

// LiveTimeIntegrator accumulates real time and dead-time corrected live
// time as running sums. Only the control loop uses it.
type LiveTimeIntegrator struct {
	deadTime float64
	interval time.Duration
	last     time.Time
	realTime float64
	liveTime float64
	clamped  uint64
}

// NewLiveTimeIntegrator returns an integrator ticking every interval.
func NewLiveTimeIntegrator(interval time.Duration, deadTime float64) *LiveTimeIntegrator {
	return &LiveTimeIntegrator{interval: interval, deadTime: deadTime}
}

// Start resets both clocks at now.
func (l *LiveTimeIntegrator) Start(now time.Time) {
	l.last = now
	l.realTime = 0
	l.liveTime = 0
	l.clamped = 0
}

// Due reports whether a micro interval has elapsed since the last tick.
func (l *LiveTimeIntegrator) Due(now time.Time) bool {
	return now.Sub(l.last) >= l.interval
}

// Tick advances real time by the wall time elapsed since the previous tick
// and live time by that amount scaled with the dead-time factor for
// countRate. It reports whether the factor had to be clamped.
func (l *LiveTimeIntegrator) Tick(now time.Time, countRate float64) bool {
	elapsed := now.Sub(l.last).Seconds()
	if elapsed <= 0 {
		if elapsed < 0 {
			l.last = now
		}
		return false
	}
	l.last = now

	factor, clamped := DeadTimeFactor(countRate, l.deadTime)
	if clamped {
		l.clamped++
	}

	l.realTime += elapsed
	l.liveTime += elapsed * factor

	return clamped
}

// RealTime returns the accumulated real time in seconds.
func (l *LiveTimeIntegrator) RealTime() float64 {
	return l.realTime
}

// LiveTime returns the accumulated live time in seconds.
func (l *LiveTimeIntegrator) LiveTime() float64 {
	return l.liveTime
}

// Clamped returns how many ticks needed a clamped dead-time factor.
func (l *LiveTimeIntegrator) Clamped() uint64 {
	return l.clamped
}
