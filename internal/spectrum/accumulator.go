package spectrum

import "sync"

// Accumulator counts events into the currently open window. Increment is
// called from the ingestion goroutine; SnapshotAndReset and Seal from the
// control loop. Both sides serialize on mu, so every accepted event lands
// in exactly one window.
type Accumulator struct {
	mu      sync.Mutex
	window  *Spectrum
	count   uint64
	total   uint64
	dropped uint64
	sealed  bool
}

// NewAccumulator returns an accumulator with an empty open window.
func NewAccumulator() *Accumulator {
	return &Accumulator{window: new(Spectrum)}
}

// Increment adds one event to the open window. It returns false when the
// channel is out of range or the accumulator has been sealed.
func (a *Accumulator) Increment(ch Channel) bool {
	if !ch.Valid() {
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.sealed {
		a.dropped++
		return false
	}

	a.window[ch]++
	a.count++
	a.total++

	return true
}

// SnapshotAndReset swaps the open window for an empty one and returns the
// old window with its event count.
func (a *Accumulator) SnapshotAndReset() (Spectrum, uint64) {
	fresh := new(Spectrum)

	a.mu.Lock()
	old, n := a.window, a.count
	a.window, a.count = fresh, 0
	a.mu.Unlock()

	return *old, n
}

// Seal takes the final snapshot and rejects every later increment. Calling
// Seal again returns an empty window.
func (a *Accumulator) Seal() (Spectrum, uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	old, n := a.window, a.count
	a.window, a.count = new(Spectrum), 0
	a.sealed = true

	return *old, n
}

// Total returns the number of events accepted since creation.
func (a *Accumulator) Total() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.total
}

// Dropped returns the number of events rejected after sealing.
func (a *Accumulator) Dropped() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.dropped
}

// Sealed reports whether Seal has been called.
func (a *Accumulator) Sealed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.sealed
}
