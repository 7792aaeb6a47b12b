package acquisition

import (
	"time"

	"github.com/radangel/radangel/internal/spectrum"
)

// LogRecord is the summary of one flushed window. It is not modified after
// it has been handed to the sinks.
type LogRecord struct {
	Timestamp time.Time
	DeviceID  string
	RunID     string
	RealTime  float64
	LiveTime  float64
	Counts    uint64
	CPM       float64
	Spectrum  spectrum.Spectrum
}

// CPM returns counts per minute normalized by live time. A window without
// live time has no defined rate and yields 0.
func CPM(counts uint64, liveTime float64) float64 {
	if liveTime <= 0 {
		return 0
	}

	return float64(counts) / liveTime * 60
}

// Limits ends a capture once real time or the accepted event count exceeds
// the configured maximum. Zero values mean unlimited.
type Limits struct {
	MaxRealTime   time.Duration
	MaxEventCount uint64
}

// Reached reports whether either limit has been exceeded.
func (l Limits) Reached(realTime float64, totalEvents uint64) bool {
	if l.MaxRealTime > 0 && realTime > l.MaxRealTime.Seconds() {
		return true
	}

	return l.MaxEventCount > 0 && totalEvents > l.MaxEventCount
}

// Result is what a finished capture hands to the export stage.
type Result struct {
	RunID         string
	DeviceID      string
	StartedAt     time.Time
	Spectrum      spectrum.Spectrum
	RealTime      float64
	LiveTime      float64
	CountRate     float64
	TotalEvents   uint64
	Flushes       int
	Dropped       uint64
	InvalidEvents uint64
	PollErrors    uint64
}
