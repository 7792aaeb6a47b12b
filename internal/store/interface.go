package store

import (
	"time"

	"github.com/radangel/radangel/internal/acquisition"
)

// Recorder is a capture sink persisting flushed windows
type Recorder interface {
	acquisition.Sink
	Close() error
}

// Repository defines the interface for spectrum data storage
type Repository interface {
	Record(rec *SpectrumRecord) error
	Close() error
}

// SpectrumRecord is one stored window
type SpectrumRecord struct {
	DeviceID  string
	RunID     string
	Timestamp time.Time
	RealTime  float64
	LiveTime  float64
	Counts    uint64
	CPM       float64
	Channels  []uint64
}

// FromLogRecord copies rec into a SpectrumRecord
func FromLogRecord(rec *acquisition.LogRecord) *SpectrumRecord {
	return &SpectrumRecord{
		DeviceID:  rec.DeviceID,
		RunID:     rec.RunID,
		Timestamp: rec.Timestamp,
		RealTime:  rec.RealTime,
		LiveTime:  rec.LiveTime,
		Counts:    rec.Counts,
		CPM:       rec.CPM,
		Channels:  append([]uint64(nil), rec.Spectrum[:]...),
	}
}

