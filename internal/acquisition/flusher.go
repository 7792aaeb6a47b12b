package acquisition

import (
	"context"
	"math"
	"time"

	"github.com/radangel/radangel/internal/errors"
	"github.com/radangel/radangel/internal/logger"
	"github.com/radangel/radangel/internal/spectrum"
)

// WindowFlusher closes the open window once per logging interval of real
// time, folds it into the cumulative spectrum and hands a LogRecord to the
// sinks.
type WindowFlusher struct {
	acc      *spectrum.Accumulator
	clock    *LiveTimeIntegrator
	total    *spectrum.Cumulative
	interval time.Duration
	deviceID string
	runID    string
	sinks    []Sink
	log      logger.Logger
	obs      Observer

	prevRealTime float64
	prevLiveTime float64
	boundary     float64
	flushes      int
}

func newWindowFlusher(
	acc *spectrum.Accumulator, clock *LiveTimeIntegrator, total *spectrum.Cumulative,
	interval time.Duration, deviceID, runID string, sinks []Sink, log logger.Logger, obs Observer,
) *WindowFlusher {
	return &WindowFlusher{
		acc:      acc,
		clock:    clock,
		total:    total,
		interval: interval,
		deviceID: deviceID,
		runID:    runID,
		sinks:    sinks,
		log:      log,
		obs:      obs,
		boundary: interval.Seconds(),
	}
}

// Due reports whether real time crossed the next logging interval boundary.
// Boundaries sit on multiples of the interval from the start of the capture.
func (f *WindowFlusher) Due() bool {
	return f.clock.RealTime() >= f.boundary
}

// TryFlush flushes the open window if Due. The accumulator is only locked
// for the swap; sinks run afterwards on the caller's goroutine.
func (f *WindowFlusher) TryFlush(ctx context.Context, now time.Time) (*LogRecord, bool) {
	if !f.Due() {
		return nil, false
	}

	window, counts := f.acc.SnapshotAndReset()

	realTime, liveTime := f.clock.RealTime(), f.clock.LiveTime()
	rec := &LogRecord{
		Timestamp: now.UTC(),
		DeviceID:  f.deviceID,
		RunID:     f.runID,
		RealTime:  realTime - f.prevRealTime,
		LiveTime:  liveTime - f.prevLiveTime,
		Counts:    counts,
		Spectrum:  window,
	}
	rec.CPM = CPM(counts, rec.LiveTime)

	f.prevRealTime, f.prevLiveTime = realTime, liveTime
	f.total.Fold(&window)
	f.flushes++

	// A stalled loop can cross several boundaries in one tick. The window
	// then covers all of them and the next boundary stays on the grid.
	step := f.interval.Seconds()
	crossed := math.Floor((realTime-f.boundary)/step) + 1
	f.boundary += crossed * step
	if crossed > 1 {
		f.log.Warn().
			Float64("realtime", rec.RealTime).
			Int("intervals", int(crossed)).
			Msg("Window spans several logging intervals")
	}

	f.log.Info().
		Time("timestamp", rec.Timestamp).
		Float64("realtime", rec.RealTime).
		Float64("livetime", rec.LiveTime).
		Uint64("counts", rec.Counts).
		Float64("cpm", rec.CPM).
		Msg("Window flushed")

	f.obs.WindowFlushed(rec)
	f.emit(ctx, rec)

	return rec, true
}

// Flushes returns the number of windows flushed so far.
func (f *WindowFlusher) Flushes() int {
	return f.flushes
}

func (f *WindowFlusher) emit(ctx context.Context, rec *LogRecord) {
	errFactory := errors.New()

	for _, s := range f.sinks {
		if err := s.Emit(ctx, rec); err != nil {
			f.log.ErrorWithCode(errFactory.Wrap(ErrSinkFailed, err)).
				Str("sink", s.Name()).
				Msg("Failed to emit log record")
		}
	}
}
