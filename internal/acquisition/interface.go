package acquisition

import (
	"context"
	"time"
)

// EventSource produces raw pulse reports. Poll returns nil, nil when no
// event arrived within timeout and must never block longer than that.
// Errors carrying errors.ErrDeviceFailure end the capture; any other error
// is treated as a transient poll failure.
type EventSource interface {
	Poll(timeout time.Duration) ([]byte, error)
}

// Sink receives every flushed LogRecord. Emit is called from the control
// loop and should return promptly.
type Sink interface {
	Name() string
	Emit(ctx context.Context, rec *LogRecord) error
}

// Observer is notified of capture progress, typically to export metrics.
type Observer interface {
	EventIngested()
	PollFailed()
	FactorClamped()
	TimesUpdated(countRate, realTime, liveTime float64)
	WindowFlushed(rec *LogRecord)
}

type noopObserver struct{}

func (noopObserver) EventIngested()               {}
func (noopObserver) PollFailed()                  {}
func (noopObserver) FactorClamped()               {}
func (noopObserver) TimesUpdated(_, _, _ float64) {}
func (noopObserver) WindowFlushed(_ *LogRecord)   {}
