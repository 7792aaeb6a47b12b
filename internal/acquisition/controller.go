package acquisition

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/radangel/radangel/internal/errors"
	"github.com/radangel/radangel/internal/logger"
	"github.com/radangel/radangel/internal/spectrum"
)

const (
	DefaultLoggingInterval = 60 * time.Second
	DefaultRateInterval    = time.Second
	DefaultMicroInterval   = 100 * time.Millisecond
	DefaultPollTimeout     = 50 * time.Millisecond
	DefaultLoopInterval    = 5 * time.Millisecond

	// maxConsecutivePollErrors turns a run of transient poll failures into a
	// device failure.
	maxConsecutivePollErrors = 50
)

// State is the lifecycle stage of a Controller.
type State int32

const (
	Idle State = iota
	Running
	Draining
	Terminated
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Draining:
		return "draining"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Settings are the already-resolved capture parameters.
type Settings struct {
	DeviceID        string
	RunID           string
	LoggingInterval time.Duration
	RateInterval    time.Duration
	MicroInterval   time.Duration
	DeadTime        float64
	PollTimeout     time.Duration
	LoopInterval    time.Duration
	Limits          Limits
}

// DefaultSettings returns the RadAngel reference timing.
func DefaultSettings() Settings {
	return Settings{
		LoggingInterval: DefaultLoggingInterval,
		RateInterval:    DefaultRateInterval,
		MicroInterval:   DefaultMicroInterval,
		DeadTime:        DefaultDeadTime,
		PollTimeout:     DefaultPollTimeout,
		LoopInterval:    DefaultLoopInterval,
	}
}

func (s *Settings) applyDefaults() {
	d := DefaultSettings()
	if s.LoggingInterval <= 0 {
		s.LoggingInterval = d.LoggingInterval
	}
	if s.RateInterval <= 0 {
		s.RateInterval = d.RateInterval
	}
	if s.MicroInterval <= 0 {
		s.MicroInterval = d.MicroInterval
	}
	if s.PollTimeout <= 0 {
		s.PollTimeout = d.PollTimeout
	}
	if s.LoopInterval <= 0 {
		s.LoopInterval = d.LoopInterval
	}
	if s.DeadTime < 0 {
		s.DeadTime = 0
	}
}

// Option customizes a Controller.
type Option func(*Controller)

// WithSinks adds export sinks receiving every flushed LogRecord.
func WithSinks(sinks ...Sink) Option {
	return func(c *Controller) {
		c.sinks = append(c.sinks, sinks...)
	}
}

// WithLogger sets the logger, the global logger is used otherwise.
func WithLogger(log logger.Logger) Option {
	return func(c *Controller) {
		c.log = log
	}
}

// WithObserver registers a progress observer.
func WithObserver(obs Observer) Option {
	return func(c *Controller) {
		if obs != nil {
			c.obs = obs
		}
	}
}

// WithClock replaces time.Now for the control loop.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// Controller runs one capture: it owns the ingestion goroutine, the timing
// ticks, the window flushes and the termination checks.
type Controller struct {
	source EventSource
	cfg    Settings
	sinks  []Sink
	log    logger.Logger
	obs    Observer
	now    func() time.Time

	acc     *spectrum.Accumulator
	rate    *RateTracker
	clock   *LiveTimeIntegrator
	total   spectrum.Cumulative
	flusher *WindowFlusher

	state       atomic.Int32
	sealed      bool
	final       spectrum.Spectrum
	finalCounts uint64
	drained     bool
	clampWarned bool
	startedAt   time.Time
	invalid     atomic.Uint64
	late        atomic.Uint64
	pollErrors  atomic.Uint64
}

// New returns an idle Controller reading from source. source may be nil
// when events are fed through Ingest and the loop is driven with Step.
func New(source EventSource, cfg Settings, opts ...Option) *Controller {
	cfg.applyDefaults()

	c := &Controller{
		source: source,
		cfg:    cfg,
		obs:    noopObserver{},
		now:    time.Now,
		acc:    spectrum.NewAccumulator(),
		rate:   NewRateTracker(cfg.RateInterval),
		clock:  NewLiveTimeIntegrator(cfg.MicroInterval, cfg.DeadTime),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.Default()
	}
	c.log = c.log.With("run_id", cfg.RunID)

	c.flusher = newWindowFlusher(c.acc, c.clock, &c.total, cfg.LoggingInterval,
		cfg.DeviceID, cfg.RunID, c.sinks, c.log, c.obs)

	return c
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

func (c *Controller) setState(s State) {
	c.state.Store(int32(s))
}

// TotalEvents returns the number of events accepted so far.
func (c *Controller) TotalEvents() uint64 {
	return c.acc.Total()
}

// Start moves an idle controller to Running with all clocks at now.
func (c *Controller) Start(now time.Time) error {
	if !c.state.CompareAndSwap(int32(Idle), int32(Running)) {
		return errors.New().WithData(ErrInvalidState, c.State().String())
	}

	c.startedAt = now
	c.rate.Start(now)
	c.clock.Start(now)

	c.log.Info().
		Str("device_id", c.cfg.DeviceID).
		Dur("logging_interval", c.cfg.LoggingInterval).
		Dur("max_real_time", c.cfg.Limits.MaxRealTime).
		Uint64("max_event_count", c.cfg.Limits.MaxEventCount).
		Msg("Capture started")

	return nil
}

// Ingest accounts one raw event report. It is safe to call concurrently
// with Step and returns false when the report was not counted. Reports
// arriving before Start are ignored; reports arriving once the capture
// left Running are counted as dropped.
func (c *Controller) Ingest(raw []byte) bool {
	ch, ok := spectrum.ChannelFromEvent(raw)
	if !ok {
		c.invalid.Add(1)
		return false
	}

	switch c.State() {
	case Running:
	case Idle:
		return false
	default:
		c.late.Add(1)
		return false
	}

	if !c.acc.Increment(ch) {
		return false
	}

	c.rate.RecordEvent()
	c.obs.EventIngested()

	return true
}

// Step performs one control tick at now: rate update, live time update,
// window flush and limit check, each only when due. It returns true once
// the capture must stop; the controller is then Draining.
func (c *Controller) Step(ctx context.Context, now time.Time) bool {
	if c.State() != Running {
		return true
	}

	if c.rate.Due(now) {
		c.rate.Tick(now)
	}

	if c.clock.Due(now) {
		if c.clock.Tick(now, c.rate.Rate()) {
			c.obs.FactorClamped()
			if !c.clampWarned {
				c.clampWarned = true
				c.log.Warn().
					Float64("countrate", c.rate.Rate()).
					Float64("dead_time", c.cfg.DeadTime).
					Msg("Dead-time factor out of range, clamping live time increment")
			}
		}
		c.obs.TimesUpdated(c.rate.Rate(), c.clock.RealTime(), c.clock.LiveTime())
	}

	c.flusher.TryFlush(ctx, now)

	if c.cfg.Limits.Reached(c.clock.RealTime(), c.acc.Total()) {
		c.log.Info().
			Float64("realtime", c.clock.RealTime()).
			Uint64("total_count", c.acc.Total()).
			Msg("Capture limit reached")
		c.seal()
		c.setState(Draining)
		return true
	}

	return false
}

// Drain seals the accumulator and folds the unflushed partial window into
// the cumulative spectrum. Only the first call folds; later calls return
// the same totals.
func (c *Controller) Drain() *Result {
	c.seal()
	c.state.CompareAndSwap(int32(Running), int32(Draining))

	if !c.drained {
		c.drained = true
		c.total.Fold(&c.final)

		c.log.Debug().
			Uint64("counts", c.finalCounts).
			Msg("Partial window folded into total spectrum")
	}

	return c.result()
}

// seal takes the last snapshot of the open window; the accumulator rejects
// every later event. Only the control loop calls it.
func (c *Controller) seal() {
	if c.sealed {
		return
	}
	c.sealed = true
	c.final, c.finalCounts = c.acc.Seal()
}

// Run executes a complete capture. It returns when a limit is reached, the
// source fails or ctx is cancelled. The result is always populated; the
// error is non-nil when the device failed, in which case the result holds
// the partial spectrum.
func (c *Controller) Run(ctx context.Context) (*Result, error) {
	errFactory := errors.New()

	if c.source == nil {
		return nil, errFactory.New(ErrNoSource)
	}
	if err := c.Start(c.now()); err != nil {
		return nil, err
	}

	ingestCtx, stopIngest := context.WithCancel(ctx)
	failures := make(chan error, 1)
	done := make(chan struct{})
	go c.ingest(ingestCtx, failures, done)

	defer func() {
		stopIngest()
		<-done
	}()

	ticker := time.NewTicker(c.cfg.LoopInterval)
	defer ticker.Stop()

	var runErr error

loop:
	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("Capture interrupted")
			break loop
		case err := <-failures:
			runErr = errFactory.Wrap(ErrDeviceFailure, err)
			c.log.ErrorWithCode(errFactory.Wrap(ErrDeviceFailure, err)).
				Msg("Device failure, finalizing partial capture")
			break loop
		case <-ticker.C:
			if c.Step(ctx, c.now()) {
				break loop
			}
		}
	}

	c.Drain()

	stopIngest()
	<-done
	c.setState(Terminated)

	res := c.result()
	c.log.Info().
		Float64("realtime", res.RealTime).
		Float64("livetime", res.LiveTime).
		Uint64("total_count", res.TotalEvents).
		Float64("countrate", res.CountRate).
		Int("flushes", res.Flushes).
		Uint64("dropped", res.Dropped).
		Msg("Capture completed")

	return res, runErr
}

// ingest polls the source until ctx is cancelled or the device fails. It
// observes cancellation between polls, so it exits within one poll timeout.
func (c *Controller) ingest(ctx context.Context, failures chan<- error, done chan<- struct{}) {
	defer close(done)

	errFactory := errors.New()
	consecutive := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		raw, err := c.source.Poll(c.cfg.PollTimeout)
		if err != nil {
			if errors.HasCode(err, ErrDeviceFailure) {
				failures <- err
				return
			}

			c.pollErrors.Add(1)
			c.obs.PollFailed()
			consecutive++
			if consecutive >= maxConsecutivePollErrors {
				failures <- errFactory.WithData(ErrPollFailed, struct {
					Consecutive int
					Error       string
				}{
					Consecutive: consecutive,
					Error:       err.Error(),
				})
				return
			}

			c.log.Warn().Err(err).Int("consecutive", consecutive).Msg("Event source poll failed")
			continue
		}
		consecutive = 0

		if raw != nil {
			c.Ingest(raw)
		}

		runtime.Gosched()
	}
}

func (c *Controller) result() *Result {
	return &Result{
		RunID:         c.cfg.RunID,
		DeviceID:      c.cfg.DeviceID,
		StartedAt:     c.startedAt,
		Spectrum:      c.total.Spectrum(),
		RealTime:      c.clock.RealTime(),
		LiveTime:      c.clock.LiveTime(),
		CountRate:     c.rate.Rate(),
		TotalEvents:   c.acc.Total(),
		Flushes:       c.flusher.Flushes(),
		Dropped:       c.acc.Dropped() + c.late.Load(),
		InvalidEvents: c.invalid.Load(),
		PollErrors:    c.pollErrors.Load(),
	}
}
