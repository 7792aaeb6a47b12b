// Package telemetry exports capture progress as Prometheus metrics.
package telemetry

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/radangel/radangel/internal/acquisition"
	"github.com/radangel/radangel/internal/errors"
	"github.com/radangel/radangel/internal/logger"
)

const readHeaderTimeout = 5 * time.Second

type service struct {
	log      logger.Logger
	registry *prometheus.Registry
	server   *http.Server
	listener net.Listener
	done     chan struct{}

	events       prometheus.Counter
	pollErrors   prometheus.Counter
	clamped      prometheus.Counter
	flushes      prometheus.Counter
	countRate    prometheus.Gauge
	realTime     prometheus.Gauge
	liveTime     prometheus.Gauge
	windowCounts prometheus.Gauge
	windowCPM    prometheus.Gauge
	liveFraction prometheus.Histogram
}

// No-op implementation
type noopCollector struct{}

// NewService starts the metrics endpoint. Without an address it returns a
// collector that discards everything.
func NewService(cfg Config, log logger.Logger) (Collector, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if cfg.Addr == "" {
		log.Debug().Msg("Metrics endpoint disabled, using no-op collector")
		return &noopCollector{}, nil
	}

	s, err := newService(cfg, log, prometheus.NewRegistry())
	if err != nil {
		return nil, err
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, errFactory.Wrap(ErrListenFailed, err)
	}
	s.serve(ln)

	log.Info().Str("addr", ln.Addr().String()).Msg("Metrics endpoint listening")

	return s, nil
}

func newService(cfg Config, log logger.Logger, reg *prometheus.Registry) (*service, error) {
	errFactory := errors.New()

	ns := cfg.Namespace
	if ns == "" {
		ns = defaultNamespace
	}
	labels := prometheus.Labels{"device_id": cfg.DeviceID}

	s := &service{
		log:      log,
		registry: reg,
		events: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "events_ingested_total", ConstLabels: labels,
			Help: "Events counted into the spectrum.",
		}),
		pollErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "poll_errors_total", ConstLabels: labels,
			Help: "Transient event source read failures.",
		}),
		clamped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "deadtime_clamped_total", ConstLabels: labels,
			Help: "Live time ticks with an out of range dead-time factor.",
		}),
		flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "windows_flushed_total", ConstLabels: labels,
			Help: "Logging windows flushed to the sinks.",
		}),
		countRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "count_rate", ConstLabels: labels,
			Help: "Event rate over the last rate period, in events per second.",
		}),
		realTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "real_time_seconds", ConstLabels: labels,
			Help: "Accumulated real time of the capture.",
		}),
		liveTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "live_time_seconds", ConstLabels: labels,
			Help: "Accumulated dead-time corrected live time of the capture.",
		}),
		windowCounts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "window_counts", ConstLabels: labels,
			Help: "Events in the last flushed window.",
		}),
		windowCPM: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "window_cpm", ConstLabels: labels,
			Help: "Live time normalized counts per minute of the last flushed window.",
		}),
		liveFraction: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Name: "window_live_fraction", ConstLabels: labels,
			Help:    "Live time over real time of flushed windows.",
			Buckets: []float64{0.5, 0.8, 0.9, 0.95, 0.99, 0.999, 1},
		}),
	}

	for _, c := range []prometheus.Collector{
		s.events, s.pollErrors, s.clamped, s.flushes,
		s.countRate, s.realTime, s.liveTime,
		s.windowCounts, s.windowCPM, s.liveFraction,
	} {
		if err := reg.Register(c); err != nil {
			return nil, errFactory.Wrap(ErrRegisterFailed, err)
		}
	}

	return s, nil
}

func (s *service) serve(ln net.Listener) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	s.listener = ln
	s.server = &http.Server{Handler: mux, ReadHeaderTimeout: readHeaderTimeout}
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("Metrics endpoint exited")
		}
	}()
}

func (s *service) Addr() string {
	if s.listener == nil {
		return ""
	}

	return s.listener.Addr().String()
}

func (s *service) EventIngested() {
	s.events.Inc()
}

func (s *service) PollFailed() {
	s.pollErrors.Inc()
}

func (s *service) FactorClamped() {
	s.clamped.Inc()
}

func (s *service) TimesUpdated(countRate, realTime, liveTime float64) {
	s.countRate.Set(countRate)
	s.realTime.Set(realTime)
	s.liveTime.Set(liveTime)
}

func (s *service) WindowFlushed(rec *acquisition.LogRecord) {
	s.flushes.Inc()
	s.windowCounts.Set(float64(rec.Counts))
	s.windowCPM.Set(rec.CPM)
	if rec.RealTime > 0 {
		s.liveFraction.Observe(rec.LiveTime / rec.RealTime)
	}
}

func (s *service) Close(ctx context.Context) error {
	errFactory := errors.New()

	if s.server == nil {
		return nil
	}

	if err := s.server.Shutdown(ctx); err != nil {
		return errFactory.Wrap(ErrServiceShutdown, err)
	}
	<-s.done

	s.log.Debug().Msg("Metrics endpoint closed")

	return nil
}

// No-op implementation
func (*noopCollector) EventIngested()                         {}
func (*noopCollector) PollFailed()                            {}
func (*noopCollector) FactorClamped()                         {}
func (*noopCollector) TimesUpdated(_, _, _ float64)           {}
func (*noopCollector) WindowFlushed(_ *acquisition.LogRecord) {}
func (*noopCollector) Addr() string                           { return "" }
func (*noopCollector) Close(_ context.Context) error          { return nil }
