package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/radangel/radangel/internal/acquisition"
	"github.com/radangel/radangel/internal/config"
	"github.com/radangel/radangel/internal/device"
	"github.com/radangel/radangel/internal/errors"
	"github.com/radangel/radangel/internal/export"
	"github.com/radangel/radangel/internal/logger"
	"github.com/radangel/radangel/internal/pid"
	"github.com/radangel/radangel/internal/store"
	"github.com/radangel/radangel/internal/telemetry"
)

const shutdownTimeout = 5 * time.Second

func newCaptureCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capture [logfile]",
		Short: "Capture a spectrum",
		Long: `Capture events until the capture time or count is exceeded, or until
interrupted. Each logging interval appends one line to the log file; the
cumulative spectrum is written next to it with an .spe extension.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCaptureCmd,
	}

	config.RegisterFlags(cmd.Flags())

	return cmd
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var opts []config.Option
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		opts = append(opts, config.WithConfigFile(path))
	}

	return config.Load(cmd.Flags(), opts...)
}

func runCaptureCmd(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		if err := cmd.Flags().Set("output", args[0]); err != nil {
			return err
		}
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := logger.Init(cfg.LogLevel, logger.IsService()); err != nil {
		return err
	}
	logger.Debug().Msg("Config loaded")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return capture(ctx, cfg)
}

// capture runs one complete capture. The SPE export is written whenever the
// controller produced a result, including after a device failure.
func capture(ctx context.Context, cfg *config.Config) error {
	errFactory := errors.New()
	runID := uuid.NewString()

	guardName := cfg.Path
	if cfg.Simulate {
		guardName = device.SimulatorPath
	}
	guard := pid.New(guardName)
	if err := guard.Write(); err != nil {
		return err
	}
	defer func() {
		if err := guard.Remove(); err != nil {
			logger.Warn().Err(err).Msg("Failed to remove PID file")
		}
	}()

	source, path, closeSource, err := openSource(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeSource(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close event source")
		}
	}()

	deviceID := cfg.ResolveDeviceID(path)
	log := logger.Default().With("device_id", deviceID)

	logFile, err := export.OpenLogFile(cfg.Output)
	if err != nil {
		return err
	}
	defer func() {
		if err := logFile.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close log file")
		}
	}()

	recorder, err := store.NewService(storeConfig(cfg), log.With("component", "store"))
	if err != nil {
		return err
	}
	defer func() {
		if err := recorder.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close database")
		}
	}()

	collector, err := telemetry.NewService(telemetry.Config{
		Addr:     cfg.Metrics.Addr,
		DeviceID: deviceID,
	}, log.With("component", "telemetry"))
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := collector.Close(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Failed to stop metrics endpoint")
		}
	}()

	settings := acquisition.DefaultSettings()
	settings.DeviceID = deviceID
	settings.RunID = runID
	settings.LoggingInterval = cfg.LoggingInterval
	settings.DeadTime = cfg.DeadTime
	settings.PollTimeout = cfg.PollTimeout
	settings.Limits = acquisition.Limits{
		MaxRealTime:   cfg.CaptureTime,
		MaxEventCount: cfg.CaptureCount,
	}

	ctrl := acquisition.New(source, settings,
		acquisition.WithSinks(logFile, recorder),
		acquisition.WithObserver(collector),
		acquisition.WithLogger(log))

	res, runErr := ctrl.Run(ctx)
	if res == nil {
		return runErr
	}

	spe := &export.SPE{
		Timestamp:  time.Now(),
		DeviceID:   deviceID,
		RealTime:   res.RealTime,
		LiveTime:   res.LiveTime,
		TotalCount: res.TotalEvents,
		Spectrum:   res.Spectrum,
	}
	if err := export.WriteSPE(cfg.SPEPath(), spe); err != nil {
		if runErr != nil {
			logger.ErrorWithCode(errFactory.Wrap(errors.ErrExport, err)).Msg("Failed to export partial spectrum")
			return runErr
		}
		return errFactory.Wrap(errors.ErrExport, err)
	}

	if runErr != nil {
		return errFactory.Wrap(errors.ErrCapture, runErr)
	}

	return nil
}

func openSource(cfg *config.Config) (acquisition.EventSource, string, func() error, error) {
	if cfg.Simulate {
		sim, err := device.NewSimulator(cfg.SimulateRate, uint64(time.Now().UnixNano()))
		if err != nil {
			return nil, "", nil, err
		}
		logger.Info().Float64("rate", cfg.SimulateRate).Msg("Using simulated detector")

		return sim, device.SimulatorPath, func() error { return nil }, nil
	}

	dev, err := device.Open(cfg.Path)
	if err != nil {
		return nil, "", nil, err
	}

	return dev, dev.Path(), dev.Close, nil
}

func storeConfig(cfg *config.Config) store.Config {
	sc := store.DefaultConfig()
	sc.Enabled = cfg.Database.Enabled
	if cfg.Database.Driver != "" {
		sc.Driver = cfg.Database.Driver
	}
	if cfg.Database.DSN != "" {
		sc.DSN = cfg.Database.DSN
	}
	sc.BatchSize = cfg.Database.BatchSize
	sc.BatchTimeout = cfg.Database.BatchTimeout

	return sc
}

