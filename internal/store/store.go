// Package store persists flushed spectrum windows to SQLite or MySQL.
package store

import (
	"context"

	"github.com/radangel/radangel/internal/acquisition"
	"github.com/radangel/radangel/internal/errors"
	"github.com/radangel/radangel/internal/logger"
)

type service struct {
	repo Repository
	cfg  Config
}

// No-op implementation
type noopRecorder struct{}

func NewService(cfg Config, log logger.Logger) (Recorder, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	// If the store is disabled, return a no-op recorder
	if !cfg.Enabled {
		log.Debug().Msg("Database upload disabled, using no-op recorder")
		return &noopRecorder{}, nil
	}

	repo, err := NewRepository(cfg, log)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to create spectrum repository")
		return nil, err
	}

	log.Debug().
		Str("driver", cfg.Driver).
		Bool("enabled", cfg.Enabled).
		Msg("Spectrum store initialized successfully")

	return &service{
		repo: repo,
		cfg:  cfg,
	}, nil
}

func (s *service) Name() string {
	return "database"
}

func (s *service) Emit(ctx context.Context, rec *acquisition.LogRecord) error {
	errFactory := errors.New()

	if rec == nil {
		return errFactory.New(ErrInvalidRecord)
	}

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
		if err := s.repo.Record(FromLogRecord(rec)); err != nil {
			return errFactory.Wrap(ErrRecordFailed, err)
		}
	}

	return nil
}

func (s *service) Close() error {
	errFactory := errors.New()

	if err := s.repo.Close(); err != nil {
		return errFactory.Wrap(ErrServiceShutdown, err)
	}

	return nil
}

func (*noopRecorder) Name() string {
	return "database"
}

func (*noopRecorder) Emit(_ context.Context, _ *acquisition.LogRecord) error {
	return nil
}

func (*noopRecorder) Close() error {
	return nil
}
