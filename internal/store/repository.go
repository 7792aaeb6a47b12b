package store

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"github.com/radangel/radangel/internal/errors"
	"github.com/radangel/radangel/internal/logger"
)

type repository struct {
	db            *sql.DB
	dialect       dialect
	logger        logger.Logger
	cfg           Config
	mu            sync.Mutex
	buffer        []*SpectrumRecord
	flushTicker   *time.Ticker
	shutdownChan  chan struct{}
	flushDoneChan chan struct{}
	closeOnce     sync.Once
}

func NewRepository(cfg Config, log logger.Logger) (Repository, error) {
	errFactory := errors.New()

	d, err := dialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}

	dsn := cfg.DSN
	if d.name == DriverSQLite {
		// Ensure the directory exists
		path := sqlitePath(dsn)
		if err := os.MkdirAll(filepath.Dir(path), defaultDirPerm); err != nil {
			return nil, errFactory.WithData(ErrStorageInit, struct {
				Phase string
				Path  string
				Error string
			}{
				Phase: "create_directory",
				Path:  path,
				Error: err.Error(),
			})
		}

		// Open database with specific pragmas for better performance and safety
		if !strings.Contains(dsn, "?") {
			dsn += "?_journal=WAL&_auto_vacuum=2&_busy_timeout=5000"
		}
	}

	db, err := sql.Open(d.name, dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}

	repo, err := newRepository(db, d, cfg, log)
	if err != nil {
		db.Close()
		return nil, err
	}

	return repo, nil
}

func newRepository(db *sql.DB, d dialect, cfg Config, log logger.Logger) (*repository, error) {
	errFactory := errors.New()

	// Validate if schema is current, with backup if needed
	if err := validateAndUpdateSchema(db, d, cfg.backupDir(), log); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "schema_version",
			Error: err.Error(),
		})
	}

	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}

	log.Info().
		Str("driver", d.name).
		Int("schema_version", SchemaVersion).
		Int("batch_size", cfg.BatchSize).
		Dur("batch_timeout", cfg.BatchTimeout).
		Msg("Spectrum repository initialized")

	repo := &repository{
		db:            db,
		dialect:       d,
		logger:        log,
		cfg:           cfg,
		buffer:        make([]*SpectrumRecord, 0, cfg.BatchSize),
		shutdownChan:  make(chan struct{}),
		flushDoneChan: make(chan struct{}),
	}

	// Start background goroutine for periodic flushing if batching is enabled
	if cfg.BatchSize > 1 && cfg.BatchTimeout > 0 {
		repo.flushTicker = time.NewTicker(cfg.BatchTimeout)
		go repo.flusher()
	} else {
		close(repo.flushDoneChan)
	}

	return repo, nil
}

func (r *repository) Record(rec *SpectrumRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.buffer) >= maxBufferedRecords {
		r.logger.Warn().
			Str("run_id", r.buffer[0].RunID).
			Time("timestamp", r.buffer[0].Timestamp).
			Msg("Spectrum buffer full, dropping oldest record")
		r.buffer = r.buffer[1:]
	}

	r.buffer = append(r.buffer, rec)

	if len(r.buffer) >= r.cfg.BatchSize {
		return r.flush()
	}

	return nil
}

func (r *repository) Close() error {
	var err error
	r.closeOnce.Do(func() {
		err = r.close()
	})

	return err
}

func (r *repository) close() error {
	errFactory := errors.New()

	// Signal the flusher goroutine to stop and wait for its final flush
	close(r.shutdownChan)
	if r.flushTicker != nil {
		r.flushTicker.Stop()
	}
	<-r.flushDoneChan

	r.mu.Lock()
	flushErr := r.flush()
	r.mu.Unlock()
	if flushErr != nil {
		r.logger.ErrorWithCode(errFactory.Wrap(ErrRecordFailed, flushErr)).
			Int("records", len(r.buffer)).
			Msg("Unflushed spectra lost on close")
	}

	// Checkpoint WAL and cleanup on close
	if r.dialect.checkpointSQL != "" {
		if _, err := r.db.Exec(r.dialect.checkpointSQL); err != nil {
			r.db.Close()
			return errFactory.WithData(ErrStorageClose, struct {
				Phase string
				Error string
			}{
				Phase: "checkpoint_wal",
				Error: err.Error(),
			})
		}
	}

	if err := r.db.Close(); err != nil {
		return errFactory.WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "close_database",
			Error: err.Error(),
		})
	}

	r.logger.Info().Msg("Spectrum repository closed gracefully")

	return nil
}

func (r *repository) flusher() {
	defer close(r.flushDoneChan)

	for {
		select {
		case <-r.flushTicker.C:
			r.mu.Lock()
			r.flush()
			r.mu.Unlock()
		case <-r.shutdownChan:
			return
		}
	}
}

// flush writes the buffer in one transaction. On failure the records stay
// buffered for the next attempt.
func (r *repository) flush() error {
	if len(r.buffer) == 0 {
		return nil
	}

	errFactory := errors.New()

	tx, err := r.db.Begin()
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to begin transaction")
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	stmt, err := tx.Prepare(insertSpectrumSQL)
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to prepare statement")
		if err := tx.Rollback(); err != nil {
			r.logger.Error().Err(err).Msg("Failed to roll back transaction")
		}
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	defer stmt.Close()

	for _, rec := range r.buffer {
		channels, err := json.Marshal(rec.Channels)
		if err != nil {
			if err := tx.Rollback(); err != nil {
				r.logger.Error().Err(err).Msg("Failed to roll back transaction")
			}
			return errFactory.Wrap(ErrInvalidRecord, err)
		}

		values := []any{
			rec.DeviceID,
			rec.RunID,
			rec.Timestamp.UnixMilli(),
			rec.RealTime,
			rec.LiveTime,
			int64(rec.Counts),
			rec.CPM,
			string(channels),
		}

		if _, err := stmt.Exec(values...); err != nil {
			r.logger.Error().Err(err).Msg("Failed to execute insert")
			if err := tx.Rollback(); err != nil {
				r.logger.Error().Err(err).Msg("Failed to roll back transaction")
			}
			return errFactory.Wrap(ErrTransactionFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		r.logger.Error().Err(err).Msg("Failed to commit transaction")
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	r.logger.Debug().Int("records", len(r.buffer)).Msg("Flushed spectra to database")
	r.buffer = r.buffer[:0]

	return nil
}
