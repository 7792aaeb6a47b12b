package store_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radangel/radangel/internal/acquisition"
	"github.com/radangel/radangel/internal/logger"
	"github.com/radangel/radangel/internal/store"
)

func sqliteConfig(t *testing.T) store.Config {
	t.Helper()

	cfg := store.DefaultConfig()
	cfg.Enabled = true
	cfg.DSN = filepath.Join(t.TempDir(), "data", "radangel.db")
	cfg.BatchSize = 2
	cfg.BatchTimeout = time.Hour

	return cfg
}

func countRows(t *testing.T, dsn string) int {
	t.Helper()

	db, err := sql.Open("sqlite3", dsn)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM spectra").Scan(&n))

	return n
}

func logRecord(i int) *acquisition.LogRecord {
	rec := &acquisition.LogRecord{
		Timestamp: time.Date(2024, 3, 1, 12, i, 0, 0, time.UTC),
		DeviceID:  "000000-000000",
		RunID:     "run-1",
		RealTime:  60,
		LiveTime:  59.9,
		Counts:    uint64(i + 1),
		CPM:       float64(i+1) / 59.9 * 60,
	}
	rec.Spectrum[100] = uint64(i + 1)

	return rec
}

func TestServiceDisabled(t *testing.T) {
	rec, err := store.NewService(store.DefaultConfig(), logger.Nop())
	require.NoError(t, err)

	assert.NoError(t, rec.Emit(context.Background(), logRecord(0)))
	assert.NoError(t, rec.Close())
}

func TestServiceSQLite(t *testing.T) {
	cfg := sqliteConfig(t)

	rec, err := store.NewService(cfg, logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, "database", rec.Name())

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, rec.Emit(ctx, logRecord(i)))
	}

	// Two records form a batch, the third waits for Close.
	assert.Equal(t, 2, countRows(t, cfg.DSN))
	require.NoError(t, rec.Close())
	assert.Equal(t, 3, countRows(t, cfg.DSN))

	db, err := sql.Open("sqlite3", cfg.DSN)
	require.NoError(t, err)
	defer db.Close()

	var (
		counts   int64
		runID    string
		channels string
	)
	require.NoError(t, db.QueryRow(
		"SELECT counts, run_id, channels FROM spectra ORDER BY timestamp DESC LIMIT 1",
	).Scan(&counts, &runID, &channels))

	assert.Equal(t, int64(3), counts)
	assert.Equal(t, "run-1", runID)

	var decoded []uint64
	require.NoError(t, json.Unmarshal([]byte(channels), &decoded))
	require.Len(t, decoded, 4096)
	assert.Equal(t, uint64(3), decoded[100])
}

func TestServiceFlushesOnTimeout(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.BatchSize = 100
	cfg.BatchTimeout = 20 * time.Millisecond

	rec, err := store.NewService(cfg, logger.Nop())
	require.NoError(t, err)
	defer rec.Close()

	require.NoError(t, rec.Emit(context.Background(), logRecord(0)))

	assert.Eventually(t, func() bool {
		return countRows(t, cfg.DSN) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServiceCancelledContext(t *testing.T) {
	rec, err := store.NewService(sqliteConfig(t), logger.Nop())
	require.NoError(t, err)
	defer rec.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, rec.Emit(ctx, logRecord(0)))
}

func TestSchemaMismatchBacksUp(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.BackupDir = filepath.Join(t.TempDir(), "backups")

	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.DSN), 0o755))
	db, err := sql.Open("sqlite3", cfg.DSN)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE schema_versions (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL);
		INSERT INTO schema_versions VALUES (99, 'then');`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	repo, err := store.NewRepository(cfg, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	backups, err := os.ReadDir(cfg.BackupDir)
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Contains(t, backups[0].Name(), "spectra_v99_")

	db, err = sql.Open("sqlite3", cfg.DSN)
	require.NoError(t, err)
	defer db.Close()

	var version int
	require.NoError(t, db.QueryRow("SELECT MAX(version) FROM schema_versions").Scan(&version))
	assert.Equal(t, store.SchemaVersion, version)
}
