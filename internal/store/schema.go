package store

import (
	"database/sql"
	"time"

	"github.com/radangel/radangel/internal/errors"
	"github.com/radangel/radangel/internal/logger"
)

const (
	SchemaVersion = 1

	insertSpectrumSQL = `
    INSERT INTO spectra (
        device_id, run_id, timestamp,
        realtime, livetime,
        counts, cpm, channels
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	insertVersionSQL = `
    INSERT INTO schema_versions (version, applied_at)
    VALUES (?, ?)`
)

// dialect holds the statements that differ between drivers
type dialect struct {
	name            string
	createTables    []string
	tableExistsSQL  string
	checkpointSQL   string
	recreateOnDrift bool
}

var sqliteDialect = dialect{
	name: DriverSQLite,
	createTables: []string{
		`CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   )`,
		`CREATE TABLE IF NOT EXISTS spectra (
	       id         INTEGER PRIMARY KEY AUTOINCREMENT,
	       device_id  TEXT NOT NULL,
	       run_id     TEXT NOT NULL,
	       timestamp  INTEGER NOT NULL CHECK (typeof(timestamp) = 'integer'),
	       realtime   REAL NOT NULL CHECK (realtime >= 0),
	       livetime   REAL NOT NULL CHECK (livetime >= 0),
	       counts     INTEGER NOT NULL CHECK (counts >= 0),
	       cpm        REAL NOT NULL,
	       channels   TEXT NOT NULL
	   )`,
		`CREATE INDEX IF NOT EXISTS idx_spectra_run ON spectra (run_id, timestamp)`,
	},
	tableExistsSQL: `
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name=?
        )`,
	checkpointSQL:   "PRAGMA wal_checkpoint(TRUNCATE)",
	recreateOnDrift: true,
}

var mysqlDialect = dialect{
	name: DriverMySQL,
	createTables: []string{
		`CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INT PRIMARY KEY,
	       applied_at  VARCHAR(32) NOT NULL
	   )`,
		`CREATE TABLE IF NOT EXISTS spectra (
	       id         BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
	       device_id  VARCHAR(64) NOT NULL,
	       run_id     VARCHAR(64) NOT NULL,
	       timestamp  BIGINT NOT NULL,
	       realtime   DOUBLE NOT NULL,
	       livetime   DOUBLE NOT NULL,
	       counts     BIGINT NOT NULL,
	       cpm        DOUBLE NOT NULL,
	       channels   LONGTEXT NOT NULL,
	       INDEX idx_spectra_run (run_id, timestamp)
	   )`,
	},
	tableExistsSQL: `
        SELECT EXISTS (
            SELECT 1 FROM information_schema.tables
            WHERE table_schema = DATABASE() AND table_name = ?
        )`,
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case DriverSQLite:
		return sqliteDialect, nil
	case DriverMySQL:
		return mysqlDialect, nil
	default:
		return dialect{}, errors.New().WithData(ErrUnsupportedDriver, driver)
	}
}

// initSchema creates the tables and records the current schema version
func initSchema(db *sql.DB, d dialect, log logger.Logger) error {
	errFactory := errors.New()

	log.Debug().Str("driver", d.name).Msg("Creating database...")

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	// Track transaction state
	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil {
				if !errors.Is(err, sql.ErrTxDone) {
					log.Debug().Err(err).Msg("Failed to rollback transaction")
				}
			}
		}
	}()

	for _, stmt := range d.createTables {
		log.Debug().Str("sql", stmt).Msg("Executing SQL statement")
		if _, err := tx.Exec(stmt); err != nil {
			return errFactory.WithData(ErrSchemaInitFailed, struct {
				Error string
				SQL   string
			}{
				Error: err.Error(),
				SQL:   stmt,
			})
		}
	}

	if _, err := tx.Exec(insertVersionSQL, SchemaVersion, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			Phase string
		}{
			Error: err.Error(),
			Phase: "record_version",
		})
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	committed = true

	log.Info().
		Int("version", SchemaVersion).
		Msg("Schema initialized successfully")

	return nil
}

// schemaVersion returns the current schema version, 0 for an empty database
func schemaVersion(db *sql.DB, d dialect) (int, error) {
	errFactory := errors.New()

	exists, err := tableExists(db, d, "schema_versions")
	if err != nil {
		return 0, errFactory.Wrap(ErrSchemaValidationFailed, err)
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = db.QueryRow(`
        SELECT version
        FROM schema_versions
        ORDER BY version DESC
        LIMIT 1
    `).Scan(&version)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Error string
		}{
			Phase: "get_version",
			Error: err.Error(),
		})
	}

	return version, nil
}

// tableExists checks if a table exists
func tableExists(db *sql.DB, d dialect, tableName string) (bool, error) {
	errFactory := errors.New()

	var exists bool
	if err := db.QueryRow(d.tableExistsSQL, tableName).Scan(&exists); err != nil {
		return false, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Table string
			Error string
		}{
			Phase: "check_table_exists",
			Table: tableName,
			Error: err.Error(),
		})
	}

	return exists, nil
}
