package store

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/radangel/radangel/internal/errors"
)

const (
	DriverSQLite = "sqlite3"
	DriverMySQL  = "mysql"

	// File system permissions and paths
	defaultDirPerm      = 0o755
	defaultDSN          = "radangel.db"
	defaultBatchTimeout = 5 * time.Second

	// maxBufferedRecords bounds the buffer while the database is unreachable.
	maxBufferedRecords = 1024
)

type Config struct {
	Enabled      bool
	Driver       string
	DSN          string
	BatchSize    int
	BatchTimeout time.Duration
	BackupDir    string
}

func DefaultConfig() Config {
	return Config{
		Driver:       DriverSQLite,
		DSN:          defaultDSN,
		BatchSize:    1,
		BatchTimeout: defaultBatchTimeout,
		Enabled:      false, // Disabled by default
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	// Only validate the connection if the store is enabled
	if !c.Enabled {
		return nil
	}

	if c.DSN == "" {
		return errFactory.New(ErrInvalidDSN)
	}

	switch c.Driver {
	case DriverSQLite:
	case DriverMySQL:
		if _, err := mysql.ParseDSN(c.DSN); err != nil {
			return errFactory.Wrap(ErrInvalidDSN, err)
		}
	default:
		return errFactory.WithData(ErrUnsupportedDriver, c.Driver)
	}

	if c.BatchSize < 0 || c.BatchTimeout < 0 {
		return errFactory.WithData(ErrInvalidConfig, struct {
			BatchSize    int
			BatchTimeout string
		}{
			BatchSize:    c.BatchSize,
			BatchTimeout: c.BatchTimeout.String(),
		})
	}

	return nil
}

// sqlitePath strips connection parameters from a sqlite DSN
func sqlitePath(dsn string) string {
	path, _, _ := strings.Cut(strings.TrimPrefix(dsn, "file:"), "?")
	return path
}

func (c Config) backupDir() string {
	if c.BackupDir != "" {
		return c.BackupDir
	}

	return filepath.Join(filepath.Dir(sqlitePath(c.DSN)), "backups")
}
