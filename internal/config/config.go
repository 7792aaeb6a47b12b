package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/radangel/radangel/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultLogLevel        = "info"
	DefaultDeviceID        = "000000-000000"
	DefaultLoggingInterval = 60 * time.Second
	DefaultDeadTime        = 1e-5
	DefaultPollTimeout     = 50 * time.Millisecond
	DefaultOutput          = "radangel.log"
	DefaultSimulateRate    = 10.0
	DefaultDBDriver        = "sqlite3"
	DefaultDBBatchSize     = 1
	DefaultDBBatchTimeout  = 5 * time.Second

	defaultEnvPrefix = "RADANGEL"
	configName       = "radangel"
)

type Config struct {
	LogLevel        string          `mapstructure:"log_level"`
	DeviceID        string          `mapstructure:"device_id"`
	Path            string          `mapstructure:"path"`
	Devices         []DeviceMapping `mapstructure:"devices"`
	LoggingInterval time.Duration   `mapstructure:"logging_interval"`
	CaptureTime     time.Duration   `mapstructure:"capture_time"`
	CaptureCount    uint64          `mapstructure:"capture_count"`
	DeadTime        float64         `mapstructure:"dead_time"`
	PollTimeout     time.Duration   `mapstructure:"poll_timeout"`
	Output          string          `mapstructure:"output"`
	Simulate        bool            `mapstructure:"simulate"`
	SimulateRate    float64         `mapstructure:"simulate_rate"`
	Database        DatabaseConfig  `mapstructure:"database"`
	Metrics         MetricsConfig   `mapstructure:"metrics"`
}

// flagBindings maps configuration keys to their command line flags
var flagBindings = map[string]string{
	"log_level":              "log-level",
	"device_id":              "deviceid",
	"path":                   "path",
	"logging_interval":       "interval",
	"capture_time":           "capturetime",
	"capture_count":          "capturecount",
	"dead_time":              "deadtime",
	"poll_timeout":           "poll-timeout",
	"output":                 "output",
	"simulate":               "simulate",
	"simulate_rate":          "simulate-rate",
	"database.enabled":       "database",
	"database.driver":        "db-driver",
	"database.dsn":           "db-dsn",
	"database.batch_size":    "db-batch-size",
	"database.batch_timeout": "db-batch-timeout",
	"metrics.addr":           "metrics-addr",
}

// RegisterFlags defines the capture flags on fs
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	fs.StringP("deviceid", "i", DefaultDeviceID, "Device id written to logs and exports")
	fs.StringP("path", "p", "", "USB HID device path to capture (default: first RadAngel found)")
	fs.Duration("interval", DefaultLoggingInterval, "Logging interval between spectrum flushes")
	fs.DurationP("capturetime", "t", 0, "Capture time (0 means unlimited)")
	fs.Uint64P("capturecount", "c", 0, "Total capture counts (0 means unlimited)")
	fs.Float64("deadtime", DefaultDeadTime, "Dead time constant in seconds per event")
	fs.Duration("poll-timeout", DefaultPollTimeout, "Maximum time a single device read may block")
	fs.StringP("output", "o", DefaultOutput, "Log file; the SPE export is written next to it")
	fs.Bool("simulate", false, "Use a simulated event source instead of a device")
	fs.Float64("simulate-rate", DefaultSimulateRate, "Simulated event rate in events per second")
	fs.BoolP("database", "d", false, "Upload each flushed spectrum to the database")
	fs.String("db-driver", DefaultDBDriver, "Database driver (sqlite3, mysql)")
	fs.String("db-dsn", "", "Database data source name")
	fs.Int("db-batch-size", DefaultDBBatchSize, "Records buffered before a database write")
	fs.Duration("db-batch-timeout", DefaultDBBatchTimeout, "Maximum age of buffered database records")
	fs.String("metrics-addr", "", "Listen address for Prometheus metrics (empty disables)")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("device_id", DefaultDeviceID)
	v.SetDefault("path", "")
	v.SetDefault("logging_interval", DefaultLoggingInterval)
	v.SetDefault("capture_time", time.Duration(0))
	v.SetDefault("capture_count", uint64(0))
	v.SetDefault("dead_time", DefaultDeadTime)
	v.SetDefault("poll_timeout", DefaultPollTimeout)
	v.SetDefault("output", DefaultOutput)
	v.SetDefault("simulate", false)
	v.SetDefault("simulate_rate", DefaultSimulateRate)
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.driver", DefaultDBDriver)
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.batch_size", DefaultDBBatchSize)
	v.SetDefault("database.batch_timeout", DefaultDBBatchTimeout)
	v.SetDefault("metrics.addr", "")
}

// Load reads the configuration from defaults, the config file, the
// environment and fs, in increasing order of precedence. fs may be nil.
func Load(fs *pflag.FlagSet, opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{envPrefix: defaultEnvPrefix}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidArgument, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for key, name := range flagBindings {
			f := fs.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, errFactory.Wrap(errors.ErrBindFlags, err)
			}
		}
	}

	configPath := o.configPath
	if configPath == "" {
		configPath = os.Getenv(o.envPrefix + "_CONFIG")
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("toml")
		v.AddConfigPath("/etc/radangel")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "radangel"))
		}
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, errFactory.Wrap(errors.ErrReadConfig, err)
			}
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the resolved configuration before a capture starts
func (c *Config) Validate() error {
	errFactory := errors.New()

	if !LogLevel(strings.ToLower(c.LogLevel)).IsValid() && !strings.EqualFold(c.LogLevel, "warn") {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}

	if c.LoggingInterval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.LoggingInterval.String())
	}

	if c.PollTimeout <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, "poll_timeout="+c.PollTimeout.String())
	}

	if c.CaptureTime < 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "capture_time must not be negative")
	}

	if c.DeadTime < 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "dead_time must not be negative")
	}

	if c.Output == "" {
		return errFactory.WithData(errors.ErrMissingConfig, "output")
	}

	if c.Simulate && c.SimulateRate <= 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "simulate_rate must be positive")
	}

	if c.Database.Enabled {
		switch c.Database.Driver {
		case "sqlite3", "mysql":
		default:
			return errFactory.WithData(errors.ErrInvalidConfig, "database.driver="+c.Database.Driver)
		}
		if c.Database.DSN == "" {
			return errFactory.WithData(errors.ErrMissingConfig, "database.dsn")
		}
	}

	return nil
}

// ResolveDeviceID returns the device id for the given HID path. A mapping
// from the config file is used unless a non-default id was set explicitly.
func (c *Config) ResolveDeviceID(path string) string {
	if c.DeviceID != "" && c.DeviceID != DefaultDeviceID {
		return c.DeviceID
	}

	for _, d := range c.Devices {
		if d.Path == path && d.ID != "" {
			return d.ID
		}
	}

	if c.DeviceID == "" {
		return DefaultDeviceID
	}

	return c.DeviceID
}

// SPEPath returns the export file path derived from the log file name
func (c *Config) SPEPath() string {
	return strings.TrimSuffix(c.Output, filepath.Ext(c.Output)) + ".spe"
}
