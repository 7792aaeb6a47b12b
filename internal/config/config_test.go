package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radangel/radangel/internal/config"
	"github.com/radangel/radangel/internal/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "radangel.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoad(t *testing.T) {
	configPath := writeConfig(t, `
log_level = "debug"
device_id = "111111-222222"
logging_interval = "30s"
capture_time = "1h"
capture_count = 5000
dead_time = 2e-5
output = "/tmp/capture.log"

[[devices]]
path = "/dev/hidraw3"
id = "333333-444444"

[database]
enabled = true
driver = "mysql"
dsn = "kromek:kromek@tcp(localhost:3306)/kromek"

[metrics]
addr = ":9110"
`)

	// Set environment variable to point to the test config file
	t.Setenv("RADANGEL_CONFIG", configPath)

	cfg, err := config.Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "111111-222222", cfg.DeviceID)
	assert.Equal(t, 30*time.Second, cfg.LoggingInterval)
	assert.Equal(t, time.Hour, cfg.CaptureTime)
	assert.Equal(t, uint64(5000), cfg.CaptureCount)
	assert.InDelta(t, 2e-5, cfg.DeadTime, 1e-12)
	assert.Equal(t, "/tmp/capture.log", cfg.Output)
	require.Len(t, cfg.Devices, 1)
	assert.Equal(t, "/dev/hidraw3", cfg.Devices[0].Path)
	assert.True(t, cfg.Database.Enabled)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, ":9110", cfg.Metrics.Addr)
}

func TestLoadDefaults(t *testing.T) {
	// Ensure no config file is used
	t.Setenv("RADANGEL_CONFIG", "")

	cfg, err := config.Load(nil)
	require.NoError(t, err, "Failed to load config")

	assert.Equal(t, config.DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, config.DefaultDeviceID, cfg.DeviceID)
	assert.Equal(t, 60*time.Second, cfg.LoggingInterval)
	assert.Equal(t, time.Duration(0), cfg.CaptureTime)
	assert.Equal(t, uint64(0), cfg.CaptureCount)
	assert.InDelta(t, 1e-5, cfg.DeadTime, 1e-12)
	assert.Equal(t, 50*time.Millisecond, cfg.PollTimeout)
	assert.Equal(t, "radangel.log", cfg.Output)
	assert.False(t, cfg.Database.Enabled)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Empty(t, cfg.Metrics.Addr)
}

func TestLoadConfigFileInvalidFormat(t *testing.T) {
	configPath := writeConfig(t, `
This is not a valid TOML file
`)
	t.Setenv("RADANGEL_CONFIG", configPath)

	_, err := config.Load(nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrReadConfig))
	assert.Contains(t, err.Error(), "Failed to read config file")
}

func TestInvalidLogLevel(t *testing.T) {
	configPath := writeConfig(t, `
log_level = "invalid"
`)
	t.Setenv("RADANGEL_CONFIG", configPath)

	_, err := config.Load(nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidLogLevel))
}

func TestInvalidInterval(t *testing.T) {
	t.Setenv("RADANGEL_CONFIG", "")
	t.Setenv("RADANGEL_LOGGING_INTERVAL", "0s")

	_, err := config.Load(nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidInterval))
}

func TestDatabaseRequiresDSN(t *testing.T) {
	configPath := writeConfig(t, `
[database]
enabled = true
`)

	_, err := config.Load(nil, config.WithConfigFile(configPath))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrMissingConfig))
}

func TestFlagsOverrideFile(t *testing.T) {
	configPath := writeConfig(t, `
device_id = "from-file"
logging_interval = "30s"
`)

	fs := pflag.NewFlagSet("capture", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--deviceid", "from-flag", "-c", "500", "--capturetime", "65s"}))

	cfg, err := config.Load(fs, config.WithConfigFile(configPath))
	require.NoError(t, err)

	assert.Equal(t, "from-flag", cfg.DeviceID)
	assert.Equal(t, 30*time.Second, cfg.LoggingInterval, "unset flag must not override the file")
	assert.Equal(t, uint64(500), cfg.CaptureCount)
	assert.Equal(t, 65*time.Second, cfg.CaptureTime)
}

func TestEnvPrefix(t *testing.T) {
	t.Setenv("RADANGEL_CONFIG", "")
	t.Setenv("KROMEK_DEVICE_ID", "from-env")

	cfg, err := config.Load(nil, config.WithEnvPrefix("KROMEK"))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.DeviceID)
}

func TestResolveDeviceID(t *testing.T) {
	cfg := &config.Config{
		DeviceID: config.DefaultDeviceID,
		Devices: []config.DeviceMapping{
			{Path: "/dev/hidraw1", ID: "aaaaaa-bbbbbb"},
		},
	}

	assert.Equal(t, "aaaaaa-bbbbbb", cfg.ResolveDeviceID("/dev/hidraw1"))
	assert.Equal(t, config.DefaultDeviceID, cfg.ResolveDeviceID("/dev/hidraw2"))

	cfg.DeviceID = "explicit"
	assert.Equal(t, "explicit", cfg.ResolveDeviceID("/dev/hidraw1"))
}

func TestSPEPath(t *testing.T) {
	cfg := &config.Config{Output: "/data/run1.log"}
	assert.Equal(t, "/data/run1.spe", cfg.SPEPath())

	cfg.Output = "capture"
	assert.Equal(t, "capture.spe", cfg.SPEPath())
}
