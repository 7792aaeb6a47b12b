package main

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radangel/radangel/internal/config"
	"github.com/radangel/radangel/internal/device"
	"github.com/radangel/radangel/internal/errors"
)

func TestCaptureSimulated(t *testing.T) {
	t.Setenv("RADANGEL_CONFIG", "")

	dir := t.TempDir()
	output := filepath.Join(dir, "run.log")
	dsn := filepath.Join(dir, "spectra.db")

	root := newRootCmd()
	root.SetArgs([]string{
		"capture", output,
		"--simulate", "--simulate-rate", "2000",
		"--interval", "100ms",
		"--capturetime", "350ms",
		"--log-level", "error",
		"--database", "--db-dsn", dsn,
		"--deviceid", "123456-654321",
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, root.ExecuteContext(ctx))

	logLines := strings.Split(strings.TrimSpace(readFile(t, output)), "\n")
	require.GreaterOrEqual(t, len(logLines), 3)
	fields := strings.Split(logLines[0], ",")
	assert.Len(t, fields, 6+4096)
	assert.Equal(t, "123456-654321", fields[1])

	spe := strings.Split(readFile(t, filepath.Join(dir, "run.spe")), "\n")
	assert.Equal(t, "$SPEC_REM:", spe[0])
	assert.Contains(t, spe[2], ",123456-654321,")

	db, err := sql.Open("sqlite3", dsn)
	require.NoError(t, err)
	defer db.Close()

	var rows int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM spectra").Scan(&rows))
	assert.Equal(t, len(logLines), rows)
}

func TestCaptureRejectsInvalidConfig(t *testing.T) {
	t.Setenv("RADANGEL_CONFIG", "")

	root := newRootCmd()
	root.SetArgs([]string{"capture", "--simulate", "--interval", "0s"})

	err := root.Execute()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidInterval))
}

func TestPrintDevices(t *testing.T) {
	cfg := &config.Config{
		DeviceID: config.DefaultDeviceID,
		Devices:  []config.DeviceMapping{{Path: "/dev/hidraw1", ID: "aaaaaa-bbbbbb"}},
	}

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)

	require.NoError(t, printDevices(cmd, cfg, []device.Info{
		{Path: "/dev/hidraw1", Manufacturer: "Kromek", Product: "RadAngel"},
		{Path: "/dev/hidraw2", Manufacturer: "Kromek", Product: "RadAngel"},
	}))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "aaaaaa-bbbbbb")
	assert.Contains(t, lines[2], config.DefaultDeviceID)

	out.Reset()
	require.NoError(t, printDevices(cmd, cfg, nil))
	assert.Equal(t, "No RadAngel devices found\n", out.String())
}

func readFile(t *testing.T, path string) string {
	t.Helper()

	b, err := os.ReadFile(path)
	require.NoError(t, err)

	return string(b)
}
