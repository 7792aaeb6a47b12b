// Package export writes capture results to disk: the per-window log file
// and the end of capture SPE spectrum file.
package export

import (
	"context"
	"encoding/csv"
	"os"
	"strconv"
	"sync"

	"github.com/radangel/radangel/internal/acquisition"
	"github.com/radangel/radangel/internal/errors"
	"github.com/radangel/radangel/internal/logger"
	"github.com/radangel/radangel/internal/spectrum"
)

// TimestampFormat is the UTC timestamp layout of log lines and SPE headers.
const TimestampFormat = "2006-01-02T15:04:05Z"

// logFields is the number of columns before the channel counts.
const logFields = 6

// LogFile appends one CSV line per flushed window. Every line is flushed
// and synced before Emit returns.
type LogFile struct {
	mu   sync.Mutex
	path string
	file *os.File
	w    *csv.Writer
	line []string
}

// OpenLogFile opens path for appending, creating it if needed.
func OpenLogFile(path string) (*LogFile, error) {
	errFactory := errors.New()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errFactory.Wrap(ErrOpenFailed, err)
	}

	logger.Debug().Str("path", path).Msg("Opened log file")

	return &LogFile{
		path: path,
		file: f,
		w:    csv.NewWriter(f),
		line: make([]string, logFields+spectrum.NumChannels),
	}, nil
}

func (l *LogFile) Name() string {
	return "logfile"
}

// Path returns the file path.
func (l *LogFile) Path() string {
	return l.path
}

// Emit writes rec as
// timestamp,device_id,realtime,livetime,cpm,counts,c0,...,c4095.
func (l *LogFile) Emit(_ context.Context, rec *acquisition.LogRecord) error {
	errFactory := errors.New()

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return errFactory.New(ErrClosed)
	}

	l.line[0] = rec.Timestamp.UTC().Format(TimestampFormat)
	l.line[1] = rec.DeviceID
	l.line[2] = strconv.FormatFloat(rec.RealTime, 'f', 3, 64)
	l.line[3] = strconv.FormatFloat(rec.LiveTime, 'f', 3, 64)
	l.line[4] = strconv.FormatFloat(rec.CPM, 'f', 3, 64)
	l.line[5] = strconv.FormatUint(rec.Counts, 10)
	for i, n := range rec.Spectrum {
		l.line[logFields+i] = strconv.FormatUint(n, 10)
	}

	if err := l.w.Write(l.line); err != nil {
		return errFactory.Wrap(ErrWriteFailed, err)
	}

	l.w.Flush()
	if err := l.w.Error(); err != nil {
		return errFactory.Wrap(ErrWriteFailed, err)
	}

	if err := l.file.Sync(); err != nil {
		return errFactory.Wrap(ErrSyncFailed, err)
	}

	return nil
}

// Close flushes and closes the file.
func (l *LogFile) Close() error {
	errFactory := errors.New()

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}

	l.w.Flush()
	err := l.w.Error()
	if closeErr := l.file.Close(); err == nil {
		err = closeErr
	}
	l.file = nil

	if err != nil {
		return errFactory.Wrap(ErrWriteFailed, err)
	}

	return nil
}
