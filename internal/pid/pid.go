// Package pid guards a detector against concurrent captures.
package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/radangel/radangel/internal/errors"
	"github.com/radangel/radangel/internal/logger"
)

const prefix = "radangel"

// File is a PID file owned by one capture
type File struct {
	path string
}

// New returns the PID file for the named capture in the temp directory.
// Captures on different detectors use different names.
func New(name string) *File {
	return NewInDir(os.TempDir(), name)
}

// NewInDir is New with an explicit directory.
func NewInDir(dir, name string) *File {
	base := prefix
	if name != "" {
		base += "-" + sanitize(name)
	}

	return &File{path: filepath.Join(dir, base+".pid")}
}

func (f *File) Path() string {
	return f.path
}

// Write writes the current process ID. It fails with ErrAlreadyRunning when
// a live process holds the file; a stale file is replaced.
func (f *File) Write() error {
	errFactory := errors.New()

	if bytes, err := os.ReadFile(f.path); err == nil {
		if owner, err := strconv.Atoi(strings.TrimSpace(string(bytes))); err == nil && owner != os.Getpid() && alive(owner) {
			return errFactory.WithData(errors.ErrAlreadyRunning, struct {
				Path string
				PID  int
			}{
				Path: f.path,
				PID:  owner,
			})
		}
		logger.Debug().Str("path", f.path).Msg("Replacing stale PID file")
	} else if !os.IsNotExist(err) {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	if err := os.WriteFile(f.path, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

// Remove removes the PID file.
func (f *File) Remove() error {
	errFactory := errors.New()

	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

func alive(pid int) bool {
	if pid <= 0 {
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	return process.Signal(syscall.Signal(0)) == nil
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, strings.TrimPrefix(name, "/dev/"))
}
