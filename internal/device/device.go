// Package device binds Kromek RadAngel detectors over USB HID and provides
// a simulated detector for dry runs.
package device

import (
	"sync"
	"time"

	"github.com/radangel/radangel/internal/errors"
	"github.com/radangel/radangel/internal/logger"
)

// Device is an open RadAngel detector. Poll is called from a single
// ingestion goroutine; Close must only be called after polling stopped.
type Device struct {
	backend      hidBackend
	handle       hidHandle
	path         string
	manufacturer string
	product      string
	buf          [ReportSize]byte

	mu     sync.Mutex
	closed bool
}

// Enumerate lists the attached RadAngel devices
func Enumerate() ([]Info, error) {
	return enumerate(defaultBackend)
}

func enumerate(b hidBackend) ([]Info, error) {
	if err := b.Init(); err != nil {
		return nil, err
	}
	defer func() {
		if err := b.Exit(); err != nil {
			logger.Warn().Err(err).Msg("Failed to release HID library")
		}
	}()

	devices, err := b.Enumerate(VendorID, 0)
	if err != nil {
		return nil, err
	}

	logger.Debug().Int("count", len(devices)).Msg("Enumerated RadAngel devices")

	return devices, nil
}

// Open opens the detector at path, or the first RadAngel found when path
// is empty.
func Open(path string) (*Device, error) {
	return open(defaultBackend, path)
}

func open(b hidBackend, path string) (*Device, error) {
	errFactory := errors.New()

	if err := b.Init(); err != nil {
		return nil, err
	}

	var (
		handle hidHandle
		err    error
	)
	if path == "" {
		handle, err = b.Open(VendorID, ProductID)
	} else {
		handle, err = b.OpenPath(path)
	}
	if err != nil {
		if exitErr := b.Exit(); exitErr != nil {
			logger.Warn().Err(exitErr).Msg("Failed to release HID library")
		}
		return nil, errFactory.WithData(ErrDeviceNotFound, struct {
			Path  string
			Error string
		}{
			Path:  path,
			Error: err.Error(),
		})
	}

	d := &Device{backend: b, handle: handle, path: path}

	if d.manufacturer, err = handle.GetMfrStr(); err != nil {
		logger.Warn().Err(err).Msg("Failed to get manufacturer string")
	}
	if d.product, err = handle.GetProductStr(); err != nil {
		logger.Warn().Err(err).Msg("Failed to get product string")
	}

	logger.Info().
		Str("path", path).
		Str("manufacturer", d.manufacturer).
		Str("product", d.product).
		Msg("Detected RadAngel")

	return d, nil
}

// Poll reads one report. It returns nil, nil when nothing arrived within
// timeout. Read errors mean the device is gone and carry ErrDeviceFailure.
func (d *Device) Poll(timeout time.Duration) ([]byte, error) {
	errFactory := errors.New()

	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return nil, errFactory.WithMessage(ErrDeviceFailure, "device closed")
	}

	n, err := d.handle.ReadWithTimeout(d.buf[:], timeout)
	if err != nil {
		return nil, errFactory.Wrap(ErrDeviceFailure, err)
	}
	if n == 0 {
		return nil, nil
	}

	report := make([]byte, n)
	copy(report, d.buf[:n])

	return report, nil
}

// Path returns the HID path, empty when opened by vendor and product id.
func (d *Device) Path() string {
	return d.path
}

func (d *Device) Manufacturer() string {
	return d.manufacturer
}

func (d *Device) Product() string {
	return d.product
}

// Close releases the device. It is safe to call more than once.
func (d *Device) Close() error {
	errFactory := errors.New()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	closeErr := d.handle.Close()
	if err := d.backend.Exit(); err != nil {
		return err
	}
	if closeErr != nil {
		return errFactory.Wrap(ErrShutdownFailed, closeErr)
	}

	return nil
}
