package device

import (
	"sync"
	"time"

	"github.com/radangel/radangel/internal/errors"
	"github.com/sstallion/go-hid"
)

// hidapiBackend reference counts hid.Init so enumeration and open devices
// can share the library.
type hidapiBackend struct {
	mu   sync.Mutex
	refs int
}

var defaultBackend hidBackend = &hidapiBackend{}

func (b *hidapiBackend) Init() error {
	errFactory := errors.New()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.refs == 0 {
		if err := hid.Init(); err != nil {
			return errFactory.Wrap(ErrInitFailed, err)
		}
	}
	b.refs++

	return nil
}

func (b *hidapiBackend) Exit() error {
	errFactory := errors.New()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.refs == 0 {
		return nil
	}

	b.refs--
	if b.refs == 0 {
		if err := hid.Exit(); err != nil {
			return errFactory.Wrap(ErrShutdownFailed, err)
		}
	}

	return nil
}

func (b *hidapiBackend) Enumerate(vendorID, productID uint16) ([]Info, error) {
	errFactory := errors.New()

	var devices []Info
	err := hid.Enumerate(vendorID, productID, func(info *hid.DeviceInfo) error {
		devices = append(devices, Info{
			Path:         info.Path,
			VendorID:     info.VendorID,
			ProductID:    info.ProductID,
			Manufacturer: info.MfrStr,
			Product:      info.ProductStr,
			Serial:       info.SerialNbr,
		})
		return nil
	})
	if err != nil {
		return nil, errFactory.Wrap(ErrEnumerateFailed, err)
	}

	return devices, nil
}

func (b *hidapiBackend) Open(vendorID, productID uint16) (hidHandle, error) {
	errFactory := errors.New()

	d, err := hid.Open(vendorID, productID, "")
	if err != nil {
		return nil, errFactory.Wrap(ErrOpenFailed, err)
	}

	return &hidapiHandle{d}, nil
}

func (b *hidapiBackend) OpenPath(path string) (hidHandle, error) {
	errFactory := errors.New()

	d, err := hid.OpenPath(path)
	if err != nil {
		return nil, errFactory.Wrap(ErrOpenFailed, err)
	}

	return &hidapiHandle{d}, nil
}

// hidapiHandle maps the library timeout onto an empty read
type hidapiHandle struct {
	*hid.Device
}

func (h *hidapiHandle) ReadWithTimeout(p []byte, timeout time.Duration) (int, error) {
	n, err := h.Device.ReadWithTimeout(p, timeout)
	if errors.Is(err, hid.ErrTimeout) {
		return 0, nil
	}

	return n, err
}
