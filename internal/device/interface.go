package device

import "time"

const (
	// VendorID and ProductID identify a Kromek RadAngel on the USB bus.
	VendorID  uint16 = 0x04d8
	ProductID uint16 = 0x100

	// ReportSize is the length of one HID input report.
	ReportSize = 62
)

// Info describes an attached HID device
type Info struct {
	Path         string
	VendorID     uint16
	ProductID    uint16
	Manufacturer string
	Product      string
	Serial       string
}

// hidBackend abstracts hidapi operations for testing
type hidBackend interface {
	Init() error
	Exit() error
	Enumerate(vendorID, productID uint16) ([]Info, error)
	Open(vendorID, productID uint16) (hidHandle, error)
	OpenPath(path string) (hidHandle, error)
}

// hidHandle is the subset of an open HID device the adapter needs
type hidHandle interface {
	ReadWithTimeout(p []byte, timeout time.Duration) (int, error)
	GetMfrStr() (string, error)
	GetProductStr() (string, error)
	Close() error
}
