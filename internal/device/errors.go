package device

import "github.com/radangel/radangel/internal/errors"

const (
	// Initialization and Lifecycle Errors
	ErrInitFailed     = errors.ErrorCode("device_init_failed")
	ErrDeviceNotFound = errors.ErrorCode("device_not_found")
	ErrOpenFailed     = errors.ErrorCode("device_open_failed")
	ErrShutdownFailed = errors.ErrorCode("device_shutdown_failed")
	ErrNotOpen        = errors.ErrorCode("device_not_open")

	// Discovery Errors
	ErrEnumerateFailed = errors.ErrorCode("device_enumerate_failed")

	// Read Errors
	ErrDeviceFailure = errors.ErrDeviceFailure
)
