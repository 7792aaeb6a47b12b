package acquisition

import "github.com/radangel/radangel/internal/errors"

const (
	// Lifecycle Errors
	ErrInvalidState = errors.ErrorCode("acquisition_invalid_state")
	ErrNoSource     = errors.ErrorCode("acquisition_no_source")

	// Ingestion Errors
	ErrPollFailed    = errors.ErrPollFailed
	ErrDeviceFailure = errors.ErrDeviceFailure

	// Export Errors
	ErrSinkFailed = errors.ErrSinkFailed
)
