package telemetry

import "github.com/radangel/radangel/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrorCode("telemetry_invalid_config")
	ErrInvalidAddr   = errors.ErrorCode("telemetry_invalid_addr")

	// Exporter Errors
	ErrRegisterFailed = errors.ErrorCode("telemetry_register_failed")
	ErrListenFailed   = errors.ErrorCode("telemetry_listen_failed")

	// Operation Errors
	ErrServiceShutdown = errors.ErrorCode("telemetry_service_shutdown_failed")
)
