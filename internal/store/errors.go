package store

import "github.com/radangel/radangel/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig     = errors.ErrInvalidConfig
	ErrInvalidDSN        = errors.ErrorCode("store_invalid_dsn")
	ErrUnsupportedDriver = errors.ErrorCode("store_unsupported_driver")

	// Schema Errors
	ErrSchemaInitFailed       = errors.ErrorCode("store_schema_init_failed")
	ErrSchemaValidationFailed = errors.ErrorCode("store_schema_validation_failed")
	ErrSchemaMigrationFailed  = errors.ErrorCode("store_schema_migration_failed")
	ErrTransactionFailed      = errors.ErrorCode("store_transaction_failed")

	// Storage Errors
	ErrStorageInit  = errors.ErrInitFailed
	ErrStorageClose = errors.ErrShutdownFailed

	// Service Errors
	ErrServiceShutdown = errors.ErrShutdownFailed

	// Recording Errors
	ErrRecordFailed  = errors.ErrorCode("store_record_failed")
	ErrInvalidRecord = errors.ErrorCode("store_invalid_record")

	// Operation Errors
	ErrOperationTimeout = errors.ErrTimeout
)
