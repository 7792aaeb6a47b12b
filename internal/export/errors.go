package export

import "github.com/radangel/radangel/internal/errors"

const (
	ErrOpenFailed  = errors.ErrorCode("export_open_failed")
	ErrWriteFailed = errors.ErrorCode("export_write_failed")
	ErrSyncFailed  = errors.ErrorCode("export_sync_failed")
	ErrClosed      = errors.ErrorCode("export_closed")
)
