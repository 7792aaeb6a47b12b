package errors_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radangel/radangel/internal/errors"
)

func TestErrorMessage(t *testing.T) {
	errFactory := errors.New()

	err := errFactory.New(errors.ErrDeviceFailure)
	assert.Equal(t, "Device failure", err.Error())

	wrapped := errFactory.Wrap(errors.ErrPollFailed, fmt.Errorf("usb timeout"))
	assert.Equal(t, "Failed to poll event source: usb timeout", wrapped.Error())

	withData := errFactory.WithData(errors.ErrInvalidConfig, "logging_interval=0")
	assert.Equal(t, "Invalid configuration: logging_interval=0", withData.Error())

	custom := errFactory.WithMessage(errors.ErrExport, "spe file")
	assert.Equal(t, "spe file", custom.Error())
}

func TestHasCode(t *testing.T) {
	errFactory := errors.New()

	inner := errFactory.Wrap(errors.ErrDeviceFailure, fmt.Errorf("device closed"))
	outer := errFactory.Wrap(errors.ErrCapture, inner)

	assert.True(t, errors.HasCode(outer, errors.ErrCapture))
	assert.True(t, errors.HasCode(outer, errors.ErrDeviceFailure))
	assert.False(t, errors.HasCode(outer, errors.ErrPollFailed))
	assert.False(t, errors.HasCode(nil, errors.ErrCapture))
	assert.False(t, errors.HasCode(fmt.Errorf("plain"), errors.ErrCapture))

	fmtWrapped := fmt.Errorf("read: %w", inner)
	assert.True(t, errors.HasCode(fmtWrapped, errors.ErrDeviceFailure))
}

func TestCodeOf(t *testing.T) {
	errFactory := errors.New()

	assert.Equal(t, errors.ErrTimeout, errors.CodeOf(errFactory.New(errors.ErrTimeout)))
	assert.Equal(t, errors.ErrInternal, errors.CodeOf(fmt.Errorf("plain")))
}

func TestWithMessagePreservesCause(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := errors.New().Wrap(errors.ErrSinkFailed, cause).WithMessage("log file")

	require.Equal(t, errors.ErrSinkFailed, err.Code())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "log file: root cause", err.Error())
}
