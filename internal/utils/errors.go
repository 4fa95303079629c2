package utils

import (
	"errors"
	"fmt"

	"github.com/drivesink/drivesink/internal/types"
)

// Exit codes
const (
	ExitSuccess = 0
	// ExitPartialFailure: run completed but some per-item operations failed
	ExitPartialFailure = 1
	// ExitConfigError: invalid configuration or caller input, nothing ran
	ExitConfigError = 2
	// ExitFatal: run aborted (unreachable source/sink, feed failure)
	ExitFatal = 3
	// Unknown
	ExitUnknown = 99
)

// Error codes (tool-owned, stable)
const (
	ErrCodeSourceUnavailable = "SOURCE_UNAVAILABLE"
	ErrCodeSinkUnavailable   = "SINK_UNAVAILABLE"
	ErrCodeFeedFailed        = "FEED_FAILED"
	ErrCodeDownloadFailed    = "DOWNLOAD_FAILED"
	ErrCodeUploadFailed      = "UPLOAD_FAILED"
	ErrCodeDeleteFailed      = "DELETE_FAILED"
	ErrCodePermissionDenied  = "PERMISSION_DENIED"
	ErrCodeItemNotFound      = "ITEM_NOT_FOUND"
	ErrCodeRateLimited       = "RATE_LIMITED"
	ErrCodeNetworkError      = "NETWORK_ERROR"
	ErrCodeInvalidArgument   = "INVALID_ARGUMENT"
	ErrCodeAuthRequired      = "AUTH_REQUIRED"
	ErrCodeCancelled         = "CANCELLED"
	ErrCodeInternalError     = "INTERNAL_ERROR"
	ErrCodeUnknown           = "UNKNOWN"
)

// SyncErrorBuilder helps construct SyncError instances
type SyncErrorBuilder struct {
	err types.SyncError
}

// NewSyncError creates a new error builder
func NewSyncError(code, message string) *SyncErrorBuilder {
	return &SyncErrorBuilder{
		err: types.SyncError{
			Code:    code,
			Message: message,
		},
	}
}

func (b *SyncErrorBuilder) WithHTTPStatus(status int) *SyncErrorBuilder {
	b.err.HTTPStatus = status
	return b
}

func (b *SyncErrorBuilder) WithRetryable(retryable bool) *SyncErrorBuilder {
	b.err.Retryable = retryable
	return b
}

func (b *SyncErrorBuilder) WithContext(key string, value interface{}) *SyncErrorBuilder {
	if b.err.Context == nil {
		b.err.Context = make(map[string]interface{})
	}
	b.err.Context[key] = value
	return b
}

func (b *SyncErrorBuilder) Build() types.SyncError {
	return b.err
}

// GetExitCode maps an error code to a process exit code
func GetExitCode(errorCode string) int {
	switch errorCode {
	case ErrCodeInvalidArgument:
		return ExitConfigError
	case ErrCodeSourceUnavailable, ErrCodeSinkUnavailable, ErrCodeFeedFailed,
		ErrCodeAuthRequired, ErrCodeCancelled:
		return ExitFatal
	default:
		return ExitUnknown
	}
}

// AppError is a custom error type that carries the structured error info
type AppError struct {
	SyncError types.SyncError
	Cause     error
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.SyncError.Code, e.SyncError.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates an AppError from a SyncError
func NewAppError(syncErr types.SyncError) *AppError {
	return &AppError{SyncError: syncErr}
}

// WrapAppError creates an AppError preserving the underlying cause
func WrapAppError(syncErr types.SyncError, cause error) *AppError {
	return &AppError{SyncError: syncErr, Cause: cause}
}

// ErrorCode extracts the stable code from any error, defaulting to UNKNOWN.
func ErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.SyncError.Code
	}
	return ErrCodeUnknown
}
