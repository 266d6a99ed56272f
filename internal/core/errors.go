// internal/core/errors.go
package core

import "fmt"

// Error represents a structured error with code and optional cause.
type Error struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is matching by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WrapError creates a new error with the same code but with a cause.
func WrapError(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}

// WithMessage creates a new error with the same code and a more specific message.
func WithMessage(base *Error, msg string, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: msg,
		Cause:   cause,
	}
}

// Predefined errors
var (
	// Input errors
	ErrNotArchive   = &Error{Code: "NOT_AN_ARCHIVE", Message: "not a zip file, no action taken"}
	ErrInvalidEvent = &Error{Code: "INVALID_EVENT", Message: "invalid event payload"}

	// Transfer errors
	ErrDownloadFailed = &Error{Code: "DOWNLOAD_FAILED", Message: "error downloading file"}
	ErrUploadFailed   = &Error{Code: "UPLOAD_FAILED", Message: "error uploading file"}
	ErrListFailed     = &Error{Code: "LIST_FAILED", Message: "error listing objects"}
	ErrFetchFailed    = &Error{Code: "FETCH_FAILED", Message: "error fetching object"}

	// Archive errors
	ErrInvalidArchive = &Error{Code: "INVALID_ARCHIVE", Message: "invalid zip file"}
	ErrBadPassphrase  = &Error{Code: "INVALID_PASSPHRASE", Message: "incorrect password for zip file"}
	ErrMemberFailed   = &Error{Code: "MEMBER_FAILED", Message: "failed to process archive member"}
	ErrArchiveWrite   = &Error{Code: "ARCHIVE_WRITE_FAILED", Message: "error writing archive"}

	// Config errors
	ErrConfigInvalid = &Error{Code: "CONFIG_INVALID", Message: "configuration invalid"}
	ErrConfigMissing = &Error{Code: "CONFIG_MISSING", Message: "required configuration missing"}

	ErrUnexpected = &Error{Code: "UNEXPECTED", Message: "unexpected error"}
)
