package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a mnemo error code.
type ErrorCode string

const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST" // 400
	ErrUnauthorized   ErrorCode = "UNAUTHORIZED"    // 401
	ErrNotFound       ErrorCode = "NOT_FOUND"       // 404
	ErrAlreadyExists  ErrorCode = "ALREADY_EXISTS"  // 409
	ErrTooLarge       ErrorCode = "TOO_LARGE"       // 413
	ErrRateLimited    ErrorCode = "RATE_LIMITED"    // 429
	ErrInternal       ErrorCode = "INTERNAL"        // 500
	ErrInvalidConfig  ErrorCode = "INVALID_CONFIG"  // 500
	ErrStoreFailure   ErrorCode = "STORE_FAILURE"   // 502
	ErrDisabled       ErrorCode = "DISABLED"        // 503
	ErrUnavailable    ErrorCode = "UNAVAILABLE"     // 503
)

// MnemoError represents a structured error with code, status, and details.
type MnemoError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *MnemoError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *MnemoError {
	return &MnemoError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewTooLarge creates a 413 error when an input exceeds its length limit.
func NewTooLarge(field string, max, actual int) *MnemoError {
	return &MnemoError{
		Code:    ErrTooLarge,
		Status:  413,
		Message: fmt.Sprintf("%s exceeds maximum length: %d chars (max %d)", field, actual, max),
		Details: map[string]any{"field": field, "max_chars": max, "actual_chars": actual},
	}
}

// NewNotFound creates a 404 error.
func NewNotFound(kind, identifier string) *MnemoError {
	return &MnemoError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"kind": kind, "identifier": identifier},
	}
}

// NewAlreadyExists creates a 409 error for idempotent creates that hit an existing record.
func NewAlreadyExists(kind, identifier string) *MnemoError {
	return &MnemoError{
		Code:    ErrAlreadyExists,
		Status:  409,
		Message: fmt.Sprintf("%s already exists: %s", kind, identifier),
		Details: map[string]any{"kind": kind, "identifier": identifier},
	}
}

// NewDisabled creates a 503 error used when the memory layer is not configured.
func NewDisabled(reason string) *MnemoError {
	return &MnemoError{
		Code:    ErrDisabled,
		Status:  503,
		Message: reason,
	}
}

// NewInvalidConfig creates an error for a malformed configuration value.
func NewInvalidConfig(key, msg string) *MnemoError {
	return &MnemoError{
		Code:    ErrInvalidConfig,
		Status:  500,
		Message: fmt.Sprintf("invalid config %s: %s", key, msg),
		Details: map[string]any{"key": key},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *MnemoError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &MnemoError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// FromStatus classifies a remote store response status.
// 2xx statuses are not errors and return nil.
func FromStatus(status int, msg string) *MnemoError {
	if status >= 200 && status < 300 {
		return nil
	}
	code := ErrStoreFailure
	switch {
	case status == 400 || status == 422:
		code = ErrInvalidRequest
	case status == 401 || status == 403:
		code = ErrUnauthorized
	case status == 404:
		code = ErrNotFound
	case status == 409:
		code = ErrAlreadyExists
	case status == 413:
		code = ErrTooLarge
	case status == 429:
		code = ErrRateLimited
	case status >= 500:
		code = ErrUnavailable
	}
	if msg == "" {
		msg = fmt.Sprintf("store responded with status %d", status)
	}
	return &MnemoError{
		Code:    code,
		Status:  status,
		Message: msg,
		Details: map[string]any{"status": status},
	}
}

// Is checks if err (or anything it wraps) is a MnemoError with the given code.
func Is(err error, code ErrorCode) bool {
	var mErr *MnemoError
	if stderrors.As(err, &mErr) {
		return mErr.Code == code
	}
	return false
}

// From returns the MnemoError in err's chain, or nil.
func From(err error) *MnemoError {
	var mErr *MnemoError
	if stderrors.As(err, &mErr) {
		return mErr
	}
	return nil
}

// Class returns the error code of err for log lines, or "UNKNOWN" for foreign errors.
func Class(err error) string {
	if err == nil {
		return ""
	}
	var mErr *MnemoError
	if stderrors.As(err, &mErr) {
		return string(mErr.Code)
	}
	return "UNKNOWN"
}
