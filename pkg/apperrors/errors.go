package apperrors

import (
	"errors"
	"fmt"
)

// Error is a classified engine error carrying a stable code.
type Error struct {
	Def     Code
	Details string
	Cause   error
}

// New creates an Error for the given code definition.
func New(def Code, details string) *Error {
	return &Error{Def: def, Details: details}
}

// Wrap creates an Error for the given code definition with an underlying cause.
func Wrap(def Code, details string, cause error) *Error {
	return &Error{Def: def, Details: details, Cause: cause}
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Def.Code, e.Def.Message)
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether the operation that produced this error can be retried.
// This satisfies the retry package's RetryableError interface.
func (e *Error) IsRetryable() bool {
	return e.Def.Retryable
}

// CodeOf extracts the code definition from an error chain.
// Unclassified errors map to SysInternalError.
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Def
	}
	return SysInternalError
}

// IsRetryable reports whether an error chain contains a retryable engine error.
func IsRetryable(err error) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Def.Retryable
	}
	return false
}
