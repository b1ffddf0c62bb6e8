package errors

import (
	"errors"
	"fmt"
)

// Error is the structured error type for mediadex.
// It provides rich context for error handling, logging, and user presentation.
type Error struct {
	// Code is the unique error code (e.g., "ERR_202_STORAGE_FAILURE").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Storage, Export, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	// The core never retries on its own; this is advice for the caller.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with sentinel *Error values.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestion = suggestion
	return e
}

// New creates a new Error with the given code and message.
// Category and severity are derived from the code.
func New(code string, message string, cause error) *Error {
	return &Error{
		Code:     code,
		Message:  message,
		Category: categoryFromCode(code),
		Severity: severityFromCode(code),
		Cause:    cause,
	}
}

// Wrap creates an Error from an existing error.
// The error's message becomes the Error message.
func Wrap(code string, err error) *Error {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Sentinels for errors.Is comparisons against a code.
var (
	ErrStorageFailure = &Error{Code: ErrCodeStorageFailure}
	ErrStoreClosed    = &Error{Code: ErrCodeStoreClosed}
	ErrInvalidInput   = &Error{Code: ErrCodeInvalidInput}
	ErrInvalidLimit   = &Error{Code: ErrCodeInvalidLimit}
	ErrInvalidItem    = &Error{Code: ErrCodeInvalidItem}
	ErrExportWrite    = &Error{Code: ErrCodeExportWrite}
)

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *Error {
	return New(ErrCodeConfigInvalid, message, cause)
}

// StorageFailure wraps an error from the index storage layer.
// The cause is kept intact so callers can inspect the driver error.
func StorageFailure(op string, cause error) *Error {
	if cause == nil {
		return nil
	}
	return New(ErrCodeStorageFailure, op+" failed", cause).WithDetail("op", op)
}

// InvalidInput creates a validation error.
func InvalidInput(message string) *Error {
	return New(ErrCodeInvalidInput, message, nil)
}

// InvalidLimit creates a validation error for pagination values.
func InvalidLimit(message string) *Error {
	return New(ErrCodeInvalidLimit, message, nil)
}

// ExportError creates an export I/O error.
func ExportError(path string, cause error) *Error {
	return New(ErrCodeExportWrite, "failed to write "+path, cause).WithDetail("path", path)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *Error {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var me *Error
	if errors.As(err, &me) {
		return me.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	var me *Error
	if errors.As(err, &me) {
		return me.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from an Error anywhere in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	var me *Error
	if errors.As(err, &me) {
		return me.Code
	}
	return ""
}

// GetCategory extracts the category from an Error anywhere in the chain.
func GetCategory(err error) Category {
	var me *Error
	if errors.As(err, &me) {
		return me.Category
	}
	return ""
}
