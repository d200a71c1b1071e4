package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	CodeInvalidRequest        = "InvalidRequest"
	CodeValidation            = "ValidationError"
	CodeNotFound              = "ResourceNotFound"
	CodeConflict              = "Conflict"
	CodeUnauthorized          = "Unauthorized"
	CodeForbidden             = "Forbidden"
	CodeDependencyUnavailable = "DependencyUnavailable"
	CodeRateLimited           = "RateLimited"
	CodeDatabase              = "DatabaseError"
	CodeInternal              = "InternalError"
)

// Code-only sentinels for errors.Is comparisons.
var (
	ErrValidation            = &StandardError{Code: CodeValidation}
	ErrNotFound              = &StandardError{Code: CodeNotFound}
	ErrConflict              = &StandardError{Code: CodeConflict}
	ErrUnauthorized          = &StandardError{Code: CodeUnauthorized}
	ErrForbidden             = &StandardError{Code: CodeForbidden}
	ErrDependencyUnavailable = &StandardError{Code: CodeDependencyUnavailable}
)

// StandardError represents a standardized error response
type StandardError struct {
	Code    string `json:"error"`   // Error code/type (e.g., "ValidationError", "Conflict")
	Message string `json:"message"` // Human-readable error message
	Details string `json:"details"` // Additional details (field name, ids, etc.)

	cause error
}

// Error implements the error interface
func (e *StandardError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap exposes the underlying cause, if any
func (e *StandardError) Unwrap() error {
	return e.cause
}

// Is reports whether target is a code-only sentinel (such as ErrConflict)
// with the same code. Errors carrying a message only match themselves.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok || t.Message != "" {
		return false
	}
	return t.Code == e.Code
}

// HTTPStatus returns the appropriate HTTP status code for the error
func (e *StandardError) HTTPStatus() int {
	switch e.Code {
	case CodeInvalidRequest, CodeValidation:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeDependencyUnavailable:
		return http.StatusServiceUnavailable
	case CodeDatabase, CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// NewStandardError creates a new StandardError
func NewStandardError(errorCode, message, details string) *StandardError {
	return &StandardError{
		Code:    errorCode,
		Message: message,
		Details: details,
	}
}

// Common error constructors
func NewInvalidRequest(message, details string) *StandardError {
	return NewStandardError(CodeInvalidRequest, message, details)
}

func NewValidationError(message, field string) *StandardError {
	return NewStandardError(CodeValidation, message, fmt.Sprintf("Field: %s", field))
}

func NewNotFound(resource, id string) *StandardError {
	return NewStandardError(CodeNotFound, fmt.Sprintf("%s not found", resource), fmt.Sprintf("ID: %s", id))
}

func NewConflict(message, details string) *StandardError {
	return NewStandardError(CodeConflict, message, details)
}

func NewUnauthorized(message, details string) *StandardError {
	return NewStandardError(CodeUnauthorized, message, details)
}

func NewForbidden(message string) *StandardError {
	return NewStandardError(CodeForbidden, message, "")
}

func NewRateLimited(details string) *StandardError {
	return NewStandardError(CodeRateLimited, "too many requests", details)
}

func NewDependencyUnavailable(dependency string, err error) *StandardError {
	e := NewStandardError(CodeDependencyUnavailable, fmt.Sprintf("%s unavailable", dependency), errString(err))
	e.cause = err
	return e
}

func NewDatabaseError(operation string, err error) *StandardError {
	e := NewStandardError(CodeDatabase, fmt.Sprintf("database operation failed: %s", operation), errString(err))
	e.cause = err
	return e
}

func NewInternalError(message string, err error) *StandardError {
	e := NewStandardError(CodeInternal, message, errString(err))
	e.cause = err
	return e
}

// As returns the first StandardError in err's chain
func As(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// HasCode reports whether err carries a StandardError with the given code
func HasCode(err error, code string) bool {
	stdErr, ok := As(err)
	return ok && stdErr.Code == code
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
