// Package errors provides coded domain errors for movewatch.
//
// Usage:
//
//	// In the watcher - return typed errors
//	if os.IsNotExist(err) {
//	    return errors.NotFoundf("watch path %s does not exist", path)
//	}
//
//	// In callers - check with errors.Is
//	if errors.Is(err, errors.ErrCapacityExceeded) {
//	    // drop the record
//	}
//
//	// Or switch on the Code
//	var domainErr *errors.Error
//	if errors.As(err, &domainErr) {
//	    switch domainErr.Code {
//	    case errors.CodeNotFound:
//	    case errors.CodePermissionDenied:
//	    }
//	}
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard library helpers, so callers need a single errors import.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
	New    = errors.New
)

// Code classifies an Error for callers and for the control API.
type Code string

// Error codes used throughout movewatch.
const (
	CodeNotFound          Code = "NOT_FOUND"
	CodePermissionDenied  Code = "PERMISSION_DENIED"
	CodeResourceExhausted Code = "RESOURCE_EXHAUSTED"
	CodeInvalidTarget     Code = "INVALID_TARGET"
	CodeCapacityExceeded  Code = "CAPACITY_EXCEEDED"
	CodeValidation        Code = "VALIDATION"
	CodeNotRunning        Code = "NOT_RUNNING"
	CodeUnsupported       Code = "UNSUPPORTED"
	CodeInternal          Code = "INTERNAL"
)

// HTTPStatus returns the HTTP status code the control API uses for an error code.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodePermissionDenied:
		return http.StatusForbidden
	case CodeInvalidTarget, CodeValidation:
		return http.StatusBadRequest
	case CodeResourceExhausted, CodeCapacityExceeded:
		return http.StatusInsufficientStorage
	case CodeNotRunning:
		return http.StatusConflict
	case CodeUnsupported:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// Error is a movewatch error. Message is safe to show to API clients; the
// optional cause is only visible through Error() and Unwrap.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error
}

// Error returns the message followed by the cause, if any.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// HTTPStatus is e.Code.HTTPStatus().
func (e *Error) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error carrying details.
func (e *Error) WithDetails(details any) *Error {
	return &Error{Code: e.Code, Message: e.Message, Details: details, cause: e.cause}
}

// WithCause returns a copy of the error wrapping err.
func (e *Error) WithCause(err error) *Error {
	return &Error{Code: e.Code, Message: e.Message, Details: e.Details, cause: err}
}

// Sentinels match any *Error with the same Code under errors.Is.
var (
	ErrNotFound          = &Error{Code: CodeNotFound, Message: "not found"}
	ErrPermissionDenied  = &Error{Code: CodePermissionDenied, Message: "permission denied"}
	ErrResourceExhausted = &Error{Code: CodeResourceExhausted, Message: "resource exhausted"}
	ErrInvalidTarget     = &Error{Code: CodeInvalidTarget, Message: "invalid watch target"}
	ErrCapacityExceeded  = &Error{Code: CodeCapacityExceeded, Message: "capacity exceeded"}
	ErrValidation        = &Error{Code: CodeValidation, Message: "validation error"}
	ErrNotRunning        = &Error{Code: CodeNotRunning, Message: "not running"}
	ErrUnsupported       = &Error{Code: CodeUnsupported, Message: "unsupported"}
	ErrInternal          = &Error{Code: CodeInternal, Message: "internal error"}
)

// NotFoundf reports a missing path or watch.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// PermissionDeniedf creates a permission denied error with formatted message.
func PermissionDeniedf(format string, args ...any) *Error {
	return &Error{Code: CodePermissionDenied, Message: fmt.Sprintf(format, args...)}
}

// ResourceExhaustedf creates a resource exhausted error with formatted message.
func ResourceExhaustedf(format string, args ...any) *Error {
	return &Error{Code: CodeResourceExhausted, Message: fmt.Sprintf(format, args...)}
}

// InvalidTargetf creates an invalid target error with formatted message.
func InvalidTargetf(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidTarget, Message: fmt.Sprintf(format, args...)}
}

// CapacityExceededf creates a capacity exceeded error with formatted message.
func CapacityExceededf(format string, args ...any) *Error {
	return &Error{Code: CodeCapacityExceeded, Message: fmt.Sprintf(format, args...)}
}

// Validation reports bad caller input.
func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

// Validationf is Validation with formatting.
func Validationf(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// ValidationWithDetails attaches per-field problems to a validation error.
func ValidationWithDetails(msg string, details any) *Error {
	return &Error{Code: CodeValidation, Message: msg, Details: details}
}

// NotRunning creates a not running error.
func NotRunning(msg string) *Error {
	return &Error{Code: CodeNotRunning, Message: msg}
}

// Unsupported creates an unsupported error.
func Unsupported(msg string) *Error {
	return &Error{Code: CodeUnsupported, Message: msg}
}

// Internalf reports an unexpected failure.
func Internalf(format string, args ...any) *Error {
	return &Error{Code: CodeInternal, Message: fmt.Sprintf(format, args...)}
}

// Wrap gives err a code and a client-facing message.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// Wrapf is Wrap with formatting.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}

// CodeOf returns the code of the first *Error in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return CodeInternal
}
