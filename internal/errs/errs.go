// Package errs defines the error taxonomy shared by every notecore
// component and its mapping onto HTTP status codes at the API boundary.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an Error for boundary handling and logging policy.
type Kind int

const (
	// KindInternal is the catch-all for unclassified faults.
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindUnauthorized
	KindForbidden
	KindRateLimited
	KindInvariantViolation
	KindTransientStore
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindRateLimited:
		return "rate_limited"
	case KindInvariantViolation:
		return "invariant_violation"
	case KindTransientStore:
		return "transient_store_error"
	default:
		return "internal_error"
	}
}

// HTTPStatus returns the status code the boundary should render for k.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindInvariantViolation, KindTransientStore, KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Error is the error type returned by every notecore package.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates an Error of the given kind with a message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches cause to a new Error of the given kind.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Validation is a convenience constructor for the common ValidationError case.
func Validation(format string, args ...any) *Error {
	return Newf(KindValidation, format, args...)
}

// NotFound is a convenience constructor for the common NotFound case.
func NotFound(format string, args ...any) *Error {
	return Newf(KindNotFound, format, args...)
}

// InvariantViolation is a convenience constructor for index/data corruption faults.
func InvariantViolation(format string, args ...any) *Error {
	return Newf(KindInvariantViolation, format, args...)
}

// TransientStore wraps a storage I/O failure.
func TransientStore(cause error, message string) *Error {
	return Wrap(KindTransientStore, cause, message)
}

// As reports whether err is (or wraps) an *Error and, if so, returns it.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it is an *Error, else KindInternal.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}
