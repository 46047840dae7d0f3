package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Category is the machine-readable classification exposed to callers.
type Category string

const (
	CategoryUnauthenticated   Category = "unauthenticated"
	CategoryPermissionDenied  Category = "permission-denied"
	CategoryInvalidArgument   Category = "invalid-argument"
	CategoryNotFound          Category = "not-found"
	CategoryAlreadyExists     Category = "already-exists"
	CategoryResourceExhausted Category = "resource-exhausted"
	CategoryInternal          Category = "internal"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code     string   `json:"code"`
	Category Category `json:"category"`
	Message  string   `json:"message"`
	Status   int      `json:"status"`
	Err      error    `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, category Category, status int, message string) *Error {
	return &Error{Code: code, Category: category, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, category Category, status int, message string) *Error {
	return &Error{Code: code, Category: category, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrUnauthorized = New("UNAUTHORIZED", CategoryUnauthenticated, http.StatusUnauthorized, "unauthorized")
	ErrForbidden    = New("FORBIDDEN", CategoryPermissionDenied, http.StatusForbidden, "forbidden")
	ErrValidation   = New("VALIDATION_ERROR", CategoryInvalidArgument, http.StatusBadRequest, "validation failed")
	ErrNotFound     = New("NOT_FOUND", CategoryNotFound, http.StatusNotFound, "resource not found")
	ErrConflict     = New("CONFLICT", CategoryAlreadyExists, http.StatusConflict, "conflict")
	ErrBatchLimit   = New("BATCH_LIMIT_EXCEEDED", CategoryResourceExhausted, http.StatusUnprocessableEntity, "operation exceeds the store batch limit")
	ErrInternal     = New("INTERNAL_ERROR", CategoryInternal, http.StatusInternalServerError, "internal server error")
)

// Internal wraps err with the generic internal error and a custom message.
func Internal(err error, message string) *Error {
	return Wrap(err, ErrInternal.Code, ErrInternal.Category, ErrInternal.Status, message)
}

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Category, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
