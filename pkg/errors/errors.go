// Package errors defines the taxonomy of error kinds the Command Handler
// Harness maps to HTTP status codes. Every error that can cross an HTTP
// boundary implements AppError. The two kinds that never cross it, outbox
// shipment failure and SSE backpressure, have no error type here: the outbox
// relay logs and retries failed shipments, and the SSE hub evicts slow
// subscribers.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is the base interface for all application errors that have a
// well-defined HTTP mapping.
type AppError interface {
	error
	HTTPStatus() int
	Code() string
}

// ValidationError represents invalid input. Aborts the transaction before
// any row is written.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

func (e *ValidationError) HTTPStatus() int { return http.StatusUnprocessableEntity }
func (e *ValidationError) Code() string    { return "VALIDATION_ERROR" }

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NotFoundError represents a resource that does not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s with ID '%s' not found", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) HTTPStatus() int { return http.StatusNotFound }
func (e *NotFoundError) Code() string    { return "NOT_FOUND" }

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// ConflictError represents a version or uniqueness conflict.
type ConflictError struct {
	Resource string
	Reason   string
}

func (e *ConflictError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s conflict: %s", e.Resource, e.Reason)
	}
	return fmt.Sprintf("%s conflict", e.Resource)
}

func (e *ConflictError) HTTPStatus() int { return http.StatusConflict }
func (e *ConflictError) Code() string    { return "CONFLICT" }

// NewConflictError creates a new ConflictError.
func NewConflictError(resource, reason string) *ConflictError {
	return &ConflictError{Resource: resource, Reason: reason}
}

// PreconditionViolation represents a business precondition failure, e.g.
// completing a task that is already completed. Maps to 409 by default;
// callers that consider the condition a pure input-shape problem may
// instead report it as a ValidationError (422) — the spec leaves the
// choice to the business layer.
type PreconditionViolation struct {
	Message string
}

func (e *PreconditionViolation) Error() string { return e.Message }
func (e *PreconditionViolation) HTTPStatus() int { return http.StatusConflict }
func (e *PreconditionViolation) Code() string    { return "PRECONDITION_VIOLATION" }

// NewPreconditionViolation creates a new PreconditionViolation.
func NewPreconditionViolation(message string) *PreconditionViolation {
	return &PreconditionViolation{Message: message}
}

// DatabaseTransientError represents a transient storage failure (lock busy,
// I/O hiccup). The transaction manager retries it internally a bounded
// number of times before it surfaces.
type DatabaseTransientError struct {
	Context string
	Cause   error
}

func (e *DatabaseTransientError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("transient database error during %s: %v", e.Context, e.Cause)
	}
	return fmt.Sprintf("transient database error: %v", e.Cause)
}
func (e *DatabaseTransientError) HTTPStatus() int { return http.StatusServiceUnavailable }
func (e *DatabaseTransientError) Code() string    { return "DATABASE_TRANSIENT" }
func (e *DatabaseTransientError) Unwrap() error   { return e.Cause }

// NewDatabaseTransientError creates a new DatabaseTransientError, tagged
// with the operation it occurred during (e.g. "insert task").
func NewDatabaseTransientError(context string, cause error) *DatabaseTransientError {
	return &DatabaseTransientError{Context: context, Cause: cause}
}

// DatabasePermanentError represents a non-retryable storage failure (schema
// mismatch, disk full).
type DatabasePermanentError struct {
	Cause error
}

func (e *DatabasePermanentError) Error() string {
	return fmt.Sprintf("permanent database error: %v", e.Cause)
}
func (e *DatabasePermanentError) HTTPStatus() int { return http.StatusInternalServerError }
func (e *DatabasePermanentError) Code() string    { return "DATABASE_PERMANENT" }
func (e *DatabasePermanentError) Unwrap() error   { return e.Cause }

// NewDatabasePermanentError creates a new DatabasePermanentError.
func NewDatabasePermanentError(cause error) *DatabasePermanentError {
	return &DatabasePermanentError{Cause: cause}
}

// InternalError represents anything unexpected. Surfaced and logged with a
// stack by the caller.
type InternalError struct {
	Message string
	Cause   error
}

func (e *InternalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("internal error: %s (caused by: %v)", e.Message, e.Cause)
	}
	return fmt.Sprintf("internal error: %s", e.Message)
}
func (e *InternalError) HTTPStatus() int { return http.StatusInternalServerError }
func (e *InternalError) Code() string    { return "INTERNAL_ERROR" }
func (e *InternalError) Unwrap() error   { return e.Cause }

// NewInternalError creates a new InternalError.
func NewInternalError(message string, cause error) *InternalError {
	return &InternalError{Message: message, Cause: cause}
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

// IsConflict reports whether err is a ConflictError or PreconditionViolation.
func IsConflict(err error) bool {
	var c *ConflictError
	var p *PreconditionViolation
	return errors.As(err, &c) || errors.As(err, &p)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

// GetHTTPStatus returns the HTTP status for err, 500 if it isn't an AppError.
func GetHTTPStatus(err error) int {
	var appErr AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// GetErrorCode returns the taxonomy code for err, "INTERNAL_ERROR" if it
// isn't an AppError.
func GetErrorCode(err error) string {
	var appErr AppError
	if errors.As(err, &appErr) {
		return appErr.Code()
	}
	return "INTERNAL_ERROR"
}
