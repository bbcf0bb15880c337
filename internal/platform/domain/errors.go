package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the stable, machine-readable category of an application error.
type ErrorKind string

const (
	KindNotFound      ErrorKind = "NOT_FOUND"
	KindUnauthorized  ErrorKind = "UNAUTHORIZED"
	KindForbidden     ErrorKind = "FORBIDDEN"
	KindValidation    ErrorKind = "VALIDATION_ERROR"
	KindPaymentFailed ErrorKind = "PAYMENT_FAILED"
	KindConflict      ErrorKind = "CONFLICT"
	KindInternal      ErrorKind = "INTERNAL"
)

// AppError is an error that carries a kind and a message safe to show to callers.
type AppError struct {
	Kind    ErrorKind
	Message string
	cause   error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *AppError) Unwrap() error { return e.cause }

// Is matches any *AppError of the same kind, so errors.Is(err, ErrNotFound) works.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == ""
}

// Sentinels for errors.Is comparisons by kind.
var (
	ErrNotFound      = &AppError{Kind: KindNotFound}
	ErrUnauthorized  = &AppError{Kind: KindUnauthorized}
	ErrForbidden     = &AppError{Kind: KindForbidden}
	ErrValidation    = &AppError{Kind: KindValidation}
	ErrPaymentFailed = &AppError{Kind: KindPaymentFailed}
	ErrConflict      = &AppError{Kind: KindConflict}
)

// NewNotFoundError reports that an entity is absent or not visible to the caller.
// The two cases are deliberately indistinguishable.
func NewNotFoundError(entity, id string) *AppError {
	return &AppError{Kind: KindNotFound, Message: fmt.Sprintf("%s %s not found", entity, id)}
}

// NewValidationError reports malformed input.
func NewValidationError(message string) *AppError {
	return &AppError{Kind: KindValidation, Message: message}
}

// NewConflictError reports a concurrent modification or a rejected state change.
func NewConflictError(message string) *AppError {
	return &AppError{Kind: KindConflict, Message: message}
}

// NewInvalidStateError reports a transition the state machine does not allow.
func NewInvalidStateError(from, to string) *AppError {
	return &AppError{Kind: KindConflict, Message: fmt.Sprintf("cannot transition from %s to %s", from, to)}
}

// NewForbiddenError reports a valid credential with insufficient role.
func NewForbiddenError(message string) *AppError {
	return &AppError{Kind: KindForbidden, Message: message}
}

// NewUnauthorizedError reports a missing, invalid or expired credential.
func NewUnauthorizedError(message string) *AppError {
	return &AppError{Kind: KindUnauthorized, Message: message}
}

// NewPaymentFailedError reports a gateway rejection or an invalid payment signature.
func NewPaymentFailedError(message string, cause error) *AppError {
	return &AppError{Kind: KindPaymentFailed, Message: message, cause: cause}
}

// KindOf returns the kind of err, or KindInternal for errors that are not AppErrors.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}
