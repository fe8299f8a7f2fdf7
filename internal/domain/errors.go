package domain

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds. Every error produced by the engine matches exactly one of
// these through errors.Is.
var (
	ErrTransientNetwork = errors.New("transient network error")
	ErrAuth             = errors.New("auth error")
	ErrValidation       = errors.New("validation error")
	ErrServer           = errors.New("server error")
)

// ErrUnauthenticated is returned when an operation requires a session.
var ErrUnauthenticated = &Error{Kind: ErrAuth, Op: "session", Message: "not authenticated"}

// Error is a classified engine error.
type Error struct {
	Kind    error
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d): %s", e.Op, e.Kind, e.Status, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// NewError builds a classified error.
func NewError(kind error, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// ValidationError builds an ErrValidation error for op.
func ValidationError(op, message string) *Error {
	return NewError(ErrValidation, op, message)
}

// KindOf returns the sentinel kind of err, or ErrServer for unclassified errors.
// Context cancellation and deadlines count as transient.
func KindOf(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrAuth):
		return ErrAuth
	case errors.Is(err, ErrValidation):
		return ErrValidation
	case errors.Is(err, ErrTransientNetwork),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return ErrTransientNetwork
	default:
		return ErrServer
	}
}

// KindLabel returns a short label for metrics and logs.
func KindLabel(err error) string {
	switch KindOf(err) {
	case nil:
		return "none"
	case ErrAuth:
		return "auth"
	case ErrValidation:
		return "validation"
	case ErrTransientNetwork:
		return "transient"
	default:
		return "server"
	}
}

// IsAuth reports whether err is an authentication failure.
func IsAuth(err error) bool {
	return errors.Is(err, ErrAuth)
}
