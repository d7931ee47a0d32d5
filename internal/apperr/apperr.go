// Package apperr defines the closed set of error kinds surfaced by the
// orchestration core. Storage and transport errors are translated into
// these kinds at the repository and client boundaries; callers never see
// raw SDK errors.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers and for HTTP status mapping.
type Kind string

const (
	KindNotFound           Kind = "NotFound"
	KindBadRequest         Kind = "BadRequest"
	KindConflict           Kind = "Conflict"
	KindPreconditionFailed Kind = "PreconditionFailed"
	KindUnauthorized       Kind = "Unauthorized"
	KindServiceUnavailable Kind = "ServiceUnavailable"
	KindThrottled          Kind = "Throttled"
	KindValidation         Kind = "Validation"
	KindInternal           Kind = "Internal"
)

// Error carries a kind, a caller-safe message, and an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an error of the given kind wrapping a cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Retryable reports whether the operation may be retried as-is.
// Only throttling qualifies; conflicts and validation failures will not
// succeed on retry.
func Retryable(err error) bool {
	return Is(err, KindThrottled)
}
