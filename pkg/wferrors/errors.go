// Package wferrors defines the error kinds WaffleMaker uses to decide retry
// and rollback policy (§7) and to render the management API's error
// envelope.
package wferrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for propagation policy purposes.
type Kind string

const (
	KindParse    Kind = "parse_error"
	KindAuth     Kind = "auth_error"
	KindNotFound Kind = "not_found"
	KindConflict Kind = "conflict"
	KindUpstream Kind = "upstream_error"
	KindTransient Kind = "transient"
	KindFatal    Kind = "fatal"
)

// Error wraps an underlying cause with a Kind so callers can branch on it
// with errors.As.
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

// New constructs an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error of the given kind around an existing error.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, defaulting to KindFatal when err
// carries no wferrors.Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindFatal
}
