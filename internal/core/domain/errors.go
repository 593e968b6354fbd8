package domain

import (
	"errors"
	"fmt"
)

// ErrorKind partitions failures by how callers must react to them.
type ErrorKind string

const (
	KindValidation     ErrorKind = "validation"
	KindAuthentication ErrorKind = "authentication"
	KindAuthorization  ErrorKind = "authorization"
	KindNotFound       ErrorKind = "not_found"
	KindConflict       ErrorKind = "conflict"
	KindUnavailable    ErrorKind = "unavailable"
	KindConfiguration  ErrorKind = "configuration"
	KindInternal       ErrorKind = "internal"
)

// Error is a typed business failure. Fields carries per-field validation detail.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error carrying the same kind and code, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Code == e.Code
}

// NewError builds a typed error.
func NewError(kind ErrorKind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// ValidationError builds a validation failure with field-level detail.
func ValidationError(code, message string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message, Fields: fields}
}

// Wrap attaches a cause to a copy of the typed error.
func (e *Error) Wrap(cause error) *Error {
	clone := *e
	clone.Err = cause
	return &clone
}

// KindOf returns the kind of the first typed error in the chain, or KindInternal.
func KindOf(err error) ErrorKind {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return KindInternal
}

// Shared authentication outcome. Callers never learn which check failed.
var ErrNotAuthenticated = NewError(KindAuthentication, "not_authenticated", "authentication required")

// ErrForbidden is returned when a valid identity lacks the required capability.
var ErrForbidden = NewError(KindAuthorization, "forbidden", "insufficient permissions")
