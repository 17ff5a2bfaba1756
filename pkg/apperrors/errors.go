// Package apperrors defines the error taxonomy shared by the authorization
// engine, record services and lifecycle services. Each error carries a Kind
// which the HTTP layer maps to a status code, and a human readable message
// naming the rule, field or state that caused it.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies an application error
type Kind int

const (
	KindInternal Kind = iota
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindConflict
	KindGone
	KindValidation
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindGone:
		return "gone"
	case KindValidation:
		return "validation_error"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal_error"
	}
}

// Error is an application error with a stable code and a client message
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind and code, so sentinel values
// declared with New can be used with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// WithDetail returns a copy carrying an extra detail key
func (e *Error) WithDetail(key, value string) *Error {
	cp := *e
	cp.Details = make(map[string]string, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

// Wrap returns a copy with err as the cause
func (e *Error) Wrap(err error) *Error {
	cp := *e
	cp.Err = err
	return &cp
}

// New builds an error with an explicit code
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Unauthenticated reports a missing or invalid session
func Unauthenticated(message string) *Error {
	return New(KindUnauthenticated, KindUnauthenticated.String(), message)
}

// Forbidden reports a role, field, ownership or organization denial
func Forbidden(message string) *Error {
	return New(KindForbidden, KindForbidden.String(), message)
}

// Forbiddenf is Forbidden with formatting
func Forbiddenf(format string, args ...interface{}) *Error {
	return Forbidden(fmt.Sprintf(format, args...))
}

// NotFound reports a missing resource, or one the caller may not know exists
func NotFound(message string) *Error {
	return New(KindNotFound, KindNotFound.String(), message)
}

// NotFoundf is NotFound with formatting
func NotFoundf(format string, args ...interface{}) *Error {
	return NotFound(fmt.Sprintf(format, args...))
}

// Conflict reports an invalid state transition or duplicate
func Conflict(message string) *Error {
	return New(KindConflict, KindConflict.String(), message)
}

// Conflictf is Conflict with formatting
func Conflictf(format string, args ...interface{}) *Error {
	return Conflict(fmt.Sprintf(format, args...))
}

// Gone reports an expired resource
func Gone(message string) *Error {
	return New(KindGone, KindGone.String(), message)
}

// Validation reports malformed input
func Validation(message string) *Error {
	return New(KindValidation, KindValidation.String(), message)
}

// Validationf is Validation with formatting
func Validationf(format string, args ...interface{}) *Error {
	return Validation(fmt.Sprintf(format, args...))
}

// RateLimited reports a request over a configured limit
func RateLimited(message string) *Error {
	return New(KindRateLimited, KindRateLimited.String(), message)
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
