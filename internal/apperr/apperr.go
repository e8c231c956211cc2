package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	Validation Kind = iota
	Conflict
	NotFound
	Upstream
	Internal
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "VALIDATION"
	case Conflict:
		return "CONFLICT"
	case NotFound:
		return "NOT_FOUND"
	case Upstream:
		return "UPSTREAM_UNAVAILABLE"
	default:
		return "INTERNAL"
	}
}

// Error is a typed failure carrying the taxonomy kind and, for validation
// failures, the offending field.
type Error struct {
	Kind    Kind
	Field   string
	Message string
	wrapped error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.wrapped }

func New(k Kind, msg string) *Error { return &Error{Kind: k, Message: msg} }

func Newf(k Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...)}
}

func Field(k Kind, field, msg string) *Error {
	return &Error{Kind: k, Field: field, Message: msg}
}

func Wrap(k Kind, msg string, err error) *Error {
	return &Error{Kind: k, Message: msg, wrapped: err}
}

// KindOf extracts the taxonomy kind, defaulting to Internal for untyped
// errors.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Internal
}

func Is(err error, k Kind) bool { return err != nil && KindOf(err) == k }

// Status maps a kind to the HTTP status handlers respond with.
func Status(err error) int {
	switch KindOf(err) {
	case Validation:
		return http.StatusBadRequest
	case Conflict:
		return http.StatusConflict
	case NotFound:
		return http.StatusNotFound
	case Upstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
