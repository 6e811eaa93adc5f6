// Package apperr defines the error taxonomy shared by the domain services,
// the hub channels and the REST API.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalid      = errors.New("invalid request")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
)

// Error carries a client-facing message while still matching one of the
// sentinels above with errors.Is.
type Error struct {
	kind error
	msg  string
}

func (e *Error) Error() string { return e.msg }
func (e *Error) Unwrap() error { return e.kind }

func newError(kind error, format string, args ...any) error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) error  { return newError(ErrNotFound, format, args...) }
func Forbidden(format string, args ...any) error { return newError(ErrForbidden, format, args...) }
func Invalid(format string, args ...any) error   { return newError(ErrInvalid, format, args...) }
func Conflict(format string, args ...any) error  { return newError(ErrConflict, format, args...) }

// Status maps err to an HTTP status code.
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Code maps err to the short code sent to hub clients.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrInvalid):
		return "invalid"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	default:
		return "internal"
	}
}

// Public returns the message safe to show to a client. Internal errors are
// replaced with a generic text so storage details do not leak.
func Public(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.msg
	}
	if Code(err) == "internal" {
		return "internal error"
	}
	return err.Error()
}
