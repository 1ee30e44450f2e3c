// Package apperrors defines the closed set of failure kinds surfaced by the
// platform's services and their mapping to HTTP status codes.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a domain failure.
type Kind int

const (
	// KindUnknown is any error not created through this package.
	KindUnknown Kind = iota
	// KindUnauthorized means the caller is not allowed to perform the operation.
	KindUnauthorized
	// KindNotFound means the addressed entity does not exist or is not visible.
	KindNotFound
	// KindConflict means the operation would violate a uniqueness or state rule.
	KindConflict
	// KindExpired means the entity existed but its validity window has passed.
	KindExpired
	// KindInvalid means the input failed boundary validation.
	KindInvalid
)

// String returns the lower-case kind name used in logs.
func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindExpired:
		return "expired"
	case KindInvalid:
		return "invalid"
	}
	return "unknown"
}

// Sentinel errors for use with errors.Is()
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrInvalid      = errors.New("invalid input")
)

func (k Kind) sentinel() error {
	switch k {
	case KindUnauthorized:
		return ErrUnauthorized
	case KindNotFound:
		return ErrNotFound
	case KindConflict:
		return ErrConflict
	case KindExpired:
		return ErrExpired
	case KindInvalid:
		return ErrInvalid
	}
	return nil
}

// Error is a domain failure carrying its Kind and a client-safe message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Unauthorized, NotFound, Conflict, Expired and Invalid are shorthands for New.
func Unauthorized(message string) *Error { return New(KindUnauthorized, message) }
func NotFound(message string) *Error     { return New(KindNotFound, message) }
func Conflict(message string) *Error     { return New(KindConflict, message) }
func Expired(message string) *Error      { return New(KindExpired, message) }
func Invalid(message string) *Error      { return New(KindInvalid, message) }

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Message returns the client-safe message for err. Errors without a kind
// never leak their text.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal server error"
}

// HTTPStatus maps a kind to its response status.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindUnauthorized:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindExpired:
		return http.StatusGone
	case KindInvalid:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// StatusOf is HTTPStatus(KindOf(err)).
func StatusOf(err error) int {
	return HTTPStatus(KindOf(err))
}
