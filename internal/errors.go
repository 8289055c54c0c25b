package internal

import (
	"errors"
	"net/http"
)

var (
	ErrLinkNotFound       = errors.New("link not found")
	ErrShortCodeExists    = errors.New("short code already exists")
	ErrUserExists         = errors.New("username already taken")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Kind classifies an Error for the HTTP layer.
type Kind int

const (
	KindUpstream Kind = iota
	KindValidation
	KindAuth
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "upstream"
	}
}

// Status maps the kind to its HTTP status code. Missing and not-owned records
// share 404.
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error is the single error shape handed from services to handlers. Message is
// safe to show to the caller; Err carries the cause and is only logged.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Validation(msg string) error {
	return &Error{Kind: KindValidation, Message: msg}
}

func Unauthorized(msg string) error {
	return &Error{Kind: KindAuth, Message: msg}
}

func NotFound(err error) error {
	return &Error{Kind: KindNotFound, Message: err.Error(), Err: err}
}

func Conflict(err error) error {
	return &Error{Kind: KindConflict, Message: err.Error(), Err: err}
}

// Upstream wraps a storage or dependency failure. The caller only ever sees
// the generic message.
func Upstream(err error) error {
	return &Error{Kind: KindUpstream, Message: "internal server error", Err: err}
}

// KindOf reports the kind of err, treating anything unclassified as upstream.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUpstream
}
