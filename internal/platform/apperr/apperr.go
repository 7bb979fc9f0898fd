// Package apperr defines the error kinds shared by every domain service and
// their mapping onto HTTP responses.
package apperr

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindDuplicate
	KindUnauthorized
	KindAuthentication
	KindStore
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindDuplicate:
		return "duplicate"
	case KindUnauthorized:
		return "unauthorized"
	case KindAuthentication:
		return "authentication_failed"
	case KindStore:
		return "store"
	default:
		return "internal"
	}
}

// Status returns the HTTP status code for the kind.
func (k Kind) Status() int {
	switch k {
	case KindValidation, KindDuplicate:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusForbidden
	case KindAuthentication:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified error. Message is safe to show to clients; Err is the
// underlying cause and is only ever logged.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same kind and code, so a
// sentinel still matches after WithMessage or Wrap.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// WithMessage returns a copy of e carrying a more specific client message.
func (e *Error) WithMessage(message string) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: message, Err: e.Err}
}

// Wrap returns a copy of e with err attached as the cause.
func (e *Error) Wrap(err error) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: e.Message, Err: err}
}

var (
	ErrInvalidInput = New(KindValidation, "invalid_input", "invalid input")
	ErrStore        = New(KindStore, "store_error", "internal server error")
)

// Validation returns an invalid-input error with the given client message.
func Validation(message string) *Error {
	return ErrInvalidInput.WithMessage(message)
}

// Store classifies a persistence failure. A nil err yields nil.
func Store(err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return ErrStore.Wrap(err)
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// HTTP converts err into an echo.HTTPError. Internal and store failures are
// reported with a generic message; the cause stays attached as Internal so
// the request logger records it.
func HTTP(err error) *echo.HTTPError {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	var ae *Error
	if !errors.As(err, &ae) || ae.Kind == KindInternal || ae.Kind == KindStore {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}
	return echo.NewHTTPError(ae.Kind.Status(), ae.Message).SetInternal(err)
}

// BadBody maps a failure to read or decode the request body to 400. A 413
// raised while reading past the body limit keeps its status.
func BadBody(err error) *echo.HTTPError {
	var he *echo.HTTPError
	if errors.As(err, &he) && he.Code == http.StatusRequestEntityTooLarge {
		return he
	}
	return echo.NewHTTPError(http.StatusBadRequest, "invalid request body").SetInternal(err)
}
