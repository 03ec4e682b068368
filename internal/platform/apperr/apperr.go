// Package apperr defines the error taxonomy shared by the booking domains and
// maps it onto HTTP responses.
package apperr

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Kind classifies a domain error. Every kind is recoverable by the caller.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindConflict
	KindInvalidState
	KindPreconditionFailed
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInvalidState:
		return "invalid_state"
	case KindPreconditionFailed:
		return "precondition_failed"
	case KindInvalid:
		return "invalid"
	default:
		return "internal"
	}
}

// Error is a classified domain error. Sentinels are compared by identity, so
// errors.Is works through fmt.Errorf("%w") wrapping.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

// New creates a sentinel error.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the machine-readable code of err, or "internal".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal"
}

// HTTPStatus maps an error kind to a response status.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindInvalidState:
		return http.StatusConflict
	case KindPreconditionFailed:
		return http.StatusPreconditionFailed
	case KindInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Body is the JSON error payload returned to clients.
type Body struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ToHTTP converts err into an echo HTTP error carrying a Body. Internal errors
// are not echoed back.
func ToHTTP(err error) *echo.HTTPError {
	status := HTTPStatus(err)
	if status == http.StatusInternalServerError {
		return echo.NewHTTPError(status, Body{Code: "internal", Message: "internal server error"}).SetInternal(err)
	}
	return echo.NewHTTPError(status, Body{Code: CodeOf(err), Message: err.Error()})
}
