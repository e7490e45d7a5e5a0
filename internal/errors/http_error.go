package errors

import (
	stderrors "errors"
	"net/http"
)

// HTTPError represents an error with an associated HTTP status code.
type HTTPError struct {
	Code    int
	Message string
}

func (e *HTTPError) Error() string {
	return e.Message
}

// NewHTTPError creates a new HTTPError with the given code and message.
func NewHTTPError(code int, message string) *HTTPError {
	return &HTTPError{
		Code:    code,
		Message: message,
	}
}

// Helper for common errors
var (
	ErrUnauthorizedHTTP = func(msg string) *HTTPError { return NewHTTPError(http.StatusUnauthorized, msg) }
	ErrBadRequest       = func(msg string) *HTTPError { return NewHTTPError(http.StatusBadRequest, msg) }
)

// StatusFor maps an error to the HTTP status a handler should answer with.
func StatusFor(err error) int {
	var he *HTTPError
	if stderrors.As(err, &he) {
		return he.Code
	}
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindInvalid:
		return http.StatusUnprocessableEntity
	case KindForbidden:
		return http.StatusForbidden
	case KindUnauthorized:
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// PublicMessage returns the message safe to show to clients. Internal errors are hidden.
func PublicMessage(err error) string {
	var he *HTTPError
	if stderrors.As(err, &he) {
		return he.Message
	}
	if KindOf(err) == KindInternal {
		return "internal error"
	}
	var oe *OpError
	if stderrors.As(err, &oe) && oe.Msg != "" {
		return oe.Msg
	}
	return err.Error()
}
