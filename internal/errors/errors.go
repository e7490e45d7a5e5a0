package errors

import (
	stderrors "errors"
	"fmt"
)

// Sentinel errors for broad classification.
var (
	ErrNotFound     = stderrors.New("not found")
	ErrConflict     = stderrors.New("conflict")
	ErrInvalid      = stderrors.New("invalid")
	ErrForbidden    = stderrors.New("forbidden")
	ErrUnauthorized = stderrors.New("unauthorized")
)

// Kind is a coarse-grained categorization for errors.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindInvalid      Kind = "invalid"
	KindForbidden    Kind = "forbidden"
	KindUnauthorized Kind = "unauthorized"
	KindInternal     Kind = "internal"
)

// OpError wraps an underlying error with operation context and a kind.
type OpError struct {
	Op   string
	Kind Kind
	Msg  string
	Err  error
}

func (e *OpError) Error() string {
	if e == nil {
		return "<nil>"
	}
	base := e.Op
	if e.Msg != "" {
		base += ": " + e.Msg
	} else {
		base += ": " + string(e.Kind)
	}
	if e.Err != nil {
		base += fmt.Sprintf(": %v", e.Err)
	}
	return base
}

func (e *OpError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is lets errors.Is(err, ErrNotFound) match an OpError of the same kind.
func (e *OpError) Is(target error) bool {
	if e == nil {
		return false
	}
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrConflict:
		return e.Kind == KindConflict
	case ErrInvalid:
		return e.Kind == KindInvalid
	case ErrForbidden:
		return e.Kind == KindForbidden
	case ErrUnauthorized:
		return e.Kind == KindUnauthorized
	}
	return false
}

func NotFound(op, msg string) error {
	return &OpError{Op: op, Kind: KindNotFound, Msg: msg}
}

func Conflict(op, msg string) error {
	return &OpError{Op: op, Kind: KindConflict, Msg: msg}
}

func Invalid(op, msg string) error {
	return &OpError{Op: op, Kind: KindInvalid, Msg: msg}
}

func Forbidden(op, msg string) error {
	return &OpError{Op: op, Kind: KindForbidden, Msg: msg}
}

// KindOf returns the kind of err, looking through wrapping.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var oe *OpError
	if stderrors.As(err, &oe) {
		return oe.Kind
	}
	switch {
	case stderrors.Is(err, ErrNotFound):
		return KindNotFound
	case stderrors.Is(err, ErrConflict):
		return KindConflict
	case stderrors.Is(err, ErrInvalid):
		return KindInvalid
	case stderrors.Is(err, ErrForbidden):
		return KindForbidden
	case stderrors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	}
	return KindInternal
}

// IsKind helps callers classify errors without inspecting messages.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
