package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for the boundary layer.
type Kind int

const (
	KindInternal Kind = iota
	KindUnauthenticated
	KindForbidden
	KindInvalidArgument
	KindNotEligible
	KindNotFound
	KindConflict
	KindInvalidState
)

// Status returns the HTTP status code a Kind is surfaced as.
func (k Kind) Status() int {
	switch k {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindInvalidArgument, KindInvalidState:
		return http.StatusBadRequest
	case KindNotEligible, KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Name is the stable identifier written into error response bodies.
func (k Kind) Name() string {
	switch k {
	case KindUnauthenticated:
		return "UnauthorizedError"
	case KindForbidden:
		return "InsufficientRightsError"
	case KindInvalidArgument:
		return "BadRequestError"
	case KindNotEligible, KindNotFound:
		return "NotFoundError"
	case KindConflict:
		return "ConflictError"
	case KindInvalidState:
		return "ConversationClosedError"
	default:
		return "InternalServerError"
	}
}

// Error is the typed error raised by guards, the lifecycle machine and the
// messaging gate. Reason is for logs only and never leaves the process.
type Error struct {
	Kind    Kind
	Message string
	Reason  string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if e.Reason != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Reason)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Unauthenticated(message string) *Error { return newError(KindUnauthenticated, message) }

func Forbidden(message string) *Error { return newError(KindForbidden, message) }

func InvalidArgument(message string) *Error { return newError(KindInvalidArgument, message) }

func NotFound(message string) *Error { return newError(KindNotFound, message) }

func Conflict(message string) *Error { return newError(KindConflict, message) }

func InvalidState(message string) *Error { return newError(KindInvalidState, message) }

// NotEligible covers a missing report, a wrong state and an ownership
// mismatch alike. Callers only ever see the generic message.
func NotEligible(reason string) *Error {
	return &Error{Kind: KindNotEligible, Message: "report not found or not eligible", Reason: reason}
}

// Internal wraps an unexpected collaborator failure.
func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// KindOf reports the Kind of err, or KindInternal when err carries none.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == kind
}
