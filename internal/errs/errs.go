package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the transport layer.
type Kind string

const (
	KindValidation        Kind = "VALIDATION"
	KindNotFoundForbidden Kind = "NOT_FOUND_OR_FORBIDDEN"
	KindUnauthorized      Kind = "UNAUTHORIZED"
	KindBrokerUnavailable Kind = "BROKER_UNAVAILABLE"
	KindInternal          Kind = "INTERNAL"
)

// Error carries a kind, a user-facing message and optional field detail.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func Validation(msg string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: msg, Fields: fields}
}

// NotFoundOrForbidden deliberately collapses "does not exist" and
// "not yours" so callers cannot probe for existence.
func NotFoundOrForbidden(what string) *Error {
	return &Error{Kind: KindNotFoundForbidden, Message: what + " not found"}
}

func Unauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

func BrokerUnavailable(err error) *Error {
	return &Error{Kind: KindBrokerUnavailable, Message: "event broker unavailable", cause: err}
}

func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", cause: err}
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
