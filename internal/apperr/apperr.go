package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a domain failure so the HTTP layer can map it to a status
// code without string matching.
type Kind int

const (
	KindNotFound Kind = iota
	KindBadRequest
	KindForbidden
	KindProvider
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NotFound(format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func BadRequest(format string, args ...interface{}) error {
	return &Error{Kind: KindBadRequest, Message: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...interface{}) error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

// Provider wraps a payment-processor failure with a user-safe message. The
// raw provider error stays attached for logging but is never shown to users.
func Provider(err error, userMessage string) error {
	return &Error{Kind: KindProvider, Message: userMessage, Err: err}
}

func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

func IsNotFound(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindNotFound
}

func IsBadRequest(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindBadRequest
}

func IsForbidden(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindForbidden
}
