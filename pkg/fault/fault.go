// Package fault carries the error taxonomy shared by the duffel server and
// the client engine. Stores and transports return sentinel facts (optionally
// wrapped); services and the mutation coordinator translate them into coded
// errors before they reach callers.
package fault

import (
	"errors"
	"fmt"
)

// Code classifies an error for callers that need to branch on outcome
// rather than on message text.
type Code string

const (
	// CodeNetwork covers requests that never produced a usable server
	// response: dial failures, resets, malformed replies, 5xx.
	CodeNetwork Code = "network_failure"
	// CodeValidation covers payloads the server examined and rejected.
	// The message is surfaced to callers verbatim.
	CodeValidation Code = "validation_rejected"
	// CodeUnauthorized covers missing, invalid or insufficient credentials.
	CodeUnauthorized Code = "unauthorized"
	// CodeRoomUnavailable covers joins against lists that do not exist or
	// cannot accept subscribers.
	CodeRoomUnavailable Code = "room_unavailable"
	CodeNotFound        Code = "not_found"
	CodeConflict        Code = "conflict"
	CodeTimeout         Code = "timeout"
	CodeInternal        Code = "internal"
)

// Sentinel facts returned by stores and infrastructure. These state what is
// true about a resource, not why a request was wrong.
var (
	ErrNotFound          = errors.New("not found")
	ErrContainerNotFound = errors.New("container not found")
	ErrKindMismatch      = errors.New("container kind mismatch")
	ErrConflict          = errors.New("conflict")
	ErrClosed            = errors.New("closed")
)

// Error is a coded error. It wraps an optional cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New returns a coded error with the given message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf returns a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns a coded error wrapping cause. Wrapping preserves the chain for
// errors.Is/As while fixing the caller-visible classification.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// CodeOf walks the error chain and returns the first code found, or
// CodeInternal when the chain carries none.
func CodeOf(err error) Code {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return CodeInternal
}

// HasCode reports whether the error chain carries the given code.
func HasCode(err error, code Code) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code == code
	}
	return false
}

// Message returns the message of the outermost coded error, or the plain
// Error() text for uncoded errors. Used by transports that relay server
// rejections verbatim.
func Message(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
