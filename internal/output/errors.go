package output

import (
	"errors"
	"fmt"
)

// Error is a structured error with code, message, and optional hint.
type Error struct {
	Code       string
	Message    string
	Hint       string
	HTTPStatus int
	Retryable  bool
	Cause      error
}

func (e *Error) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Hint)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// ExitCode returns the appropriate exit code for this error.
func (e *Error) ExitCode() int {
	return ExitCodeFor(e.Code)
}

// Is matches another *Error by code, so errors.Is(err, ErrSessionExpired())
// works regardless of message or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Error constructors for common cases.

func ErrValidation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

func ErrAuth(msg string) *Error {
	return &Error{
		Code:    CodeAuth,
		Message: msg,
		Hint:    "Run: skyla auth login",
	}
}

func ErrSessionExpired() *Error {
	return &Error{
		Code:       CodeSessionExpired,
		Message:    "Session expired",
		Hint:       "Run: skyla auth login",
		HTTPStatus: 401,
	}
}

func ErrNetwork(cause error) *Error {
	hint := ""
	if cause != nil {
		hint = cause.Error()
	}
	return &Error{
		Code:      CodeNetwork,
		Message:   "Network error",
		Hint:      hint,
		Retryable: true,
		Cause:     cause,
	}
}

func ErrAPI(status int, msg string) *Error {
	return &Error{
		Code:       CodeAPI,
		Message:    msg,
		HTTPStatus: status,
		Retryable:  status >= 500,
	}
}

func ErrUnexpected(cause error) *Error {
	msg := "Unexpected response"
	if cause != nil {
		msg = fmt.Sprintf("Unexpected response: %v", cause)
	}
	return &Error{
		Code:    CodeUnexpected,
		Message: msg,
		Cause:   cause,
	}
}

// AsError attempts to convert an error to an *Error.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{
		Code:    CodeAPI,
		Message: err.Error(),
		Cause:   err,
	}
}

// IsCode reports whether err carries the given error code anywhere in its chain.
func IsCode(err error, code string) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
