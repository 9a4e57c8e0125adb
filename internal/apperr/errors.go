// Package apperr holds the error taxonomy shared by the service layers.
package apperr

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeValidation        Code = "VALIDATION"
	CodeSourceUnavailable Code = "SOURCE_UNAVAILABLE"
	CodeNotFound          Code = "NOT_FOUND"
	CodeInternal          Code = "INTERNAL"
)

// Error is a classified failure. Source names the data source for
// CodeSourceUnavailable ("analytics", "spend").
type Error struct {
	Code    Code
	Message string
	Source  string
	Cause   error
	// TooLarge marks a validation failure caused by payload size.
	TooLarge bool
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

func Validationf(format string, args ...any) *Error {
	return Validation(fmt.Sprintf(format, args...))
}

func Unavailable(source string, cause error) *Error {
	return &Error{Code: CodeSourceUnavailable, Message: source + " unavailable", Source: source, Cause: cause}
}

func NotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

func Internal(msg string, cause error) *Error {
	return &Error{Code: CodeInternal, Message: msg, Cause: cause}
}

func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

func IsTooLarge(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.TooLarge
}
