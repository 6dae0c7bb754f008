// Package errs defines coded application errors shared by the request path.
// Codes classify a failure for callers (HTTP status mapping, logging) while the
// wrapped cause keeps the detail for errors.Is and errors.As.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard error codes for the application.
const (
	CodeUnknown      = "UNKNOWN"
	CodeNotFound     = "NOT_FOUND"
	CodeValidation   = "VALIDATION"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeConflict     = "CONFLICT"
	CodeUpstream     = "UPSTREAM"
	CodeDatabase     = "DATABASE"
	CodeConfig       = "CONFIG"
)

// ApplicationError is the interface that all our custom errors implement.
type ApplicationError interface {
	error
	Code() string
	Unwrap() error
}

// Error represents a basic application error.
type Error struct {
	code    string
	message string
	err     error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.message, e.err)
	}

	return e.message
}

func (e *Error) Code() string {
	return e.code
}

func (e *Error) Unwrap() error {
	return e.err
}

// Message returns the error message without the wrapped cause.
func (e *Error) Message() string {
	return e.message
}

// Code returns the code of the first ApplicationError in err's chain,
// or CodeUnknown if it doesn't.
func Code(err error) string {
	var appErr ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Code()
	}

	return CodeUnknown
}

// Is reports whether err carries the given code.
func Is(err error, code string) bool {
	return err != nil && Code(err) == code
}

func newError(code, message string, cause error) error {
	return &Error{code: code, message: message, err: cause}
}

func NewNotFound(message string) error {
	return newError(CodeNotFound, message, nil)
}

func NewValidation(message string, cause error) error {
	return newError(CodeValidation, message, cause)
}

func NewUnauthorized(message string) error {
	return newError(CodeUnauthorized, message, nil)
}

func NewConflict(message string) error {
	return newError(CodeConflict, message, nil)
}

func NewUpstream(message string, cause error) error {
	return newError(CodeUpstream, message, cause)
}

func NewDatabase(message string, cause error) error {
	return newError(CodeDatabase, message, cause)
}

func NewConfig(message string, cause error) error {
	return newError(CodeConfig, message, cause)
}

// HTTPStatus maps an error to the status code returned by the HTTP surface.
func HTTPStatus(err error) int {
	switch Code(err) {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeValidation:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeConflict:
		return http.StatusConflict
	case CodeUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the text that is safe to show to API callers.
// Unknown and database errors are masked.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		switch e.code {
		case CodeDatabase, CodeUnknown, CodeConfig:
			return "internal error"
		case CodeUpstream:
			return e.Error()
		}
		return e.message
	}
	return "internal error"
}
