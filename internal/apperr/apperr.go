// Package apperr provides typed application errors.
//
// Every error that crosses the HTTP boundary carries a Code so handlers can
// pick a status without string matching:
//
//	err := apperr.New(apperr.CodeInsufficientFunds, "Insufficient funds")
//	if apperr.HasCode(err, apperr.CodeInsufficientFunds) { ... }
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies the kind of failure.
type Code string

const (
	CodeUnknown            Code = "UNKNOWN"
	CodeValidation         Code = "VALIDATION"
	CodeInsufficientFunds  Code = "INSUFFICIENT_FUNDS"
	CodeInsufficientShares Code = "INSUFFICIENT_SHARES"
	CodeNotFound           Code = "NOT_FOUND"
	CodeConflict           Code = "CONFLICT"
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeRateLimited        Code = "RATE_LIMITED"
	CodeUpstream           Code = "UPSTREAM"
	CodeInternal           Code = "INTERNAL"
)

// Error is an error with a code and a human-readable message.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

// New creates a new Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a new Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// GetCode extracts the Code from err, or CodeUnknown if err is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	return GetCode(err) == code
}

// Message returns the public message of err. Errors without a code are
// reported as a generic internal error so driver details never leak.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "Internal server error"
}

// HTTPStatus maps err to a response status.
func HTTPStatus(err error) int {
	switch GetCode(err) {
	case CodeValidation, CodeInsufficientFunds, CodeInsufficientShares:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
