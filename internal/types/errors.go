package types

import (
	"errors"
	"fmt"
)

// Code is a short, stable error classification surfaced to every caller
// (spec §7). Names are conceptual, not tied to any particular RPC
// transport's status codes.
type Code string

const (
	CodeNotFound            Code = "NotFound"
	CodeInvalidArgument      Code = "InvalidArgument"
	CodeConflict             Code = "Conflict"
	CodeProviderUnavailable  Code = "ProviderUnavailable"
	CodeUnparseableOutput    Code = "UnparseableOutput"
	CodeFeatureUnavailable   Code = "FeatureUnavailable"
	CodeCancelled            Code = "Cancelled"
	CodeTimeout              Code = "Timeout"
	CodeInternal             Code = "Internal"
)

// Error is the concrete error type carried across the core's public
// boundaries: a stable code, a human-readable message, and optional
// structured data for programmatic callers.
type Error struct {
	Code    Code
	Message string
	Data    map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// NewError constructs an *Error with no wrapped cause.
func NewError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap constructs an *Error that wraps cause, preserving it for errors.Is/As.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// WithData attaches structured data and returns the same *Error for
// call-site chaining.
func (e *Error) WithData(data map[string]any) *Error {
	e.Data = data
	return e
}

// CodeOf extracts the Code from err, or CodeInternal if err does not carry
// one.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// Is reports whether err (or anything it wraps) carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
