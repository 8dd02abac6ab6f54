// Package errors provides structured error handling with stable
// machine-readable codes and HTTP status code mapping.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is the machine-readable error code returned to callers.
type Code string

const (
	// CodeMissingHierarchy: a full sync was submitted without a hierarchy.
	CodeMissingHierarchy Code = "MISSING_HIERARCHY"
	// CodeInvalidPayload: neither isFullSync nor changes was present.
	CodeInvalidPayload Code = "INVALID_PAYLOAD"
	// CodeInternal: unhandled server-side failure.
	CodeInternal Code = "INTERNAL_ERROR"
)

// Error is a structured error with a stable code and an HTTP status.
type Error struct {
	Code    Code
	Status  int
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Validation creates a rejected-input error (HTTP 400) with the given code.
func Validation(code Code, message string) *Error {
	return &Error{Code: code, Status: http.StatusBadRequest, Message: message}
}

// Internal wraps an unexpected failure (HTTP 500).
func Internal(message string, cause error) *Error {
	return &Error{Code: CodeInternal, Status: http.StatusInternalServerError, Message: message, Cause: cause}
}

// Response is the JSON body sent to callers on failure.
type Response struct {
	Error string `json:"error"`
	Code  Code   `json:"code"`
}

// ToResponse converts the error to its wire form. When hideDetail is set
// (production mode), internal errors are reported generically.
func (e *Error) ToResponse(hideDetail bool) Response {
	if hideDetail && e.Status >= http.StatusInternalServerError {
		return Response{Error: "internal server error", Code: e.Code}
	}
	return Response{Error: e.Message, Code: e.Code}
}

// AsStructured converts any error into a structured *Error, wrapping
// unknown errors as internal.
func AsStructured(err error) *Error {
	if err == nil {
		return nil
	}
	var structured *Error
	if errors.As(err, &structured) {
		return structured
	}
	return Internal("internal server error", err)
}
