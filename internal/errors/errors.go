// Package errors provides the coded error taxonomy shared by the client
// packages.
//
// Every failure surfaced by the client is a *StructuredError carrying one of
// the codes below, so callers can branch on the kind of failure without
// matching message text:
//
//	values, err := client.FetchValues(ctx, req)
//	if errors.Is(err, apierrors.ErrDecode) {
//	    // the server answered but the body was not a value list
//	}
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a structured error classification.
type ErrorCode string

const (
	// ErrCodeAuthentication indicates the token exchange failed or returned an unusable body.
	ErrCodeAuthentication ErrorCode = "AUTHENTICATION"
	// ErrCodeTransport indicates a request could not be sent or returned a non-success status.
	ErrCodeTransport ErrorCode = "TRANSPORT"
	// ErrCodeDecode indicates a response body did not match the expected shape.
	ErrCodeDecode ErrorCode = "DECODE"
	// ErrCodeInvalidArgument indicates malformed caller input.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	// ErrCodeInternal indicates an unexpected local failure.
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// Sentinels for errors.Is. Matching is by code only.
var (
	ErrAuthentication  = New(ErrCodeAuthentication, "authentication failed")
	ErrTransport       = New(ErrCodeTransport, "transport failed")
	ErrDecode          = New(ErrCodeDecode, "decode failed")
	ErrInvalidArgument = New(ErrCodeInvalidArgument, "invalid argument")
)

// ContextStatus is the context key holding the HTTP status code of a failed call.
const ContextStatus = "status"

// StructuredError carries an error code for programmatic handling, a
// human-readable message, the underlying cause and optional context for
// diagnostics.
type StructuredError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *StructuredError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is and errors.As support.
func (e *StructuredError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a StructuredError with the same code.
func (e *StructuredError) Is(target error) bool {
	t, ok := target.(*StructuredError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New creates a new StructuredError with the given code and message.
func New(code ErrorCode, message string) *StructuredError {
	return &StructuredError{
		Code:    code,
		Message: message,
	}
}

// NewWithContext creates a new StructuredError with context information.
func NewWithContext(code ErrorCode, message string, context map[string]any) *StructuredError {
	return &StructuredError{
		Code:    code,
		Message: message,
		Context: context,
	}
}

// Wrap wraps an existing error with a code and message.
func Wrap(code ErrorCode, message string, cause error) *StructuredError {
	return &StructuredError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WrapWithContext wraps an error with additional context information.
func WrapWithContext(code ErrorCode, message string, cause error, context map[string]any) *StructuredError {
	return &StructuredError{
		Code:    code,
		Message: message,
		Cause:   cause,
		Context: context,
	}
}

// HasCode reports whether any StructuredError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	var se *StructuredError
	for err != nil {
		if !stderrors.As(err, &se) {
			return false
		}
		if se.Code == code {
			return true
		}
		err = se.Cause
	}
	return false
}

// StatusCode returns the HTTP status recorded on the first StructuredError in
// err's chain that has one, or 0.
func StatusCode(err error) int {
	var se *StructuredError
	for err != nil {
		if !stderrors.As(err, &se) {
			return 0
		}
		if status, ok := se.Context[ContextStatus].(int); ok {
			return status
		}
		err = se.Cause
	}
	return 0
}
