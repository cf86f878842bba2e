// Package domainerrors provides coded errors for the service boundary.
// Stores return sentinel errors (pkg/platform/sentinel); services translate
// them into coded errors here; transport maps codes to HTTP statuses.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain error for transport mapping and tests.
type Code string

const (
	// CodeValidation covers malformed or missing caller input.
	CodeValidation Code = "validation"
	// CodeBadRequest covers precondition violations: payment below
	// threshold, referenced entity absent or inactive.
	CodeBadRequest Code = "bad_request"
	// CodeUnauthorized covers signature failures. Distinct root causes are
	// collapsed into this one code so callers cannot probe which check
	// failed.
	CodeUnauthorized Code = "unauthorized"
	// CodeForbidden covers authorization failures: caller is not the
	// resource owner or administrator.
	CodeForbidden Code = "forbidden"
	// CodeNotFound covers lookups of entities that were never created.
	CodeNotFound Code = "not_found"
	// CodeConflict covers state-machine misuse: duplicate ids, repeated
	// registration, joining twice.
	CodeConflict Code = "conflict"
	// CodeInvariantViolation marks a model invariant breach. Services
	// usually re-code these as validation before they reach transport.
	CodeInvariantViolation Code = "invariant_violation"
	// CodeInternal covers infrastructure failures.
	CodeInternal Code = "internal"
)

// Error is a coded domain error, optionally wrapping a cause.
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

// New creates a coded error.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// HasCode is an alias for Is, kept for call-site readability in services.
func HasCode(err error, code Code) bool { return Is(err, code) }

// CodeOf extracts the code from an error chain, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HTTPStatus maps a code to its HTTP response status.
func HTTPStatus(code Code) int {
	switch code {
	case CodeValidation, CodeBadRequest, CodeInvariantViolation:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
