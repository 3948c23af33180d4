// Package dErrors provides coded domain errors for the service boundary.
//
// Stores return infra sentinels (pkg/platform/sentinel); services translate
// them into coded errors here; transport maps codes onto HTTP statuses. The
// code travels with the error through wrapping, so handlers can branch on
// HasCode without knowing which layer produced the failure.
package dErrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain error for transport mapping and metrics.
type Code string

const (
	// CodeInvalidInput marks malformed values caught at a trust boundary.
	CodeInvalidInput Code = "invalid_input"
	// CodeBadRequest marks a structurally invalid request body.
	CodeBadRequest Code = "bad_request"
	// CodeUnauthorized marks a missing or unusable actor identity.
	CodeUnauthorized Code = "unauthorized"
	// CodeForbidden marks a caller who is not the actor required for the
	// attempted operation (wrong requester, evaluator or manager).
	CodeForbidden Code = "forbidden"
	// CodeNotFound marks a missing entity.
	CodeNotFound Code = "not_found"
	// CodeConflict marks an operation invalid for the current state,
	// including state transitions lost to a concurrent writer.
	CodeConflict Code = "conflict"
	// CodeDuplicate marks an attempt to create a second open request for a
	// (requester, competency) pair.
	CodeDuplicate Code = "duplicate_open_request"
	// CodePrecondition marks a violated domain precondition, e.g. approving
	// without an evaluation or deriving a level without a classification.
	CodePrecondition Code = "precondition_failed"
	// CodeConsistency marks a failed storage-consistency verification. It is
	// operational, not a user validation failure.
	CodeConsistency Code = "consistency_failure"
	// CodeInvariantViolation marks a broken aggregate invariant.
	CodeInvariantViolation Code = "invariant_violation"
	// CodeInternal is the fallback for unexpected failures.
	CodeInternal Code = "internal"
)

// Error is a domain error carrying a classification code.
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

// New creates a coded domain error.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded domain error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error, preserving the
// cause chain for errors.Is / errors.As.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	var domainErr *Error
	for errors.As(err, &domainErr) {
		if domainErr.Code == code {
			return true
		}
		err = domainErr.cause
		domainErr = nil
	}
	return false
}

// Is is shorthand for HasCode, matching the handler-side call sites.
func Is(err error, code Code) bool { return HasCode(err, code) }

// CodeOf returns the outermost code in the chain, or CodeInternal.
func CodeOf(err error) Code {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a code onto the HTTP status handlers should emit.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeInvalidInput, CodeBadRequest:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeDuplicate, CodeInvariantViolation:
		return http.StatusConflict
	case CodePrecondition:
		return http.StatusUnprocessableEntity
	case CodeConsistency, CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
