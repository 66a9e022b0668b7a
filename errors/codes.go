// Package errors provides the error taxonomy for chunked cross-endpoint transfers.
// It extends Go's standard error handling with structured error codes, operation
// context, and sentinel errors that can be matched with errors.Is.
package errors

import (
	"context"
	"errors"
)

// ErrorCode represents a specific failure class of a transfer attempt.
// Error codes are string-based for debuggability and natural JSON serialization.
type ErrorCode string

const (
	// Transfer errors.

	// CodeSourceUnavailable indicates the source object is missing or unreadable.
	CodeSourceUnavailable ErrorCode = "SOURCE_UNAVAILABLE"

	// CodeDestinationUnavailable indicates the destination rejected a session call.
	CodeDestinationUnavailable ErrorCode = "DESTINATION_UNAVAILABLE"

	// CodeRetryBudgetExhausted indicates a part kept failing after all retries.
	CodeRetryBudgetExhausted ErrorCode = "RETRY_BUDGET_EXHAUSTED"

	// Protocol errors.

	// CodeInconsistentAcknowledgement indicates a part was acknowledged twice with different tokens.
	CodeInconsistentAcknowledgement ErrorCode = "INCONSISTENT_ACKNOWLEDGEMENT"

	// CodeIncompleteSession indicates a commit was attempted with unacknowledged parts.
	CodeIncompleteSession ErrorCode = "INCOMPLETE_SESSION"

	// Validation errors.

	// CodeInvalidInput indicates the provided input is invalid or malformed.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeNotFound indicates a referenced endpoint, object or session does not exist.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// Permission errors.

	// CodeForbidden indicates the endpoint refused access to the object.
	CodeForbidden ErrorCode = "FORBIDDEN"

	// System errors.

	// CodeCancelled indicates the attempt was cancelled by its caller.
	CodeCancelled ErrorCode = "CANCELLED"

	// CodeUnknown indicates an unknown or unclassified error occurred.
	CodeUnknown ErrorCode = "UNKNOWN"
)

// CodeOf classifies err into an ErrorCode. Protocol errors take precedence over
// endpoint errors because they indicate a defect rather than an outage.
func CodeOf(err error) ErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInconsistentAcknowledgement):
		return CodeInconsistentAcknowledgement
	case errors.Is(err, ErrIncompleteSession):
		return CodeIncompleteSession
	case errors.Is(err, ErrRetryBudgetExhausted):
		return CodeRetryBudgetExhausted
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, ErrSourceUnavailable):
		return CodeSourceUnavailable
	case errors.Is(err, ErrDestinationUnavailable):
		return CodeDestinationUnavailable
	case errors.Is(err, ErrAccessDenied):
		return CodeForbidden
	case errors.Is(err, ErrObjectNotFound),
		errors.Is(err, ErrSessionNotFound),
		errors.Is(err, ErrEndpointNotFound):
		return CodeNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeCancelled
	default:
		return CodeUnknown
	}
}
