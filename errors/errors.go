package errors

import (
	"errors"
	"fmt"
)

// Error represents a transfer operation error with context about where it failed.
// It wraps the underlying endpoint or protocol error with additional context for
// better debugging.
type Error struct {
	// Op is the operation that failed (e.g., "probe", "putPart", "commit")
	Op string

	// Endpoint is the name of the endpoint involved (if applicable)
	Endpoint string

	// Object is the endpoint-relative object identifier (if applicable)
	Object string

	// Part is the 1-based part number (zero when not part-scoped)
	Part int32

	// Err is the underlying error
	Err error
}

// Error implements the error interface by providing a formatted error message.
func (e *Error) Error() string {
	var where string
	switch {
	case e.Endpoint != "" && e.Object != "":
		where = " " + e.Endpoint + ":" + e.Object
	case e.Endpoint != "":
		where = " endpoint " + e.Endpoint
	case e.Object != "":
		where = " object " + e.Object
	}
	if e.Part > 0 {
		where += fmt.Sprintf(" part %d", e.Part)
	}
	return fmt.Sprintf("xfer.%s%s: %v", e.Op, where, e.Err)
}

// Unwrap returns the underlying error for error chaining support.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithOp replaces the operation name.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// WithEndpoint adds endpoint context to an existing error.
func (e *Error) WithEndpoint(endpoint string) *Error {
	e.Endpoint = endpoint
	return e
}

// WithObject adds object context to an existing error.
func (e *Error) WithObject(object string) *Error {
	e.Object = object
	return e
}

// WithPart adds part number context to an existing error.
func (e *Error) WithPart(part int32) *Error {
	e.Part = part
	return e
}

// WithMessage wraps the underlying error with a custom message.
func (e *Error) WithMessage(message string) *Error {
	e.Err = fmt.Errorf("%s: %w", message, e.Err)
	return e
}

// Code returns the classification of the wrapped error.
func (e *Error) Code() ErrorCode {
	return CodeOf(e.Err)
}

// NewError creates a new Error with the given operation and underlying error.
func NewError(op string, err error) *Error {
	return &Error{
		Op:  op,
		Err: err,
	}
}

// NewObjectError creates a new Error with endpoint and object context.
func NewObjectError(op, endpoint, object string, err error) *Error {
	return &Error{
		Op:       op,
		Endpoint: endpoint,
		Object:   object,
		Err:      err,
	}
}

// Wrap returns an error that matches both kind and cause with errors.Is.
// It is used to attach a taxonomy sentinel to an endpoint error without
// losing the endpoint's own error chain.
func Wrap(kind, cause error) error {
	if cause == nil {
		return kind
	}
	return &kindError{kind: kind, cause: cause}
}

type kindError struct {
	kind  error
	cause error
}

func (k *kindError) Error() string {
	return k.kind.Error() + ": " + k.cause.Error()
}

func (k *kindError) Unwrap() []error {
	return []error{k.kind, k.cause}
}

// Sentinel errors for transfer failures.
// These can be used with errors.Is() for error checking.
var (
	// ErrSourceUnavailable indicates the source object is missing or its bytes cannot be read
	ErrSourceUnavailable = errors.New("xfer: source unavailable")

	// ErrDestinationUnavailable indicates the destination rejected a session open, commit or part write
	ErrDestinationUnavailable = errors.New("xfer: destination unavailable")

	// ErrInconsistentAcknowledgement indicates a part number was acknowledged with two different tokens
	ErrInconsistentAcknowledgement = errors.New("xfer: inconsistent acknowledgement")

	// ErrIncompleteSession indicates a commit was attempted while planned parts lack tokens
	ErrIncompleteSession = errors.New("xfer: incomplete session")

	// ErrRetryBudgetExhausted indicates a part failed more times than the retry budget allows
	ErrRetryBudgetExhausted = errors.New("xfer: retry budget exhausted")

	// ErrCleanupIncomplete indicates staged data could not be removed, either because
	// the abort of a failed attempt failed or because a commit left temporaries behind;
	// the destination may hold an orphaned session that must be reconciled
	ErrCleanupIncomplete = errors.New("xfer: cleanup incomplete")

	// ErrInvalidInput indicates that the provided input is invalid
	ErrInvalidInput = errors.New("xfer: invalid input")

	// ErrObjectNotFound indicates that the requested object does not exist
	ErrObjectNotFound = errors.New("xfer: object not found")

	// ErrSessionNotFound indicates the destination no longer knows the multipart session
	ErrSessionNotFound = errors.New("xfer: session not found")

	// ErrAccessDenied indicates that access to the object is denied
	ErrAccessDenied = errors.New("xfer: access denied")

	// ErrEndpointNotFound indicates a request referenced an endpoint that is not registered
	ErrEndpointNotFound = errors.New("xfer: endpoint not found")

	// ErrSessionClosed indicates an operation on a session that already committed or aborted
	ErrSessionClosed = errors.New("xfer: session closed")
)

// IsObjectNotFound checks if an error indicates that an object was not found.
func IsObjectNotFound(err error) bool {
	return errors.Is(err, ErrObjectNotFound)
}

// IsSessionNotFound checks if an error indicates the multipart session is gone.
func IsSessionNotFound(err error) bool {
	return errors.Is(err, ErrSessionNotFound)
}

// IsInvalidInput checks if an error indicates invalid input.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsCleanupIncomplete reports whether a failed attempt may have left a session open.
func IsCleanupIncomplete(err error) bool {
	return errors.Is(err, ErrCleanupIncomplete)
}

// IsProtocolError reports whether err is a protocol defect that must never be retried.
func IsProtocolError(err error) bool {
	return errors.Is(err, ErrInconsistentAcknowledgement) || errors.Is(err, ErrIncompleteSession)
}
