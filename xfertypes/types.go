// Package xfertypes provides shared type definitions for the transfer engine.
package xfertypes

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/input-output-hk/catalyst-forge-libs/xfer/endpoint"
)

// ObjectRef names an object on a registered endpoint.
type ObjectRef struct {
	// Endpoint is the name the endpoint was registered under
	Endpoint string

	// Object is the endpoint-relative object name
	Object string
}

// String renders the reference as endpoint:object.
func (r ObjectRef) String() string {
	return r.Endpoint + ":" + r.Object
}

// TransferRequest describes one object to move from a source to a destination.
type TransferRequest struct {
	Source      ObjectRef
	Destination ObjectRef

	// PartSize overrides the client part size when positive
	PartSize int64
}

// OutcomeKind reports how a transfer ended.
type OutcomeKind int

const (
	// Committed means the destination object exists with the full content.
	Committed OutcomeKind = iota
	// Aborted means no destination object was created.
	Aborted
)

// String returns the lowercase name of the outcome.
func (k OutcomeKind) String() string {
	switch k {
	case Committed:
		return "committed"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Outcome is the terminal result of a transfer.
type Outcome struct {
	Kind OutcomeKind

	// TransferID identifies the transfer in logs and the journal
	TransferID string

	// Object is the destination's name for the committed object
	Object string

	// Size is the number of bytes in the source object
	Size int64

	// Parts is the number of planned parts
	Parts int

	// Reason is the failure that caused an abort
	Reason error

	// CleanupErr is set when the abort itself failed and the session may leak
	CleanupErr error

	Duration time.Duration
}

// ProgressTracker defines the interface for tracking transfer progress.
// Implementations receive updates as parts are acknowledged by the destination.
type ProgressTracker interface {
	// Update is called after each acknowledged part with the bytes committed so far
	Update(bytesTransferred, totalBytes int64)

	// Complete is called when the transfer commits
	Complete()

	// Error is called when the transfer aborts
	Error(err error)
}

// SessionState is the lifecycle state of a journaled session.
type SessionState string

const (
	SessionOpen      SessionState = "open"
	SessionCommitted SessionState = "committed"
	SessionAborted   SessionState = "aborted"
)

// SessionRecord is the durable description of an open multipart session.
// It carries enough to abort the session after a crash.
type SessionRecord struct {
	TransferID  string
	Source      ObjectRef
	Destination ObjectRef
	UploadID    string
	Size        int64
	PartSize    int64
	State       SessionState
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Session returns the destination handle stored in the record.
func (r SessionRecord) Session() endpoint.Session {
	return endpoint.Session{Object: r.Destination.Object, UploadID: r.UploadID}
}

// Journal persists session lifecycle so sessions orphaned by a crash can be aborted.
type Journal interface {
	// Record stores a newly opened session.
	Record(ctx context.Context, rec SessionRecord) error

	// Resolve marks a session as committed or aborted.
	Resolve(ctx context.Context, transferID string, state SessionState) error

	// Pending lists sessions still recorded as open.
	Pending(ctx context.Context) ([]SessionRecord, error)

	// List returns every recorded session, newest first.
	List(ctx context.Context) ([]SessionRecord, error)
}

// RetryConfig bounds the retry budget applied to each part.
type RetryConfig struct {
	// MaxAttempts is the total number of tries per part, including the first
	MaxAttempts int

	// BaseDelay is the initial backoff delay
	BaseDelay time.Duration

	// MaxDelay caps the backoff delay
	MaxDelay time.Duration
}

// ClientConfig holds configuration for the transfer client.
type ClientConfig struct {
	Sources      map[string]endpoint.Source
	Destinations map[string]endpoint.Destination

	PartSize    int64
	Concurrency int
	Retry       RetryConfig

	// AbortTimeout bounds the cleanup call made after a failure or cancellation
	AbortTimeout time.Duration

	// DetectContentType sniffs the first bytes of the source when it reports no content type
	DetectContentType bool

	Logger   *slog.Logger
	Journal  Journal
	Registry prometheus.Registerer
}

// TransferOptionConfig holds per-transfer overrides.
type TransferOptionConfig struct {
	ProgressTracker ProgressTracker
	PartSize        int64
	Concurrency     int
	ContentType     string
	Metadata        map[string]string
}

type (
	// Option is a functional option for configuring the transfer client.
	Option func(*ClientConfig)
	// TransferOption is a functional option for configuring a single transfer.
	TransferOption func(*TransferOptionConfig)
)
