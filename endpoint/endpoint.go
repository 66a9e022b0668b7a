// Package endpoint defines the capabilities a transfer needs from its storage
// collaborators: range-addressed reads on the source and part-addressed writes
// with explicit commit or abort on the destination.
//
// Implementations live in the sub-packages (s3, minio, storj, gcs, fsys, memory).
// Vendor wire formats stay inside those adapters; the engine only sees this contract.
package endpoint

import (
	"context"
	"io"
)

// ObjectInfo is the metadata a source reports for an object.
type ObjectInfo struct {
	// Size is the total object length in bytes
	Size int64

	// ContentType is the MIME type recorded by the source, if any
	ContentType string

	// ETag is the source's entity tag, if any
	ETag string
}

// Source is a readable endpoint.
type Source interface {
	// Head returns the object's metadata without reading its content.
	// A missing object is reported with errors.ErrObjectNotFound in the chain.
	Head(ctx context.Context, object string) (ObjectInfo, error)

	// GetRange returns the bytes in [start, end], both inclusive.
	GetRange(ctx context.Context, object string, start, end int64) (io.ReadCloser, error)
}

// Session identifies an open multipart session on a destination.
// It carries everything needed to address the session again, so a persisted
// Session can be aborted by a later process.
type Session struct {
	// Object is the destination object identifier the session will commit to
	Object string

	// UploadID is the opaque identifier issued by the destination
	UploadID string
}

// CompletedPart pairs a part number with the token the destination issued for it.
type CompletedPart struct {
	PartNumber int32
	Token      string
}

// OpenOptions carries per-object settings for a new multipart session.
type OpenOptions struct {
	// ContentType is forwarded to destinations that record it
	ContentType string

	// Metadata is user-defined metadata stored with the committed object
	Metadata map[string]string
}

// Destination is a writable endpoint with multipart semantics.
type Destination interface {
	// OpenMultipart starts a session that accumulates parts for object.
	OpenMultipart(ctx context.Context, object string, opts OpenOptions) (Session, error)

	// PutPart writes one part and returns the destination's acknowledgement token.
	// body may be re-read from the start by the implementation.
	PutPart(ctx context.Context, s Session, partNumber int32, body io.ReadSeeker, size int64) (string, error)

	// CompleteMultipart combines the parts, given in ascending part order, into the object.
	// An error matching errors.ErrCleanupIncomplete returned alongside a non-empty
	// object means the object is committed and only the staging cleanup failed.
	CompleteMultipart(ctx context.Context, s Session, parts []CompletedPart) (string, error)

	// AbortMultipart discards the session and any uploaded parts.
	// Aborting an unknown session reports errors.ErrSessionNotFound.
	AbortMultipart(ctx context.Context, s Session) error
}

// PartLimits describes the part sizes a destination accepts.
// A zero field means no limit.
type PartLimits struct {
	// MinSize is the minimum size of every part except the last
	MinSize int64

	// MaxSize is the maximum size of any part
	MaxSize int64

	// MaxParts is the maximum number of parts in one session
	MaxParts int
}

// PartLimiter is implemented by destinations that constrain part sizes.
type PartLimiter interface {
	PartLimits() PartLimits
}

// LimitsOf returns the destination's part limits, or zero limits when it declares none.
func LimitsOf(dst Destination) PartLimits {
	if l, ok := dst.(PartLimiter); ok {
		return l.PartLimits()
	}
	return PartLimits{}
}

// S3Limits are the multipart limits of Amazon S3 and compatible services.
var S3Limits = PartLimits{
	MinSize:  5 * 1024 * 1024,
	MaxSize:  5 * 1024 * 1024 * 1024,
	MaxParts: 10000,
}
