// Package gcs provides an endpoint backed by a Google Cloud Storage bucket.
//
// GCS has no S3-style multipart upload, so destinations emulate one: each part
// is written as a temporary object under <key>.xfer/<uploadID>/, a marker object
// records the session, and commit composes the parts (at most 32 per compose
// call, chained for larger uploads) into the final key before deleting the
// temporaries.
package gcs

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"github.com/input-output-hk/catalyst-forge-libs/xfer/endpoint"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/internal/digest"
)

const (
	// MaxCompose is the number of sources GCS accepts in one compose request.
	MaxCompose = 32

	stagingSuffix = ".xfer"
	markerName    = "session"
	digestKey     = "xfer-digest"
)

// Config describes a GCS bucket. Without credentials, Application Default
// Credentials are used.
type Config struct {
	Bucket          string
	Prefix          string
	CredentialsFile string
	CredentialsJSON string
	// Endpoint overrides the API endpoint, for emulators
	Endpoint string
}

// attrs is the subset of object attributes the endpoint reads and writes.
type attrs struct {
	Size        int64
	ContentType string
	ETag        string
	Metadata    map[string]string
}

// bucket is the slice of storage.BucketHandle the endpoint relies on.
type bucket interface {
	attrs(ctx context.Context, key string) (attrs, error)
	rangeReader(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error)
	write(ctx context.Context, key string, body io.Reader, a attrs) error
	compose(ctx context.Context, dst string, srcs []string, a attrs) error
	list(ctx context.Context, prefix string) ([]string, error)
	delete(ctx context.Context, key string) error
}

// Endpoint is a GCS bucket, optionally scoped to a key prefix.
type Endpoint struct {
	bucket bucket
	name   string
	prefix string
	closer io.Closer
}

var (
	_ endpoint.Source      = (*Endpoint)(nil)
	_ endpoint.Destination = (*Endpoint)(nil)
	_ endpoint.PartLimiter = (*Endpoint)(nil)
)

// New creates a client for cfg.
func New(ctx context.Context, cfg Config) (*Endpoint, error) {
	if cfg.Bucket == "" {
		return nil, errors.NewError("gcs endpoint", errors.ErrInvalidInput).
			WithMessage("bucket is required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	} else if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.NewError("gcs endpoint", err).WithMessage("create client")
	}

	e := newWithBucket(&gcsBucket{h: client.Bucket(cfg.Bucket)}, cfg.Bucket, cfg.Prefix)
	e.closer = client
	return e, nil
}

func newWithBucket(b bucket, name, prefix string) *Endpoint {
	return &Endpoint{bucket: b, name: name, prefix: prefix}
}

// Close releases the underlying client.
func (e *Endpoint) Close() error {
	if e.closer == nil {
		return nil
	}
	return e.closer.Close()
}

func (e *Endpoint) key(object string) string {
	if e.prefix == "" {
		return object
	}
	return path.Join(e.prefix, object)
}

func (e *Endpoint) stagingDir(sess endpoint.Session) string {
	return e.key(sess.Object) + stagingSuffix + "/" + sess.UploadID + "/"
}

func partKey(dir string, n int32) string {
	return fmt.Sprintf("%spart-%05d", dir, n)
}

// PartLimits implements endpoint.PartLimiter.
func (e *Endpoint) PartLimits() endpoint.PartLimits {
	return endpoint.PartLimits{MaxParts: 10000}
}

// Head implements endpoint.Source.
func (e *Endpoint) Head(ctx context.Context, object string) (endpoint.ObjectInfo, error) {
	a, err := e.bucket.attrs(ctx, e.key(object))
	if err != nil {
		return endpoint.ObjectInfo{}, e.fail("attrs", object, err)
	}
	return endpoint.ObjectInfo{Size: a.Size, ContentType: a.ContentType, ETag: a.ETag}, nil
}

// GetRange implements endpoint.Source.
func (e *Endpoint) GetRange(ctx context.Context, object string, start, end int64) (io.ReadCloser, error) {
	rc, err := e.bucket.rangeReader(ctx, e.key(object), start, end-start+1)
	if err != nil {
		return nil, e.fail("rangeReader", object, err)
	}
	return rc, nil
}

// OpenMultipart implements endpoint.Destination by writing the session marker.
func (e *Endpoint) OpenMultipart(ctx context.Context, object string, opts endpoint.OpenOptions) (endpoint.Session, error) {
	sess := endpoint.Session{Object: object, UploadID: uuid.NewString()}

	marker := attrs{ContentType: opts.ContentType, Metadata: opts.Metadata}
	if err := e.bucket.write(ctx, e.stagingDir(sess)+markerName, strings.NewReader(""), marker); err != nil {
		return endpoint.Session{}, e.fail("openSession", object, err)
	}
	return sess, nil
}

// PutPart implements endpoint.Destination.
func (e *Endpoint) PutPart(
	ctx context.Context,
	sess endpoint.Session,
	partNumber int32,
	body io.ReadSeeker,
	size int64,
) (string, error) {
	if partNumber < 1 {
		return "", errors.NewObjectError("putPart", e.name, sess.Object, errors.ErrInvalidInput).WithPart(partNumber)
	}

	// The digest is known only after the bytes are read, so hash first and
	// attach it as metadata on the write.
	d := digest.NewReader(io.LimitReader(body, size))
	if _, err := io.Copy(io.Discard, d); err != nil {
		return "", errors.NewObjectError("putPart", e.name, sess.Object, err).WithPart(partNumber)
	}
	if d.Count() != size {
		return "", errors.NewObjectError("putPart", e.name, sess.Object, io.ErrUnexpectedEOF).WithPart(partNumber)
	}
	if _, err := body.Seek(0, io.SeekStart); err != nil {
		return "", errors.NewObjectError("putPart", e.name, sess.Object, err).WithPart(partNumber)
	}

	tok := d.Hex()
	err := e.bucket.write(ctx, partKey(e.stagingDir(sess), partNumber), io.LimitReader(body, size),
		attrs{Metadata: map[string]string{digestKey: tok}})
	if err != nil {
		return "", e.fail("putPart", sess.Object, err).WithPart(partNumber)
	}
	return tok, nil
}

// CompleteMultipart implements endpoint.Destination.
func (e *Endpoint) CompleteMultipart(
	ctx context.Context,
	sess endpoint.Session,
	parts []endpoint.CompletedPart,
) (string, error) {
	if len(parts) == 0 {
		return "", errors.NewObjectError("complete", e.name, sess.Object, errors.ErrInvalidInput).
			WithMessage("no parts to commit")
	}

	dir := e.stagingDir(sess)
	marker, err := e.bucket.attrs(ctx, dir+markerName)
	if err != nil {
		return "", e.session("complete", sess, err)
	}

	srcs := make([]string, len(parts))
	for i, p := range parts {
		if i > 0 && p.PartNumber <= parts[i-1].PartNumber {
			return "", errors.NewObjectError("complete", e.name, sess.Object, errors.ErrInvalidInput).
				WithMessage("parts out of order")
		}
		key := partKey(dir, p.PartNumber)
		a, err := e.bucket.attrs(ctx, key)
		if err != nil {
			return "", e.fail("complete", sess.Object, err).WithPart(p.PartNumber)
		}
		if a.Metadata[digestKey] != p.Token {
			return "", errors.NewObjectError("complete", e.name, sess.Object, errors.ErrInvalidInput).
				WithPart(p.PartNumber).
				WithMessage("token mismatch")
		}
		srcs[i] = key
	}

	final := attrs{ContentType: marker.ContentType, Metadata: marker.Metadata}
	if err := e.composeAll(ctx, e.key(sess.Object), dir, srcs, final); err != nil {
		return "", e.fail("compose", sess.Object, err)
	}

	// The object is visible now; leftover temporaries stay findable under the marker.
	if err := e.cleanup(ctx, dir); err != nil {
		return sess.Object, errors.NewObjectError("cleanup", e.name, sess.Object,
			errors.Wrap(errors.ErrCleanupIncomplete, err))
	}
	return sess.Object, nil
}

// composeAll composes srcs into dst, chaining intermediate objects in dir
// while more than MaxCompose sources remain.
func (e *Endpoint) composeAll(ctx context.Context, dst, dir string, srcs []string, final attrs) error {
	for round := 0; len(srcs) > MaxCompose; round++ {
		var next []string
		for i := 0; i < len(srcs); i += MaxCompose {
			group := srcs[i:min(i+MaxCompose, len(srcs))]
			key := fmt.Sprintf("%scompose-%d-%05d", dir, round, i/MaxCompose)
			if err := e.bucket.compose(ctx, key, group, attrs{}); err != nil {
				return err
			}
			next = append(next, key)
		}
		srcs = next
	}
	return e.bucket.compose(ctx, dst, srcs, final)
}

// AbortMultipart implements endpoint.Destination.
func (e *Endpoint) AbortMultipart(ctx context.Context, sess endpoint.Session) error {
	dir := e.stagingDir(sess)
	if _, err := e.bucket.attrs(ctx, dir+markerName); err != nil {
		return e.session("abort", sess, err)
	}
	if err := e.cleanup(ctx, dir); err != nil {
		return e.fail("abort", sess.Object, err)
	}
	return nil
}

// cleanup deletes every staged object, leaving the marker for last so an
// interrupted cleanup can be retried.
func (e *Endpoint) cleanup(ctx context.Context, dir string) error {
	keys, err := e.bucket.list(ctx, dir)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if k == dir+markerName {
			continue
		}
		if err := e.bucket.delete(ctx, k); err != nil && !stderrors.Is(err, storage.ErrObjectNotExist) {
			return err
		}
	}
	if err := e.bucket.delete(ctx, dir+markerName); err != nil && !stderrors.Is(err, storage.ErrObjectNotExist) {
		return err
	}
	return nil
}

// session reports a missing marker as an unknown session.
func (e *Endpoint) session(op string, sess endpoint.Session, err error) error {
	if stderrors.Is(err, storage.ErrObjectNotExist) {
		return errors.NewObjectError(op, e.name, sess.Object, errors.Wrap(errors.ErrSessionNotFound, err))
	}
	return e.fail(op, sess.Object, err)
}

func (e *Endpoint) fail(op, object string, err error) *errors.Error {
	return errors.NewObjectError(op, e.name, object, translateKind(err))
}
