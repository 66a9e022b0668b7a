// Package storj provides an endpoint backed by a Storj bucket. Storj's native
// multipart upload is used for destinations; part tokens are BLAKE3 digests
// stored as the part ETag and checked against the uploaded parts on commit.
package storj

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"path"
	"sync"

	"storj.io/uplink"

	"github.com/input-output-hk/catalyst-forge-libs/xfer/endpoint"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/internal/digest"
)

// Metadata keys written with committed objects.
const (
	ContentTypeKey = "content-type"
)

// Config describes a Storj bucket.
type Config struct {
	// AccessGrant is the serialized Storj access grant
	AccessGrant string
	Bucket      string
	Prefix      string
}

// uploadedPart is a part already stored in an open upload.
type uploadedPart struct {
	Number uint32
	Size   int64
	ETag   []byte
}

// project is the slice of uplink.Project the endpoint relies on.
type project interface {
	stat(ctx context.Context, bucket, key string) (size int64, custom map[string]string, err error)
	download(ctx context.Context, bucket, key string, offset, length int64) (io.ReadCloser, error)
	begin(ctx context.Context, bucket, key string) (string, error)
	uploadPart(ctx context.Context, bucket, key, uploadID string, number uint32, body io.Reader, etag func() []byte) error
	listParts(ctx context.Context, bucket, key, uploadID string) ([]uploadedPart, error)
	commit(ctx context.Context, bucket, key, uploadID string, custom map[string]string) error
	abort(ctx context.Context, bucket, key, uploadID string) error
	Close() error
}

// Endpoint is a Storj bucket, optionally scoped to a key prefix.
type Endpoint struct {
	project project
	bucket  string
	prefix  string

	mu      sync.Mutex
	pending map[string]map[string]string
}

var (
	_ endpoint.Source      = (*Endpoint)(nil)
	_ endpoint.Destination = (*Endpoint)(nil)
	_ endpoint.PartLimiter = (*Endpoint)(nil)
)

// New opens a project with the access grant in cfg and ensures the bucket exists.
func New(ctx context.Context, cfg Config) (*Endpoint, error) {
	if cfg.AccessGrant == "" || cfg.Bucket == "" {
		return nil, errors.NewError("storj endpoint", errors.ErrInvalidInput).
			WithMessage("access grant and bucket are required")
	}

	access, err := uplink.ParseAccess(cfg.AccessGrant)
	if err != nil {
		return nil, errors.NewError("storj endpoint", errors.Wrap(errors.ErrInvalidInput, err)).
			WithMessage("parse access grant")
	}

	p, err := uplink.OpenProject(ctx, access)
	if err != nil {
		return nil, errors.NewError("storj endpoint", err).WithMessage("open project")
	}

	if _, err := p.EnsureBucket(ctx, cfg.Bucket); err != nil {
		_ = p.Close()
		return nil, errors.NewError("storj endpoint", translateKind(err)).
			WithEndpoint(cfg.Bucket).
			WithMessage("ensure bucket")
	}

	return newWithProject(&uplinkProject{p: p}, cfg.Bucket, cfg.Prefix), nil
}

func newWithProject(p project, bucket, prefix string) *Endpoint {
	return &Endpoint{
		project: p,
		bucket:  bucket,
		prefix:  prefix,
		pending: make(map[string]map[string]string),
	}
}

// Close releases the project connection.
func (e *Endpoint) Close() error {
	return e.project.Close()
}

func (e *Endpoint) key(object string) string {
	if e.prefix == "" {
		return object
	}
	return path.Join(e.prefix, object)
}

// PartLimits implements endpoint.PartLimiter. Storj mirrors the S3 gateway limits.
func (e *Endpoint) PartLimits() endpoint.PartLimits {
	return endpoint.S3Limits
}

// Head implements endpoint.Source.
func (e *Endpoint) Head(ctx context.Context, object string) (endpoint.ObjectInfo, error) {
	size, custom, err := e.project.stat(ctx, e.bucket, e.key(object))
	if err != nil {
		return endpoint.ObjectInfo{}, e.fail("statObject", object, err)
	}
	return endpoint.ObjectInfo{Size: size, ContentType: custom[ContentTypeKey]}, nil
}

// GetRange implements endpoint.Source.
func (e *Endpoint) GetRange(ctx context.Context, object string, start, end int64) (io.ReadCloser, error) {
	rc, err := e.project.download(ctx, e.bucket, e.key(object), start, end-start+1)
	if err != nil {
		return nil, e.fail("downloadObject", object, err)
	}
	return rc, nil
}

// OpenMultipart implements endpoint.Destination. Content type and metadata
// are held until commit, where Storj accepts custom metadata.
func (e *Endpoint) OpenMultipart(ctx context.Context, object string, opts endpoint.OpenOptions) (endpoint.Session, error) {
	uploadID, err := e.project.begin(ctx, e.bucket, e.key(object))
	if err != nil {
		return endpoint.Session{}, e.fail("beginUpload", object, err)
	}

	custom := make(map[string]string, len(opts.Metadata)+1)
	for k, v := range opts.Metadata {
		custom[k] = v
	}
	if opts.ContentType != "" {
		custom[ContentTypeKey] = opts.ContentType
	}

	e.mu.Lock()
	e.pending[uploadID] = custom
	e.mu.Unlock()

	return endpoint.Session{Object: object, UploadID: uploadID}, nil
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
		return "", errors.NewObjectError("uploadPart", e.bucket, sess.Object, errors.ErrInvalidInput).
			WithPart(partNumber)
	}

	d := digest.NewReader(io.LimitReader(body, size))
	err := e.project.uploadPart(ctx, e.bucket, e.key(sess.Object), sess.UploadID, uint32(partNumber), d, d.Bytes)
	if err != nil {
		return "", e.fail("uploadPart", sess.Object, err).WithPart(partNumber)
	}
	if d.Count() != size {
		return "", errors.NewObjectError("uploadPart", e.bucket, sess.Object, io.ErrUnexpectedEOF).
			WithPart(partNumber)
	}
	return d.Hex(), nil
}

// CompleteMultipart implements endpoint.Destination. Every listed part must
// be present with a matching digest; Storj itself commits whatever was uploaded.
func (e *Endpoint) CompleteMultipart(
	ctx context.Context,
	sess endpoint.Session,
	parts []endpoint.CompletedPart,
) (string, error) {
	key := e.key(sess.Object)

	uploaded, err := e.project.listParts(ctx, e.bucket, key, sess.UploadID)
	if err != nil {
		return "", e.fail("listUploadParts", sess.Object, err)
	}
	if err := verifyParts(parts, uploaded); err != nil {
		return "", errors.NewObjectError("commitUpload", e.bucket, sess.Object, err)
	}

	e.mu.Lock()
	custom := e.pending[sess.UploadID]
	e.mu.Unlock()

	if err := e.project.commit(ctx, e.bucket, key, sess.UploadID, custom); err != nil {
		return "", e.fail("commitUpload", sess.Object, err)
	}

	e.mu.Lock()
	delete(e.pending, sess.UploadID)
	e.mu.Unlock()
	return sess.Object, nil
}

// AbortMultipart implements endpoint.Destination.
func (e *Endpoint) AbortMultipart(ctx context.Context, sess endpoint.Session) error {
	if err := e.project.abort(ctx, e.bucket, e.key(sess.Object), sess.UploadID); err != nil {
		return e.fail("abortUpload", sess.Object, err)
	}

	e.mu.Lock()
	delete(e.pending, sess.UploadID)
	e.mu.Unlock()
	return nil
}

func verifyParts(parts []endpoint.CompletedPart, uploaded []uploadedPart) error {
	if len(parts) == 0 {
		return errors.Wrap(errors.ErrInvalidInput, stderrors.New("no parts to commit"))
	}
	if len(uploaded) != len(parts) {
		return errors.Wrap(errors.ErrInvalidInput,
			fmt.Errorf("upload holds %d parts, commit lists %d", len(uploaded), len(parts)))
	}

	byNumber := make(map[uint32]string, len(uploaded))
	for _, u := range uploaded {
		byNumber[u.Number] = fmt.Sprintf("%x", u.ETag)
	}
	for _, p := range parts {
		if tok, ok := byNumber[uint32(p.PartNumber)]; !ok || tok != p.Token {
			return errors.Wrap(errors.ErrInvalidInput, fmt.Errorf("part %d missing or digest mismatch", p.PartNumber))
		}
	}
	return nil
}

func (e *Endpoint) fail(op, object string, err error) *errors.Error {
	return errors.NewObjectError(op, e.bucket, object, translateKind(err))
}

func translateKind(err error) error {
	switch {
	case stderrors.Is(err, uplink.ErrObjectNotFound), stderrors.Is(err, uplink.ErrBucketNotFound):
		return errors.Wrap(errors.ErrObjectNotFound, err)
	case stderrors.Is(err, uplink.ErrUploadIDInvalid):
		return errors.Wrap(errors.ErrSessionNotFound, err)
	case stderrors.Is(err, uplink.ErrPermissionDenied):
		return errors.Wrap(errors.ErrAccessDenied, err)
	case stderrors.Is(err, uplink.ErrObjectKeyInvalid), stderrors.Is(err, uplink.ErrBucketNameInvalid):
		return errors.Wrap(errors.ErrInvalidInput, err)
	default:
		return err
	}
}
