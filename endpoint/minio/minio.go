// Package minio provides an endpoint for S3-compatible object servers through
// the minio-go Core API.
package minio

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/input-output-hk/catalyst-forge-libs/xfer/endpoint"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/errors"
)

// Config describes a bucket on an S3-compatible server.
type Config struct {
	// Endpoint is host[:port], without scheme
	Endpoint        string
	Bucket          string
	Prefix          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
}

// coreAPI is the subset of *minio.Core used by the endpoint.
type coreAPI interface {
	StatObject(ctx context.Context, bucket, object string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	GetObject(
		ctx context.Context, bucket, object string, opts minio.GetObjectOptions,
	) (io.ReadCloser, minio.ObjectInfo, http.Header, error)
	NewMultipartUpload(ctx context.Context, bucket, object string, opts minio.PutObjectOptions) (string, error)
	PutObjectPart(
		ctx context.Context, bucket, object, uploadID string, partID int,
		data io.Reader, size int64, opts minio.PutObjectPartOptions,
	) (minio.ObjectPart, error)
	CompleteMultipartUpload(
		ctx context.Context, bucket, object, uploadID string,
		parts []minio.CompletePart, opts minio.PutObjectOptions,
	) (minio.UploadInfo, error)
	AbortMultipartUpload(ctx context.Context, bucket, object, uploadID string) error
}

var _ coreAPI = (*minio.Core)(nil)

// Endpoint is a bucket on an S3-compatible server.
type Endpoint struct {
	core   coreAPI
	bucket string
	prefix string
}

var (
	_ endpoint.Source      = (*Endpoint)(nil)
	_ endpoint.Destination = (*Endpoint)(nil)
	_ endpoint.PartLimiter = (*Endpoint)(nil)
)

// New connects to the server described by cfg.
func New(cfg Config) (*Endpoint, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errors.NewError("minio endpoint", errors.ErrInvalidInput).
			WithMessage("endpoint and bucket are required")
	}

	core, err := minio.NewCore(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure:       cfg.UseSSL,
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, errors.NewError("minio endpoint", err).WithEndpoint(cfg.Endpoint)
	}
	return newWithCore(core, cfg.Bucket, cfg.Prefix), nil
}

func newWithCore(core coreAPI, bucket, prefix string) *Endpoint {
	return &Endpoint{core: core, bucket: bucket, prefix: prefix}
}

func (e *Endpoint) key(object string) string {
	if e.prefix == "" {
		return object
	}
	return path.Join(e.prefix, object)
}

// PartLimits implements endpoint.PartLimiter.
func (e *Endpoint) PartLimits() endpoint.PartLimits {
	return endpoint.S3Limits
}

// Head implements endpoint.Source.
func (e *Endpoint) Head(ctx context.Context, object string) (endpoint.ObjectInfo, error) {
	info, err := e.core.StatObject(ctx, e.bucket, e.key(object), minio.StatObjectOptions{})
	if err != nil {
		return endpoint.ObjectInfo{}, e.translate("statObject", object, err)
	}
	return endpoint.ObjectInfo{
		Size:        info.Size,
		ContentType: info.ContentType,
		ETag:        info.ETag,
	}, nil
}

// GetRange implements endpoint.Source.
func (e *Endpoint) GetRange(ctx context.Context, object string, start, end int64) (io.ReadCloser, error) {
	opts := minio.GetObjectOptions{}
	if err := opts.SetRange(start, end); err != nil {
		return nil, errors.NewObjectError("getObject", e.bucket, object, errors.Wrap(errors.ErrInvalidInput, err))
	}

	body, _, _, err := e.core.GetObject(ctx, e.bucket, e.key(object), opts)
	if err != nil {
		return nil, e.translate("getObject", object, err)
	}
	return body, nil
}

// OpenMultipart implements endpoint.Destination.
func (e *Endpoint) OpenMultipart(ctx context.Context, object string, opts endpoint.OpenOptions) (endpoint.Session, error) {
	uploadID, err := e.core.NewMultipartUpload(ctx, e.bucket, e.key(object), minio.PutObjectOptions{
		ContentType:  opts.ContentType,
		UserMetadata: opts.Metadata,
	})
	if err != nil {
		return endpoint.Session{}, e.translate("newMultipartUpload", object, err)
	}
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
	part, err := e.core.PutObjectPart(ctx, e.bucket, e.key(sess.Object), sess.UploadID,
		int(partNumber), body, size, minio.PutObjectPartOptions{})
	if err != nil {
		return "", e.translate("putObjectPart", sess.Object, err).WithPart(partNumber)
	}
	return part.ETag, nil
}

// CompleteMultipart implements endpoint.Destination.
func (e *Endpoint) CompleteMultipart(
	ctx context.Context,
	sess endpoint.Session,
	parts []endpoint.CompletedPart,
) (string, error) {
	completed := make([]minio.CompletePart, len(parts))
	for i, p := range parts {
		completed[i] = minio.CompletePart{PartNumber: int(p.PartNumber), ETag: p.Token}
	}

	_, err := e.core.CompleteMultipartUpload(ctx, e.bucket, e.key(sess.Object), sess.UploadID,
		completed, minio.PutObjectOptions{})
	if err != nil {
		return "", e.translate("completeMultipartUpload", sess.Object, err)
	}
	return sess.Object, nil
}

// AbortMultipart implements endpoint.Destination.
func (e *Endpoint) AbortMultipart(ctx context.Context, sess endpoint.Session) error {
	err := e.core.AbortMultipartUpload(ctx, e.bucket, e.key(sess.Object), sess.UploadID)
	if err != nil {
		terr := e.translate("abortMultipartUpload", sess.Object, err)
		if errors.IsObjectNotFound(terr) {
			return errors.NewObjectError("abortMultipartUpload", e.bucket, sess.Object,
				errors.Wrap(errors.ErrSessionNotFound, err))
		}
		return terr
	}
	return nil
}

func (e *Endpoint) translate(op, object string, err error) *errors.Error {
	if kind := classify(err); kind != nil {
		err = errors.Wrap(kind, err)
	}
	return errors.NewObjectError(op, e.bucket, object, err)
}

func classify(err error) error {
	var resp minio.ErrorResponse
	if !stderrors.As(err, &resp) {
		return nil
	}

	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket":
		return errors.ErrObjectNotFound
	case "NoSuchUpload":
		return errors.ErrSessionNotFound
	case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
		return errors.ErrAccessDenied
	case "InvalidPart", "InvalidPartOrder", "EntityTooSmall", "EntityTooLarge", "InvalidRange", "InvalidArgument":
		return errors.ErrInvalidInput
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return errors.ErrObjectNotFound
	case http.StatusForbidden:
		return errors.ErrAccessDenied
	}
	return nil
}
