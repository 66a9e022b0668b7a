// Package s3 provides an endpoint backed by an Amazon S3 bucket, usable as
// both a transfer source (ranged GetObject) and a destination (native
// multipart upload).
package s3

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/input-output-hk/catalyst-forge-libs/xfer/endpoint"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/internal/s3api"
)

// Config describes a bucket endpoint. Credentials are optional; when unset the
// default AWS credential chain is used.
type Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool
	MaxRetries      int
}

// Endpoint is an S3 bucket, optionally scoped to a key prefix.
type Endpoint struct {
	client s3api.S3API
	bucket string
	prefix string
}

var (
	_ endpoint.Source      = (*Endpoint)(nil)
	_ endpoint.Destination = (*Endpoint)(nil)
	_ endpoint.PartLimiter = (*Endpoint)(nil)
)

// New creates an endpoint from cfg, loading the AWS configuration.
func New(ctx context.Context, cfg Config) (*Endpoint, error) {
	if cfg.Bucket == "" {
		return nil, errors.NewError("s3 endpoint", errors.ErrInvalidInput).
			WithMessage("bucket is required")
	}

	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.NewError("s3 endpoint", err)
	}
	if awsCfg.Region == "" {
		awsCfg.Region = "us-east-1"
	}
	// Part retries are owned by the transfer engine.
	awsCfg.RetryMaxAttempts = 1
	if cfg.MaxRetries > 0 {
		awsCfg.RetryMaxAttempts = cfg.MaxRetries
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.ForcePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return NewWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewWithClient creates an endpoint around an existing client.
func NewWithClient(client s3api.S3API, bucket, prefix string) *Endpoint {
	return &Endpoint{client: client, bucket: bucket, prefix: prefix}
}

// PartLimits implements endpoint.PartLimiter.
func (e *Endpoint) PartLimits() endpoint.PartLimits {
	return endpoint.S3Limits
}

func (e *Endpoint) key(object string) string {
	if e.prefix == "" {
		return object
	}
	return path.Join(e.prefix, object)
}

// Head implements endpoint.Source.
func (e *Endpoint) Head(ctx context.Context, object string) (endpoint.ObjectInfo, error) {
	out, err := e.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(e.bucket),
		Key:    aws.String(e.key(object)),
	})
	if err != nil {
		return endpoint.ObjectInfo{}, e.translate("headObject", object, err)
	}

	return endpoint.ObjectInfo{
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
		ETag:        aws.ToString(out.ETag),
	}, nil
}

// GetRange implements endpoint.Source.
func (e *Endpoint) GetRange(ctx context.Context, object string, start, end int64) (io.ReadCloser, error) {
	out, err := e.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(e.bucket),
		Key:    aws.String(e.key(object)),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", start, end)),
	})
	if err != nil {
		return nil, e.translate("getObject", object, err)
	}
	return out.Body, nil
}

// OpenMultipart implements endpoint.Destination.
func (e *Endpoint) OpenMultipart(ctx context.Context, object string, opts endpoint.OpenOptions) (endpoint.Session, error) {
	input := &s3.CreateMultipartUploadInput{
		Bucket: aws.String(e.bucket),
		Key:    aws.String(e.key(object)),
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if len(opts.Metadata) > 0 {
		input.Metadata = opts.Metadata
	}

	out, err := e.client.CreateMultipartUpload(ctx, input)
	if err != nil {
		return endpoint.Session{}, e.translate("createMultipartUpload", object, err)
	}
	return endpoint.Session{Object: object, UploadID: aws.ToString(out.UploadId)}, nil
}

// PutPart implements endpoint.Destination. The returned token is the part ETag.
func (e *Endpoint) PutPart(
	ctx context.Context,
	sess endpoint.Session,
	partNumber int32,
	body io.ReadSeeker,
	size int64,
) (string, error) {
	out, err := e.client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        aws.String(e.bucket),
		Key:           aws.String(e.key(sess.Object)),
		UploadId:      aws.String(sess.UploadID),
		PartNumber:    aws.Int32(partNumber),
		Body:          body,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return "", e.translate("uploadPart", sess.Object, err)
	}
	return aws.ToString(out.ETag), nil
}

// CompleteMultipart implements endpoint.Destination.
func (e *Endpoint) CompleteMultipart(
	ctx context.Context,
	sess endpoint.Session,
	parts []endpoint.CompletedPart,
) (string, error) {
	completed := make([]types.CompletedPart, len(parts))
	for i, p := range parts {
		completed[i] = types.CompletedPart{
			ETag:       aws.String(p.Token),
			PartNumber: aws.Int32(p.PartNumber),
		}
	}

	_, err := e.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(e.bucket),
		Key:             aws.String(e.key(sess.Object)),
		UploadId:        aws.String(sess.UploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		return "", e.translate("completeMultipartUpload", sess.Object, err)
	}
	return sess.Object, nil
}

// AbortMultipart implements endpoint.Destination.
func (e *Endpoint) AbortMultipart(ctx context.Context, sess endpoint.Session) error {
	_, err := e.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(e.bucket),
		Key:      aws.String(e.key(sess.Object)),
		UploadId: aws.String(sess.UploadID),
	})
	if err != nil {
		terr := e.translate("abortMultipartUpload", sess.Object, err)
		if errors.IsObjectNotFound(terr) && !errors.IsSessionNotFound(terr) {
			// A bare 404 on abort means the upload is gone.
			return errors.NewError("abortMultipartUpload", errors.Wrap(errors.ErrSessionNotFound, err)).
				WithObject(sess.Object).
				WithEndpoint(e.bucket)
		}
		return terr
	}
	return nil
}

// translate attaches the matching taxonomy sentinel to an SDK error while
// keeping the SDK error in the chain.
func (e *Endpoint) translate(op, object string, err error) error {
	var (
		noSuchKey    *types.NoSuchKey
		notFound     *types.NotFound
		noSuchUpload *types.NoSuchUpload
		noSuchBucket *types.NoSuchBucket
	)

	var kind error
	switch {
	case stderrors.As(err, &noSuchKey), stderrors.As(err, &notFound), stderrors.As(err, &noSuchBucket):
		kind = errors.ErrObjectNotFound
	case stderrors.As(err, &noSuchUpload):
		kind = errors.ErrSessionNotFound
	default:
		kind = classifyAPIError(err)
	}

	wrapped := err
	if kind != nil {
		wrapped = errors.Wrap(kind, err)
	}
	return errors.NewError(op, wrapped).WithObject(object).WithEndpoint(e.bucket)
}

func classifyAPIError(err error) error {
	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return errors.ErrAccessDenied
		case "NoSuchUpload":
			return errors.ErrSessionNotFound
		case "InvalidRange", "InvalidPart", "InvalidPartOrder", "EntityTooSmall", "EntityTooLarge", "InvalidArgument":
			return errors.ErrInvalidInput
		}
	}

	var respErr interface{ HTTPStatusCode() int }
	if stderrors.As(err, &respErr) {
		switch respErr.HTTPStatusCode() {
		case http.StatusNotFound:
			return errors.ErrObjectNotFound
		case http.StatusForbidden:
			return errors.ErrAccessDenied
		}
	}
	return nil
}
