package config

import (
	"context"
	"io"
	"log/slog"
	"sort"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/input-output-hk/catalyst-forge-libs/xfer"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/endpoint/fsys"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/endpoint/gcs"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/endpoint/memory"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/endpoint/minio"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/endpoint/s3"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/endpoint/storj"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/internal/journal"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/xfertypes"
)

// Closers releases resources opened while building a client.
type Closers []io.Closer

// Close closes every resource, returning the first error.
func (c Closers) Close() error {
	var first error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// BuildEndpoint constructs the adapter described by ep.
func BuildEndpoint(ctx context.Context, ep Endpoint) (xfer.Endpoint, io.Closer, error) {
	switch ep.Type {
	case TypeS3:
		e, err := s3.New(ctx, s3.Config{
			Bucket:          ep.Bucket,
			Prefix:          ep.Prefix,
			Region:          ep.Region,
			Endpoint:        ep.URL,
			AccessKeyID:     ep.AccessKeyID,
			SecretAccessKey: ep.SecretAccessKey,
			ForcePathStyle:  ep.ForcePathStyle,
		})
		if err != nil {
			return nil, nil, err
		}
		return e, nil, nil
	case TypeMinio:
		e, err := minio.New(minio.Config{
			Endpoint:        ep.URL,
			Bucket:          ep.Bucket,
			Prefix:          ep.Prefix,
			Region:          ep.Region,
			AccessKeyID:     ep.AccessKeyID,
			SecretAccessKey: ep.SecretAccessKey,
			UseSSL:          ep.UseSSL,
		})
		if err != nil {
			return nil, nil, err
		}
		return e, nil, nil
	case TypeStorj:
		e, err := storj.New(ctx, storj.Config{AccessGrant: ep.AccessGrant, Bucket: ep.Bucket, Prefix: ep.Prefix})
		if err != nil {
			return nil, nil, err
		}
		return e, e, nil
	case TypeGCS:
		e, err := gcs.New(ctx, gcs.Config{
			Bucket:          ep.Bucket,
			Prefix:          ep.Prefix,
			CredentialsFile: ep.CredentialsFile,
			Endpoint:        ep.URL,
		})
		if err != nil {
			return nil, nil, err
		}
		return e, e, nil
	case TypeFS:
		return fsys.NewOS(ep.Root), nil, nil
	case TypeMemory:
		return memory.New(), nil, nil
	default:
		return nil, nil, errors.NewError("build endpoint", errors.ErrInvalidInput).
			WithMessage("unknown endpoint type " + ep.Type)
	}
}

// ClientOptions builds the endpoints and journal named in cfg and returns the
// options for xfer.New. The returned closers must be closed once the client
// is no longer used, also when an error is returned.
func (c *Config) ClientOptions(
	ctx context.Context,
	logger *slog.Logger,
	reg prometheus.Registerer,
) ([]xfertypes.Option, Closers, error) {
	partSize, err := PartSizeBytes(c.PartSize)
	if err != nil {
		return nil, nil, errors.NewError("build client", errors.Wrap(errors.ErrInvalidInput, err))
	}

	opts := []xfertypes.Option{
		xfer.WithPartSize(partSize),
		xfer.WithConcurrency(c.Concurrency),
		xfer.WithAbortTimeout(c.AbortTimeout),
		xfer.WithDetectContentType(c.DetectContentType),
		xfer.WithRetry(xfertypes.RetryConfig{
			MaxAttempts: c.Retry.MaxAttempts,
			BaseDelay:   c.Retry.BaseDelay,
			MaxDelay:    c.Retry.MaxDelay,
		}),
		xfer.WithLogger(logger),
		xfer.WithMetrics(reg),
	}

	var closers Closers
	names := make([]string, 0, len(c.Endpoints))
	for name := range c.Endpoints {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		e, closer, err := BuildEndpoint(ctx, c.Endpoints[name])
		if err != nil {
			return nil, closers, errors.NewError("build client", err).WithEndpoint(name)
		}
		if closer != nil {
			closers = append(closers, closer)
		}
		opts = append(opts, xfer.WithEndpoint(name, e))
	}

	if c.Journal != "" {
		j, err := journal.Open(c.Journal)
		if err != nil {
			return nil, closers, err
		}
		closers = append(closers, j)
		opts = append(opts, xfer.WithJournal(j))
	}

	return opts, closers, nil
}
