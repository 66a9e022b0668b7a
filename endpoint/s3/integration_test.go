//go:build integration
// +build integration

package s3_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/xfer"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/endpoint"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/endpoint/s3"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/internal/testutil"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/xfertypes"
)

func newEndpoint(ctx context.Context, t *testing.T, ls *testutil.LocalStack, bucket string) *s3.Endpoint {
	t.Helper()

	e, err := s3.New(ctx, s3.Config{
		Bucket:          bucket,
		Region:          ls.Region(),
		Endpoint:        ls.Endpoint(),
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		ForcePathStyle:  true,
	})
	require.NoError(t, err)
	return e
}

func TestIntegrationBucketToBucket(t *testing.T) {
	ctx := context.Background()
	ls, client := testutil.SetupLocalStack(t)

	srcBucket := testutil.CreateBucket(ctx, t, client, "xfer-src")
	dstBucket := testutil.CreateBucket(ctx, t, client, "xfer-dst")

	const partSize = 5 * 1024 * 1024
	data := testutil.GenerateData(7, 2*partSize+1234)
	require.NoError(t, testutil.PutObject(ctx, client, srcBucket, "input.bin", data))

	c, err := xfer.New(
		xfer.WithEndpoint("src", newEndpoint(ctx, t, ls, srcBucket)),
		xfer.WithEndpoint("dst", newEndpoint(ctx, t, ls, dstBucket)),
		xfer.WithPartSize(partSize),
		xfer.WithConcurrency(2),
	)
	require.NoError(t, err)

	t.Run("copies across buckets", func(t *testing.T) {
		out, err := c.Transfer(ctx, xfertypes.TransferRequest{
			Source:      xfertypes.ObjectRef{Endpoint: "src", Object: "input.bin"},
			Destination: xfertypes.ObjectRef{Endpoint: "dst", Object: "copy.bin"},
		})
		require.NoError(t, err)
		assert.Equal(t, xfertypes.Committed, out.Kind)
		assert.Equal(t, 3, out.Parts)

		dst := newEndpoint(ctx, t, ls, dstBucket)
		info, err := dst.Head(ctx, "copy.bin")
		require.NoError(t, err)
		assert.Equal(t, int64(len(data)), info.Size)
	})

	t.Run("missing source aborts without uploads", func(t *testing.T) {
		out, err := c.Transfer(ctx, xfertypes.TransferRequest{
			Source:      xfertypes.ObjectRef{Endpoint: "src", Object: "missing.bin"},
			Destination: xfertypes.ObjectRef{Endpoint: "dst", Object: "never.bin"},
		})
		require.Error(t, err)
		assert.Equal(t, xfertypes.Aborted, out.Kind)
		assert.True(t, errors.IsObjectNotFound(err))

		n, err := testutil.CountMultipartUploads(ctx, client, dstBucket)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("abort removes session", func(t *testing.T) {
		dst := newEndpoint(ctx, t, ls, dstBucket)
		sess, err := dst.OpenMultipart(ctx, "aborted.bin", endpoint.OpenOptions{})
		require.NoError(t, err)
		require.NoError(t, dst.AbortMultipart(ctx, sess))

		n, err := testutil.CountMultipartUploads(ctx, client, dstBucket)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}
