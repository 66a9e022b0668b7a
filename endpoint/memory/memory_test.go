package memory

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/input-output-hk/catalyst-forge-libs/xfer/endpoint"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/errors"
)

func TestStore_HeadAndGetRange(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.Put("a", []byte("hello world"), "text/plain")

	info, err := s.Head(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(11), info.Size)
	assert.Equal(t, "text/plain", info.ContentType)

	rc, err := s.GetRange(ctx, "a", 6, 10)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "world", string(got))

	_, err = s.Head(ctx, "missing")
	assert.True(t, errors.IsObjectNotFound(err))

	_, err = s.GetRange(ctx, "a", 5, 11)
	assert.True(t, errors.IsInvalidInput(err))
}

func TestStore_MultipartRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New()

	sess, err := s.OpenMultipart(ctx, "dst", endpoint.OpenOptions{ContentType: "application/octet-stream"})
	require.NoError(t, err)
	assert.Equal(t, 1, s.OpenUploads())

	t2, err := s.PutPart(ctx, sess, 2, bytes.NewReader([]byte("def")), 3)
	require.NoError(t, err)
	t1, err := s.PutPart(ctx, sess, 1, bytes.NewReader([]byte("abc")), 3)
	require.NoError(t, err)

	_, err = s.CompleteMultipart(ctx, sess, []endpoint.CompletedPart{{PartNumber: 1, Token: t1}, {PartNumber: 2, Token: t2}})
	require.NoError(t, err)

	data, ok := s.Object("dst")
	require.True(t, ok)
	assert.Equal(t, "abcdef", string(data))
	assert.Equal(t, "application/octet-stream", s.ContentType("dst"))
	assert.Equal(t, 0, s.OpenUploads())
}

func TestStore_CompleteValidation(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		parts func(t1, t2 string) []endpoint.CompletedPart
	}{
		{
			name:  "empty",
			parts: func(_, _ string) []endpoint.CompletedPart { return nil },
		},
		{
			name: "out of order",
			parts: func(t1, t2 string) []endpoint.CompletedPart {
				return []endpoint.CompletedPart{{PartNumber: 2, Token: t2}, {PartNumber: 1, Token: t1}}
			},
		},
		{
			name: "token mismatch",
			parts: func(t1, _ string) []endpoint.CompletedPart {
				return []endpoint.CompletedPart{{PartNumber: 1, Token: t1}, {PartNumber: 2, Token: "bogus"}}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			sess, err := s.OpenMultipart(ctx, "dst", endpoint.OpenOptions{})
			require.NoError(t, err)
			t1, err := s.PutPart(ctx, sess, 1, bytes.NewReader([]byte("a")), 1)
			require.NoError(t, err)
			t2, err := s.PutPart(ctx, sess, 2, bytes.NewReader([]byte("b")), 1)
			require.NoError(t, err)

			_, err = s.CompleteMultipart(ctx, sess, tt.parts(t1, t2))
			assert.True(t, errors.IsInvalidInput(err))
			_, ok := s.Object("dst")
			assert.False(t, ok)
		})
	}
}

func TestStore_MinPartSize(t *testing.T) {
	ctx := context.Background()
	s := New(WithLimits(endpoint.PartLimits{MinSize: 4}))
	sess, err := s.OpenMultipart(ctx, "dst", endpoint.OpenOptions{})
	require.NoError(t, err)

	t1, err := s.PutPart(ctx, sess, 1, bytes.NewReader([]byte("ab")), 2)
	require.NoError(t, err)
	t2, err := s.PutPart(ctx, sess, 2, bytes.NewReader([]byte("c")), 1)
	require.NoError(t, err)

	_, err = s.CompleteMultipart(ctx, sess, []endpoint.CompletedPart{{PartNumber: 1, Token: t1}, {PartNumber: 2, Token: t2}})
	assert.True(t, errors.IsInvalidInput(err))
}

func TestStore_AbortAndHooks(t *testing.T) {
	ctx := context.Background()
	boom := stderrors.New("boom")
	s := New(WithHooks(Hooks{
		PutPart: func(_ endpoint.Session, partNumber int32, attempt int) error {
			if partNumber == 1 && attempt == 1 {
				return boom
			}
			return nil
		},
	}))

	sess, err := s.OpenMultipart(ctx, "dst", endpoint.OpenOptions{})
	require.NoError(t, err)

	_, err = s.PutPart(ctx, sess, 1, bytes.NewReader([]byte("x")), 1)
	assert.ErrorIs(t, err, boom)
	_, err = s.PutPart(ctx, sess, 1, bytes.NewReader([]byte("x")), 1)
	require.NoError(t, err)

	require.NoError(t, s.AbortMultipart(ctx, sess))
	assert.Equal(t, 0, s.OpenUploads())

	err = s.AbortMultipart(ctx, sess)
	assert.True(t, errors.IsSessionNotFound(err))

	calls := s.Calls()
	assert.Equal(t, 1, calls.Open)
	assert.Equal(t, 2, calls.PutPart)
	assert.Equal(t, 2, calls.Abort)
}
