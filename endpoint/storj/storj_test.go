package storj

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"storj.io/uplink"

	"github.com/input-output-hk/catalyst-forge-libs/xfer/endpoint"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/internal/digest"
)

type fakeObject struct {
	data   []byte
	custom map[string]string
}

type fakeUpload struct {
	key   string
	parts map[uint32][]byte
	etags map[uint32][]byte
}

// fakeProject keeps objects and uploads in memory with Storj error values.
type fakeProject struct {
	mu      sync.Mutex
	objects map[string]fakeObject
	uploads map[string]*fakeUpload
	next    int
	denied  bool
}

func newFakeProject() *fakeProject {
	return &fakeProject{
		objects: make(map[string]fakeObject),
		uploads: make(map[string]*fakeUpload),
	}
}

func (f *fakeProject) stat(_ context.Context, _, key string) (int64, map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.denied {
		return 0, nil, uplink.ErrPermissionDenied
	}
	obj, ok := f.objects[key]
	if !ok {
		return 0, nil, uplink.ErrObjectNotFound
	}
	return int64(len(obj.data)), obj.custom, nil
}

func (f *fakeProject) download(_ context.Context, _, key string, offset, length int64) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[key]
	if !ok {
		return nil, uplink.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data[offset : offset+length])), nil
}

func (f *fakeProject) begin(_ context.Context, _, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	id := string(rune('a' + f.next))
	f.uploads[id] = &fakeUpload{key: key, parts: map[uint32][]byte{}, etags: map[uint32][]byte{}}
	return id, nil
}

func (f *fakeProject) uploadPart(
	_ context.Context, _, _, uploadID string, number uint32, body io.Reader, etag func() []byte,
) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	up, ok := f.uploads[uploadID]
	if !ok {
		return uplink.ErrUploadIDInvalid
	}
	up.parts[number] = data
	up.etags[number] = etag()
	return nil
}

func (f *fakeProject) listParts(_ context.Context, _, _, uploadID string) ([]uploadedPart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	up, ok := f.uploads[uploadID]
	if !ok {
		return nil, uplink.ErrUploadIDInvalid
	}
	var parts []uploadedPart
	for n, data := range up.parts {
		parts = append(parts, uploadedPart{Number: n, Size: int64(len(data)), ETag: up.etags[n]})
	}
	return parts, nil
}

func (f *fakeProject) commit(_ context.Context, _, key, uploadID string, custom map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	up, ok := f.uploads[uploadID]
	if !ok {
		return uplink.ErrUploadIDInvalid
	}
	numbers := make([]int, 0, len(up.parts))
	for n := range up.parts {
		numbers = append(numbers, int(n))
	}
	sort.Ints(numbers)
	var buf bytes.Buffer
	for _, n := range numbers {
		buf.Write(up.parts[uint32(n)])
	}
	f.objects[key] = fakeObject{data: buf.Bytes(), custom: custom}
	delete(f.uploads, uploadID)
	return nil
}

func (f *fakeProject) abort(_ context.Context, _, _, uploadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.uploads[uploadID]; !ok {
		return uplink.ErrUploadIDInvalid
	}
	delete(f.uploads, uploadID)
	return nil
}

func (f *fakeProject) Close() error { return nil }

func TestEndpoint_RoundTrip(t *testing.T) {
	p := newFakeProject()
	e := newWithProject(p, "bucket", "backups")
	ctx := context.Background()

	sess, err := e.OpenMultipart(ctx, "db.tar", endpoint.OpenOptions{
		ContentType: "application/x-tar",
		Metadata:    map[string]string{"owner": "ops"},
	})
	require.NoError(t, err)

	chunks := [][]byte{[]byte("first-"), []byte("second")}
	var parts []endpoint.CompletedPart
	for i, c := range chunks {
		tok, err := e.PutPart(ctx, sess, int32(i+1), bytes.NewReader(c), int64(len(c)))
		require.NoError(t, err)
		assert.Equal(t, digest.Sum(c), tok)
		parts = append(parts, endpoint.CompletedPart{PartNumber: int32(i + 1), Token: tok})
	}

	obj, err := e.CompleteMultipart(ctx, sess, parts)
	require.NoError(t, err)
	assert.Equal(t, "db.tar", obj)

	info, err := e.Head(ctx, "db.tar")
	require.NoError(t, err)
	assert.Equal(t, int64(12), info.Size)
	assert.Equal(t, "application/x-tar", info.ContentType)
	assert.Equal(t, "ops", p.objects["backups/db.tar"].custom["owner"])

	rc, err := e.GetRange(ctx, "db.tar", 6, 11)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))
	assert.Empty(t, e.pending)
}

func TestEndpoint_CompleteVerifiesParts(t *testing.T) {
	tests := []struct {
		name  string
		parts func(tok string) []endpoint.CompletedPart
	}{
		{
			name:  "no parts",
			parts: func(string) []endpoint.CompletedPart { return nil },
		},
		{
			name: "digest mismatch",
			parts: func(string) []endpoint.CompletedPart {
				return []endpoint.CompletedPart{{PartNumber: 1, Token: "bogus"}}
			},
		},
		{
			name: "unknown part",
			parts: func(tok string) []endpoint.CompletedPart {
				return []endpoint.CompletedPart{{PartNumber: 2, Token: tok}}
			},
		},
		{
			name: "missing part",
			parts: func(tok string) []endpoint.CompletedPart {
				return []endpoint.CompletedPart{{PartNumber: 1, Token: tok}, {PartNumber: 2, Token: tok}}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newFakeProject()
			e := newWithProject(p, "bucket", "")
			ctx := context.Background()

			sess, err := e.OpenMultipart(ctx, "obj", endpoint.OpenOptions{})
			require.NoError(t, err)
			tok, err := e.PutPart(ctx, sess, 1, bytes.NewReader([]byte("x")), 1)
			require.NoError(t, err)

			_, err = e.CompleteMultipart(ctx, sess, tt.parts(tok))
			assert.True(t, errors.IsInvalidInput(err))
			assert.Empty(t, p.objects)
		})
	}
}

func TestEndpoint_ShortBody(t *testing.T) {
	e := newWithProject(newFakeProject(), "bucket", "")
	ctx := context.Background()

	sess, err := e.OpenMultipart(ctx, "obj", endpoint.OpenOptions{})
	require.NoError(t, err)

	_, err = e.PutPart(ctx, sess, 1, bytes.NewReader([]byte("abc")), 10)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestEndpoint_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("missing object", func(t *testing.T) {
		e := newWithProject(newFakeProject(), "bucket", "")
		_, err := e.Head(ctx, "nope")
		assert.True(t, errors.IsObjectNotFound(err))
		assert.ErrorIs(t, err, uplink.ErrObjectNotFound)
	})

	t.Run("permission denied", func(t *testing.T) {
		p := newFakeProject()
		p.denied = true
		_, err := newWithProject(p, "bucket", "").Head(ctx, "obj")
		assert.ErrorIs(t, err, errors.ErrAccessDenied)
	})

	t.Run("abort unknown upload", func(t *testing.T) {
		e := newWithProject(newFakeProject(), "bucket", "")
		err := e.AbortMultipart(ctx, endpoint.Session{Object: "obj", UploadID: "zz"})
		assert.True(t, errors.IsSessionNotFound(err))
	})

	t.Run("abort clears pending metadata", func(t *testing.T) {
		e := newWithProject(newFakeProject(), "bucket", "")
		sess, err := e.OpenMultipart(ctx, "obj", endpoint.OpenOptions{ContentType: "text/plain"})
		require.NoError(t, err)
		require.NoError(t, e.AbortMultipart(ctx, sess))
		assert.Empty(t, e.pending)
	})

	t.Run("invalid part number", func(t *testing.T) {
		e := newWithProject(newFakeProject(), "bucket", "")
		_, err := e.PutPart(ctx, endpoint.Session{Object: "o", UploadID: "u"}, 0, bytes.NewReader(nil), 0)
		assert.True(t, errors.IsInvalidInput(err))
	})
}

func TestNew_Validation(t *testing.T) {
	_, err := New(context.Background(), Config{Bucket: "b"})
	assert.True(t, errors.IsInvalidInput(err))

	_, err = New(context.Background(), Config{AccessGrant: "not-a-grant", Bucket: "b"})
	assert.True(t, errors.IsInvalidInput(err))
}
