package gcs

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"github.com/input-output-hk/catalyst-forge-libs/xfer/errors"
)

// gcsBucket adapts *storage.BucketHandle to bucket.
type gcsBucket struct {
	h *storage.BucketHandle
}

func (b *gcsBucket) attrs(ctx context.Context, key string) (attrs, error) {
	a, err := b.h.Object(key).Attrs(ctx)
	if err != nil {
		return attrs{}, err
	}
	return attrs{Size: a.Size, ContentType: a.ContentType, ETag: a.Etag, Metadata: a.Metadata}, nil
}

func (b *gcsBucket) rangeReader(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	return b.h.Object(key).NewRangeReader(ctx, offset, length)
}

// write streams body into key. A failed copy cancels the upload so no
// truncated object is finalized.
func (b *gcsBucket) write(ctx context.Context, key string, body io.Reader, a attrs) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := b.h.Object(key).NewWriter(ctx)
	w.ContentType = a.ContentType
	w.Metadata = a.Metadata
	if _, err := io.Copy(w, body); err != nil {
		cancel()
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (b *gcsBucket) compose(ctx context.Context, dst string, srcs []string, a attrs) error {
	handles := make([]*storage.ObjectHandle, len(srcs))
	for i, s := range srcs {
		handles[i] = b.h.Object(s)
	}

	c := b.h.Object(dst).ComposerFrom(handles...)
	c.ContentType = a.ContentType
	c.Metadata = a.Metadata
	_, err := c.Run(ctx)
	return err
}

func (b *gcsBucket) list(ctx context.Context, prefix string) ([]string, error) {
	it := b.h.Objects(ctx, &storage.Query{Prefix: prefix})

	var keys []string
	for {
		a, err := it.Next()
		if stderrors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		keys = append(keys, a.Name)
	}
	return keys, nil
}

func (b *gcsBucket) delete(ctx context.Context, key string) error {
	return b.h.Object(key).Delete(ctx)
}

func translateKind(err error) error {
	if stderrors.Is(err, storage.ErrObjectNotExist) || stderrors.Is(err, storage.ErrBucketNotExist) {
		return errors.Wrap(errors.ErrObjectNotFound, err)
	}

	var apiErr *googleapi.Error
	if stderrors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusNotFound:
			return errors.Wrap(errors.ErrObjectNotFound, err)
		case http.StatusForbidden, http.StatusUnauthorized:
			return errors.Wrap(errors.ErrAccessDenied, err)
		case http.StatusBadRequest, http.StatusRequestedRangeNotSatisfiable:
			return errors.Wrap(errors.ErrInvalidInput, err)
		}
	}
	return err
}
