package storj

import (
	"context"
	"io"

	"storj.io/uplink"
)

// uplinkProject adapts *uplink.Project to project.
type uplinkProject struct {
	p *uplink.Project
}

func (u *uplinkProject) stat(ctx context.Context, bucket, key string) (int64, map[string]string, error) {
	obj, err := u.p.StatObject(ctx, bucket, key)
	if err != nil {
		return 0, nil, err
	}
	return obj.System.ContentLength, obj.Custom, nil
}

func (u *uplinkProject) download(ctx context.Context, bucket, key string, offset, length int64) (io.ReadCloser, error) {
	return u.p.DownloadObject(ctx, bucket, key, &uplink.DownloadOptions{Offset: offset, Length: length})
}

func (u *uplinkProject) begin(ctx context.Context, bucket, key string) (string, error) {
	info, err := u.p.BeginUpload(ctx, bucket, key, nil)
	if err != nil {
		return "", err
	}
	return info.UploadID, nil
}

func (u *uplinkProject) uploadPart(
	ctx context.Context,
	bucket, key, uploadID string,
	number uint32,
	body io.Reader,
	etag func() []byte,
) error {
	part, err := u.p.UploadPart(ctx, bucket, key, uploadID, number)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, body); err != nil {
		_ = part.Abort()
		return err
	}
	if err := part.SetETag(etag()); err != nil {
		_ = part.Abort()
		return err
	}
	return part.Commit()
}

func (u *uplinkProject) listParts(ctx context.Context, bucket, key, uploadID string) ([]uploadedPart, error) {
	it := u.p.ListUploadParts(ctx, bucket, key, uploadID, nil)

	var parts []uploadedPart
	for it.Next() {
		p := it.Item()
		parts = append(parts, uploadedPart{Number: p.PartNumber, Size: p.Size, ETag: p.ETag})
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return parts, nil
}

func (u *uplinkProject) commit(ctx context.Context, bucket, key, uploadID string, custom map[string]string) error {
	_, err := u.p.CommitUpload(ctx, bucket, key, uploadID, &uplink.CommitUploadOptions{
		CustomMetadata: uplink.CustomMetadata(custom),
	})
	return err
}

func (u *uplinkProject) abort(ctx context.Context, bucket, key, uploadID string) error {
	return u.p.AbortUpload(ctx, bucket, key, uploadID)
}

func (u *uplinkProject) Close() error {
	return u.p.Close()
}
