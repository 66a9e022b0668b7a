// Package fsys provides an endpoint over a go-billy filesystem: a local
// directory tree or an in-memory filesystem.
//
// Destinations stage parts as files under .xfer/<uploadID>/ and commit by
// concatenating them into a temporary file that is renamed onto the target.
package fsys

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/google/uuid"

	"github.com/input-output-hk/catalyst-forge-libs/xfer/endpoint"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/internal/digest"
)

// StagingDir is the directory, relative to the filesystem root, that holds open sessions.
const StagingDir = ".xfer"

const markerName = "session"

// Endpoint is a filesystem tree.
type Endpoint struct {
	fs   billy.Filesystem
	name string
}

var (
	_ endpoint.Source      = (*Endpoint)(nil)
	_ endpoint.Destination = (*Endpoint)(nil)
)

// New wraps fs. name identifies the endpoint in errors.
func New(fs billy.Filesystem, name string) *Endpoint {
	return &Endpoint{fs: fs, name: name}
}

// NewOS returns an endpoint rooted at the local directory root.
func NewOS(root string) *Endpoint {
	return New(osfs.New(root), root)
}

// NewMemory returns an endpoint over an empty in-memory filesystem.
func NewMemory() *Endpoint {
	return New(memfs.New(), "memfs")
}

// Filesystem returns the underlying filesystem.
func (e *Endpoint) Filesystem() billy.Filesystem {
	return e.fs
}

func stagingDir(uploadID string) string {
	return path.Join(StagingDir, uploadID)
}

func partPath(uploadID string, n int32) string {
	return path.Join(stagingDir(uploadID), fmt.Sprintf("part-%05d", n))
}

// Head implements endpoint.Source.
func (e *Endpoint) Head(_ context.Context, object string) (endpoint.ObjectInfo, error) {
	fi, err := e.fs.Stat(object)
	if err != nil {
		return endpoint.ObjectInfo{}, e.fail("stat", object, err)
	}
	if fi.IsDir() {
		return endpoint.ObjectInfo{}, errors.NewObjectError("stat", e.name, object, errors.ErrInvalidInput).
			WithMessage("is a directory")
	}
	return endpoint.ObjectInfo{Size: fi.Size()}, nil
}

type rangeReader struct {
	io.Reader
	io.Closer
}

// GetRange implements endpoint.Source.
func (e *Endpoint) GetRange(_ context.Context, object string, start, end int64) (io.ReadCloser, error) {
	f, err := e.fs.Open(object)
	if err != nil {
		return nil, e.fail("open", object, err)
	}
	if _, err := f.Seek(start, io.SeekStart); err != nil {
		_ = f.Close()
		return nil, e.fail("seek", object, err)
	}
	return rangeReader{Reader: io.LimitReader(f, end-start+1), Closer: f}, nil
}

// OpenMultipart implements endpoint.Destination. Content type and metadata
// have no filesystem representation and are dropped.
func (e *Endpoint) OpenMultipart(_ context.Context, object string, _ endpoint.OpenOptions) (endpoint.Session, error) {
	sess := endpoint.Session{Object: object, UploadID: uuid.NewString()}

	if err := e.fs.MkdirAll(stagingDir(sess.UploadID), 0o755); err != nil {
		return endpoint.Session{}, e.fail("openSession", object, err)
	}
	marker := path.Join(stagingDir(sess.UploadID), markerName)
	if err := util.WriteFile(e.fs, marker, []byte(object), 0o644); err != nil {
		return endpoint.Session{}, e.fail("openSession", object, err)
	}
	return sess, nil
}

// PutPart implements endpoint.Destination.
func (e *Endpoint) PutPart(
	_ context.Context,
	sess endpoint.Session,
	partNumber int32,
	body io.ReadSeeker,
	size int64,
) (string, error) {
	if partNumber < 1 {
		return "", errors.NewObjectError("putPart", e.name, sess.Object, errors.ErrInvalidInput).WithPart(partNumber)
	}
	if err := e.checkSession(sess); err != nil {
		return "", err.WithOp("putPart").WithPart(partNumber)
	}

	f, err := e.fs.Create(partPath(sess.UploadID, partNumber))
	if err != nil {
		return "", e.fail("putPart", sess.Object, err).WithPart(partNumber)
	}
	defer f.Close()

	d := digest.NewReader(io.LimitReader(body, size))
	if _, err := io.Copy(f, d); err != nil {
		return "", e.fail("putPart", sess.Object, err).WithPart(partNumber)
	}
	if d.Count() != size {
		return "", errors.NewObjectError("putPart", e.name, sess.Object, io.ErrUnexpectedEOF).WithPart(partNumber)
	}
	return d.Hex(), nil
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
	if err := e.checkSession(sess); err != nil {
		return "", err.WithOp("complete")
	}

	tmp := path.Join(stagingDir(sess.UploadID), "assembled")
	if err := e.assemble(ctx, sess, tmp, parts); err != nil {
		_ = e.fs.Remove(tmp)
		return "", err
	}

	if dir := path.Dir(sess.Object); dir != "." {
		if err := e.fs.MkdirAll(dir, 0o755); err != nil {
			return "", e.fail("complete", sess.Object, err)
		}
	}
	if err := e.fs.Rename(tmp, sess.Object); err != nil {
		return "", e.fail("complete", sess.Object, err)
	}
	if err := util.RemoveAll(e.fs, stagingDir(sess.UploadID)); err != nil {
		return sess.Object, errors.NewObjectError("cleanup", e.name, sess.Object,
			errors.Wrap(errors.ErrCleanupIncomplete, err))
	}
	return sess.Object, nil
}

func (e *Endpoint) assemble(ctx context.Context, sess endpoint.Session, tmp string, parts []endpoint.CompletedPart) error {
	out, err := e.fs.Create(tmp)
	if err != nil {
		return e.fail("complete", sess.Object, err)
	}
	defer out.Close()

	for i, p := range parts {
		if err := ctx.Err(); err != nil {
			return errors.NewObjectError("complete", e.name, sess.Object, err)
		}
		if i > 0 && p.PartNumber <= parts[i-1].PartNumber {
			return errors.NewObjectError("complete", e.name, sess.Object, errors.ErrInvalidInput).
				WithMessage("parts out of order")
		}
		if err := e.appendPart(out, sess, p); err != nil {
			return err
		}
	}
	return nil
}

func (e *Endpoint) appendPart(out io.Writer, sess endpoint.Session, p endpoint.CompletedPart) error {
	f, err := e.fs.Open(partPath(sess.UploadID, p.PartNumber))
	if err != nil {
		if os.IsNotExist(err) {
			return errors.NewObjectError("complete", e.name, sess.Object, errors.Wrap(errors.ErrInvalidInput, err)).
				WithPart(p.PartNumber).
				WithMessage("unknown part")
		}
		return e.fail("complete", sess.Object, err).WithPart(p.PartNumber)
	}
	defer f.Close()

	d := digest.NewReader(f)
	if _, err := io.Copy(out, d); err != nil {
		return e.fail("complete", sess.Object, err).WithPart(p.PartNumber)
	}
	if d.Hex() != p.Token {
		return errors.NewObjectError("complete", e.name, sess.Object, errors.ErrInvalidInput).
			WithPart(p.PartNumber).
			WithMessage("token mismatch")
	}
	return nil
}

// AbortMultipart implements endpoint.Destination.
func (e *Endpoint) AbortMultipart(_ context.Context, sess endpoint.Session) error {
	if err := e.checkSession(sess); err != nil {
		return err.WithOp("abort")
	}
	if err := util.RemoveAll(e.fs, stagingDir(sess.UploadID)); err != nil {
		return e.fail("abort", sess.Object, err)
	}
	return nil
}

// checkSession verifies the marker exists and names the session's object.
func (e *Endpoint) checkSession(sess endpoint.Session) *errors.Error {
	if sess.UploadID == "" || strings.ContainsAny(sess.UploadID, `/\`) || strings.Contains(sess.UploadID, "..") {
		return errors.NewObjectError("session", e.name, sess.Object, errors.ErrSessionNotFound)
	}

	data, err := util.ReadFile(e.fs, path.Join(stagingDir(sess.UploadID), markerName))
	if err != nil {
		if os.IsNotExist(err) {
			return errors.NewObjectError("session", e.name, sess.Object, errors.Wrap(errors.ErrSessionNotFound, err))
		}
		return e.fail("session", sess.Object, err)
	}
	if string(data) != sess.Object {
		return errors.NewObjectError("session", e.name, sess.Object, errors.ErrSessionNotFound).
			WithMessage("session belongs to another object")
	}
	return nil
}

func (e *Endpoint) fail(op, object string, err error) *errors.Error {
	switch {
	case os.IsNotExist(err):
		err = errors.Wrap(errors.ErrObjectNotFound, err)
	case os.IsPermission(err):
		err = errors.Wrap(errors.ErrAccessDenied, err)
	}
	return errors.NewObjectError(op, e.name, object, err)
}
