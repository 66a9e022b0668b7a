// Package memory provides an in-memory endpoint that acts as both a transfer
// source and a multipart destination. It is safe for concurrent use and supports
// fault injection through hooks, which makes it the workhorse of engine tests
// and dry runs.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/input-output-hk/catalyst-forge-libs/xfer/endpoint"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/internal/digest"
)

// Hooks inject failures. A hook returning a non-nil error makes the call fail
// with that error before any state changes. attempt counts calls for the same
// key starting at 1.
type Hooks struct {
	Head     func(object string) error
	GetRange func(object string, start, end int64, attempt int) error
	Open     func(object string) error
	PutPart  func(s endpoint.Session, partNumber int32, attempt int) error
	Complete func(s endpoint.Session) error
	Abort    func(s endpoint.Session) error
}

// Calls counts invocations per operation, including failed ones.
type Calls struct {
	Head     int
	GetRange int
	Open     int
	PutPart  int
	Complete int
	Abort    int
}

type object struct {
	data        []byte
	contentType string
	metadata    map[string]string
}

type upload struct {
	object string
	opts   endpoint.OpenOptions
	parts  map[int32][]byte
	tokens map[int32]string
}

// Store is an in-memory object store.
type Store struct {
	mu       sync.Mutex
	objects  map[string]*object
	uploads  map[string]*upload
	limits   endpoint.PartLimits
	hooks    Hooks
	calls    Calls
	attempts map[string]int
}

var (
	_ endpoint.Source      = (*Store)(nil)
	_ endpoint.Destination = (*Store)(nil)
	_ endpoint.PartLimiter = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store)

// WithLimits makes the store enforce multipart part limits.
func WithLimits(limits endpoint.PartLimits) Option {
	return func(s *Store) {
		s.limits = limits
	}
}

// WithHooks installs fault-injection hooks.
func WithHooks(hooks Hooks) Option {
	return func(s *Store) {
		s.hooks = hooks
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		objects:  make(map[string]*object),
		uploads:  make(map[string]*upload),
		attempts: make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put stores data under name, replacing any existing object.
func (s *Store) Put(name string, data []byte, contentType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[name] = &object{data: bytes.Clone(data), contentType: contentType}
}

// Object returns a copy of the named object's content.
func (s *Store) Object(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[name]
	if !ok {
		return nil, false
	}
	return bytes.Clone(obj.data), true
}

// ContentType returns the content type recorded for the named object.
func (s *Store) ContentType(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if obj, ok := s.objects[name]; ok {
		return obj.contentType
	}
	return ""
}

// OpenUploads returns the number of sessions that were neither completed nor aborted.
func (s *Store) OpenUploads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.uploads)
}

// Calls returns a snapshot of the call counters.
func (s *Store) Calls() Calls {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// PartLimits implements endpoint.PartLimiter.
func (s *Store) PartLimits() endpoint.PartLimits {
	return s.limits
}

// attempt increments and returns the attempt counter for key. Callers hold mu.
func (s *Store) attempt(key string) int {
	s.attempts[key]++
	return s.attempts[key]
}

// Head implements endpoint.Source.
func (s *Store) Head(_ context.Context, name string) (endpoint.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.Head++

	if s.hooks.Head != nil {
		if err := s.hooks.Head(name); err != nil {
			return endpoint.ObjectInfo{}, err
		}
	}

	obj, ok := s.objects[name]
	if !ok {
		return endpoint.ObjectInfo{}, errors.NewError("head", errors.ErrObjectNotFound).WithObject(name)
	}
	return endpoint.ObjectInfo{
		Size:        int64(len(obj.data)),
		ContentType: obj.contentType,
		ETag:        digest.Sum(obj.data),
	}, nil
}

// GetRange implements endpoint.Source.
func (s *Store) GetRange(_ context.Context, name string, start, end int64) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.GetRange++

	if s.hooks.GetRange != nil {
		n := s.attempt(fmt.Sprintf("get/%s/%d-%d", name, start, end))
		if err := s.hooks.GetRange(name, start, end, n); err != nil {
			return nil, err
		}
	}

	obj, ok := s.objects[name]
	if !ok {
		return nil, errors.NewError("getRange", errors.ErrObjectNotFound).WithObject(name)
	}
	if start < 0 || end < start || end >= int64(len(obj.data)) {
		return nil, errors.NewError("getRange", errors.ErrInvalidInput).
			WithObject(name).
			WithMessage(fmt.Sprintf("range %d-%d not satisfiable for %d bytes", start, end, len(obj.data)))
	}
	return io.NopCloser(bytes.NewReader(bytes.Clone(obj.data[start : end+1]))), nil
}

// OpenMultipart implements endpoint.Destination.
func (s *Store) OpenMultipart(_ context.Context, name string, opts endpoint.OpenOptions) (endpoint.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.Open++

	if s.hooks.Open != nil {
		if err := s.hooks.Open(name); err != nil {
			return endpoint.Session{}, err
		}
	}

	id := uuid.NewString()
	s.uploads[id] = &upload{
		object: name,
		opts:   opts,
		parts:  make(map[int32][]byte),
		tokens: make(map[int32]string),
	}
	return endpoint.Session{Object: name, UploadID: id}, nil
}

// PutPart implements endpoint.Destination.
func (s *Store) PutPart(
	_ context.Context,
	sess endpoint.Session,
	partNumber int32,
	body io.ReadSeeker,
	size int64,
) (string, error) {
	// Read outside the lock; body belongs to the caller.
	data, err := io.ReadAll(io.LimitReader(body, size))
	if err != nil {
		return "", errors.NewError("putPart", err).WithObject(sess.Object).WithPart(partNumber)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.PutPart++

	if s.hooks.PutPart != nil {
		n := s.attempt(fmt.Sprintf("put/%s/%d", sess.UploadID, partNumber))
		if err := s.hooks.PutPart(sess, partNumber, n); err != nil {
			return "", err
		}
	}

	up, ok := s.uploads[sess.UploadID]
	if !ok {
		return "", errors.NewError("putPart", errors.ErrSessionNotFound).WithObject(sess.Object).WithPart(partNumber)
	}
	if int64(len(data)) != size {
		return "", errors.NewError("putPart", errors.ErrInvalidInput).
			WithObject(sess.Object).
			WithPart(partNumber).
			WithMessage(fmt.Sprintf("expected %d bytes, got %d", size, len(data)))
	}
	if s.limits.MaxSize > 0 && size > s.limits.MaxSize {
		return "", errors.NewError("putPart", errors.ErrInvalidInput).
			WithObject(sess.Object).
			WithPart(partNumber).
			WithMessage("part too large")
	}

	tok := digest.Sum(data)
	up.parts[partNumber] = data
	up.tokens[partNumber] = tok
	return tok, nil
}

// CompleteMultipart implements endpoint.Destination.
func (s *Store) CompleteMultipart(_ context.Context, sess endpoint.Session, parts []endpoint.CompletedPart) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.Complete++

	if s.hooks.Complete != nil {
		if err := s.hooks.Complete(sess); err != nil {
			return "", err
		}
	}

	up, ok := s.uploads[sess.UploadID]
	if !ok {
		return "", errors.NewError("complete", errors.ErrSessionNotFound).WithObject(sess.Object)
	}
	if len(parts) == 0 {
		return "", errors.NewError("complete", errors.ErrInvalidInput).
			WithObject(sess.Object).
			WithMessage("at least one part is required")
	}

	var buf bytes.Buffer
	for i, p := range parts {
		if i > 0 && p.PartNumber <= parts[i-1].PartNumber {
			return "", errors.NewError("complete", errors.ErrInvalidInput).
				WithObject(sess.Object).
				WithPart(p.PartNumber).
				WithMessage("parts must be in ascending order")
		}
		data, ok := up.parts[p.PartNumber]
		if !ok || up.tokens[p.PartNumber] != p.Token {
			return "", errors.NewError("complete", errors.ErrInvalidInput).
				WithObject(sess.Object).
				WithPart(p.PartNumber).
				WithMessage("unknown part or token mismatch")
		}
		if s.limits.MinSize > 0 && i < len(parts)-1 && int64(len(data)) < s.limits.MinSize {
			return "", errors.NewError("complete", errors.ErrInvalidInput).
				WithObject(sess.Object).
				WithPart(p.PartNumber).
				WithMessage("part smaller than the minimum part size")
		}
		buf.Write(data)
	}

	s.objects[up.object] = &object{
		data:        buf.Bytes(),
		contentType: up.opts.ContentType,
		metadata:    up.opts.Metadata,
	}
	delete(s.uploads, sess.UploadID)
	return up.object, nil
}

// AbortMultipart implements endpoint.Destination.
func (s *Store) AbortMultipart(_ context.Context, sess endpoint.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.Abort++

	if s.hooks.Abort != nil {
		if err := s.hooks.Abort(sess); err != nil {
			return err
		}
	}

	if _, ok := s.uploads[sess.UploadID]; !ok {
		return errors.NewError("abort", errors.ErrSessionNotFound).WithObject(sess.Object)
	}
	delete(s.uploads, sess.UploadID)
	return nil
}

