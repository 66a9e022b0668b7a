// Package session manages multipart sessions on a destination endpoint.
//
// A Session records exactly one acknowledgement token per part number and
// reaches exactly one terminal state. The Manager is the only component that
// talks to the destination's session operations.
package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/input-output-hk/catalyst-forge-libs/xfer/endpoint"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/plan"
)

// State is the lifecycle state of a session.
type State int

const (
	Open State = iota
	Committed
	Aborted
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case Committed:
		return "committed"
	case Aborted:
		return "aborted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Session is an open multipart session and its acknowledgement ledger.
// Acknowledge is safe for concurrent use by part workers.
type Session struct {
	mu     sync.Mutex
	handle endpoint.Session
	tokens map[int32]string
	state  State
	object string
}

// New wraps a destination handle in a fresh open session.
func New(handle endpoint.Session) *Session {
	return &Session{
		handle: handle,
		tokens: make(map[int32]string),
	}
}

// Handle returns the destination's session identifier.
func (s *Session) Handle() endpoint.Session {
	return s.handle
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Object returns the committed object identifier, or "" before commit.
func (s *Session) Object() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.object
}

// Acknowledge records the token the destination returned for a part.
// The first token for a part wins. Repeating the same token is a no-op;
// a different token fails with ErrInconsistentAcknowledgement.
func (s *Session) Acknowledge(partNumber int32, token string) error {
	if partNumber < 1 {
		return errors.NewError("acknowledge", errors.ErrInvalidInput).
			WithObject(s.handle.Object).
			WithMessage(fmt.Sprintf("part number %d is not positive", partNumber))
	}
	if token == "" {
		return errors.NewError("acknowledge", errors.ErrInvalidInput).
			WithObject(s.handle.Object).
			WithPart(partNumber).
			WithMessage("empty token")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Open {
		return errors.NewError("acknowledge", errors.ErrSessionClosed).
			WithObject(s.handle.Object).
			WithPart(partNumber)
	}

	if existing, ok := s.tokens[partNumber]; ok {
		if existing == token {
			return nil
		}
		return errors.NewError("acknowledge", errors.ErrInconsistentAcknowledgement).
			WithObject(s.handle.Object).
			WithPart(partNumber).
			WithMessage(fmt.Sprintf("token %q conflicts with %q", token, existing))
	}

	s.tokens[partNumber] = token
	return nil
}

// Token returns the token recorded for a part.
func (s *Session) Token(partNumber int32) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[partNumber]
	return tok, ok
}

// Acknowledged returns the number of parts with a recorded token.
func (s *Session) Acknowledged() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

// Manager issues session operations against one destination endpoint.
type Manager struct {
	name   string
	dst    endpoint.Destination
	logger *slog.Logger
}

// NewManager creates a manager for the destination registered under name.
func NewManager(name string, dst endpoint.Destination, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{name: name, dst: dst, logger: logger}
}

// Open starts a multipart session for object.
func (m *Manager) Open(ctx context.Context, object string, opts endpoint.OpenOptions) (*Session, error) {
	handle, err := m.dst.OpenMultipart(ctx, object, opts)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDestinationUnavailable,
			errors.NewObjectError("open", m.name, object, err))
	}
	if handle.UploadID == "" {
		return nil, errors.NewObjectError("open", m.name, object, errors.ErrDestinationUnavailable).
			WithMessage("destination returned an empty session identifier")
	}

	m.logger.Debug("opened multipart session",
		"destination", m.name,
		"object", object,
		"upload_id", handle.UploadID)

	return New(handle), nil
}

// PutPart writes one part's bytes and returns the destination's token.
// It does not acknowledge the part.
func (m *Manager) PutPart(
	ctx context.Context,
	s *Session,
	part plan.PartSpec,
	body io.ReadSeeker,
) (string, error) {
	if st := s.State(); st != Open {
		return "", errors.NewObjectError("putPart", m.name, s.handle.Object, errors.ErrSessionClosed).
			WithPart(part.Number)
	}

	token, err := m.dst.PutPart(ctx, s.handle, part.Number, body, part.Size())
	if err != nil {
		return "", errors.Wrap(errors.ErrDestinationUnavailable,
			errors.NewObjectError("putPart", m.name, s.handle.Object, err).WithPart(part.Number))
	}
	return token, nil
}

// Commit completes the session with every planned part in ascending order.
// If any planned part lacks a token it fails with ErrIncompleteSession without
// contacting the destination. A failed commit leaves the session open so the
// caller can abort it.
func (m *Manager) Commit(ctx context.Context, s *Session, p *plan.Plan) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Open {
		return "", errors.NewObjectError("commit", m.name, s.handle.Object, errors.ErrSessionClosed)
	}

	parts := make([]endpoint.CompletedPart, 0, p.Len())
	var missing []int32
	for _, spec := range p.Parts() {
		tok, ok := s.tokens[spec.Number]
		if !ok {
			missing = append(missing, spec.Number)
			continue
		}
		parts = append(parts, endpoint.CompletedPart{PartNumber: spec.Number, Token: tok})
	}
	if len(missing) > 0 {
		return "", errors.NewObjectError("commit", m.name, s.handle.Object, errors.ErrIncompleteSession).
			WithMessage(fmt.Sprintf("%d of %d parts unacknowledged: %v", len(missing), p.Len(), missing))
	}

	// Plans are ordered already; sorting keeps the contract independent of that.
	slices.SortFunc(parts, func(a, b endpoint.CompletedPart) int {
		return int(a.PartNumber) - int(b.PartNumber)
	})

	object, err := m.dst.CompleteMultipart(ctx, s.handle, parts)
	if err != nil && object != "" && errors.IsCleanupIncomplete(err) {
		m.logger.Warn("committed with leftover staging data",
			"destination", m.name,
			"object", object,
			"upload_id", s.handle.UploadID,
			"error", err)
		err = nil
	}
	if err != nil {
		return "", errors.Wrap(errors.ErrDestinationUnavailable,
			errors.NewObjectError("commit", m.name, s.handle.Object, err))
	}
	if object == "" {
		object = s.handle.Object
	}

	s.state = Committed
	s.object = object

	m.logger.Debug("committed multipart session",
		"destination", m.name,
		"object", object,
		"upload_id", s.handle.UploadID,
		"parts", len(parts))

	return object, nil
}

// Abort cancels the session and discards its parts. It is a no-op on a session
// that already committed or aborted, and on one the destination no longer knows.
// A failed abort leaves the session open so it can be retried.
func (m *Manager) Abort(ctx context.Context, s *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Open {
		return nil
	}

	if err := m.AbortHandle(ctx, s.handle); err != nil {
		return err
	}
	s.state = Aborted
	return nil
}

// AbortHandle aborts a session known only by its destination handle, as
// recovered from a journal after a crash.
func (m *Manager) AbortHandle(ctx context.Context, handle endpoint.Session) error {
	err := m.dst.AbortMultipart(ctx, handle)
	switch {
	case err == nil:
		m.logger.Debug("aborted multipart session",
			"destination", m.name,
			"object", handle.Object,
			"upload_id", handle.UploadID)
		return nil
	case errors.IsSessionNotFound(err):
		m.logger.Debug("multipart session already gone",
			"destination", m.name,
			"object", handle.Object,
			"upload_id", handle.UploadID)
		return nil
	default:
		return errors.Wrap(errors.ErrDestinationUnavailable,
			errors.NewObjectError("abort", m.name, handle.Object, err))
	}
}
