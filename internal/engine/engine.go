// Package engine drives a single transfer attempt: probe the source, plan the
// parts, open a destination session, move every part under a bounded worker
// pool with per-part retries, then commit, or abort on any failure.
package engine

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/input-output-hk/catalyst-forge-libs/xfer/endpoint"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/internal/metrics"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/internal/pool"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/internal/prober"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/internal/retry"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/internal/session"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/internal/validation"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/plan"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/xfertypes"
)

// DefaultAbortTimeout bounds the cleanup call when none is configured.
const DefaultAbortTimeout = 30 * time.Second

// Config wires one transfer attempt.
type Config struct {
	TransferID string
	Request    xfertypes.TransferRequest

	Source      endpoint.Source
	Destination endpoint.Destination

	PartSize    int64
	Concurrency int
	Retry       *retry.Policy

	AbortTimeout      time.Duration
	DetectContentType bool

	// ContentType and Metadata override what is forwarded to the destination
	ContentType string
	Metadata    map[string]string

	Progress xfertypes.ProgressTracker
	Journal  xfertypes.Journal
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	OnState  StateHook
}

// Engine runs one attempt. It is not reusable.
type Engine struct {
	cfg     Config
	req     xfertypes.TransferRequest
	logger  *slog.Logger
	prober  *prober.Prober
	manager *session.Manager

	mu    sync.Mutex
	state State
	done  int64
}

// New creates an engine for a single attempt.
func New(cfg Config) *Engine {
	if cfg.TransferID == "" {
		cfg.TransferID = uuid.NewString()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Retry == nil {
		cfg.Retry = retry.NewPolicy(xfertypes.RetryConfig{})
	}
	if cfg.AbortTimeout <= 0 {
		cfg.AbortTimeout = DefaultAbortTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	req := cfg.Request
	logger = logger.With(
		"transfer_id", cfg.TransferID,
		"source", req.Source.String(),
		"destination", req.Destination.String(),
	)

	return &Engine{
		cfg:     cfg,
		req:     req,
		logger:  logger,
		prober:  prober.New(req.Source.Endpoint, cfg.Source, cfg.DetectContentType, logger),
		manager: session.NewManager(req.Destination.Endpoint, cfg.Destination, logger),
	}
}

// State returns the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(s State, part int32) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()

	if s != PartInFlight {
		e.logger.Debug("transfer state changed", "state", s.String())
	}
	if e.cfg.OnState != nil {
		e.cfg.OnState(s, part)
	}
}

// Run executes the attempt and returns its outcome, which is never nil.
// The returned error is nil exactly when the outcome is Committed.
func (e *Engine) Run(ctx context.Context) (*xfertypes.Outcome, error) {
	started := time.Now()
	out := &xfertypes.Outcome{
		Kind:       xfertypes.Aborted,
		TransferID: e.cfg.TransferID,
	}
	defer func() {
		out.Duration = time.Since(started)
		e.cfg.Metrics.TransferFinished(out.Kind.String())
	}()

	e.setState(Planning, 0)
	info, p, err := e.prepare(ctx)
	if err != nil {
		return e.fail(out, err)
	}
	out.Size = info.Size
	out.Parts = p.Len()

	e.logger.Info("starting transfer",
		"size", info.Size,
		"part_size", p.PartSize(),
		"parts", p.Len(),
		"concurrency", e.cfg.Concurrency)

	sess, err := e.manager.Open(ctx, e.req.Destination.Object, e.openOptions(info))
	if err != nil {
		return e.fail(out, err)
	}
	e.setState(SessionOpen, 0)

	if e.cfg.Journal != nil {
		rec := xfertypes.SessionRecord{
			TransferID:  e.cfg.TransferID,
			Source:      e.req.Source,
			Destination: e.req.Destination,
			UploadID:    sess.Handle().UploadID,
			Size:        info.Size,
			PartSize:    p.PartSize(),
			State:       xfertypes.SessionOpen,
		}
		if err := e.cfg.Journal.Record(ctx, rec); err != nil {
			return e.abort(ctx, out, sess, fmt.Errorf("journal session: %w", err))
		}
	}

	if err := e.transferParts(ctx, sess, p); err != nil {
		return e.abort(ctx, out, sess, err)
	}
	e.setState(PartsComplete, 0)

	e.setState(Committing, 0)
	object, err := e.manager.Commit(ctx, sess, p)
	if err != nil {
		return e.abort(ctx, out, sess, err)
	}

	e.resolve(ctx, xfertypes.SessionCommitted)
	e.setState(Committed, 0)
	if e.cfg.Progress != nil {
		e.cfg.Progress.Complete()
	}

	out.Kind = xfertypes.Committed
	out.Object = object
	e.logger.Info("transfer committed",
		"object", object,
		"size", info.Size,
		"parts", p.Len(),
		"duration", time.Since(started).String())
	return out, nil
}

// prepare probes the source and builds a plan the destination will accept.
func (e *Engine) prepare(ctx context.Context) (prober.Info, *plan.Plan, error) {
	if err := validation.ValidateRequest(e.req); err != nil {
		return prober.Info{}, nil, err
	}
	if e.cfg.PartSize <= 0 {
		return prober.Info{}, nil, errors.NewError("plan", errors.ErrInvalidInput).
			WithMessage("part size must be positive")
	}
	if err := validation.ValidateMetadata(e.cfg.Metadata); err != nil {
		return prober.Info{}, nil, err
	}
	if err := validation.ValidateContentType(e.cfg.ContentType); err != nil {
		return prober.Info{}, nil, err
	}

	info, err := e.prober.Probe(ctx, e.req.Source.Object)
	if err != nil {
		return prober.Info{}, nil, err
	}

	p, err := plan.New(info.Size, e.cfg.PartSize)
	if err != nil {
		return prober.Info{}, nil, err
	}
	if err := validation.ValidatePlan(p, endpoint.LimitsOf(e.cfg.Destination)); err != nil {
		return prober.Info{}, nil, err
	}
	return info, p, nil
}

func (e *Engine) openOptions(info prober.Info) endpoint.OpenOptions {
	ct := e.cfg.ContentType
	if ct == "" {
		ct = info.ContentType
	}
	return endpoint.OpenOptions{ContentType: ct, Metadata: e.cfg.Metadata}
}

// transferParts moves every planned part, at most Concurrency at a time.
// No part is dispatched after the context is done or another part has failed.
func (e *Engine) transferParts(ctx context.Context, sess *session.Session, p *plan.Plan) error {
	parts := p.Parts()

	var buffers *pool.BufferPool
	if size := parts[0].Size(); size > 0 {
		buffers = pool.For(int(size))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)

	for _, part := range parts {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return e.transferPart(gctx, sess, part, p.TotalSize(), buffers)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (e *Engine) transferPart(
	ctx context.Context,
	sess *session.Session,
	part plan.PartSpec,
	total int64,
	buffers *pool.BufferPool,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.setState(PartInFlight, part.Number)

	var buf []byte
	if buffers != nil {
		buf = buffers.Get()
		defer buffers.Put(buf)
		buf = buf[:part.Size()]
	}

	started := time.Now()
	var token string
	err := e.cfg.Retry.Do(ctx, func(int) error {
		if err := e.readPart(ctx, part, buf); err != nil {
			return err
		}
		tok, err := e.manager.PutPart(ctx, sess, part, bytes.NewReader(buf))
		if err != nil {
			return err
		}
		token = tok
		return nil
	}, func(attempt int, err error, delay time.Duration) {
		e.cfg.Metrics.PartRetried()
		e.logger.Warn("retrying part",
			"part", part.Number,
			"attempt", attempt,
			"delay", delay.String(),
			"error", err)
	})
	if err != nil {
		e.cfg.Metrics.PartFailed()
		e.logger.Error("part failed",
			"part", part.Number,
			"start", part.Start,
			"end", part.End,
			"error", err)
		return err
	}

	if err := sess.Acknowledge(part.Number, token); err != nil {
		e.cfg.Metrics.PartFailed()
		return err
	}

	e.cfg.Metrics.PartAcknowledged(part.Size(), time.Since(started))
	e.logger.Info("part transferred",
		"part", part.Number,
		"start", part.Start,
		"end", part.End,
		"size", part.Size())

	e.mu.Lock()
	e.done += part.Size()
	if e.cfg.Progress != nil {
		e.cfg.Progress.Update(e.done, total)
	}
	e.mu.Unlock()

	return nil
}

// readPart fills buf with the part's bytes. A short read is a transient source failure.
func (e *Engine) readPart(ctx context.Context, part plan.PartSpec, buf []byte) error {
	if part.Size() == 0 {
		return nil
	}

	src := e.req.Source
	body, err := e.cfg.Source.GetRange(ctx, src.Object, part.Start, part.End)
	if err != nil {
		return errors.Wrap(errors.ErrSourceUnavailable,
			errors.NewObjectError("getRange", src.Endpoint, src.Object, err).WithPart(part.Number))
	}
	defer func() { _ = body.Close() }()

	if _, err := io.ReadFull(body, buf); err != nil {
		return errors.Wrap(errors.ErrSourceUnavailable,
			errors.NewObjectError("getRange", src.Endpoint, src.Object, err).
				WithPart(part.Number).
				WithMessage(fmt.Sprintf("reading %s", part.Range())))
	}
	return nil
}

// fail ends an attempt that never opened a session.
func (e *Engine) fail(out *xfertypes.Outcome, reason error) (*xfertypes.Outcome, error) {
	out.Reason = reason
	e.setState(Failed, 0)
	if e.cfg.Progress != nil {
		e.cfg.Progress.Error(reason)
	}
	e.logger.Error("transfer failed before a session was opened", "error", reason)
	return out, reason
}

// abort discards the session after a failure. Cleanup runs on a context that
// survives cancellation of ctx, bounded by AbortTimeout.
func (e *Engine) abort(
	ctx context.Context,
	out *xfertypes.Outcome,
	sess *session.Session,
	reason error,
) (*xfertypes.Outcome, error) {
	e.setState(Aborting, 0)
	out.Reason = reason

	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.AbortTimeout)
	defer cancel()

	retErr := reason
	if err := e.manager.Abort(actx, sess); err != nil {
		e.cfg.Metrics.AbortFailed()
		out.CleanupErr = err
		retErr = stderrors.Join(reason, errors.Wrap(errors.ErrCleanupIncomplete, err))
		e.logger.Error("abort failed, session may be orphaned",
			"upload_id", sess.Handle().UploadID,
			"error", err)
	} else {
		e.resolveWith(actx, xfertypes.SessionAborted)
	}

	e.setState(Aborted, 0)
	if e.cfg.Progress != nil {
		e.cfg.Progress.Error(reason)
	}
	e.logger.Error("transfer aborted", "error", reason)
	return out, retErr
}

func (e *Engine) resolve(ctx context.Context, state xfertypes.SessionState) {
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.AbortTimeout)
	defer cancel()
	e.resolveWith(actx, state)
}

func (e *Engine) resolveWith(ctx context.Context, state xfertypes.SessionState) {
	if e.cfg.Journal == nil {
		return
	}
	if err := e.cfg.Journal.Resolve(ctx, e.cfg.TransferID, state); err != nil {
		e.logger.Warn("journal update failed", "state", string(state), "error", err)
	}
}
