package xfer

import (
	"context"
	stderrors "errors"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"github.com/input-output-hk/catalyst-forge-libs/xfer/endpoint"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/internal/engine"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/internal/metrics"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/internal/prober"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/internal/retry"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/internal/session"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/internal/validation"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/plan"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/xfertypes"
)

const (
	// DefaultPartSize is the part size used when none is configured.
	DefaultPartSize int64 = 100 * 1024 * 1024

	// DefaultConcurrency is the number of parts in flight when none is configured.
	DefaultConcurrency = 4
)

// Client runs transfers between registered endpoints. It is safe for
// concurrent use; each Transfer call owns its own session.
type Client struct {
	cfg     xfertypes.ClientConfig
	logger  *slog.Logger
	retry   *retry.Policy
	metrics *metrics.Metrics
}

// New creates a client with the provided options.
//
// Example:
//
//	client, err := xfer.New(
//	    xfer.WithEndpoint("mem", memory.New()),
//	    xfer.WithConcurrency(8),
//	)
func New(opts ...xfertypes.Option) (*Client, error) {
	cfg := xfertypes.ClientConfig{
		PartSize:     DefaultPartSize,
		Concurrency:  DefaultConcurrency,
		AbortTimeout: engine.DefaultAbortTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if len(cfg.Sources) == 0 && len(cfg.Destinations) == 0 {
		return nil, errors.NewError("client initialization", errors.ErrInvalidInput).
			WithMessage("at least one endpoint must be registered")
	}
	for name, src := range cfg.Sources {
		if name == "" || src == nil {
			return nil, errors.NewError("client initialization", errors.ErrInvalidInput).
				WithEndpoint(name).
				WithMessage("sources need a name and an implementation")
		}
	}
	for name, dst := range cfg.Destinations {
		if name == "" || dst == nil {
			return nil, errors.NewError("client initialization", errors.ErrInvalidInput).
				WithEndpoint(name).
				WithMessage("destinations need a name and an implementation")
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Client{
		cfg:     cfg,
		logger:  logger,
		retry:   retry.NewPolicy(cfg.Retry),
		metrics: metrics.New(cfg.Registry),
	}, nil
}

// Transfer copies req.Source to req.Destination. The returned outcome is never
// nil. The error is nil exactly when the outcome is Committed; on abort it
// carries the originating failure and, if the abort itself failed, also
// matches ErrCleanupIncomplete.
func (c *Client) Transfer(
	ctx context.Context,
	req xfertypes.TransferRequest,
	opts ...xfertypes.TransferOption,
) (*xfertypes.Outcome, error) {
	topts := &xfertypes.TransferOptionConfig{}
	for _, opt := range opts {
		opt(topts)
	}

	transferID := uuid.NewString()
	src, dst, err := c.resolve(req)
	if err != nil {
		c.metrics.TransferFinished(xfertypes.Aborted.String())
		return &xfertypes.Outcome{Kind: xfertypes.Aborted, TransferID: transferID, Reason: err}, err
	}

	e := engine.New(engine.Config{
		TransferID:        transferID,
		Request:           req,
		Source:            src,
		Destination:       dst,
		PartSize:          c.partSize(req, topts),
		Concurrency:       firstPositive(topts.Concurrency, c.cfg.Concurrency),
		Retry:             c.retry,
		AbortTimeout:      c.cfg.AbortTimeout,
		DetectContentType: c.cfg.DetectContentType,
		ContentType:       topts.ContentType,
		Metadata:          topts.Metadata,
		Progress:          topts.ProgressTracker,
		Journal:           c.cfg.Journal,
		Metrics:           c.metrics,
		Logger:            c.logger,
	})
	return e.Run(ctx)
}

// Plan probes the source and returns the part plan a transfer of req would use,
// validated against the destination's part limits. Nothing is written.
func (c *Client) Plan(
	ctx context.Context,
	req xfertypes.TransferRequest,
	opts ...xfertypes.TransferOption,
) (*plan.Plan, error) {
	topts := &xfertypes.TransferOptionConfig{}
	for _, opt := range opts {
		opt(topts)
	}

	if err := validation.ValidateRequest(req); err != nil {
		return nil, err
	}
	src, dst, err := c.resolve(req)
	if err != nil {
		return nil, err
	}

	info, err := prober.New(req.Source.Endpoint, src, false, c.logger).Probe(ctx, req.Source.Object)
	if err != nil {
		return nil, err
	}

	p, err := plan.New(info.Size, c.partSize(req, topts))
	if err != nil {
		return nil, err
	}
	if err := validation.ValidatePlan(p, endpoint.LimitsOf(dst)); err != nil {
		return nil, err
	}
	return p, nil
}

// RecoveryResult reports the cleanup of one orphaned session.
type RecoveryResult struct {
	Record xfertypes.SessionRecord
	Err    error
}

// Recover aborts every session the journal still records as open, which are
// sessions left behind by a crash or by a failed abort. It is idempotent: a
// session the destination no longer knows counts as aborted. The returned
// error joins every individual failure.
func (c *Client) Recover(ctx context.Context) ([]RecoveryResult, error) {
	if c.cfg.Journal == nil {
		return nil, errors.NewError("recover", errors.ErrInvalidInput).
			WithMessage("no journal configured")
	}

	pending, err := c.cfg.Journal.Pending(ctx)
	if err != nil {
		return nil, errors.NewError("recover", err)
	}

	results := make([]RecoveryResult, 0, len(pending))
	var errs []error
	for _, rec := range pending {
		err := c.recoverOne(ctx, rec)
		if err != nil {
			errs = append(errs, err)
		}
		results = append(results, RecoveryResult{Record: rec, Err: err})
	}
	return results, stderrors.Join(errs...)
}

func (c *Client) recoverOne(ctx context.Context, rec xfertypes.SessionRecord) error {
	dst, ok := c.cfg.Destinations[rec.Destination.Endpoint]
	if !ok {
		return errors.NewError("recover", errors.ErrEndpointNotFound).
			WithEndpoint(rec.Destination.Endpoint).
			WithObject(rec.Destination.Object)
	}

	mgr := session.NewManager(rec.Destination.Endpoint, dst, c.logger)
	if err := mgr.AbortHandle(ctx, rec.Session()); err != nil {
		c.metrics.AbortFailed()
		c.logger.Error("recovery abort failed",
			"transfer_id", rec.TransferID,
			"destination", rec.Destination.String(),
			"upload_id", rec.UploadID,
			"error", err)
		return err
	}

	if err := c.cfg.Journal.Resolve(ctx, rec.TransferID, xfertypes.SessionAborted); err != nil {
		return errors.NewError("recover", err).WithObject(rec.Destination.Object)
	}

	c.logger.Info("aborted orphaned session",
		"transfer_id", rec.TransferID,
		"destination", rec.Destination.String(),
		"upload_id", rec.UploadID)
	return nil
}

// Sessions lists every journaled session, newest first.
func (c *Client) Sessions(ctx context.Context) ([]xfertypes.SessionRecord, error) {
	if c.cfg.Journal == nil {
		return nil, errors.NewError("sessions", errors.ErrInvalidInput).
			WithMessage("no journal configured")
	}
	return c.cfg.Journal.List(ctx)
}

// Endpoints returns the registered source and destination names, sorted.
func (c *Client) Endpoints() (sources, destinations []string) {
	for name := range c.cfg.Sources {
		sources = append(sources, name)
	}
	for name := range c.cfg.Destinations {
		destinations = append(destinations, name)
	}
	slices.Sort(sources)
	slices.Sort(destinations)
	return sources, destinations
}

func (c *Client) resolve(req xfertypes.TransferRequest) (endpoint.Source, endpoint.Destination, error) {
	src, ok := c.cfg.Sources[req.Source.Endpoint]
	if !ok {
		return nil, nil, errors.NewError("transfer", errors.ErrEndpointNotFound).
			WithEndpoint(req.Source.Endpoint).
			WithMessage("unknown source")
	}
	dst, ok := c.cfg.Destinations[req.Destination.Endpoint]
	if !ok {
		return nil, nil, errors.NewError("transfer", errors.ErrEndpointNotFound).
			WithEndpoint(req.Destination.Endpoint).
			WithMessage("unknown destination")
	}
	return src, dst, nil
}

// partSize picks the request's part size, then the transfer option's, then the client's.
func (c *Client) partSize(req xfertypes.TransferRequest, topts *xfertypes.TransferOptionConfig) int64 {
	return firstPositive(req.PartSize, topts.PartSize, c.cfg.PartSize)
}

func firstPositive[T int | int64](values ...T) T {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
