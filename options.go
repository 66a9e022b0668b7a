package xfer

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/input-output-hk/catalyst-forge-libs/xfer/endpoint"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/xfertypes"
)

// Endpoint is implemented by adapters that can act as both source and destination.
type Endpoint interface {
	endpoint.Source
	endpoint.Destination
}

// WithSource registers a source endpoint under name.
func WithSource(name string, src endpoint.Source) xfertypes.Option {
	return func(c *xfertypes.ClientConfig) {
		if c.Sources == nil {
			c.Sources = make(map[string]endpoint.Source)
		}
		c.Sources[name] = src
	}
}

// WithDestination registers a destination endpoint under name.
func WithDestination(name string, dst endpoint.Destination) xfertypes.Option {
	return func(c *xfertypes.ClientConfig) {
		if c.Destinations == nil {
			c.Destinations = make(map[string]endpoint.Destination)
		}
		c.Destinations[name] = dst
	}
}

// WithEndpoint registers an endpoint as both a source and a destination.
func WithEndpoint(name string, e Endpoint) xfertypes.Option {
	return func(c *xfertypes.ClientConfig) {
		WithSource(name, e)(c)
		WithDestination(name, e)(c)
	}
}

// WithPartSize sets the default part size in bytes.
// Default is 100 MiB. Non-positive values are ignored.
func WithPartSize(partSize int64) xfertypes.Option {
	return func(c *xfertypes.ClientConfig) {
		if partSize > 0 {
			c.PartSize = partSize
		}
	}
}

// WithConcurrency sets the maximum number of parts in flight per transfer.
// Default is 4. Memory use is bounded by concurrency times part size.
func WithConcurrency(concurrency int) xfertypes.Option {
	return func(c *xfertypes.ClientConfig) {
		if concurrency > 0 {
			c.Concurrency = concurrency
		}
	}
}

// WithRetry sets the per-part retry budget. Unset fields keep their defaults.
func WithRetry(cfg xfertypes.RetryConfig) xfertypes.Option {
	return func(c *xfertypes.ClientConfig) {
		c.Retry = cfg
	}
}

// WithAbortTimeout bounds the cleanup call made after a failed or cancelled transfer.
func WithAbortTimeout(timeout time.Duration) xfertypes.Option {
	return func(c *xfertypes.ClientConfig) {
		if timeout > 0 {
			c.AbortTimeout = timeout
		}
	}
}

// WithDetectContentType enables sniffing the leading bytes of sources that
// report no content type.
func WithDetectContentType(detect bool) xfertypes.Option {
	return func(c *xfertypes.ClientConfig) {
		c.DetectContentType = detect
	}
}

// WithLogger sets the structured logger. Default discards all output.
func WithLogger(logger *slog.Logger) xfertypes.Option {
	return func(c *xfertypes.ClientConfig) {
		c.Logger = logger
	}
}

// WithJournal records every opened session so Recover can abort sessions
// orphaned by a crash.
func WithJournal(journal xfertypes.Journal) xfertypes.Option {
	return func(c *xfertypes.ClientConfig) {
		c.Journal = journal
	}
}

// WithMetrics registers the transfer collectors on reg.
func WithMetrics(reg prometheus.Registerer) xfertypes.Option {
	return func(c *xfertypes.ClientConfig) {
		c.Registry = reg
	}
}

// WithProgress sets a progress tracker for a single transfer.
func WithProgress(tracker xfertypes.ProgressTracker) xfertypes.TransferOption {
	return func(c *xfertypes.TransferOptionConfig) {
		c.ProgressTracker = tracker
	}
}

// WithTransferPartSize overrides the client part size for a single transfer.
func WithTransferPartSize(partSize int64) xfertypes.TransferOption {
	return func(c *xfertypes.TransferOptionConfig) {
		if partSize > 0 {
			c.PartSize = partSize
		}
	}
}

// WithTransferConcurrency overrides the client concurrency for a single transfer.
func WithTransferConcurrency(concurrency int) xfertypes.TransferOption {
	return func(c *xfertypes.TransferOptionConfig) {
		if concurrency > 0 {
			c.Concurrency = concurrency
		}
	}
}

// WithContentType sets the destination content type, overriding the source's.
func WithContentType(contentType string) xfertypes.TransferOption {
	return func(c *xfertypes.TransferOptionConfig) {
		c.ContentType = contentType
	}
}

// WithMetadata attaches user metadata to the destination object.
func WithMetadata(metadata map[string]string) xfertypes.TransferOption {
	return func(c *xfertypes.TransferOptionConfig) {
		c.Metadata = metadata
	}
}
