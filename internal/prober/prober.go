// Package prober learns an object's size, and optionally its content type,
// before a transfer is planned.
package prober

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/gabriel-vasile/mimetype"

	"github.com/input-output-hk/catalyst-forge-libs/xfer/endpoint"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/errors"
	"github.com/input-output-hk/catalyst-forge-libs/xfer/internal/pool"
)

// Info describes a probed object.
type Info struct {
	Size        int64
	ContentType string
}

// Prober issues the metadata queries for one source endpoint.
type Prober struct {
	name   string
	src    endpoint.Source
	detect bool
	logger *slog.Logger
}

// New creates a prober for the source registered under name. When detect is
// set and the source reports no content type, the leading bytes of the object
// are sniffed.
func New(name string, src endpoint.Source, detect bool, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Prober{name: name, src: src, detect: detect, logger: logger}
}

// Probe returns the object's total byte length. It has no side effects on the source.
func (p *Prober) Probe(ctx context.Context, object string) (Info, error) {
	meta, err := p.src.Head(ctx, object)
	if err != nil {
		return Info{}, errors.Wrap(errors.ErrSourceUnavailable,
			errors.NewObjectError("probe", p.name, object, err))
	}
	if meta.Size < 0 {
		return Info{}, errors.NewObjectError("probe", p.name, object, errors.ErrSourceUnavailable).
			WithMessage(fmt.Sprintf("source reported negative size %d", meta.Size))
	}

	info := Info{Size: meta.Size, ContentType: meta.ContentType}
	if info.ContentType == "" && p.detect && info.Size > 0 {
		ct, err := p.sniff(ctx, object, info.Size)
		if err != nil {
			p.logger.Warn("content type detection failed",
				"source", p.name,
				"object", object,
				"error", err)
		} else {
			info.ContentType = ct
		}
	}

	return info, nil
}

func (p *Prober) sniff(ctx context.Context, object string, size int64) (string, error) {
	buf := pool.GetSniffBuffer()
	defer pool.PutSniffBuffer(buf)

	n := int64(len(buf))
	if size < n {
		n = size
	}

	body, err := p.src.GetRange(ctx, object, 0, n-1)
	if err != nil {
		return "", err
	}
	defer func() { _ = body.Close() }()

	read, err := io.ReadFull(body, buf[:n])
	if err != nil {
		return "", err
	}
	return mimetype.Detect(buf[:read]).String(), nil
}
