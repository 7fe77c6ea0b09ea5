/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package logcapture tees structured log records into an in-memory buffer so
// the log of a run can be attached to its telemetry.
package logcapture

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// DefaultLimit is the number of bytes a Buffer retains by default.
const DefaultLimit = 1 << 20

// Buffer retains the most recent bytes written to it, up to a limit.
type Buffer struct {
	mu      sync.Mutex
	data    []byte
	limit   int
	dropped int
}

// NewBuffer creates a Buffer holding at most limit bytes.
func NewBuffer(limit int) *Buffer {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Buffer{limit: limit}
}

func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append(b.data, p...)
	if over := len(b.data) - b.limit; over > 0 {
		b.dropped += over
		b.data = append(b.data[:0], b.data[over:]...)
	}
	return len(p), nil
}

// String returns the retained log.
func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.data)
}

// Dropped returns the number of bytes discarded to stay within the limit.
func (b *Buffer) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

type handler struct {
	inner   slog.Handler
	capture slog.Handler
}

// NewHandler returns a handler that passes records to inner and also writes
// every record at or above level to buf in text form.
func NewHandler(inner slog.Handler, buf *Buffer, level slog.Leveler) slog.Handler {
	return &handler{
		inner:   inner,
		capture: slog.NewTextHandler(buf, &slog.HandlerOptions{Level: level}),
	}
}

func (h *handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level) || h.capture.Enabled(ctx, level)
}

func (h *handler) Handle(ctx context.Context, r slog.Record) error {
	var errs *multierror.Error
	if h.inner.Enabled(ctx, r.Level) {
		errs = multierror.Append(errs, h.inner.Handle(ctx, r.Clone()))
	}
	if h.capture.Enabled(ctx, r.Level) {
		errs = multierror.Append(errs, h.capture.Handle(ctx, r))
	}
	return errs.ErrorOrNil()
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &handler{inner: h.inner.WithAttrs(attrs), capture: h.capture.WithAttrs(attrs)}
}

func (h *handler) WithGroup(name string) slog.Handler {
	return &handler{inner: h.inner.WithGroup(name), capture: h.capture.WithGroup(name)}
}
