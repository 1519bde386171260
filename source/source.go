// Package source adapts the six external channels into normalized
// trigger events. Each source does normalization only — relevance
// classification and deduplication are core responsibilities, applied
// uniformly downstream. Polling sources run on their own interval and
// isolate failures; push sources normalize synchronously at receipt.
package source

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/clayforge/trigger/event"
	"github.com/clayforge/trigger/metrics"
)

// SignalSource produces a finite batch of normalized events per call.
// The overall stream is unbounded across polls.
type SignalSource interface {
	Kind() event.SourceKind
	ProduceEvents(ctx context.Context) ([]*event.TriggerEvent, error)
}

// Handler receives each normalized event. It must not block on the
// downstream execution.
type Handler func(ctx context.Context, e *event.TriggerEvent)

// PayloadError describes a push payload the source cannot normalize.
// It is surfaced synchronously to the caller and never crashes the
// engine.
type PayloadError struct {
	Field  string
	Reason string
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("invalid payload field %q: %s", e.Field, e.Reason)
}

// Poller runs one polling source on a fixed interval. A failed poll is
// logged and counted, then the loop continues — one broken integration
// never stalls the others.
type Poller struct {
	Source   SignalSource
	Interval time.Duration
	Handler  Handler
	Sink     metrics.Sink
	Logger   *slog.Logger
}

// Run polls until ctx is cancelled. An immediate first poll runs before
// the ticker starts so a fresh engine doesn't wait a full interval.
func (p *Poller) Run(ctx context.Context) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sink := p.Sink
	if sink == nil {
		sink = metrics.Noop{}
	}

	p.poll(ctx, logger, sink)

	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx, logger, sink)
		}
	}
}

func (p *Poller) poll(ctx context.Context, logger *slog.Logger, sink metrics.Sink) {
	events, err := p.Source.ProduceEvents(ctx)
	if err != nil {
		sink.SourcePollError(string(p.Source.Kind()))
		logger.Warn("source poll failed", "source", p.Source.Kind(), "error", err)
		return
	}
	for _, e := range events {
		if ctx.Err() != nil {
			return
		}
		p.Handler(ctx, e)
	}
}
