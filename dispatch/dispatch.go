// Package dispatch is the central coordinator: it consumes normalized
// trigger events, applies relevance classification and deduplication,
// creates execution records, and runs the workflow executor under a
// bounded concurrency gate. Callers — polling loops and webhook
// handlers — never block on an execution.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/clayforge/trigger/classify"
	"github.com/clayforge/trigger/dedup"
	"github.com/clayforge/trigger/event"
	"github.com/clayforge/trigger/metrics"
	"github.com/clayforge/trigger/registry"
)

// Executor performs the actual multi-step content workflow. It is an
// external collaborator: the engine only sees the returned summary or
// error. Implementations must honor ctx cancellation.
type Executor interface {
	Execute(ctx context.Context, req *event.WorkflowRequest) (summary string, err error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, req *event.WorkflowRequest) (string, error)

func (f ExecutorFunc) Execute(ctx context.Context, req *event.WorkflowRequest) (string, error) {
	return f(ctx, req)
}

// Config holds dispatcher tunables.
type Config struct {
	// Concurrency is the maximum number of simultaneously executing
	// workflows. Events admitted beyond it wait in Pending; the
	// semaphore wakes waiters in FIFO order.
	Concurrency int64 `json:"concurrency" yaml:"concurrency"`
	// ExecutionTimeout bounds a single executor invocation. On expiry
	// the context is cancelled and the record fails with a timeout error.
	ExecutionTimeout time.Duration `json:"executionTimeout" yaml:"executionTimeout"`
	// DefaultPlatforms is applied when classification finds no platform
	// names in the event text.
	DefaultPlatforms []string `json:"defaultPlatforms" yaml:"defaultPlatforms"`
}

// DefaultConfig returns dispatcher defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:      10,
		ExecutionTimeout: 5 * time.Minute,
		DefaultPlatforms: []string{"tiktok", "linkedin"},
	}
}

// Dispatcher implements the handle pipeline of the engine core.
type Dispatcher struct {
	cfg        Config
	classifier classify.Classifier
	seen       dedup.Store
	registry   *registry.Registry
	executor   Executor
	sink       metrics.Sink
	logger     *slog.Logger

	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

// New creates a dispatcher. sink and logger may be nil.
func New(cfg Config, classifier classify.Classifier, seen dedup.Store, reg *registry.Registry, executor Executor, sink metrics.Sink, logger *slog.Logger) *Dispatcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConfig().Concurrency
	}
	if cfg.ExecutionTimeout <= 0 {
		cfg.ExecutionTimeout = DefaultConfig().ExecutionTimeout
	}
	if len(cfg.DefaultPlatforms) == 0 {
		cfg.DefaultPlatforms = DefaultConfig().DefaultPlatforms
	}
	if sink == nil {
		sink = metrics.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		cfg:        cfg,
		classifier: classifier,
		seen:       seen,
		registry:   reg,
		executor:   executor,
		sink:       sink,
		logger:     logger,
		sem:        semaphore.NewWeighted(cfg.Concurrency),
	}
}

// Handle runs one event through classification, dedup, and dispatch.
// It returns the execution ID, or "" when the event was dropped as not
// actionable or as a duplicate. Drops are not errors; an error here
// means the event could not be admitted at all (dedup store failure).
func (d *Dispatcher) Handle(ctx context.Context, e *event.TriggerEvent) (string, error) {
	d.sink.EventReceived(string(e.Source))

	cls := d.classifier.Classify(e)
	if !cls.Actionable {
		d.sink.EventDropped(string(e.Source), metrics.DropNotActionable)
		d.logger.Debug("event not actionable", "event_id", e.ID, "source", e.Source)
		return "", nil
	}

	if e.Signature == "" {
		e.Signature = dedup.Signature(e)
	}
	// Remember before queueing: a re-delivery that arrives while the
	// first execution waits for a slot must still dedup.
	dup, err := d.seen.Remember(ctx, e.Signature)
	if err != nil {
		return "", fmt.Errorf("dedup check: %w", err)
	}
	if dup {
		d.sink.EventDropped(string(e.Source), metrics.DropDuplicate)
		d.logger.Debug("duplicate event suppressed",
			"event_id", e.ID, "source", e.Source, "signature", e.Signature)
		return "", nil
	}

	req := d.buildRequest(e, cls)
	rec := d.registry.Create(e, req.WorkflowType)
	d.sink.ExecutionDispatched(string(e.Source), req.WorkflowType)
	d.logger.Info("execution dispatched",
		"execution_id", rec.ExecutionID, "event_id", e.ID,
		"source", e.Source, "workflow_type", req.WorkflowType)

	d.wg.Add(1)
	go d.run(rec.ExecutionID, req)

	return rec.ExecutionID, nil
}

// run executes one workflow under the concurrency gate. It uses a
// background-derived context so a webhook caller disconnecting does not
// cancel the execution; only Drain and the timeout do. The semaphore
// wakes waiters in arrival order at Acquire, which can differ from
// dispatch order by goroutine scheduling jitter — queue order is
// first-come-first-served, not a strict ordering guarantee.
func (d *Dispatcher) run(executionID string, req *event.WorkflowRequest) {
	defer d.wg.Done()

	if err := d.sem.Acquire(context.Background(), 1); err != nil {
		// Only happens if the context above is cancelled; record the
		// abandonment rather than leaving the record Pending forever.
		_ = d.registry.Transition(executionID, registry.StatusExecuting, "")
		_ = d.registry.Transition(executionID, registry.StatusFailed, "concurrency slot unavailable: "+err.Error())
		return
	}
	defer d.sem.Release(1)

	if err := d.registry.Transition(executionID, registry.StatusExecuting, ""); err != nil {
		d.logger.Error("cannot start execution", "execution_id", executionID, "error", err)
		return
	}
	d.sink.ExecutionStarted()
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.ExecutionTimeout)
	defer cancel()

	summary, execErr := d.executor.Execute(ctx, req)
	if execErr == nil && ctx.Err() != nil {
		execErr = ctx.Err()
	}

	elapsed := time.Since(start)
	if execErr != nil {
		detail := execErr.Error()
		if ctx.Err() == context.DeadlineExceeded {
			detail = fmt.Sprintf("timed out after %s: %v", d.cfg.ExecutionTimeout, execErr)
		}
		_ = d.registry.Transition(executionID, registry.StatusFailed, detail)
		d.sink.ExecutionFinished(string(registry.StatusFailed), elapsed)
		d.logger.Warn("execution failed",
			"execution_id", executionID, "elapsed", elapsed, "error", execErr)
		return
	}

	_ = d.registry.Transition(executionID, registry.StatusCompleted, summary)
	d.sink.ExecutionFinished(string(registry.StatusCompleted), elapsed)
	d.logger.Info("execution completed", "execution_id", executionID, "elapsed", elapsed)
}

// Drain blocks until every in-flight and queued execution has reached a
// terminal state, or ctx expires.
func (d *Dispatcher) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain: %w", ctx.Err())
	}
}

// buildRequest assembles the workflow request from the event, its
// classification, and source-specific defaults.
func (d *Dispatcher) buildRequest(e *event.TriggerEvent, cls classify.Classification) *event.WorkflowRequest {
	platforms := cls.Platforms
	if len(platforms) == 0 {
		platforms = d.cfg.DefaultPlatforms
	}

	workflowType := event.WorkflowContentFactory
	if e.Source == event.SourceClock {
		if wt := e.Field("workflow_type"); wt != "" {
			workflowType = wt
		}
	}

	cfg := map[string]any{
		"platforms":        platforms,
		"content_types":    contentTypes(e.Source),
		"automation_level": automationLevel(e.Source),
		"trigger_source":   string(e.Source),
		"trigger_type":     triggerType(e),
		"trigger_event_id": e.ID,
		"occurred_at":      e.OccurredAt.UTC().Format(time.RFC3339),
	}
	if len(cls.MatchedTerms) > 0 {
		cfg["matched_terms"] = cls.MatchedTerms
	}
	// Source metadata passes through untouched for the executor.
	for k, v := range e.Fields {
		if _, taken := cfg[k]; !taken {
			cfg[k] = v
		}
	}
	// The free-text payload rides along under the channel's key so the
	// builder sees what was actually asked for.
	if text := strings.TrimSpace(e.RawText); text != "" {
		cfg[requestTextKey(e.Source)] = text
	}

	return &event.WorkflowRequest{WorkflowType: workflowType, Configuration: cfg}
}

// requestTextKey names the configuration key carrying the event's free
// text, per channel.
func requestTextKey(source event.SourceKind) string {
	switch source {
	case event.SourceTelephony:
		return "voicemail_content"
	case event.SourceSocial:
		return "mention_content"
	case event.SourceCalendar:
		return "event_description"
	case event.SourceWebForm:
		return "request_message"
	default:
		return "request_details"
	}
}

// contentTypes mirrors the per-channel content defaults of the source
// system: mail and clock triggers produce long-form plus social posts,
// everything else social posts only.
func contentTypes(source event.SourceKind) []string {
	switch source {
	case event.SourceClock, event.SourceMailbox:
		return []string{"blog_posts", "social_media"}
	default:
		return []string{"social_media"}
	}
}

func automationLevel(source event.SourceKind) string {
	switch source {
	case event.SourceClock, event.SourceMailbox:
		return "high"
	default:
		return "medium"
	}
}

// triggerType names the specific occurrence within the channel, e.g.
// "content_voicemail" vs. "potential_content_call" for telephony.
func triggerType(e *event.TriggerEvent) string {
	if tt := e.Field("trigger_type"); tt != "" {
		return tt
	}
	switch e.Source {
	case event.SourceClock:
		return "scheduled"
	case event.SourceMailbox:
		return "content_request"
	case event.SourceTelephony:
		if strings.TrimSpace(e.RawText) != "" {
			return "content_voicemail"
		}
		return "potential_content_call"
	case event.SourceSocial:
		return "content_mention"
	case event.SourceCalendar:
		return "content_event"
	case event.SourceWebForm:
		return "contact_form"
	}
	return "unknown"
}
