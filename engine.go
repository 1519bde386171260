// Package trigger wires the signal sources, the relevance classifier,
// the deduplicator, the schedule registry, and the dispatcher into one
// engine that converts real-world signals into workflow executions.
package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/clayforge/trigger/api"
	"github.com/clayforge/trigger/classify"
	"github.com/clayforge/trigger/config"
	"github.com/clayforge/trigger/dedup"
	"github.com/clayforge/trigger/dispatch"
	"github.com/clayforge/trigger/event"
	"github.com/clayforge/trigger/metrics"
	"github.com/clayforge/trigger/registry"
	"github.com/clayforge/trigger/schedule"
	"github.com/clayforge/trigger/source"
	"github.com/clayforge/trigger/store"
)

// Options carries the external collaborators the engine cannot build
// itself.
type Options struct {
	// Executor performs workflows. Required.
	Executor dispatch.Executor
	// MailClient enables the mailbox polling source when set.
	MailClient source.MailClient
	// FeedClient enables the social feed polling source when set.
	FeedClient source.FeedClient
	// Dedup overrides the deduplication store (e.g. the Redis store for
	// multi-process deployments). Nil means in-memory.
	Dedup dedup.Store
	// Sink receives metrics. Nil means no-op.
	Sink metrics.Sink
	// Logger for all components. Nil means slog.Default().
	Logger *slog.Logger
}

// Engine is the trigger and orchestration engine.
type Engine struct {
	cfg    config.Config
	logger *slog.Logger
	sink   metrics.Sink

	dispatcher *Dispatcher
	executions *registry.Registry
	schedules  *schedule.Registry
	store      *store.SQLiteStore
	handler    *api.Handler

	pollers []*source.Poller

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Dispatcher is re-exported so embedders can hand events straight to the
// pipeline (e.g. from an integration the engine does not ship).
type Dispatcher = dispatch.Dispatcher

// New builds an engine from configuration and collaborators.
func New(cfg config.Config, opts Options) (*Engine, error) {
	if opts.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sink := opts.Sink
	if sink == nil {
		sink = metrics.Noop{}
	}

	db, err := store.Open(cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	executions := registry.New(func(rec *registry.Record) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.RecordExecution(ctx, rec); err != nil {
			logger.Warn("mirror execution record failed",
				"execution_id", rec.ExecutionID, "error", err)
		}
	})

	seen := opts.Dedup
	if seen == nil {
		seen = dedup.NewMemoryStore(cfg.DedupWindow.Std())
	}

	classifier := classify.NewKeywordClassifier(cfg.RelevanceTerms, cfg.Platforms)

	dispatcher := dispatch.New(dispatch.Config{
		Concurrency:      cfg.Concurrency,
		ExecutionTimeout: cfg.ExecutionTimeout.Std(),
		DefaultPlatforms: cfg.DefaultPlatforms,
	}, classifier, seen, executions, opts.Executor, sink, logger)

	handle := func(ctx context.Context, e *event.TriggerEvent) {
		if _, err := dispatcher.Handle(ctx, e); err != nil {
			logger.Error("dispatch failed", "event_id", e.ID, "source", e.Source, "error", err)
		}
	}

	schedules := schedule.NewRegistry(handle, db, cfg.TickInterval.Std(), logger)
	schedules.Sink = sink

	eng := &Engine{
		cfg:        cfg,
		logger:     logger,
		sink:       sink,
		dispatcher: dispatcher,
		executions: executions,
		schedules:  schedules,
		store:      db,
	}

	if opts.MailClient != nil {
		eng.pollers = append(eng.pollers, &source.Poller{
			Source:   source.NewMailbox(opts.MailClient),
			Interval: cfg.MailboxInterval.Std(),
			Handler:  handle,
			Sink:     sink,
			Logger:   logger,
		})
	}
	if opts.FeedClient != nil {
		eng.pollers = append(eng.pollers, &source.Poller{
			Source:   source.NewSocialFeed(opts.FeedClient),
			Interval: cfg.SocialInterval.Std(),
			Handler:  handle,
			Sink:     sink,
			Logger:   logger,
		})
	}

	eng.handler = api.NewHandler(
		dispatcher, schedules, executions,
		source.NewTelephony(cfg.CallDurationThreshold.Std()),
		source.NewCalendar(),
		source.NewWebForm(),
		logger,
	)

	return eng, nil
}

// Dispatcher returns the event pipeline entry point.
func (e *Engine) Dispatcher() *Dispatcher { return e.dispatcher }

// Executions returns the execution registry for queries.
func (e *Engine) Executions() *registry.Registry { return e.executions }

// Schedules returns the schedule registry.
func (e *Engine) Schedules() *schedule.Registry { return e.schedules }

// RegisterRoutes registers the engine's HTTP endpoints on mux.
func (e *Engine) RegisterRoutes(mux *http.ServeMux) {
	e.handler.RegisterRoutes(mux)
}

// Start loads persisted schedule jobs, seeds configured ones, and
// launches the polling loops, the schedule tick loop, and the eviction
// loop. It returns once everything is running.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.schedules.Load(ctx); err != nil {
		return err
	}
	e.seedSchedules(ctx)

	runCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	for _, p := range e.pollers {
		p := p
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.logger.Info("poller started", "source", p.Source.Kind(), "interval", p.Interval)
			p.Run(runCtx)
		}()
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.schedules.Run(runCtx)
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.evictLoop(runCtx)
	}()

	e.logger.Info("engine started",
		"pollers", len(e.pollers),
		"concurrency", e.cfg.Concurrency,
		"tick_interval", e.cfg.TickInterval.Std())
	return nil
}

// Stop cancels all loops, drains in-flight executions, and closes the
// store. The ctx bounds how long the drain may take.
func (e *Engine) Stop(ctx context.Context) error {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()

	drainErr := e.dispatcher.Drain(ctx)
	if closeErr := e.store.Close(); closeErr != nil && drainErr == nil {
		drainErr = closeErr
	}
	e.logger.Info("engine stopped")
	return drainErr
}

// seedSchedules creates configured jobs that don't exist yet, matched by
// name so restarts don't duplicate them.
func (e *Engine) seedSchedules(ctx context.Context) {
	existing := make(map[string]bool)
	for _, job := range e.schedules.List() {
		existing[job.Name] = true
	}
	for _, seed := range e.cfg.Schedules {
		if existing[seed.Name] {
			continue
		}
		job, err := e.schedules.Add(ctx, seed.Name, seed.Recurrence, seed.WorkflowType, seed.Template)
		if err != nil {
			e.logger.Warn("seed schedule rejected", "name", seed.Name, "error", err)
			continue
		}
		e.logger.Info("seed schedule created",
			"job_id", job.ID, "name", job.Name, "recurrence", job.Recurrence.String())
	}
}

// evictLoop bounds registry and history growth to the retention window.
func (e *Engine) evictLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-e.cfg.Retention.Std())
			if n := e.executions.EvictBefore(cutoff); n > 0 {
				e.logger.Info("evicted execution records", "count", n)
			}
			if n, err := e.store.PruneExecutions(ctx, cutoff); err != nil {
				e.logger.Warn("prune execution history failed", "error", err)
			} else if n > 0 {
				e.logger.Info("pruned execution history", "count", n)
			}
		}
	}
}
