// Command triggerd runs the trigger and orchestration engine: it
// listens across the configured signal channels and dispatches workflow
// executions to the workflow builder.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	trigger "github.com/clayforge/trigger"
	"github.com/clayforge/trigger/config"
	"github.com/clayforge/trigger/dedup"
	"github.com/clayforge/trigger/dispatch"
	"github.com/clayforge/trigger/metrics"
	"github.com/clayforge/trigger/source"
)

func main() {
	if err := run(); err != nil {
		slog.Error("triggerd exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "triggerd.yaml", "path to YAML configuration")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	if cfg.WorkflowURL == "" {
		return fmt.Errorf("workflowURL is required")
	}

	reg := prometheus.NewRegistry()
	sink := metrics.NewPrometheusSink(reg)

	opts := trigger.Options{
		Executor: dispatch.NewHTTPExecutor(cfg.WorkflowURL, nil),
		Sink:     sink,
		Logger:   logger,
	}
	if cfg.MailboxBridgeURL != "" {
		opts.MailClient = source.NewBridgeMailClient(cfg.MailboxBridgeURL, nil)
	}
	if cfg.SocialBridgeURL != "" {
		opts.FeedClient = source.NewBridgeFeedClient(cfg.SocialBridgeURL, nil)
	}
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		opts.Dedup = dedup.NewRedisStore(client, cfg.DedupWindow.Std())
		logger.Info("using redis dedup store", "addr", cfg.RedisAddr)
	}

	eng, err := trigger.New(cfg, opts)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	eng.RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := eng.Start(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	return eng.Stop(shutdownCtx)
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
