package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/user/keyword-crawler/internal/api"
	"github.com/user/keyword-crawler/internal/crawler"
	"github.com/user/keyword-crawler/internal/emitter"
)

const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serves POST /api/crawl, GET /api/health and GET /metrics.

When REDIS_ADDR is set every crawl result is also pushed onto RESULTS_QUEUE
for the consume command to store.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd, "stdout")
	if err != nil {
		return err
	}
	defer func() { _ = a.logger.Sync() }()
	cfg := a.cfg

	var (
		em     crawler.Emitter
		async  *emitter.AsyncEmitter
		pinger api.Pinger
	)
	if cfg.RedisAddr != "" {
		q, client := a.resultQueue()
		defer client.Close()
		async = a.newEmitter(q)
		async.Start()
		em, pinger = async, q
		a.logger.Info("publishing results to redis",
			zap.String("addr", cfg.RedisAddr),
			zap.String("queue", cfg.ResultsQueue))
	}

	engine, err := a.newEngine(em)
	if err != nil {
		return err
	}
	server := api.NewServer(cfg, engine, pinger, a.metrics,
		promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}), a.logger.Named("api"))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	a.logger.Info("server started", zap.String("port", cfg.ServerPort))

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("could not start server: %w", err)
	}

	a.logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server forced to shutdown", zap.Error(err))
	}
	if async != nil {
		if err := async.Close(shutdownCtx); err != nil {
			a.logger.Warn("results still queued at shutdown were dropped", zap.Error(err))
		}
	}

	a.logger.Info("server exiting")
	return nil
}
