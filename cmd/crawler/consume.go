package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/user/keyword-crawler/internal/consumer"
	"github.com/user/keyword-crawler/internal/storage"
)

var errNoRedis = errors.New("REDIS_ADDR is required to consume results")

// NewConsumeCmd creates the consume subcommand.
func NewConsumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "consume",
		Short: "Store crawl results from the result queue",
		Long: `Pops crawl results from RESULTS_QUEUE and stores them in the database
selected by STORAGE_DRIVER (sqlite or postgres).`,
		Args: cobra.NoArgs,
		RunE: runConsume,
	}
}

func runConsume(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd, "stdout")
	if err != nil {
		return err
	}
	defer func() { _ = a.logger.Sync() }()
	cfg := a.cfg

	if cfg.RedisAddr == "" {
		return errNoRedis
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg.StorageDriver, cfg.PostgresURL, cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer store.Close()

	q, client := a.resultQueue()
	defer client.Close()
	if err := q.Ping(ctx); err != nil {
		return err
	}

	a.logger.Info("consuming results",
		zap.String("queue", cfg.ResultsQueue),
		zap.String("storage", cfg.StorageDriver))

	c := consumer.New(q, store,
		consumer.WithLogger(a.logger.Named("consumer")),
		consumer.WithMetrics(a.metrics))
	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
