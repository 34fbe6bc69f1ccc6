package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/user/keyword-crawler/internal/config"
	"github.com/user/keyword-crawler/internal/crawler"
	"github.com/user/keyword-crawler/internal/emitter"
	"github.com/user/keyword-crawler/internal/extractor"
	"github.com/user/keyword-crawler/internal/fetcher"
	"github.com/user/keyword-crawler/internal/monitoring"
	"github.com/user/keyword-crawler/internal/proxy"
	"github.com/user/keyword-crawler/internal/storage"
	"github.com/user/keyword-crawler/pkg/logger"
)

// app holds what every command needs.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *monitoring.Metrics
}

func newApp(cmd *cobra.Command, logOutput string) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("could not load config: %w", err)
	}

	level := cfg.LogLevel
	if l, _ := cmd.Flags().GetString("log-level"); l != "" {
		level = l
	}
	log, err := logger.New(level, logOutput)
	if err != nil {
		return nil, fmt.Errorf("could not build logger: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &app{cfg: cfg, logger: log, registry: reg, metrics: monitoring.NewMetrics(reg)}, nil
}

// newEngine wires fetcher, proxies and optional features from config. em may
// be nil.
func (a *app) newEngine(em crawler.Emitter) (*crawler.Engine, error) {
	pm, err := proxy.NewManager(a.cfg.ProxyList(), a.cfg.UserAgentList())
	if err != nil {
		return nil, fmt.Errorf("invalid proxy configuration: %w", err)
	}
	f := fetcher.New(fetcher.Options{
		MaxRedirects: a.cfg.MaxRedirects,
		MaxBodyBytes: a.cfg.MaxBodyBytes,
		Proxies:      pm,
		Logger:       a.logger.Named("fetcher"),
	})

	opts := []crawler.Option{
		crawler.WithLogger(a.logger.Named("crawler")),
		crawler.WithMetrics(a.metrics),
		crawler.WithMaxDomainWorkers(a.cfg.MaxDomainWorkers),
		crawler.WithPageWorkers(a.cfg.PageWorkers),
		crawler.WithRequestsPerSecond(a.cfg.RequestsPerSecond),
		crawler.WithRequestTimeout(a.cfg.RequestTimeoutDuration()),
	}
	if a.cfg.DetectLanguage {
		opts = append(opts, crawler.WithLanguageDetector(extractor.NewLinguaDetector()))
	}
	if a.cfg.RespectRobots {
		opts = append(opts, crawler.WithRobots(""))
	}
	if em != nil {
		opts = append(opts, crawler.WithEmitter(em))
	}
	return crawler.NewEngine(f, opts...), nil
}

// resultQueue connects to the configured Redis list. The caller closes the
// returned client.
func (a *app) resultQueue() (*storage.RedisQueue, *redis.Client) {
	client := storage.NewRedisClient(a.cfg.RedisAddr, a.cfg.RedisPassword, a.cfg.RedisDB)
	return storage.NewRedisQueue(client, a.cfg.ResultsQueue), client
}

func (a *app) newEmitter(q emitter.Publisher) *emitter.AsyncEmitter {
	return emitter.NewAsyncEmitter(q, emitter.Options{
		Buffer:           a.cfg.EmitBuffer,
		Timeout:          a.cfg.EmitTimeoutDuration(),
		BreakerThreshold: a.cfg.BreakerThreshold,
		BreakerReset:     a.cfg.BreakerResetDuration(),
		ServiceName:      "redis",
		Logger:           a.logger.Named("emitter"),
		Metrics:          a.metrics,
	})
}
