package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/user/keyword-crawler/internal/config"
	"github.com/user/keyword-crawler/internal/domain"
	"github.com/user/keyword-crawler/internal/monitoring"
)

// CrawlEngine runs a crawl request to completion.
type CrawlEngine interface {
	Execute(ctx context.Context, req domain.CrawlRequest) (*domain.CrawlResult, error)
}

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	config     *config.Config
	router     http.Handler
	httpServer *http.Server
	engine     CrawlEngine
	redis      Pinger
	metrics    *monitoring.Metrics
	gatherer   http.Handler
	logger     *zap.Logger
}

// NewServer wires the router. redis may be nil when no result queue is
// configured; metricsHandler serves /metrics.
func NewServer(cfg *config.Config, engine CrawlEngine, redis Pinger, m *monitoring.Metrics, metricsHandler http.Handler, l *zap.Logger) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	s := &Server{
		config:   cfg,
		engine:   engine,
		redis:    redis,
		metrics:  m,
		gatherer: metricsHandler,
		logger:   l,
	}
	s.router = s.setupRouter()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%s", s.config.ServerPort),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      s.config.HTTPTimeoutDuration() + 5*time.Second,
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
