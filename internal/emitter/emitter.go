package emitter

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/user/keyword-crawler/internal/domain"
	"github.com/user/keyword-crawler/internal/monitoring"
)

// Publisher delivers a serialized result downstream.
type Publisher interface {
	Publish(ctx context.Context, payload []byte) error
}

// Options configures an AsyncEmitter. Zero values use defaults.
type Options struct {
	Buffer           int
	Timeout          time.Duration
	BreakerThreshold int
	BreakerReset     time.Duration
	ServiceName      string
	Logger           *zap.Logger
	Metrics          *monitoring.Metrics
}

// AsyncEmitter hands results to a Publisher on a background goroutine.
// Emit never blocks: when the buffer is full the result is dropped.
type AsyncEmitter struct {
	pub     Publisher
	breaker *CircuitBreaker
	timeout time.Duration
	logger  *zap.Logger
	metrics *monitoring.Metrics

	queue  chan *domain.CrawlResult
	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewAsyncEmitter(pub Publisher, opts Options) *AsyncEmitter {
	if opts.Buffer <= 0 {
		opts.Buffer = 64
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.BreakerThreshold <= 0 {
		opts.BreakerThreshold = 5
	}
	if opts.BreakerReset <= 0 {
		opts.BreakerReset = 30 * time.Second
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "results"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &AsyncEmitter{
		pub:     pub,
		breaker: NewCircuitBreaker(opts.ServiceName, opts.BreakerThreshold, opts.BreakerReset, opts.Metrics, opts.Logger),
		timeout: opts.Timeout,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		queue:   make(chan *domain.CrawlResult, opts.Buffer),
		done:    make(chan struct{}),
	}
}

// Start launches the publishing loop.
func (e *AsyncEmitter) Start() {
	go e.loop()
}

// Emit queues result for publishing without blocking.
func (e *AsyncEmitter) Emit(result *domain.CrawlResult) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		e.metrics.IncEmitter("dropped")
		e.logger.Warn("emitter closed, dropping result")
		return
	}
	select {
	case e.queue <- result:
	default:
		e.metrics.IncEmitter("dropped")
		e.logger.Warn("emitter buffer full, dropping result", zap.Int("pages", result.TotalPagesCrawled))
	}
}

// Close stops accepting results and waits until the queued ones are
// published or ctx ends.
func (e *AsyncEmitter) Close(ctx context.Context) error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.queue)
	}
	e.mu.Unlock()

	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *AsyncEmitter) loop() {
	defer close(e.done)
	for result := range e.queue {
		e.publish(result)
	}
}

func (e *AsyncEmitter) publish(result *domain.CrawlResult) {
	payload, err := json.Marshal(result)
	if err != nil {
		e.metrics.IncEmitter("failed")
		e.logger.Error("failed to encode result", zap.Error(err))
		return
	}

	err = e.breaker.Execute(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		defer cancel()
		return e.pub.Publish(ctx, payload)
	})
	switch {
	case err == nil:
		e.metrics.IncEmitter("published")
		e.logger.Debug("result published", zap.Int("bytes", len(payload)))
	case errors.Is(err, ErrCircuitOpen):
		e.metrics.IncEmitter("rejected")
		e.logger.Warn("circuit open, result not published")
	default:
		e.metrics.IncEmitter("failed")
		e.logger.Warn("failed to publish result", zap.Error(err))
	}
}
