// Package consumer moves serialized crawl results from the result queue into
// a ResultStore.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/user/keyword-crawler/internal/domain"
	"github.com/user/keyword-crawler/internal/monitoring"
	"github.com/user/keyword-crawler/internal/storage"
	"github.com/user/keyword-crawler/pkg/utils"
)

const (
	defaultPollTimeout = 5 * time.Second
	defaultRetryDelay  = time.Second
)

// Queue yields raw payloads. Pop returns storage.ErrQueueEmpty when nothing
// arrived within timeout.
type Queue interface {
	Pop(ctx context.Context, timeout time.Duration) ([]byte, error)
}

type Consumer struct {
	queue       Queue
	store       storage.ResultStore
	logger      *zap.Logger
	metrics     *monitoring.Metrics
	pollTimeout time.Duration
	retryDelay  time.Duration
	now         func() time.Time
}

type Option func(*Consumer)

func WithLogger(l *zap.Logger) Option { return func(c *Consumer) { c.logger = l } }

func WithMetrics(m *monitoring.Metrics) Option { return func(c *Consumer) { c.metrics = m } }

func WithPollTimeout(d time.Duration) Option { return func(c *Consumer) { c.pollTimeout = d } }

func WithRetryDelay(d time.Duration) Option { return func(c *Consumer) { c.retryDelay = d } }

func New(q Queue, store storage.ResultStore, opts ...Option) *Consumer {
	c := &Consumer{
		queue:       q,
		store:       store,
		logger:      zap.NewNop(),
		pollTimeout: defaultPollTimeout,
		retryDelay:  defaultRetryDelay,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run consumes until ctx is cancelled. Queue errors are logged and retried;
// it only returns ctx's error.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("consumer started")
	for {
		if err := ctx.Err(); err != nil {
			c.logger.Info("consumer stopped")
			return err
		}

		payload, err := c.queue.Pop(ctx, c.pollTimeout)
		switch {
		case errors.Is(err, storage.ErrQueueEmpty):
			continue
		case err != nil:
			if ctx.Err() != nil {
				continue
			}
			c.logger.Warn("failed to pop result", zap.Error(err))
			c.sleep(ctx, c.retryDelay)
			continue
		}

		if _, err := c.Handle(ctx, payload); err != nil {
			c.logger.Error("failed to store result", zap.Error(err))
		}
	}
}

// Handle stores a single payload and returns the record written.
func (c *Consumer) Handle(ctx context.Context, payload []byte) (*storage.Record, error) {
	rec := NewRecord(payload, c.now())
	if !rec.Decoded {
		c.logger.Warn("storing undecodable payload raw", zap.String("id", rec.ID.String()), zap.Int("bytes", len(payload)))
	}

	if err := c.store.Save(ctx, rec); err != nil {
		c.metrics.IncStored("error")
		return nil, err
	}

	status := "ok"
	if !rec.Decoded {
		status = "raw"
	}
	c.metrics.IncStored(status)
	c.logger.Info("result stored",
		zap.String("id", rec.ID.String()),
		zap.Int("pages", rec.TotalPages),
		zap.Int("domains", rec.DomainCount),
		zap.Int("failed_domains", rec.FailedDomains))
	return rec, nil
}

// NewRecord builds the storage record for payload. Summary columns are left
// empty when the payload is not a crawl result.
func NewRecord(payload []byte, at time.Time) *storage.Record {
	rec := &storage.Record{
		ID:          uuid.New(),
		Fingerprint: utils.Fingerprint(payload),
		Payload:     payload,
		CreatedAt:   at.UTC(),
	}

	var result domain.CrawlResult
	if err := json.Unmarshal(payload, &result); err != nil || result.Results == nil {
		return rec
	}

	rec.Decoded = true
	rec.TotalPages = result.TotalPagesCrawled
	rec.DomainCount = len(result.Results)
	rec.FailedDomains = result.FailedDomains()
	rec.Domains = make([]storage.DomainRecord, len(result.Results))
	for i, d := range result.Results {
		rec.Domains[i] = storage.DomainRecord{
			Position:     i,
			URL:          d.URL,
			Status:       d.Status,
			Budget:       d.Budget,
			Error:        d.Error,
			PagesCrawled: d.PagesCrawled,
			MatchCount:   len(d.Matches),
		}
	}
	return rec
}

func (c *Consumer) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
