package emitter

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/keyword-crawler/internal/domain"
	"github.com/user/keyword-crawler/internal/monitoring"
)

type fakePublisher struct {
	mu       sync.Mutex
	payloads [][]byte
	err      error
	block    chan struct{}
}

func (p *fakePublisher) Publish(ctx context.Context, payload []byte) error {
	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.payloads = append(p.payloads, payload)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.payloads)
}

func result(pages int) *domain.CrawlResult {
	return &domain.CrawlResult{
		Results:           []domain.DomainResult{{URL: "https://example.com", Matches: []domain.KeywordMatch{}, Status: domain.StatusCompleted}},
		TotalPagesCrawled: pages,
	}
}

func TestEmitterPublishesJSON(t *testing.T) {
	pub := &fakePublisher{}
	e := NewAsyncEmitter(pub, Options{Buffer: 4})
	e.Start()

	e.Emit(result(3))
	require.NoError(t, e.Close(context.Background()))

	require.Equal(t, 1, pub.count())
	var got domain.CrawlResult
	require.NoError(t, json.Unmarshal(pub.payloads[0], &got))
	assert.Equal(t, 3, got.TotalPagesCrawled)
	assert.Equal(t, "https://example.com", got.Results[0].URL)
}

func TestEmitterDropsWhenBufferFull(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := monitoring.NewMetrics(reg)
	pub := &fakePublisher{}
	// Not started, so nothing drains the buffer.
	e := NewAsyncEmitter(pub, Options{Buffer: 1, Metrics: m})

	done := make(chan struct{})
	go func() {
		e.Emit(result(1))
		e.Emit(result(2))
		e.Emit(result(3))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a full buffer")
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.EmitterEvents.WithLabelValues("dropped")))

	e.Start()
	require.NoError(t, e.Close(context.Background()))
	assert.Equal(t, 1, pub.count())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmitterEvents.WithLabelValues("published")))
}

func TestEmitAfterCloseIsDropped(t *testing.T) {
	pub := &fakePublisher{}
	e := NewAsyncEmitter(pub, Options{})
	e.Start()
	require.NoError(t, e.Close(context.Background()))

	assert.NotPanics(t, func() { e.Emit(result(1)) })
	assert.Zero(t, pub.count())
}

func TestCloseHonoursContext(t *testing.T) {
	pub := &fakePublisher{block: make(chan struct{})}
	defer close(pub.block)
	e := NewAsyncEmitter(pub, Options{Timeout: time.Minute})
	e.Start()
	e.Emit(result(1))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, e.Close(ctx), context.DeadlineExceeded)
}

func TestPublishFailuresOpenBreaker(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := monitoring.NewMetrics(reg)
	pub := &fakePublisher{err: errors.New("redis down")}
	e := NewAsyncEmitter(pub, Options{Buffer: 8, BreakerThreshold: 2, BreakerReset: time.Hour, Metrics: m})
	e.Start()

	for i := range 4 {
		e.Emit(result(i))
	}
	require.NoError(t, e.Close(context.Background()))

	assert.Equal(t, stateOpen, e.breaker.State())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EmitterEvents.WithLabelValues("failed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EmitterEvents.WithLabelValues("rejected")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BreakerState.WithLabelValues("results")))
}

func TestBreakerHalfOpensAfterReset(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("svc", 1, time.Minute, nil, nil)
	cb.now = func() time.Time { return now }

	fail := errors.New("boom")
	assert.ErrorIs(t, cb.Execute(func() error { return fail }), fail)
	assert.Equal(t, stateOpen, cb.State())

	called := false
	assert.ErrorIs(t, cb.Execute(func() error { called = true; return nil }), ErrCircuitOpen)
	assert.False(t, called)

	now = now.Add(2 * time.Minute)
	assert.ErrorIs(t, cb.Execute(func() error { return fail }), fail)
	assert.Equal(t, stateOpen, cb.State(), "a failed trial reopens the circuit")

	now = now.Add(2 * time.Minute)
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, stateClosed, cb.State())
}

func TestBreakerResetsFailureCountOnSuccess(t *testing.T) {
	cb := NewCircuitBreaker("svc", 2, time.Minute, nil, nil)
	fail := errors.New("boom")

	_ = cb.Execute(func() error { return fail })
	require.NoError(t, cb.Execute(func() error { return nil }))
	_ = cb.Execute(func() error { return fail })

	assert.Equal(t, stateClosed, cb.State())
}
