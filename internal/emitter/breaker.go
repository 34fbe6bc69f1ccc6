package emitter

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/user/keyword-crawler/internal/monitoring"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

const (
	stateClosed   = "closed"
	stateHalfOpen = "half-open"
	stateOpen     = "open"
)

var stateGauge = map[string]float64{stateClosed: 0, stateHalfOpen: 1, stateOpen: 2}

// CircuitBreaker stops calls to a failing dependency for resetTimeout after
// failureThreshold consecutive failures, then lets one trial call through.
type CircuitBreaker struct {
	mu               sync.Mutex
	failureCount     int
	lastFailure      time.Time
	resetTimeout     time.Duration
	failureThreshold int
	serviceName      string
	state            string
	trialInFlight    bool

	metrics *monitoring.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

func NewCircuitBreaker(serviceName string, failureThreshold int, resetTimeout time.Duration, m *monitoring.Metrics, l *zap.Logger) *CircuitBreaker {
	if l == nil {
		l = zap.NewNop()
	}
	cb := &CircuitBreaker{
		serviceName:      serviceName,
		failureThreshold: max(1, failureThreshold),
		resetTimeout:     resetTimeout,
		state:            stateClosed,
		metrics:          m,
		logger:           l,
		now:              time.Now,
	}
	m.SetBreakerState(serviceName, stateGauge[stateClosed])
	return cb
}

// Execute runs fn unless the circuit is open.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	if cb.state == stateOpen {
		if cb.now().Sub(cb.lastFailure) < cb.resetTimeout {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.setState(stateHalfOpen)
		cb.logger.Info("circuit half-open, allowing test request", zap.String("service", cb.serviceName))
	}
	if cb.state == stateHalfOpen {
		if cb.trialInFlight {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.trialInFlight = true
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.trialInFlight = false

	if err != nil {
		cb.failureCount++
		cb.lastFailure = cb.now()
		if cb.state == stateHalfOpen || cb.failureCount >= cb.failureThreshold {
			cb.setState(stateOpen)
			cb.logger.Warn("circuit opened due to failures",
				zap.String("service", cb.serviceName),
				zap.Int("failures", cb.failureCount),
				zap.Time("until", cb.lastFailure.Add(cb.resetTimeout)))
		}
		return err
	}

	if cb.state == stateHalfOpen {
		cb.logger.Info("circuit closed after successful test", zap.String("service", cb.serviceName))
	}
	cb.failureCount = 0
	cb.setState(stateClosed)
	return nil
}

func (cb *CircuitBreaker) setState(s string) {
	cb.state = s
	cb.metrics.SetBreakerState(cb.serviceName, stateGauge[s])
}

func (cb *CircuitBreaker) State() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
