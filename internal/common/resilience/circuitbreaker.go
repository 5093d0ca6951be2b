// Package resilience provides a circuit breaker for the external lookup
// clients, so a failing geo or reputation endpoint degrades indicators to
// not-applicable instead of being hammered for the rest of a run.
package resilience

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// CircuitState represents the state of a circuit breaker
type CircuitState string

const (
	StateClosed   CircuitState = "closed"
	StateOpen     CircuitState = "open"
	StateHalfOpen CircuitState = "half-open"
)

var (
	cbStateGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "entraguard",
			Name:      "circuit_breaker_state",
			Help:      "Current state of circuit breaker (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	cbRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "entraguard",
			Name:      "circuit_breaker_requests_total",
			Help:      "Total requests through circuit breaker",
		},
		[]string{"name", "result"},
	)
)

func stateToFloat(s CircuitState) float64 {
	switch s {
	case StateHalfOpen:
		return 1
	case StateOpen:
		return 2
	default:
		return 0
	}
}

// Config configures a CircuitBreaker
type Config struct {
	Name         string
	Threshold    int           // failures before opening
	ResetTimeout time.Duration // how long to wait before half-open
	Logger       *zap.Logger
}

// CircuitBreaker trips after consecutive failures and rejects calls until
// the reset timeout elapses, then probes with a single half-open request.
type CircuitBreaker struct {
	mu           sync.Mutex
	name         string
	failures     int
	threshold    int
	resetTimeout time.Duration
	lastFailure  time.Time
	state        CircuitState
	logger       *zap.Logger
}

// New creates a closed CircuitBreaker
func New(cfg Config) *CircuitBreaker {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	cb := &CircuitBreaker{
		name:         cfg.Name,
		threshold:    cfg.Threshold,
		resetTimeout: cfg.ResetTimeout,
		state:        StateClosed,
		logger:       cfg.Logger,
	}
	cbStateGauge.WithLabelValues(cfg.Name).Set(0)
	return cb
}

// Execute runs fn through the breaker. An open circuit fails fast until
// the reset timeout has elapsed.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()

	if cb.state == StateOpen {
		if time.Since(cb.lastFailure) > cb.resetTimeout {
			cb.transition(StateHalfOpen)
		} else {
			cb.mu.Unlock()
			cbRequestsTotal.WithLabelValues(cb.name, "rejected").Inc()
			return fmt.Errorf("circuit breaker %s is open; requests blocked until %s",
				cb.name, cb.lastFailure.Add(cb.resetTimeout).Format(time.RFC3339))
		}
	}

	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failures++
		cb.lastFailure = time.Now()

		if cb.state == StateHalfOpen || cb.failures >= cb.threshold {
			cb.transition(StateOpen)
			cb.logger.Warn("Circuit breaker opened",
				zap.String("name", cb.name),
				zap.Int("failures", cb.failures),
				zap.Duration("reset_timeout", cb.resetTimeout))
		}
		cbRequestsTotal.WithLabelValues(cb.name, "failure").Inc()
		return err
	}

	if cb.state == StateHalfOpen {
		cb.logger.Info("Circuit breaker recovered",
			zap.String("name", cb.name))
	}
	cb.failures = 0
	cb.transition(StateClosed)
	cbRequestsTotal.WithLabelValues(cb.name, "success").Inc()
	return nil
}

// transition changes state and records metrics (lock must be held)
func (cb *CircuitBreaker) transition(to CircuitState) {
	if cb.state == to {
		return
	}
	cb.state = to
	cbStateGauge.WithLabelValues(cb.name).Set(stateToFloat(to))
}

// State returns the current breaker state
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset returns the breaker to its initial closed state
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.transition(StateClosed)
	cb.lastFailure = time.Time{}
}
