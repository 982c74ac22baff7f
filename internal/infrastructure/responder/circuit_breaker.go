package responder

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"concierge-server/internal/infrastructure/metrics"
)

// CircuitState represents the state of the circuit breaker.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig defines circuit breaker behavior.
type CircuitBreakerConfig struct {
	FailureThreshold int           // consecutive failures before opening
	Cooldown         time.Duration // how long to stay open before probing
}

// DefaultCircuitBreakerConfig returns the responder defaults: open after 3
// consecutive failures, probe again after 60 seconds.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 3,
		Cooldown:         60 * time.Second,
	}
}

// CircuitBreaker fails calls fast while the upstream responder is unhealthy.
// A single probe is allowed through in the half-open state; its outcome
// decides whether the breaker closes or re-opens.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig
	log zerolog.Logger
	mu  sync.Mutex

	state           CircuitState
	failures        int
	lastFailureTime time.Time
	probing         bool
}

// NewCircuitBreaker creates a closed circuit breaker. Zero config fields
// take the defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig, log zerolog.Logger) *CircuitBreaker {
	def := DefaultCircuitBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	return &CircuitBreaker{
		cfg:   cfg,
		log:   log.With().Str("component", "circuit-breaker").Logger(),
		state: StateClosed,
	}
}

// Allow reports whether a call may proceed. Callers that receive false must
// not touch the upstream and should degrade to fallback output.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(cb.lastFailureTime) > cb.cfg.Cooldown {
			cb.log.Info().Msg("circuit breaker transitioning to half-open")
			cb.state = StateHalfOpen
			cb.probing = true
			return true
		}
		return false
	case StateHalfOpen:
		if !cb.probing {
			cb.probing = true
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess resets the breaker after a successful upstream call.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateClosed {
		cb.log.Info().Str("from", cb.state.String()).Msg("circuit breaker closing")
	}
	cb.state = StateClosed
	cb.failures = 0
	cb.probing = false
	metrics.CircuitBreakerState.Set(0)
}

// RecordFailure counts a failed upstream call and opens the breaker at the
// threshold. A failed half-open probe re-opens immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailureTime = time.Now()

	if cb.state == StateHalfOpen {
		cb.log.Warn().Msg("circuit breaker re-opening after failed probe")
		cb.state = StateOpen
		cb.probing = false
		metrics.CircuitBreakerState.Set(1)
		return
	}

	if cb.state == StateClosed && cb.failures >= cb.cfg.FailureThreshold {
		cb.log.Warn().Int("failures", cb.failures).Msg("circuit breaker opening")
		cb.state = StateOpen
		metrics.CircuitBreakerState.Set(1)
	}
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
