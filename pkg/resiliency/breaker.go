package resiliency

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is the breaker state machine position.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// BreakerConfig tunes one circuit breaker.
type BreakerConfig struct {
	// FailureThreshold opens the breaker on the n-th consecutive failure.
	FailureThreshold int
	// ResetTimeout is how long the breaker stays open before admitting
	// probes.
	ResetTimeout time.Duration
	// HalfOpenRequests is the number of probes admitted while half-open;
	// that many consecutive successes close the breaker.
	HalfOpenRequests int
}

// DefaultBreakerConfig mirrors the upstream adapter defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		HalfOpenRequests: 1,
	}
}

// CircuitBreaker is a three-state breaker for one named upstream.
// CLOSED counts consecutive failures; OPEN rejects everything until
// ResetTimeout has elapsed; HALF_OPEN admits a bounded number of probes and
// closes only after all of them succeed.
type CircuitBreaker struct {
	name string
	cfg  BreakerConfig
	now  func() time.Time

	mu               sync.Mutex
	state            State
	failureCount     int
	lastFailure      time.Time
	halfOpenInflight int
	halfOpenSuccess  int
}

// NewCircuitBreaker creates a closed breaker for the named upstream.
func NewCircuitBreaker(name string, cfg BreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultBreakerConfig().ResetTimeout
	}
	if cfg.HalfOpenRequests <= 0 {
		cfg.HalfOpenRequests = DefaultBreakerConfig().HalfOpenRequests
	}
	return &CircuitBreaker{
		name:  name,
		cfg:   cfg,
		now:   time.Now,
		state: StateClosed,
	}
}

// WithClock overrides the breaker's clock. Tests drive state transitions
// with virtual time.
func (cb *CircuitBreaker) WithClock(now func() time.Time) *CircuitBreaker {
	cb.now = now
	return cb
}

// Name returns the upstream name.
func (cb *CircuitBreaker) Name() string { return cb.name }

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset force-closes the breaker and clears all counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.toClosed()
}

// allow decides whether a call may proceed. Callers holding a grant MUST
// report success or failure exactly once.
func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil
	case StateOpen:
		elapsed := cb.now().Sub(cb.lastFailure)
		if elapsed >= cb.cfg.ResetTimeout {
			cb.state = StateHalfOpen
			cb.halfOpenInflight = 1
			cb.halfOpenSuccess = 0
			return nil
		}
		return &CircuitOpenError{Upstream: cb.name, RetryAfter: cb.cfg.ResetTimeout - elapsed}
	default: // HALF_OPEN
		if cb.halfOpenInflight >= cb.cfg.HalfOpenRequests {
			return &CircuitOpenError{Upstream: cb.name, RetryAfter: cb.cfg.ResetTimeout}
		}
		cb.halfOpenInflight++
		return nil
	}
}

func (cb *CircuitBreaker) success() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateHalfOpen:
		cb.halfOpenSuccess++
		if cb.halfOpenSuccess >= cb.cfg.HalfOpenRequests {
			cb.toClosed()
		}
	case StateClosed:
		cb.failureCount = 0
	}
}

func (cb *CircuitBreaker) failure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailure = cb.now()
	switch cb.state {
	case StateHalfOpen:
		cb.toOpen()
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.cfg.FailureThreshold {
			cb.toOpen()
		}
	}
}

func (cb *CircuitBreaker) toOpen() {
	cb.state = StateOpen
	cb.failureCount = 0
	cb.halfOpenInflight = 0
	cb.halfOpenSuccess = 0
}

func (cb *CircuitBreaker) toClosed() {
	cb.state = StateClosed
	cb.failureCount = 0
	cb.halfOpenInflight = 0
	cb.halfOpenSuccess = 0
}

// Execute runs fn under the breaker. Rejections surface as
// *CircuitOpenError. Context cancellation does not count against the
// breaker: the upstream was never proven unhealthy.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.allow(); err != nil {
		return err
	}

	err := fn(ctx)
	if err == nil {
		cb.success()
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		cb.releaseProbe()
		return err
	}
	cb.failure()
	return err
}

// releaseProbe undoes a half-open admission that ended without a verdict.
func (cb *CircuitBreaker) releaseProbe() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateHalfOpen && cb.halfOpenInflight > 0 {
		cb.halfOpenInflight--
	}
}
