// Package infra provides resilience primitives for registry calls: a circuit
// breaker that fails fast while the registry is down, and coalescing of
// identical in-flight requests.
package infra

import (
	"context"
	"sync"
	"time"
)

// Coalescer merges identical in-flight calls. When several goroutines ask for
// the same key at once, fn runs once and every caller receives its result.
// Nothing is retained after the call completes.
type Coalescer[T any] struct {
	mu       sync.Mutex
	inflight map[string]*call[T]
}

type call[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// NewCoalescer creates an empty Coalescer.
func NewCoalescer[T any]() *Coalescer[T] {
	return &Coalescer[T]{inflight: make(map[string]*call[T])}
}

// Do runs fn unless a call with the same key is already running, in which case
// it waits for that call. shared reports whether the result came from another caller.
//
// fn runs detached from every caller: a caller whose ctx ends gets ctx.Err()
// while the others keep waiting for the result. fn must bound its own runtime.
func (c *Coalescer[T]) Do(ctx context.Context, key string, fn func() (T, error)) (val T, shared bool, err error) {
	c.mu.Lock()
	cl, ok := c.inflight[key]
	if !ok {
		cl = &call[T]{done: make(chan struct{})}
		c.inflight[key] = cl
		go c.run(key, cl, fn)
	}
	c.mu.Unlock()

	select {
	case <-cl.done:
		return cl.val, ok, cl.err
	case <-ctx.Done():
		var zero T
		return zero, false, ctx.Err()
	}
}

func (c *Coalescer[T]) run(key string, cl *call[T], fn func() (T, error)) {
	cl.val, cl.err = fn()

	c.mu.Lock()
	delete(c.inflight, key)
	c.mu.Unlock()

	close(cl.done)
}

// InFlight returns the number of distinct keys currently running.
func (c *Coalescer[T]) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}

// CircuitState represents the current state of the circuit breaker
type CircuitState int

const (
	CircuitClosed   CircuitState = iota // Normal operation
	CircuitOpen                         // Failing fast
	CircuitHalfOpen                     // Trying one request to test recovery
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a CircuitBreaker. Zero fields take the defaults.
type BreakerConfig struct {
	FailureThreshold int           // consecutive failures before opening (default 5)
	ResetTimeout     time.Duration // open duration before a trial request (default 30s)
	HalfOpenMax      int           // requests allowed while half-open (default 1)

	// Now overrides the clock, for tests.
	Now func() time.Time
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.HalfOpenMax <= 0 {
		c.HalfOpenMax = 1
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// CircuitBreaker stops calling a registry after repeated transport failures.
// While open, callers are expected to degrade instead of erroring.
type CircuitBreaker struct {
	cfg BreakerConfig

	mu          sync.Mutex
	state       CircuitState
	failures    int
	openedAt    time.Time
	lastFailure time.Time
	trials      int

	// onChange is called with the new state after every transition, outside the lock.
	onChange func(CircuitState)
}

// NewCircuitBreaker creates a closed circuit breaker.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{cfg: cfg.withDefaults(), state: CircuitClosed}
}

// OnStateChange registers a callback for state transitions. Not safe to call
// concurrently with Allow/Record*.
func (cb *CircuitBreaker) OnStateChange(fn func(CircuitState)) {
	cb.onChange = fn
}

// Allow reports whether a request may proceed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	allowed, changed := cb.allowLocked()
	state := cb.state
	cb.mu.Unlock()

	if changed {
		cb.notify(state)
	}
	return allowed
}

func (cb *CircuitBreaker) allowLocked() (allowed, changed bool) {
	switch cb.state {
	case CircuitClosed:
		return true, false
	case CircuitOpen:
		if cb.cfg.Now().Sub(cb.openedAt) < cb.cfg.ResetTimeout {
			return false, false
		}
		cb.state = CircuitHalfOpen
		cb.trials = 1
		return true, true
	case CircuitHalfOpen:
		if cb.trials < cb.cfg.HalfOpenMax {
			cb.trials++
			return true, false
		}
		return false, false
	default:
		return false, false
	}
}

// Release hands back a half-open slot taken by Allow when the request never
// reached the registry, so neither RecordSuccess nor RecordFailure applies.
func (cb *CircuitBreaker) Release() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == CircuitHalfOpen && cb.trials > 0 {
		cb.trials--
	}
}

// RecordSuccess resets the failure count and closes a half-open circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	cb.failures = 0
	changed := cb.state != CircuitClosed
	cb.state = CircuitClosed
	cb.trials = 0
	cb.mu.Unlock()

	if changed {
		cb.notify(CircuitClosed)
	}
}

// RecordFailure counts a failure and opens the circuit at the threshold, or
// immediately when a half-open request fails.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	now := cb.cfg.Now()
	cb.failures++
	cb.lastFailure = now

	changed := false
	switch cb.state {
	case CircuitClosed:
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.state = CircuitOpen
			cb.openedAt = now
			changed = true
		}
	case CircuitHalfOpen:
		cb.state = CircuitOpen
		cb.openedAt = now
		cb.trials = 0
		changed = true
	}
	state := cb.state
	cb.mu.Unlock()

	if changed {
		cb.notify(state)
	}
}

func (cb *CircuitBreaker) notify(state CircuitState) {
	if cb.onChange != nil {
		cb.onChange(state)
	}
}

// State returns the current circuit state
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats returns a snapshot of the breaker.
func (cb *CircuitBreaker) Stats() CircuitBreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	stats := CircuitBreakerStats{
		State:            cb.state.String(),
		ConsecutiveFails: cb.failures,
		LastFailure:      cb.lastFailure,
	}
	if cb.state == CircuitOpen {
		stats.RetryAt = cb.openedAt.Add(cb.cfg.ResetTimeout)
	}
	return stats
}

// CircuitBreakerStats contains circuit breaker statistics
type CircuitBreakerStats struct {
	State            string    `json:"state"`
	ConsecutiveFails int       `json:"consecutive_failures"`
	LastFailure      time.Time `json:"last_failure,omitempty"`
	RetryAt          time.Time `json:"retry_at,omitempty"`
}

// ErrCircuitOpen is returned instead of calling a registry whose circuit is open.
type ErrCircuitOpen struct {
	RetryAt  time.Time
	Failures int
}

func (e *ErrCircuitOpen) Error() string {
	return "circuit breaker is open: registry is unavailable, retry after " + e.RetryAt.Format(time.RFC3339)
}
