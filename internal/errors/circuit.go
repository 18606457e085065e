package errors

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the circuit breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the circuit breaker state.
type State int

const (
	// StateClosed is the normal state where requests are allowed.
	StateClosed State = iota
	// StateOpen is when the circuit is tripped and requests are blocked.
	StateOpen
	// StateHalfOpen is when the circuit lets a probe through after the reset timeout.
	StateHalfOpen
)

// String returns a string representation of the state.
func (s State) String() string {
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

// CircuitBreaker stops calling a failing provider until it has had time to recover.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	now          func() time.Time

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
}

// CircuitBreakerOption configures a CircuitBreaker.
type CircuitBreakerOption func(*CircuitBreaker)

// WithMaxFailures sets the number of consecutive failures before opening the circuit.
func WithMaxFailures(n int) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		if n > 0 {
			cb.maxFailures = n
		}
	}
}

// WithResetTimeout sets the time to wait before attempting recovery.
func WithResetTimeout(d time.Duration) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.resetTimeout = d
	}
}

// withClock replaces time.Now; tests only.
func withClock(now func() time.Time) CircuitBreakerOption {
	return func(cb *CircuitBreaker) {
		cb.now = now
	}
}

// NewCircuitBreaker creates a new circuit breaker with the given name.
// Default: 5 failures, 30 second reset timeout.
func NewCircuitBreaker(name string, opts ...CircuitBreakerOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:         name,
		maxFailures:  5,
		resetTimeout: 30 * time.Second,
		now:          time.Now,
		state:        StateClosed,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// Name returns the circuit breaker name.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// State returns the current circuit breaker state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentState()
}

// currentState must be called with mu held.
func (cb *CircuitBreaker) currentState() State {
	if cb.state == StateOpen && cb.now().Sub(cb.lastFailure) > cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Failures returns the current failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Allow checks if a request should be allowed through.
func (cb *CircuitBreaker) Allow() bool {
	return cb.State() != StateOpen
}

// RecordSuccess records a successful request and closes the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.state = StateClosed
}

// RecordFailure records a failed request.
// A failure while half-open reopens the circuit immediately.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	half := cb.currentState() == StateHalfOpen
	cb.failures++
	cb.lastFailure = cb.now()

	if half || cb.failures >= cb.maxFailures {
		cb.state = StateOpen
	}
}

// Execute runs fn through the circuit breaker.
// Returns ErrCircuitOpen without calling fn if the circuit is open.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	_, err := CircuitExecute(cb, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// CircuitExecute is Execute for functions that return a value.
// Only errors for which countsAsFailure is true trip the breaker; by
// default every error does.
func CircuitExecute[T any](cb *CircuitBreaker, fn func() (T, error), countsAsFailure ...func(error) bool) (T, error) {
	var zero T
	if !cb.Allow() {
		return zero, ErrCircuitOpen
	}

	result, err := fn()
	if err != nil {
		trip := true
		for _, f := range countsAsFailure {
			trip = trip && f(err)
		}
		if trip {
			cb.RecordFailure()
		}
		return zero, err
	}

	cb.RecordSuccess()
	return result, nil
}
