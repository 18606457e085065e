package errors

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker("geocoder", WithMaxFailures(3), WithResetTimeout(time.Second))

	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return errors.New("error") })
	}

	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_RecoversAfterTimeout(t *testing.T) {
	// Given: an open circuit breaker
	clock := &fakeClock{now: time.Unix(1000, 0)}
	cb := NewCircuitBreaker("geocoder", WithMaxFailures(2), WithResetTimeout(time.Minute), withClock(clock.Now))
	for i := 0; i < 2; i++ {
		_ = cb.Execute(func() error { return errors.New("error") })
	}
	require.Equal(t, StateOpen, cb.State())

	// When: the reset timeout elapses
	clock.Advance(2 * time.Minute)

	// Then: half-open, and a success closes it
	assert.Equal(t, StateHalfOpen, cb.State())
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.Failures())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	cb := NewCircuitBreaker("geocoder", WithMaxFailures(5), WithResetTimeout(time.Minute), withClock(clock.Now))
	for i := 0; i < 5; i++ {
		cb.RecordFailure()
	}
	clock.Advance(2 * time.Minute)
	require.Equal(t, StateHalfOpen, cb.State())

	_ = cb.Execute(func() error { return errors.New("still down") })

	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitExecute_FilterDoesNotTripOnIgnoredErrors(t *testing.T) {
	// Given: a breaker that ignores validation errors
	cb := NewCircuitBreaker("geocoder", WithMaxFailures(1))
	onlyNetwork := func(err error) bool { return GetCategory(err) == CategoryNetwork }

	// When: a validation error is returned
	_, err := CircuitExecute(cb, func() (int, error) {
		return 0, ValidationError("bad", nil)
	}, onlyNetwork)

	// Then: still closed
	assert.Error(t, err)
	assert.Equal(t, StateClosed, cb.State())

	// And: a network error trips it
	_, _ = CircuitExecute(cb, func() (int, error) {
		return 0, NetworkError("timeout", nil)
	}, onlyNetwork)
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitExecute_ReturnsValue(t *testing.T) {
	cb := NewCircuitBreaker("store")

	got, err := CircuitExecute(cb, func() (string, error) { return "ok", nil })

	assert.NoError(t, err)
	assert.Equal(t, "ok", got)
}

func TestCircuitBreaker_ConcurrentUse(t *testing.T) {
	cb := NewCircuitBreaker("geocoder", WithMaxFailures(1000))
	var calls atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = cb.Execute(func() error {
				calls.Add(1)
				if i%2 == 0 {
					return errors.New("even")
				}
				return nil
			})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(50), calls.Load())
	assert.Equal(t, StateClosed, cb.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}
