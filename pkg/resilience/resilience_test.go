package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBackend = errors.New("backend down")

func TestBreakerOpensAndRecovers(t *testing.T) {
	now := time.Unix(0, 0)
	b := NewBreaker("test", BreakerConfig{FailureThreshold: 2, OpenFor: time.Minute})
	b.now = func() time.Time { return now }

	fail := func() error { return errBackend }
	assert.ErrorIs(t, b.Do(fail), errBackend)
	assert.Equal(t, StateClosed, b.State())
	assert.ErrorIs(t, b.Do(fail), errBackend)
	assert.Equal(t, StateOpen, b.State())

	calls := 0
	err := b.Do(func() error { calls++; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Zero(t, calls)

	now = now.Add(time.Minute)
	require.NoError(t, b.Do(func() error { calls++; return nil }))
	assert.Equal(t, 1, calls)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	now := time.Unix(0, 0)
	b := NewBreaker("test", BreakerConfig{FailureThreshold: 1, OpenFor: time.Second})
	b.now = func() time.Time { return now }

	_ = b.Do(func() error { return errBackend })
	now = now.Add(time.Second)
	assert.ErrorIs(t, b.Do(func() error { return errBackend }), errBackend)
	assert.Equal(t, StateOpen, b.State())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerIgnoresCallerCancellation(t *testing.T) {
	b := NewBreaker("test", BreakerConfig{FailureThreshold: 1})
	_ = b.Do(func() error { return context.Canceled })
	assert.Equal(t, StateClosed, b.State())
}

func TestRetry(t *testing.T) {
	fast := Backoff{Attempts: 3, Initial: time.Millisecond, Max: 2 * time.Millisecond}

	var calls atomic.Int32
	err := Retry(context.Background(), "flaky", fast, func(context.Context) error {
		if calls.Add(1) < 3 {
			return errBackend
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())

	calls.Store(0)
	err = Retry(context.Background(), "down", fast, func(context.Context) error {
		calls.Add(1)
		return errBackend
	})
	assert.ErrorIs(t, err, errBackend)
	assert.Equal(t, int32(3), calls.Load())

	calls.Store(0)
	err = Retry(context.Background(), "bad-request", fast, func(context.Context) error {
		calls.Add(1)
		return Permanent(errBackend)
	})
	assert.ErrorIs(t, err, errBackend)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, "cancelled", Backoff{Attempts: 5, Initial: time.Hour}, func(context.Context) error {
		return errBackend
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackoffDelayGrowsAndCaps(t *testing.T) {
	b := Backoff{Initial: 100 * time.Millisecond, Max: time.Second, Multiplier: 2, Jitter: 0.1}
	d1 := b.Delay(1)
	assert.InDelta(t, float64(100*time.Millisecond), float64(d1), float64(10*time.Millisecond))
	d3 := b.Delay(3)
	assert.InDelta(t, float64(400*time.Millisecond), float64(d3), float64(40*time.Millisecond))
	assert.LessOrEqual(t, b.Delay(20), time.Second)
}

func TestWithTimeout(t *testing.T) {
	err := WithTimeout(context.Background(), 10*time.Millisecond, "stuck", func(context.Context) error {
		time.Sleep(200 * time.Millisecond)
		return nil
	})
	assert.ErrorIs(t, err, ErrTimeout)

	err = WithTimeout(context.Background(), time.Second, "quick", func(context.Context) error {
		return errBackend
	})
	assert.ErrorIs(t, err, errBackend)

	assert.NoError(t, WithTimeout(context.Background(), 0, "unbounded", func(context.Context) error { return nil }))
}
