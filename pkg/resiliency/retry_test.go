package resiliency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSleeper records requested sleeps without waiting.
type fakeSleeper struct {
	slept []time.Duration
}

func (f *fakeSleeper) Sleep(_ context.Context, d time.Duration) error {
	f.slept = append(f.slept, d)
	return nil
}

func TestWithRetryRetryableExhaustsAttempts(t *testing.T) {
	sleeper := &fakeSleeper{}
	calls := 0
	transient := errors.New("read tcp: connection reset by peer")

	err := WithRetry(context.Background(), RetryOptions{
		MaxRetries: 3,
		BaseDelay:  10 * time.Millisecond,
		Sleeper:    sleeper,
		Rand:       func() float64 { return 0 },
	}, func(context.Context) error {
		calls++
		return transient
	})

	require.Error(t, err)
	assert.Same(t, transient, err, "last error returned unchanged")
	assert.Equal(t, 4, calls, "1+maxRetries attempts")
	assert.Len(t, sleeper.slept, 3)
}

func TestWithRetryNonRetryableFailsFast(t *testing.T) {
	calls := 0
	fatal := NewHTTPError(404, "not found")

	err := WithRetry(context.Background(), RetryOptions{MaxRetries: 5, Sleeper: &fakeSleeper{}}, func(context.Context) error {
		calls++
		return fatal
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "HTTP_404", CodeOf(err))
}

func TestWithRetryEventualSuccess(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), RetryOptions{
		MaxRetries: 5,
		Sleeper:    &fakeSleeper{},
	}, func(context.Context) error {
		calls++
		if calls < 3 {
			return NewHTTPError(502, "bad gateway")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetryHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	err := WithRetry(ctx, RetryOptions{MaxRetries: 10, Sleeper: &fakeSleeper{}}, func(context.Context) error {
		calls++
		cancel()
		return NewHTTPError(503, "unavailable")
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls, "no attempts after cancellation")
}

func TestDelayFormulaAndCap(t *testing.T) {
	opts := RetryOptions{
		BaseDelay:         100 * time.Millisecond,
		MaxDelay:          time.Second,
		BackoffMultiplier: 2,
	}

	// Zero jitter: pure exponential.
	opts.Rand = func() float64 { return 0 }
	assert.Equal(t, 100*time.Millisecond, opts.Delay(0))
	assert.Equal(t, 200*time.Millisecond, opts.Delay(1))
	assert.Equal(t, 400*time.Millisecond, opts.Delay(2))
	assert.Equal(t, time.Second, opts.Delay(5), "capped at MaxDelay")

	// Max jitter: 30% over the exponential term.
	opts.Rand = func() float64 { return 0.999999 }
	d := opts.Delay(0)
	assert.Greater(t, d, 100*time.Millisecond)
	assert.LessOrEqual(t, d, 130*time.Millisecond)
}

func TestOnRetryObserved(t *testing.T) {
	var attempts []int
	_ = WithRetry(context.Background(), RetryOptions{
		MaxRetries: 2,
		Sleeper:    &fakeSleeper{},
		OnRetry: func(attempt int, err error, delay time.Duration) {
			attempts = append(attempts, attempt)
		},
	}, func(context.Context) error {
		return errors.New("ETIMEDOUT")
	})

	assert.Equal(t, []int{1, 2}, attempts)
}

func TestRetryablePatternMatching(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"posix name", errors.New("dial: ECONNRESET"), true},
		{"go phrasing", errors.New("read: connection reset by peer"), true},
		{"rate limit code", &CodedError{Code: CodeRateLimit, Message: "slow down"}, true},
		{"http 429", NewHTTPError(429, "too many requests"), true},
		{"http 503", NewHTTPError(503, "unavailable"), true},
		{"http 501", NewHTTPError(501, "not implemented"), true},
		{"http 507", NewHTTPError(507, "insufficient storage"), true},
		{"http 404", NewHTTPError(404, "not found"), false},
		{"breaker open never retryable", &CircuitOpenError{Upstream: "ocr", RetryAfter: time.Second}, false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Retryable(tt.err, nil))
		})
	}
}
