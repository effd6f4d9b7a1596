package resiliency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testClock is a manually advanced clock.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time            { return c.now }
func (c *testClock) Advance(d time.Duration)   { c.now = c.now.Add(d) }
func newTestClock() *testClock                 { return &testClock{now: time.Unix(1700000000, 0)} }

func failing(err error) func(context.Context) error {
	return func(context.Context) error { return err }
}

func succeeding() func(context.Context) error {
	return func(context.Context) error { return nil }
}

func TestBreakerOpensOnThreshold(t *testing.T) {
	clock := newTestClock()
	cb := NewCircuitBreaker("ocr", BreakerConfig{FailureThreshold: 3, ResetTimeout: 10 * time.Second}).WithClock(clock.Now)
	boom := errors.New("upstream 502")

	for i := 0; i < 2; i++ {
		_ = cb.Execute(context.Background(), failing(boom))
		assert.Equal(t, StateClosed, cb.State(), "still closed after %d failures", i+1)
	}

	_ = cb.Execute(context.Background(), failing(boom))
	assert.Equal(t, StateOpen, cb.State(), "opens on the 3rd consecutive failure")

	err := cb.Execute(context.Background(), succeeding())
	require.Error(t, err)
	var co *CircuitOpenError
	require.ErrorAs(t, err, &co)
	assert.Equal(t, "ocr", co.Upstream)
	assert.InDelta(t, (10 * time.Second).Milliseconds(), co.RetryAfter.Milliseconds(), 100)
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker("llm", BreakerConfig{FailureThreshold: 3, ResetTimeout: time.Second})
	boom := errors.New("510 err")

	_ = cb.Execute(context.Background(), failing(boom))
	_ = cb.Execute(context.Background(), failing(boom))
	_ = cb.Execute(context.Background(), succeeding())
	_ = cb.Execute(context.Background(), failing(boom))
	_ = cb.Execute(context.Background(), failing(boom))

	assert.Equal(t, StateClosed, cb.State(), "success between failures resets the streak")
}

func TestBreakerHalfOpenProbeAndRecovery(t *testing.T) {
	clock := newTestClock()
	cb := NewCircuitBreaker("ocr", BreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     5 * time.Second,
		HalfOpenRequests: 2,
	}).WithClock(clock.Now)

	_ = cb.Execute(context.Background(), failing(errors.New("503")))
	require.Equal(t, StateOpen, cb.State())

	// Before the reset timeout: rejected.
	clock.Advance(4 * time.Second)
	err := cb.Execute(context.Background(), succeeding())
	assert.True(t, IsCircuitOpen(err))

	// After the timeout: probes admitted, two successes close it.
	clock.Advance(2 * time.Second)
	require.NoError(t, cb.Execute(context.Background(), succeeding()))
	assert.Equal(t, StateHalfOpen, cb.State(), "one success of two is not enough")
	require.NoError(t, cb.Execute(context.Background(), succeeding()))
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	clock := newTestClock()
	cb := NewCircuitBreaker("ocr", BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Second}).WithClock(clock.Now)

	_ = cb.Execute(context.Background(), failing(errors.New("503")))
	clock.Advance(2 * time.Second)

	err := cb.Execute(context.Background(), failing(errors.New("503 again")))
	require.Error(t, err)
	assert.False(t, IsCircuitOpen(err), "probe itself was admitted")
	assert.Equal(t, StateOpen, cb.State(), "any half-open failure reopens")
}

func TestBreakerHalfOpenLimitsProbes(t *testing.T) {
	clock := newTestClock()
	cb := NewCircuitBreaker("ocr", BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Second, HalfOpenRequests: 1}).WithClock(clock.Now)

	_ = cb.Execute(context.Background(), failing(errors.New("503")))
	clock.Advance(2 * time.Second)

	// First probe admitted; a concurrent second call is rejected.
	admitted := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(context.Background(), func(context.Context) error {
			close(admitted)
			<-release
			return nil
		})
	}()

	<-admitted
	err := cb.Execute(context.Background(), succeeding())
	assert.True(t, IsCircuitOpen(err), "probe budget exhausted")

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerReset(t *testing.T) {
	cb := NewCircuitBreaker("ocr", BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})
	_ = cb.Execute(context.Background(), failing(errors.New("502")))
	require.Equal(t, StateOpen, cb.State())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.NoError(t, cb.Execute(context.Background(), succeeding()))
}

func TestBreakerIgnoresCancellation(t *testing.T) {
	cb := NewCircuitBreaker("ocr", BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})

	err := cb.Execute(context.Background(), failing(context.Canceled))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.State(), "cancellation is not an upstream failure")
}

func TestWithResiliencyComposition(t *testing.T) {
	cb := NewCircuitBreaker("ocr", BreakerConfig{FailureThreshold: 2, ResetTimeout: time.Hour})
	calls := 0

	err := WithResiliency(context.Background(), cb, RetryOptions{MaxRetries: 3, Sleeper: &fakeSleeper{}}, func(context.Context) error {
		calls++
		return NewHTTPError(500, "boom")
	})

	require.Error(t, err)
	assert.Equal(t, 4, calls, "retries happen inside the breaker")
	assert.Equal(t, StateClosed, cb.State(), "one breaker failure for the whole retried call")

	_ = WithResiliency(context.Background(), cb, RetryOptions{Sleeper: &fakeSleeper{}}, failing(NewHTTPError(500, "boom")))
	assert.Equal(t, StateOpen, cb.State())

	err = WithResiliency(context.Background(), cb, RetryOptions{}, succeeding())
	assert.True(t, IsCircuitOpen(err))
}

func TestBreakerSet(t *testing.T) {
	set := NewBreakerSet(DefaultBreakerConfig())
	ocr := set.For(UpstreamOCR)
	llm := set.For(UpstreamLLM)

	assert.NotSame(t, ocr, llm)
	assert.Same(t, ocr, set.For(UpstreamOCR), "same instance per upstream")
}
