package resiliency

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Sleeper abstracts backoff sleeps so tests can run on virtual time.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// realSleeper sleeps on the wall clock, honoring cancellation.
type realSleeper struct{}

func (realSleeper) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RetryOptions tunes WithRetry. Zero values fall back to defaults.
type RetryOptions struct {
	MaxRetries        int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	// RetryableErrors overrides DefaultRetryablePatterns when non-empty.
	RetryableErrors []string
	// OnRetry observes each scheduled retry before its backoff sleep.
	OnRetry func(attempt int, err error, delay time.Duration)
	// Sleeper defaults to a wall-clock sleeper.
	Sleeper Sleeper
	// Rand supplies jitter in [0,1). Defaults to math/rand.
	Rand func() float64
}

// DefaultRetryOptions gives adapters three retries starting at one second.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxRetries:        3,
		BaseDelay:         time.Second,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2,
	}
}

func (o RetryOptions) withDefaults() RetryOptions {
	d := DefaultRetryOptions()
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = d.BaseDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = d.MaxDelay
	}
	if o.BackoffMultiplier <= 0 {
		o.BackoffMultiplier = d.BackoffMultiplier
	}
	if o.Sleeper == nil {
		o.Sleeper = realSleeper{}
	}
	if o.Rand == nil {
		o.Rand = rand.Float64
	}
	return o
}

// Delay computes the backoff before retry k (0-based):
// min(MaxDelay, Base·Mult^k + uniform(0, 0.3·Base·Mult^k)).
func (o RetryOptions) Delay(attempt int) time.Duration {
	o = o.withDefaults()
	exp := float64(o.BaseDelay) * math.Pow(o.BackoffMultiplier, float64(attempt))
	jitter := o.Rand() * 0.3 * exp
	d := time.Duration(exp + jitter)
	if d > o.MaxDelay {
		d = o.MaxDelay
	}
	return d
}

// WithRetry runs op up to 1+MaxRetries times. Only errors matching the
// retryable patterns are retried; anything else propagates immediately. The
// final failure returns the last error unchanged.
func WithRetry(ctx context.Context, opts RetryOptions, op func(ctx context.Context) error) error {
	opts = opts.withDefaults()

	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !Retryable(lastErr, opts.RetryableErrors) {
			return lastErr
		}
		if attempt >= opts.MaxRetries {
			return lastErr
		}

		delay := opts.Delay(attempt)
		if opts.OnRetry != nil {
			opts.OnRetry(attempt+1, lastErr, delay)
		}
		if err := opts.Sleeper.Sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// Attempts reports how many calls WithRetry makes when every attempt fails
// with a retryable error.
func (o RetryOptions) Attempts() int { return 1 + o.withDefaults().MaxRetries }

// WithResiliency composes the breaker around the retry loop: the breaker
// sees one verdict per call, covering all attempts inside it.
func WithResiliency(ctx context.Context, breaker *CircuitBreaker, opts RetryOptions, op func(ctx context.Context) error) error {
	if breaker == nil {
		return WithRetry(ctx, opts, op)
	}
	return breaker.Execute(ctx, func(ctx context.Context) error {
		return WithRetry(ctx, opts, op)
	})
}
