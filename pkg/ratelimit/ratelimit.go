// Package ratelimit implements fixed-window request limiting per key.
// Window state lives behind the WindowStore interface so a single-node
// deployment uses process memory and a shared deployment uses Redis, with
// identical semantics.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"
)

// Policy is one bucket's limit: Max requests per Window.
type Policy struct {
	Max    int
	Window time.Duration
}

// Bucket names with predefined policies.
const (
	BucketStandard   = "standard"
	BucketUpload     = "upload"
	BucketProcessing = "processing"
	BucketAuth       = "auth"
	BucketAdmin      = "admin"
	BucketWebhook    = "webhook"
)

// Presets returns the predefined per-bucket policies.
func Presets() map[string]Policy {
	return map[string]Policy{
		BucketStandard:   {Max: 100, Window: time.Minute},
		BucketUpload:     {Max: 20, Window: time.Minute},
		BucketProcessing: {Max: 10, Window: time.Minute},
		BucketAuth:       {Max: 5, Window: time.Minute},
		BucketAdmin:      {Max: 30, Window: time.Minute},
		BucketWebhook:    {Max: 60, Window: time.Minute},
	}
}

// Decision is the outcome of one limiter check.
type Decision struct {
	Allowed   bool
	Remaining int
	// RetryAfter is the whole seconds until the window resets; only set on
	// rejection.
	RetryAfter int
}

// WindowStore holds fixed-window counters. Implementations must perform the
// check-and-increment atomically per key.
type WindowStore interface {
	// Incr checks the window for key: resets it if expired, rejects when the
	// count has reached policy.Max, increments otherwise.
	Incr(ctx context.Context, key string, policy Policy, now time.Time) (Decision, error)
	// Sweep removes windows that expired before now.
	Sweep(ctx context.Context, now time.Time) error
}

// Limiter checks requests against a bucket policy.
type Limiter struct {
	store   WindowStore
	presets map[string]Policy
	now     func() time.Time

	sweepStop chan struct{}
	sweepOnce sync.Once
}

// New creates a Limiter over the given store with the default presets.
func New(store WindowStore) *Limiter {
	return &Limiter{
		store:     store,
		presets:   Presets(),
		now:       time.Now,
		sweepStop: make(chan struct{}),
	}
}

// WithClock overrides the limiter's clock for tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Check applies the named bucket's policy to key.
func (l *Limiter) Check(ctx context.Context, bucket, key string) (Decision, error) {
	policy, ok := l.presets[bucket]
	if !ok {
		return Decision{}, fmt.Errorf("ratelimit: unknown bucket %q", bucket)
	}
	return l.store.Incr(ctx, bucket+":"+key, policy, l.now())
}

// SweepInterval is how often the background sweep removes expired windows.
const SweepInterval = 5 * time.Minute

// StartSweep launches the background cleanup goroutine. It stops when ctx
// is cancelled or Stop is called.
func (l *Limiter) StartSweep(ctx context.Context) {
	go func() {
		t := time.NewTicker(SweepInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-l.sweepStop:
				return
			case <-t.C:
				_ = l.store.Sweep(ctx, l.now())
			}
		}
	}()
}

// Stop terminates the background sweep.
func (l *Limiter) Stop() {
	l.sweepOnce.Do(func() { close(l.sweepStop) })
}

// window is one key's fixed-window state.
type window struct {
	count     int
	resetTime time.Time
}

// MemoryStore is the in-process WindowStore.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*window
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string]*window)}
}

// Incr implements WindowStore.
func (s *MemoryStore) Incr(_ context.Context, key string, policy Policy, now time.Time) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || !now.Before(w.resetTime) {
		w = &window{resetTime: now.Add(policy.Window)}
		s.windows[key] = w
	}
	if w.count >= policy.Max {
		retry := int(math.Ceil(w.resetTime.Sub(now).Seconds()))
		if retry < 1 {
			retry = 1
		}
		return Decision{Allowed: false, Remaining: 0, RetryAfter: retry}, nil
	}
	w.count++
	return Decision{Allowed: true, Remaining: policy.Max - w.count}, nil
}

// Sweep implements WindowStore.
func (s *MemoryStore) Sweep(_ context.Context, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, w := range s.windows {
		if !now.Before(w.resetTime) {
			delete(s.windows, k)
		}
	}
	return nil
}

// Len reports how many windows are currently tracked.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}
