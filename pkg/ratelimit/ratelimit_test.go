package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedWindowAllowsUpToMax(t *testing.T) {
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := New(NewMemoryStore()).WithClock(func() time.Time { return clock })
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		d, err := l.Check(ctx, BucketAuth, "user-1")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d within limit", i)
		assert.Equal(t, 4-i, d.Remaining)
	}

	d, err := l.Check(ctx, BucketAuth, "user-1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 60, d.RetryAfter)
}

func TestWindowResets(t *testing.T) {
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := New(NewMemoryStore()).WithClock(func() time.Time { return clock })
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := l.Check(ctx, BucketAuth, "user-1")
		require.NoError(t, err)
	}
	d, _ := l.Check(ctx, BucketAuth, "user-1")
	assert.False(t, d.Allowed)

	clock = clock.Add(time.Minute)
	d, err := l.Check(ctx, BucketAuth, "user-1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestKeysIsolated(t *testing.T) {
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := New(NewMemoryStore()).WithClock(func() time.Time { return clock })
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := l.Check(ctx, BucketAuth, "user-1")
		require.NoError(t, err)
	}
	d, err := l.Check(ctx, BucketAuth, "user-2")
	require.NoError(t, err)
	assert.True(t, d.Allowed, "other key has its own window")
}

func TestUnknownBucket(t *testing.T) {
	l := New(NewMemoryStore())
	_, err := l.Check(context.Background(), "nope", "k")
	assert.Error(t, err)
}

func TestRetryAfterRoundsUp(t *testing.T) {
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l := New(NewMemoryStore()).WithClock(func() time.Time { return clock })
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := l.Check(ctx, BucketAuth, "user-1")
		require.NoError(t, err)
	}
	clock = clock.Add(59*time.Second + 500*time.Millisecond)
	d, err := l.Check(ctx, BucketAuth, "user-1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 1, d.RetryAfter)
}

func TestSweepRemovesExpiredWindows(t *testing.T) {
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	l := New(store).WithClock(func() time.Time { return clock })
	ctx := context.Background()

	_, err := l.Check(ctx, BucketStandard, "a")
	require.NoError(t, err)
	_, err = l.Check(ctx, BucketStandard, "b")
	require.NoError(t, err)
	assert.Equal(t, 2, store.Len())

	require.NoError(t, store.Sweep(ctx, clock.Add(2*time.Minute)))
	assert.Equal(t, 0, store.Len())
}

func TestPresetsCoverAllBuckets(t *testing.T) {
	p := Presets()
	for _, b := range []string{BucketStandard, BucketUpload, BucketProcessing, BucketAuth, BucketAdmin, BucketWebhook} {
		policy, ok := p[b]
		require.True(t, ok, "bucket %s", b)
		assert.Positive(t, policy.Max)
		assert.Positive(t, policy.Window)
	}
}
