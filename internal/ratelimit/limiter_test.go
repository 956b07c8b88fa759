package ratelimit

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heraldhq/herald/internal/domain"
)

func newTestLimiter(t *testing.T) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLimiter(client), srv
}

func TestTryAcquire_PerMinuteCap(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()
	limit := domain.RateLimit{MaxPerMinute: 5}

	granted := 0
	for i := 0; i < 20; i++ {
		ok, err := limiter.TryAcquire(ctx, "t-1", domain.ChannelEmail, limit)
		require.NoError(t, err)
		if ok {
			granted++
		}
	}
	assert.Equal(t, 5, granted)
}

func TestTryAcquire_WindowRollover(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()
	limit := domain.RateLimit{MaxPerMinute: 1}

	clock := time.Date(2026, 3, 11, 12, 0, 30, 0, time.UTC)
	limiter.WithClock(func() time.Time { return clock })

	ok, err := limiter.TryAcquire(ctx, "t-1", domain.ChannelSMS, limit)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = limiter.TryAcquire(ctx, "t-1", domain.ChannelSMS, limit)
	require.NoError(t, err)
	assert.False(t, ok)

	// A full minute later the earlier grant has aged out of the window.
	clock = clock.Add(time.Minute)
	ok, err = limiter.TryAcquire(ctx, "t-1", domain.ChannelSMS, limit)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTryAcquire_CapHoldsAcrossMinuteBoundary(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()
	limit := domain.RateLimit{MaxPerMinute: 5}

	clock := time.Date(2026, 3, 11, 12, 0, 59, 0, time.UTC)
	limiter.WithClock(func() time.Time { return clock })

	for i := 0; i < 5; i++ {
		ok, err := limiter.TryAcquire(ctx, "t-1", domain.ChannelEmail, limit)
		require.NoError(t, err)
		require.True(t, ok)
	}

	// Two seconds later the calendar minute has rolled over, but all five
	// grants are still inside the trailing 60 seconds.
	clock = time.Date(2026, 3, 11, 12, 1, 1, 0, time.UTC)
	for i := 0; i < 5; i++ {
		ok, err := limiter.TryAcquire(ctx, "t-1", domain.ChannelEmail, limit)
		require.NoError(t, err)
		assert.False(t, ok)
	}

	// Once the burst ages out, the budget frees up again.
	clock = time.Date(2026, 3, 11, 12, 2, 0, 0, time.UTC)
	ok, err := limiter.TryAcquire(ctx, "t-1", domain.ChannelEmail, limit)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTryAcquire_HourCapHoldsAcrossMinutes(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()
	limit := domain.RateLimit{MaxPerMinute: 10, MaxPerHour: 3}

	clock := time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)
	limiter.WithClock(func() time.Time { return clock })

	granted := 0
	for i := 0; i < 6; i++ {
		ok, err := limiter.TryAcquire(ctx, "t-1", domain.ChannelPush, limit)
		require.NoError(t, err)
		if ok {
			granted++
		}
		clock = clock.Add(time.Minute)
	}
	assert.Equal(t, 3, granted)
}

func TestTryAcquire_FailedAcquireConsumesNothing(t *testing.T) {
	limiter, srv := newTestLimiter(t)
	ctx := context.Background()
	limit := domain.RateLimit{MaxPerMinute: 1, MaxPerHour: 10}

	clock := time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)
	limiter.WithClock(func() time.Time { return clock })

	ok, err := limiter.TryAcquire(ctx, "t-1", domain.ChannelEmail, limit)
	require.NoError(t, err)
	require.True(t, ok)

	// Denied by the minute cap: no slot may be recorded for the attempt.
	ok, err = limiter.TryAcquire(ctx, "t-1", domain.ChannelEmail, limit)
	require.NoError(t, err)
	require.False(t, ok)

	members, err := srv.ZMembers(slotKey("t-1", domain.ChannelEmail))
	require.NoError(t, err)
	assert.Len(t, members, 1)
}

func TestTryAcquire_TenantAndChannelIsolation(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()
	limit := domain.RateLimit{MaxPerMinute: 1}

	ok, err := limiter.TryAcquire(ctx, "t-1", domain.ChannelEmail, limit)
	require.NoError(t, err)
	require.True(t, ok)

	// Same channel, other tenant: independent budget.
	ok, err = limiter.TryAcquire(ctx, "t-2", domain.ChannelEmail, limit)
	require.NoError(t, err)
	assert.True(t, ok)

	// Same tenant, other channel: independent budget.
	ok, err = limiter.TryAcquire(ctx, "t-1", domain.ChannelSMS, limit)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTryAcquire_NoLimitsConfigured(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		ok, err := limiter.TryAcquire(ctx, "t-1", domain.ChannelInApp, domain.RateLimit{})
		require.NoError(t, err)
		require.True(t, ok)
	}
}

// TestTryAcquire_NeverExceedsMinuteCap advances a clock by randomized steps
// and checks that no trailing 60s span, wherever it falls, ever holds more
// grants than the cap.
func TestTryAcquire_NeverExceedsMinuteCap(t *testing.T) {
	limiter, _ := newTestLimiter(t)
	ctx := context.Background()
	limit := domain.RateLimit{MaxPerMinute: 7}

	rng := rand.New(rand.NewSource(42))
	clock := time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)
	limiter.WithClock(func() time.Time { return clock })

	var granted []time.Time
	for i := 0; i < 200; i++ {
		clock = clock.Add(time.Duration(rng.Intn(10000)) * time.Millisecond)

		ok, err := limiter.TryAcquire(ctx, "t-1", domain.ChannelWebhook, limit)
		require.NoError(t, err)
		if ok {
			granted = append(granted, clock)
		}
	}
	require.NotEmpty(t, granted)

	for i, end := range granted {
		inWindow := 0
		for _, ts := range granted[:i+1] {
			if ts.After(end.Add(-time.Minute)) {
				inWindow++
			}
		}
		assert.LessOrEqual(t, inWindow, 7, "window ending at %s over cap", end)
	}
}

func TestPeek_DoesNotConsume(t *testing.T) {
	limiter, srv := newTestLimiter(t)
	ctx := context.Background()
	limit := domain.RateLimit{MaxPerMinute: 2}

	for i := 0; i < 10; i++ {
		ok, err := limiter.Peek(ctx, "t-1", domain.ChannelEmail, limit)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.False(t, srv.Exists(slotKey("t-1", domain.ChannelEmail)))

	for i := 0; i < 2; i++ {
		ok, err := limiter.TryAcquire(ctx, "t-1", domain.ChannelEmail, limit)
		require.NoError(t, err)
		require.True(t, ok)
	}

	ok, err := limiter.Peek(ctx, "t-1", domain.ChannelEmail, limit)
	require.NoError(t, err)
	assert.False(t, ok)
}
