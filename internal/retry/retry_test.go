package retry

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heraldhq/herald/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestBackoff_Formula(t *testing.T) {
	policy := domain.RetryPolicy{
		MaxAttempts:       3,
		BackoffMultiplier: 2,
		InitialDelay:      time.Second,
		MaxDelay:          time.Minute,
	}

	assert.Equal(t, time.Second, Backoff(policy, 1))
	assert.Equal(t, 2*time.Second, Backoff(policy, 2))
	assert.Equal(t, 4*time.Second, Backoff(policy, 3))
	assert.Equal(t, time.Second, Backoff(policy, 0))
}

func TestBackoff_CappedAtMaxDelay(t *testing.T) {
	policy := domain.RetryPolicy{
		MaxAttempts:       10,
		BackoffMultiplier: 10,
		InitialDelay:      time.Second,
		MaxDelay:          30 * time.Second,
	}

	assert.Equal(t, 10*time.Second, Backoff(policy, 2))
	assert.Equal(t, 30*time.Second, Backoff(policy, 3))
	assert.Equal(t, 30*time.Second, Backoff(policy, 9))
}

func TestScheduler_FiresInOrder(t *testing.T) {
	var mu sync.Mutex
	var fired []string

	s := NewScheduler(func(_ context.Context, _, deliveryID string) {
		mu.Lock()
		fired = append(fired, deliveryID)
		mu.Unlock()
	}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	s.Schedule("t-1", "d-late", 60*time.Millisecond)
	s.Schedule("t-1", "d-early", 10*time.Millisecond)
	s.Schedule("t-1", "d-mid", 30*time.Millisecond)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(fired) == 3
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"d-early", "d-mid", "d-late"}, fired)
}

func TestScheduler_EarlierItemWakesTimer(t *testing.T) {
	firedAt := make(chan time.Time, 1)

	s := NewScheduler(func(_ context.Context, _, deliveryID string) {
		if deliveryID == "d-fast" {
			firedAt <- time.Now()
		}
	}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	start := time.Now()
	s.Schedule("t-1", "d-slow", 10*time.Second)
	s.Schedule("t-1", "d-fast", 20*time.Millisecond)

	select {
	case at := <-firedAt:
		// The short item must not wait behind the long one.
		assert.Less(t, at.Sub(start), time.Second)
	case <-time.After(2 * time.Second):
		t.Fatal("short retry never fired")
	}

	assert.Equal(t, 1, s.Pending())
}

func TestScheduler_StopDrainsCleanly(t *testing.T) {
	s := NewScheduler(func(context.Context, string, string) {}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	s.Schedule("t-1", "d-1", time.Hour)
	s.Stop()

	assert.Equal(t, 1, s.Pending())
}
