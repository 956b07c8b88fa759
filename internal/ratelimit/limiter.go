// Package ratelimit enforces per-tenant, per-channel delivery caps over
// rolling minute, hour, and day windows.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/heraldhq/herald/internal/domain"
)

// Limiter grants or defers delivery attempts against a channel's rate limit.
type Limiter interface {
	// TryAcquire atomically consumes one slot against all three windows.
	// When any window is at its cap it consumes nothing and returns false;
	// the caller defers the delivery, it does not drop it.
	TryAcquire(ctx context.Context, tenantID string, channel domain.Channel, limit domain.RateLimit) (bool, error)

	// Peek reports whether a slot is currently available without consuming
	// one. Callers that actually send still go through TryAcquire, so a
	// positive Peek is advisory, not a reservation.
	Peek(ctx context.Context, tenantID string, channel domain.Channel, limit domain.RateLimit) (bool, error)
}

// Acquisitions are a sorted set of timestamps per (tenant, channel), pruned
// to the largest window on every call. Counting set members newer than
// now minus each window length gives true rolling windows: the cap holds
// over any 60s/1h/24h span, not per calendar bucket, so a burst straddling
// a minute boundary cannot double the budget.
//
// Running as a single Redis script keeps check and insert atomic without a
// lock in this process, and lets multiple dispatcher workers (or replicas)
// share one budget. The set carries a TTL of twice the largest window, so a
// process restart can only under-count (favoring throughput over fairness).
var acquireScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local spans = {60000, 3600000, 86400000}
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - spans[3])
for i = 1, 3 do
	local cap = tonumber(ARGV[i+2])
	if cap > 0 then
		local cur = redis.call('ZCOUNT', KEYS[1], now - spans[i] + 1, '+inf')
		if cur >= cap then
			return 0
		end
	end
end
redis.call('ZADD', KEYS[1], now, ARGV[2])
redis.call('EXPIRE', KEYS[1], 172800)
return 1
`)

// RedisLimiter implements Limiter on rolling windows stored in Redis.
type RedisLimiter struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisLimiter creates a limiter backed by the given Redis client.
func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{client: client, now: time.Now}
}

// WithClock overrides the limiter's clock. Test hook.
func (l *RedisLimiter) WithClock(now func() time.Time) *RedisLimiter {
	l.now = now
	return l
}

var windows = []struct {
	cap  func(domain.RateLimit) int
	span time.Duration
}{
	{func(r domain.RateLimit) int { return r.MaxPerMinute }, time.Minute},
	{func(r domain.RateLimit) int { return r.MaxPerHour }, time.Hour},
	{func(r domain.RateLimit) int { return r.MaxPerDay }, 24 * time.Hour},
}

// TryAcquire implements Limiter.
func (l *RedisLimiter) TryAcquire(ctx context.Context, tenantID string, channel domain.Channel, limit domain.RateLimit) (bool, error) {
	if limit.MaxPerMinute <= 0 && limit.MaxPerHour <= 0 && limit.MaxPerDay <= 0 {
		return true, nil
	}

	args := []any{
		l.now().UTC().UnixMilli(),
		uuid.NewString(), // unique member, two grants in the same millisecond must both count
		limit.MaxPerMinute, limit.MaxPerHour, limit.MaxPerDay,
	}

	res, err := acquireScript.Run(ctx, l.client, []string{slotKey(tenantID, channel)}, args...).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit acquire for %s/%s: %w", tenantID, channel, err)
	}
	return res == 1, nil
}

// Peek implements Limiter. Read-only, so plain ZCOUNTs suffice.
func (l *RedisLimiter) Peek(ctx context.Context, tenantID string, channel domain.Channel, limit domain.RateLimit) (bool, error) {
	now := l.now().UTC().UnixMilli()
	key := slotKey(tenantID, channel)

	for _, w := range windows {
		limitCap := w.cap(limit)
		if limitCap <= 0 {
			continue
		}
		lower := strconv.FormatInt(now-w.span.Milliseconds()+1, 10)
		cur, err := l.client.ZCount(ctx, key, lower, "+inf").Result()
		if err != nil {
			return false, fmt.Errorf("rate limit peek for %s/%s: %w", tenantID, channel, err)
		}
		if cur >= int64(limitCap) {
			return false, nil
		}
	}
	return true, nil
}

func slotKey(tenantID string, channel domain.Channel) string {
	return fmt.Sprintf("herald:ratelimit:%s:%s", tenantID, channel)
}
