package retry

import (
	"math"
	"time"

	"github.com/heraldhq/herald/internal/domain"
)

// Backoff computes the delay before the next attempt, given the number of
// attempts already made: min(initialDelay * multiplier^(attempts-1), maxDelay).
// attempts below 1 is treated as 1 (the delay before the first retry).
func Backoff(policy domain.RetryPolicy, attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}

	delay := float64(policy.InitialDelay) * math.Pow(policy.BackoffMultiplier, float64(attempts-1))
	if max := float64(policy.MaxDelay); policy.MaxDelay > 0 && delay > max {
		return policy.MaxDelay
	}
	if delay > float64(math.MaxInt64) {
		return policy.MaxDelay
	}
	return time.Duration(delay)
}
