package ratelimit

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/robertarktes/event-bookings-and-payouts/internal/observability"
)

const keyPrefix = "ebp:rl:"

// RateLimiter counts requests per key in fixed windows.
type RateLimiter struct {
	client *redis.Client
}

func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{client: client}
}

// Allow increments the counter of key's current window and reports whether it is still
// within rate.
func (rl *RateLimiter) Allow(ctx context.Context, key string, rate int, period time.Duration) (bool, error) {
	fullKey := keyPrefix + key

	pipe := rl.client.Pipeline()
	incr := pipe.Incr(ctx, fullKey)
	pipe.ExpireNX(ctx, fullKey, period)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, errors.Wrap(err, "rate limit")
	}

	if incr.Val() > int64(rate) {
		observability.RateLimitExceeded.Inc()
		return false, nil
	}
	return true, nil
}
