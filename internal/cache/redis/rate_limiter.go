package redis

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/safearb/internal/domain"
)

//go:embed scripts/sliding_window.lua
var slidingWindowLua string

// keyPrefix namespaces limiter keys away from the locks and streams sharing
// the same Redis.
const keyPrefix = "ratelimit:"

// RateLimiter implements domain.RateLimiter with a sorted-set sliding window
// evaluated atomically in Lua. The API server holds each client IP to its
// request budget through this type.
type RateLimiter struct {
	rdb    *redis.Client
	script *redis.Script
}

// NewRateLimiter creates a RateLimiter backed by the given Client.
func NewRateLimiter(c *Client) *RateLimiter {
	return &RateLimiter{
		rdb:    c.Underlying(),
		script: redis.NewScript(slidingWindowLua),
	}
}

// Allow reports whether one more request under key fits in the window, and
// counts it when it does. The window position is microsecond-granular so
// sub-second windows behave.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	res, err := rl.script.Run(ctx, rl.rdb,
		[]string{keyPrefix + key},
		time.Now().UnixMicro(), window.Microseconds(), limit,
	).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("redis: rate limit %s: %w", key, err)
	}
	if len(res) < 2 {
		return false, fmt.Errorf("redis: rate limit %s: unexpected script result %v", key, res)
	}
	return res[0] == 1, nil
}

// Compile-time interface check.
var _ domain.RateLimiter = (*RateLimiter)(nil)
