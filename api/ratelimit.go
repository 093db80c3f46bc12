package api

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRateLimitMax    = 10
	defaultRateLimitWindow = 60 * time.Second
	rateLimitKeyPrefix     = "ratelimit:"
)

// The first hit in a window creates the counter and starts its expiry; later
// hits only increment, so the window is fixed rather than sliding.
var fixedWindowScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// RedisLimiter is a fixed window request counter shared by all instances.
type RedisLimiter struct {
	client *redis.Client
	max    int64
	window time.Duration
}

func NewRedisLimiter(client *redis.Client, max int, window time.Duration) *RedisLimiter {
	if max <= 0 {
		max = defaultRateLimitMax
	}
	if window <= 0 {
		window = defaultRateLimitWindow
	}
	return &RedisLimiter{client: client, max: int64(max), window: window}
}

// Allow counts the request against key. On Redis errors the request is allowed
// and the error returned for logging.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	n, err := fixedWindowScript.Run(ctx, l.client, []string{rateLimitKeyPrefix + key}, l.window.Milliseconds()).Int64()
	if err != nil {
		return true, err
	}
	return n <= l.max, nil
}
