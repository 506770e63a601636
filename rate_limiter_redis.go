package iam

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/redis/go-redis/v9"
)

const defaultRedisRateLimitPrefix = "iam:reset:cooldown:"

// RedisRateLimiter shares cooldown state across instances. Each allowed
// request is a single SET NX PX, so the check and the write are atomic on
// the server and the key expires when the cooldown ends.
type RedisRateLimiter struct {
	client   redis.Cmdable
	cooldown time.Duration
	prefix   string
	now      func() time.Time
}

// NewRedisRateLimiter returns a limiter backed by client
func NewRedisRateLimiter(client redis.Cmdable, cooldown time.Duration, prefix string) *RedisRateLimiter {
	if prefix == "" {
		prefix = defaultRedisRateLimitPrefix
	}
	return &RedisRateLimiter{
		client:   client,
		cooldown: cooldown,
		prefix:   prefix,
		now:      time.Now,
	}
}

var _ RateLimiter = (*RedisRateLimiter)(nil)

func (rl *RedisRateLimiter) AllowRequest(ctx context.Context, email string) (bool, error) {
	if rl.cooldown <= 0 {
		return true, nil
	}

	key := rl.prefix + normalizeEmail(email)
	ok, err := rl.client.SetNX(ctx, key, rl.now().UTC().Format(time.RFC3339Nano), rl.cooldown).Result()
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "rate limiter store unavailable").
			WithMetadata(map[string]any{"key": key})
	}

	return ok, nil
}
