package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a fixed-window limiter backed by a shared Redis counter, for
// multi-instance deployments where per-process maps would make the limit
// per-instance instead of global.
type Redis struct {
	client *redis.Client
	max    int
	window time.Duration
}

// NewRedis creates a Redis-backed limiter using the given client.
func NewRedis(client *redis.Client, max int, window time.Duration) *Redis {
	return &Redis{client: client, max: max, window: window}
}

func (r *Redis) key(key string) string {
	return "ratelimit:" + key
}

// Allow implements Limiter. INCR creates the counter at 1; the expiry is set
// only on that first increment so the window is fixed, not sliding.
func (r *Redis) Allow(ctx context.Context, key string) (bool, error) {
	k := r.key(key)

	count, err := r.client.Incr(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}

	if count == 1 {
		if err := r.client.Expire(ctx, k, r.window).Err(); err != nil {
			return false, fmt.Errorf("failed to set rate limit window: %w", err)
		}
	}

	if count > int64(r.max) {
		// Undo the consumed slot so rejected requests do not eat quota.
		r.client.Decr(ctx, k)
		return false, nil
	}

	return true, nil
}

// Remaining implements Limiter.
func (r *Redis) Remaining(ctx context.Context, key string) (int, error) {
	count, err := r.client.Get(ctx, r.key(key)).Int()
	if err == redis.Nil {
		return r.max, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read rate limit counter: %w", err)
	}
	if count >= r.max {
		return 0, nil
	}
	return r.max - count, nil
}
