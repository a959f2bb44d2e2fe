// Package ratelimit throttles flag submissions with a fixed-window counter:
// a window resets to 1 on first use or natural expiry, so bursts are allowed
// until the quota is spent and submissions resume when the window lapses.
package ratelimit

import "context"

// Limiter is the capability the scoring engine depends on. The in-memory
// implementation covers single-instance deployments; the Redis one makes the
// limit global across instances.
type Limiter interface {
	// Allow consumes one slot for key and reports whether the request is
	// within quota. A rejected request does not consume further quota.
	Allow(ctx context.Context, key string) (bool, error)

	// Remaining reports how many slots key has left in the current window.
	Remaining(ctx context.Context, key string) (int, error)
}
