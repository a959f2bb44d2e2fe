// Package cleanup runs the periodic maintenance loop: expired rate-limit
// windows are swept so idle keys do not accumulate for the whole event.
package cleanup

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper is a store that can drop its expired entries.
type Sweeper interface {
	Sweep() int
	Len() int
}

// Cleaner handles periodic cleanup of expired state.
type Cleaner struct {
	sweepers []Sweeper
	interval time.Duration
}

// NewCleaner creates a new cleanup worker.
func NewCleaner(interval time.Duration, sweepers ...Sweeper) *Cleaner {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	return &Cleaner{
		sweepers: sweepers,
		interval: interval,
	}
}

// Start begins the cleanup worker in a goroutine.
func (c *Cleaner) Start(ctx context.Context) {
	go c.run(ctx)
}

// run is the main loop for the cleanup worker.
func (c *Cleaner) run(ctx context.Context) {
	slog.Info("cleanup worker started", "interval", c.interval)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// Run immediately on start
	c.cleanup()

	for {
		select {
		case <-ctx.Done():
			slog.Info("cleanup worker stopped")
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

// cleanup sweeps every registered store.
func (c *Cleaner) cleanup() {
	slog.Debug("running cleanup cycle")

	for _, s := range c.sweepers {
		if deleted := s.Sweep(); deleted > 0 {
			slog.Info("swept expired entries", "deleted", deleted, "remaining", s.Len())
		}
	}
}
