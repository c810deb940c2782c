package threat

import (
	"context"
	"time"
)

// RunTimer calls fire after a random interval between MinInterval and
// MaxInterval, repeatedly, until ctx is cancelled. The session runs it only
// while this peer coordinates the room.
func (c *Controller) RunTimer(ctx context.Context, fire func(context.Context)) {
	if c == nil || fire == nil {
		return
	}
	for {
		wait := c.nextInterval()
		select {
		case <-ctx.Done():
			return
		case <-c.deps.After(wait):
		}
		if ctx.Err() != nil {
			return
		}
		fire(ctx)
	}
}

func (c *Controller) nextInterval() time.Duration {
	lo, hi := c.cfg.MinInterval, c.cfg.MaxInterval
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(c.deps.Rand.Range(0, float64(hi-lo)))
}
