package http

import (
	"context"
	"math/rand"
	"time"
)

// Retry delays used when WebhookConfig leaves them unset.
const (
	DefaultBackoffInitial = 500 * time.Millisecond
	DefaultBackoffMax     = 10 * time.Second
)

// retryDelay returns the pause before retry number attempt (1-based):
// initial doubled per attempt, capped at max, with up to 20% jitter either way.
func retryDelay(attempt int, initial, max time.Duration) time.Duration {
	d := initial
	for i := 1; i < attempt && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	jitter := float64(d) * 0.2 * (rand.Float64()*2 - 1)
	return d + time.Duration(jitter)
}

// sleepCtx waits for d or until ctx ends.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
