package ports

import (
	"context"

	"github.com/bft-labs/beacons/internal/domain"
)

// Notifier delivers beacon events. Delivery is fire-and-forget; at-least-once
// is acceptable and implementations must not block the caller for long.
type Notifier interface {
	Notify(ctx context.Context, e domain.Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, e domain.Event)

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, e domain.Event) {
	f(ctx, e)
}
