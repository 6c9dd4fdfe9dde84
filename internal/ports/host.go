package ports

import "context"

// Host keeps the radio subsystem alive while at least one beacon is active.
// Activate is signalled on the 0 to 1 transition of the active count,
// Deactivate on the 1 to 0 transition. Before the initializer has run,
// persisted beacons are not yet registered, so Activate may be signalled
// again; implementations must treat a repeated Activate as a no-op.
type Host interface {
	Activate(ctx context.Context)
	Deactivate(ctx context.Context)
}
