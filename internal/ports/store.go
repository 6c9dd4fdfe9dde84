package ports

import (
	"context"

	"github.com/bft-labs/beacons/internal/domain"
)

// BeaconStore persists beacon records.
// Implementations must tolerate calls for IDs that were never inserted.
type BeaconStore interface {
	// Insert stores a new record and returns its storage ID (> 0).
	// The StorageID field of r is ignored.
	Insert(ctx context.Context, r domain.Record) (int64, error)

	// Update overwrites the configuration of an existing record.
	// Unknown IDs are a no-op.
	Update(ctx context.Context, r domain.Record) error

	// UpdateState writes only the desired state.
	// Unknown IDs are a no-op.
	UpdateState(ctx context.Context, id int64, s domain.ActiveState) error

	// Delete removes a record. Unknown IDs are a no-op.
	Delete(ctx context.Context, id int64) error

	// Get returns one record or domain.ErrNotFound.
	Get(ctx context.Context, id int64) (domain.Record, error)

	// List returns every record ordered by storage ID.
	List(ctx context.Context) ([]domain.Record, error)

	// Close releases the underlying resources.
	Close() error
}
