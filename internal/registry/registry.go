// Package registry tracks the set of active beacons.
//
// A beacon is active when its desired state is not Stopped. The registry
// holds references, never copies, and never creates or destroys beacons.
// At most one entry exists per logical beacon: two instances with the same
// storage ID, or both unsaved with the same ephemeral ID, are the same entry.
//
// Add and Remove report the boundary crossings of the member count so the
// caller can signal the host only on the 0 to 1 and 1 to 0 edges.
package registry

import (
	"sync"

	"github.com/google/uuid"

	"github.com/bft-labs/beacons/internal/domain"
)

// Registry is safe for concurrent readers. Mutation is expected to happen
// from a single goroutine.
type Registry struct {
	mu      sync.RWMutex
	members []*domain.Beacon
	ready   bool
}

// New returns an empty registry in the NotReady state.
func New() *Registry {
	return &Registry{}
}

// Add registers b. It reports true when b is the first member. Adding a
// beacon whose logical twin is already registered is a no-op.
func (r *Registry) Add(b *domain.Beacon) (first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexLocked(b) >= 0 {
		return false
	}
	r.members = append(r.members, b)
	return len(r.members) == 1
}

// Remove unregisters the entry for b's logical beacon. It reports true when
// the registry became empty as a result.
func (r *Registry) Remove(b *domain.Beacon) (last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexLocked(b)
	if i < 0 {
		return false
	}
	r.members = append(r.members[:i], r.members[i+1:]...)
	return len(r.members) == 0
}

// Resolve returns the registered instance for b's logical beacon, or nil.
func (r *Registry) Resolve(b *domain.Beacon) *domain.Beacon {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if i := r.indexLocked(b); i >= 0 {
		return r.members[i]
	}
	return nil
}

// FindByStorageID returns the member with the given storage ID, or nil.
func (r *Registry) FindByStorageID(id int64) *domain.Beacon {
	if id <= 0 {
		return nil
	}
	return r.find(func(b *domain.Beacon) bool { return b.StorageID() == id })
}

// FindByID returns the member with the given ephemeral ID, or nil.
func (r *Registry) FindByID(id uuid.UUID) *domain.Beacon {
	return r.find(func(b *domain.Beacon) bool { return b.ID() == id })
}

// Find resolves a notification identity.
func (r *Registry) Find(id domain.Identity) *domain.Beacon {
	if id.Persisted() {
		return r.FindByStorageID(id.StorageID)
	}
	return r.FindByID(id.ID)
}

// FindByKey resolves a key produced by domain.Beacon.Key.
func (r *Registry) FindByKey(key string) *domain.Beacon {
	return r.find(func(b *domain.Beacon) bool { return b.Key() == key })
}

// FindBySession returns the member bound to s, or nil.
func (r *Registry) FindBySession(s domain.Session) *domain.Beacon {
	if s == nil {
		return nil
	}
	return r.find(func(b *domain.Beacon) bool { return b.Session() == s })
}

// Count returns the number of members.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// List returns a snapshot of the members in registration order.
func (r *Registry) List() []*domain.Beacon {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Beacon, len(r.members))
	copy(out, r.members)
	return out
}

// Ready reports whether the one-time initial load has completed.
func (r *Registry) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ready
}

// MarkReady moves the registry from NotReady to Ready. There is no way back.
func (r *Registry) MarkReady() {
	r.mu.Lock()
	r.ready = true
	r.mu.Unlock()
}

func (r *Registry) find(match func(*domain.Beacon) bool) *domain.Beacon {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, b := range r.members {
		if match(b) {
			return b
		}
	}
	return nil
}

func (r *Registry) indexLocked(b *domain.Beacon) int {
	for i, m := range r.members {
		if m.Same(b) {
			return i
		}
	}
	return -1
}
