// Package refresh tracks when each beacon's rotating content must be
// recreated and arms the matching alarms.
package refresh

import (
	"sync"
	"time"

	"github.com/bft-labs/beacons/internal/ports"
	"github.com/bft-labs/beacons/pkg/log"
)

// Coordinator keeps at most one wake time per beacon key.
type Coordinator struct {
	mu     sync.Mutex
	alarms ports.AlarmScheduler
	logger log.Logger
	wakes  map[string]time.Time
}

// New returns a coordinator driving alarms.
func New(alarms ports.AlarmScheduler, logger log.Logger) *Coordinator {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Coordinator{
		alarms: alarms,
		logger: logger,
		wakes:  make(map[string]time.Time),
	}
}

// Schedule arms a wake for key at the given time, cancelling any earlier one.
func (c *Coordinator) Schedule(key string, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.wakes[key]; ok {
		c.alarms.CancelWake(key)
	}
	c.wakes[key] = at
	c.alarms.ScheduleWake(key, at)
	c.logger.Debug("refresh scheduled", log.String("key", key), log.Time("at", at))
}

// Cancel disarms the wake for key. It does nothing when none is scheduled.
func (c *Coordinator) Cancel(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.wakes[key]; !ok {
		return
	}
	delete(c.wakes, key)
	c.alarms.CancelWake(key)
	c.logger.Debug("refresh cancelled", log.String("key", key))
}

// Rekey moves a pending wake from oldKey to newKey, used when a beacon is
// saved and its address changes from the ephemeral to the storage form.
func (c *Coordinator) Rekey(oldKey, newKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	at, ok := c.wakes[oldKey]
	if !ok || oldKey == newKey {
		return
	}
	delete(c.wakes, oldKey)
	c.alarms.CancelWake(oldKey)

	if _, exists := c.wakes[newKey]; exists {
		c.alarms.CancelWake(newKey)
	}
	c.wakes[newKey] = at
	c.alarms.ScheduleWake(newKey, at)
}

// Fired forgets the wake for key after its alarm went off. It reports whether
// the wake was still pending; a false result means it was cancelled or
// replaced in the meantime.
func (c *Coordinator) Fired(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.wakes[key]; !ok {
		return false
	}
	delete(c.wakes, key)
	return true
}

// Scheduled returns the pending wake time for key.
func (c *Coordinator) Scheduled(key string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	at, ok := c.wakes[key]
	return at, ok
}

// Pending returns the number of armed wakes.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.wakes)
}
