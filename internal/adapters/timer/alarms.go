// Package timer implements ports.AlarmScheduler with in-process timers.
package timer

import (
	"sync"
	"time"

	"github.com/bft-labs/beacons/pkg/log"
)

type alarm struct {
	timer *time.Timer
}

// Alarms arms one time.Timer per key. Wakes are lost when the process exits;
// the refresh coordinator re-arms them when beacons are restored.
type Alarms struct {
	mu      sync.Mutex
	timers  map[string]*alarm
	handler func(string)
	now     func() time.Time
	logger  log.Logger
}

// New creates an empty scheduler.
func New(logger log.Logger) *Alarms {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Alarms{
		timers: make(map[string]*alarm),
		now:    time.Now,
		logger: logger,
	}
}

// SetHandler implements ports.AlarmScheduler.
func (a *Alarms) SetHandler(fn func(string)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handler = fn
}

// ScheduleWake implements ports.AlarmScheduler. Times in the past fire
// immediately.
func (a *Alarms) ScheduleWake(key string, at time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if old, ok := a.timers[key]; ok {
		old.timer.Stop()
	}
	w := &alarm{}
	w.timer = time.AfterFunc(at.Sub(a.now()), func() { a.fire(key, w) })
	a.timers[key] = w
}

// CancelWake implements ports.AlarmScheduler.
func (a *Alarms) CancelWake(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if w, ok := a.timers[key]; ok {
		w.timer.Stop()
		delete(a.timers, key)
	}
}

// Pending returns the number of armed alarms.
func (a *Alarms) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.timers)
}

// Close stops every timer.
func (a *Alarms) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for k, w := range a.timers {
		w.timer.Stop()
		delete(a.timers, k)
	}
}

func (a *Alarms) fire(key string, w *alarm) {
	a.mu.Lock()
	// A replaced or cancelled timer may still fire once.
	if a.timers[key] != w {
		a.mu.Unlock()
		return
	}
	delete(a.timers, key)
	fn := a.handler
	a.mu.Unlock()

	if fn == nil {
		a.logger.Warn("alarm fired without handler", log.String("key", key))
		return
	}
	fn(key)
}
