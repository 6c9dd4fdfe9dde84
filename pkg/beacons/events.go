package beacons

import (
	"context"
	"sync"

	"github.com/bft-labs/beacons/internal/app"
	"github.com/bft-labs/beacons/internal/domain"
)

// State is the lifecycle state of a Manager.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateCrashed
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	return app.State(s).String()
}

// HostState is the state of the advertising host.
type HostState = app.HostState

// StateChangeEvent describes a manager lifecycle transition.
type StateChangeEvent struct {
	Previous State
	Current  State
	Reason   string
}

// HostChangeEvent describes an advertising host transition.
type HostChangeEvent struct {
	Previous HostState
	Current  HostState
	Reason   string
}

// EventHandler receives manager notifications. Handlers are called
// synchronously; beacon events arrive on the advertising worker and must
// return quickly.
type EventHandler interface {
	OnStateChange(StateChangeEvent)
	OnHostChange(HostChangeEvent)
	OnBeaconEvent(Event)
}

// BaseEventHandler implements EventHandler with no-ops. Embed it to handle
// only some events.
type BaseEventHandler struct{}

func (BaseEventHandler) OnStateChange(StateChangeEvent) {}
func (BaseEventHandler) OnHostChange(HostChangeEvent)   {}
func (BaseEventHandler) OnBeaconEvent(Event)            {}

// eventEmitterWrapper adapts EventHandler to the internal emitters.
type eventEmitterWrapper struct {
	handler EventHandler
}

func (e *eventEmitterWrapper) OnStateChange(previous, current app.State, reason string) {
	if e.handler == nil {
		return
	}
	e.handler.OnStateChange(StateChangeEvent{
		Previous: State(previous),
		Current:  State(current),
		Reason:   reason,
	})
}

func (e *eventEmitterWrapper) host() app.Emitter[app.HostState] {
	return app.EmitterFunc[app.HostState](func(previous, current app.HostState, reason string) {
		if e.handler == nil {
			return
		}
		e.handler.OnHostChange(HostChangeEvent{Previous: previous, Current: current, Reason: reason})
	})
}

// broadcaster fans beacon events out to the handler, the configured
// notifiers and live subscribers.
type broadcaster struct {
	handler   EventHandler
	notifiers []Notifier

	mu   sync.Mutex
	next int
	subs map[int]chan Event
}

func newBroadcaster(handler EventHandler, notifiers []Notifier) *broadcaster {
	return &broadcaster{handler: handler, notifiers: notifiers, subs: make(map[int]chan Event)}
}

// Notify implements ports.Notifier.
func (b *broadcaster) Notify(ctx context.Context, e domain.Event) {
	if b.handler != nil {
		b.handler.OnBeaconEvent(e)
	}
	for _, n := range b.notifiers {
		n.Notify(ctx, e)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *broadcaster) subscribe(buffer int) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Event, buffer)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
}
