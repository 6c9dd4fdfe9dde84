package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bft-labs/beacons/internal/domain"
	"github.com/bft-labs/beacons/pkg/log"
)

// ShutdownTimeout is the maximum time to wait for graceful shutdown.
const ShutdownTimeout = 30 * time.Second

// State is the lifecycle state of a manager.
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
	switch s {
	case StateStopped:
		return "Stopped"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateCrashed:
		return "Crashed"
	default:
		return "Unknown"
	}
}

// ManagerTransitions is the allowed transition table for State.
var ManagerTransitions = map[State][]State{
	StateStopped:  {StateStarting},
	StateStarting: {StateRunning, StateStopping, StateCrashed},
	StateRunning:  {StateStopping, StateCrashed},
	StateStopping: {StateStopped, StateCrashed},
	StateCrashed:  {StateStarting},
}

// HostState is the lifecycle state of the advertising host.
type HostState int

const (
	HostIdle HostState = iota
	HostActivating
	HostActive
	HostDeactivating
)

// String returns a human-readable representation of the state.
func (s HostState) String() string {
	switch s {
	case HostIdle:
		return "Idle"
	case HostActivating:
		return "Activating"
	case HostActive:
		return "Active"
	case HostDeactivating:
		return "Deactivating"
	default:
		return "Unknown"
	}
}

// HostTransitions is the allowed transition table for HostState.
var HostTransitions = map[HostState][]HostState{
	HostIdle:         {HostActivating},
	HostActivating:   {HostActive, HostDeactivating},
	HostActive:       {HostDeactivating},
	HostDeactivating: {HostIdle},
}

// Enum is the constraint for lifecycle state types.
type Enum interface {
	~int
	String() string
}

// Emitter is called when a lifecycle state changes.
type Emitter[S Enum] interface {
	OnStateChange(previous, current S, reason string)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc[S Enum] func(previous, current S, reason string)

// OnStateChange implements Emitter.
func (f EmitterFunc[S]) OnStateChange(previous, current S, reason string) {
	f(previous, current, reason)
}

// Lifecycle is a validated state machine that also tracks the workers and
// cancel function of whatever it governs.
type Lifecycle[S Enum] struct {
	mu      sync.RWMutex
	name    string
	state   S
	allowed map[S][]S
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	logger  log.Logger
	emitter Emitter[S]
}

// NewLifecycle creates a lifecycle starting in initial. Transitions not listed
// in allowed are rejected.
func NewLifecycle[S Enum](name string, initial S, allowed map[S][]S, logger log.Logger, emitter Emitter[S]) *Lifecycle[S] {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Lifecycle[S]{
		name:    name,
		state:   initial,
		allowed: allowed,
		logger:  logger,
		emitter: emitter,
	}
}

// NewManagerLifecycle creates the lifecycle of a manager, starting Stopped.
func NewManagerLifecycle(logger log.Logger, emitter Emitter[State]) *Lifecycle[State] {
	return NewLifecycle("manager", StateStopped, ManagerTransitions, logger, emitter)
}

// NewHostLifecycle creates the lifecycle of the advertising host, starting Idle.
func NewHostLifecycle(logger log.Logger, emitter Emitter[HostState]) *Lifecycle[HostState] {
	return NewLifecycle("host", HostIdle, HostTransitions, logger, emitter)
}

// State returns the current lifecycle state.
func (l *Lifecycle[S]) State() S {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Is reports whether the current state is one of states.
func (l *Lifecycle[S]) Is(states ...S) bool {
	cur := l.State()
	for _, s := range states {
		if s == cur {
			return true
		}
	}
	return false
}

// TransitionTo attempts to move to next. It returns ErrInvalidTransition
// when the table does not allow it.
func (l *Lifecycle[S]) TransitionTo(next S, reason string) error {
	l.mu.Lock()
	prev := l.state
	if !l.allowedLocked(prev, next) {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s %s to %s", domain.ErrInvalidTransition, l.name, prev, next)
	}
	l.state = next
	l.mu.Unlock()

	// Emit outside of lock
	if l.emitter != nil {
		l.emitter.OnStateChange(prev, next, reason)
	}

	l.logger.Info("state transition",
		log.String("lifecycle", l.name),
		log.String("from", prev.String()),
		log.String("to", next.String()),
		log.String("reason", reason),
	)
	return nil
}

func (l *Lifecycle[S]) allowedLocked(from, to S) bool {
	for _, s := range l.allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

// SetCancel stores the cancel function for graceful shutdown.
func (l *Lifecycle[S]) SetCancel(cancel context.CancelFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cancel = cancel
}

// Cancel triggers graceful shutdown.
func (l *Lifecycle[S]) Cancel() {
	l.mu.Lock()
	cancel := l.cancel
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// AddWorker increments the worker count.
func (l *Lifecycle[S]) AddWorker() {
	l.wg.Add(1)
}

// WorkerDone decrements the worker count.
func (l *Lifecycle[S]) WorkerDone() {
	l.wg.Done()
}

// WaitWithTimeout waits for all workers to finish.
// Returns domain.ErrShutdownTimeout if the timeout expires.
func (l *Lifecycle[S]) WaitWithTimeout(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		l.logger.Warn("shutdown timeout, forcing exit",
			log.String("lifecycle", l.name),
			log.Duration("timeout", timeout),
		)
		return domain.ErrShutdownTimeout
	}
}
