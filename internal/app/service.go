package app

import (
	"context"
	"time"

	"github.com/bft-labs/beacons/internal/domain"
	"github.com/bft-labs/beacons/internal/ports"
	"github.com/bft-labs/beacons/internal/refresh"
	"github.com/bft-labs/beacons/internal/registry"
	"github.com/bft-labs/beacons/pkg/log"
)

// ServiceConfig holds the adapters the advertising service runs on.
type ServiceConfig struct {
	Store    ports.BeaconStore
	Radio    ports.RadioProvider
	Alarms   ports.AlarmScheduler
	IDs      ports.IDGenerator
	Notifier ports.Notifier
	Clock    func() time.Time
	Logger   log.Logger

	// HostEmitter receives host lifecycle transitions.
	HostEmitter Emitter[HostState]
}

// Service is the host that keeps the radio busy while beacons are active.
//
// It owns the queue every transition runs on. Radio callbacks, alarms and
// user requests are all posted to it, so the machine never sees two
// transitions at once. Each state notification posts a reconciliation that
// runs after the transition that produced it.
type Service struct {
	queue    *Queue
	machine  *Machine
	registry *registry.Registry
	store    ports.BeaconStore
	radio    ports.RadioProvider
	ids      ports.IDGenerator
	host     *Lifecycle[HostState]
	notifier ports.Notifier
	logger   log.Logger
}

// NewService wires the machine, registry and refresh coordinator around the
// given adapters and registers itself as radio and alarm listener.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNoopLogger()
	}

	s := &Service{
		queue:    NewQueue(logger),
		registry: registry.New(),
		store:    cfg.Store,
		radio:    cfg.Radio,
		ids:      cfg.IDs,
		notifier: cfg.Notifier,
		logger:   logger,
	}
	s.host = NewHostLifecycle(logger, cfg.HostEmitter)
	s.machine = NewMachine(MachineDeps{
		Registry: s.registry,
		Store:    cfg.Store,
		Radio:    cfg.Radio,
		Host:     s,
		Refresh:  refresh.New(cfg.Alarms, logger),
		Notifier: ports.NotifierFunc(s.onEvent),
		Listener: s,
		Clock:    cfg.Clock,
		Logger:   logger,
	})

	cfg.Radio.SetAvailabilityListener(s)
	cfg.Alarms.SetHandler(s.onAlarm)
	return s
}

// Machine returns the lifecycle machine. Only call it from queued tasks.
func (s *Service) Machine() *Machine {
	return s.machine
}

// Registry returns the active registry.
func (s *Service) Registry() *registry.Registry {
	return s.registry
}

// HostState returns the current host lifecycle state.
func (s *Service) HostState() HostState {
	return s.host.State()
}

// Run executes queued work until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	return s.queue.Run(ctx)
}

// Do runs fn on the worker and waits for it.
func (s *Service) Do(ctx context.Context, fn Task) error {
	return s.queue.Do(ctx, fn)
}

// Post queues fn without waiting.
func (s *Service) Post(fn Task) {
	s.queue.Post(fn)
}

// Boot activates the host when the store holds beacons that were active
// when the process last ran.
func (s *Service) Boot(ctx context.Context) error {
	return s.Do(ctx, func(ctx context.Context) error {
		recs, err := s.store.List(ctx)
		if err != nil {
			return err
		}
		for _, r := range recs {
			if r.Desired != domain.StateStopped {
				s.Activate(ctx)
				return nil
			}
		}
		return nil
	})
}

// Shutdown stops every session without changing desired states, so the
// same beacons resume on the next boot.
func (s *Service) Shutdown(ctx context.Context) error {
	return s.Do(ctx, func(ctx context.Context) error {
		for _, b := range s.registry.List() {
			s.machine.Halt(ctx, b, domain.AdvertiseStopped)
		}
		return nil
	})
}

// Activate implements ports.Host. The one-time initializer is queued behind
// the transition that requested activation.
func (s *Service) Activate(ctx context.Context) {
	if err := s.host.TransitionTo(HostActivating, "beacon activated"); err != nil {
		return
	}
	s.queue.Post(func(ctx context.Context) error {
		if s.host.State() != HostActivating {
			return nil
		}
		s.initialize(ctx)
		return s.host.TransitionTo(HostActive, "initialized")
	})
}

// Deactivate implements ports.Host.
func (s *Service) Deactivate(ctx context.Context) {
	if err := s.host.TransitionTo(HostDeactivating, "no active beacons"); err != nil {
		return
	}
	_ = s.host.TransitionTo(HostIdle, "deactivated")
}

// initialize restores persisted active beacons once per process and then
// reconciles every registered beacon.
func (s *Service) initialize(ctx context.Context) {
	if !s.registry.Ready() {
		recs, err := s.store.List(ctx)
		if err != nil {
			s.logger.Error("failed to load beacons", log.Err(err))
		}
		restored := 0
		for _, r := range recs {
			if r.Desired == domain.StateStopped {
				continue
			}
			id, seq := s.ids.Next()
			b, err := domain.Restore(r, id, seq)
			if err != nil {
				s.logger.Warn("skipping unreadable beacon", log.Int64("storage_id", r.StorageID), log.Err(err))
				continue
			}
			if s.machine.Register(ctx, b) {
				restored++
			}
		}
		s.registry.MarkReady()
		s.logger.Info("registry ready", log.Int("restored", restored), log.Int("active", s.registry.Count()))
	}

	for _, b := range s.registry.List() {
		s.machine.Reconcile(ctx, b.Identity())
	}
}

// OnSessionFailed implements ports.SessionListener.
func (s *Service) OnSessionFailed(sess domain.Session, code int) {
	s.queue.Post(func(ctx context.Context) error {
		b := s.registry.FindBySession(sess)
		if b == nil {
			s.logger.Debug("failure for unknown session", log.Int("code", code))
			return nil
		}
		s.machine.OnAdvertiseFailed(ctx, b, code)
		return nil
	})
}

// OnRadioEnabled implements ports.AvailabilityListener.
func (s *Service) OnRadioEnabled() {
	s.queue.Post(func(ctx context.Context) error {
		s.logger.Info("radio enabled", log.Int("active", s.registry.Count()))
		for _, b := range s.registry.List() {
			s.machine.OnRadioEnabled(ctx, b)
		}
		return nil
	})
}

// OnRadioDisabled implements ports.AvailabilityListener.
func (s *Service) OnRadioDisabled() {
	s.queue.Post(func(ctx context.Context) error {
		var total uint64
		for _, b := range s.registry.List() {
			total += s.machine.OnRadioDisabled(ctx, b)
		}
		s.logger.Info("radio disabled", log.Uint64("packets", total))
		return nil
	})
}

func (s *Service) onAlarm(key string) {
	s.queue.Post(func(ctx context.Context) error {
		s.machine.Refresh(ctx, key)
		return nil
	})
}

func (s *Service) onEvent(ctx context.Context, e domain.Event) {
	id := e.Identity
	s.queue.Post(func(ctx context.Context) error {
		s.machine.Reconcile(ctx, id)
		return nil
	})
	if s.notifier != nil {
		s.notifier.Notify(ctx, e)
	}
}
