package beacons

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/bft-labs/beacons/internal/adapters/fs"
	"github.com/bft-labs/beacons/internal/adapters/radio"
	"github.com/bft-labs/beacons/internal/adapters/sqlite"
	"github.com/bft-labs/beacons/internal/adapters/timer"
	"github.com/bft-labs/beacons/internal/app"
	"github.com/bft-labs/beacons/internal/domain"
	"github.com/bft-labs/beacons/internal/ids"
	"github.com/bft-labs/beacons/pkg/log"
)

// Manager owns a set of beacons and the advertising service that keeps them
// on air. Use New to create one and Start before calling beacon operations.
type Manager struct {
	config    Config
	opts      options
	lifecycle *app.Lifecycle[app.State]
	emitter   *eventEmitterWrapper
	events    *broadcaster
	ids       *ids.Generator
	radio     Radio
	logger    log.Logger

	// mu serializes Start and Stop.
	mu        sync.Mutex
	svc       atomic.Pointer[app.Service]
	store     Store
	ownsStore bool
	alarms    AlarmScheduler
	cancel    context.CancelFunc

	// unsaved beacons created through the manager, addressed by UUID.
	// Only touched on the service worker.
	unsaved map[uuid.UUID]*domain.Beacon
}

// New creates a stopped manager.
func New(cfg Config, opts ...Option) (*Manager, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = log.NewNoopLogger()
	}

	r := o.radio
	if r == nil {
		r = radio.NewSimulator(radio.Config{
			Slots:    cfg.RadioSlots,
			Disabled: cfg.RadioDisabled,
			Logger:   logger,
		})
	}

	emitter := &eventEmitterWrapper{handler: o.eventHandler}
	return &Manager{
		config:    cfg,
		opts:      o,
		lifecycle: app.NewManagerLifecycle(logger, emitter),
		emitter:   emitter,
		events:    newBroadcaster(o.eventHandler, o.notifiers),
		ids:       ids.New(),
		radio:     r,
		logger:    logger,
	}, nil
}

// Start opens the store, starts the advertising worker and resumes beacons
// that were active when the manager last ran.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.lifecycle.Is(app.StateStopped, app.StateCrashed) {
		return ErrAlreadyRunning
	}
	if err := m.lifecycle.TransitionTo(app.StateStarting, "Start() called"); err != nil {
		return err
	}

	if err := m.openAdapters(ctx); err != nil {
		_ = m.lifecycle.TransitionTo(app.StateCrashed, err.Error())
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.lifecycle.SetCancel(cancel)
	m.unsaved = make(map[uuid.UUID]*domain.Beacon)
	svc := app.NewService(app.ServiceConfig{
		Store:       m.store,
		Radio:       m.radio,
		Alarms:      m.alarms,
		IDs:         m.ids,
		Notifier:    m.events,
		Logger:      m.logger,
		HostEmitter: m.emitter.host(),
	})
	m.svc.Store(svc)

	m.lifecycle.AddWorker()
	go func(svc *app.Service) {
		defer m.lifecycle.WorkerDone()
		if err := svc.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Error("advertising worker stopped", log.Err(err))
			_ = m.lifecycle.TransitionTo(app.StateCrashed, err.Error())
		}
	}(svc)

	for _, n := range m.opts.notifiers {
		if r, ok := n.(Runner); ok {
			m.lifecycle.AddWorker()
			go func() {
				defer m.lifecycle.WorkerDone()
				_ = r.Run(runCtx)
			}()
		}
	}

	if err := svc.Boot(runCtx); err != nil {
		m.logger.Error("failed to resume beacons", log.Err(err))
	}

	pluginCfg := PluginConfig{
		DataDir: m.config.DataDir,
		Logger:  m.logger,
		Manager: m,
	}
	for _, p := range m.opts.plugins {
		if err := p.Initialize(runCtx, pluginCfg); err != nil {
			m.logger.Error("plugin initialization failed",
				log.String("plugin", p.Name()),
				log.Err(err))
			cancel()
			_ = m.lifecycle.WaitWithTimeout(app.ShutdownTimeout)
			m.closeAdapters()
			_ = m.lifecycle.TransitionTo(app.StateCrashed, "plugin init failed: "+p.Name())
			return err
		}
		m.logger.Info("plugin initialized", log.String("plugin", p.Name()))
	}

	return m.lifecycle.TransitionTo(app.StateRunning, "advertising worker started")
}

// Stop halts every session, keeping desired states so the same beacons
// resume on the next Start, then shuts down plugins and the worker.
// Returns ErrShutdownTimeout if the worker did not exit in time.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.lifecycle.Is(app.StateRunning, app.StateStarting) {
		return ErrNotRunning
	}
	if err := m.lifecycle.TransitionTo(app.StateStopping, "Stop() called"); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), app.ShutdownTimeout)
	defer cancel()

	for i := len(m.opts.plugins) - 1; i >= 0; i-- {
		p := m.opts.plugins[i]
		if err := p.Shutdown(ctx); err != nil {
			m.logger.Error("plugin shutdown failed",
				log.String("plugin", p.Name()),
				log.Err(err))
		} else {
			m.logger.Info("plugin shutdown complete", log.String("plugin", p.Name()))
		}
	}

	if err := m.svc.Load().Shutdown(ctx); err != nil {
		m.logger.Warn("failed to halt sessions", log.Err(err))
	}
	if m.cancel != nil {
		m.cancel()
	}

	err := m.lifecycle.WaitWithTimeout(app.ShutdownTimeout)
	m.closeAdapters()

	if err != nil {
		_ = m.lifecycle.TransitionTo(app.StateCrashed, "shutdown timeout")
		return err
	}
	return m.lifecycle.TransitionTo(app.StateStopped, "graceful shutdown")
}

// Status returns the manager lifecycle state.
func (m *Manager) Status() State {
	return State(m.lifecycle.State())
}

// Running reports whether beacon operations are accepted.
func (m *Manager) Running() bool {
	return m.lifecycle.Is(app.StateRunning)
}

// HostState returns the advertising host state.
func (m *Manager) HostState() HostState {
	svc := m.svc.Load()
	if svc == nil {
		return app.HostIdle
	}
	return svc.HostState()
}

// Subscribe returns a channel of beacon events and a function that ends the
// subscription. Events are dropped for a subscriber whose buffer is full.
func (m *Manager) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	return m.events.subscribe(buffer)
}

func (m *Manager) openAdapters(ctx context.Context) error {
	m.store, m.ownsStore = m.opts.store, false
	if m.store == nil {
		s, err := OpenStore(ctx, m.config)
		if err != nil {
			return err
		}
		m.store, m.ownsStore = s, true
	}

	m.alarms = m.opts.alarms
	if m.alarms == nil {
		m.alarms = timer.New(m.logger)
	}
	return nil
}

// OpenStore opens the store selected by cfg. The caller closes it.
func OpenStore(ctx context.Context, cfg Config) (Store, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		s   Store
		err error
	)
	switch cfg.StoreDriver {
	case StoreFile:
		s, err = fs.Open(cfg.StorePath)
	default:
		s, err = sqlite.Open(ctx, cfg.StorePath)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreDriver, err)
	}
	return s, nil
}

func (m *Manager) closeAdapters() {
	if t, ok := m.alarms.(*timer.Alarms); ok && m.opts.alarms == nil {
		t.Close()
	}
	if m.ownsStore {
		if err := m.store.Close(); err != nil {
			m.logger.Warn("failed to close store", log.Err(err))
		}
	}
}

// do runs fn on the advertising worker.
func (m *Manager) do(ctx context.Context, fn func(ctx context.Context, mc *app.Machine) error) error {
	svc := m.svc.Load()
	if svc == nil || !m.lifecycle.Is(app.StateRunning, app.StateStarting) {
		return ErrNotRunning
	}
	return svc.Do(ctx, func(ctx context.Context) error {
		return fn(ctx, svc.Machine())
	})
}

// resolve finds the instance addressed by ref. Saved beacons that are not
// active are restored from the store as fresh instances.
func (m *Manager) resolve(ctx context.Context, mc *app.Machine, ref Ref) (*domain.Beacon, error) {
	reg := mc.Registry()
	switch {
	case ref.StorageID > 0:
		if b := reg.FindByStorageID(ref.StorageID); b != nil {
			return b, nil
		}
		rec, err := m.store.Get(ctx, ref.StorageID)
		if err != nil {
			return nil, err
		}
		id, seq := m.ids.Next()
		return domain.Restore(rec, id, seq)
	case ref.ID != uuid.Nil:
		if b := reg.FindByID(ref.ID); b != nil {
			return b, nil
		}
		if b, ok := m.unsaved[ref.ID]; ok {
			return b, nil
		}
	}
	return nil, fmt.Errorf("beacon %s: %w", ref, ErrNotFound)
}

func (m *Manager) info(mc *app.Machine, b *domain.Beacon) BeaconInfo {
	b = mc.Resolve(b)
	at, ok := mc.RefreshAt(b)
	return infoOf(b, at, ok)
}

// Create builds a beacon from spec. It is saved and started as spec asks.
func (m *Manager) Create(ctx context.Context, spec Spec) (BeaconInfo, error) {
	payload, err := domain.DecodePayload(spec.Kind, spec.Payload)
	if err != nil {
		return BeaconInfo{}, err
	}
	settings := domain.DefaultSettings()
	settings.Connectable = spec.Connectable
	settings.Flags = spec.Flags
	if spec.Mode != nil {
		settings.Mode = *spec.Mode
	}
	if spec.TxPower != nil {
		settings.TxPower = *spec.TxPower
	}

	var info BeaconInfo
	err = m.do(ctx, func(ctx context.Context, mc *app.Machine) error {
		id, seq := m.ids.Next()
		b := domain.NewBeacon(id, seq, payload, settings, spec.Name)
		m.unsaved[id] = b

		switch {
		case spec.Save:
			if err := mc.Save(ctx, b, spec.Start); err != nil {
				return err
			}
			delete(m.unsaved, id)
		case spec.Start:
			if err := mc.Start(ctx, b); err != nil {
				return err
			}
		}
		info = m.info(mc, b)
		return nil
	})
	return info, err
}

// Get returns a snapshot of the beacon addressed by ref.
func (m *Manager) Get(ctx context.Context, ref Ref) (BeaconInfo, error) {
	var info BeaconInfo
	err := m.do(ctx, func(ctx context.Context, mc *app.Machine) error {
		b, err := m.resolve(ctx, mc, ref)
		if err != nil {
			return err
		}
		info = m.info(mc, b)
		return nil
	})
	return info, err
}

// List returns saved beacons ordered by storage ID, followed by unsaved ones
// in creation order.
func (m *Manager) List(ctx context.Context) ([]BeaconInfo, error) {
	var out []BeaconInfo
	err := m.do(ctx, func(ctx context.Context, mc *app.Machine) error {
		recs, err := m.store.List(ctx)
		if err != nil {
			return err
		}
		for _, r := range recs {
			b := mc.Registry().FindByStorageID(r.StorageID)
			if b == nil {
				id, seq := m.ids.Next()
				if b, err = domain.Restore(r, id, seq); err != nil {
					m.logger.Warn("skipping unreadable beacon", log.Int64("storage_id", r.StorageID), log.Err(err))
					continue
				}
			}
			out = append(out, m.info(mc, b))
		}

		seen := make(map[uuid.UUID]bool)
		var unsaved []*domain.Beacon
		for _, b := range mc.Registry().List() {
			if !b.Persisted() {
				seen[b.ID()] = true
				unsaved = append(unsaved, b)
			}
		}
		for id, b := range m.unsaved {
			if !seen[id] && !b.Persisted() {
				unsaved = append(unsaved, b)
			}
		}
		sort.Slice(unsaved, func(i, j int) bool { return unsaved[i].StableID() < unsaved[j].StableID() })
		for _, b := range unsaved {
			out = append(out, m.info(mc, b))
		}
		return nil
	})
	return out, err
}

// Save persists an unsaved beacon and starts it when start is set. Saving
// a saved beacon changes nothing.
func (m *Manager) Save(ctx context.Context, ref Ref, start bool) (BeaconInfo, error) {
	var info BeaconInfo
	err := m.do(ctx, func(ctx context.Context, mc *app.Machine) error {
		b, err := m.resolve(ctx, mc, ref)
		if err != nil {
			return err
		}
		if err := mc.Save(ctx, b, start); err != nil {
			return err
		}
		delete(m.unsaved, b.ID())
		info = m.info(mc, b)
		return nil
	})
	return info, err
}

// StartBeacon enables the beacon.
func (m *Manager) StartBeacon(ctx context.Context, ref Ref) (BeaconInfo, error) {
	return m.transition(ctx, ref, (*app.Machine).Start)
}

// Pause keeps the beacon active but off air.
func (m *Manager) Pause(ctx context.Context, ref Ref) (BeaconInfo, error) {
	return m.transition(ctx, ref, (*app.Machine).Pause)
}

// StopBeacon stops the beacon. It stays addressable.
func (m *Manager) StopBeacon(ctx context.Context, ref Ref) (BeaconInfo, error) {
	return m.transition(ctx, ref, (*app.Machine).Stop)
}

func (m *Manager) transition(ctx context.Context, ref Ref, fn func(*app.Machine, context.Context, *domain.Beacon) error) (BeaconInfo, error) {
	var info BeaconInfo
	err := m.do(ctx, func(ctx context.Context, mc *app.Machine) error {
		b, err := m.resolve(ctx, mc, ref)
		if err != nil {
			return err
		}
		if err := fn(mc, ctx, b); err != nil {
			return err
		}
		info = m.info(mc, b)
		return nil
	})
	return info, err
}

// Delete stops the beacon and removes it for good.
func (m *Manager) Delete(ctx context.Context, ref Ref) error {
	return m.do(ctx, func(ctx context.Context, mc *app.Machine) error {
		b, err := m.resolve(ctx, mc, ref)
		if err != nil {
			return err
		}
		if err := mc.Delete(ctx, b); err != nil {
			return err
		}
		delete(m.unsaved, b.ID())
		return nil
	})
}

// Edit applies changes. A running beacon is restarted once if a transmitted
// setting changed; renaming never restarts.
func (m *Manager) Edit(ctx context.Context, ref Ref, c Changes) (BeaconInfo, error) {
	var info BeaconInfo
	err := m.do(ctx, func(ctx context.Context, mc *app.Machine) error {
		b, err := m.resolve(ctx, mc, ref)
		if err != nil {
			return err
		}
		ed := mc.Edit(b)
		if c.Mode != nil {
			ed.SetAdvertiseMode(*c.Mode)
		}
		if c.TxPower != nil {
			ed.SetTxPower(*c.TxPower)
		}
		if c.Connectable != nil {
			ed.SetConnectable(*c.Connectable)
		}
		if c.Flags != nil {
			ed.SetFlags(*c.Flags)
		}
		if c.Name != nil {
			ed.SetName(*c.Name)
		}
		if err := ed.Commit(ctx); err != nil {
			return err
		}
		info = m.info(mc, ed.Beacon())
		return nil
	})
	return info, err
}

// SetRadioEnabled powers the radio on or off. It fails with
// ErrUnsupportedPlatform when the radio cannot be switched.
func (m *Manager) SetRadioEnabled(enabled bool) error {
	sw, ok := m.radio.(RadioSwitch)
	if !ok {
		return ErrUnsupportedPlatform
	}
	sw.SetEnabled(enabled)
	return nil
}

// RadioEnabled reports whether the radio is powered on.
func (m *Manager) RadioEnabled() bool {
	return m.radio.Enabled()
}
