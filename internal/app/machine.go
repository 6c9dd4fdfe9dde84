package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bft-labs/beacons/internal/domain"
	"github.com/bft-labs/beacons/internal/ports"
	"github.com/bft-labs/beacons/internal/refresh"
	"github.com/bft-labs/beacons/internal/registry"
	"github.com/bft-labs/beacons/pkg/log"
)

// MachineDeps are the collaborators of a Machine.
type MachineDeps struct {
	Registry *registry.Registry
	Store    ports.BeaconStore
	Radio    ports.RadioProvider
	Host     ports.Host
	Refresh  *refresh.Coordinator
	Notifier ports.Notifier
	Listener ports.SessionListener
	Clock    func() time.Time
	Logger   log.Logger
}

// Machine drives the desired and observed state of beacons.
//
// Every method must be called from the same goroutine; the advertising
// service runs them on its queue worker. Radio failures never surface as
// errors here. They are absorbed into Pause or Stop plus the error fields
// recorded on the beacon.
type Machine struct {
	registry *registry.Registry
	store    ports.BeaconStore
	radio    ports.RadioProvider
	host     ports.Host
	refresh  *refresh.Coordinator
	notifier ports.Notifier
	listener ports.SessionListener
	now      func() time.Time
	logger   log.Logger
}

// NewMachine wires a machine. Registry, Store, Radio and Refresh are required.
func NewMachine(d MachineDeps) *Machine {
	m := &Machine{
		registry: d.Registry,
		store:    d.Store,
		radio:    d.Radio,
		host:     d.Host,
		refresh:  d.Refresh,
		notifier: d.Notifier,
		listener: d.Listener,
		now:      d.Clock,
		logger:   d.Logger,
	}
	if m.host == nil {
		m.host = nopHost{}
	}
	if m.notifier == nil {
		m.notifier = ports.NotifierFunc(func(context.Context, domain.Event) {})
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.logger == nil {
		m.logger = log.NewNoopLogger()
	}
	return m
}

// Registry returns the active registry the machine maintains.
func (m *Machine) Registry() *registry.Registry {
	return m.registry
}

// Start requests desired state Enabled. It fails with
// domain.ErrUnsupportedPlatform when the radio cannot advertise, leaving the
// beacon untouched. The host is activated before the first beacon becomes
// active.
func (m *Machine) Start(ctx context.Context, b *domain.Beacon) error {
	if !m.radio.Supported() {
		return domain.ErrUnsupportedPlatform
	}
	if m.registry.Count() == 0 {
		m.logger.Debug("activating host", fields(b)...)
		m.host.Activate(ctx)
	}
	return m.setState(ctx, b, domain.StateEnabled, true)
}

// Pause requests desired state Paused.
func (m *Machine) Pause(ctx context.Context, b *domain.Beacon) error {
	return m.setState(ctx, b, domain.StatePaused, true)
}

// Stop requests desired state Stopped. The beacon stays registered until
// the next reconciliation removes it.
func (m *Machine) Stop(ctx context.Context, b *domain.Beacon) error {
	m.refresh.Cancel(b.Key())
	return m.setState(ctx, b, domain.StateStopped, true)
}

// SetState requests target with persistence. It is the entry point for
// callers that hold a state value rather than a verb.
func (m *Machine) SetState(ctx context.Context, b *domain.Beacon, target domain.ActiveState) error {
	switch target {
	case domain.StateEnabled:
		return m.Start(ctx, b)
	case domain.StateStopped:
		return m.Stop(ctx, b)
	default:
		return m.setState(ctx, b, target, true)
	}
}

// Delete stops the beacon, tears down its session, removes it from the
// registry and deletes its record. b stays usable as an orphaned value.
func (m *Machine) Delete(ctx context.Context, b *domain.Beacon) error {
	auth := m.Resolve(b)
	if auth.Desired() != domain.StateStopped {
		if err := m.setState(ctx, auth, domain.StateStopped, false); err != nil {
			return err
		}
	}

	for _, inst := range distinct(auth, b) {
		m.Halt(ctx, inst, domain.AdvertiseStopped)
		inst.SetDesired(domain.StateStopped)
	}

	if m.registry.Remove(auth) {
		m.host.Deactivate(ctx)
	}

	if !auth.Persisted() {
		return nil
	}
	if err := m.store.Delete(ctx, auth.StorageID()); err != nil {
		return fmt.Errorf("delete beacon %d: %w", auth.StorageID(), err)
	}
	m.logger.Info("beacon deleted", fields(auth)...)
	return nil
}

// Save persists an unsaved beacon and optionally starts it. It does nothing
// once the beacon has a storage ID.
func (m *Machine) Save(ctx context.Context, b *domain.Beacon, startAfter bool) error {
	if b.Persisted() {
		return nil
	}

	oldKey := b.Key()
	now := m.now()
	rec := b.Record()
	rec.CreatedAt, rec.UpdatedAt = now, now

	id, err := m.store.Insert(ctx, rec)
	if err != nil {
		return fmt.Errorf("insert beacon: %w", err)
	}
	b.AssignStorageID(id, now)
	m.refresh.Rekey(oldKey, b.Key())
	m.logger.Info("beacon saved", fields(b)...)

	if startAfter {
		return m.Start(ctx, b)
	}
	return nil
}

// setState applies target to the authoritative instance of b.
func (m *Machine) setState(ctx context.Context, b *domain.Beacon, target domain.ActiveState, persist bool) error {
	if !target.Valid() {
		return fmt.Errorf("%w: %d", domain.ErrInvalidState, int(target))
	}

	auth := m.registry.Resolve(b)
	if auth == nil {
		// Persisted beacons are picked up by the host initializer until the
		// registry is ready; unsaved ones never would be.
		if target != domain.StateStopped && (m.registry.Ready() || !b.Persisted()) {
			m.registry.Add(b)
			m.emit(ctx, domain.EventActiveAdded, b, target)
		}
		auth = b
	}

	if auth.Desired() == target {
		return nil
	}

	auth.SetDesired(target)
	auth.Touch(m.now())
	if persist && auth.Persisted() {
		if err := m.store.UpdateState(ctx, auth.StorageID(), target); err != nil {
			m.logger.Error("failed to persist desired state",
				append(fields(auth), log.Stringer("state", target), log.Err(err))...)
		}
	}

	m.logger.Info("desired state changed", append(fields(auth), log.Stringer("state", target))...)
	m.emit(ctx, domain.EventStateChanged, auth, target)
	return nil
}

// OnRadioDisabled parks b after the radio was switched off and returns the
// number of packets its session had sent. The refresh is cancelled before
// the session is released.
func (m *Machine) OnRadioDisabled(ctx context.Context, b *domain.Beacon) uint64 {
	m.refresh.Cancel(b.Key())

	var packets uint64
	if s := b.Session(); s != nil {
		packets = s.PacketCount()
		s.ClearPacketCount()
	}
	b.Unbind(domain.AdvertiseRadioUnavailable)
	return packets
}

// OnRadioEnabled resumes b after the radio was switched on.
func (m *Machine) OnRadioEnabled(ctx context.Context, b *domain.Beacon) {
	switch b.Desired() {
	case domain.StateEnabled:
		m.Advertise(ctx, b)
	case domain.StatePaused:
		b.SetObserved(domain.AdvertiseStopped)
	}
}

// OnAdvertiseFailed classifies a radio failure. Too many concurrent
// advertisers pauses the beacon so it can be resumed later; anything else
// stops it.
func (m *Machine) OnAdvertiseFailed(ctx context.Context, b *domain.Beacon, code int) {
	var err error
	if domain.Retryable(code) {
		err = m.Pause(ctx, b)
	} else {
		err = m.Stop(ctx, b)
	}
	if err != nil {
		m.logger.Error("failed to apply failure policy", append(fields(b), log.Err(err))...)
	}

	m.refresh.Cancel(b.Key())
	b.Unbind(domain.AdvertiseStopped)
	b.SetError(code)
	m.logger.Warn("advertise failed",
		append(fields(b), log.Int("code", code), log.String("reason", b.ErrorDetails()))...)
}

// Restart tears down and recreates the session of a running beacon so new
// settings take effect. The intermediate Paused state is neither persisted
// nor announced.
func (m *Machine) Restart(ctx context.Context, b *domain.Beacon) error {
	if b.Observed() != domain.AdvertiseRunning {
		return nil
	}
	b.SetDesired(domain.StatePaused)
	m.Halt(ctx, b, domain.AdvertiseStopped)
	return m.setState(ctx, b, domain.StateEnabled, false)
}

// Advertise (re)creates the session of b. A synchronous start failure goes
// through OnAdvertiseFailed like an asynchronous one, unless the radio is off:
// then b waits as RadioUnavailable with its desired state untouched.
func (m *Machine) Advertise(ctx context.Context, b *domain.Beacon) {
	if !m.radio.Enabled() {
		m.Halt(ctx, b, domain.AdvertiseRadioUnavailable)
		return
	}
	m.Halt(ctx, b, domain.AdvertiseStopped)
	b.ClearError()

	s, err := m.radio.StartSession(ctx, b, m.listener)
	if err != nil {
		if !m.radio.Enabled() {
			m.Halt(ctx, b, domain.AdvertiseRadioUnavailable)
			m.logger.Debug("radio switched off during start", append(fields(b), log.Err(err))...)
			return
		}
		code := domain.FailureInternalError
		var ae *domain.AdvertiseError
		if errors.As(err, &ae) {
			code = ae.Code
		}
		m.OnAdvertiseFailed(ctx, b, code)
		return
	}

	b.Bind(s)
	m.logger.Info("advertising", append(fields(b),
		log.Stringer("mode", b.Settings().Mode),
		log.Stringer("tx_power", b.Settings().TxPower))...)

	if period, ok := b.RefreshPeriod(); ok {
		m.refresh.Schedule(b.Key(), m.now().Add(period))
	}
}

// Halt cancels the refresh of b, stops its session and sets the observed
// state to next.
func (m *Machine) Halt(ctx context.Context, b *domain.Beacon, next domain.AdvertiseState) {
	m.refresh.Cancel(b.Key())
	if s := b.Unbind(next); s != nil {
		packets := s.Stop()
		m.logger.Debug("session stopped", append(fields(b), log.Uint64("packets", packets))...)
	}
}

// Reconcile brings the registered instance for id in line with its desired
// state. Stopped beacons leave the registry here.
func (m *Machine) Reconcile(ctx context.Context, id domain.Identity) {
	b := m.registry.Find(id)
	if b == nil {
		return
	}

	switch b.Desired() {
	case domain.StateEnabled:
		if !m.radio.Enabled() {
			m.Halt(ctx, b, domain.AdvertiseRadioUnavailable)
			return
		}
		if b.Observed() != domain.AdvertiseRunning {
			m.Advertise(ctx, b)
		}

	case domain.StatePaused:
		if b.Observed() == domain.AdvertiseRunning || m.radio.Enabled() {
			m.Halt(ctx, b, domain.AdvertiseStopped)
		}

	case domain.StateStopped:
		m.Halt(ctx, b, domain.AdvertiseStopped)
		if m.registry.Remove(b) {
			m.logger.Debug("last active beacon removed, deactivating host", fields(b)...)
			m.host.Deactivate(ctx)
		}
	}
}

// Refresh recreates the session of the beacon addressed by key after its
// rotation alarm fired.
func (m *Machine) Refresh(ctx context.Context, key string) {
	if !m.refresh.Fired(key) {
		return
	}
	b := m.registry.FindByKey(key)
	if b == nil {
		return
	}
	if b.Desired() == domain.StateEnabled && b.Observed() == domain.AdvertiseRunning {
		m.logger.Debug("refreshing rotating payload", fields(b)...)
		m.Advertise(ctx, b)
	}
}

// Register adds a restored beacon to the registry without touching the
// store. It reports false when the logical beacon is already registered or
// is Stopped.
func (m *Machine) Register(ctx context.Context, b *domain.Beacon) bool {
	if b.Desired() == domain.StateStopped || m.registry.Resolve(b) != nil {
		return false
	}
	m.registry.Add(b)
	m.emit(ctx, domain.EventActiveAdded, b, b.Desired())
	return true
}

// Resolve returns the registered instance for b's logical beacon, or b.
func (m *Machine) Resolve(b *domain.Beacon) *domain.Beacon {
	if auth := m.registry.Resolve(b); auth != nil {
		return auth
	}
	return b
}

// RefreshAt returns the pending rotation time of b.
func (m *Machine) RefreshAt(b *domain.Beacon) (time.Time, bool) {
	return m.refresh.Scheduled(b.Key())
}

func (m *Machine) emit(ctx context.Context, t domain.EventType, b *domain.Beacon, s domain.ActiveState) {
	m.notifier.Notify(ctx, domain.Event{
		Type:     t,
		Identity: b.Identity(),
		State:    s,
		Subject:  b.Subject(),
		At:       m.now(),
	})
}

func fields(b *domain.Beacon) []log.Field {
	return []log.Field{
		log.String("beacon", b.Key()),
		log.Uint64("seq", b.StableID()),
	}
}

func distinct(a, b *domain.Beacon) []*domain.Beacon {
	if a == b {
		return []*domain.Beacon{a}
	}
	return []*domain.Beacon{a, b}
}

type nopHost struct{}

func (nopHost) Activate(context.Context)   {}
func (nopHost) Deactivate(context.Context) {}
