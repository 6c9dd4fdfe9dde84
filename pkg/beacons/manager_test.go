package beacons

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/beacons/internal/adapters/radio"
	"github.com/bft-labs/beacons/internal/app"
	"github.com/bft-labs/beacons/internal/domain"
)

const waitFor = 2 * time.Second

type recordingHandler struct {
	BaseEventHandler
	mu     sync.Mutex
	states []State
	events []Event
}

func (h *recordingHandler) OnStateChange(e StateChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.states = append(h.states, e.Current)
}

func (h *recordingHandler) OnBeaconEvent(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, e)
}

func (h *recordingHandler) stateLog() []State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]State(nil), h.states...)
}

func startManager(t *testing.T, cfg Config, opts ...Option) *Manager {
	t.Helper()
	if cfg.DataDir == "" {
		cfg.DataDir = t.TempDir()
	}
	m, err := New(cfg, opts...)
	require.NoError(t, err)
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() {
		if m.Running() {
			_ = m.Stop()
		}
	})
	return m
}

func urlSpec(name string) Spec {
	return Spec{
		Kind:    KindEddystoneURL,
		Payload: PayloadData{URL: "https://example.com"},
		Name:    name,
	}
}

func eventually(t *testing.T, m *Manager, ref Ref, cond func(BeaconInfo) bool) BeaconInfo {
	t.Helper()
	var info BeaconInfo
	require.Eventually(t, func() bool {
		var err error
		info, err = m.Get(context.Background(), ref)
		return err == nil && cond(info)
	}, waitFor, 5*time.Millisecond)
	return info
}

func running(i BeaconInfo) bool { return i.Observed == domain.AdvertiseRunning }

func TestManager_LifecycleErrors(t *testing.T) {
	h := &recordingHandler{}
	m, err := New(Config{DataDir: t.TempDir(), StoreDriver: StoreFile}, WithEventHandler(h))
	require.NoError(t, err)
	ctx := context.Background()

	assert.ErrorIs(t, m.Stop(), ErrNotRunning)
	_, err = m.List(ctx)
	assert.ErrorIs(t, err, ErrNotRunning)

	require.NoError(t, m.Start(ctx))
	assert.ErrorIs(t, m.Start(ctx), ErrAlreadyRunning)
	assert.True(t, m.Running())
	require.NoError(t, m.Stop())
	assert.Equal(t, StateStopped, m.Status())

	assert.Equal(t, []State{StateStarting, StateRunning, StateStopping, StateStopped}, h.stateLog())
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(Config{DataDir: t.TempDir(), StoreDriver: "postgres"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestManager_CreateRejectsBadPayload(t *testing.T) {
	m := startManager(t, Config{StoreDriver: StoreFile})

	_, err := m.Create(context.Background(), Spec{Kind: KindEddystoneURL, Payload: PayloadData{URL: "ftp://x"}})
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestManager_SaveStartAndResume(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	m := startManager(t, Config{DataDir: dir})
	info, err := m.Create(ctx, Spec{
		Kind:    KindEddystoneURL,
		Payload: PayloadData{URL: "https://example.com"},
		Name:    "lobby",
		Save:    true,
		Start:   true,
	})
	require.NoError(t, err)
	require.Positive(t, info.StorageID)
	ref := info.Ref

	eventually(t, m, ref, running)
	require.Eventually(t, func() bool { return m.HostState() == app.HostActive }, waitFor, 5*time.Millisecond)
	require.NoError(t, m.Stop())

	again := startManager(t, Config{DataDir: dir})
	resumed := eventually(t, again, ref, running)
	assert.Equal(t, "lobby", resumed.Name)
	assert.Equal(t, Enabled, resumed.Desired)
}

func TestManager_UnsavedBeaconByEphemeralRef(t *testing.T) {
	m := startManager(t, Config{StoreDriver: StoreFile})
	ctx := context.Background()

	info, err := m.Create(ctx, urlSpec("draft"))
	require.NoError(t, err)
	require.Zero(t, info.StorageID)
	assert.Equal(t, EphemeralRef(info.ID), info.Ref)

	got, err := m.Get(ctx, info.Ref)
	require.NoError(t, err)
	assert.Equal(t, "draft", got.Name)

	list, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	saved, err := m.Save(ctx, info.Ref, false)
	require.NoError(t, err)
	assert.Equal(t, StorageRef(1), saved.Ref)

	_, err = m.Get(ctx, info.Ref)
	assert.ErrorIs(t, err, ErrNotFound)

	again, err := m.Save(ctx, saved.Ref, false)
	require.NoError(t, err)
	assert.Equal(t, saved.StorageID, again.StorageID, "saving twice keeps the record")
}

func TestManager_PauseAndStop(t *testing.T) {
	m := startManager(t, Config{StoreDriver: StoreFile})
	ctx := context.Background()

	info, err := m.Create(ctx, Spec{Kind: KindEddystoneURL, Payload: PayloadData{URL: "https://a.io"}, Save: true, Start: true})
	require.NoError(t, err)
	eventually(t, m, info.Ref, running)

	_, err = m.Pause(ctx, info.Ref)
	require.NoError(t, err)
	eventually(t, m, info.Ref, func(i BeaconInfo) bool {
		return i.Desired == Paused && i.Observed == domain.AdvertiseStopped
	})

	_, err = m.StopBeacon(ctx, info.Ref)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return m.HostState() == app.HostIdle }, waitFor, 5*time.Millisecond)

	got, err := m.Get(ctx, info.Ref)
	require.NoError(t, err)
	assert.Equal(t, Stopped, got.Desired)

	_, err = m.StartBeacon(ctx, info.Ref)
	require.NoError(t, err)
	eventually(t, m, info.Ref, running)
}

func TestManager_SlotExhaustionPausesSecondBeacon(t *testing.T) {
	m := startManager(t, Config{StoreDriver: StoreFile, RadioSlots: 1})
	ctx := context.Background()

	first := urlSpec("first")
	first.Start = true
	second := urlSpec("second")
	second.Start = true

	a, err := m.Create(ctx, first)
	require.NoError(t, err)
	b, err := m.Create(ctx, second)
	require.NoError(t, err)

	eventually(t, m, a.Ref, running)
	paused := eventually(t, m, b.Ref, func(i BeaconInfo) bool { return i.Desired == Paused })
	assert.Equal(t, domain.FailureTooManyAdvertisers, paused.ErrorCode)
	assert.Equal(t, "too many advertisers", paused.Error)
	assert.Equal(t, domain.AdvertiseStopped, paused.Observed)
}

func TestManager_EditAppliesSettings(t *testing.T) {
	m := startManager(t, Config{StoreDriver: StoreFile})
	ctx := context.Background()

	spec := urlSpec("old")
	spec.Save, spec.Start = true, true
	info, err := m.Create(ctx, spec)
	require.NoError(t, err)
	eventually(t, m, info.Ref, running)

	power := domain.TxPowerHigh
	name := "new"
	edited, err := m.Edit(ctx, info.Ref, Changes{TxPower: &power, Name: &name})
	require.NoError(t, err)
	assert.Equal(t, domain.TxPowerHigh, edited.TxPower)
	assert.Equal(t, "new", edited.Name)

	after := eventually(t, m, info.Ref, running)
	assert.Equal(t, domain.TxPowerHigh, after.TxPower)
}

func TestManager_DeleteRemovesEverywhere(t *testing.T) {
	m := startManager(t, Config{StoreDriver: StoreFile})
	ctx := context.Background()

	spec := urlSpec("gone")
	spec.Save, spec.Start = true, true
	info, err := m.Create(ctx, spec)
	require.NoError(t, err)
	eventually(t, m, info.Ref, running)

	require.NoError(t, m.Delete(ctx, info.Ref))

	_, err = m.Get(ctx, info.Ref)
	assert.ErrorIs(t, err, ErrNotFound)
	list, err := m.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestManager_RadioPowerToggle(t *testing.T) {
	sim := radio.NewSimulator(radio.Config{})
	m := startManager(t, Config{StoreDriver: StoreFile}, WithRadio(sim))
	ctx := context.Background()

	spec := urlSpec("")
	spec.Start = true
	info, err := m.Create(ctx, spec)
	require.NoError(t, err)
	eventually(t, m, info.Ref, running)

	require.NoError(t, m.SetRadioEnabled(false))
	assert.False(t, m.RadioEnabled())
	eventually(t, m, info.Ref, func(i BeaconInfo) bool {
		return i.Observed == domain.AdvertiseRadioUnavailable && i.Desired == Enabled
	})

	require.NoError(t, m.SetRadioEnabled(true))
	eventually(t, m, info.Ref, running)
}

func TestManager_RotatingBeaconHasRefreshTime(t *testing.T) {
	m := startManager(t, Config{StoreDriver: StoreFile})
	ctx := context.Background()

	info, err := m.Create(ctx, Spec{
		Kind:    KindEddystoneEID,
		Payload: PayloadData{IdentityKey: "000102030405060708090a0b0c0d0e0f", RotationExponent: 10},
		Start:   true,
	})
	require.NoError(t, err)

	got := eventually(t, m, info.Ref, running)
	require.NotNil(t, got.RefreshAt)
	assert.WithinDuration(t, time.Now().Add(1024*time.Second), *got.RefreshAt, 5*time.Second)
}

func TestManager_SubscribeReceivesEvents(t *testing.T) {
	m := startManager(t, Config{StoreDriver: StoreFile})
	events, cancel := m.Subscribe(8)
	defer cancel()

	spec := urlSpec("")
	spec.Start = true
	_, err := m.Create(context.Background(), spec)
	require.NoError(t, err)

	select {
	case e := <-events:
		assert.Contains(t, []EventType{domain.EventActiveAdded, domain.EventStateChanged}, e.Type)
	case <-time.After(waitFor):
		t.Fatal("no event received")
	}
}

func TestManager_UnknownRef(t *testing.T) {
	m := startManager(t, Config{StoreDriver: StoreFile})
	ctx := context.Background()

	_, err := m.Get(ctx, StorageRef(99))
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.Get(ctx, EphemeralRef(uuid.New()))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManager_CreateDefaultsSettings(t *testing.T) {
	m := startManager(t, Config{StoreDriver: StoreFile})
	ctx := context.Background()

	info, err := m.Create(ctx, urlSpec("defaults"))
	require.NoError(t, err)
	assert.Equal(t, domain.ModeBalanced, info.Mode)
	assert.Equal(t, domain.TxPowerMedium, info.TxPower)

	mode := domain.ModeLowLatency
	spec := urlSpec("fast")
	spec.Mode = &mode
	info, err = m.Create(ctx, spec)
	require.NoError(t, err)
	assert.Equal(t, domain.ModeLowLatency, info.Mode)
}
