package radio

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/beacons/internal/domain"
)

type failureRecorder struct {
	mu    sync.Mutex
	codes []int
}

func (f *failureRecorder) OnSessionFailed(_ domain.Session, code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes = append(f.codes, code)
}

func (f *failureRecorder) got() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.codes...)
}

type powerRecorder struct {
	mu     sync.Mutex
	events []bool
}

func (p *powerRecorder) OnRadioEnabled()  { p.add(true) }
func (p *powerRecorder) OnRadioDisabled() { p.add(false) }

func (p *powerRecorder) add(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, on)
}

func beacon(p domain.Payload, mode domain.AdvertiseMode) *domain.Beacon {
	s := domain.DefaultSettings()
	s.Mode = mode
	return domain.NewBeacon(uuid.New(), 1, p, s, "test")
}

func urlBeacon() *domain.Beacon {
	return beacon(domain.EddystoneURL{URL: "https://example.com"}, domain.ModeBalanced)
}

func TestSimulator_SlotsExhausted(t *testing.T) {
	r := NewSimulator(Config{Slots: 2})
	ctx := context.Background()

	s1, err := r.StartSession(ctx, urlBeacon(), nil)
	require.NoError(t, err)
	_, err = r.StartSession(ctx, urlBeacon(), nil)
	require.NoError(t, err)

	_, err = r.StartSession(ctx, urlBeacon(), nil)
	var aerr *domain.AdvertiseError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, domain.FailureTooManyAdvertisers, aerr.Code)
	assert.ErrorIs(t, err, domain.ErrResourceExhausted)

	s1.Stop()
	assert.Equal(t, 1, r.InUse())
	_, err = r.StartSession(ctx, urlBeacon(), nil)
	assert.NoError(t, err)
}

func TestSimulator_UnsupportedAndDisabled(t *testing.T) {
	ctx := context.Background()

	_, err := NewSimulator(Config{Unsupported: true}).StartSession(ctx, urlBeacon(), nil)
	var aerr *domain.AdvertiseError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, domain.FailureFeatureUnsupported, aerr.Code)

	off := NewSimulator(Config{Disabled: true})
	assert.False(t, off.Enabled())
	_, err = off.StartSession(ctx, urlBeacon(), nil)
	assert.ErrorIs(t, err, domain.ErrSessionFailed)
}

func TestSimulator_FailNext(t *testing.T) {
	r := NewSimulator(Config{})
	r.FailNext(domain.FailureAlreadyStarted)

	_, err := r.StartSession(context.Background(), urlBeacon(), nil)
	var aerr *domain.AdvertiseError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, domain.FailureAlreadyStarted, aerr.Code)

	_, err = r.StartSession(context.Background(), urlBeacon(), nil)
	assert.NoError(t, err, "injected failure is consumed")
}

func TestSimulator_FailReportsAsynchronously(t *testing.T) {
	r := NewSimulator(Config{})
	rec := &failureRecorder{}
	s, err := r.StartSession(context.Background(), urlBeacon(), rec)
	require.NoError(t, err)

	require.True(t, r.Fail(s, domain.FailureTooManyAdvertisers))
	assert.False(t, r.Fail(s, domain.FailureInternalError), "already released")

	assert.Eventually(t, func() bool { return len(rec.got()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int{domain.FailureTooManyAdvertisers}, rec.got())
	assert.Zero(t, r.InUse())
}

func TestSimulator_PowerToggleDropsSessions(t *testing.T) {
	r := NewSimulator(Config{})
	power := &powerRecorder{}
	r.SetAvailabilityListener(power)
	_, err := r.StartSession(context.Background(), urlBeacon(), nil)
	require.NoError(t, err)

	r.SetEnabled(false)
	r.SetEnabled(false)
	r.SetEnabled(true)

	assert.Zero(t, r.InUse())
	assert.Equal(t, []bool{false, true}, power.events)
}

func TestSession_CountsPackets(t *testing.T) {
	r := NewSimulator(Config{})
	s, err := r.StartSession(context.Background(), beacon(domain.EddystoneURL{URL: "https://a.io"}, domain.ModeLowLatency), nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return s.PacketCount() >= 2 }, 2*time.Second, 10*time.Millisecond)
	s.ClearPacketCount()
	assert.Less(t, s.PacketCount(), uint64(2))
	s.Stop()
	n := s.PacketCount()
	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, n, s.PacketCount(), "no packets after stop")
}

func TestEncode_URLCompression(t *testing.T) {
	frame, err := Encode(beacon(domain.EddystoneURL{URL: "https://www.example.com/"}, domain.ModeBalanced), time.Now())
	require.NoError(t, err)

	want := append([]byte{frameURL, byte(txPowerDBm(domain.TxPowerMedium)), 0x01}, []byte("example")...)
	want = append(want, 0x00)
	assert.Equal(t, want, frame)
}

func TestEncode_URLTooLong(t *testing.T) {
	_, err := Encode(beacon(domain.EddystoneURL{URL: "https://a-very-long-host-name.example/path"}, domain.ModeBalanced), time.Now())
	var aerr *domain.AdvertiseError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, domain.FailureDataTooLarge, aerr.Code)
}

func TestEncode_IBeaconAndUID(t *testing.T) {
	id := uuid.MustParse("f7826da6-4fa2-4e98-8024-bc5b71e0893e")
	frame, err := Encode(beacon(domain.IBeacon{UUID: id, Major: 1, Minor: 258}, domain.ModeBalanced), time.Now())
	require.NoError(t, err)
	assert.Len(t, frame, 25)
	assert.Equal(t, id[:], frame[4:20])
	assert.Equal(t, []byte{0x00, 0x01, 0x01, 0x02}, frame[20:24])

	var uid domain.EddystoneUID
	copy(uid.Namespace[:], "0123456789")
	frame, err = Encode(beacon(uid, domain.ModeBalanced), time.Now())
	require.NoError(t, err)
	assert.Len(t, frame, 20)
	assert.Equal(t, byte(frameUID), frame[0])
}

func TestEncode_EIDRotatesPerWindow(t *testing.T) {
	p := domain.EddystoneEID{RotationExponent: 4}
	copy(p.IdentityKey[:], "0123456789abcdef")
	b := beacon(p, domain.ModeBalanced)
	start := time.Unix(1_700_000_000, 0).Truncate(16 * time.Second)

	first, err := Encode(b, start)
	require.NoError(t, err)
	same, err := Encode(b, start.Add(15*time.Second))
	require.NoError(t, err)
	next, err := Encode(b, start.Add(16*time.Second))
	require.NoError(t, err)

	assert.Equal(t, first, same)
	assert.NotEqual(t, first, next)
	assert.Len(t, first, 10)
}
