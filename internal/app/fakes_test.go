package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bft-labs/beacons/internal/domain"
	"github.com/bft-labs/beacons/internal/ports"
)

// callLog records calls across fakes so tests can assert ordering.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
}

func (l *callLog) index(call string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, c := range l.calls {
		if c == call {
			return i
		}
	}
	return -1
}

func (l *callLog) lastIndex(call string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.calls) - 1; i >= 0; i-- {
		if l.calls[i] == call {
			return i
		}
	}
	return -1
}

// fakeStore is an in-memory BeaconStore that counts writes.
type fakeStore struct {
	mu           sync.Mutex
	next         int64
	records      map[int64]domain.Record
	inserts      int
	updates      int
	stateUpdates int
	deletes      int
	failWrites   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[int64]domain.Record)}
}

func (s *fakeStore) Insert(_ context.Context, r domain.Record) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites != nil {
		return 0, s.failWrites
	}
	s.next++
	r.StorageID = s.next
	s.records[r.StorageID] = r
	s.inserts++
	return r.StorageID, nil
}

func (s *fakeStore) Update(_ context.Context, r domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites != nil {
		return s.failWrites
	}
	s.updates++
	if _, ok := s.records[r.StorageID]; ok {
		s.records[r.StorageID] = r
	}
	return nil
}

func (s *fakeStore) UpdateState(_ context.Context, id int64, st domain.ActiveState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites != nil {
		return s.failWrites
	}
	s.stateUpdates++
	if r, ok := s.records[id]; ok {
		r.Desired = st
		s.records[id] = r
	}
	return nil
}

func (s *fakeStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	delete(s.records, id)
	return nil
}

func (s *fakeStore) Get(_ context.Context, id int64) (domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return domain.Record{}, domain.ErrNotFound
	}
	return r, nil
}

func (s *fakeStore) List(_ context.Context) ([]domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StorageID < out[j].StorageID })
	return out, nil
}

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) put(r domain.Record) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	r.StorageID = s.next
	s.records[r.StorageID] = r
	return r.StorageID
}

func (s *fakeStore) record(id int64) (domain.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	return r, ok
}

// fakeSession counts packets and logs lifecycle calls.
type fakeSession struct {
	id      int
	log     *callLog
	mu      sync.Mutex
	packets uint64
	stopped bool
}

func (s *fakeSession) PacketCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.packets
}

func (s *fakeSession) ClearPacketCount() {
	s.mu.Lock()
	s.packets = 0
	s.mu.Unlock()
	s.log.add("session %d clear", s.id)
}

func (s *fakeSession) Stop() uint64 {
	s.mu.Lock()
	s.stopped = true
	n := s.packets
	s.mu.Unlock()
	s.log.add("session %d stop", s.id)
	return n
}

// fakeRadio hands out fakeSessions and can fail the next start.
type fakeRadio struct {
	mu          sync.Mutex
	log         *callLog
	unsupported bool
	disabled    bool
	failNext    int
	sessions    []*fakeSession
	listener    ports.SessionListener
	avail       ports.AvailabilityListener
}

func (r *fakeRadio) Supported() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.unsupported
}

func (r *fakeRadio) Enabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.disabled
}

func (r *fakeRadio) StartSession(_ context.Context, b *domain.Beacon, l ports.SessionListener) (domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listener = l
	if r.disabled {
		return nil, &domain.AdvertiseError{Code: domain.FailureInternalError}
	}
	if r.failNext != 0 {
		code := r.failNext
		r.failNext = 0
		return nil, &domain.AdvertiseError{Code: code}
	}
	s := &fakeSession{id: len(r.sessions) + 1, log: r.log, packets: 10}
	r.sessions = append(r.sessions, s)
	r.log.add("start %s", b.Key())
	return s, nil
}

func (r *fakeRadio) SetAvailabilityListener(l ports.AvailabilityListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.avail = l
}

func (r *fakeRadio) starts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *fakeRadio) stops() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sessions {
		s.mu.Lock()
		if s.stopped {
			n++
		}
		s.mu.Unlock()
	}
	return n
}

func (r *fakeRadio) session(i int) *fakeSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[i]
}

func (r *fakeRadio) setEnabled(on bool) {
	r.mu.Lock()
	r.disabled = !on
	l := r.avail
	r.mu.Unlock()
	if l == nil {
		return
	}
	if on {
		l.OnRadioEnabled()
	} else {
		l.OnRadioDisabled()
	}
}

// fakeAlarms records wakes.
type fakeAlarms struct {
	mu      sync.Mutex
	log     *callLog
	wakes   map[string]time.Time
	handler func(string)
}

func newFakeAlarms(log *callLog) *fakeAlarms {
	return &fakeAlarms{log: log, wakes: make(map[string]time.Time)}
}

func (a *fakeAlarms) ScheduleWake(key string, at time.Time) {
	a.mu.Lock()
	a.wakes[key] = at
	a.mu.Unlock()
	a.log.add("schedule %s", key)
}

func (a *fakeAlarms) CancelWake(key string) {
	a.mu.Lock()
	delete(a.wakes, key)
	a.mu.Unlock()
	a.log.add("cancel %s", key)
}

func (a *fakeAlarms) SetHandler(fn func(string)) {
	a.mu.Lock()
	a.handler = fn
	a.mu.Unlock()
}

func (a *fakeAlarms) fire(key string) {
	a.mu.Lock()
	fn := a.handler
	delete(a.wakes, key)
	a.mu.Unlock()
	fn(key)
}

// fakeHost counts activation edges.
type fakeHost struct {
	activations   int
	deactivations int
}

func (h *fakeHost) Activate(context.Context)   { h.activations++ }
func (h *fakeHost) Deactivate(context.Context) { h.deactivations++ }

// eventRecorder is a Notifier that keeps every event.
type eventRecorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *eventRecorder) Notify(_ context.Context, e domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) all() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event(nil), r.events...)
}

func (r *eventRecorder) count(t domain.EventType) int {
	n := 0
	for _, e := range r.all() {
		if e.Type == t {
			n++
		}
	}
	return n
}

var testClock = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

func urlBeacon(name string) *domain.Beacon {
	return domain.NewBeacon(uuid.New(), 1, domain.EddystoneURL{URL: "https://example.com"}, domain.DefaultSettings(), name)
}

func eidBeacon() *domain.Beacon {
	p := domain.EddystoneEID{RotationExponent: 4}
	copy(p.IdentityKey[:], "0123456789abcdef")
	return domain.NewBeacon(uuid.New(), 2, p, domain.DefaultSettings(), "eid")
}

func urlRecord(desired domain.ActiveState) domain.Record {
	return domain.Record{
		Kind:    domain.KindEddystoneURL,
		Payload: domain.PayloadData{URL: "https://example.com/stored"},
		Mode:    domain.ModeBalanced,
		TxPower: domain.TxPowerMedium,
		Desired: desired,
	}
}
