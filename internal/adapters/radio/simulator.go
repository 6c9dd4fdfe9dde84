// Package radio provides a software radio that stands in for advertising
// hardware. It enforces a fixed number of concurrent advertisers, encodes the
// frames each session would put on air and counts packets at the interval of
// the session's advertise mode.
package radio

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	"github.com/bft-labs/beacons/internal/domain"
	"github.com/bft-labs/beacons/internal/ports"
	"github.com/bft-labs/beacons/pkg/log"
)

// DefaultSlots is the number of concurrent advertisers most controllers offer.
const DefaultSlots = 4

// Config configures a Simulator.
type Config struct {
	// Slots caps concurrent sessions. Zero means DefaultSlots.
	Slots int

	// Disabled starts the radio powered off.
	Disabled bool

	// Unsupported makes every start fail with FeatureUnsupported.
	Unsupported bool

	Clock  func() time.Time
	Logger log.Logger
}

// Simulator implements ports.RadioProvider and ports.RadioSwitch.
type Simulator struct {
	mu          sync.Mutex
	slots       int
	enabled     bool
	unsupported bool
	failNext    int
	sessions    map[*Session]struct{}
	avail       ports.AvailabilityListener
	clock       func() time.Time
	logger      log.Logger
}

var (
	_ ports.RadioProvider = (*Simulator)(nil)
	_ ports.RadioSwitch   = (*Simulator)(nil)
)

// NewSimulator creates a simulator from cfg.
func NewSimulator(cfg Config) *Simulator {
	if cfg.Slots <= 0 {
		cfg.Slots = DefaultSlots
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNoopLogger()
	}
	return &Simulator{
		slots:       cfg.Slots,
		enabled:     !cfg.Disabled,
		unsupported: cfg.Unsupported,
		sessions:    make(map[*Session]struct{}),
		clock:       cfg.Clock,
		logger:      cfg.Logger,
	}
}

// Supported implements ports.RadioProvider.
func (r *Simulator) Supported() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.unsupported
}

// Enabled implements ports.RadioProvider.
func (r *Simulator) Enabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

// SetAvailabilityListener implements ports.RadioProvider.
func (r *Simulator) SetAvailabilityListener(l ports.AvailabilityListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.avail = l
}

// StartSession implements ports.RadioProvider.
func (r *Simulator) StartSession(ctx context.Context, b *domain.Beacon, l ports.SessionListener) (domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case r.unsupported:
		return nil, &domain.AdvertiseError{Code: domain.FailureFeatureUnsupported}
	case !r.enabled:
		return nil, &domain.AdvertiseError{Code: domain.FailureInternalError}
	case r.failNext != domain.FailureNone:
		code := r.failNext
		r.failNext = domain.FailureNone
		return nil, &domain.AdvertiseError{Code: code}
	case len(r.sessions) >= r.slots:
		return nil, &domain.AdvertiseError{Code: domain.FailureTooManyAdvertisers}
	}

	frame, err := Encode(b, r.clock())
	if err != nil {
		return nil, err
	}

	s := newSession(r, b.Key(), frame, b.Settings().Mode.Interval(), l)
	r.sessions[s] = struct{}{}
	r.logger.Debug("session started",
		log.String("beacon", s.key),
		log.String("frame", hex.EncodeToString(frame)),
		log.Duration("interval", s.interval),
		log.Int("in_use", len(r.sessions)),
	)
	go s.run()
	return s, nil
}

// SetEnabled implements ports.RadioSwitch. Powering off drops every
// session without a stop callback, like the platform does.
func (r *Simulator) SetEnabled(enabled bool) {
	r.mu.Lock()
	if r.enabled == enabled {
		r.mu.Unlock()
		return
	}
	r.enabled = enabled
	var dropped []*Session
	if !enabled {
		for s := range r.sessions {
			dropped = append(dropped, s)
		}
		r.sessions = make(map[*Session]struct{})
	}
	l := r.avail
	r.mu.Unlock()

	for _, s := range dropped {
		s.halt()
	}
	r.logger.Info("radio power changed", log.Bool("enabled", enabled), log.Int("dropped", len(dropped)))

	if l == nil {
		return
	}
	if enabled {
		l.OnRadioEnabled()
	} else {
		l.OnRadioDisabled()
	}
}

// FailNext makes the next StartSession fail synchronously with code.
func (r *Simulator) FailNext(code int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failNext = code
}

// Fail ends a running session and reports code to its listener, as the
// platform does when an advertiser dies after starting.
func (r *Simulator) Fail(s domain.Session, code int) bool {
	sess, ok := s.(*Session)
	if !ok || !r.release(sess) {
		return false
	}
	sess.halt()
	if sess.listener != nil {
		go sess.listener.OnSessionFailed(sess, code)
	}
	return true
}

// InUse returns the number of running sessions.
func (r *Simulator) InUse() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Simulator) release(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s]; !ok {
		return false
	}
	delete(r.sessions, s)
	return true
}

// Session is one advertiser slot.
type Session struct {
	radio    *Simulator
	key      string
	frame    []byte
	interval time.Duration
	listener ports.SessionListener

	mu      sync.Mutex
	packets uint64
	once    sync.Once
	done    chan struct{}
}

func newSession(r *Simulator, key string, frame []byte, interval time.Duration, l ports.SessionListener) *Session {
	return &Session{
		radio:    r,
		key:      key,
		frame:    frame,
		interval: interval,
		listener: l,
		done:     make(chan struct{}),
	}
}

func (s *Session) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			s.packets++
			s.mu.Unlock()
		}
	}
}

func (s *Session) halt() {
	s.once.Do(func() { close(s.done) })
}

// Frame returns the encoded advertisement.
func (s *Session) Frame() []byte {
	return append([]byte(nil), s.frame...)
}

// PacketCount implements domain.Session.
func (s *Session) PacketCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.packets
}

// ClearPacketCount implements domain.Session.
func (s *Session) ClearPacketCount() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packets = 0
}

// Stop implements domain.Session. It frees the slot and returns the packets
// sent since the last clear.
func (s *Session) Stop() uint64 {
	s.radio.release(s)
	s.halt()
	return s.PacketCount()
}
