package domain

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Session is one live transmission bound to a beacon. Settings are fixed for
// the lifetime of a session; changing them requires a new session.
type Session interface {
	// PacketCount returns the number of packets sent since the last clear.
	PacketCount() uint64
	// ClearPacketCount resets the packet counter.
	ClearPacketCount()
	// Stop ends the transmission and returns the final packet count.
	Stop() uint64
}

// Identity addresses a logical beacon in notifications. Exactly one of
// StorageID and ID is set.
type Identity struct {
	StorageID int64     `json:"storage_id,omitempty"`
	ID        uuid.UUID `json:"id,omitempty"`
}

// Persisted reports whether the identity refers to a stored beacon.
func (i Identity) Persisted() bool {
	return i.StorageID > 0
}

// Key returns the stable addressing string for the identity.
func (i Identity) Key() string {
	if i.StorageID > 0 {
		return "s:" + strconv.FormatInt(i.StorageID, 10)
	}
	return "e:" + i.ID.String()
}

// String implements fmt.Stringer.
func (i Identity) String() string {
	return i.Key()
}

// MarshalJSON emits only the identifier that is set.
func (i Identity) MarshalJSON() ([]byte, error) {
	if i.StorageID > 0 {
		return json.Marshal(struct {
			StorageID int64 `json:"storage_id"`
		}{i.StorageID})
	}
	return json.Marshal(struct {
		ID uuid.UUID `json:"id"`
	}{i.ID})
}

// EphemeralKey returns the key of an unsaved beacon with the given ID.
func EphemeralKey(id uuid.UUID) string {
	return Identity{ID: id}.Key()
}

// StorageKey returns the key of a stored beacon.
func StorageKey(id int64) string {
	return Identity{StorageID: id}.Key()
}

const maxSubjectLen = 30

// Beacon is a single broadcasting radio beacon.
//
// Desired is the owner's intent and Observed is what the radio is doing.
// Observed is Running exactly when a session is bound; Bind and Unbind are
// the only ways to change the session.
//
// A Beacon is not safe for concurrent use. All mutation happens on the
// advertising service's worker.
type Beacon struct {
	id        uuid.UUID
	stableID  uint64
	storageID int64

	payload  Payload
	settings Settings
	name     string

	desired  ActiveState
	observed AdvertiseState
	session  Session

	errCode    int
	errDetails string

	createdAt time.Time
	updatedAt time.Time
}

// NewBeacon creates an unsaved beacon with desired and observed state Stopped.
func NewBeacon(id uuid.UUID, stableID uint64, payload Payload, settings Settings, name string) *Beacon {
	return &Beacon{
		id:       id,
		stableID: stableID,
		payload:  payload,
		settings: settings,
		name:     name,
		desired:  StateStopped,
		observed: AdvertiseStopped,
	}
}

// Restore rebuilds a beacon from its persisted record. The payload is
// validated; an invalid record yields ErrInvalidPayload.
func Restore(r Record, id uuid.UUID, stableID uint64) (*Beacon, error) {
	p, err := DecodePayload(r.Kind, r.Payload)
	if err != nil {
		return nil, err
	}
	b := NewBeacon(id, stableID, p, Settings{
		Mode:        r.Mode,
		TxPower:     r.TxPower,
		Connectable: r.Connectable,
		Flags:       r.Flags,
	}, r.Name)
	b.storageID = r.StorageID
	if r.Desired.Valid() {
		b.desired = r.Desired
	}
	b.createdAt = r.CreatedAt
	b.updatedAt = r.UpdatedAt
	return b, nil
}

// Record returns the persisted form of the beacon.
func (b *Beacon) Record() Record {
	return Record{
		StorageID:   b.storageID,
		Kind:        b.payload.Kind(),
		Payload:     b.payload.Data(),
		Mode:        b.settings.Mode,
		TxPower:     b.settings.TxPower,
		Connectable: b.settings.Connectable,
		Flags:       b.settings.Flags,
		Name:        b.name,
		Desired:     b.desired,
		CreatedAt:   b.createdAt,
		UpdatedAt:   b.updatedAt,
	}
}

func (b *Beacon) ID() uuid.UUID            { return b.id }
func (b *Beacon) StableID() uint64         { return b.stableID }
func (b *Beacon) StorageID() int64         { return b.storageID }
func (b *Beacon) Persisted() bool          { return b.storageID > 0 }
func (b *Beacon) Kind() Kind               { return b.payload.Kind() }
func (b *Beacon) Payload() Payload         { return b.payload }
func (b *Beacon) Settings() Settings       { return b.settings }
func (b *Beacon) Name() string             { return b.name }
func (b *Beacon) Desired() ActiveState     { return b.desired }
func (b *Beacon) Observed() AdvertiseState { return b.observed }
func (b *Beacon) Session() Session         { return b.session }
func (b *Beacon) ErrorCode() int           { return b.errCode }
func (b *Beacon) ErrorDetails() string     { return b.errDetails }
func (b *Beacon) CreatedAt() time.Time     { return b.createdAt }
func (b *Beacon) UpdatedAt() time.Time     { return b.updatedAt }

// Identity returns the notification identity: the storage ID once saved,
// the ephemeral ID before.
func (b *Beacon) Identity() Identity {
	if b.storageID > 0 {
		return Identity{StorageID: b.storageID}
	}
	return Identity{ID: b.id}
}

// Key returns the stable addressing string of the beacon.
func (b *Beacon) Key() string {
	return b.Identity().Key()
}

// Same reports whether b and o represent the same logical beacon.
func (b *Beacon) Same(o *Beacon) bool {
	if b == o {
		return true
	}
	if b.storageID > 0 || o.storageID > 0 {
		return b.storageID == o.storageID
	}
	return b.id == o.id
}

// AssignStorageID records the storage ID handed out by the store. It is a
// no-op once an ID has been assigned.
func (b *Beacon) AssignStorageID(id int64, at time.Time) {
	if b.storageID > 0 || id <= 0 {
		return
	}
	b.storageID = id
	b.createdAt = at
	b.updatedAt = at
}

// Touch records a modification time.
func (b *Beacon) Touch(at time.Time) {
	b.updatedAt = at
}

// SetDesired changes the owner's intended state.
func (b *Beacon) SetDesired(s ActiveState) {
	b.desired = s
}

// SetObserved changes the radio state of an unbound beacon. Running can only
// be reached through Bind, so it is ignored here.
func (b *Beacon) SetObserved(s AdvertiseState) {
	if s == AdvertiseRunning || b.session != nil {
		return
	}
	b.observed = s
}

// Bind attaches a live session and marks the beacon Running.
func (b *Beacon) Bind(s Session) {
	b.session = s
	b.observed = AdvertiseRunning
}

// Unbind detaches the session, if any, moves the observed state to next and
// returns the detached session. The caller decides whether to stop it.
func (b *Beacon) Unbind(next AdvertiseState) Session {
	s := b.session
	b.session = nil
	if next == AdvertiseRunning {
		next = AdvertiseStopped
	}
	b.observed = next
	return s
}

// SetError records an advertise failure.
func (b *Beacon) SetError(code int) {
	b.errCode = code
	b.errDetails = FailureName(code)
}

// ClearError resets the recorded failure.
func (b *Beacon) ClearError() {
	b.errCode = FailureNone
	b.errDetails = ""
}

// RefreshPeriod returns how often the payload must be recreated, if at all.
func (b *Beacon) RefreshPeriod() (time.Duration, bool) {
	r, ok := b.payload.(Refresher)
	if !ok {
		return 0, false
	}
	return r.RefreshPeriod(), true
}

// SetAdvertiseMode reports whether the mode changed.
func (b *Beacon) SetAdvertiseMode(m AdvertiseMode) bool {
	if b.settings.Mode == m {
		return false
	}
	b.settings.Mode = m
	return true
}

// SetTxPower reports whether the power level changed.
func (b *Beacon) SetTxPower(p TxPower) bool {
	if b.settings.TxPower == p {
		return false
	}
	b.settings.TxPower = p
	return true
}

// SetConnectable reports whether the flag changed.
func (b *Beacon) SetConnectable(c bool) bool {
	if b.settings.Connectable == c {
		return false
	}
	b.settings.Connectable = c
	return true
}

// SetFlags reports whether the bitmask changed.
func (b *Beacon) SetFlags(f uint32) bool {
	if b.settings.Flags == f {
		return false
	}
	b.settings.Flags = f
	return true
}

// SetName reports whether the display name changed.
func (b *Beacon) SetName(n string) bool {
	if b.name == n {
		return false
	}
	b.name = n
	return true
}

// Subject returns the display name used in notifications, truncated to 30
// characters.
func (b *Beacon) Subject() string {
	if b.name == "" {
		return "<unnamed>"
	}
	r := []rune(b.name)
	if len(r) > maxSubjectLen {
		return string(r[:maxSubjectLen])
	}
	return b.name
}
