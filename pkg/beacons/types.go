package beacons

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bft-labs/beacons/internal/domain"
)

// Re-exported domain types.
type (
	Kind           = domain.Kind
	PayloadData    = domain.PayloadData
	AdvertiseMode  = domain.AdvertiseMode
	TxPower        = domain.TxPower
	ActiveState    = domain.ActiveState
	AdvertiseState = domain.AdvertiseState
	Event          = domain.Event
	EventType      = domain.EventType
	Identity       = domain.Identity
)

// Beacon kinds.
const (
	KindEddystoneURL = domain.KindEddystoneURL
	KindEddystoneUID = domain.KindEddystoneUID
	KindEddystoneEID = domain.KindEddystoneEID
	KindIBeacon      = domain.KindIBeacon
)

// Desired states.
const (
	Enabled = domain.StateEnabled
	Paused  = domain.StatePaused
	Stopped = domain.StateStopped
)

// Ref addresses a beacon by storage ID once saved, or by its ephemeral UUID
// before that.
type Ref struct {
	StorageID int64
	ID        uuid.UUID
}

// StorageRef returns a reference to a saved beacon.
func StorageRef(id int64) Ref { return Ref{StorageID: id} }

// EphemeralRef returns a reference to an unsaved beacon.
func EphemeralRef(id uuid.UUID) Ref { return Ref{ID: id} }

// ParseRef accepts "s:<id>", "e:<uuid>", a bare positive integer or a bare UUID.
func ParseRef(s string) (Ref, error) {
	switch {
	case strings.HasPrefix(s, "s:"):
		s = s[2:]
	case strings.HasPrefix(s, "e:"):
		id, err := uuid.Parse(s[2:])
		if err != nil {
			return Ref{}, fmt.Errorf("%w: bad beacon ref %q", ErrNotFound, s)
		}
		return EphemeralRef(id), nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
		return StorageRef(n), nil
	}
	if id, err := uuid.Parse(s); err == nil {
		return EphemeralRef(id), nil
	}
	return Ref{}, fmt.Errorf("%w: bad beacon ref %q", ErrNotFound, s)
}

// IsZero reports whether r addresses nothing.
func (r Ref) IsZero() bool {
	return r.StorageID <= 0 && r.ID == uuid.Nil
}

// String returns the key form of r.
func (r Ref) String() string {
	return domain.Identity{StorageID: r.StorageID, ID: r.ID}.Key()
}

// MarshalText implements encoding.TextMarshaler.
func (r Ref) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Ref) UnmarshalText(b []byte) error {
	v, err := ParseRef(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// Spec describes a beacon to create.
type Spec struct {
	Kind        Kind        `json:"kind" yaml:"kind"`
	Payload     PayloadData `json:"payload" yaml:"payload"`
	Connectable bool        `json:"connectable" yaml:"connectable"`
	Flags       uint32      `json:"flags" yaml:"flags"`
	Name        string      `json:"name" yaml:"name"`

	// Mode and TxPower default to balanced and medium when nil.
	Mode    *AdvertiseMode `json:"mode,omitempty" yaml:"mode"`
	TxPower *TxPower       `json:"tx_power,omitempty" yaml:"tx_power"`

	// Save persists the beacon right away.
	Save bool `json:"save" yaml:"save"`
	// Start enables the beacon after creation (and saving, if requested).
	Start bool `json:"start" yaml:"start"`
}

// Changes lists configuration edits. Nil fields are left alone.
type Changes struct {
	Mode        *AdvertiseMode `json:"mode,omitempty"`
	TxPower     *TxPower       `json:"tx_power,omitempty"`
	Connectable *bool          `json:"connectable,omitempty"`
	Flags       *uint32        `json:"flags,omitempty"`
	Name        *string        `json:"name,omitempty"`
}

// Empty reports whether c changes nothing.
func (c Changes) Empty() bool {
	return c.Mode == nil && c.TxPower == nil && c.Connectable == nil && c.Flags == nil && c.Name == nil
}

// BeaconInfo is a snapshot of one beacon.
type BeaconInfo struct {
	Ref         Ref            `json:"ref"`
	ID          uuid.UUID      `json:"id"`
	Seq         uint64         `json:"seq"`
	StorageID   int64          `json:"storage_id,omitempty"`
	Kind        Kind           `json:"kind"`
	Payload     PayloadData    `json:"payload"`
	Mode        AdvertiseMode  `json:"mode"`
	TxPower     TxPower        `json:"tx_power"`
	Connectable bool           `json:"connectable"`
	Flags       uint32         `json:"flags"`
	Name        string         `json:"name,omitempty"`
	Desired     ActiveState    `json:"desired"`
	Observed    AdvertiseState `json:"observed"`
	ErrorCode   int            `json:"error_code,omitempty"`
	Error       string         `json:"error,omitempty"`
	RefreshAt   *time.Time     `json:"refresh_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at,omitempty"`
	UpdatedAt   time.Time      `json:"updated_at,omitempty"`
}

func infoOf(b *domain.Beacon, refreshAt time.Time, scheduled bool) BeaconInfo {
	s := b.Settings()
	info := BeaconInfo{
		Ref:         Ref{StorageID: b.StorageID()},
		ID:          b.ID(),
		Seq:         b.StableID(),
		StorageID:   b.StorageID(),
		Kind:        b.Kind(),
		Payload:     b.Payload().Data(),
		Mode:        s.Mode,
		TxPower:     s.TxPower,
		Connectable: s.Connectable,
		Flags:       s.Flags,
		Name:        b.Name(),
		Desired:     b.Desired(),
		Observed:    b.Observed(),
		ErrorCode:   b.ErrorCode(),
		Error:       b.ErrorDetails(),
		CreatedAt:   b.CreatedAt(),
		UpdatedAt:   b.UpdatedAt(),
	}
	if !b.Persisted() {
		info.Ref = EphemeralRef(b.ID())
	}
	if scheduled {
		at := refreshAt
		info.RefreshAt = &at
	}
	return info
}
