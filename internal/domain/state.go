package domain

import "fmt"

// ActiveState is the owner's intended lifecycle state for a beacon.
type ActiveState int

const (
	// StateEnabled means the beacon should advertise whenever the radio is available.
	StateEnabled ActiveState = iota
	// StatePaused means the beacon is active but must not advertise.
	StatePaused
	// StateStopped is the default initial state.
	StateStopped
)

// String returns a human-readable representation of the state.
func (s ActiveState) String() string {
	switch s {
	case StateEnabled:
		return "Enabled"
	case StatePaused:
		return "Paused"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// Valid reports whether s belongs to the desired-state domain.
func (s ActiveState) Valid() bool {
	return s >= StateEnabled && s <= StateStopped
}

// ParseActiveState parses the case-insensitive name of a desired state.
func ParseActiveState(v string) (ActiveState, error) {
	switch lower(v) {
	case "enabled", "enable", "started":
		return StateEnabled, nil
	case "paused", "pause":
		return StatePaused, nil
	case "stopped", "stop", "":
		return StateStopped, nil
	}
	return StateStopped, fmt.Errorf("%w: unknown state %q", ErrInvalidState, v)
}

// MarshalText implements encoding.TextMarshaler.
func (s ActiveState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *ActiveState) UnmarshalText(b []byte) error {
	v, err := ParseActiveState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// AdvertiseState reflects what the radio is actually doing for a beacon.
type AdvertiseState int

const (
	AdvertiseStopped AdvertiseState = iota
	AdvertiseRunning
	AdvertiseRadioUnavailable
)

// String returns a human-readable representation of the state.
func (s AdvertiseState) String() string {
	switch s {
	case AdvertiseStopped:
		return "Stopped"
	case AdvertiseRunning:
		return "Running"
	case AdvertiseRadioUnavailable:
		return "RadioUnavailable"
	default:
		return "Unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s AdvertiseState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
