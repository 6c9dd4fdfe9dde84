package domain

import (
	"fmt"
	"strings"
	"time"
)

// AdvertiseMode trades advertising frequency against power consumption.
type AdvertiseMode int

const (
	ModeLowPower AdvertiseMode = iota
	ModeBalanced
	ModeLowLatency
)

// String returns the config name of the mode.
func (m AdvertiseMode) String() string {
	switch m {
	case ModeLowPower:
		return "low-power"
	case ModeBalanced:
		return "balanced"
	case ModeLowLatency:
		return "low-latency"
	default:
		return "unknown"
	}
}

// Interval returns the nominal time between two advertising packets.
func (m AdvertiseMode) Interval() time.Duration {
	switch m {
	case ModeLowPower:
		return time.Second
	case ModeLowLatency:
		return 100 * time.Millisecond
	default:
		return 250 * time.Millisecond
	}
}

// ParseAdvertiseMode parses a mode name. An empty string yields the default.
func ParseAdvertiseMode(v string) (AdvertiseMode, error) {
	switch lower(v) {
	case "low-power", "low_power", "lowpower":
		return ModeLowPower, nil
	case "balanced", "":
		return ModeBalanced, nil
	case "low-latency", "low_latency", "lowlatency":
		return ModeLowLatency, nil
	}
	return ModeBalanced, fmt.Errorf("%w: unknown advertise mode %q", ErrInvalidConfig, v)
}

// MarshalText implements encoding.TextMarshaler.
func (m AdvertiseMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *AdvertiseMode) UnmarshalText(b []byte) error {
	v, err := ParseAdvertiseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// TxPower is the transmit power level.
type TxPower int

const (
	TxPowerUltraLow TxPower = iota
	TxPowerLow
	TxPowerMedium
	TxPowerHigh
)

// String returns the config name of the power level.
func (p TxPower) String() string {
	switch p {
	case TxPowerUltraLow:
		return "ultra-low"
	case TxPowerLow:
		return "low"
	case TxPowerMedium:
		return "medium"
	case TxPowerHigh:
		return "high"
	default:
		return "unknown"
	}
}

// ParseTxPower parses a power level name. An empty string yields the default.
func ParseTxPower(v string) (TxPower, error) {
	switch lower(v) {
	case "ultra-low", "ultra_low", "ultralow":
		return TxPowerUltraLow, nil
	case "low":
		return TxPowerLow, nil
	case "medium", "":
		return TxPowerMedium, nil
	case "high":
		return TxPowerHigh, nil
	}
	return TxPowerMedium, fmt.Errorf("%w: unknown tx power %q", ErrInvalidConfig, v)
}

// MarshalText implements encoding.TextMarshaler.
func (p TxPower) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *TxPower) UnmarshalText(b []byte) error {
	v, err := ParseTxPower(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Settings are the transmission parameters fixed for the lifetime of a radio session.
type Settings struct {
	Mode        AdvertiseMode
	TxPower     TxPower
	Connectable bool
	Flags       uint32
}

// DefaultSettings returns balanced mode at medium power, not connectable.
func DefaultSettings() Settings {
	return Settings{
		Mode:    ModeBalanced,
		TxPower: TxPowerMedium,
	}
}

func lower(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
