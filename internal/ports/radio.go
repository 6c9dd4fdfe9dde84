package ports

import (
	"context"

	"github.com/bft-labs/beacons/internal/domain"
)

// RadioProvider creates transmission sessions on the shared radio.
type RadioProvider interface {
	// Supported reports whether the device can advertise at all.
	Supported() bool

	// Enabled reports whether the radio is currently powered on.
	Enabled() bool

	// StartSession begins advertising b with its current settings and payload.
	// Synchronous failures are returned as *domain.AdvertiseError. Failures
	// after a successful start are reported to l.
	StartSession(ctx context.Context, b *domain.Beacon, l SessionListener) (domain.Session, error)

	// SetAvailabilityListener registers the receiver of power changes.
	SetAvailabilityListener(l AvailabilityListener)
}

// SessionListener receives asynchronous session failures.
type SessionListener interface {
	OnSessionFailed(s domain.Session, code int)
}

// AvailabilityListener receives radio power changes.
type AvailabilityListener interface {
	OnRadioEnabled()
	OnRadioDisabled()
}

// RadioSwitch is implemented by providers whose power can be toggled.
type RadioSwitch interface {
	SetEnabled(enabled bool)
}
