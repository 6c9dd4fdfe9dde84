package domain

import "errors"

// Domain errors represent error conditions in the beacons domain.
// These errors are returned by the public API and can be checked with errors.Is.
var (
	// ErrUnsupportedPlatform is returned by Start when the radio cannot advertise at all.
	ErrUnsupportedPlatform = errors.New("beacons: radio advertising not supported")

	// ErrResourceExhausted is the class of AdvertiseError for too many concurrent transmitters.
	ErrResourceExhausted = errors.New("beacons: too many concurrent advertisers")

	// ErrSessionFailed is the class of every other AdvertiseError.
	ErrSessionFailed = errors.New("beacons: advertise session failed")

	// ErrInvalidState is returned when a desired state outside the domain is requested.
	ErrInvalidState = errors.New("beacons: invalid state request")

	// ErrInvalidPayload is returned when beacon content fails validation.
	ErrInvalidPayload = errors.New("beacons: invalid payload")

	// ErrNotFound is returned when a beacon cannot be resolved.
	ErrNotFound = errors.New("beacons: not found")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("beacons: invalid configuration")

	// ErrAlreadyRunning is returned when Start() is called on a running manager.
	ErrAlreadyRunning = errors.New("beacons: already running")

	// ErrNotRunning is returned when an operation needs a running manager.
	ErrNotRunning = errors.New("beacons: not running")

	// ErrShutdownTimeout is returned when workers do not stop in time.
	ErrShutdownTimeout = errors.New("beacons: shutdown timeout")

	// ErrInvalidTransition is returned when a lifecycle transition is not allowed.
	ErrInvalidTransition = errors.New("beacons: invalid lifecycle transition")
)
