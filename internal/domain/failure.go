package domain

import "fmt"

// Advertise failure codes reported by the radio subsystem.
const (
	FailureNone               = 0
	FailureDataTooLarge       = 1
	FailureTooManyAdvertisers = 2
	FailureAlreadyStarted     = 3
	FailureInternalError      = 4
	FailureFeatureUnsupported = 5
)

var failureNames = map[int]string{
	FailureDataTooLarge:       "data too large",
	FailureTooManyAdvertisers: "too many advertisers",
	FailureAlreadyStarted:     "already started",
	FailureInternalError:      "internal error",
	FailureFeatureUnsupported: "feature unsupported",
}

// FailureName returns the human-readable description of an advertise failure code.
func FailureName(code int) string {
	if name, ok := failureNames[code]; ok {
		return name
	}
	return fmt.Sprintf("unknown error %d", code)
}

// Retryable reports whether a failure is a resource-exhaustion condition that
// may clear once another transmitter frees its slot.
func Retryable(code int) bool {
	return code == FailureTooManyAdvertisers
}

// AdvertiseError is a transmission failure carrying the radio's failure code.
type AdvertiseError struct {
	Code int
}

// Error implements error.
func (e *AdvertiseError) Error() string {
	return fmt.Sprintf("advertise failed: %s (code %d)", FailureName(e.Code), e.Code)
}

// Unwrap classifies the failure as ErrResourceExhausted or ErrSessionFailed.
func (e *AdvertiseError) Unwrap() error {
	if Retryable(e.Code) {
		return ErrResourceExhausted
	}
	return ErrSessionFailed
}
