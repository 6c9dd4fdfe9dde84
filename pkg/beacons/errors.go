package beacons

import "github.com/bft-labs/beacons/internal/domain"

// Errors returned by the manager. Test with errors.Is.
var (
	ErrUnsupportedPlatform = domain.ErrUnsupportedPlatform
	ErrResourceExhausted   = domain.ErrResourceExhausted
	ErrSessionFailed       = domain.ErrSessionFailed
	ErrInvalidState        = domain.ErrInvalidState
	ErrInvalidPayload      = domain.ErrInvalidPayload
	ErrNotFound            = domain.ErrNotFound
	ErrInvalidConfig       = domain.ErrInvalidConfig
	ErrAlreadyRunning      = domain.ErrAlreadyRunning
	ErrNotRunning          = domain.ErrNotRunning
	ErrShutdownTimeout     = domain.ErrShutdownTimeout
)

// AdvertiseError carries a radio failure code.
type AdvertiseError = domain.AdvertiseError

// FailureName returns the description of an advertise failure code.
func FailureName(code int) string {
	return domain.FailureName(code)
}
