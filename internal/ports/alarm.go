package ports

import "time"

// AlarmScheduler wakes the process at a given time for a key.
type AlarmScheduler interface {
	// ScheduleWake arms the alarm for key, replacing any earlier one.
	ScheduleWake(key string, at time.Time)

	// CancelWake disarms the alarm for key. Unknown keys are ignored.
	CancelWake(key string)

	// SetHandler sets the function called with the key when an alarm fires.
	SetHandler(fn func(key string))
}
