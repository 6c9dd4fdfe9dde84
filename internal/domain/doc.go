// Package domain contains the beacon entity and its value objects.
//
// It has no dependencies on infrastructure concerns and holds only the rules
// that every beacon obeys regardless of how it is stored or transmitted.
//
// # Entities
//
//   - [Beacon]: a broadcasting beacon with desired and observed state
//   - [Record]: the persisted form of a beacon
//   - [Payload]: the closed set of advertised content variants
//   - [Event]: a notification about a beacon's state
//
// # State axes
//
// [ActiveState] is what the owner wants (Enabled, Paused, Stopped).
// [AdvertiseState] is what the radio does (Stopped, Running, RadioUnavailable).
// A beacon is Running exactly when a [Session] is bound to it.
package domain
