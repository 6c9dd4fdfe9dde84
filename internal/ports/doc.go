// Package ports defines the interfaces that connect the beacon lifecycle core
// to infrastructure adapters.
//
// # Port Interfaces
//
//   - [BeaconStore]: persists beacon records
//   - [RadioProvider]: creates transmission sessions on the shared radio
//   - [SessionListener], [AvailabilityListener]: radio callbacks
//   - [Host]: keeps the radio subsystem alive while beacons are active
//   - [AlarmScheduler]: wakes the process for scheduled refreshes
//   - [Notifier]: delivers state notifications
//   - [IDGenerator]: hands out ephemeral and stable identifiers
//   - [HTTPClient]: HTTP request abstraction for the webhook sink
//
// The application layer (internal/app) depends only on these interfaces.
// Adapters under internal/adapters implement them.
package ports
