// Package beacons manages broadcasting radio beacons: Eddystone URL, UID and
// EID frames and iBeacon advertisements.
//
// A beacon has a desired state set by its owner (Enabled, Paused or Stopped)
// and an observed state reported by the radio. The manager keeps the two in
// line on a single worker, survives radio power changes and advertiser
// failures, and resumes saved beacons on the next start.
//
// # Basic Usage
//
//	m, err := beacons.New(beacons.Config{DataDir: "/var/lib/beacond"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := m.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer m.Stop()
//
//	info, err := m.Create(ctx, beacons.Spec{
//	    Kind:    beacons.KindEddystoneURL,
//	    Payload: beacons.PayloadData{URL: "https://example.com"},
//	    Save:    true,
//	    Start:   true,
//	})
//
// # Addressing
//
// Saved beacons are addressed by storage ID, unsaved ones by the UUID they
// were created with. [Ref] holds either; [ParseRef] accepts "s:<id>" and
// "e:<uuid>".
//
// # Failures
//
// Radio failures never surface as errors from beacon operations. A beacon
// that loses its advertiser slot is paused; any other failure stops it. The
// code and description are visible in [BeaconInfo] and in events.
//
// # Events
//
// Implement [EventHandler] (embedding [BaseEventHandler]) and pass it with
// [WithEventHandler], add sinks with [WithNotifier], or call
// [Manager.Subscribe] for a channel of beacon events.
//
// # Adapters
//
// The defaults are a SQLite store under DataDir, an in-process timer for
// EID rotation and a simulated radio. Replace them with [WithStore],
// [WithAlarms] and [WithRadio].
package beacons
