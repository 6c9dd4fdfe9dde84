package beacons

import (
	"context"

	"github.com/bft-labs/beacons/internal/domain"
	"github.com/bft-labs/beacons/internal/ports"
	"github.com/bft-labs/beacons/pkg/log"
)

// Adapter interfaces accepted by options.
type (
	Store          = ports.BeaconStore
	Radio          = ports.RadioProvider
	RadioSwitch    = ports.RadioSwitch
	AlarmScheduler = ports.AlarmScheduler
	Notifier       = ports.Notifier
	Record         = domain.Record
	Session        = domain.Session
)

// Runner is implemented by notifiers that deliver from their own loop.
// The manager runs it for as long as it is running.
type Runner interface {
	Run(ctx context.Context) error
}

// Option configures optional behavior of a Manager.
type Option func(*options)

type options struct {
	logger       log.Logger
	store        Store
	radio        Radio
	alarms       AlarmScheduler
	eventHandler EventHandler
	notifiers    []Notifier
	plugins      []Plugin
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithStore replaces the store selected by Config. The manager does not
// close an injected store.
func WithStore(s Store) Option {
	return func(o *options) {
		o.store = s
	}
}

// WithRadio replaces the built-in simulated radio.
func WithRadio(r Radio) Option {
	return func(o *options) {
		o.radio = r
	}
}

// WithAlarms replaces the in-process timer scheduler.
func WithAlarms(a AlarmScheduler) Option {
	return func(o *options) {
		o.alarms = a
	}
}

// WithEventHandler sets a handler for manager, host and beacon events.
func WithEventHandler(handler EventHandler) Option {
	return func(o *options) {
		o.eventHandler = handler
	}
}

// WithNotifier adds a beacon event sink. A notifier that also implements
// Runner is run while the manager runs.
func WithNotifier(n Notifier) Option {
	return func(o *options) {
		o.notifiers = append(o.notifiers, n)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p Plugin) Option {
	return func(o *options) {
		o.plugins = append(o.plugins, p)
	}
}
