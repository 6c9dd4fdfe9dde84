package beacons

import (
	"context"

	"github.com/bft-labs/beacons/pkg/log"
)

// Plugin extends a Manager. Plugins are initialized in registration order
// when the manager starts and shut down in reverse order when it stops.
type Plugin interface {
	Name() string
	Initialize(ctx context.Context, cfg PluginConfig) error
	Shutdown(ctx context.Context) error
}

// PluginConfig is what a plugin gets to work with.
type PluginConfig struct {
	DataDir string
	Logger  log.Logger
	Manager *Manager
}
