package beacons

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store drivers.
const (
	StoreSQLite = "sqlite"
	StoreFile   = "file"
)

// DefaultDataDir is used when Config.DataDir is empty.
const DefaultDataDir = ".beacond"

// Config configures a Manager. Adapters supplied through options take
// precedence over the fields here.
type Config struct {
	// DataDir holds the store. Default: ~/.beacond
	DataDir string

	// StoreDriver selects the persistence backend: "sqlite" or "file".
	StoreDriver string

	// StorePath overrides the store location. For sqlite it is the database
	// file, for file it is the directory.
	StorePath string

	// RadioSlots is the number of concurrent advertisers the built-in radio
	// offers. Zero uses the radio default.
	RadioSlots int

	// RadioDisabled starts the built-in radio powered off.
	RadioDisabled bool
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.DataDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.DataDir = filepath.Join(home, DefaultDataDir)
		} else {
			c.DataDir = DefaultDataDir
		}
	}
	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	if c.StoreDriver == "" {
		c.StoreDriver = StoreSQLite
	}
	if c.StorePath == "" {
		switch c.StoreDriver {
		case StoreSQLite:
			c.StorePath = filepath.Join(c.DataDir, "beacons.db")
		case StoreFile:
			c.StorePath = c.DataDir
		}
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case StoreSQLite, StoreFile:
	default:
		return fmt.Errorf("%w: unknown store driver %q", ErrInvalidConfig, c.StoreDriver)
	}
	if c.RadioSlots < 0 {
		return fmt.Errorf("%w: radio slots must not be negative", ErrInvalidConfig)
	}
	return nil
}
