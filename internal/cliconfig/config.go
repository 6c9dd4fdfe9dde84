package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bft-labs/beacons/pkg/beacons"
)

// DefaultHTTPAddr is where the control API listens unless configured.
const DefaultHTTPAddr = "127.0.0.1:8470"

// Config holds CLI configuration for beacond.
type Config struct {
	DataDir     string
	StoreDriver string
	StorePath   string

	RadioSlots      int
	RadioDisabled   bool
	RadioSwitchFile string

	HTTPAddr   string
	AuthSecret string

	MQTTBroker string
	MQTTTopic  string

	WebhookURL  string
	WebhookKey  string
	HTTPTimeout time.Duration

	LogLevel  string
	LogFormat string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		StoreDriver: beacons.StoreSQLite,
		HTTPAddr:    DefaultHTTPAddr,
		MQTTTopic:   "beacons",
		HTTPTimeout: 10 * time.Second,
		LogLevel:    "info",
		LogFormat:   "console",
		AuthSecret:  os.Getenv("BEACOND_AUTH_SECRET"),
	}
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		h, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("data-dir is required: %w", err)
		}
		c.DataDir = filepath.Join(h, beacons.DefaultDataDir)
	}

	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	switch c.StoreDriver {
	case beacons.StoreSQLite, beacons.StoreFile:
	default:
		return fmt.Errorf("store must be %q or %q, got %q", beacons.StoreSQLite, beacons.StoreFile, c.StoreDriver)
	}

	if c.RadioSlots < 0 {
		return fmt.Errorf("radio slots must not be negative")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http timeout must be positive")
	}

	// Ensure no trailing slash
	c.WebhookURL = strings.TrimSuffix(c.WebhookURL, "/")
	c.MQTTTopic = strings.Trim(c.MQTTTopic, "/")

	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("log format must be console or json, got %q", c.LogFormat)
	}
	return nil
}

// ManagerConfig converts c to the library configuration.
func (c Config) ManagerConfig() beacons.Config {
	return beacons.Config{
		DataDir:       c.DataDir,
		StoreDriver:   c.StoreDriver,
		StorePath:     c.StorePath,
		RadioSlots:    c.RadioSlots,
		RadioDisabled: c.RadioDisabled,
	}
}

// Masked returns a copy safe to log.
func (c Config) Masked() Config {
	if c.AuthSecret != "" {
		c.AuthSecret = "*****"
	}
	if c.WebhookKey != "" {
		c.WebhookKey = "*****"
	}
	return c
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
