package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/bft-labs/beacons/pkg/beacons"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	DataDir         string `toml:"data_dir"`
	Store           string `toml:"store"`
	StorePath       string `toml:"store_path"`
	RadioSlots      int    `toml:"radio_slots"`
	RadioDisabled   *bool  `toml:"radio_disabled"`
	RadioSwitchFile string `toml:"radio_switch_file"`
	HTTPAddr        string `toml:"http_addr"`
	AuthSecret      string `toml:"auth_secret"`
	MQTTBroker      string `toml:"mqtt_broker"`
	MQTTTopic       string `toml:"mqtt_topic"`
	WebhookURL      string `toml:"webhook_url"`
	WebhookKey      string `toml:"webhook_key"`
	HTTPTimeout     string `toml:"http_timeout"`
	LogLevel        string `toml:"log_level"`
	LogFormat       string `toml:"log_format"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.beacond/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, beacons.DefaultDataDir, "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("data-dir", fc.DataDir, &cfg.DataDir)
	s.setString("store", fc.Store, &cfg.StoreDriver)
	s.setString("store-path", fc.StorePath, &cfg.StorePath)
	s.setString("radio-switch-file", fc.RadioSwitchFile, &cfg.RadioSwitchFile)
	s.setString("http-addr", fc.HTTPAddr, &cfg.HTTPAddr)
	s.setString("auth-secret", fc.AuthSecret, &cfg.AuthSecret)
	s.setString("mqtt-broker", fc.MQTTBroker, &cfg.MQTTBroker)
	s.setString("mqtt-topic", fc.MQTTTopic, &cfg.MQTTTopic)
	s.setString("webhook-url", fc.WebhookURL, &cfg.WebhookURL)
	s.setString("webhook-key", fc.WebhookKey, &cfg.WebhookKey)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("log-format", fc.LogFormat, &cfg.LogFormat)

	if err := s.setDuration("timeout", fc.HTTPTimeout, &cfg.HTTPTimeout); err != nil {
		return err
	}

	s.setInt("radio-slots", fc.RadioSlots, &cfg.RadioSlots)
	s.setBool("radio-disabled", fc.RadioDisabled, &cfg.RadioDisabled)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
