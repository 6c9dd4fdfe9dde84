package cliconfig

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment variable beacond reads.
const EnvPrefix = "BEACOND_"

// LoadDotEnv loads variables from path into the environment without
// overriding ones already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// ApplyEnvConfig applies BEACOND_* environment variables. They override the
// config file but not explicitly set flags.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)
	env := func(name string) string { return os.Getenv(EnvPrefix + name) }

	s.setString("data-dir", env("DATA_DIR"), &cfg.DataDir)
	s.setString("store", env("STORE"), &cfg.StoreDriver)
	s.setString("store-path", env("STORE_PATH"), &cfg.StorePath)
	s.setString("radio-switch-file", env("RADIO_SWITCH_FILE"), &cfg.RadioSwitchFile)
	s.setString("http-addr", env("HTTP_ADDR"), &cfg.HTTPAddr)
	s.setString("auth-secret", env("AUTH_SECRET"), &cfg.AuthSecret)
	s.setString("mqtt-broker", env("MQTT_BROKER"), &cfg.MQTTBroker)
	s.setString("mqtt-topic", env("MQTT_TOPIC"), &cfg.MQTTTopic)
	s.setString("webhook-url", env("WEBHOOK_URL"), &cfg.WebhookURL)
	s.setString("webhook-key", env("WEBHOOK_KEY"), &cfg.WebhookKey)
	s.setString("log-level", env("LOG_LEVEL"), &cfg.LogLevel)
	s.setString("log-format", env("LOG_FORMAT"), &cfg.LogFormat)

	if err := s.setDuration("timeout", env("HTTP_TIMEOUT"), &cfg.HTTPTimeout); err != nil {
		return err
	}
	if err := s.setIntFromString("radio-slots", env("RADIO_SLOTS"), &cfg.RadioSlots); err != nil {
		return err
	}
	s.setBoolFromString("radio-disabled", env("RADIO_DISABLED"), &cfg.RadioDisabled)

	return nil
}
