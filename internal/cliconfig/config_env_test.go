package cliconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestApplyEnvConfig(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		changed  map[string]bool
		initial  Config
		expected Config
		wantErr  bool
	}{
		{
			name: "applies all valid env vars",
			envVars: map[string]string{
				"BEACOND_DATA_DIR":       "/env/data",
				"BEACOND_STORE":          "file",
				"BEACOND_HTTP_TIMEOUT":   "30s",
				"BEACOND_RADIO_SLOTS":    "2",
				"BEACOND_RADIO_DISABLED": "true",
				"BEACOND_MQTT_BROKER":    "tcp://broker:1883",
			},
			changed: map[string]bool{},
			initial: Config{},
			expected: Config{
				DataDir:       "/env/data",
				StoreDriver:   "file",
				HTTPTimeout:   30 * time.Second,
				RadioSlots:    2,
				RadioDisabled: true,
				MQTTBroker:    "tcp://broker:1883",
			},
		},
		{
			name: "respects changed flags",
			envVars: map[string]string{
				"BEACOND_DATA_DIR":  "/env/data",
				"BEACOND_HTTP_ADDR": ":9000",
			},
			changed: map[string]bool{"data-dir": true},
			initial: Config{DataDir: "/flag/data"},
			expected: Config{
				DataDir:  "/flag/data",
				HTTPAddr: ":9000",
			},
		},
		{
			name:    "returns error for invalid duration",
			envVars: map[string]string{"BEACOND_HTTP_TIMEOUT": "not-a-duration"},
			changed: map[string]bool{},
			wantErr: true,
		},
		{
			name:    "returns error for invalid int",
			envVars: map[string]string{"BEACOND_RADIO_SLOTS": "many"},
			changed: map[string]bool{},
			wantErr: true,
		},
		{
			name:     "handles bool '1' as true",
			envVars:  map[string]string{"BEACOND_RADIO_DISABLED": "1"},
			changed:  map[string]bool{},
			expected: Config{RadioDisabled: true},
		},
		{
			name:     "handles bool 'false' as false",
			envVars:  map[string]string{"BEACOND_RADIO_DISABLED": "false"},
			changed:  map[string]bool{},
			initial:  Config{RadioDisabled: true},
			expected: Config{RadioDisabled: false},
		},
		{
			name: "handles all string fields",
			envVars: map[string]string{
				"BEACOND_STORE_PATH":        "/db/beacons.db",
				"BEACOND_RADIO_SWITCH_FILE": "/run/radio",
				"BEACOND_AUTH_SECRET":       "secret",
				"BEACOND_MQTT_TOPIC":        "site/a",
				"BEACOND_WEBHOOK_URL":       "https://hooks.example.com",
				"BEACOND_WEBHOOK_KEY":       "key",
				"BEACOND_LOG_LEVEL":         "debug",
				"BEACOND_LOG_FORMAT":        "json",
			},
			changed: map[string]bool{},
			expected: Config{
				StorePath:       "/db/beacons.db",
				RadioSwitchFile: "/run/radio",
				AuthSecret:      "secret",
				MQTTTopic:       "site/a",
				WebhookURL:      "https://hooks.example.com",
				WebhookKey:      "key",
				LogLevel:        "debug",
				LogFormat:       "json",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg := tt.initial
			err := ApplyEnvConfig(&cfg, tt.changed)

			if tt.wantErr {
				if err == nil {
					t.Error("ApplyEnvConfig() expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("ApplyEnvConfig() unexpected error: %v", err)
			}
			if cfg != tt.expected {
				t.Errorf("ApplyEnvConfig() = %+v, want %+v", cfg, tt.expected)
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("BEACOND_HTTP_ADDR=:7000\nBEACOND_LOG_LEVEL=warn\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	// Already set variables win over the file.
	t.Setenv("BEACOND_LOG_LEVEL", "error")
	t.Setenv("BEACOND_HTTP_ADDR", "")
	os.Unsetenv("BEACOND_HTTP_ADDR")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	if got := os.Getenv("BEACOND_HTTP_ADDR"); got != ":7000" {
		t.Errorf("BEACOND_HTTP_ADDR = %q, want :7000", got)
	}
	if got := os.Getenv("BEACOND_LOG_LEVEL"); got != "error" {
		t.Errorf("BEACOND_LOG_LEVEL = %q, want error", got)
	}

	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("LoadDotEnv() missing file error = %v", err)
	}
}

// Integration test: precedence order (CLI > Env > File)
func TestConfigPrecedence(t *testing.T) {
	trueVal := true

	fileConf := FileConfig{
		DataDir:       "/file/data",
		HTTPAddr:      ":1111",
		RadioDisabled: &trueVal,
	}

	t.Setenv("BEACOND_DATA_DIR", "/env/data")
	t.Setenv("BEACOND_HTTP_ADDR", ":2222")
	t.Setenv("BEACOND_STORE", "file")

	changed := map[string]bool{
		"data-dir": true,
	}
	cfg := Config{
		DataDir: "/cli/data",
	}

	if err := ApplyFileConfig(&cfg, fileConf, changed); err != nil {
		t.Fatalf("ApplyFileConfig failed: %v", err)
	}
	if err := ApplyEnvConfig(&cfg, changed); err != nil {
		t.Fatalf("ApplyEnvConfig failed: %v", err)
	}

	if cfg.DataDir != "/cli/data" {
		t.Errorf("DataDir = %v, want /cli/data (CLI should win)", cfg.DataDir)
	}
	if cfg.HTTPAddr != ":2222" {
		t.Errorf("HTTPAddr = %v, want :2222 (env should override file)", cfg.HTTPAddr)
	}
	if cfg.StoreDriver != "file" {
		t.Errorf("StoreDriver = %v, want file (env should set)", cfg.StoreDriver)
	}
	if !cfg.RadioDisabled {
		t.Errorf("RadioDisabled = %v, want true (file should set)", cfg.RadioDisabled)
	}
}
