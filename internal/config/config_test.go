package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// minimal valid config body used by tests that only care about one field.
const validYAML = "mqtt:\n  broker: mqtt://localhost:1883\n  client_id: Arduino\n"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}
	return path
}

func TestFindConfig_Explicit(t *testing.T) {
	path := writeConfig(t, validYAML)

	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig(%q) error: %v", path, err)
	}
	if got != path {
		t.Errorf("FindConfig(%q) = %q, want %q", path, got, path)
	}
}

func TestFindConfig_ExplicitMissing(t *testing.T) {
	_, err := FindConfig("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("FindConfig with missing explicit path should error")
	}
}

func TestFindConfig_SearchPath(t *testing.T) {
	// When no config exists anywhere, should error
	// (Save and restore CWD to avoid finding the repo's config.yaml)
	dir := t.TempDir()
	orig, _ := os.Getwd()
	os.Chdir(dir)
	defer os.Chdir(orig)

	_, err := FindConfig("")
	if err == nil {
		t.Fatal("FindConfig(\"\") with no config files should error")
	}
}

func TestFindConfig_CWD(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte(validYAML), 0600)

	orig, _ := os.Getwd()
	os.Chdir(dir)
	defer os.Chdir(orig)

	got, err := FindConfig("")
	if err != nil {
		t.Fatalf("FindConfig(\"\") error: %v", err)
	}
	if got != "config.yaml" {
		t.Errorf("FindConfig(\"\") = %q, want %q", got, "config.yaml")
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	path := writeConfig(t, validYAML+"  password: ${GPIOBRIDGE_TEST_PW}\n")
	os.Setenv("GPIOBRIDGE_TEST_PW", "secret123")
	defer os.Unsetenv("GPIOBRIDGE_TEST_PW")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.MQTT.Password != "secret123" {
		t.Errorf("password = %q, want %q", cfg.MQTT.Password, "secret123")
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.MQTT.ConnectRetrySec != 1 {
		t.Errorf("ConnectRetrySec = %d, want 1", cfg.MQTT.ConnectRetrySec)
	}
	if cfg.MQTT.DiscoveryPrefix != "homeassistant" {
		t.Errorf("DiscoveryPrefix = %q, want %q", cfg.MQTT.DiscoveryPrefix, "homeassistant")
	}
	if cfg.Reporting.PollIntervalSec != 1 {
		t.Errorf("PollIntervalSec = %d, want 1", cfg.Reporting.PollIntervalSec)
	}
	if cfg.Reporting.AnalogDelta != 100 {
		t.Errorf("AnalogDelta = %d, want 100", cfg.Reporting.AnalogDelta)
	}
	if cfg.Reporting.TempDelta != 2.0 {
		t.Errorf("TempDelta = %g, want 2", cfg.Reporting.TempDelta)
	}
	if cfg.Hardware.GPIOChip != "gpiochip0" {
		t.Errorf("GPIOChip = %q, want %q", cfg.Hardware.GPIOChip, "gpiochip0")
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	body := validYAML +
		"  connect_retry_sec: 5\n" +
		"reporting:\n  analog_delta: 25\n  poll_interval_sec: 10\n"
	cfg, err := Load(writeConfig(t, body))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.MQTT.ConnectRetrySec != 5 {
		t.Errorf("ConnectRetrySec = %d, want 5", cfg.MQTT.ConnectRetrySec)
	}
	if cfg.Reporting.AnalogDelta != 25 {
		t.Errorf("AnalogDelta = %d, want 25", cfg.Reporting.AnalogDelta)
	}
	if cfg.Reporting.PollIntervalSec != 10 {
		t.Errorf("PollIntervalSec = %d, want 10", cfg.Reporting.PollIntervalSec)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.MQTT.Broker = "mqtt://localhost:1883"
		cfg.MQTT.ClientID = "Arduino"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing broker", func(c *Config) { c.MQTT.Broker = "" }, "mqtt.broker"},
		{"missing client_id", func(c *Config) { c.MQTT.ClientID = "" }, "mqtt.broker"},
		{"zero retry interval", func(c *Config) { c.MQTT.ConnectRetrySec = 0 }, "connect_retry_sec"},
		{"zero poll interval", func(c *Config) { c.Reporting.PollIntervalSec = 0 }, "poll_interval_sec"},
		{"negative analog delta", func(c *Config) { c.Reporting.AnalogDelta = -1 }, "analog_delta"},
		{"inverted alert thresholds", func(c *Config) { c.Reporting.TempAlertLow = 60 }, "temp_alert_low"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"", false},
		{"info", false},
		{"trace", false},
		{"debug", false},
		{"warn", false},
		{"warning", false},
		{"error", false},
		{" Debug ", false},
		{"loud", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			_, err := ParseLogLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseLogLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
		})
	}
}
