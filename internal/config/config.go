// Package config handles gpiobridge configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/gpiobridge/config.yaml,
// /etc/gpiobridge/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "gpiobridge", "config.yaml"))
	}

	paths = append(paths, "/etc/gpiobridge/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all gpiobridge configuration.
type Config struct {
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Hardware  HardwareConfig  `yaml:"hardware"`
	Reporting ReportingConfig `yaml:"reporting"`
	DataDir   string          `yaml:"data_dir"`
	LogLevel  string          `yaml:"log_level"`
	LogFormat string          `yaml:"log_format"`
}

// MQTTConfig defines the broker connection and topic namespace settings.
type MQTTConfig struct {
	// Broker is the broker URL, e.g. mqtt://10.0.0.5:1883 or
	// mqtts://broker.local:8883.
	Broker   string `yaml:"broker"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// ClientID is the unique client name. It is also the first segment
	// of every command and status topic this device uses.
	ClientID string `yaml:"client_id"`
	// KeepAliveSec is the MQTT keepalive interval (default 30).
	KeepAliveSec uint16 `yaml:"keepalive_sec"`
	// ConnectRetrySec is the delay between broker connection attempts.
	// Retries continue indefinitely (default 1).
	ConnectRetrySec int `yaml:"connect_retry_sec"`
	// DiscoveryPrefix is the Home Assistant MQTT discovery prefix
	// (default "homeassistant"). Empty disables discovery publishing.
	DiscoveryPrefix string `yaml:"discovery_prefix"`
	// PeerDevice is the client ID of a companion device whose LED is
	// driven by the high-temperature alert. Empty disables the alert.
	PeerDevice string `yaml:"peer_device"`
}

// Configured reports whether the minimum broker settings are present.
func (c MQTTConfig) Configured() bool {
	return c.Broker != "" && c.ClientID != ""
}

// HardwareConfig selects the GPIO chip, lines, and sensor sources.
type HardwareConfig struct {
	// GPIOChip is the character device name, e.g. "gpiochip0".
	GPIOChip string `yaml:"gpio_chip"`
	// LEDLine is the line offset of the LED output on GPIOChip.
	LEDLine int `yaml:"led_line"`
	// AnalogDevice is the IIO device directory for the ADC, e.g.
	// "/sys/bus/iio/devices/iio:device0".
	AnalogDevice string `yaml:"analog_device"`
	// AnalogChannel is the voltage channel index within AnalogDevice.
	AnalogChannel int `yaml:"analog_channel"`
	// Simulated replaces all hardware with an in-memory backend. Useful
	// for development on machines without GPIO.
	Simulated bool `yaml:"simulated"`
}

// ReportingConfig tunes the periodic status check.
type ReportingConfig struct {
	// PollIntervalSec is the status check period (default 1).
	PollIntervalSec int `yaml:"poll_interval_sec"`
	// AnalogDelta is the minimum change in the raw analog reading that
	// triggers a status publish (default 100).
	AnalogDelta int `yaml:"analog_delta"`
	// TempDelta is the minimum CPU temperature change in °C that
	// triggers a status publish (default 2.0).
	TempDelta float64 `yaml:"temp_delta"`
	// TempAlertHigh enables the high-temperature alert when the CPU
	// temperature rises above it (default 58).
	TempAlertHigh float64 `yaml:"temp_alert_high"`
	// TempAlertLow disables the alert when the temperature falls below
	// it (default 56). Must be below TempAlertHigh.
	TempAlertLow float64 `yaml:"temp_alert_low"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables so broker credentials can live
	// outside the file.
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a configuration with all tunables at their defaults.
// Broker settings are left empty and must come from the file.
func Default() *Config {
	return &Config{
		MQTT: MQTTConfig{
			KeepAliveSec:    30,
			ConnectRetrySec: 1,
			DiscoveryPrefix: "homeassistant",
		},
		Hardware: HardwareConfig{
			GPIOChip:     "gpiochip0",
			AnalogDevice: "/sys/bus/iio/devices/iio:device0",
		},
		Reporting: ReportingConfig{
			PollIntervalSec: 1,
			AnalogDelta:     100,
			TempDelta:       2.0,
			TempAlertHigh:   58,
			TempAlertLow:    56,
		},
		DataDir: "data",
	}
}

// Validate checks cross-field constraints that yaml decoding can't express.
func (c *Config) Validate() error {
	if !c.MQTT.Configured() {
		return fmt.Errorf("mqtt.broker and mqtt.client_id are required")
	}
	if c.MQTT.ConnectRetrySec < 1 {
		return fmt.Errorf("mqtt.connect_retry_sec must be at least 1, got %d", c.MQTT.ConnectRetrySec)
	}
	if c.Reporting.PollIntervalSec < 1 {
		return fmt.Errorf("reporting.poll_interval_sec must be at least 1, got %d", c.Reporting.PollIntervalSec)
	}
	if c.Reporting.AnalogDelta < 0 {
		return fmt.Errorf("reporting.analog_delta must not be negative, got %d", c.Reporting.AnalogDelta)
	}
	if c.Reporting.TempAlertLow >= c.Reporting.TempAlertHigh {
		return fmt.Errorf("reporting.temp_alert_low (%g) must be below temp_alert_high (%g)",
			c.Reporting.TempAlertLow, c.Reporting.TempAlertHigh)
	}
	if c.LogLevel != "" {
		if _, err := ParseLogLevel(c.LogLevel); err != nil {
			return err
		}
	}
	return nil
}
