// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, in order.
// The first file found is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/ibusplatform/config.yaml",
	"/etc/ibusplatform/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns the built-in defaults. They describe a laptop with
// a loopback bus, so the process starts with no configuration at all.
func defaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Platform: PlatformConfig{
			ShutdownTimeout:  10 * time.Second,
			FailureThreshold: 5.0,
			FailureDecay:     30.0,
			FailureBackoff:   15 * time.Second,
			DeviceFile:       "",
		},
		Reconnect: ReconnectConfig{
			StaleDelay:              500 * time.Millisecond,
			SettleDelay:             time.Second,
			BreakerFailureThreshold: 5,
			BreakerTimeout:          30 * time.Second,
			BreakerInterval:         time.Minute,
			Adapter:                 "hci0",
		},
		Serial: SerialConfig{
			Port:          "/dev/ttyUSB0",
			BaudRate:      9600,
			ReadTimeout:   100 * time.Millisecond,
			WriteInterval: 20 * time.Millisecond,
		},
		Diagnostics: DiagnosticsConfig{
			Metronome:         false,
			MetronomeInterval: 10 * time.Second,
			PrintMessages:     false,
			PrintInputEvents:  true,
		},
		Device: LaptopDeviceConfiguration(),
		Debug: DebugConfig{
			Enabled:      true,
			Addr:         "127.0.0.1:8089",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// LoadWithKoanf loads configuration with layered sources:
//  1. Defaults: defaultConfig
//  2. Config file: optional YAML (CONFIG_PATH or DefaultConfigPaths)
//  3. Environment variables: the IBUS_* names in envTransformFunc
//
// The result is validated.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns the first config file that exists, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envMappings maps lower-cased environment variable names to config paths.
// Variables not listed are ignored.
var envMappings = map[string]string{
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	"ibus_shutdown_timeout": "platform.shutdown_timeout",
	"ibus_device_file":      "platform.device_file",

	"ibus_stale_delay":               "reconnect.stale_delay",
	"ibus_settle_delay":              "reconnect.settle_delay",
	"ibus_breaker_failure_threshold": "reconnect.breaker_failure_threshold",
	"ibus_breaker_timeout":           "reconnect.breaker_timeout",
	"ibus_breaker_interval":          "reconnect.breaker_interval",
	"ibus_bluetooth_adapter":         "reconnect.adapter",

	"ibus_serial_port":           "serial.port",
	"ibus_serial_baud_rate":      "serial.baud_rate",
	"ibus_serial_read_timeout":   "serial.read_timeout",
	"ibus_serial_write_interval": "serial.write_interval",

	"ibus_metronome":          "diagnostics.metronome",
	"ibus_metronome_interval": "diagnostics.metronome_interval",
	"ibus_print_messages":     "diagnostics.print_messages",
	"ibus_print_input_events": "diagnostics.print_input_events",

	"ibus_display_driver":  "device.display_driver",
	"ibus_target":          "device.target",
	"ibus_phone_name":      "device.paired_phone.name",
	"ibus_phone_mac":       "device.paired_phone.mac",
	"ibus_pairing_enabled": "device.pairing_enabled",

	"ibus_debug_enabled": "debug.enabled",
	"ibus_debug_addr":    "debug.addr",
}

// envTransformFunc maps an environment variable name to a koanf path.
//
// Examples:
//   - IBUS_SERIAL_PORT -> serial.port
//   - IBUS_STALE_DELAY -> reconnect.stale_delay
//   - LOG_LEVEL -> logging.level
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
