// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the process configuration.
//
// Load it with LoadWithKoanf; defaults are applied first, then the optional
// YAML file, then environment variables.
type Config struct {
	Logging     LoggingConfig       `koanf:"logging"`
	Platform    PlatformConfig      `koanf:"platform"`
	Reconnect   ReconnectConfig     `koanf:"reconnect"`
	Serial      SerialConfig        `koanf:"serial"`
	Diagnostics DiagnosticsConfig   `koanf:"diagnostics"`
	Device      DeviceConfiguration `koanf:"device"`
	Debug       DebugConfig         `koanf:"debug"`
}

// LoggingConfig holds zerolog settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal panic disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// PlatformConfig holds supervisor timing.
type PlatformConfig struct {
	// ShutdownTimeout bounds how long each supervisor waits for its
	// services to stop.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`

	// FailureThreshold, FailureDecay and FailureBackoff tune restarts of
	// the process-level services (debug API, config watcher).
	FailureThreshold float64       `koanf:"failure_threshold" validate:"gt=0"`
	FailureDecay     float64       `koanf:"failure_decay" validate:"gt=0"`
	FailureBackoff   time.Duration `koanf:"failure_backoff" validate:"gt=0"`

	// DeviceFile, when set, is a standalone device configuration file that
	// is watched; edits reconfigure the running platform.
	DeviceFile string `koanf:"device_file"`
}

// ReconnectConfig holds the Bluetooth bridge timing and breaker settings.
type ReconnectConfig struct {
	// StaleDelay is the pause after a stale player handle before the
	// reconnect handshake.
	StaleDelay time.Duration `koanf:"stale_delay" validate:"gte=0"`

	// SettleDelay is the pause between a track change and the metadata
	// fetch, giving the phone time to switch tracks.
	SettleDelay time.Duration `koanf:"settle_delay" validate:"gte=0"`

	BreakerFailureThreshold uint32        `koanf:"breaker_failure_threshold" validate:"gt=0"`
	BreakerTimeout          time.Duration `koanf:"breaker_timeout" validate:"gt=0"`
	BreakerInterval         time.Duration `koanf:"breaker_interval" validate:"gte=0"`

	// Adapter is the BlueZ adapter name.
	Adapter string `koanf:"adapter" validate:"required"`
}

// SerialConfig holds the IBus serial port settings.
type SerialConfig struct {
	Port          string        `koanf:"port" validate:"required"`
	BaudRate      int           `koanf:"baud_rate" validate:"gt=0"`
	ReadTimeout   time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteInterval time.Duration `koanf:"write_interval" validate:"gte=0"`
}

// DiagnosticsConfig selects the optional logging services.
type DiagnosticsConfig struct {
	Metronome         bool          `koanf:"metronome"`
	MetronomeInterval time.Duration `koanf:"metronome_interval" validate:"gt=0"`
	PrintMessages     bool          `koanf:"print_messages"`
	PrintInputEvents  bool          `koanf:"print_input_events"`
}

// DebugConfig holds the status HTTP API settings.
type DebugConfig struct {
	Enabled      bool          `koanf:"enabled"`
	Addr         string        `koanf:"addr" validate:"required_if=Enabled true,omitempty,hostname_port"`
	ReadTimeout  time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout time.Duration `koanf:"write_timeout" validate:"gt=0"`
}

// Validate checks every section and returns the joined errors.
func (c *Config) Validate() error {
	var errs []error
	for _, section := range []struct {
		name  string
		value any
	}{
		{"logging", c.Logging},
		{"platform", c.Platform},
		{"reconnect", c.Reconnect},
		{"serial", c.Serial},
		{"diagnostics", c.Diagnostics},
		{"debug", c.Debug},
	} {
		if err := validateStruct(section.value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", section.name, err))
		}
	}
	if err := c.Device.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
