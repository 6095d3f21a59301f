// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// isolate points CONFIG_PATH at a missing file and moves into an empty
// directory, so no config file on the host leaks into the test.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv(ConfigPathEnvVar, filepath.Join(dir, "missing.yaml"))
	return dir
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Reconnect.StaleDelay != 500*time.Millisecond {
		t.Errorf("Reconnect.StaleDelay = %v, want 500ms", cfg.Reconnect.StaleDelay)
	}
	if cfg.Reconnect.SettleDelay != time.Second {
		t.Errorf("Reconnect.SettleDelay = %v, want 1s", cfg.Reconnect.SettleDelay)
	}
	if cfg.Serial.BaudRate != 9600 {
		t.Errorf("Serial.BaudRate = %d, want 9600", cfg.Serial.BaudRate)
	}
	if cfg.Device.Target != TargetLaptop {
		t.Errorf("Device.Target = %s, want laptop", cfg.Device.Target)
	}
	if cfg.Device.HasPairedPhone() {
		t.Error("no phone should be paired by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadWithKoanf_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
	if cfg.Platform.ShutdownTimeout != 10*time.Second {
		t.Errorf("Platform.ShutdownTimeout = %v, want 10s", cfg.Platform.ShutdownTimeout)
	}
}

func TestLoadWithKoanf_EnvOverride(t *testing.T) {
	isolate(t)
	t.Setenv("IBUS_STALE_DELAY", "250ms")
	t.Setenv("IBUS_SETTLE_DELAY", "2s")
	t.Setenv("IBUS_SERIAL_PORT", "/dev/ttyAMA0")
	t.Setenv("IBUS_TARGET", "pi")
	t.Setenv("IBUS_PHONE_MAC", "aa:bb:cc:dd:ee:ff")
	t.Setenv("IBUS_DEBUG_ENABLED", "false")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("UNRELATED_VARIABLE", "ignored")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}
	if cfg.Reconnect.StaleDelay != 250*time.Millisecond {
		t.Errorf("StaleDelay = %v, want 250ms", cfg.Reconnect.StaleDelay)
	}
	if cfg.Reconnect.SettleDelay != 2*time.Second {
		t.Errorf("SettleDelay = %v, want 2s", cfg.Reconnect.SettleDelay)
	}
	if cfg.Serial.Port != "/dev/ttyAMA0" {
		t.Errorf("Serial.Port = %q", cfg.Serial.Port)
	}
	if !cfg.Device.IsPi() {
		t.Errorf("Device.Target = %s, want pi", cfg.Device.Target)
	}
	if cfg.Device.PairedPhone.MAC != "aa:bb:cc:dd:ee:ff" {
		t.Errorf("PairedPhone.MAC = %q", cfg.Device.PairedPhone.MAC)
	}
	if cfg.Debug.Enabled {
		t.Error("Debug.Enabled should be overridden to false")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadWithKoanf_FileThenEnv(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.yaml")
	content := `
reconnect:
  stale_delay: 750ms
serial:
  port: /dev/ttyS1
device:
  target: pi
  display_driver: mk4_nav
  paired_phone:
    name: Pixel
    mac: "AA:BB:CC:DD:EE:FF"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("IBUS_SERIAL_PORT", "/dev/ttyS2")

	cfg, err := LoadWithKoanf()
	if err != nil {
		t.Fatalf("LoadWithKoanf() error = %v", err)
	}
	if cfg.Reconnect.StaleDelay != 750*time.Millisecond {
		t.Errorf("StaleDelay = %v, want 750ms from file", cfg.Reconnect.StaleDelay)
	}
	if cfg.Reconnect.SettleDelay != time.Second {
		t.Errorf("SettleDelay = %v, want default 1s", cfg.Reconnect.SettleDelay)
	}
	if cfg.Serial.Port != "/dev/ttyS2" {
		t.Errorf("Serial.Port = %q, env should win over file", cfg.Serial.Port)
	}
	if cfg.Device.DisplayDriver != DisplayDriverMk4 || cfg.Device.PairedPhone.Name != "Pixel" {
		t.Errorf("Device = %+v", cfg.Device)
	}
}

func TestLoadWithKoanf_InvalidValue(t *testing.T) {
	isolate(t)
	t.Setenv("IBUS_TARGET", "toaster")

	_, err := LoadWithKoanf()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "Target must be one of") {
		t.Errorf("error = %v, want a readable Target message", err)
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"IBUS_SERIAL_PORT", "serial.port"},
		{"IBUS_STALE_DELAY", "reconnect.stale_delay"},
		{"IBUS_PHONE_MAC", "device.paired_phone.mac"},
		{"LOG_LEVEL", "logging.level"},
		{"HOME", ""},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := envTransformFunc(tt.key); got != tt.want {
				t.Errorf("envTransformFunc(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}
