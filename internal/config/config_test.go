// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "Level must be one of"},
		{"zero shutdown timeout", func(c *Config) { c.Platform.ShutdownTimeout = 0 }, "ShutdownTimeout must be greater than"},
		{"negative stale delay", func(c *Config) { c.Reconnect.StaleDelay = -time.Second }, "StaleDelay must be greater than or equal to"},
		{"zero stale delay allowed", func(c *Config) { c.Reconnect.StaleDelay = 0 }, ""},
		{"empty serial port", func(c *Config) { c.Serial.Port = "" }, "Port is required"},
		{"bad phone mac", func(c *Config) { c.Device.PairedPhone.MAC = "phone" }, "MAC must be a MAC address"},
		{"debug without addr", func(c *Config) { c.Debug.Addr = "" }, "Addr is required"},
		{"debug disabled without addr", func(c *Config) { c.Debug.Enabled = false; c.Debug.Addr = "" }, ""},
		{"pairing on laptop", func(c *Config) { c.Device.PairingEnabled = true }, "pairing_enabled requires target pi"},
		{"pairing on pi", func(c *Config) {
			c.Device.Target = TargetPi
			c.Device.PairingEnabled = true
		}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateStruct_FieldErrors(t *testing.T) {
	err := validateStruct(DeviceConfiguration{})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("error = %T, want *ValidationError", err)
	}
	if len(ve.Fields) != 2 {
		t.Fatalf("fields = %+v, want DisplayDriver and Target", ve.Fields)
	}
	for _, fe := range ve.Fields {
		if fe.Tag != "required" {
			t.Errorf("%s tag = %s, want required", fe.Field, fe.Tag)
		}
	}
	if validateStruct(LaptopDeviceConfiguration()) != nil {
		t.Error("laptop configuration should validate")
	}
}

func TestDeviceConfiguration_Equal(t *testing.T) {
	base := DeviceConfiguration{
		DisplayDriver: DisplayDriverMk4,
		Target:        TargetPi,
		PairedPhone:   PairedPhone{Name: "Pixel", MAC: "AA:BB:CC:DD:EE:FF"},
	}
	tests := []struct {
		name  string
		other DeviceConfiguration
		want  bool
	}{
		{"identical", base, true},
		{"mac case differs", func() DeviceConfiguration {
			d := base
			d.PairedPhone.MAC = "aa:bb:cc:dd:ee:ff"
			return d
		}(), true},
		{"other phone", func() DeviceConfiguration {
			d := base
			d.PairedPhone.MAC = "11:22:33:44:55:66"
			return d
		}(), false},
		{"other driver", func() DeviceConfiguration {
			d := base
			d.DisplayDriver = DisplayDriverTVModule
			return d
		}(), false},
		{"pairing toggled", func() DeviceConfiguration {
			d := base
			d.PairingEnabled = true
			return d
		}(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := base.Equal(tt.other); got != tt.want {
				t.Errorf("Equal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDeviceConfiguration_String(t *testing.T) {
	if got := LaptopDeviceConfiguration().String(); got != "laptop/tv_module phone=none" {
		t.Errorf("String() = %q", got)
	}
}

func TestLoadDeviceConfiguration(t *testing.T) {
	dir := t.TempDir()

	t.Run("partial file keeps defaults", func(t *testing.T) {
		path := filepath.Join(dir, "device.yaml")
		if err := os.WriteFile(path, []byte("paired_phone:\n  mac: \"AA:BB:CC:DD:EE:FF\"\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		d, err := LoadDeviceConfiguration(path)
		if err != nil {
			t.Fatalf("LoadDeviceConfiguration() error = %v", err)
		}
		if d.Target != TargetLaptop || d.DisplayDriver != DisplayDriverTVModule {
			t.Errorf("defaults lost: %+v", d)
		}
		if !d.HasPairedPhone() {
			t.Error("phone should be set from file")
		}
	})

	t.Run("invalid target", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		if err := os.WriteFile(path, []byte("target: toaster\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadDeviceConfiguration(path); err == nil {
			t.Error("expected validation error")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := LoadDeviceConfiguration(filepath.Join(dir, "nope.yaml")); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("error = %v, want not exist", err)
		}
	})
}

func TestDeviceConfiguration_Validate(t *testing.T) {
	tests := []struct {
		name    string
		device  DeviceConfiguration
		wantErr error
		ok      bool
	}{
		{"laptop", LaptopDeviceConfiguration(), nil, true},
		{"pairing on pi", DeviceConfiguration{DisplayDriver: DisplayDriverMk4, Target: TargetPi, PairingEnabled: true}, nil, true},
		{"pairing on laptop", DeviceConfiguration{DisplayDriver: DisplayDriverMk4, Target: TargetLaptop, PairingEnabled: true}, ErrPairingRequiresPi, false},
		{"unknown target", DeviceConfiguration{DisplayDriver: DisplayDriverMk4, Target: "toaster"}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.device.Validate()
			if tt.ok {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate() should fail")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
