// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DisplayDriver selects how the head unit draws to the car's screen.
type DisplayDriver string

const (
	// DisplayDriverTVModule drives the screen through the BMW TV module input.
	DisplayDriverTVModule DisplayDriver = "tv_module"
	// DisplayDriverMk4 drives the Mk4 navigation computer video output.
	DisplayDriverMk4 DisplayDriver = "mk4_nav"
)

// Target identifies the machine the platform runs on.
type Target string

const (
	TargetPi     Target = "pi"
	TargetLaptop Target = "laptop"
)

// PairedPhone identifies the phone the Bluetooth bridge connects to.
type PairedPhone struct {
	Name string `koanf:"name" json:"name"`
	MAC  string `koanf:"mac" json:"mac" validate:"omitempty,mac"`
}

// DeviceConfiguration describes the hardware the service graph is built for.
// It is an immutable value; two configurations are the same when Equal
// reports true, and only then is a reload skipped.
type DeviceConfiguration struct {
	DisplayDriver  DisplayDriver `koanf:"display_driver" json:"display_driver" validate:"required,oneof=tv_module mk4_nav"`
	Target         Target        `koanf:"target" json:"target" validate:"required,oneof=pi laptop"`
	PairedPhone    PairedPhone   `koanf:"paired_phone" json:"paired_phone"`
	PairingEnabled bool          `koanf:"pairing_enabled" json:"pairing_enabled"`
}

// LaptopDeviceConfiguration is the configuration used on a development host
// when nothing else is configured.
func LaptopDeviceConfiguration() DeviceConfiguration {
	return DeviceConfiguration{
		DisplayDriver: DisplayDriverTVModule,
		Target:        TargetLaptop,
	}
}

// Equal reports whether two configurations describe the same hardware.
func (d DeviceConfiguration) Equal(other DeviceConfiguration) bool {
	return d.DisplayDriver == other.DisplayDriver &&
		d.Target == other.Target &&
		d.PairingEnabled == other.PairingEnabled &&
		d.PairedPhone.Name == other.PairedPhone.Name &&
		strings.EqualFold(d.PairedPhone.MAC, other.PairedPhone.MAC)
}

// IsPi reports whether the platform runs on the in-car Raspberry Pi.
func (d DeviceConfiguration) IsPi() bool {
	return d.Target == TargetPi
}

// HasPairedPhone reports whether a phone MAC address is configured.
func (d DeviceConfiguration) HasPairedPhone() bool {
	return d.PairedPhone.MAC != ""
}

// String returns a compact description for logs.
func (d DeviceConfiguration) String() string {
	phone := "none"
	if d.HasPairedPhone() {
		phone = d.PairedPhone.MAC
	}
	return fmt.Sprintf("%s/%s phone=%s", d.Target, d.DisplayDriver, phone)
}

// ErrPairingRequiresPi is returned for a configuration that enables the
// pairing agent anywhere but the car.
var ErrPairingRequiresPi = errors.New("device: pairing_enabled requires target pi")

// Validate checks the configuration's struct tags and that pairing is only
// enabled on the Pi.
func (d DeviceConfiguration) Validate() error {
	if err := validateStruct(d); err != nil {
		return fmt.Errorf("device configuration: %w", err)
	}
	if d.PairingEnabled && !d.IsPi() {
		return ErrPairingRequiresPi
	}
	return nil
}

// LoadDeviceConfiguration reads a standalone device configuration file.
// Missing keys keep the laptop defaults. The result is validated.
//
// The file is the same shape as the "device" section of the main config:
//
//	display_driver: mk4_nav
//	target: pi
//	paired_phone:
//	  name: Pixel
//	  mac: "AA:BB:CC:DD:EE:FF"
func LoadDeviceConfiguration(path string) (DeviceConfiguration, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(LaptopDeviceConfiguration(), "koanf"), nil); err != nil {
		return DeviceConfiguration{}, fmt.Errorf("failed to load device defaults: %w", err)
	}

	if _, err := os.Stat(path); err != nil {
		return DeviceConfiguration{}, fmt.Errorf("device configuration %s: %w", path, err)
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return DeviceConfiguration{}, fmt.Errorf("failed to load device configuration %s: %w", path, err)
	}

	var device DeviceConfiguration
	if err := k.Unmarshal("", &device); err != nil {
		return DeviceConfiguration{}, fmt.Errorf("failed to unmarshal device configuration: %w", err)
	}
	if err := device.Validate(); err != nil {
		return DeviceConfiguration{}, err
	}
	return device, nil
}
