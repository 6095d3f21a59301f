// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

/*
Package config loads and validates the head unit configuration.

# Configuration Sources

Sources are layered with koanf, later layers overriding earlier ones:

  - Built-in defaults (a laptop with a loopback bus)
  - An optional YAML file: $CONFIG_PATH, ./config.yaml or
    /etc/ibusplatform/config.yaml
  - Environment variables (LOG_LEVEL, IBUS_SERIAL_PORT, IBUS_PHONE_MAC, ...)

# Configuration Structure

  - LoggingConfig: zerolog level, format and caller
  - PlatformConfig: supervisor timeouts and the watched device file
  - ReconnectConfig: Bluetooth stale and settle delays, breaker settings
  - SerialConfig: IBus port, baud rate and write pacing
  - DiagnosticsConfig: optional traffic printers and heartbeat
  - DeviceConfiguration: the hardware the service graph is built for
  - DebugConfig: the status HTTP API

# Example

	logging:
	  level: debug
	reconnect:
	  stale_delay: 500ms
	  settle_delay: 1s
	serial:
	  port: /dev/ttyAMA0
	device:
	  target: pi
	  display_driver: mk4_nav
	  paired_phone:
	    name: Pixel
	    mac: "AA:BB:CC:DD:EE:FF"

# Device Configuration

DeviceConfiguration is a value object. The platform rebuilds its service
graph only when a new configuration is not Equal to the running one. It can
also live in its own file (PlatformConfig.DeviceFile), read with
LoadDeviceConfiguration and watched for edits.

# Validation

Struct tags are checked with go-playground/validator; failures are returned
as *ValidationError with one readable message per field.
*/
package config
