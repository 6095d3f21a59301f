// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

/*
Command headunit runs the BMW IBus head unit platform.

The process hosts a Suture v4 supervision tree:

	RootSupervisor ("ibusplatform")
	├── PlatformSupervisor ("platform-layer")
	│   ├── platform-host            (runs the device service graph)
	│   └── device-config-watcher    (optional, platform.device_file)
	└── APISupervisor ("api-layer")
	    └── debug-api                (optional, debug.enabled)

The platform host in turn owns the per-device service graph built by
internal/car: the IBus listener, parser and publisher, the Bluetooth
bridge and pairing agent, and the optional diagnostics printers. That graph
is rebuilt whenever the device configuration changes.

Startup order:

 1. Configuration: koanf v2 defaults, YAML file, IBUS_* environment
 2. Logging: zerolog, console or JSON
 3. Service graph factory and the configurable platform
 4. Supervisor tree with the host, watcher and debug API
 5. Signal handling: SIGINT and SIGTERM cancel the tree; the host stops
    the platform explicitly before it returns

Usage:

	headunit                    # same as "headunit run"
	headunit run --config /etc/ibusplatform/config.yaml
	headunit validate           # load and validate the configuration only
	headunit version
*/
package main
