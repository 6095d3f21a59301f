// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

/*
Package supervisor supervises the process-level services with suture v4.

# Overview

	RootSupervisor ("ibusplatform")
	├── PlatformSupervisor ("platform-layer")
	│   ├── PlatformHostService (the head unit platform)
	│   └── DeviceConfigWatcher (if platform.device_file is set)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService (status API, if debug.enabled)

The head unit's own services are not in this tree. They belong to the
platform package's Runner, which never restarts them automatically; the
host service is the only bridge between the two.

# Failure Handling

Process-level services are restarted with suture's decaying failure
counter:

	config := supervisor.TreeConfig{
	    FailureThreshold: 5.0,
	    FailureDecay:     30.0,
	    FailureBackoff:   15 * time.Second,
	    ShutdownTimeout:  10 * time.Second,
	}

A platform host that cannot build its graph (for example, the serial
adapter is unplugged) is retried with backoff; a crashing status API does
not touch the platform layer.

# Debugging Shutdown Issues

	report, err := tree.UnstoppedServiceReport()
	for _, svc := range report {
	    logging.Warn().Str("service", svc.Name).Msg("Service did not stop")
	}
*/
package supervisor
