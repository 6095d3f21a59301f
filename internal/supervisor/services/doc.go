// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

/*
Package services provides the suture.Service implementations hosted by the
supervisor tree.

  - PlatformHostService: runs the ConfigurablePlatform, applies requested
    reconfigurations one at a time and stops the platform explicitly when
    its context ends.
  - DeviceConfigWatcher: watches the standalone device configuration file
    with fsnotify and asks the host to reconfigure when the file describes
    a different configuration.
  - HTTPServerService: runs an *http.Server with graceful shutdown.

Every service implements fmt.Stringer so suture's event log names it.
*/
package services
