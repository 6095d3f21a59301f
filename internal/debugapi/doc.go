// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

/*
Package debugapi serves the head unit's local debug HTTP API.

It is meant for a laptop on the car's network or a developer running the
platform on their desk, and binds to loopback by default.

Routes:

	GET  /healthz                          liveness plus whether a graph runs
	GET  /metrics                          Prometheus exposition
	GET  /api/v1/services                  run status snapshot, grouped
	GET  /api/v1/services/ws               run status snapshots over WebSocket
	POST /api/v1/services/{name}/start     start one service
	POST /api/v1/services/{name}/stop      stop one service
	GET  /api/v1/configuration             device configuration in use
	PUT  /api/v1/configuration             request a reconfiguration
	GET  /api/v1/track                     current Bluetooth track metadata

JSON bodies use the envelope

	{"status": "success", "data": ..., "metadata": {"timestamp": ...}}

and errors carry {"status": "error", "error": {"code": ..., "message": ...}}.

The WebSocket stream sends the current snapshot on connect and every
change after it; a slow reader only ever sees the latest snapshot.
*/
package debugapi
