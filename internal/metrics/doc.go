// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

/*
Package metrics provides Prometheus metrics for the head unit platform.

All collectors are registered on the default registry through promauto and
exposed by the debug API at /metrics:

	curl http://pi.local:8091/metrics

# Available Metrics

Platform:
  - platform_service_running{group,service}: 1 while a service runs
  - platform_service_transitions_total{service,status}
  - platform_service_failures_total{group,service}
  - platform_reconfigurations_total{target}

Mailboxes:
  - mailbox_deliveries_total{dispatcher}
  - mailbox_registered{dispatcher}
  - mailbox_dropped_total{dispatcher}

IBus:
  - ibus_frames_total{direction}
  - ibus_frame_errors_total{reason}
  - ibus_input_events_total{event}
  - ibus_outbound_queue_depth

Bluetooth:
  - bluetooth_reconnects_total{result}
  - bluetooth_reconnect_duration_seconds
  - bluetooth_session_generation
  - bluetooth_commands_total{command,result}
  - bluetooth_track_fetches_total{result}
  - bluetooth_pairing_requests_total{method,result}
  - circuit_breaker_state{name} (0=closed, 1=half-open, 2=open)
  - circuit_breaker_requests_total{name,result}
  - circuit_breaker_consecutive_failures{name}
  - circuit_breaker_state_transitions_total{name,from_state,to_state}

Debug API:
  - api_requests_total{method,endpoint,status_code}
  - api_request_duration_seconds{method,endpoint}
  - websocket_connections
  - websocket_messages_sent_total

# Usage

Packages record through the Record* helpers rather than touching the
collectors directly:

	metrics.RecordServiceStatus("ibus", "ibus-listener", "running")
	metrics.RecordReconnect("success", elapsed, session.Generation)

# Thread Safety

All collectors are safe for concurrent use.
*/
package metrics
