// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Platform Metrics
	ServiceRunning = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "platform_service_running",
			Help: "Whether a platform service is running (1) or not (0)",
		},
		[]string{"group", "service"},
	)

	ServiceTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platform_service_transitions_total",
			Help: "Total number of service run status transitions",
		},
		[]string{"service", "status"}, // status: "not_running", "running", "failed"
	)

	ServiceFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platform_service_failures_total",
			Help: "Total number of service tasks that ended with a failure",
		},
		[]string{"group", "service"},
	)

	PlatformReconfigurations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platform_reconfigurations_total",
			Help: "Total number of service graphs built for a device configuration",
		},
		[]string{"target"},
	)

	// Mailbox Metrics
	MailboxDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailbox_deliveries_total",
			Help: "Total number of events delivered to mailboxes",
		},
		[]string{"dispatcher"},
	)

	MailboxesRegistered = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mailbox_registered",
			Help: "Current number of mailboxes registered with a dispatcher",
		},
		[]string{"dispatcher"},
	)

	MailboxDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailbox_dropped_total",
			Help: "Total number of events not delivered because a mailbox was closed",
		},
		[]string{"dispatcher"},
	)

	// IBus Metrics
	IBusFrames = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ibus_frames_total",
			Help: "Total number of IBus frames read or written",
		},
		[]string{"direction"}, // "in", "out"
	)

	IBusFrameErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ibus_frame_errors_total",
			Help: "Total number of IBus frame errors",
		},
		[]string{"reason"}, // "checksum", "length", "write"
	)

	IBusInputEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ibus_input_events_total",
			Help: "Total number of input events parsed from IBus frames",
		},
		[]string{"event"},
	)

	IBusOutboundQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ibus_outbound_queue_depth",
			Help: "Current number of frames waiting to be written to the bus",
		},
	)

	// Bluetooth Metrics
	BluetoothReconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bluetooth_reconnects_total",
			Help: "Total number of media session reconnect attempts",
		},
		[]string{"result"}, // "success", "failure", "rejected"
	)

	BluetoothReconnectDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bluetooth_reconnect_duration_seconds",
			Help:    "Duration of media session reconnect handshakes",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	BluetoothSessionGeneration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bluetooth_session_generation",
			Help: "Generation number of the current media session",
		},
	)

	BluetoothCommands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bluetooth_commands_total",
			Help: "Total number of remote media commands issued",
		},
		[]string{"command", "result"},
	)

	BluetoothTrackFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bluetooth_track_fetches_total",
			Help: "Total number of track metadata fetches",
		},
		[]string{"result"}, // "success", "failure"
	)

	PairingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bluetooth_pairing_requests_total",
			Help: "Total number of pairing agent requests",
		},
		[]string{"method", "result"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_consecutive_failures",
			Help: "Current number of consecutive failures",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Debug API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of debug API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Debug API request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"method", "endpoint"},
	)

	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of status stream WebSocket connections",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of status snapshots sent over WebSocket",
		},
	)

	// Application Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)
)

// RecordServiceStatus records a service run status transition.
func RecordServiceStatus(group, service, status string) {
	ServiceTransitions.WithLabelValues(service, status).Inc()
	if status == "running" {
		ServiceRunning.WithLabelValues(group, service).Set(1)
	} else {
		ServiceRunning.WithLabelValues(group, service).Set(0)
	}
	if status == "failed" {
		ServiceFailures.WithLabelValues(group, service).Inc()
	}
}

// RecordPlatformReconfiguration records a new service graph.
func RecordPlatformReconfiguration(target string) {
	PlatformReconfigurations.WithLabelValues(target).Inc()
}

// RecordMailboxDispatch records one dispatch reaching delivered mailboxes
// and missing dropped ones.
func RecordMailboxDispatch(dispatcher string, delivered, dropped int) {
	MailboxDeliveries.WithLabelValues(dispatcher).Add(float64(delivered))
	if dropped > 0 {
		MailboxDropped.WithLabelValues(dispatcher).Add(float64(dropped))
	}
}

// SetMailboxCount records the number of registered mailboxes.
func SetMailboxCount(dispatcher string, count int) {
	MailboxesRegistered.WithLabelValues(dispatcher).Set(float64(count))
}

// RecordIBusFrame records a frame read from ("in") or written to ("out")
// the bus.
func RecordIBusFrame(direction string) {
	IBusFrames.WithLabelValues(direction).Inc()
}

// RecordIBusFrameError records a malformed or unwritable frame.
func RecordIBusFrameError(reason string) {
	IBusFrameErrors.WithLabelValues(reason).Inc()
}

// RecordInputEvent records a parsed input event.
func RecordInputEvent(event string) {
	IBusInputEvents.WithLabelValues(event).Inc()
}

// RecordReconnect records one media session reconnect attempt.
func RecordReconnect(result string, duration time.Duration, generation uint64) {
	BluetoothReconnects.WithLabelValues(result).Inc()
	BluetoothReconnectDuration.Observe(duration.Seconds())
	if result == "success" {
		BluetoothSessionGeneration.Set(float64(generation))
	}
}

// RecordBluetoothCommand records a remote media command.
func RecordBluetoothCommand(command string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	BluetoothCommands.WithLabelValues(command, result).Inc()
}

// RecordTrackFetch records a track metadata fetch.
func RecordTrackFetch(err error) {
	if err != nil {
		BluetoothTrackFetches.WithLabelValues("failure").Inc()
		return
	}
	BluetoothTrackFetches.WithLabelValues("success").Inc()
}

// RecordPairingRequest records a pairing agent call.
func RecordPairingRequest(method string, err error) {
	result := "accepted"
	if err != nil {
		result = "rejected"
	}
	PairingRequests.WithLabelValues(method, result).Inc()
}

// RecordAPIRequest records a debug API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// SetAppInfo publishes the build version.
func SetAppInfo(version string) {
	AppInfo.WithLabelValues(version, runtime.Version()).Set(1)
}

// UpdateUptime sets the uptime gauge from the process start time.
func UpdateUptime(start time.Time) {
	AppUptime.Set(time.Since(start).Seconds())
}
