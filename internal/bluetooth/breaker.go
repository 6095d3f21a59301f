// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

package bluetooth

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/ibusplatform/internal/logging"
	"github.com/tomtom215/ibusplatform/internal/metrics"
	"github.com/tomtom215/ibusplatform/internal/platform"
)

// BreakerConfig guards the reconnect handshake. While the phone is out of
// range every handshake times out; the breaker stops the services from
// hammering BlueZ until Timeout has passed.
type BreakerConfig struct {
	Name string
	// FailureThreshold consecutive failed handshakes open the circuit.
	FailureThreshold uint32
	// Timeout is how long the circuit stays open before a trial handshake.
	Timeout time.Duration
	// Interval resets the failure counts while closed. Zero never resets.
	Interval time.Duration
}

// DefaultBreakerConfig returns the breaker settings used on the car.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "bluez-reconnect",
		FailureThreshold: 5,
		Timeout:          30 * time.Second,
		Interval:         time.Minute,
	}
}

func newBreaker(cfg BreakerConfig) *gobreaker.CircuitBreaker[MediaPlayer] {
	if cfg.Name == "" {
		cfg.Name = DefaultBreakerConfig().Name
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	name := cfg.Name

	metrics.CircuitBreakerState.WithLabelValues(name).Set(0) // 0 = closed
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)

	return gobreaker.NewCircuitBreaker[MediaPlayer](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1, // one trial handshake while half-open
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			trip := counts.ConsecutiveFailures >= cfg.FailureThreshold
			if trip {
				logging.Warn().Str("breaker", name).Uint32("consecutive_failures", counts.ConsecutiveFailures).Msg("[CIRCUIT BREAKER] Opening circuit")
			}
			return trip
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)

			logging.Info().Str("breaker", name).Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")

			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
			if to == gobreaker.StateClosed {
				metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)
			}
		},

		// Being shut down mid-handshake says nothing about the phone.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, platform.ErrPlatformShutdown) ||
				errors.Is(err, context.Canceled)
		},
	})
}

// executeHandshake runs connect through cb and keeps the breaker metrics
// current.
func executeHandshake(cb *gobreaker.CircuitBreaker[MediaPlayer], connect func() (MediaPlayer, error)) (MediaPlayer, error) {
	name := cb.Name()
	player, err := cb.Execute(connect)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(name, "rejected").Inc()
			return nil, err
		}
		metrics.CircuitBreakerRequests.WithLabelValues(name, "failure").Inc()
		metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(float64(cb.Counts().ConsecutiveFailures))
		return nil, err
	}

	metrics.CircuitBreakerRequests.WithLabelValues(name, "success").Inc()
	metrics.CircuitBreakerConsecutiveFailures.WithLabelValues(name).Set(0)
	return player, nil
}

// stateToFloat converts circuit breaker state to numeric value for metrics
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// stateToString converts circuit breaker state to string for logging
func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
