// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	// generationKey tags log lines with the service graph generation that emitted them.
	generationKey contextKey = "generation"

	loggerKey contextKey = "logger"
)

// NewGenerationID creates a short identifier for a service graph generation.
// Returns the first 8 characters of a UUID for readability.
func NewGenerationID() string {
	return uuid.New().String()[:8]
}

// ContextWithGeneration returns a new context carrying the graph generation ID.
func ContextWithGeneration(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, generationKey, id)
}

// GenerationFromContext retrieves the graph generation ID from context.
// Returns empty string if not present.
func GenerationFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(generationKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithLogger stores a logger in the context.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func ContextWithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// LoggerFromContext retrieves a logger from context.
// Returns the global logger if no logger is stored in context.
func LoggerFromContext(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(loggerKey).(zerolog.Logger); ok {
		return logger
	}
	return Logger()
}

// Ctx returns a logger with the generation ID from ctx attached, if any.
//
//	logging.Ctx(ctx).Info().Msg("service graph started")
func Ctx(ctx context.Context) *zerolog.Logger {
	logger := LoggerFromContext(ctx)
	if id := GenerationFromContext(ctx); id != "" {
		logger = logger.With().Str("generation", id).Logger()
	}
	return &logger
}

// WithComponent creates a child logger with a component field.
// The component plays the role of the log tag on the head unit.
//
//	dispatcherLog := logging.WithComponent("bt-dispatcher")
//	dispatcherLog.Warn().Err(err).Msg("media player vanished")
func WithComponent(component string) zerolog.Logger {
	return With().Str("component", component).Logger()
}
