// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

// Package logging provides centralized zerolog-based logging for the head unit.
//
// Every long-running service logs through this package with a component field
// that acts as the log tag:
//
//	log := logging.WithComponent("serial-listener")
//	log.Debug().Hex("frame", raw).Msg("frame decoded")
//	log.Warn().Err(err).Msg("checksum mismatch, resynchronising")
//
// # Configuration
//
// Initialize once from main:
//
//	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
//
// Levels: trace (alias verbose), debug, info, warn, error, fatal, panic, disabled.
// Formats: console (default) or json.
//
// # slog bridge
//
// suture's event hooks (via sutureslog) require a *slog.Logger. NewSlogLogger
// returns one that writes through zerolog, so supervisor events end up in the
// same stream as everything else.
//
// # Best Practices
//
// Always terminate log chains with .Msg() or .Send():
//
//	logging.Info().Str("service", name).Msg("service started")  // Correct
//	logging.Info().Str("service", name)                         // WRONG - log not emitted
package logging
