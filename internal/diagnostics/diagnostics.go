// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

// Package diagnostics holds services that only report what the platform is
// doing: a heartbeat and printers for bus traffic.
package diagnostics

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/tomtom215/ibusplatform/internal/ibus"
	"github.com/tomtom215/ibusplatform/internal/logging"
	"github.com/tomtom215/ibusplatform/internal/mailbox"
	"github.com/tomtom215/ibusplatform/internal/platform"
)

// DefaultTickInterval is the metronome period.
const DefaultTickInterval = 10 * time.Second

// Metronome logs a tick every interval, showing the scheduler is alive.
type Metronome struct {
	interval time.Duration
	ticks    atomic.Uint64
}

// NewMetronome creates a metronome.
func NewMetronome(interval time.Duration) *Metronome {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Metronome{interval: interval}
}

// Ticks returns how many ticks have been logged.
func (m *Metronome) Ticks() uint64 {
	return m.ticks.Load()
}

// Definition returns the platform service definition.
func (m *Metronome) Definition() platform.Definition {
	return platform.Definition{
		Name:        "metronome",
		Description: "Logs a periodic heartbeat",
		Kind:        platform.KindLooping,
		Work:        m.tick,
	}
}

func (m *Metronome) tick(ctx context.Context) error {
	t := time.NewTimer(m.interval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-t.C:
	}
	n := m.ticks.Add(1)
	logging.Ctx(ctx).Debug().Uint64("tick", n).Msg("Tick")
	return nil
}

// MessagePrinterDefinition logs every frame read off the bus.
func MessagePrinterDefinition(messages *mailbox.Dispatcher[ibus.Message]) platform.Definition {
	return mailbox.ListenerDefinition(
		"ibus-message-printer",
		"Logs every inbound IBus frame",
		messages,
		func(ctx context.Context, msg ibus.Message) error {
			logging.Ctx(ctx).Info().
				Stringer("src", msg.Source).
				Stringer("dst", msg.Destination).
				Hex("data", msg.Data).
				Msg("IBus frame")
			return nil
		},
	)
}

// InputEventPrinterDefinition logs every parsed input event.
func InputEventPrinterDefinition(events *mailbox.Dispatcher[ibus.InputEvent]) platform.Definition {
	return mailbox.ListenerDefinition(
		"input-event-printer",
		"Logs parsed steering wheel and knob input",
		events,
		func(ctx context.Context, ev ibus.InputEvent) error {
			logging.Ctx(ctx).Info().Stringer("event", ev).Msg("Input event")
			return nil
		},
	)
}
