// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

package bluetooth

import (
	"context"
	"errors"

	"github.com/tomtom215/ibusplatform/internal/ibus"
	"github.com/tomtom215/ibusplatform/internal/logging"
	"github.com/tomtom215/ibusplatform/internal/mailbox"
	"github.com/tomtom215/ibusplatform/internal/metrics"
	"github.com/tomtom215/ibusplatform/internal/platform"
)

// EventDispatcher turns steering wheel track buttons into AVRCP commands on
// the phone.
type EventDispatcher struct {
	events      *mailbox.Dispatcher[ibus.InputEvent]
	reconnector *Reconnector
}

// NewEventDispatcher creates a dispatcher listening on events.
func NewEventDispatcher(events *mailbox.Dispatcher[ibus.InputEvent], r *Reconnector) *EventDispatcher {
	return &EventDispatcher{events: events, reconnector: r}
}

// Definition returns the platform service definition.
func (d *EventDispatcher) Definition() platform.Definition {
	return mailbox.ListenerDefinition(
		"bt-event-dispatcher",
		"Sends track buttons to the phone",
		d.events,
		d.handle,
	)
}

func (d *EventDispatcher) handle(ctx context.Context, ev ibus.InputEvent) error {
	var command string
	var op func(MediaPlayer, context.Context) error
	switch ev.Kind {
	case ibus.EventNextTrack:
		command, op = "next", MediaPlayer.Next
	case ibus.EventPrevTrack:
		command, op = "previous", MediaPlayer.Previous
	default:
		return nil
	}

	err := d.reconnector.Do(ctx, func(ctx context.Context, p MediaPlayer) error {
		return op(p, ctx)
	})
	metrics.RecordBluetoothCommand(command, err)

	switch {
	case err == nil:
		logging.Ctx(ctx).Debug().Str("command", command).Msg("Media command sent")
	case platform.IsShutdown(ctx, err):
		return err
	case errors.Is(err, ErrStaleSession):
		logging.Ctx(ctx).Warn().Err(err).Str("command", command).Msg("Media player vanished, command dropped")
	default:
		logging.Ctx(ctx).Warn().Err(err).Str("command", command).Msg("Media command failed")
	}
	return nil
}
