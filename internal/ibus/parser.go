// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

package ibus

import (
	"context"
	"fmt"

	"github.com/tomtom215/ibusplatform/internal/logging"
	"github.com/tomtom215/ibusplatform/internal/mailbox"
	"github.com/tomtom215/ibusplatform/internal/metrics"
	"github.com/tomtom215/ibusplatform/internal/platform"
	"github.com/tomtom215/ibusplatform/internal/stream"
)

// InputParser turns raw frames into InputEvents and broadcasts them to the
// services that registered an event mailbox.
type InputParser struct {
	messages *mailbox.Dispatcher[Message]
	events   *mailbox.Dispatcher[InputEvent]
}

// NewInputParser creates a parser reading from messages and publishing to
// events.
func NewInputParser(messages *mailbox.Dispatcher[Message], events *mailbox.Dispatcher[InputEvent]) *InputParser {
	return &InputParser{messages: messages, events: events}
}

// Definition returns the platform service definition.
func (p *InputParser) Definition() platform.Definition {
	return mailbox.ListenerDefinition(
		"ibus-input-parser",
		"Parses steering wheel and board monitor input",
		p.messages,
		p.handle,
	)
}

// AddMailbox registers a listener for parsed input events.
func (p *InputParser) AddMailbox(mb *stream.Queue[InputEvent]) error {
	return p.events.AddMailbox(mb)
}

// RemoveMailbox deregisters a listener.
func (p *InputParser) RemoveMailbox(mb *stream.Queue[InputEvent]) error {
	return p.events.RemoveMailbox(mb)
}

func (p *InputParser) handle(ctx context.Context, msg Message) error {
	ev, ok := ParseInputEvent(msg)
	if !ok {
		return nil
	}
	metrics.RecordInputEvent(ev.Kind.String())
	n, err := p.events.Dispatch(ev)
	if err != nil {
		return fmt.Errorf("dispatch input event: %w", err)
	}
	logging.Ctx(ctx).Debug().Stringer("event", ev).Int("listeners", n).Msg("Input event")
	return nil
}
