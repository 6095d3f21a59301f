// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

package ibus

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/tomtom215/ibusplatform/internal/logging"
	"github.com/tomtom215/ibusplatform/internal/mailbox"
	"github.com/tomtom215/ibusplatform/internal/metrics"
	"github.com/tomtom215/ibusplatform/internal/platform"
)

// Listener reads frames off the bus and fans them out to every registered
// message mailbox.
type Listener struct {
	port     Port
	messages *mailbox.Dispatcher[Message]
}

// NewListener creates a listener over port.
func NewListener(port Port, messages *mailbox.Dispatcher[Message]) *Listener {
	return &Listener{port: port, messages: messages}
}

// Definition returns the platform service definition.
func (l *Listener) Definition() platform.Definition {
	return platform.Definition{
		Name:        "ibus-listener",
		Description: "Reads IBus frames from the serial port",
		Kind:        platform.KindOneShot,
		Work:        l.run,
	}
}

func (l *Listener) run(ctx context.Context) error {
	log := logging.Ctx(ctx)
	dec := NewDecoder()
	buf := make([]byte, 2*MaxFrameLength)

	for {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}

		n, err := l.port.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return context.Cause(ctx)
			}
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("serial port closed: %w", err)
			}
			return fmt.Errorf("read serial port: %w", err)
		}
		if n == 0 {
			continue
		}

		dec.Feed(buf[:n])
		for {
			msg, ok := dec.Next()
			if !ok {
				break
			}
			metrics.RecordIBusFrame("in")
			log.Trace().Stringer("message", msg).Msg("Frame received")
			if _, err := l.messages.Dispatch(msg); err != nil {
				return fmt.Errorf("dispatch frame: %w", err)
			}
		}
	}
}
