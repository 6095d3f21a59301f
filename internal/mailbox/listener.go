// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

package mailbox

import (
	"context"
	"fmt"

	"github.com/tomtom215/ibusplatform/internal/platform"
	"github.com/tomtom215/ibusplatform/internal/stream"
)

// Handler processes one value taken from a mailbox. Returning an error ends
// the listening service with that error.
type Handler[T any] func(ctx context.Context, v T) error

// Drain feeds every value arriving in mb to handle until ctx is done, mb is
// closed or handle fails.
func Drain[T any](ctx context.Context, mb *stream.Queue[T], handle Handler[T]) error {
	for {
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case v, ok := <-mb.Out():
			if !ok {
				return nil
			}
			if err := handle(ctx, v); err != nil {
				return err
			}
		}
	}
}

// ListenerDefinition describes a one-shot service that owns a mailbox on d:
// setup registers a fresh mailbox, the work drains it into handle, and
// teardown deregisters and discards it.
func ListenerDefinition[T any](name, description string, d *Dispatcher[T], handle Handler[T]) platform.Definition {
	var inbox *stream.Queue[T]

	return platform.Definition{
		Name:        name,
		Description: description,
		Kind:        platform.KindOneShot,
		Setup: func(context.Context) error {
			mb, err := d.NewMailbox()
			if err != nil {
				return fmt.Errorf("register mailbox with %s: %w", d.Name(), err)
			}
			inbox = mb
			return nil
		},
		Work: func(ctx context.Context) error {
			return Drain(ctx, inbox, handle)
		},
		Teardown: func() {
			if inbox == nil {
				return
			}
			// A closed dispatcher has already forgotten every mailbox.
			_ = d.RemoveMailbox(inbox)
			inbox.Discard()
			inbox = nil
		},
	}
}
