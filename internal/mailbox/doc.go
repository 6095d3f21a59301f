// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

// Package mailbox fans one producer's values out to many listeners.
//
// A listener owns a Mailbox (an unbounded stream.Queue) and registers it with
// a Dispatcher. The producer calls Dispatch for each value; every registered
// mailbox receives it in dispatch order. Neither side knows about the other:
// the IBus input parser dispatches InputEvents without knowing whether the
// track fetcher, the Bluetooth command dispatcher or a debug printer is
// listening.
package mailbox
