// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

// Package stream provides the channel primitives services use to talk to each
// other.
//
// Queue is an unbounded FIFO: the IBus input event mailboxes and the outbound
// protocol channel are Queues, so a producer (the serial listener, the input
// parser) is never held up by a slow consumer.
//
// State is a single-slot replayable value, used wherever a late subscriber must
// see the current value without waiting for the next change: per-service run
// status, the platform's current device configuration, the consolidated status
// snapshot and the latest track metadata.
package stream
