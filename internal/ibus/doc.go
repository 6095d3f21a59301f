// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

/*
Package ibus speaks the BMW E-series IBus: the frame codec, the input events
the head unit reacts to, and the platform services that move frames between
the serial port and the rest of the process.

# Frames

	+--------+--------+-------------+----------+----------+
	| source | length | destination | data ... | checksum |
	+--------+--------+-------------+----------+----------+

The length byte counts destination, data and checksum. The checksum is the
XOR of every preceding byte.

# Services

  - Listener (ibus-listener): reads the Port, decodes frames and dispatches
    each Message to every registered message mailbox.
  - InputParser (ibus-input-parser): listens for Messages, parses
    InputEvents and dispatches them to registered event mailboxes.
  - Publisher (ibus-publisher): drains the outbound queue to the Port,
    paced by a rate limiter so the bus is not flooded.

On development hosts a LoopbackPort replaces the serial port.
*/
package ibus
