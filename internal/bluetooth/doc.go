// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

/*
Package bluetooth bridges the steering wheel buttons to the paired phone's
media player over BlueZ.

# Sessions

The phone's AVRCP player is a remote D-Bus object that disappears whenever
the phone disconnects or BlueZ re-registers it. The current handle lives in
a SessionHolder: writers swap in a new immutable Session, readers load the
latest snapshot. The Reconnector performs the handshake (guarded by a
gobreaker circuit breaker) and applies the retry policy:

  - no session yet: connect immediately
  - a call fails with ErrStaleSession: wait StaleDelay, reconnect, retry once

# Services

  - Service (bluetooth): composite that owns the two listeners below and
    makes the first connection to the configured phone.
  - TrackInfoFetcher (bt-track-info-fetcher): after a previous/next event,
    waits SettleDelay and publishes the new track's metadata. Missing
    fields are empty strings; failures publish empty metadata.
  - EventDispatcher (bt-event-dispatcher): sends previous/next to the phone.
    A vanished player is logged, never propagated.
  - Agent (bt-pairing-agent): the org.bluez.Agent1 pairing agent.
*/
package bluetooth
