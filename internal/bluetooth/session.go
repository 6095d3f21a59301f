// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

package bluetooth

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/tomtom215/ibusplatform/internal/config"
)

var (
	// ErrStaleSession means the remote media object is gone: the phone
	// disconnected, BlueZ re-registered the player, or no session was ever
	// established. The caller should reconnect and retry once.
	ErrStaleSession = errors.New("bluetooth: stale media session")

	// ErrNoPairedPhone is returned by Reconnect when no phone has been
	// configured to connect to.
	ErrNoPairedPhone = errors.New("bluetooth: no paired phone configured")

	// ErrPlayerNotFound is returned when the phone is reachable but exposes
	// no media player, usually because nothing is playing yet.
	ErrPlayerNotFound = errors.New("bluetooth: media player not found")
)

// MediaPlayer is the remote AVRCP player on the phone.
type MediaPlayer interface {
	// Path identifies the remote object, e.g. /org/bluez/hci0/dev_XX/player0.
	Path() string
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	// Track returns the string fields of the current track metadata.
	Track(ctx context.Context) (map[string]string, error)
}

// Connector performs the handshake with a paired phone.
type Connector interface {
	Connect(ctx context.Context, phone config.PairedPhone) (MediaPlayer, error)
}

// Session is one connected media player. Sessions are immutable; each
// successful reconnect produces a new one with a higher Generation.
type Session struct {
	Generation  uint64
	Phone       config.PairedPhone
	Player      MediaPlayer
	ConnectedAt time.Time
}

// SessionHolder owns the current Session. Writers swap in a new snapshot,
// readers get whichever snapshot was current when they asked and never see a
// half-updated handle.
type SessionHolder struct {
	current    atomic.Pointer[Session]
	generation atomic.Uint64
}

// NewSessionHolder creates an empty holder.
func NewSessionHolder() *SessionHolder {
	return &SessionHolder{}
}

// Load returns the current session, or nil when not connected.
func (h *SessionHolder) Load() *Session {
	return h.current.Load()
}

// Store publishes a new session for player and returns it.
func (h *SessionHolder) Store(phone config.PairedPhone, player MediaPlayer) *Session {
	s := &Session{
		Generation:  h.generation.Add(1),
		Phone:       phone,
		Player:      player,
		ConnectedAt: time.Now(),
	}
	h.current.Store(s)
	return s
}

// Invalidate clears the held session if it is still s. A session that was
// already replaced by a newer one is left alone.
func (h *SessionHolder) Invalidate(s *Session) bool {
	if s == nil {
		return false
	}
	return h.current.CompareAndSwap(s, nil)
}

// Clear drops whatever session is held.
func (h *SessionHolder) Clear() {
	h.current.Store(nil)
}

// Generation returns the number of sessions stored so far.
func (h *SessionHolder) Generation() uint64 {
	return h.generation.Load()
}
