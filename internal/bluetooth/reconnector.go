// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

package bluetooth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/ibusplatform/internal/config"
	"github.com/tomtom215/ibusplatform/internal/logging"
	"github.com/tomtom215/ibusplatform/internal/metrics"
)

// DefaultStaleDelay is how long to wait before reconnecting after a stale
// handle. Reconnecting sooner races BlueZ re-registering the player object.
const DefaultStaleDelay = 500 * time.Millisecond

// ReconnectorConfig configures a Reconnector.
type ReconnectorConfig struct {
	StaleDelay time.Duration
	Breaker    BreakerConfig
}

// DefaultReconnectorConfig returns the delays tuned against a real phone.
func DefaultReconnectorConfig() ReconnectorConfig {
	return ReconnectorConfig{
		StaleDelay: DefaultStaleDelay,
		Breaker:    DefaultBreakerConfig(),
	}
}

// Reconnector keeps a usable media session to the paired phone.
//
// Reconnect performs the handshake and replaces the held session. Do wraps
// an operation on the current player with the retry policy:
//
//   - no session yet: reconnect immediately, then run the operation
//   - operation fails with ErrStaleSession: wait StaleDelay, reconnect,
//     run the operation exactly once more
//
// Any other failure is returned unchanged.
type Reconnector struct {
	connector Connector
	holder    *SessionHolder
	cfg       ReconnectorConfig
	cb        *gobreaker.CircuitBreaker[MediaPlayer]

	// handshake serialises reconnects so concurrent callers that saw the
	// same stale session share one handshake.
	handshake sync.Mutex

	phoneMu  sync.RWMutex
	phone    config.PairedPhone
	hasPhone bool
}

// NewReconnector creates a reconnector storing sessions in holder.
func NewReconnector(connector Connector, holder *SessionHolder, cfg ReconnectorConfig) *Reconnector {
	if cfg.StaleDelay < 0 {
		cfg.StaleDelay = 0
	}
	return &Reconnector{
		connector: connector,
		holder:    holder,
		cfg:       cfg,
		cb:        newBreaker(cfg.Breaker),
	}
}

// SetPhone sets the phone future handshakes connect to.
func (r *Reconnector) SetPhone(phone config.PairedPhone) {
	r.phoneMu.Lock()
	defer r.phoneMu.Unlock()
	r.phone = phone
	r.hasPhone = phone.MAC != ""
}

// Phone returns the phone handshakes connect to.
func (r *Reconnector) Phone() (config.PairedPhone, bool) {
	r.phoneMu.RLock()
	defer r.phoneMu.RUnlock()
	return r.phone, r.hasPhone
}

// Session returns the current session, or nil.
func (r *Reconnector) Session() *Session {
	return r.holder.Load()
}

// Invalidate drops the current session so the next Do reconnects first.
func (r *Reconnector) Invalidate() {
	r.holder.Clear()
}

// Reconnect performs a fresh handshake and publishes the new session,
// replacing whatever was held.
func (r *Reconnector) Reconnect(ctx context.Context) (*Session, error) {
	r.handshake.Lock()
	defer r.handshake.Unlock()
	return r.connect(ctx)
}

// Do runs op against the current player using the retry policy.
func (r *Reconnector) Do(ctx context.Context, op func(context.Context, MediaPlayer) error) error {
	s := r.holder.Load()
	if s == nil {
		logging.Ctx(ctx).Debug().Msg("No media session yet, connecting")
		var err error
		if s, err = r.refresh(ctx, nil); err != nil {
			return err
		}
	}

	err := op(ctx, s.Player)
	if err == nil || !errors.Is(err, ErrStaleSession) {
		return err
	}

	logging.Ctx(ctx).Warn().Err(err).Uint64("generation", s.Generation).Str("player", s.Player.Path()).Msg("Media session went stale, reconnecting")
	r.holder.Invalidate(s)

	if err := sleep(ctx, r.cfg.StaleDelay); err != nil {
		return err
	}
	if s, err = r.refresh(ctx, s); err != nil {
		return fmt.Errorf("reconnect after stale session: %w", err)
	}
	return op(ctx, s.Player)
}

// refresh returns a session newer than stale, performing a handshake only
// if nobody else already replaced it.
func (r *Reconnector) refresh(ctx context.Context, stale *Session) (*Session, error) {
	r.handshake.Lock()
	defer r.handshake.Unlock()

	if cur := r.holder.Load(); cur != nil && cur != stale {
		return cur, nil
	}
	return r.connect(ctx)
}

// connect must be called with handshake held.
func (r *Reconnector) connect(ctx context.Context) (*Session, error) {
	phone, ok := r.Phone()
	if !ok {
		return nil, ErrNoPairedPhone
	}

	log := logging.Ctx(ctx)
	start := time.Now()
	player, err := executeHandshake(r.cb, func() (MediaPlayer, error) {
		p, err := r.connector.Connect(ctx, phone)
		if err == nil && p == nil {
			err = ErrPlayerNotFound
		}
		return p, err
	})
	if err != nil {
		metrics.RecordReconnect("failure", time.Since(start), 0)
		log.Warn().Err(err).Str("phone", phone.Name).Str("mac", phone.MAC).Msg("Media session handshake failed")
		return nil, fmt.Errorf("connect to %s: %w", phone.MAC, err)
	}

	s := r.holder.Store(phone, player)
	metrics.RecordReconnect("success", time.Since(start), s.Generation)
	log.Info().Str("phone", phone.Name).Str("player", player.Path()).Uint64("generation", s.Generation).Msg("Media session connected")
	return s, nil
}

// sleep waits d or until ctx is done, returning the cancellation cause.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return context.Cause(ctx)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-t.C:
		return nil
	}
}
