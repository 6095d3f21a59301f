// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

package bluetooth

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/ibusplatform/internal/config"
	"github.com/tomtom215/ibusplatform/internal/logging"
)

func init() {
	logging.Init(logging.Config{Level: "error", Format: "json", Output: io.Discard})
}

var testPhone = config.PairedPhone{Name: "Pixel", MAC: "AA:BB:CC:DD:EE:FF"}

// fakePlayer is a scripted media player. Each call pops the next scripted
// error for that method; an exhausted script succeeds.
type fakePlayer struct {
	path string

	mu       sync.Mutex
	calls    map[string]int
	failures map[string][]error
	track    map[string]string
}

func newFakePlayer(path string) *fakePlayer {
	return &fakePlayer{
		path:     path,
		calls:    make(map[string]int),
		failures: make(map[string][]error),
		track:    map[string]string{"Title": "Song", "Artist": "Band", "Album": "Record"},
	}
}

func (p *fakePlayer) fail(method string, errs ...error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[method] = append(p.failures[method], errs...)
}

func (p *fakePlayer) count(method string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[method]
}

func (p *fakePlayer) next(method string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[method]++
	if q := p.failures[method]; len(q) > 0 {
		p.failures[method] = q[1:]
		return q[0]
	}
	return nil
}

func (p *fakePlayer) Path() string                       { return p.path }
func (p *fakePlayer) Next(ctx context.Context) error     { return p.next("Next") }
func (p *fakePlayer) Previous(ctx context.Context) error { return p.next("Previous") }

func (p *fakePlayer) Track(ctx context.Context) (map[string]string, error) {
	if err := p.next("Track"); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]string, len(p.track))
	for k, v := range p.track {
		out[k] = v
	}
	return out, nil
}

// fakeConnector hands out the same endpoint on every connect, the way BlueZ
// re-registers the phone's player at the same path.
type fakeConnector struct {
	mu       sync.Mutex
	player   *fakePlayer
	connects int
	phones   []config.PairedPhone
	failWith error
	delay    time.Duration
}

func newFakeConnector(player *fakePlayer) *fakeConnector {
	return &fakeConnector{player: player}
}

func (c *fakeConnector) Connect(ctx context.Context, phone config.PairedPhone) (MediaPlayer, error) {
	c.mu.Lock()
	c.connects++
	c.phones = append(c.phones, phone)
	err := c.failWith
	delay := c.delay
	c.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, context.Cause(ctx)
		case <-time.After(delay):
		}
	}
	if err != nil {
		return nil, err
	}
	return c.player, nil
}

func (c *fakeConnector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects
}

func (c *fakeConnector) setFailure(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failWith = err
}

// testReconnectorConfig uses short delays and a unique breaker name per
// test so metrics do not collide.
func testReconnectorConfig(t *testing.T) ReconnectorConfig {
	t.Helper()
	cfg := DefaultReconnectorConfig()
	cfg.StaleDelay = 10 * time.Millisecond
	cfg.Breaker.Name = fmt.Sprintf("test-%s", t.Name())
	return cfg
}

func newTestReconnector(t *testing.T, c Connector) *Reconnector {
	t.Helper()
	r := NewReconnector(c, NewSessionHolder(), testReconnectorConfig(t))
	r.SetPhone(testPhone)
	return r
}

type recordingSink struct {
	mu    sync.Mutex
	infos []TrackInfo
}

func (s *recordingSink) OnNewTrackInfo(_ context.Context, info TrackInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.infos = append(s.infos, info)
}

func (s *recordingSink) snapshot() []TrackInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]TrackInfo(nil), s.infos...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
