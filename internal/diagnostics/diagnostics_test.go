// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

package diagnostics

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/ibusplatform/internal/ibus"
	"github.com/tomtom215/ibusplatform/internal/logging"
	"github.com/tomtom215/ibusplatform/internal/mailbox"
	"github.com/tomtom215/ibusplatform/internal/platform"
)

// syncBuffer is a bytes.Buffer safe for the logger and the test to share.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func captureLogs(t *testing.T) *syncBuffer {
	t.Helper()
	buf := &syncBuffer{}
	logging.Init(logging.Config{Level: "debug", Format: "json", Output: buf})
	return buf
}

func waitForLog(t *testing.T, buf *syncBuffer, substr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(buf.String(), substr) {
		if time.Now().After(deadline) {
			t.Fatalf("log never contained %q:\n%s", substr, buf.String())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestMetronome(t *testing.T) {
	captureLogs(t)
	m := NewMetronome(5 * time.Millisecond)
	svc := platform.NewService(m.Definition())
	if svc.Kind() != platform.KindLooping {
		t.Fatalf("kind = %s, want looping", svc.Kind())
	}
	if err := svc.OnCreate(); err != nil {
		t.Fatalf("OnCreate() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for m.Ticks() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	svc.OnShutdown()

	stopped := m.Ticks()
	if stopped < 3 {
		t.Fatalf("ticks = %d, want at least 3", stopped)
	}
	time.Sleep(30 * time.Millisecond)
	if m.Ticks() != stopped {
		t.Errorf("metronome kept ticking after shutdown: %d -> %d", stopped, m.Ticks())
	}
}

func TestMetronome_TickHonoursCancellation(t *testing.T) {
	m := NewMetronome(time.Hour)
	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(platform.ErrPlatformShutdown)
	if err := m.tick(ctx); !platform.IsShutdown(ctx, err) {
		t.Errorf("tick() = %v, want shutdown", err)
	}
}

func TestPrinters(t *testing.T) {
	buf := captureLogs(t)

	messages := mailbox.NewDispatcher[ibus.Message]("test-messages")
	defer messages.Close()
	events := mailbox.NewDispatcher[ibus.InputEvent]("test-events")
	defer events.Close()

	for _, def := range []platform.Definition{MessagePrinterDefinition(messages), InputEventPrinterDefinition(events)} {
		svc := platform.NewService(def)
		if err := svc.OnCreate(); err != nil {
			t.Fatalf("OnCreate(%s) error = %v", def.Name, err)
		}
		defer svc.OnShutdown()
	}

	_, _ = messages.Dispatch(ibus.Message{Source: ibus.AddrMFL, Destination: ibus.AddrRadio, Data: []byte{0x3B, 0x01}})
	_, _ = events.Dispatch(ibus.InputEvent{Kind: ibus.EventKnobPress})

	waitForLog(t, buf, `"data":"3b01"`)
	waitForLog(t, buf, `"event":"knob_press"`)
}
