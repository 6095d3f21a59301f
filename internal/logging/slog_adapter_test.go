// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestSlogHandler_WritesThroughZerolog(t *testing.T) {
	var buf bytes.Buffer
	slogger := slog.New(NewSlogHandler(zerolog.New(&buf)))

	slogger.Info("service started", "service", "serial-listener", "attempt", 2)

	output := buf.String()
	for _, want := range []string{"service started", `"service":"serial-listener"`, `"attempt":2`, `"level":"info"`} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %s in output: %s", want, output)
		}
	}
}

func TestSlogHandler_Enabled(t *testing.T) {
	original := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	defer zerolog.SetGlobalLevel(original)

	tests := []struct {
		name      string
		level     zerolog.Level
		slogLevel slog.Level
		want      bool
	}{
		{"debug logger enables debug", zerolog.DebugLevel, slog.LevelDebug, true},
		{"info logger disables debug", zerolog.InfoLevel, slog.LevelDebug, false},
		{"warn logger enables error", zerolog.WarnLevel, slog.LevelError, true},
		{"error logger disables warn", zerolog.ErrorLevel, slog.LevelWarn, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewSlogHandler(zerolog.New(&bytes.Buffer{}).Level(tt.level))
			if got := h.Enabled(context.Background(), tt.slogLevel); got != tt.want {
				t.Errorf("Enabled(%v) = %v, want %v", tt.slogLevel, got, tt.want)
			}
		})
	}
}

func TestSlogHandler_GroupsAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := NewSlogHandler(zerolog.New(&buf)).
		WithAttrs([]slog.Attr{slog.String("supervisor", "platform")}).
		WithGroup("event")

	slog.New(h).Warn("service failed",
		slog.Duration("backoff", 15*time.Second),
		slog.Any("error", errors.New("boom")),
	)

	output := buf.String()
	for _, want := range []string{`"event.supervisor":"platform"`, `"event.error":"boom"`, `"level":"warn"`} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %s in output: %s", want, output)
		}
	}
}

func TestSlogHandler_EmptyGroupIsNoop(t *testing.T) {
	t.Parallel()

	h := NewSlogHandler(zerolog.Nop())
	if h.WithGroup("") != h {
		t.Error("WithGroup(\"\") should return the same handler")
	}
}
