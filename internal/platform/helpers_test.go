// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

package platform

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/ibusplatform/internal/logging"
)

func init() {
	logging.Init(logging.Config{Level: "error", Format: "json", Output: io.Discard})
}

func testRunnerConfig() RunnerConfig {
	return RunnerConfig{
		Name:            "test-platform",
		ShutdownTimeout: 2 * time.Second,
		Logger:          slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError})),
	}
}

// recorder collects lifecycle events from many services in order.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) count(event string) int {
	n := 0
	for _, e := range r.snapshot() {
		if e == event {
			n++
		}
	}
	return n
}

func (r *recorder) index(event string) int {
	for i, e := range r.snapshot() {
		if e == event {
			return i
		}
	}
	return -1
}

// blockingService records setup/teardown and runs until cancelled.
func blockingService(name string, rec *recorder) *Service {
	return NewService(Definition{
		Name:        name,
		Description: name + " test service",
		Kind:        KindOneShot,
		Setup: func(context.Context) error {
			rec.add("create:" + name)
			return nil
		},
		Work: func(ctx context.Context) error {
			<-ctx.Done()
			return context.Cause(ctx)
		},
		Teardown: func() {
			rec.add("shutdown:" + name)
		},
	})
}

func waitForStatus(t *testing.T, svc *Service, want RunStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if svc.Status() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("service %s: expected status %s, got %s", svc.Name(), want, svc.Status())
}

func mustList(t *testing.T, groups ...Group) *ServiceList {
	t.Helper()
	list, err := NewServiceList(groups...)
	if err != nil {
		t.Fatalf("NewServiceList() error = %v", err)
	}
	return list
}
