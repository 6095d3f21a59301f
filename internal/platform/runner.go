// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/tomtom215/ibusplatform/internal/logging"
)

// ErrRunnerClosed is returned by lifecycle calls on a closed Runner.
var ErrRunnerClosed = errors.New("runner closed")

// RunnerConfig holds Runner configuration.
type RunnerConfig struct {
	// Name of the root supervisor, used in logs.
	// Default: "platform"
	Name string

	// ShutdownTimeout bounds how long Close waits for the supervisors.
	// Default: 10s
	ShutdownTimeout time.Duration

	// Logger receives suture events. Default: logging.NewSlogLogger()
	Logger *slog.Logger
}

// DefaultRunnerConfig returns the defaults.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		Name:            "platform",
		ShutdownTimeout: 10 * time.Second,
	}
}

// Runner starts, joins and stops the services of one ServiceList.
//
// Each group is hosted by its own suture supervisor under a runner root, so
// tasks of one group are isolated from another's. Tasks never ask suture to
// restart them: a failed service stays Failed until StartByName is called.
type Runner struct {
	list   *ServiceList
	root   *suture.Supervisor
	config RunnerConfig

	cancel   context.CancelCauseFunc
	serveErr <-chan error

	mu     sync.Mutex
	closed bool
}

// NewRunner builds the supervisor tree for list and starts serving it. No
// service is created until RunAll or StartByName.
func NewRunner(list *ServiceList, config RunnerConfig) *Runner {
	if config.Name == "" {
		config.Name = "platform"
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = logging.NewSlogLogger()
	}

	handler := &sutureslog.Handler{Logger: config.Logger}
	root := suture.New(config.Name, suture.Spec{
		EventHook: handler.MustHook(),
		Timeout:   config.ShutdownTimeout,
	})

	for _, g := range list.Groups() {
		child := suture.New(g.Name, suture.Spec{Timeout: config.ShutdownTimeout})
		root.Add(child)
		for _, svc := range g.Services {
			svc.attach(child, g.Name)
		}
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	r := &Runner{
		list:   list,
		root:   root,
		config: config,
		cancel: cancel,
	}
	r.serveErr = root.ServeBackground(ctx)
	return r
}

// List returns the services this runner owns.
func (r *Runner) List() *ServiceList {
	return r.list
}

// RunAll calls OnCreate on every service in configured order and returns
// without waiting for any task. A service whose setup fails is logged and
// skipped; the joined setup errors are returned.
func (r *Runner) RunAll() error {
	if r.isClosed() {
		return ErrRunnerClosed
	}

	var errs []error
	for _, svc := range r.list.All() {
		if err := svc.OnCreate(); err != nil {
			errs = append(errs, err)
		}
	}
	logging.Info().
		Str("runner", r.config.Name).
		Int("services", r.list.Len()).
		Int("failed", len(errs)).
		Msg("Platform services started")
	return errors.Join(errs...)
}

// Join blocks until every launched task has returned or ctx is done.
func (r *Runner) Join(ctx context.Context) error {
	for _, svc := range r.list.All() {
		select {
		case <-svc.Done():
		case <-ctx.Done():
			return context.Cause(ctx)
		}
	}
	return nil
}

// StopAll calls OnShutdown on every service in start order.
func (r *Runner) StopAll() {
	for _, svc := range r.list.All() {
		svc.OnShutdown()
	}
	logging.Info().Str("runner", r.config.Name).Msg("Platform services stopped")
}

// StartByName creates the named service.
func (r *Runner) StartByName(name string) error {
	if r.isClosed() {
		return ErrRunnerClosed
	}
	svc, err := r.list.Find(name)
	if err != nil {
		return err
	}
	return svc.OnCreate()
}

// StopByName shuts down the named service.
func (r *Runner) StopByName(name string) error {
	svc, err := r.list.Find(name)
	if err != nil {
		return err
	}
	svc.OnShutdown()
	return nil
}

// Close stops the supervisor tree. Services should be stopped first; any
// task still running is cancelled with ErrPlatformShutdown.
func (r *Runner) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.cancel(ErrPlatformShutdown)

	select {
	case err := <-r.serveErr:
		if err != nil && !isCleanStop(err) {
			return fmt.Errorf("runner %s: %w", r.config.Name, err)
		}
		return nil
	case <-time.After(r.config.ShutdownTimeout):
		report, _ := r.root.UnstoppedServiceReport()
		for _, u := range report {
			logging.Warn().Str("runner", r.config.Name).Str("service", u.Name).Msg("Task did not stop")
		}
		return fmt.Errorf("runner %s: supervisor did not stop within %s", r.config.Name, r.config.ShutdownTimeout)
	}
}

func isCleanStop(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, ErrPlatformShutdown) ||
		errors.Is(err, suture.ErrDoNotRestart) ||
		errors.Is(err, suture.ErrTerminateSupervisorTree)
}

func (r *Runner) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
