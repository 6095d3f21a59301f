// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

package platform

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/ibusplatform/internal/logging"
	"github.com/tomtom215/ibusplatform/internal/metrics"
	"github.com/tomtom215/ibusplatform/internal/stream"
)

// ErrPlatformShutdown is the cancellation cause applied to every service task
// when the platform shuts it down. Work that sees it must return rather than
// treat it as a failure.
var ErrPlatformShutdown = errors.New("platform shutdown")

// ErrServicePanic wraps a panic recovered from a service's work.
var ErrServicePanic = errors.New("service panicked")

// DefaultStopTimeout bounds how long OnShutdown waits for a task to return.
const DefaultStopTimeout = 5 * time.Second

// IsShutdown reports whether err (returned by work running under ctx) is the
// result of a deliberate platform shutdown rather than a failure.
func IsShutdown(ctx context.Context, err error) bool {
	if errors.Is(err, ErrPlatformShutdown) {
		return true
	}
	if ctx == nil || !errors.Is(context.Cause(ctx), ErrPlatformShutdown) {
		return false
	}
	return err == nil || errors.Is(err, context.Canceled)
}

// Kind selects how a service runs its work.
type Kind int

const (
	// KindPlain services only have setup and teardown.
	KindPlain Kind = iota
	// KindOneShot services run Work once in a background task. Work may loop
	// internally, e.g. draining a mailbox until it is cancelled.
	KindOneShot
	// KindLooping services call Work repeatedly, yielding between calls,
	// until cancelled or Work fails.
	KindLooping
)

func (k Kind) String() string {
	switch k {
	case KindPlain:
		return "plain"
	case KindOneShot:
		return "one-shot"
	case KindLooping:
		return "looping"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// RunStatus is the observable lifecycle state of one service.
type RunStatus int

const (
	NotRunning RunStatus = iota
	Running
	Failed
)

func (s RunStatus) String() string {
	switch s {
	case NotRunning:
		return "not_running"
	case Running:
		return "running"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalText renders the status by name for JSON observers.
func (s RunStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Definition describes a service. Setup and Teardown are optional; Work is
// required for the running kinds and ignored for KindPlain.
type Definition struct {
	Name        string
	Description string
	Kind        Kind

	// Setup runs synchronously inside OnCreate before any work is launched.
	// Its context is the one the task will run under.
	Setup func(ctx context.Context) error

	// Work is the service body. Returning nil ends a one-shot service
	// normally; returning an error marks the service Failed.
	Work func(ctx context.Context) error

	// Teardown runs inside OnShutdown after the task has returned.
	Teardown func()

	// StopTimeout overrides DefaultStopTimeout.
	StopTimeout time.Duration
}

// host runs tasks. *suture.Supervisor satisfies it.
type host interface {
	Add(service suture.Service) suture.ServiceToken
	Remove(id suture.ServiceToken) error
}

// Service is one unit of platform lifecycle: OnCreate starts it and
// OnShutdown stops it. Both are safe to call in any order and any number of
// times.
type Service struct {
	def   Definition
	group string

	// lifecycle serializes OnCreate and OnShutdown.
	lifecycle sync.Mutex
	created   bool
	host      host

	// mu guards active; a task only reports its result while it is active.
	mu     sync.Mutex
	active *task

	status *stream.State[RunStatus]
}

// NewService builds a service from its definition.
func NewService(def Definition) *Service {
	if def.StopTimeout <= 0 {
		def.StopTimeout = DefaultStopTimeout
	}
	if def.Work == nil {
		def.Kind = KindPlain
	}
	return &Service{
		def:    def,
		status: stream.NewStateOf(NotRunning),
	}
}

// Name returns the service's unique name.
func (s *Service) Name() string { return s.def.Name }

// Description returns the human readable description.
func (s *Service) Description() string { return s.def.Description }

// Kind returns how the service runs.
func (s *Service) Kind() Kind { return s.def.Kind }

// Group returns the name of the group the service was listed under.
func (s *Service) Group() string { return s.group }

// Status returns the current run status.
func (s *Service) Status() RunStatus {
	v, _ := s.status.Value()
	return v
}

// StatusStream returns the replayable run status stream.
func (s *Service) StatusStream() *stream.State[RunStatus] {
	return s.status
}

// Done returns a channel closed when the current task returns. It is already
// closed when no task is running.
func (s *Service) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return s.active.done
}

func (s *Service) running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}

// String implements fmt.Stringer.
func (s *Service) String() string {
	return s.def.Name
}

func (s *Service) attach(h host, group string) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.host = h
	s.group = group
}

// OnCreate runs setup and, for the running kinds, launches the task. Calling
// it on a service that is already created does nothing.
func (s *Service) OnCreate() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.created {
		if s.def.Kind == KindPlain || s.running() {
			return nil
		}
		// The previous task ended on its own; close out its lifecycle so it
		// can be launched again.
		s.teardown()
		s.created = false
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	ctx = logging.ContextWithLogger(ctx, logging.With().Str("service", s.def.Name).Logger())

	if err := s.setup(ctx); err != nil {
		cancel(err)
		s.setStatus(Failed)
		logging.Error().Err(err).Str("service", s.def.Name).Msg("Service setup failed")
		return fmt.Errorf("service %s: setup: %w", s.def.Name, err)
	}
	s.created = true

	if s.def.Kind == KindPlain {
		cancel(nil)
		s.setStatus(Running)
		logging.Debug().Str("service", s.def.Name).Msg("Service created")
		return nil
	}

	t := &task{svc: s, ctx: ctx, cancel: cancel, done: make(chan struct{})}
	s.mu.Lock()
	s.active = t
	s.mu.Unlock()
	s.setStatus(Running)

	if s.host != nil {
		t.token = s.host.Add(t)
		t.hosted = true
	} else {
		go func() { _ = t.Serve(context.Background()) }()
	}

	logging.Debug().Str("service", s.def.Name).Str("kind", s.def.Kind.String()).Msg("Service created")
	return nil
}

// OnShutdown cancels the task with ErrPlatformShutdown, waits for it to
// return (bounded by the stop timeout) and runs teardown. It never panics
// and is a no-op when the service is not created.
func (s *Service) OnShutdown() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if !s.created {
		return
	}
	s.created = false

	s.mu.Lock()
	t := s.active
	s.active = nil
	s.mu.Unlock()

	if t != nil {
		t.cancel(ErrPlatformShutdown)
		select {
		case <-t.done:
		case <-time.After(s.def.StopTimeout):
			logging.Warn().
				Str("service", s.def.Name).
				Dur("timeout", s.def.StopTimeout).
				Msg("Service task did not stop in time, abandoning it")
			if t.hosted {
				if err := s.host.Remove(t.token); err != nil {
					logging.Debug().Err(err).Str("service", s.def.Name).Msg("Failed to remove task from supervisor")
				}
			}
		}
	}

	s.teardown()
	s.setStatus(NotRunning)
	logging.Debug().Str("service", s.def.Name).Msg("Service shut down")
}

func (s *Service) setup(ctx context.Context) (err error) {
	if s.def.Setup == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrServicePanic, r)
		}
	}()
	return s.def.Setup(ctx)
}

func (s *Service) teardown() {
	if s.def.Teardown == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logging.Error().Str("service", s.def.Name).Interface("panic", r).Msg("Service teardown panicked")
		}
	}()
	s.def.Teardown()
}

func (s *Service) setStatus(status RunStatus) {
	s.status.Set(status)
	metrics.RecordServiceStatus(s.group, s.def.Name, status.String())
}

// execute runs the work according to the service kind.
func (s *Service) execute(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrServicePanic, r)
		}
	}()

	if s.def.Kind != KindLooping {
		return s.def.Work(ctx)
	}

	for {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		if err := s.def.Work(ctx); err != nil {
			return err
		}
		runtime.Gosched()
	}
}

// finish records the task's outcome if it is still the active task.
func (s *Service) finish(t *task, err error) {
	s.mu.Lock()
	current := s.active == t
	if current {
		s.active = nil
	}
	s.mu.Unlock()

	switch {
	case IsShutdown(t.ctx, err):
		logging.Debug().Str("service", s.def.Name).Msg("Service task cancelled by shutdown")
	case err != nil:
		logging.Error().Err(err).Str("service", s.def.Name).Msg("Service task failed")
		if current {
			s.setStatus(Failed)
		}
	default:
		logging.Debug().Str("service", s.def.Name).Msg("Service task completed")
		if current {
			s.setStatus(NotRunning)
		}
	}
}

// task is one launch of a service's work, run as a suture service.
type task struct {
	svc    *Service
	ctx    context.Context
	cancel context.CancelCauseFunc
	done   chan struct{}
	once   sync.Once

	token  suture.ServiceToken
	hosted bool
}

// Serve implements suture.Service. The supervisor's context stopping is
// treated as a platform shutdown. The task never asks to be restarted.
func (t *task) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { t.cancel(ErrPlatformShutdown) })
	defer stop()

	t.once.Do(func() {
		defer close(t.done)
		err := t.svc.execute(t.ctx)
		t.svc.finish(t, err)
	})
	return suture.ErrDoNotRestart
}

// String implements fmt.Stringer for suture's event logging.
func (t *task) String() string {
	return t.svc.def.Name
}
