// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

package bluetooth

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/ibusplatform/internal/config"
	"github.com/tomtom215/ibusplatform/internal/ibus"
	"github.com/tomtom215/ibusplatform/internal/logging"
	"github.com/tomtom215/ibusplatform/internal/mailbox"
	"github.com/tomtom215/ibusplatform/internal/platform"
)

// ServiceOptions configures the composite bluetooth service.
type ServiceOptions struct {
	Device      config.DeviceConfiguration
	SettleDelay time.Duration
	Sinks       []TrackInfoSink
}

// Service bridges the steering wheel to the phone. It owns the track info
// fetcher and the event dispatcher, and makes the first connection to the
// paired phone once both are listening.
//
// The children are exposed through Children so they can be listed in the
// same group. Creating or shutting down a child that is already in that
// state does nothing, so either owner may do it.
type Service struct {
	reconnector *Reconnector
	device      config.DeviceConfiguration
	children    []*platform.Service
}

// NewService creates the composite service. Both children listen on events.
func NewService(events *mailbox.Dispatcher[ibus.InputEvent], r *Reconnector, opts ServiceOptions) *Service {
	fetcher := NewTrackInfoFetcher(events, r, opts.SettleDelay, opts.Sinks...)
	dispatcher := NewEventDispatcher(events, r)
	return &Service{
		reconnector: r,
		device:      opts.Device,
		children: []*platform.Service{
			platform.NewService(fetcher.Definition()),
			platform.NewService(dispatcher.Definition()),
		},
	}
}

// Definition returns the platform service definition.
func (s *Service) Definition() platform.Definition {
	return platform.Definition{
		Name:        "bluetooth",
		Description: "Phone media bridge over BlueZ",
		Kind:        platform.KindOneShot,
		Setup:       s.setup,
		Work:        s.run,
		Teardown:    s.teardown,
	}
}

// Children returns the services the composite owns.
func (s *Service) Children() []*platform.Service {
	return s.children
}

func (s *Service) setup(ctx context.Context) error {
	for i, child := range s.children {
		if err := child.OnCreate(); err != nil {
			for j := i - 1; j >= 0; j-- {
				s.children[j].OnShutdown()
			}
			return fmt.Errorf("start %s: %w", child.Name(), err)
		}
	}
	if s.device.HasPairedPhone() {
		s.reconnector.SetPhone(s.device.PairedPhone)
	}
	return nil
}

func (s *Service) run(ctx context.Context) error {
	log := logging.Ctx(ctx)

	if !s.device.HasPairedPhone() {
		if s.device.PairingEnabled {
			log.Info().Msg("No paired phone yet, waiting for pairing")
		} else {
			log.Warn().Msg("No paired phone configured, media bridge idle")
		}
	} else if _, err := s.reconnector.Reconnect(ctx); err != nil {
		if platform.IsShutdown(ctx, err) {
			return context.Cause(ctx)
		}
		// The children reconnect on the next track button.
		log.Warn().Err(err).Str("phone", s.device.PairedPhone.Name).Msg("Initial connection to phone failed")
	}

	<-ctx.Done()
	return context.Cause(ctx)
}

func (s *Service) teardown() {
	for i := len(s.children) - 1; i >= 0; i-- {
		s.children[i].OnShutdown()
	}
	s.reconnector.Invalidate()
}
