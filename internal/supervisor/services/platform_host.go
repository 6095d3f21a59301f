// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

package services

import (
	"context"
	"sync"

	"github.com/tomtom215/ibusplatform/internal/config"
	"github.com/tomtom215/ibusplatform/internal/logging"
	"github.com/tomtom215/ibusplatform/internal/platform"
	"github.com/tomtom215/ibusplatform/internal/stream"
)

// ConfigurablePlatform is the part of *platform.ConfigurablePlatform the
// host drives.
type ConfigurablePlatform interface {
	Run(ctx context.Context, initial config.DeviceConfiguration) error
	Stop()
	OnNewDeviceConfiguration(ctx context.Context, device config.DeviceConfiguration) error
	Configuration() (config.DeviceConfiguration, bool)
	Running() bool
}

var _ ConfigurablePlatform = (*platform.ConfigurablePlatform)(nil)

type reconfiguration struct {
	seq    uint64
	device config.DeviceConfiguration
}

// PlatformHostService owns the head unit platform for the life of the
// process. Serve starts it with the last configuration it ran (or the
// initial one), applies requested reconfigurations one at a time, and stops
// it explicitly before returning.
//
// A configuration that fails to build leaves the platform stopped but the
// host keeps serving, so a corrected configuration can still be applied.
// A failed reconfiguration falls back to the previous configuration; if that
// fails too, Serve returns the error and suture restarts the host.
type PlatformHostService struct {
	platform ConfigurablePlatform
	requests *stream.State[reconfiguration]

	mu       sync.Mutex
	nextSeq  uint64
	handled  uint64
	lastGood config.DeviceConfiguration
}

// NewPlatformHostService creates the host.
func NewPlatformHostService(p ConfigurablePlatform, initial config.DeviceConfiguration) *PlatformHostService {
	return &PlatformHostService{
		platform: p,
		requests: stream.NewState[reconfiguration](),
		lastGood: initial,
	}
}

// Configuration returns the configuration the platform runs.
func (h *PlatformHostService) Configuration() (config.DeviceConfiguration, bool) {
	return h.platform.Configuration()
}

// Reconfigure asks the host to rebuild the platform for device. Requests
// are conflated: only the latest pending one is applied. Requests made
// while the host is not serving are applied when it next starts.
func (h *PlatformHostService) Reconfigure(device config.DeviceConfiguration) {
	h.mu.Lock()
	h.nextSeq++
	req := reconfiguration{seq: h.nextSeq, device: device}
	h.mu.Unlock()
	h.requests.Set(req)
}

// Serve implements suture.Service.
func (h *PlatformHostService) Serve(ctx context.Context) error {
	log := logging.Ctx(ctx)

	// Subscribe before starting so requests made while the start fails are
	// still seen.
	updates := h.requests.Subscribe(ctx)
	defer h.platform.Stop()

	if err := h.platform.Run(ctx, h.lastGoodConfiguration()); err != nil {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		log.Error().Err(err).Msg("Head unit platform failed to start, waiting for a new device configuration")
	}

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Stopping head unit platform")
			return ctx.Err()
		case req, ok := <-updates:
			if !ok {
				return ctx.Err()
			}
			if !h.claim(req.seq) {
				continue
			}
			if err := h.apply(ctx, req.device); err != nil {
				return err
			}
		}
	}
}

// claim marks seq handled. It reports false for requests already seen,
// such as the replay after a restart.
func (h *PlatformHostService) claim(seq uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if seq <= h.handled {
		return false
	}
	h.handled = seq
	return true
}

func (h *PlatformHostService) apply(ctx context.Context, device config.DeviceConfiguration) error {
	log := logging.Ctx(ctx)

	if current, ok := h.platform.Configuration(); ok && h.platform.Running() && current.Equal(device) {
		log.Debug().Str("device", device.String()).Msg("Device configuration unchanged")
		return nil
	}

	err := h.platform.OnNewDeviceConfiguration(ctx, device)
	if err == nil {
		h.mu.Lock()
		h.lastGood = device
		h.mu.Unlock()
		return nil
	}
	previous := h.lastGoodConfiguration()
	if previous.Equal(device) {
		log.Error().Err(err).Str("device", device.String()).Msg("Reconfiguration failed, waiting for a new device configuration")
		return nil
	}
	log.Error().Err(err).
		Str("device", device.String()).
		Str("previous", previous.String()).
		Msg("Reconfiguration failed, restoring previous configuration")
	return h.platform.Run(ctx, previous)
}

func (h *PlatformHostService) lastGoodConfiguration() config.DeviceConfiguration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastGood
}

// String implements fmt.Stringer for suture's logs.
func (h *PlatformHostService) String() string {
	return "platform-host"
}
