// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

package platform

import (
	"context"
	"errors"

	"github.com/tomtom215/ibusplatform/internal/logging"
)

// Platform runs a fixed service list for the life of the caller.
type Platform struct {
	runner *Runner
}

// NewPlatform creates a one-shot platform over list.
func NewPlatform(list *ServiceList, config RunnerConfig) *Platform {
	return &Platform{runner: NewRunner(list, config)}
}

// Runner exposes the underlying runner for by-name control.
func (p *Platform) Runner() *Runner {
	return p.runner
}

// Run creates every service and blocks until all their tasks have returned
// or ctx is done. Every service is shut down before Run returns. A ctx
// cancelled with ErrPlatformShutdown is reported as a clean stop.
func (p *Platform) Run(ctx context.Context) error {
	defer func() {
		if err := p.runner.Close(); err != nil {
			logging.Warn().Err(err).Msg("Platform runner close failed")
		}
	}()

	if err := p.runner.RunAll(); err != nil {
		logging.Warn().Err(err).Msg("Some platform services failed to start")
	}

	err := p.runner.Join(ctx)
	p.runner.StopAll()

	if err == nil || errors.Is(err, ErrPlatformShutdown) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
