// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/ibusplatform/internal/car"
	"github.com/tomtom215/ibusplatform/internal/config"
	"github.com/tomtom215/ibusplatform/internal/debugapi"
	"github.com/tomtom215/ibusplatform/internal/logging"
	"github.com/tomtom215/ibusplatform/internal/metrics"
	"github.com/tomtom215/ibusplatform/internal/platform"
	"github.com/tomtom215/ibusplatform/internal/supervisor"
	"github.com/tomtom215/ibusplatform/internal/supervisor/services"
)

// uptimeInterval is how often the uptime gauge is refreshed.
const uptimeInterval = 15 * time.Second

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the head unit platform (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadWithKoanf()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
}

// initialDevice returns the configuration the platform starts with: the
// device file when one is configured and present, else the device section
// of the main config. A missing device file is not an error; the watcher
// picks it up once it is written.
func initialDevice(cfg *config.Config) (config.DeviceConfiguration, error) {
	if cfg.Platform.DeviceFile == "" {
		return cfg.Device, nil
	}
	device, err := config.LoadDeviceConfiguration(cfg.Platform.DeviceFile)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg.Device, nil
	}
	if err != nil {
		return cfg.Device, err
	}
	return device, nil
}

// run builds the supervision tree and blocks until ctx is cancelled and
// every service has stopped.
//
//nolint:gocyclo // sequential wiring
func run(ctx context.Context, cfg *config.Config) error {
	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Output:    os.Stderr,
	})
	started := time.Now()
	metrics.SetAppInfo(version)

	device, err := initialDevice(cfg)
	if err != nil {
		logging.Warn().Err(err).Str("path", cfg.Platform.DeviceFile).Msg("Ignoring device configuration file at startup")
	}
	logging.Info().
		Str("version", version).
		Str("device", device.String()).
		Str("serial_port", cfg.Serial.Port).
		Bool("debug_api", cfg.Debug.Enabled).
		Msg("Starting head unit platform")

	slogLogger := logging.NewSlogLogger()

	factory := car.NewFactory(car.Options{
		Serial:      cfg.Serial,
		Reconnect:   cfg.Reconnect,
		Diagnostics: cfg.Diagnostics,
	})
	headUnit := platform.NewConfigurablePlatform(factory.Build, platform.RunnerConfig{
		Name:            "head-unit",
		ShutdownTimeout: cfg.Platform.ShutdownTimeout,
		Logger:          slogLogger,
	})
	host := services.NewPlatformHostService(headUnit, device)

	tree, err := supervisor.NewSupervisorTree(slogLogger, supervisor.TreeConfig{
		FailureThreshold: cfg.Platform.FailureThreshold,
		FailureDecay:     cfg.Platform.FailureDecay,
		FailureBackoff:   cfg.Platform.FailureBackoff,
		ShutdownTimeout:  cfg.Platform.ShutdownTimeout,
	})
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}

	tree.AddPlatformService(host)
	if cfg.Platform.DeviceFile != "" {
		tree.AddPlatformService(services.NewDeviceConfigWatcher(cfg.Platform.DeviceFile, host, services.DefaultDebounceInterval))
		logging.Info().Str("path", cfg.Platform.DeviceFile).Msg("Device configuration watcher added")
	}

	if cfg.Debug.Enabled {
		api := debugapi.New(debugapi.Options{
			Platform: headUnit,
			Host:     host,
			Tracks:   factory.Tracks(),
		})
		server := debugapi.NewHTTPServer(cfg.Debug, api.Handler())
		server.RegisterOnShutdown(api.CloseStreams)
		tree.AddAPIService(services.NewHTTPServerService("debug-api", server, cfg.Platform.ShutdownTimeout))
		logging.Info().Str("addr", cfg.Debug.Addr).Msg("Debug API added")
	}

	go refreshUptime(ctx, started)

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutdown requested, waiting for services to stop")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	// The host stops the platform itself; this only catches a host that
	// overran the shutdown timeout.
	if headUnit.Running() {
		logging.Warn().Msg("Platform still running after supervisor exit, stopping it")
		headUnit.Stop()
	}

	unstopped, err := tree.UnstoppedServiceReport()
	if err != nil {
		logging.Warn().Err(err).Msg("Failed to collect unstopped service report")
	}
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Dur("uptime", time.Since(started)).Msg("Head unit platform stopped")
	return nil
}

func refreshUptime(ctx context.Context, started time.Time) {
	ticker := time.NewTicker(uptimeInterval)
	defer ticker.Stop()
	metrics.UpdateUptime(started)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.UpdateUptime(started)
		}
	}
}
