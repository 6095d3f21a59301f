// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

package services

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tomtom215/ibusplatform/internal/config"
	"github.com/tomtom215/ibusplatform/internal/logging"
)

// DefaultDebounceInterval is how long the watcher waits after the last
// change to the device file before reloading it.
const DefaultDebounceInterval = 250 * time.Millisecond

// Reconfigurer receives device configurations read from the watched file.
type Reconfigurer interface {
	Configuration() (config.DeviceConfiguration, bool)
	Reconfigure(device config.DeviceConfiguration)
}

// DeviceConfigWatcher watches a standalone device configuration file and
// reconfigures the platform when its contents change. Invalid files are
// logged and ignored; a file describing the running configuration is a
// no-op.
type DeviceConfigWatcher struct {
	path     string
	target   Reconfigurer
	debounce time.Duration
}

// NewDeviceConfigWatcher creates a watcher for path.
func NewDeviceConfigWatcher(path string, target Reconfigurer, debounce time.Duration) *DeviceConfigWatcher {
	if debounce <= 0 {
		debounce = DefaultDebounceInterval
	}
	return &DeviceConfigWatcher{path: path, target: target, debounce: debounce}
}

// Serve implements suture.Service. The parent directory is watched, so
// editors that replace the file on save are seen too.
func (w *DeviceConfigWatcher) Serve(ctx context.Context) error {
	log := logging.Ctx(ctx).With().Str("path", w.path).Logger()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}
	log.Info().Msg("Watching device configuration")

	name := filepath.Clean(w.path)
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("file watcher closed")
			}
			if filepath.Clean(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			log.Debug().Stringer("op", event.Op).Msg("Device configuration changed")
			timer.Reset(w.debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("file watcher closed")
			}
			log.Warn().Err(err).Msg("File watcher error")

		case <-timer.C:
			w.reload(ctx)
		}
	}
}

// reload reads the file and hands it to the target if it differs from the
// running configuration.
func (w *DeviceConfigWatcher) reload(ctx context.Context) {
	log := logging.Ctx(ctx)

	device, err := config.LoadDeviceConfiguration(w.path)
	if err != nil {
		log.Warn().Err(err).Str("path", w.path).Msg("Ignoring device configuration")
		return
	}
	if current, ok := w.target.Configuration(); ok && current.Equal(device) {
		log.Debug().Str("device", device.String()).Msg("Device configuration unchanged")
		return
	}
	log.Info().Str("device", device.String()).Msg("Applying new device configuration")
	w.target.Reconfigure(device)
}

// String implements fmt.Stringer for suture's logs.
func (w *DeviceConfigWatcher) String() string {
	return "device-config-watcher"
}
