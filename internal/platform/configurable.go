// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

package platform

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tomtom215/ibusplatform/internal/config"
	"github.com/tomtom215/ibusplatform/internal/logging"
	"github.com/tomtom215/ibusplatform/internal/metrics"
	"github.com/tomtom215/ibusplatform/internal/stream"
)

// ErrPlatformStopped is returned by service actions while no graph runs.
var ErrPlatformStopped = errors.New("platform stopped")

// Graph is the service graph built for one device configuration.
type Graph struct {
	List *ServiceList

	// Close releases resources the graph owns (serial ports, bus
	// connections). It runs after every service has been shut down.
	Close func() error
}

// GraphFactory builds a fresh service graph bound to device. The context
// carries the generation ID for logging.
type GraphFactory func(ctx context.Context, device config.DeviceConfiguration) (*Graph, error)

// RunStatusRecord is the observable state of one service.
type RunStatusRecord struct {
	Group       string    `json:"group"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Status      RunStatus `json:"status"`
}

// RunStatusGroup is the observable state of one group of services.
type RunStatusGroup struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Services    []RunStatusRecord `json:"services"`
}

// ConfigurablePlatform owns at most one running service graph and replaces
// it whenever the device configuration changes.
//
// The current configuration and a consolidated run status snapshot are
// published on replayable streams. Each graph gets its own mirroring task
// feeding the snapshot; it is stopped before the graph is torn down, so a
// replaced graph can never overwrite the status of its successor.
type ConfigurablePlatform struct {
	factory      GraphFactory
	runnerConfig RunnerConfig

	mu      sync.Mutex
	current *generation

	configuration *stream.State[config.DeviceConfiguration]
	status        *stream.State[[]RunStatusGroup]
}

type generation struct {
	id         string
	device     config.DeviceConfiguration
	graph      *Graph
	runner     *Runner
	cancel     context.CancelCauseFunc
	mirrorDone chan struct{}
}

// NewConfigurablePlatform creates a stopped platform.
func NewConfigurablePlatform(factory GraphFactory, runnerConfig RunnerConfig) *ConfigurablePlatform {
	return &ConfigurablePlatform{
		factory:       factory,
		runnerConfig:  runnerConfig,
		configuration: stream.NewState[config.DeviceConfiguration](),
		status:        stream.NewStateOf[[]RunStatusGroup](nil),
	}
}

// Run starts the platform with the last configuration it ran, or initial if
// it never ran.
func (p *ConfigurablePlatform) Run(ctx context.Context, initial config.DeviceConfiguration) error {
	device := initial
	if last, ok := p.configuration.Value(); ok {
		device = last
	}
	return p.OnNewDeviceConfiguration(ctx, device)
}

// Stop shuts down the running graph. It is a no-op when stopped.
func (p *ConfigurablePlatform) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

// OnNewDeviceConfiguration stops the running graph, if any, then builds and
// starts a new graph for device. Every service of the old graph has been
// shut down before any service of the new one is created.
func (p *ConfigurablePlatform) OnNewDeviceConfiguration(ctx context.Context, device config.DeviceConfiguration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()

	id := logging.NewGenerationID()
	ctx = logging.ContextWithGeneration(ctx, id)
	log := logging.Ctx(ctx)

	graph, err := p.factory(ctx, device)
	if err != nil {
		log.Error().Err(err).Str("device", device.String()).Msg("Failed to build service graph")
		return fmt.Errorf("build service graph: %w", err)
	}

	runnerConfig := p.runnerConfig
	if runnerConfig.Name == "" {
		runnerConfig.Name = "platform-" + id
	}
	runner := NewRunner(graph.List, runnerConfig)
	if err := runner.RunAll(); err != nil {
		log.Warn().Err(err).Msg("Some services failed to start")
	}

	p.configuration.Set(device)

	mirrorCtx, cancel := context.WithCancelCause(context.Background())
	gen := &generation{
		id:         id,
		device:     device,
		graph:      graph,
		runner:     runner,
		cancel:     cancel,
		mirrorDone: make(chan struct{}),
	}
	p.current = gen
	go p.mirror(mirrorCtx, gen)

	metrics.RecordPlatformReconfiguration(string(device.Target))
	log.Info().
		Str("device", device.String()).
		Int("services", graph.List.Len()).
		Msg("Service graph running")
	return nil
}

func (p *ConfigurablePlatform) stopLocked() {
	gen := p.current
	if gen == nil {
		return
	}
	p.current = nil

	gen.cancel(ErrPlatformShutdown)
	<-gen.mirrorDone

	gen.runner.StopAll()
	if err := gen.runner.Close(); err != nil {
		logging.Warn().Err(err).Str("generation", gen.id).Msg("Runner did not close cleanly")
	}
	if gen.graph.Close != nil {
		if err := gen.graph.Close(); err != nil {
			logging.Warn().Err(err).Str("generation", gen.id).Msg("Failed to release service graph resources")
		}
	}

	p.status.Set(nil)
	logging.Info().Str("generation", gen.id).Msg("Service graph stopped")
}

// mirror keeps the status snapshot in step with every service of gen until
// its context is cancelled. It is the only writer of the snapshot while gen
// is current.
func (p *ConfigurablePlatform) mirror(ctx context.Context, gen *generation) {
	defer close(gen.mirrorDone)

	services := gen.graph.List.All()
	wake := make(chan struct{}, 1)

	var wg sync.WaitGroup
	for _, svc := range services {
		wg.Add(1)
		go func(updates <-chan RunStatus) {
			defer wg.Done()
			for range updates {
				select {
				case wake <- struct{}{}:
				default:
				}
			}
		}(svc.StatusStream().Subscribe(ctx))
	}

	p.status.Set(snapshot(gen.graph.List))
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case <-wake:
			if ctx.Err() != nil {
				continue
			}
			p.status.Set(snapshot(gen.graph.List))
		}
	}
}

func snapshot(list *ServiceList) []RunStatusGroup {
	groups := make([]RunStatusGroup, 0, len(list.Groups()))
	for _, g := range list.Groups() {
		records := make([]RunStatusRecord, 0, len(g.Services))
		for _, svc := range g.Services {
			records = append(records, RunStatusRecord{
				Group:       g.Name,
				Name:        svc.Name(),
				Description: svc.Description(),
				Status:      svc.Status(),
			})
		}
		groups = append(groups, RunStatusGroup{Name: g.Name, Description: g.Description, Services: records})
	}
	return groups
}

// Status returns the latest run status snapshot. It is empty while stopped.
func (p *ConfigurablePlatform) Status() []RunStatusGroup {
	v, _ := p.status.Value()
	return v
}

// StatusStream returns the replayable run status snapshot stream.
func (p *ConfigurablePlatform) StatusStream() *stream.State[[]RunStatusGroup] {
	return p.status
}

// Configuration returns the configuration most recently run.
func (p *ConfigurablePlatform) Configuration() (config.DeviceConfiguration, bool) {
	return p.configuration.Value()
}

// ConfigurationStream returns the replayable configuration stream.
func (p *ConfigurablePlatform) ConfigurationStream() *stream.State[config.DeviceConfiguration] {
	return p.configuration
}

// Running reports whether a service graph is active.
func (p *ConfigurablePlatform) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current != nil
}

// Generation returns the ID of the running graph, or "" when stopped.
func (p *ConfigurablePlatform) Generation() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return ""
	}
	return p.current.id
}

// StartService starts one service of the running graph by name.
func (p *ConfigurablePlatform) StartService(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return ErrPlatformStopped
	}
	return p.current.runner.StartByName(name)
}

// StopService stops one service of the running graph by name.
func (p *ConfigurablePlatform) StopService(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return ErrPlatformStopped
	}
	return p.current.runner.StopByName(name)
}
