// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

// Package car builds the head unit's service graph for a device
// configuration.
package car

import (
	"context"
	"errors"
	"fmt"

	"github.com/tomtom215/ibusplatform/internal/bluetooth"
	"github.com/tomtom215/ibusplatform/internal/config"
	"github.com/tomtom215/ibusplatform/internal/diagnostics"
	"github.com/tomtom215/ibusplatform/internal/ibus"
	"github.com/tomtom215/ibusplatform/internal/logging"
	"github.com/tomtom215/ibusplatform/internal/mailbox"
	"github.com/tomtom215/ibusplatform/internal/platform"
	"github.com/tomtom215/ibusplatform/internal/stream"
)

// Group names, in start order.
const (
	GroupIBus        = "ibus"
	GroupBluetooth   = "bluetooth"
	GroupDiagnostics = "diagnostics"
)

// BluetoothBackend is what the bluetooth group talks to.
type BluetoothBackend struct {
	Connector bluetooth.Connector
	Registrar bluetooth.AgentRegistrar
	Close     func() error
}

// Options configures a Factory. Zero hooks use the real hardware.
type Options struct {
	Serial      config.SerialConfig
	Reconnect   config.ReconnectConfig
	Diagnostics config.DiagnosticsConfig

	// Outbound is the process-wide queue of frames to write to the bus. It
	// outlives every graph.
	Outbound *stream.Queue[ibus.Message]

	// Tracks receives the metadata of every track change. It outlives
	// every graph.
	Tracks *bluetooth.TrackInfoState

	// OpenPort opens the bus link for device.
	OpenPort func(device config.DeviceConfiguration) (ibus.Port, error)

	// Bluetooth creates the BlueZ backend for device.
	Bluetooth func(device config.DeviceConfiguration) (BluetoothBackend, error)
}

// Factory builds service graphs. Build is its platform.GraphFactory.
type Factory struct {
	opts Options
}

// NewFactory creates a factory. A nil Outbound or Tracks gets a private one.
func NewFactory(opts Options) *Factory {
	if opts.Outbound == nil {
		opts.Outbound = stream.NewQueue[ibus.Message]()
	}
	if opts.Tracks == nil {
		opts.Tracks = bluetooth.NewTrackInfoState()
	}
	if opts.OpenPort == nil {
		opts.OpenPort = defaultPort(opts.Serial)
	}
	if opts.Bluetooth == nil {
		opts.Bluetooth = defaultBluetooth(opts.Reconnect.Adapter)
	}
	return &Factory{opts: opts}
}

// Outbound returns the queue of frames waiting to be written to the bus.
func (f *Factory) Outbound() *stream.Queue[ibus.Message] {
	return f.opts.Outbound
}

// Tracks returns the latest track metadata stream.
func (f *Factory) Tracks() *bluetooth.TrackInfoState {
	return f.opts.Tracks
}

// Build opens the hardware for device and wires a fresh service graph. On
// error everything opened so far is released.
func (f *Factory) Build(ctx context.Context, device config.DeviceConfiguration) (graph *platform.Graph, err error) {
	log := logging.Ctx(ctx)

	var closers []func() error
	release := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}
	defer func() {
		if err != nil {
			_ = release()
		}
	}()

	port, err := f.opts.OpenPort(device)
	if err != nil {
		return nil, fmt.Errorf("open bus port: %w", err)
	}
	closers = append(closers, port.Close)

	messages := mailbox.NewDispatcher[ibus.Message]("ibus-messages")
	events := mailbox.NewDispatcher[ibus.InputEvent]("input-events")
	closers = append(closers,
		func() error { messages.Close(); return nil },
		func() error { events.Close(); return nil },
	)

	backend, err := f.opts.Bluetooth(device)
	if err != nil {
		return nil, fmt.Errorf("bluetooth backend: %w", err)
	}
	if backend.Close != nil {
		closers = append(closers, backend.Close)
	}

	ibusGroup := platform.Group{
		Name:        GroupIBus,
		Description: "Serial bus reader, writer and input parser",
		Services: []*platform.Service{
			platform.NewService(ibus.NewListener(port, messages).Definition()),
			platform.NewService(ibus.NewInputParser(messages, events).Definition()),
			platform.NewService(ibus.NewPublisher(port, f.opts.Outbound, f.opts.Serial.WriteInterval).Definition()),
		},
	}

	btGroup, agent := f.bluetoothGroup(device, events, backend)
	if agent != nil {
		closers = append(closers, func() error { agent.Close(); return nil })
	}

	groups := []platform.Group{ibusGroup, btGroup}
	if diag := f.diagnosticsGroup(messages, events); len(diag.Services) > 0 {
		groups = append(groups, diag)
	}

	list, err := platform.NewServiceList(groups...)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("device", device.String()).
		Bool("pairing", agent != nil).
		Msg("Service graph built")
	return &platform.Graph{List: list, Close: release}, nil
}

func (f *Factory) bluetoothGroup(device config.DeviceConfiguration, events *mailbox.Dispatcher[ibus.InputEvent], backend BluetoothBackend) (platform.Group, *bluetooth.Agent) {
	rc := f.opts.Reconnect
	r := bluetooth.NewReconnector(backend.Connector, bluetooth.NewSessionHolder(), bluetooth.ReconnectorConfig{
		StaleDelay: rc.StaleDelay,
		Breaker: bluetooth.BreakerConfig{
			Name:             bluetooth.DefaultBreakerConfig().Name,
			FailureThreshold: rc.BreakerFailureThreshold,
			Timeout:          rc.BreakerTimeout,
			Interval:         rc.BreakerInterval,
		},
	})

	bt := bluetooth.NewService(events, r, bluetooth.ServiceOptions{
		Device:      device,
		SettleDelay: rc.SettleDelay,
		Sinks:       []bluetooth.TrackInfoSink{f.opts.Tracks, bluetooth.LogSink{}},
	})

	// The composite creates and shuts down its children itself; listing them
	// too puts them under the group's supervisor and in the status snapshot.
	group := platform.Group{
		Name:        GroupBluetooth,
		Description: "Phone media bridge",
		Services:    append([]*platform.Service{platform.NewService(bt.Definition())}, bt.Children()...),
	}

	if !device.PairingEnabled || backend.Registrar == nil {
		return group, nil
	}
	agent := bluetooth.NewAgent()
	group.Services = append(group.Services,
		platform.NewService(bluetooth.AgentDefinition(agent, backend.Registrar)),
		platform.NewService(bluetooth.AgentEventLogDefinition(agent)),
	)
	return group, agent
}

func (f *Factory) diagnosticsGroup(messages *mailbox.Dispatcher[ibus.Message], events *mailbox.Dispatcher[ibus.InputEvent]) platform.Group {
	d := f.opts.Diagnostics
	group := platform.Group{Name: GroupDiagnostics, Description: "Heartbeat and traffic printers"}
	if d.Metronome {
		group.Services = append(group.Services, platform.NewService(diagnostics.NewMetronome(d.MetronomeInterval).Definition()))
	}
	if d.PrintMessages {
		group.Services = append(group.Services, platform.NewService(diagnostics.MessagePrinterDefinition(messages)))
	}
	if d.PrintInputEvents {
		group.Services = append(group.Services, platform.NewService(diagnostics.InputEventPrinterDefinition(events)))
	}
	return group
}

// defaultPort opens the serial interface on the car and a loopback link
// everywhere else.
func defaultPort(serial config.SerialConfig) func(config.DeviceConfiguration) (ibus.Port, error) {
	return func(device config.DeviceConfiguration) (ibus.Port, error) {
		if !device.IsPi() {
			return ibus.NewLoopbackPort(serial.ReadTimeout), nil
		}
		return ibus.OpenSerialPort(ibus.SerialOptions{
			Device:      serial.Port,
			BaudRate:    serial.BaudRate,
			ReadTimeout: serial.ReadTimeout,
		})
	}
}

// defaultBluetooth talks to BlueZ on the system bus. The bus is dialled on
// first use, so a host without BlueZ still builds; connects just fail.
func defaultBluetooth(adapter string) func(config.DeviceConfiguration) (BluetoothBackend, error) {
	return func(config.DeviceConfiguration) (BluetoothBackend, error) {
		conn := bluetooth.NewDBusConnector(adapter)
		return BluetoothBackend{
			Connector: conn,
			Registrar: bluetooth.NewDBusAgentRegistrar(conn),
			Close:     conn.Close,
		}, nil
	}
}
