// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

package bluetooth

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/tomtom215/ibusplatform/internal/logging"
	"github.com/tomtom215/ibusplatform/internal/metrics"
	"github.com/tomtom215/ibusplatform/internal/platform"
	"github.com/tomtom215/ibusplatform/internal/stream"
)

// Agent constants.
const (
	AgentPath       = dbus.ObjectPath("/pairing/agent")
	AgentCapability = "DisplayYesNo"
	agentInterface  = "org.bluez.Agent1"
	agentManager    = "org.bluez.AgentManager1"

	// DefaultPinCode is offered to legacy devices that ask for a PIN.
	DefaultPinCode = "e39"

	maxPasskey = 999_999

	agentUnregisterTimeout = 2 * time.Second
)

// RejectedError is a pairing request the agent refused. Over D-Bus it is
// returned as org.bluez.Error.Rejected.
type RejectedError struct {
	Device dbus.ObjectPath
	Reason string
}

func (e *RejectedError) Error() string {
	if e.Device == "" {
		return "pairing rejected: " + e.Reason
	}
	return fmt.Sprintf("pairing rejected for %s: %s", e.Device, e.Reason)
}

// ErrPairingCanceled is returned as org.bluez.Error.Canceled.
var ErrPairingCanceled = errors.New("pairing canceled")

// AgentEventKind identifies an AgentEvent.
type AgentEventKind int

const (
	AgentReleased AgentEventKind = iota
	AgentDisplayPasskey
	AgentCanceled
)

func (k AgentEventKind) String() string {
	switch k {
	case AgentReleased:
		return "released"
	case AgentDisplayPasskey:
		return "display_passkey"
	case AgentCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("agent_event(%d)", int(k))
	}
}

// AgentEvent is something the pairing UI has to react to. Device, Passkey
// and Entered are only set for AgentDisplayPasskey.
type AgentEvent struct {
	Kind    AgentEventKind
	Device  dbus.ObjectPath
	Passkey uint32
	Entered uint16
}

type passkeyEntry struct {
	passkey uint32
	entered uint16
}

// Agent answers BlueZ pairing requests. BlueZ calls it from its own
// goroutines, so the pass-key table is mutex guarded. Events for the pairing
// UI are queued and never block a D-Bus call.
type Agent struct {
	mu       sync.Mutex
	passkeys map[dbus.ObjectPath]passkeyEntry

	events  *stream.Queue[AgentEvent]
	newCode func() uint32
}

// NewAgent creates an agent with an empty pass-key table.
func NewAgent() *Agent {
	return &Agent{
		passkeys: make(map[dbus.ObjectPath]passkeyEntry),
		events:   stream.NewQueue[AgentEvent](),
		newCode:  func() uint32 { return rand.Uint32N(maxPasskey + 1) },
	}
}

// Events streams agent events until Close.
func (a *Agent) Events() <-chan AgentEvent {
	return a.events.Out()
}

// Close stops the event stream.
func (a *Agent) Close() {
	a.events.Close()
}

// Passkey returns the pass key issued to device.
func (a *Agent) Passkey(device dbus.ObjectPath) (uint32, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.passkeys[device]
	return e.passkey, ok
}

// Release is called when BlueZ unregisters the agent.
func (a *Agent) Release() {
	logging.Info().Str("path", string(AgentPath)).Msg("Pairing agent released")
	a.events.Send(AgentEvent{Kind: AgentReleased})
}

// RequestPinCode answers legacy PIN requests, e.g. a keyboard.
func (a *Agent) RequestPinCode(device dbus.ObjectPath) (string, error) {
	metrics.RecordPairingRequest("RequestPinCode", nil)
	return DefaultPinCode, nil
}

// DisplayPinCode is only used by legacy devices and is logged.
func (a *Agent) DisplayPinCode(device dbus.ObjectPath, pincode string) {
	logging.Info().Str("device", string(device)).Str("pincode", pincode).Msg("Display PIN code")
}

// RequestPasskey returns the pass key for device, issuing a new random
// six digit key on the first request.
func (a *Agent) RequestPasskey(device dbus.ObjectPath) (uint32, error) {
	if device == "" {
		metrics.RecordPairingRequest("RequestPasskey", ErrPairingCanceled)
		return 0, fmt.Errorf("%w: no device", ErrPairingCanceled)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.passkeys[device]
	if !ok {
		e = passkeyEntry{passkey: a.newCode() % (maxPasskey + 1)}
		a.passkeys[device] = e
	}
	metrics.RecordPairingRequest("RequestPasskey", nil)
	return e.passkey, nil
}

// DisplayPasskey records a key press on the remote side and asks the UI to
// show the pass key.
func (a *Agent) DisplayPasskey(device dbus.ObjectPath, passkey uint32, entered uint16) {
	a.mu.Lock()
	e, ok := a.passkeys[device]
	if !ok {
		e = passkeyEntry{passkey: passkey}
	}
	e.entered++
	a.passkeys[device] = e
	a.mu.Unlock()

	logging.Debug().Str("device", string(device)).Uint32("passkey", passkey).Uint16("entered", entered).Msg("Display passkey")
	a.events.Send(AgentEvent{Kind: AgentDisplayPasskey, Device: device, Passkey: passkey, Entered: entered})
}

// RequestConfirmation accepts only the pass key this agent issued.
func (a *Agent) RequestConfirmation(device dbus.ObjectPath, passkey uint32) error {
	err := a.confirm(device, passkey)
	metrics.RecordPairingRequest("RequestConfirmation", err)
	return err
}

func (a *Agent) confirm(device dbus.ObjectPath, passkey uint32) error {
	if device == "" {
		return &RejectedError{Reason: "no device"}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.passkeys[device]
	if !ok {
		return &RejectedError{Device: device, Reason: "no passkey issued"}
	}
	if e.passkey != passkey {
		return &RejectedError{Device: device, Reason: "incorrect passkey"}
	}
	return nil
}

// RequestAuthorization authorizes every device.
func (a *Agent) RequestAuthorization(device dbus.ObjectPath) error {
	metrics.RecordPairingRequest("RequestAuthorization", nil)
	return nil
}

// AuthorizeService authorizes every profile.
func (a *Agent) AuthorizeService(device dbus.ObjectPath, uuid string) error {
	metrics.RecordPairingRequest("AuthorizeService", nil)
	return nil
}

// Cancel is called when BlueZ abandons a request.
func (a *Agent) Cancel() {
	a.events.Send(AgentEvent{Kind: AgentCanceled})
}

// toDBusError maps agent errors to the names BlueZ expects.
func toDBusError(err error) *dbus.Error {
	if err == nil {
		return nil
	}
	var rejected *RejectedError
	switch {
	case errors.As(err, &rejected):
		return dbus.NewError("org.bluez.Error.Rejected", []interface{}{rejected.Error()})
	case errors.Is(err, ErrPairingCanceled):
		return dbus.NewError("org.bluez.Error.Canceled", []interface{}{err.Error()})
	default:
		return dbus.MakeFailedError(err)
	}
}

// agentObject is the exported org.bluez.Agent1 object. godbus exports
// methods whose last result is *dbus.Error.
type agentObject struct {
	agent *Agent
}

func (o agentObject) Release() *dbus.Error {
	o.agent.Release()
	return nil
}

func (o agentObject) RequestPinCode(device dbus.ObjectPath) (string, *dbus.Error) {
	pin, err := o.agent.RequestPinCode(device)
	return pin, toDBusError(err)
}

func (o agentObject) DisplayPinCode(device dbus.ObjectPath, pincode string) *dbus.Error {
	o.agent.DisplayPinCode(device, pincode)
	return nil
}

func (o agentObject) RequestPasskey(device dbus.ObjectPath) (uint32, *dbus.Error) {
	key, err := o.agent.RequestPasskey(device)
	return key, toDBusError(err)
}

func (o agentObject) DisplayPasskey(device dbus.ObjectPath, passkey uint32, entered uint16) *dbus.Error {
	o.agent.DisplayPasskey(device, passkey, entered)
	return nil
}

func (o agentObject) RequestConfirmation(device dbus.ObjectPath, passkey uint32) *dbus.Error {
	return toDBusError(o.agent.RequestConfirmation(device, passkey))
}

func (o agentObject) RequestAuthorization(device dbus.ObjectPath) *dbus.Error {
	return toDBusError(o.agent.RequestAuthorization(device))
}

func (o agentObject) AuthorizeService(device dbus.ObjectPath, uuid string) *dbus.Error {
	return toDBusError(o.agent.AuthorizeService(device, uuid))
}

func (o agentObject) Cancel() *dbus.Error {
	o.agent.Cancel()
	return nil
}

// AgentRegistrar publishes an agent to BlueZ.
type AgentRegistrar interface {
	Register(ctx context.Context, agent *Agent) error
	Unregister(ctx context.Context) error
}

// DBusAgentRegistrar exports the agent on the system bus and registers it
// with the BlueZ AgentManager1.
type DBusAgentRegistrar struct {
	connector *DBusConnector
}

// NewDBusAgentRegistrar shares the connector's bus connection.
func NewDBusAgentRegistrar(connector *DBusConnector) *DBusAgentRegistrar {
	return &DBusAgentRegistrar{connector: connector}
}

// Register implements AgentRegistrar.
func (r *DBusAgentRegistrar) Register(ctx context.Context, agent *Agent) error {
	conn, err := r.connector.Conn()
	if err != nil {
		return err
	}
	if err := conn.Export(agentObject{agent: agent}, AgentPath, agentInterface); err != nil {
		return fmt.Errorf("export pairing agent: %w", err)
	}
	call := conn.Object(bluezService, "/org/bluez").
		CallWithContext(ctx, agentManager+".RegisterAgent", 0, AgentPath, AgentCapability)
	if call.Err != nil {
		_ = conn.Export(nil, AgentPath, agentInterface)
		return fmt.Errorf("register pairing agent: %w", call.Err)
	}
	return nil
}

// Unregister implements AgentRegistrar. An agent BlueZ already forgot is
// not an error.
func (r *DBusAgentRegistrar) Unregister(ctx context.Context) error {
	conn, err := r.connector.Conn()
	if err != nil {
		return err
	}
	defer func() { _ = conn.Export(nil, AgentPath, agentInterface) }()

	call := conn.Object(bluezService, "/org/bluez").
		CallWithContext(ctx, agentManager+".UnregisterAgent", 0, AgentPath)
	if call.Err != nil && dbusErrorName(call.Err) != errBluezDoesNotExst {
		return fmt.Errorf("unregister pairing agent: %w", call.Err)
	}
	return nil
}

// AgentDefinition hosts the agent as a plain service: registered on setup,
// unregistered on teardown.
func AgentDefinition(agent *Agent, registrar AgentRegistrar) platform.Definition {
	return platform.Definition{
		Name:        "bt-pairing-agent",
		Description: "Answers BlueZ pairing requests",
		Kind:        platform.KindPlain,
		Setup: func(ctx context.Context) error {
			return registrar.Register(ctx, agent)
		},
		Teardown: func() {
			ctx, cancel := context.WithTimeout(context.Background(), agentUnregisterTimeout)
			defer cancel()
			if err := registrar.Unregister(ctx); err != nil {
				logging.Warn().Err(err).Msg("Failed to unregister pairing agent")
			}
		},
	}
}

// AgentEventLogDefinition logs pairing events, showing the pass key the
// user has to compare on the phone.
func AgentEventLogDefinition(agent *Agent) platform.Definition {
	return platform.Definition{
		Name:        "bt-pairing-events",
		Description: "Logs pass keys and pairing outcomes",
		Kind:        platform.KindOneShot,
		Work: func(ctx context.Context) error {
			log := logging.Ctx(ctx)
			for {
				select {
				case <-ctx.Done():
					return context.Cause(ctx)
				case ev, ok := <-agent.Events():
					if !ok {
						return nil
					}
					entry := log.Info().Stringer("kind", ev.Kind)
					if ev.Kind == AgentDisplayPasskey {
						entry = entry.
							Str("device", string(ev.Device)).
							Str("passkey", fmt.Sprintf("%06d", ev.Passkey)).
							Uint16("entered", ev.Entered)
					}
					entry.Msg("Pairing event")
				}
			}
		},
	}
}
