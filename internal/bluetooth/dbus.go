// IBus Platform - Head Unit Service Runtime
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ibusplatform

package bluetooth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/tomtom215/ibusplatform/internal/config"
	"github.com/tomtom215/ibusplatform/internal/logging"
)

// BlueZ names.
const (
	bluezService        = "org.bluez"
	bluezDevice         = "org.bluez.Device1"
	bluezMediaPlayer    = "org.bluez.MediaPlayer1"
	dbusProperties      = "org.freedesktop.DBus.Properties"
	dbusObjectManager   = "org.freedesktop.DBus.ObjectManager"
	errUnknownObject    = "org.freedesktop.DBus.Error.UnknownObject"
	errUnknownMethod    = "org.freedesktop.DBus.Error.UnknownMethod"
	errServiceUnknown   = "org.freedesktop.DBus.Error.ServiceUnknown"
	errBluezNotConn     = "org.bluez.Error.NotConnected"
	errBluezDoesNotExst = "org.bluez.Error.DoesNotExist"
)

// DefaultAdapter is the local controller used when none is configured.
const DefaultAdapter = "hci0"

// DBusConnector connects to the phone's media player through BlueZ on the
// system bus.
type DBusConnector struct {
	adapter string
	dial    func() (*dbus.Conn, error)

	mu   sync.Mutex
	conn *dbus.Conn
}

// NewDBusConnector creates a connector for the given local adapter.
func NewDBusConnector(adapter string) *DBusConnector {
	if adapter == "" {
		adapter = DefaultAdapter
	}
	return &DBusConnector{
		adapter: adapter,
		dial:    func() (*dbus.Conn, error) { return dbus.ConnectSystemBus() },
	}
}

// Conn returns the system bus connection, dialling it on first use.
func (c *DBusConnector) Conn() (*dbus.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && c.conn.Connected() {
		return c.conn, nil
	}
	conn, err := c.dial()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}
	c.conn = conn
	return conn, nil
}

// Close closes the bus connection.
func (c *DBusConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// DevicePath returns the BlueZ object path of a phone,
// e.g. /org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF.
func DevicePath(adapter, mac string) dbus.ObjectPath {
	return dbus.ObjectPath("/org/bluez/" + adapter + "/dev_" + strings.ReplaceAll(strings.ToUpper(mac), ":", "_"))
}

// Connect implements Connector. It connects the device if needed and
// returns the first media player BlueZ exposes under it.
func (c *DBusConnector) Connect(ctx context.Context, phone config.PairedPhone) (MediaPlayer, error) {
	conn, err := c.Conn()
	if err != nil {
		return nil, err
	}

	device := DevicePath(c.adapter, phone.MAC)
	objects, err := managedObjects(ctx, conn)
	if err != nil {
		return nil, err
	}

	props, ok := objects[device][bluezDevice]
	if !ok {
		return nil, fmt.Errorf("%w: device %s not known to BlueZ", ErrStaleSession, device)
	}
	if connected, _ := props["Connected"].Value().(bool); !connected {
		logging.Ctx(ctx).Info().Str("device", string(device)).Msg("Connecting phone")
		call := conn.Object(bluezService, device).CallWithContext(ctx, bluezDevice+".Connect", 0)
		if call.Err != nil {
			return nil, fmt.Errorf("connect %s: %w", device, mapDBusError(call.Err))
		}
		if objects, err = managedObjects(ctx, conn); err != nil {
			return nil, err
		}
	}

	path, ok := findPlayer(objects, device)
	if !ok {
		return nil, fmt.Errorf("%w under %s", ErrPlayerNotFound, device)
	}
	return &dbusPlayer{conn: conn, path: path}, nil
}

func managedObjects(ctx context.Context, conn *dbus.Conn) (map[dbus.ObjectPath]map[string]map[string]dbus.Variant, error) {
	var objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	err := conn.Object(bluezService, "/").
		CallWithContext(ctx, dbusObjectManager+".GetManagedObjects", 0).
		Store(&objects)
	if err != nil {
		return nil, fmt.Errorf("list BlueZ objects: %w", mapDBusError(err))
	}
	return objects, nil
}

// findPlayer returns the lowest-numbered player below device.
func findPlayer(objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant, device dbus.ObjectPath) (dbus.ObjectPath, bool) {
	prefix := string(device) + "/"
	var players []string
	for path, ifaces := range objects {
		if _, ok := ifaces[bluezMediaPlayer]; ok && strings.HasPrefix(string(path), prefix) {
			players = append(players, string(path))
		}
	}
	if len(players) == 0 {
		return "", false
	}
	sort.Strings(players)
	return dbus.ObjectPath(players[0]), true
}

type dbusPlayer struct {
	conn *dbus.Conn
	path dbus.ObjectPath
}

func (p *dbusPlayer) Path() string { return string(p.path) }

func (p *dbusPlayer) Next(ctx context.Context) error {
	return p.call(ctx, "Next")
}

func (p *dbusPlayer) Previous(ctx context.Context) error {
	return p.call(ctx, "Previous")
}

func (p *dbusPlayer) call(ctx context.Context, method string) error {
	call := p.conn.Object(bluezService, p.path).CallWithContext(ctx, bluezMediaPlayer+"."+method, 0)
	if call.Err != nil {
		return fmt.Errorf("%s on %s: %w", method, p.path, mapDBusError(call.Err))
	}
	return nil
}

func (p *dbusPlayer) Track(ctx context.Context) (map[string]string, error) {
	var v dbus.Variant
	err := p.conn.Object(bluezService, p.path).
		CallWithContext(ctx, dbusProperties+".Get", 0, bluezMediaPlayer, "Track").
		Store(&v)
	if err != nil {
		return nil, fmt.Errorf("read Track of %s: %w", p.path, mapDBusError(err))
	}
	return trackStrings(v.Value()), nil
}

// trackStrings keeps the string-valued entries of a Track dictionary.
func trackStrings(v interface{}) map[string]string {
	out := make(map[string]string)
	switch m := v.(type) {
	case map[string]dbus.Variant:
		for k, val := range m {
			if s, ok := val.Value().(string); ok {
				out[k] = s
			}
		}
	case map[string]string:
		for k, s := range m {
			out[k] = s
		}
	}
	return out
}

// mapDBusError turns the errors BlueZ returns for a vanished object into
// ErrStaleSession.
func mapDBusError(err error) error {
	if err == nil {
		return nil
	}
	name := dbusErrorName(err)
	switch name {
	case errUnknownObject, errUnknownMethod, errServiceUnknown, errBluezNotConn, errBluezDoesNotExst:
		return fmt.Errorf("%w: %s", ErrStaleSession, err.Error())
	}
	return err
}

func dbusErrorName(err error) string {
	var value dbus.Error
	if errors.As(err, &value) {
		return value.Name
	}
	var ptr *dbus.Error
	if errors.As(err, &ptr) && ptr != nil {
		return ptr.Name
	}
	return ""
}
