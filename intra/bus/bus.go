// Copyright (c) 2025 RethinkDNS and its authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package bus publishes per-interface connectivity on the system bus,
// and reads it (and link state from networkd and resolved) back.
package bus

import (
	"context"
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	propertiesInterface = "org.freedesktop.DBus.Properties"
	propertiesChanged   = propertiesInterface + ".PropertiesChanged"
	propertiesGet       = propertiesInterface + ".Get"
)

var (
	ErrNameTaken  = errors.New("bus: name already owned")
	errBadVariant = errors.New("bus: unexpected property type")
)

// Connect opens a private connection to the system bus.
func Connect() (*dbus.Conn, error) {
	return dbus.ConnectSystemBus()
}

// caller is the part of *dbus.Conn that makes method calls.
type caller interface {
	Object(dest string, path dbus.ObjectPath) dbus.BusObject
}

var _ caller = (*dbus.Conn)(nil)

const errNameHasNoOwner = "org.freedesktop.DBus.Error.NameHasNoOwner"

// nameOwner returns the unique name owning name; empty if nobody does.
func nameOwner(conn *dbus.Conn, name string) (string, error) {
	var owner string
	err := conn.BusObject().Call(dbusName+".GetNameOwner", 0, name).Store(&owner)
	var derr dbus.Error
	if errors.As(err, &derr) && derr.Name == errNameHasNoOwner {
		return "", nil
	} else if err != nil {
		return "", fmt.Errorf("bus: owner of %s: %w", name, err)
	}
	return owner, nil
}

// get reads a property without activating dest.
func get(ctx context.Context, conn caller, dest string, path dbus.ObjectPath, iface, name string) (dbus.Variant, error) {
	var v dbus.Variant
	err := conn.Object(dest, path).
		CallWithContext(ctx, propertiesGet, dbus.FlagNoAutoStart, iface, name).
		Store(&v)
	if err != nil {
		return v, fmt.Errorf("bus: get %s %s.%s: %w", path, iface, name, err)
	}
	return v, nil
}
