// Copyright (c) 2025 RethinkDNS and its authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package bus

import (
	"context"
	"fmt"
	"sort"

	"github.com/godbus/dbus/v5"
	"github.com/russdill/networkd-connectivity/intra/probe"
)

const (
	dbusName          = "org.freedesktop.DBus"
	nameOwnerChanged  = dbusName + ".NameOwnerChanged"
	nameOwnerChangedM = "NameOwnerChanged"
)

// Publishers lists the interfaces whose publishers currently own a name
// on the bus, sorted.
func Publishers(ctx context.Context, conn *dbus.Conn) ([]string, error) {
	var names []string
	if err := conn.BusObject().CallWithContext(ctx, dbusName+".ListNames", 0).Store(&names); err != nil {
		return nil, fmt.Errorf("bus: list names: %w", err)
	}
	var ifnames []string
	for _, n := range names {
		if ifname, ok := IfaceFromName(n); ok {
			ifnames = append(ifnames, ifname)
		}
	}
	sort.Strings(ifnames)
	return ifnames, nil
}

// NameOwnerChange is a publisher's bus name changing hands. An empty
// New means the publisher is gone; an empty Old that it just appeared.
type NameOwnerChange struct {
	Iface string
	Name  string
	Old   string
	New   string
}

// NameOwnerChanges streams ownership changes of publisher names.
func NameOwnerChanges(conn *dbus.Conn) (*Stream[NameOwnerChange], error) {
	match := []dbus.MatchOption{
		dbus.WithMatchSender(dbusName),
		dbus.WithMatchInterface(dbusName),
		dbus.WithMatchMember(nameOwnerChangedM),
		dbus.WithMatchArg0Namespace(Root),
	}
	return watch("nameowner", conn, [][]dbus.MatchOption{match}, nil, nameOwnerChangeOf)
}

func nameOwnerChangeOf(s *dbus.Signal) (NameOwnerChange, bool) {
	var c NameOwnerChange
	if s == nil || s.Sender != dbusName || s.Name != nameOwnerChanged || len(s.Body) != 3 {
		return c, false
	}
	var ok bool
	if c.Name, ok = s.Body[0].(string); !ok {
		return c, false
	}
	if c.Iface, ok = IfaceFromName(c.Name); !ok {
		return c, false
	}
	c.Old, _ = s.Body[1].(string)
	c.New, _ = s.Body[2].(string)
	return c, true
}

// Connectivity reads the state published for ifname.
func Connectivity(ctx context.Context, conn caller, ifname string) (probe.State, error) {
	v, err := get(ctx, conn, NameFor(ifname), PathFor(ifname), DeviceInterface, ConnectivityProperty)
	if err != nil {
		return probe.Unknown, err
	}
	u, ok := v.Value().(uint32)
	if !ok {
		return probe.Unknown, fmt.Errorf("%w: %s is %s", errBadVariant, ConnectivityProperty, v.Signature())
	}
	return probe.State(u), nil
}

// ConnectivityChanges streams the states published for ifname by the
// owner of its publisher name; signals from anyone else are dropped.
func ConnectivityChanges(conn *dbus.Conn, ifname string) (*Stream[probe.State], error) {
	name := NameFor(ifname)
	path := PathFor(ifname)
	resolve := func() (string, error) {
		return nameOwner(conn, name)
	}
	return watchOwned("conn."+ifname, conn, name, resolve, propertiesChangedMatch(path), func(s *dbus.Signal) (probe.State, bool) {
		return connectivityOf(s, path)
	})
}

func connectivityOf(s *dbus.Signal, path dbus.ObjectPath) (probe.State, bool) {
	props, _, ok := changed(s, path, DeviceInterface)
	if !ok {
		return probe.Unknown, false
	}
	v, ok := props[ConnectivityProperty]
	if !ok {
		return probe.Unknown, false
	}
	u, ok := v.Value().(uint32)
	return probe.State(u), ok
}
