// Copyright (c) 2025 RethinkDNS and its authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package bus

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/russdill/networkd-connectivity/intra/log"
)

const (
	networkdName    = "org.freedesktop.network1"
	networkdPath    = dbus.ObjectPath("/org/freedesktop/network1")
	networkdManager = "org.freedesktop.network1.Manager"
	networkdLink    = "org.freedesktop.network1.Link"

	operationalState = "OperationalState"
)

// Routable reports whether a networkd operational state means the link
// has a routable address.
func Routable(opstate string) bool {
	return opstate == "routable"
}

// Link is a networkd link.
type Link struct {
	conn  *dbus.Conn
	Name  string
	Index int32
	Path  dbus.ObjectPath
}

// LinkByName asks networkd for the link named ifname.
func LinkByName(ctx context.Context, conn *dbus.Conn, ifname string) (*Link, error) {
	l := &Link{conn: conn, Name: ifname}
	err := conn.Object(networkdName, networkdPath).
		CallWithContext(ctx, networkdManager+".GetLinkByName", dbus.FlagNoAutoStart, ifname).
		Store(&l.Index, &l.Path)
	if err != nil {
		return nil, fmt.Errorf("bus: networkd link %s: %w", ifname, err)
	}
	log.D("bus: networkd: %s is #%d at %s", ifname, l.Index, l.Path)
	return l, nil
}

// OperationalState reads the link's current operational state.
func (l *Link) OperationalState(ctx context.Context) (string, error) {
	v, err := get(ctx, l.conn, networkdName, l.Path, networkdLink, operationalState)
	if err != nil {
		return "", err
	}
	s, ok := v.Value().(string)
	if !ok {
		return "", fmt.Errorf("%w: %s is %s", errBadVariant, operationalState, v.Signature())
	}
	return s, nil
}

// Changes streams the link's operational state as networkd reports it.
func (l *Link) Changes() (*Stream[string], error) {
	resolve := func() (string, error) {
		return nameOwner(l.conn, networkdName)
	}
	return watchOwned("link."+l.Name, l.conn, networkdName, resolve, propertiesChangedMatch(l.Path), func(s *dbus.Signal) (string, bool) {
		props, _, ok := changed(s, l.Path, networkdLink)
		if !ok {
			return "", false
		}
		v, ok := props[operationalState]
		if !ok {
			return "", false
		}
		opstate, ok := v.Value().(string)
		return opstate, ok
	})
}

// Nameservers returns the link's dns servers as known to resolved.
func (l *Link) Nameservers(ctx context.Context) ([]string, error) {
	return LinkDNS(ctx, l.conn, l.Index, l.Name)
}
