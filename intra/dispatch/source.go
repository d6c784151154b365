// Copyright (c) 2025 RethinkDNS and its authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package dispatch

import (
	"context"

	"github.com/godbus/dbus/v5"
	"github.com/russdill/networkd-connectivity/intra/bus"
	"github.com/russdill/networkd-connectivity/intra/probe"
)

type busSource struct {
	conn *dbus.Conn
}

var _ Source = (*busSource)(nil)

// NewBusSource finds publishers on conn.
func NewBusSource(conn *dbus.Conn) Source {
	return &busSource{conn: conn}
}

func (b *busSource) Publishers(ctx context.Context) ([]string, error) {
	return bus.Publishers(ctx, b.conn)
}

func (b *busSource) NameOwnerChanges() (*bus.Stream[bus.NameOwnerChange], error) {
	return bus.NameOwnerChanges(b.conn)
}

func (b *busSource) Connectivity(ctx context.Context, ifname string) (probe.State, error) {
	return bus.Connectivity(ctx, b.conn, ifname)
}

func (b *busSource) ConnectivityChanges(ifname string) (*bus.Stream[probe.State], error) {
	return bus.ConnectivityChanges(b.conn, ifname)
}
