// Copyright (c) 2025 RethinkDNS and its authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package bus

import (
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"
	"github.com/russdill/networkd-connectivity/intra/log"
	"github.com/russdill/networkd-connectivity/intra/probe"
)

// emitter stores a property and emits PropertiesChanged; *prop.Properties.
type emitter interface {
	SetMust(iface, property string, v any)
}

var _ emitter = (*prop.Properties)(nil)

// Publisher exposes the state of one interface as the read-only
// Connectivity property of PathFor(ifname).
type Publisher struct {
	mu     sync.Mutex
	ifname string
	state  probe.State
	props  emitter // nil until exported
}

// NewPublisher returns an unexported publisher holding probe.Unknown.
func NewPublisher(ifname string) *Publisher {
	return &Publisher{ifname: ifname, state: probe.Unknown}
}

// Export serves the publisher's object on conn and takes its bus name.
// It fails with ErrNameTaken if another process owns the name.
func (p *Publisher) Export(conn *dbus.Conn) error {
	path := PathFor(p.ifname)
	name := NameFor(p.ifname)

	p.mu.Lock()
	defer p.mu.Unlock()

	props, err := prop.Export(conn, path, prop.Map{
		DeviceInterface: {
			ConnectivityProperty: {
				Value:    uint32(p.state),
				Writable: false,
				Emit:     prop.EmitTrue,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("bus: export %s: %w", path, err)
	}

	node := &introspect.Node{
		Name: string(path),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			prop.IntrospectData,
			{
				Name:       DeviceInterface,
				Properties: props.Introspection(DeviceInterface),
			},
		},
	}
	if err := conn.Export(introspect.NewIntrospectable(node), path, introspect.IntrospectData.Name); err != nil {
		return fmt.Errorf("bus: export introspection %s: %w", path, err)
	}

	reply, err := conn.RequestName(name, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("bus: request %s: %w", name, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("%w: %s (%d)", ErrNameTaken, name, reply)
	}

	p.props = props
	log.I("bus: %s: serving %s at %s", p.ifname, name, path)
	return nil
}

// Set stores s and emits a change notification, unless s equals the
// current state. It reports whether the state changed.
func (p *Publisher) Set(s probe.State) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s == p.state {
		return false
	}
	prev := p.state
	p.state = s
	if p.props != nil {
		p.props.SetMust(DeviceInterface, ConnectivityProperty, uint32(s))
	}
	log.V("bus: %s: %s -> %s", p.ifname, prev, s)
	return true
}

// State returns the published state.
func (p *Publisher) State() probe.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}
