// Copyright (c) 2020 RethinkDNS and its authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.
//
// This file incorporates work covered by the following copyright and
// permission notice:
//
//     Copyright 2019 The Outline Authors
//
//     Licensed under the Apache License, Version 2.0 (the "License");
//     you may not use this file except in compliance with the License.
//     You may obtain a copy of the License at
//
//          http://www.apache.org/licenses/LICENSE-2.0
//
//     Unless required by applicable law or agreed to in writing, software
//     distributed under the License is distributed on an "AS IS" BASIS,
//     WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//     See the License for the specific language governing permissions and
//     limitations under the License.

// Package protect pins sockets to a single network interface so that
// probes never leak onto the default route.
package protect

import (
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/russdill/networkd-connectivity/intra/log"
	"golang.org/x/net/proxy"
)

var (
	// ErrPermission is returned when the process lacks the privilege
	// (root or CAP_NET_RAW) to bind sockets to a device.
	ErrPermission = errors.New("protect: not permitted to bind to device")
	// ErrNoDevice is returned when the interface does not exist (yet).
	ErrNoDevice = errors.New("protect: no such device")
	// ErrUnsupported is returned on platforms without device binding.
	ErrUnsupported = errors.New("protect: device binding unsupported")
)

// Binder binds every socket it controls to one interface.
type Binder struct {
	ifname string
}

// NewBinder returns a Binder for the interface named ifname.
func NewBinder(ifname string) *Binder {
	return &Binder{ifname: ifname}
}

// Interface returns the name of the interface sockets are bound to.
func (b *Binder) Interface() string {
	return b.ifname
}

// Check binds a throwaway socket to the interface. It returns an error
// wrapping ErrPermission, ErrNoDevice, or ErrUnsupported as appropriate.
func (b *Binder) Check() error {
	return classify(b.ifname, checkBind(b.ifname))
}

// Control binds the socket in c to the interface; it has the signature
// of net.Dialer.Control and net.ListenConfig.Control. A failure to bind
// fails the dial; there is no fallback to unbound sockets.
func (b *Binder) Control(network, address string, c syscall.RawConn) error {
	if strings.HasPrefix(network, "unix") {
		return nil
	}
	var serr error
	if err := c.Control(func(fd uintptr) {
		serr = bindToDevice(int(fd), b.ifname)
	}); err != nil {
		return err
	}
	if serr == nil {
		return nil
	}
	err := classify(b.ifname, serr)
	if errors.Is(err, ErrNoDevice) {
		log.D("protect: %s %s to %s: %v (counting as down)", b.ifname, network, address, err)
	} else {
		log.E("protect: fail to bind %s to %s: %v", network, b.ifname, err)
	}
	return err
}

// Dialer creates a dialer whose sockets, including those the Go resolver
// opens to look up names, are bound to the interface.
func (b *Binder) Dialer() *net.Dialer {
	raw := &net.Dialer{Control: b.Control}
	return &net.Dialer{
		Control: b.Control,
		Resolver: &net.Resolver{
			PreferGo: true,
			Dial:     raw.DialContext,
		},
	}
}

// ContextDialer is Dialer as a proxy.ContextDialer.
func (b *Binder) ContextDialer() proxy.ContextDialer {
	return b.Dialer()
}

// ListenConfig creates a listener config that binds to the interface.
func (b *Binder) ListenConfig() *net.ListenConfig {
	return &net.ListenConfig{
		Control: b.Control,
	}
}
