// Copyright (c) 2025 RethinkDNS and its authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package bus

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/godbus/dbus/v5"
	"github.com/russdill/networkd-connectivity/intra/log"
)

const (
	resolvedName    = "org.freedesktop.resolve1"
	resolvedPath    = dbus.ObjectPath("/org/freedesktop/resolve1")
	resolvedManager = "org.freedesktop.resolve1.Manager"
	resolvedLink    = "org.freedesktop.resolve1.Link"

	// address families as sent by resolved (linux values)
	afInet  = 2
	afInet6 = 10
)

// linkDNS is an element of resolve1.Link.DNS, a(iay).
type linkDNS struct {
	Family  int32
	Address []byte
}

// LinkDNS returns the per-link nameservers resolved knows for ifindex;
// ipv6 link-local servers are zoned to ifname.
func LinkDNS(ctx context.Context, conn caller, ifindex int32, ifname string) ([]string, error) {
	var path dbus.ObjectPath
	err := conn.Object(resolvedName, resolvedPath).
		CallWithContext(ctx, resolvedManager+".GetLink", dbus.FlagNoAutoStart, ifindex).
		Store(&path)
	if err != nil {
		return nil, fmt.Errorf("bus: resolved link %d: %w", ifindex, err)
	}

	v, err := get(ctx, conn, resolvedName, path, resolvedLink, "DNS")
	if err != nil {
		return nil, err
	}
	var entries []linkDNS
	if err := dbus.Store([]any{v.Value()}, &entries); err != nil {
		return nil, fmt.Errorf("%w: DNS is %s: %w", errBadVariant, v.Signature(), err)
	}
	return nameservers(entries, ifname), nil
}

func nameservers(entries []linkDNS, ifname string) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		ip, ok := netip.AddrFromSlice(e.Address)
		switch {
		case !ok:
		case e.Family == afInet && ip.Is4():
			out = append(out, ip.String())
			continue
		case e.Family == afInet6 && ip.Is6():
			if ip.IsLinkLocalUnicast() && len(ifname) > 0 {
				ip = ip.WithZone(ifname)
			}
			out = append(out, ip.String())
			continue
		}
		log.D("bus: resolved: skip dns family %d addr %v", e.Family, e.Address)
	}
	return out
}
