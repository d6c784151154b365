// Copyright (c) 2025 RethinkDNS and its authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package bus

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/godbus/dbus/v5"
)

const (
	// Root is the bus name prefix of every publisher.
	Root = "io.github.russdill.networkd_connectivity"
	// RootPath is the object path prefix of every publisher.
	RootPath = "/io/github/russdill/networkd_connectivity"
	// DeviceInterface carries the Connectivity property.
	DeviceInterface = "io.github.russdill.networkd_connectivity1.Device"
	// ConnectivityProperty is a u holding a probe.State.
	ConnectivityProperty = "Connectivity"
)

var publisherName = regexp.MustCompile(`^` + regexp.QuoteMeta(Root) + `\.([A-Za-z0-9_]+)$`)

// NameFor returns the bus name of the publisher for ifname.
func NameFor(ifname string) string {
	return Root + "." + escape(ifname)
}

// PathFor returns the object path of the publisher for ifname.
func PathFor(ifname string) dbus.ObjectPath {
	return dbus.ObjectPath(RootPath + "/" + escape(ifname))
}

// IfaceFromName recovers the interface name from a publisher's bus name.
func IfaceFromName(name string) (string, bool) {
	m := publisherName.FindStringSubmatch(name)
	if m == nil {
		return "", false
	}
	return unescape(m[1])
}

// IfaceFromPath recovers the interface name from a publisher's path.
func IfaceFromPath(p dbus.ObjectPath) (string, bool) {
	tok, ok := strings.CutPrefix(string(p), RootPath+"/")
	if !ok || strings.Contains(tok, "/") {
		return "", false
	}
	return unescape(tok)
}

// escape encodes s like sd-bus labels: every byte outside [A-Za-z0-9],
// and a leading digit, becomes _xx (lowercase hex). The empty string
// is "_".
func escape(s string) string {
	if len(s) <= 0 {
		return "_"
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isalpha(c) || (i > 0 && isdigit(c)) {
			b.WriteByte(c)
		} else {
			b.WriteByte('_')
			b.WriteByte(hexdigits[c>>4])
			b.WriteByte(hexdigits[c&0xf])
		}
	}
	return b.String()
}

// unescape reverses escape; it rejects tokens escape would not produce.
func unescape(tok string) (string, bool) {
	if tok == "_" {
		return "", true
	}
	var b strings.Builder
	for i := 0; i < len(tok); i++ {
		c := tok[i]
		if c != '_' {
			if !isalpha(c) && !isdigit(c) {
				return "", false
			}
			b.WriteByte(c)
			continue
		}
		if i+2 >= len(tok) {
			return "", false
		}
		n, err := strconv.ParseUint(tok[i+1:i+3], 16, 8)
		if err != nil {
			return "", false
		}
		b.WriteByte(byte(n))
		i += 2
	}
	s := b.String()
	if escape(s) != tok {
		return "", false
	}
	return s, true
}

const hexdigits = "0123456789abcdef"

func isalpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isdigit(c byte) bool {
	return c >= '0' && c <= '9'
}
