// Copyright (c) 2025 RethinkDNS and its authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package probe

import "strings"

// State is the reachability of one interface, ordered by increasing
// confidence that the Internet is reachable through it.
type State uint32

const (
	Unknown State = iota
	None
	Portal
	Limited
	Full
)

var stateNames = [...]string{
	Unknown: "unknown",
	None:    "none",
	Portal:  "portal",
	Limited: "limited",
	Full:    "full",
}

// States lists all states in ascending order.
func States() []State {
	return []State{Unknown, None, Portal, Limited, Full}
}

func (s State) String() string {
	if s.Valid() {
		return stateNames[s]
	}
	return stateNames[Unknown]
}

// Valid reports whether s is one of the five known states.
func (s State) Valid() bool {
	return s <= Full
}

// Parse returns the state named name.
func Parse(name string) (State, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range stateNames {
		if n == name {
			return State(i), true
		}
	}
	return Unknown, false
}

// Reduce folds the outcomes of one probe round into a single state:
// full beats portal beats limited; anything else (or nothing) is unknown.
// The result does not depend on the order of outcomes.
func Reduce(outcomes ...State) State {
	var full, portal, limited bool
	for _, o := range outcomes {
		switch o {
		case Full:
			full = true
		case Portal:
			portal = true
		case Limited:
			limited = true
		}
	}
	switch {
	case full:
		return Full
	case portal:
		return Portal
	case limited:
		return Limited
	default:
		return Unknown
	}
}
