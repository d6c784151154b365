// Copyright (c) 2025 RethinkDNS and its authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package notify tells the service manager about readiness and status.
package notify

import (
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/russdill/networkd-connectivity/intra/log"
)

// Notifier is fire-and-forget: failures are only logged.
type Notifier interface {
	Ready()
	Status(status string)
}

type systemd struct{}

// Systemd notifies over $NOTIFY_SOCKET; a no-op when it is unset.
var Systemd Notifier = systemd{}

// Discard drops all notifications.
var Discard Notifier = discard{}

func (systemd) Ready() {
	send(daemon.SdNotifyReady)
}

func (systemd) Status(status string) {
	send("STATUS=" + status)
}

func send(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.W("notify: %s: %v", state, err)
	} else if !sent {
		log.V("notify: %s: no notify socket", state)
	}
}

type discard struct{}

func (discard) Ready()        {}
func (discard) Status(string) {}
