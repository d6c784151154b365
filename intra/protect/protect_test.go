// Copyright (c) 2025 RethinkDNS and its authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package protect

import (
	"errors"
	"net"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const missingIfname = "nxconn0"

func TestCheckMissingDevice(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("device binding is linux-only")
	}
	err := NewBinder(missingIfname).Check()
	require.Error(t, err)
	// unprivileged kernels < 5.7 refuse before looking the device up
	assert.True(t, errors.Is(err, ErrNoDevice) || errors.Is(err, ErrPermission), "%v", err)
}

func TestDialNeverFallsBackToDefaultRoute(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("device binding is linux-only")
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	d := NewBinder(missingIfname).Dialer()
	d.Timeout = 2 * time.Second
	c, err := d.Dial("tcp4", ln.Addr().String())
	if c != nil {
		c.Close()
	}
	assert.Error(t, err)
}

func TestInterface(t *testing.T) {
	b := NewBinder("wlan0")
	assert.Equal(t, "wlan0", b.Interface())
	assert.NotNil(t, b.Dialer().Resolver)
	assert.NotNil(t, b.ListenConfig().Control)
}
