// Copyright (c) 2025 RethinkDNS and its authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package dns53

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"sync/atomic"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testHost = "probe.example."

func serve(t *testing.T, queries *atomic.Int32) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	started := make(chan struct{})
	srv := &dns.Server{
		PacketConn:        pc,
		NotifyStartedFunc: func() { close(started) },
		Handler: dns.HandlerFunc(func(w dns.ResponseWriter, req *dns.Msg) {
			if queries != nil {
				queries.Add(1)
			}
			m := new(dns.Msg)
			m.SetReply(req)
			q := req.Question[0]
			if q.Name != testHost {
				m.Rcode = dns.RcodeNameError
			} else if q.Qtype == dns.TypeA {
				rr, _ := dns.NewRR(testHost + " 60 IN A 192.0.2.7")
				m.Answer = append(m.Answer, rr)
			} else if q.Qtype == dns.TypeAAAA {
				rr, _ := dns.NewRR(testHost + " 60 IN AAAA 2001:db8::7")
				m.Answer = append(m.Answer, rr)
			}
			_ = w.WriteMsg(m)
		}),
	}
	go func() { _ = srv.ActivateAndServe() }()
	<-started
	t.Cleanup(func() { _ = srv.Shutdown() })
	return pc.LocalAddr().String()
}

func TestLookupBothFamilies(t *testing.T) {
	addr := serve(t, nil)
	r, err := NewResolver([]string{addr}, &net.Dialer{}, time.Second)
	require.NoError(t, err)

	ips, err := r.LookupNetIP(context.Background(), "probe.example")
	require.NoError(t, err)
	assert.ElementsMatch(t, []netip.Addr{
		netip.MustParseAddr("192.0.2.7"),
		netip.MustParseAddr("2001:db8::7"),
	}, ips)
}

func TestLookupLiteral(t *testing.T) {
	var n atomic.Int32
	addr := serve(t, &n)
	r, err := NewResolver([]string{addr}, &net.Dialer{}, time.Second)
	require.NoError(t, err)

	ips, err := r.LookupNetIP(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, []netip.Addr{netip.MustParseAddr("10.0.0.1")}, ips)
	assert.Zero(t, n.Load())
}

func TestLookupNxDomain(t *testing.T) {
	addr := serve(t, nil)
	r, err := NewResolver([]string{addr}, &net.Dialer{}, time.Second)
	require.NoError(t, err)

	_, err = r.LookupNetIP(context.Background(), "nope.example")
	assert.True(t, errors.Is(err, errNxDomain), "%v", err)
}

func TestLookupFallsThroughDeadServer(t *testing.T) {
	// a bound but silent socket: queries to it time out
	dead, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer dead.Close()

	addr := serve(t, nil)
	r, err := NewResolver([]string{dead.LocalAddr().String(), addr}, &net.Dialer{}, 200*time.Millisecond)
	require.NoError(t, err)

	ips, err := r.LookupNetIP(context.Background(), testHost)
	require.NoError(t, err)
	assert.Len(t, ips, 2)
}

func TestNewResolverServers(t *testing.T) {
	_, err := NewResolver([]string{"", "not-an-ip"}, &net.Dialer{}, 0)
	assert.True(t, errors.Is(err, ErrNoServers))

	r, err := NewResolver([]string{"1.1.1.1", "[2606:4700::1111]:5353", "fe80::1%wlan0", "junk"}, &net.Dialer{}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"1.1.1.1:53", "[2606:4700::1111]:5353", "[fe80::1%wlan0]:53"}, r.Servers())
}

func TestDialContextResolves(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		if c, err := ln.Accept(); err == nil {
			c.Close()
		}
	}()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	started := make(chan struct{})
	srv := &dns.Server{
		PacketConn:        pc,
		NotifyStartedFunc: func() { close(started) },
		Handler: dns.HandlerFunc(func(w dns.ResponseWriter, req *dns.Msg) {
			m := new(dns.Msg)
			m.SetReply(req)
			if req.Question[0].Qtype == dns.TypeA {
				rr, _ := dns.NewRR(req.Question[0].Name + " 60 IN A 127.0.0.1")
				m.Answer = append(m.Answer, rr)
			}
			_ = w.WriteMsg(m)
		}),
	}
	go func() { _ = srv.ActivateAndServe() }()
	<-started
	defer srv.Shutdown()

	r, err := NewResolver([]string{pc.LocalAddr().String()}, &net.Dialer{}, time.Second)
	require.NoError(t, err)

	_, port, _ := net.SplitHostPort(ln.Addr().String())
	c, err := r.DialContext(context.Background(), "tcp", net.JoinHostPort("local.example", port))
	require.NoError(t, err)
	c.Close()

	_, err = r.DialContext(context.Background(), "tcp6", net.JoinHostPort("local.example", port))
	assert.True(t, errors.Is(err, errNoAddrs), "%v", err)
}
