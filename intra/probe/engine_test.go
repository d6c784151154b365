// Copyright (c) 2025 RethinkDNS and its authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package probe

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/russdill/networkd-connectivity/intra/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/proxy"
)

// loopback dials without binding to any device.
type loopback struct{}

func (loopback) Interface() string { return "lo" }

func (loopback) ContextDialer() proxy.ContextDialer { return &net.Dialer{} }

func target(t *testing.T, s string) settings.Target {
	t.Helper()
	tg, err := settings.ParseTarget(s)
	require.NoError(t, err)
	return tg
}

func page(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, body)
	}
}

func assess(t *testing.T, to time.Duration, tgs ...settings.Target) State {
	t.Helper()
	e := NewEngine(loopback{}, to)
	return e.Assess(context.Background(), tgs, nil)
}

func TestSubstringMatchIsFull(t *testing.T) {
	srv := httptest.NewServer(page("<html><h1>Example Domain</h1></html>"))
	defer srv.Close()

	got := assess(t, time.Second, target(t, srv.URL+"/=...Example%20Domain..."))
	assert.Equal(t, Full, got)
}

func TestMismatchIsPortal(t *testing.T) {
	srv := httptest.NewServer(page("<html>Welcome to hotel wifi</html>"))
	defer srv.Close()

	got := assess(t, time.Second, target(t, srv.URL+"/=...Example%20Domain..."))
	assert.Equal(t, Portal, got)
}

func TestEmptyExpectation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	assert.Equal(t, Full, assess(t, time.Second, target(t, srv.URL+"/generate_204")))
}

func TestLargeBodies(t *testing.T) {
	fits := strings.Repeat("x", maxBody-2) + "OK"
	srv := httptest.NewServer(page(fits))
	defer srv.Close()
	assert.Equal(t, Full, assess(t, 5*time.Second, target(t, srv.URL+"/=...OK")))

	// cannot tell a match from a portal once the body is cut short
	over := strings.Repeat("x", maxBody) + "OK"
	big := httptest.NewServer(page(over))
	defer big.Close()
	assert.Equal(t, Limited, assess(t, 5*time.Second, target(t, big.URL+"/=...OK")))
}

func TestRedirectIsPortal(t *testing.T) {
	for _, code := range []int{http.StatusFound, http.StatusTemporaryRedirect, http.StatusNotModified} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Location", "http://portal.example/login")
			w.WriteHeader(code)
			_, _ = io.WriteString(w, "Example Domain")
		}))
		got := assess(t, time.Second, target(t, srv.URL+"/=...Example%20Domain..."))
		srv.Close()
		assert.Equal(t, Portal, got, "status %d", code)
	}
}

func TestServerErrorIsLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	assert.Equal(t, Limited, assess(t, time.Second, target(t, srv.URL+"/")))
}

func TestRefusedIsLimited(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	assert.Equal(t, Limited, assess(t, time.Second, target(t, "http://"+addr+"/")))
}

func TestTimeoutIsLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	start := time.Now()
	got := assess(t, 100*time.Millisecond, target(t, srv.URL+"/"))
	assert.Equal(t, Limited, got)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestUntrustedCertIsPortal(t *testing.T) {
	srv := httptest.NewTLSServer(page("OK"))
	defer srv.Close()

	assert.Equal(t, Portal, assess(t, time.Second, target(t, srv.URL+"/=OK")))
}

func TestTrustedCertIsFull(t *testing.T) {
	srv := httptest.NewTLSServer(page("OK"))
	defer srv.Close()

	e := NewEngine(loopback{}, time.Second)
	e.tlsc = srv.Client().Transport.(*http.Transport).TLSClientConfig
	got := e.Assess(context.Background(), []settings.Target{target(t, srv.URL+"/=OK")}, nil)
	assert.Equal(t, Full, got)
}

func TestRoundReducesAcrossTargets(t *testing.T) {
	ok := httptest.NewServer(page("NetworkManager is online"))
	defer ok.Close()
	portal := httptest.NewServer(page("login"))
	defer portal.Close()

	got := assess(t, time.Second,
		target(t, portal.URL+"/=NetworkManager%20is%20online"),
		target(t, "http://127.0.0.1:1/"),
		target(t, ok.URL+"/=NetworkManager%20is%20online"),
	)
	assert.Equal(t, Full, got)
}

func TestNoTargetsIsUnknown(t *testing.T) {
	assert.Equal(t, Unknown, assess(t, time.Second))
}

func TestBadNameserversIsUnknown(t *testing.T) {
	srv := httptest.NewServer(page("OK"))
	defer srv.Close()

	e := NewEngine(loopback{}, time.Second)
	got := e.Assess(context.Background(), []settings.Target{target(t, srv.URL+"/=OK")}, []string{"junk"})
	assert.Equal(t, Unknown, got)
}

func TestResolvesOnLinkNameservers(t *testing.T) {
	srv := httptest.NewServer(page("OK"))
	defer srv.Close()
	_, port, _ := net.SplitHostPort(srv.Listener.Addr().String())

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	started := make(chan struct{})
	ns := &dns.Server{
		PacketConn:        pc,
		NotifyStartedFunc: func() { close(started) },
		Handler: dns.HandlerFunc(func(w dns.ResponseWriter, req *dns.Msg) {
			m := new(dns.Msg)
			m.SetReply(req)
			q := req.Question[0]
			if q.Name == "probe.test." && q.Qtype == dns.TypeA {
				rr, _ := dns.NewRR("probe.test. 60 IN A 127.0.0.1")
				m.Answer = append(m.Answer, rr)
			} else if q.Name != "probe.test." {
				m.Rcode = dns.RcodeNameError
			}
			_ = w.WriteMsg(m)
		}),
	}
	go func() { _ = ns.ActivateAndServe() }()
	<-started
	defer ns.Shutdown()

	e := NewEngine(loopback{}, time.Second)
	nameservers := []string{pc.LocalAddr().String()}

	got := e.Assess(context.Background(), []settings.Target{target(t, "http://probe.test:"+port+"/=OK")}, nameservers)
	assert.Equal(t, Full, got)

	got = e.Assess(context.Background(), []settings.Target{target(t, "http://missing.test:"+port+"/=OK")}, nameservers)
	assert.Equal(t, Limited, got)
}
