// Copyright (c) 2022 RethinkDNS and its authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package dns53 resolves names over plain DNS against a fixed set of
// nameservers, dialing them through a caller-supplied (interface-bound)
// dialer.
package dns53

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"
	"github.com/russdill/networkd-connectivity/intra/core"
	"github.com/russdill/networkd-connectivity/intra/log"
	"golang.org/x/net/proxy"
)

const (
	Port    = "53"
	timeout = 5 * time.Second
	// edns0 payload size; ref: dnsflagday.net/2020
	udpSize = 1232
)

var (
	ErrNoServers   = errors.New("dns53: no usable nameservers")
	errNoAddrs     = errors.New("dns53: no address records")
	errNxDomain    = errors.New("dns53: nxdomain")
	errNoNet       = errors.New("dns53: no dialer")
	errQueryFailed = errors.New("dns53: query failed")
)

// Resolver looks up A and AAAA records on its nameservers, in order,
// until one of them answers.
type Resolver struct {
	servers  []string // ip:port
	dialer   proxy.ContextDialer
	timeout  time.Duration
	inflight *core.Barrier[[]netip.Addr]
}

// NewResolver returns a resolver for servers, which are ip or ip:port
// literals; ipv6 link-local addrs may carry a %zone. Servers that do not
// parse are skipped. It errs with ErrNoServers when none is left.
func NewResolver(servers []string, d proxy.ContextDialer, to time.Duration) (*Resolver, error) {
	if d == nil {
		return nil, errNoNet
	}
	if to <= 0 {
		to = timeout
	}
	var ok []string
	for _, s := range servers {
		if ipport, err := hostport(s); err != nil {
			log.W("dns53: skip nameserver %q: %v", s, err)
		} else {
			ok = append(ok, ipport)
		}
	}
	if len(ok) <= 0 {
		return nil, fmt.Errorf("%w in %v", ErrNoServers, servers)
	}
	log.D("dns53: setup: %v", ok)
	return &Resolver{
		servers:  ok,
		dialer:   d,
		timeout:  to,
		inflight: core.NewBarrier[[]netip.Addr](),
	}, nil
}

func hostport(s string) (string, error) {
	s = strings.TrimSpace(s)
	if ipp, err := netip.ParseAddrPort(s); err == nil {
		return ipp.String(), nil
	}
	ip, err := netip.ParseAddr(s)
	if err != nil {
		return "", err
	}
	return net.JoinHostPort(ip.String(), Port), nil
}

// Servers returns the nameservers as ip:port.
func (r *Resolver) Servers() []string {
	return append([]string(nil), r.servers...)
}

// LookupNetIP returns the ipv4 and ipv6 addrs of host. Concurrent
// lookups of the same host share one set of queries.
func (r *Resolver) LookupNetIP(ctx context.Context, host string) ([]netip.Addr, error) {
	if ip, err := netip.ParseAddr(host); err == nil {
		return []netip.Addr{ip}, nil
	}
	v := r.inflight.Do(host, func() ([]netip.Addr, error) {
		return r.lookup(ctx, host)
	})
	if n := v.N.Load(); n > 0 {
		log.V("dns53: %s: shared by %d; took %s", host, n, v.Dur)
	}
	return v.Val, v.Err
}

func (r *Resolver) lookup(ctx context.Context, host string) ([]netip.Addr, error) {
	name := dns.Fqdn(host)
	var errs error
	for _, s := range r.servers {
		ips, err := r.query(ctx, s, name)
		if err == nil {
			log.D("dns53: %s => %v via %s", host, ips, s)
			return ips, nil
		}
		log.D("dns53: %s via %s: %v", host, s, err)
		if errors.Is(err, errNxDomain) {
			return nil, fmt.Errorf("%s: %w", host, err)
		}
		errs = errors.Join(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("%s: %w", host, errs)
}

// query asks server for A and AAAA records of name, concurrently.
func (r *Resolver) query(ctx context.Context, server, name string) ([]netip.Addr, error) {
	var mu sync.Mutex
	var wg sync.WaitGroup
	var v4, v6 []netip.Addr
	var errs error

	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		qtype := qtype // per-iteration copy (go 1.21 loop semantics)
		wg.Add(1)
		core.Go("dns53.query."+dns.TypeToString[qtype], func() {
			defer wg.Done()
			ips, err := r.exchange(ctx, server, name, qtype)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = errors.Join(errs, err)
			} else if qtype == dns.TypeA {
				v4 = ips
			} else {
				v6 = ips
			}
		})
	}
	wg.Wait()

	if ips := append(v4, v6...); len(ips) > 0 {
		return ips, nil
	}
	if errs != nil {
		return nil, errs
	}
	return nil, errNoAddrs
}

func (r *Resolver) exchange(ctx context.Context, server, name string, qtype uint16) ([]netip.Addr, error) {
	q := new(dns.Msg)
	q.SetQuestion(name, qtype)
	q.SetEdns0(udpSize, false)

	ans, err := r.exchangeOn(ctx, "udp", server, q)
	if err == nil && ans.Truncated {
		log.V("dns53: %s %s truncated; retry over tcp", name, dns.TypeToString[qtype])
		ans, err = r.exchangeOn(ctx, "tcp", server, q)
	}
	if err != nil {
		return nil, err
	}

	switch ans.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		return nil, errNxDomain
	default:
		return nil, fmt.Errorf("%w: %s %s rcode %s", errQueryFailed,
			name, dns.TypeToString[qtype], dns.RcodeToString[ans.Rcode])
	}

	var ips []netip.Addr
	for _, rr := range ans.Answer {
		switch a := rr.(type) {
		case *dns.A:
			if ip, ok := netip.AddrFromSlice(a.A.To4()); ok {
				ips = append(ips, ip)
			}
		case *dns.AAAA:
			if ip, ok := netip.AddrFromSlice(a.AAAA); ok {
				ips = append(ips, ip)
			}
		}
	}
	return ips, nil
}

// ref: github.com/celzero/midway/blob/77ede02c/midway/server.go#L179
func (r *Resolver) exchangeOn(ctx context.Context, network, server string, q *dns.Msg) (*dns.Msg, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	c, err := r.dialer.DialContext(ctx, network, server)
	if err != nil {
		return nil, err
	} else if c == nil {
		return nil, errNoNet
	}
	defer core.CloseConn(c)

	client := &dns.Client{
		Net:     network,
		Timeout: r.timeout,
		UDPSize: udpSize,
	}
	ans, _, err := client.ExchangeWithConnContext(ctx, q, &dns.Conn{Conn: c, UDPSize: udpSize})
	return ans, err
}

// DialContext resolves the host in addr on the nameservers and dials
// the resulting addrs in order until one connects.
func (r *Resolver) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	ips, err := r.LookupNetIP(ctx, host)
	if err != nil {
		return nil, err
	}
	var errs error
	tried := 0
	for _, ip := range ips {
		if !fits(network, ip) {
			continue
		}
		tried++
		c, err := r.dialer.DialContext(ctx, network, net.JoinHostPort(ip.String(), port))
		if err == nil {
			return c, nil
		}
		errs = errors.Join(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	if tried <= 0 {
		return nil, fmt.Errorf("%w for %s %s", errNoAddrs, network, host)
	}
	return nil, errs
}

func fits(network string, ip netip.Addr) bool {
	switch {
	case strings.HasSuffix(network, "4"):
		return ip.Is4() || ip.Is4In6()
	case strings.HasSuffix(network, "6"):
		return ip.Is6() && !ip.Is4In6()
	default:
		return true
	}
}
