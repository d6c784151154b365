// Copyright (c) 2025 RethinkDNS and its authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/russdill/networkd-connectivity/intra/core"
	"github.com/russdill/networkd-connectivity/intra/dns53"
	"github.com/russdill/networkd-connectivity/intra/log"
	"github.com/russdill/networkd-connectivity/intra/settings"
	"golang.org/x/net/proxy"
	"golang.org/x/sync/errgroup"
)

// maxBody is the most bytes of a response body compared to a target;
// a longer body cannot be judged and counts as limited.
const maxBody = 1 << 20

const userAgent = "connectivity-monitord"

// Assessor runs one probe round.
type Assessor interface {
	Assess(ctx context.Context, targets []settings.Target, nameservers []string) State
}

// Binder vends dialers bound to one interface; see protect.Binder.
type Binder interface {
	Interface() string
	ContextDialer() proxy.ContextDialer
}

// Engine probes targets through one interface. It keeps no state
// between rounds.
type Engine struct {
	b       Binder
	timeout time.Duration
	tlsc    *tls.Config // nil uses system roots
}

var _ Assessor = (*Engine)(nil)

// NewEngine returns an engine dialing through b with a per-request timeout.
func NewEngine(b Binder, timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = settings.DefaultTimeout
	}
	return &Engine{b: b, timeout: timeout}
}

// Assess issues one request per target concurrently and reduces their
// outcomes. Names are resolved on nameservers when there are any, else
// by the binder's own resolver. It returns Unknown if the resolver
// cannot be set up.
func (e *Engine) Assess(ctx context.Context, targets []settings.Target, nameservers []string) State {
	ifname := e.b.Interface()
	if len(targets) <= 0 {
		log.W("probe: %s: no targets", ifname)
		return Unknown
	}

	d := e.b.ContextDialer()
	dial := d.DialContext
	if len(nameservers) > 0 {
		r, err := dns53.NewResolver(nameservers, d, e.timeout)
		if err != nil {
			log.W("probe: %s: resolver setup: %v", ifname, err)
			return Unknown
		}
		dial = r.DialContext
	}

	tr := &http.Transport{
		Proxy:               nil, // never via $http_proxy
		DialContext:         dial,
		DisableKeepAlives:   true,
		TLSHandshakeTimeout: e.timeout,
		TLSClientConfig:     e.tlsc.Clone(),
	}
	defer tr.CloseIdleConnections()

	client := &http.Client{
		Transport: tr,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	outcomes := make([]State, len(targets))
	var g errgroup.Group
	for i, t := range targets {
		i, t := i, t // per-iteration copy (go 1.21 loop semantics)
		g.Go(func() error {
			outcomes[i] = e.check(ctx, client, t)
			log.D("probe: %s: %s => %s", ifname, t.URL, outcomes[i])
			return nil
		})
	}
	_ = g.Wait()

	return Reduce(outcomes...)
}

func (e *Engine) check(ctx context.Context, client *http.Client, t settings.Target) State {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.URL, nil)
	if err != nil {
		log.W("probe: bad request %s: %v", t.URL, err)
		return Limited
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Cache-Control", "no-cache")

	res, err := client.Do(req)
	if err != nil {
		return classify(err)
	}
	defer core.Close(res.Body)

	switch {
	case res.StatusCode >= 300 && res.StatusCode < 400:
		log.V("probe: %s redirects to %q", t.URL, res.Header.Get("Location"))
		return Portal
	case res.StatusCode >= 200 && res.StatusCode < 300:
		body, err := io.ReadAll(io.LimitReader(res.Body, maxBody+1))
		if err != nil {
			log.D("probe: %s read: %v", t.URL, err)
			return Limited
		} else if len(body) > maxBody {
			log.W("probe: %s body over %d bytes", t.URL, maxBody)
			return Limited
		}
		if t.Matches(body) {
			return Full
		}
		return Portal
	default:
		return Limited
	}
}

// classify maps a failed request to an outcome: certificate
// verification failures look like a portal intercepting tls, all
// else is limited.
func classify(err error) State {
	var verr *tls.CertificateVerificationError
	var uaerr x509.UnknownAuthorityError
	var herr x509.HostnameError
	var cierr x509.CertificateInvalidError
	switch {
	case errors.As(err, &verr),
		errors.As(err, &uaerr),
		errors.As(err, &herr),
		errors.As(err, &cierr):
		log.D("probe: cert: %v", err)
		return Portal
	default:
		log.D("probe: %v", err)
		return Limited
	}
}
