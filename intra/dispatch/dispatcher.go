// Copyright (c) 2025 RethinkDNS and its authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package dispatch follows every connectivity publisher on the bus and
// runs hooks on each of their transitions.
package dispatch

import (
	"context"
	"errors"
	"sync"

	"github.com/russdill/networkd-connectivity/intra/bus"
	"github.com/russdill/networkd-connectivity/intra/core"
	"github.com/russdill/networkd-connectivity/intra/log"
	"github.com/russdill/networkd-connectivity/intra/notify"
	"github.com/russdill/networkd-connectivity/intra/probe"
)

var errBusGone = errors.New("dispatch: name owner stream closed")

// Source finds publishers and reads their state; see NewBusSource.
type Source interface {
	Publishers(ctx context.Context) ([]string, error)
	NameOwnerChanges() (*bus.Stream[bus.NameOwnerChange], error)
	Connectivity(ctx context.Context, ifname string) (probe.State, error)
	ConnectivityChanges(ifname string) (*bus.Stream[probe.State], error)
}

// Hooks reacts to one transition of one interface; see Runner.
type Hooks interface {
	Run(ifname string, state probe.State) int
}

var _ Hooks = (*Runner)(nil)

// Dispatcher keeps exactly one watch per live publisher.
type Dispatcher struct {
	src     Source
	hooks   Hooks
	startup bool // run hooks for publishers found at startup
	ntf     notify.Notifier

	mu      sync.Mutex
	handles map[string]*handle // live publishers
	last    map[string]*handle // newest handle per name, live or not
}

// handle is one attachment to a publisher.
type handle struct {
	ifname string
	cancel context.CancelFunc
	done   chan struct{}
	prev   *handle // must be done before this one subscribes
	kick   chan struct{} // asks for a read of the current state

	// attached from the startup listing without a read; guarded by
	// Dispatcher.mu
	listed bool

	mu   sync.Mutex // serializes hooks; guards last, gone
	last probe.State
	gone bool
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithNotifier signals readiness once startup discovery is done.
func WithNotifier(n notify.Notifier) Option {
	return func(d *Dispatcher) {
		d.ntf = n
	}
}

// New returns a dispatcher; startup says whether publishers present at
// start have their current state dispatched right away.
func New(src Source, hooks Hooks, startup bool, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		src:     src,
		hooks:   hooks,
		startup: startup,
		ntf:     notify.Discard,
		handles: make(map[string]*handle),
		last:    make(map[string]*handle),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Run watches for publishers until ctx is done or the bus goes away.
func (d *Dispatcher) Run(ctx context.Context) error {
	// subscribe before listing so that no publisher slips through
	st, err := d.src.NameOwnerChanges()
	if err != nil {
		return err
	}
	defer st.Cancel()

	ifnames, err := d.src.Publishers(ctx)
	if err != nil {
		return err
	}
	log.I("dispatch: found %d publishers: %v", len(ifnames), ifnames)
	for _, ifname := range ifnames {
		d.attachListed(ctx, ifname)
	}
	d.ntf.Ready()

	for {
		select {
		case <-ctx.Done():
			return nil
		case c, ok := <-st.C:
			if !ok {
				return errBusGone
			}
			if len(c.New) > 0 {
				log.D("dispatch: %s appeared as %s (%s)", c.Iface, c.Name, c.New)
				d.attach(ctx, c.Iface, true)
			} else {
				log.D("dispatch: %s lost %s (%s)", c.Iface, c.Name, c.Old)
				d.detach(c.Iface)
			}
		}
	}
}

// Attached lists interfaces with a live handle.
func (d *Dispatcher) Attached() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.handles))
	for ifname := range d.handles {
		out = append(out, ifname)
	}
	return out
}

// attachListed attaches a publisher found by listing at startup.
func (d *Dispatcher) attachListed(ctx context.Context, ifname string) {
	if h := d.attach(ctx, ifname, d.startup); h != nil && !d.startup {
		d.mu.Lock()
		h.listed = true
		d.mu.Unlock()
	}
}

// attach starts a watch on ifname unless one is live, and returns the
// new handle. A publisher that was listed unread but shows up again (it
// registered between subscribing and listing) gets its state read now.
func (d *Dispatcher) attach(ctx context.Context, ifname string, runInitial bool) *handle {
	d.mu.Lock()
	defer d.mu.Unlock()

	if h, ok := d.handles[ifname]; ok {
		if runInitial && h.listed {
			h.listed = false
			log.D("dispatch: %s appeared after listing; reading", ifname)
			select {
			case h.kick <- struct{}{}:
			default:
			}
		} else {
			log.D("dispatch: %s already attached", ifname)
		}
		return nil
	}
	hctx, cancel := context.WithCancel(ctx)
	h := &handle{
		ifname: ifname,
		cancel: cancel,
		done:   make(chan struct{}),
		prev:   d.last[ifname],
		kick:   make(chan struct{}, 1),
		last:   probe.Unknown,
	}
	d.handles[ifname] = h
	d.last[ifname] = h

	log.I("dispatch: attach %s; initial? %t", ifname, runInitial)
	core.Go("dispatch.watch."+ifname, func() {
		d.watch(hctx, h, runInitial)
	})
	return h
}

func (d *Dispatcher) detach(ifname string) {
	d.mu.Lock()
	h, ok := d.handles[ifname]
	if ok {
		delete(d.handles, ifname)
	}
	d.mu.Unlock()

	if ok {
		d.retire(h)
	}
}

// lost detaches h if it is still the live handle of its interface.
func (d *Dispatcher) lost(h *handle) {
	d.mu.Lock()
	if d.handles[h.ifname] == h {
		delete(d.handles, h.ifname)
	}
	d.mu.Unlock()

	d.retire(h)
}

// retire cancels h and dispatches unknown for it, once.
func (d *Dispatcher) retire(h *handle) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.gone {
		return
	}
	h.gone = true
	h.cancel()
	log.I("dispatch: detach %s (was %s)", h.ifname, h.last)
	d.hooks.Run(h.ifname, probe.Unknown)
}

func (d *Dispatcher) fire(h *handle, s probe.State) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.gone {
		return
	}
	log.I("dispatch: %s: %s -> %s", h.ifname, h.last, s)
	h.last = s
	d.hooks.Run(h.ifname, s)
}

func (d *Dispatcher) watch(ctx context.Context, h *handle, runInitial bool) {
	defer close(h.done)

	if h.prev != nil {
		select {
		case <-h.prev.done:
		case <-ctx.Done():
			return
		}
	}

	st, err := d.src.ConnectivityChanges(h.ifname)
	if err != nil {
		log.W("dispatch: %s: subscribe: %v", h.ifname, err)
		d.lost(h)
		return
	}
	defer st.Cancel()

	if runInitial && !d.read(ctx, h) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.kick:
			if !d.read(ctx, h) {
				return
			}
		case s, ok := <-st.C:
			if !ok {
				d.lost(h)
				return
			}
			d.fire(h, s)
		}
	}
}

// read dispatches the current state of h; false if the publisher is
// unreachable or h is cancelled.
func (d *Dispatcher) read(ctx context.Context, h *handle) bool {
	s, err := d.src.Connectivity(ctx, h.ifname)
	if err != nil {
		if ctx.Err() == nil {
			log.W("dispatch: %s: unreachable: %v", h.ifname, err)
			d.lost(h)
		}
		return false
	}
	d.fire(h, s)
	return true
}
