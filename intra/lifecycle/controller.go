// Copyright (c) 2025 RethinkDNS and its authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package lifecycle starts and stops probing of one interface as its
// link becomes routable or not.
package lifecycle

import (
	"context"
	"errors"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/russdill/networkd-connectivity/intra/bus"
	"github.com/russdill/networkd-connectivity/intra/core"
	"github.com/russdill/networkd-connectivity/intra/log"
	"github.com/russdill/networkd-connectivity/intra/notify"
	"github.com/russdill/networkd-connectivity/intra/probe"
	"github.com/russdill/networkd-connectivity/intra/settings"
)

var errLinkGone = errors.New("lifecycle: link state stream closed")

// LinkSource is a link manager's view of one link; see bus.Link.
type LinkSource interface {
	OperationalState(ctx context.Context) (string, error)
	Changes() (*bus.Stream[string], error)
	Nameservers(ctx context.Context) ([]string, error)
}

// Publisher holds the published state; see bus.Publisher.
type Publisher interface {
	Set(s probe.State) bool
	State() probe.State
}

var (
	_ LinkSource = (*bus.Link)(nil)
	_ Publisher  = (*bus.Publisher)(nil)
)

// Session is what one interface is probed with.
type Session struct {
	Ifname string
	Config *settings.Config
}

// Controller runs at most one probe loop for a session; it is Running
// while a loop exists and Stopped otherwise. Only the controller and its
// loop write to the publisher.
type Controller struct {
	sess  Session
	link  LinkSource
	eng   probe.Assessor
	pub   Publisher
	ntf   notify.Notifier
	clock clock.Clock

	mu   sync.Mutex // guards loop, last, and writes to pub
	loop *loop      // nil when stopped
	last *loop      // most recently started loop
}

type loop struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Option customizes a Controller.
type Option func(*Controller)

// WithClock replaces the wall clock, for tests.
func WithClock(c clock.Clock) Option {
	return func(ctl *Controller) {
		ctl.clock = c
	}
}

// WithNotifier signals readiness and sends state changes as status.
func WithNotifier(n notify.Notifier) Option {
	return func(ctl *Controller) {
		ctl.ntf = n
	}
}

// New returns a stopped controller.
func New(sess Session, link LinkSource, eng probe.Assessor, pub Publisher, opts ...Option) *Controller {
	if sess.Config == nil {
		sess.Config = settings.Default()
	}
	c := &Controller{
		sess:  sess,
		link:  link,
		eng:   eng,
		pub:   pub,
		ntf:   notify.Discard,
		clock: clock.New(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Run subscribes to link state changes, applies the current state,
// signals readiness, and then applies every change until ctx is done or
// the subscription ends.
func (c *Controller) Run(ctx context.Context) error {
	ifname := c.sess.Ifname

	st, err := c.link.Changes()
	if err != nil {
		return err
	}
	defer st.Cancel()
	defer c.halt()

	if opstate, err := c.link.OperationalState(ctx); err != nil {
		log.W("lifecycle: %s: initial link state: %v", ifname, err)
	} else {
		log.D("lifecycle: %s: initial link state %s", ifname, opstate)
		c.Observe(ctx, opstate)
	}
	c.ntf.Ready()

	for {
		select {
		case <-ctx.Done():
			return nil
		case opstate, ok := <-st.C:
			if !ok {
				return errLinkGone
			}
			log.D("lifecycle: %s: link state %s", ifname, opstate)
			c.Observe(ctx, opstate)
		}
	}
}

// Running reports whether a probe loop is active.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loop != nil
}

// Observe applies one operational state. A routable link starts a loop
// unless one is active; any other state stops an active loop and
// publishes none. Anything else is a no-op.
func (c *Controller) Observe(ctx context.Context, opstate string) {
	ifname := c.sess.Ifname

	c.mu.Lock()
	defer c.mu.Unlock()

	if bus.Routable(opstate) {
		if c.loop != nil {
			return
		}
		log.I("lifecycle: %s: %s (%s)", ifname, probe.Limited, opstate)
		c.publish(probe.Limited)

		lctx, cancel := context.WithCancel(ctx)
		l := &loop{cancel: cancel, done: make(chan struct{})}
		prev := c.last
		c.loop, c.last = l, l
		core.Go("lifecycle.loop."+ifname, func() {
			c.run(lctx, l, prev)
		})
		return
	}

	if c.loop == nil {
		return
	}
	c.loop.cancel()
	c.loop = nil
	log.I("lifecycle: %s: %s (%s)", ifname, probe.None, opstate)
	c.publish(probe.None)
}

// halt cancels the loop, if any, without publishing.
func (c *Controller) halt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loop != nil {
		c.loop.cancel()
		c.loop = nil
	}
}

// run probes every interval until ctx is done. A round that completes
// after cancellation is discarded.
func (c *Controller) run(ctx context.Context, l *loop, prev *loop) {
	defer close(l.done)
	ifname := c.sess.Ifname
	cfg := c.sess.Config

	if prev != nil {
		// the previous loop may still be inside a cancelled round
		select {
		case <-prev.done:
		case <-ctx.Done():
			return
		}
	}

	for {
		ns, err := c.link.Nameservers(ctx)
		if err != nil {
			log.D("lifecycle: %s: no link dns: %v", ifname, err)
			ns = nil
		}

		s := c.eng.Assess(ctx, cfg.Targets, ns)

		c.mu.Lock()
		if ctx.Err() != nil {
			c.mu.Unlock()
			log.D("lifecycle: %s: discard %s from cancelled round", ifname, s)
			return
		}
		prevs := c.pub.State()
		if c.publish(s) {
			log.I("lifecycle: %s: %s -> %s", ifname, prevs, s)
		}
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-c.clock.After(cfg.Interval):
		}
	}
}

// publish must be called with mu held.
func (c *Controller) publish(s probe.State) bool {
	if !c.pub.Set(s) {
		return false
	}
	c.ntf.Status(s.String())
	return true
}
