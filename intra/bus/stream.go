// Copyright (c) 2025 RethinkDNS and its authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package bus

import (
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/russdill/networkd-connectivity/intra/core"
	"github.com/russdill/networkd-connectivity/intra/log"
)

// Stream is a cancellable sequence of events. C is closed after Cancel,
// or when the underlying connection goes away.
type Stream[T any] struct {
	C    <-chan T
	once sync.Once
	stop func()
}

// NewStream wraps c; stop, if not nil, runs once on Cancel.
func NewStream[T any](c <-chan T, stop func()) *Stream[T] {
	return &Stream[T]{C: c, stop: stop}
}

// Cancel stops delivery. It is safe to call more than once.
func (s *Stream[T]) Cancel() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.stop != nil {
			s.stop()
		}
	})
}

// signaler is the part of *dbus.Conn that delivers signals.
type signaler interface {
	AddMatchSignal(options ...dbus.MatchOption) error
	RemoveMatchSignal(options ...dbus.MatchOption) error
	Signal(ch chan<- *dbus.Signal)
	RemoveSignal(ch chan<- *dbus.Signal)
}

var _ signaler = (*dbus.Conn)(nil)

// watch installs matches on the bus and streams the signals conv
// accepts. Every signal the connection receives is offered to conv, so
// conv must filter on path and member. prime, if not nil, runs after the
// matches are in place and before conv sees the first signal. Events
// queue without bound so that a slow reader never stalls the connection.
func watch[T any](who string, conn signaler, matches [][]dbus.MatchOption, prime func() error, conv func(*dbus.Signal) (T, bool)) (*Stream[T], error) {
	for i, match := range matches {
		if err := conn.AddMatchSignal(match...); err != nil {
			unmatch(who, conn, matches[:i])
			return nil, err
		}
	}
	sig := make(chan *dbus.Signal, 16)
	conn.Signal(sig)

	if prime != nil {
		if err := prime(); err != nil {
			conn.RemoveSignal(sig)
			unmatch(who, conn, matches)
			return nil, err
		}
	}

	out := make(chan T)
	done := make(chan struct{})

	core.Go("bus.watch."+who, func() {
		defer close(out)
		var q []T
		for {
			var send chan<- T
			var head T
			if len(q) > 0 {
				send = out
				head = q[0]
			}
			select {
			case <-done:
				return
			case s, ok := <-sig:
				if !ok {
					log.D("bus: watch %s: conn closed", who)
					return
				}
				if v, ok := conv(s); ok {
					q = append(q, v)
				}
			case send <- head:
				var zero T
				q[0] = zero
				q = q[1:]
			}
		}
	})

	stop := func() {
		conn.RemoveSignal(sig)
		unmatch(who, conn, matches)
		close(done)
	}
	return NewStream(out, stop), nil
}

func unmatch(who string, conn signaler, matches [][]dbus.MatchOption) {
	for _, match := range matches {
		if err := conn.RemoveMatchSignal(match...); err != nil {
			log.D("bus: watch %s: remove match: %v", who, err)
		}
	}
}

// owned admits signals sent by whoever currently owns name, following
// NameOwnerChanged. Not safe for concurrent use; it lives in one watch.
type owned struct {
	name  string
	owner string // unique name; empty while name has no owner
}

func (o *owned) admit(s *dbus.Signal) bool {
	if s == nil {
		return false
	}
	if s.Sender == dbusName && s.Name == nameOwnerChanged && len(s.Body) == 3 {
		if n, _ := s.Body[0].(string); n == o.name {
			o.owner, _ = s.Body[2].(string)
			log.D("bus: %s now owned by %q", o.name, o.owner)
		}
		return false
	}
	return len(o.owner) > 0 && s.Sender == o.owner
}

// watchOwned is watch restricted to signals from the current owner of
// name; resolve returns that owner at subscription time.
func watchOwned[T any](who string, conn signaler, name string, resolve func() (string, error), match []dbus.MatchOption, conv func(*dbus.Signal) (T, bool)) (*Stream[T], error) {
	o := &owned{name: name}
	matches := [][]dbus.MatchOption{
		append([]dbus.MatchOption{dbus.WithMatchSender(name)}, match...),
		ownerChangedMatch(name),
	}
	prime := func() (err error) {
		o.owner, err = resolve()
		return
	}
	return watch(who, conn, matches, prime, func(s *dbus.Signal) (v T, ok bool) {
		if !o.admit(s) {
			return
		}
		return conv(s)
	})
}

func ownerChangedMatch(name string) []dbus.MatchOption {
	return []dbus.MatchOption{
		dbus.WithMatchSender(dbusName),
		dbus.WithMatchInterface(dbusName),
		dbus.WithMatchMember(nameOwnerChangedM),
		dbus.WithMatchArg(0, name),
	}
}

// changed extracts the properties of iface from a PropertiesChanged
// signal on path.
func changed(s *dbus.Signal, path dbus.ObjectPath, iface string) (map[string]dbus.Variant, []string, bool) {
	if s == nil || s.Path != path || s.Name != propertiesChanged || len(s.Body) < 2 {
		return nil, nil, false
	}
	if in, ok := s.Body[0].(string); !ok || in != iface {
		return nil, nil, false
	}
	props, ok := s.Body[1].(map[string]dbus.Variant)
	if !ok {
		return nil, nil, false
	}
	var invalidated []string
	if len(s.Body) > 2 {
		invalidated, _ = s.Body[2].([]string)
	}
	return props, invalidated, true
}

func propertiesChangedMatch(path dbus.ObjectPath) []dbus.MatchOption {
	return []dbus.MatchOption{
		dbus.WithMatchObjectPath(path),
		dbus.WithMatchInterface(propertiesInterface),
		dbus.WithMatchMember("PropertiesChanged"),
	}
}
