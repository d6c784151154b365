// Copyright (c) 2025 RethinkDNS and its authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package dispatch

import (
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/russdill/networkd-connectivity/intra/core"
	"github.com/russdill/networkd-connectivity/intra/log"
	"github.com/russdill/networkd-connectivity/intra/probe"
)

// DefaultPath is the hook search path: system hooks, then local ones.
const DefaultPath = "/usr/lib/connectivity-dispatcher:/etc/connectivity-dispatcher"

// SplitPath splits a colon separated list of roots, dropping empties.
func SplitPath(s string) []string {
	var roots []string
	for _, r := range strings.Split(s, ":") {
		if r = strings.TrimSpace(r); len(r) > 0 {
			roots = append(roots, r)
		}
	}
	return roots
}

// spawnFn starts path with env and does not wait for it.
type spawnFn func(path string, env []string) error

// Runner runs the hooks of a state: for every root in order, the
// executables in <root>/<state>.d, by ascending name.
type Runner struct {
	roots []string
	spawn spawnFn
}

// NewRunner returns a runner searching roots, in order.
func NewRunner(roots []string) *Runner {
	return &Runner{
		roots: append([]string(nil), roots...),
		spawn: spawn,
	}
}

// Roots returns the search path.
func (r *Runner) Roots() []string {
	return append([]string(nil), r.roots...)
}

// Scripts lists the hooks for state in execution order.
func (r *Runner) Scripts(state probe.State) []string {
	var out []string
	for _, root := range r.roots {
		dir := filepath.Join(root, state.String()+".d")
		entries, err := os.ReadDir(dir) // sorted by name
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				log.W("dispatch: hooks: %v", err)
			}
			continue
		}
		for _, e := range entries {
			p := filepath.Join(dir, e.Name())
			fi, err := os.Stat(p) // follows symlinks
			if err != nil || !fi.Mode().IsRegular() {
				log.V("dispatch: hooks: skip %s; err? %v", p, err)
				continue
			}
			if !executable(p, fi) {
				log.V("dispatch: hooks: skip %s; not executable", p)
				continue
			}
			out = append(out, p)
		}
	}
	return out
}

// Run spawns every hook for state with IFACE and STATE set, without
// waiting for any of them. Failures are logged. It returns the number
// of hooks started.
func (r *Runner) Run(ifname string, state probe.State) int {
	env := append(os.Environ(), "IFACE="+ifname, "STATE="+state.String())
	n := 0
	for _, p := range r.Scripts(state) {
		log.D("dispatch: exec %s (IFACE=%s STATE=%s)", p, ifname, state)
		if err := r.spawn(p, env); err != nil {
			log.E("dispatch: failed to run %s: %v", p, err)
			continue
		}
		n++
	}
	return n
}

func spawn(path string, env []string) error {
	cmd := exec.Command(path)
	cmd.Env = env
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return err
	}
	core.Go1("dispatch.reap."+filepath.Base(path), reap, cmd)
	return nil
}

func reap(cmd *exec.Cmd) {
	if err := cmd.Wait(); err != nil {
		log.W("dispatch: %s: %v", cmd.Path, err)
	} else {
		log.V("dispatch: %s: done", cmd.Path)
	}
}
