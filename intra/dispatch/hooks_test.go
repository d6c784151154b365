// Copyright (c) 2025 RethinkDNS and its authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package dispatch

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/russdill/networkd-connectivity/intra/probe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const script = "#!/bin/sh\nexit 0\n"

func hook(t *testing.T, root, state, name string, mode os.FileMode) string {
	t.Helper()
	dir := filepath.Join(root, state+".d")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(script), mode))
	return p
}

// tree lays out A/full.d/{00-x,10-y} and B/full.d/05-z, plus noise.
func tree(t *testing.T) (a, b string) {
	t.Helper()
	a, b = filepath.Join(t.TempDir(), "A"), filepath.Join(t.TempDir(), "B")
	hook(t, a, "full", "10-y", 0o755)
	hook(t, a, "full", "00-x", 0o755)
	hook(t, a, "full", "05-readme", 0o644)
	hook(t, b, "full", "05-z", 0o755)
	hook(t, b, "portal", "00-alert", 0o755)
	require.NoError(t, os.MkdirAll(filepath.Join(a, "full.d", "07-dir"), 0o755))
	return a, b
}

func rel(roots []string, paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		for j, r := range roots {
			if after, ok := strings.CutPrefix(p, r+string(filepath.Separator)); ok {
				out[i] = string(rune('A'+j)) + "/" + filepath.Base(after)
			}
		}
	}
	return out
}

func TestScriptsOrder(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("exec bits")
	}
	a, b := tree(t)
	roots := []string{a, b, filepath.Join(t.TempDir(), "missing")}
	r := NewRunner(roots)

	assert.Equal(t, []string{"A/00-x", "A/10-y", "B/05-z"}, rel(roots, r.Scripts(probe.Full)))
	assert.Equal(t, []string{"B/00-alert"}, rel(roots, r.Scripts(probe.Portal)))
	assert.Empty(t, r.Scripts(probe.Unknown))
}

func TestRunSpawnsInOrderWithEnv(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("exec bits")
	}
	a, b := tree(t)
	roots := []string{a, b}
	r := NewRunner(roots)

	var spawned []string
	var envs [][]string
	r.spawn = func(path string, env []string) error {
		spawned = append(spawned, path)
		envs = append(envs, env)
		if filepath.Base(path) == "00-x" {
			return errors.New("exec format error")
		}
		return nil
	}

	n := r.Run("wlan0", probe.Full)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"A/00-x", "A/10-y", "B/05-z"}, rel(roots, spawned))
	for _, env := range envs {
		assert.Contains(t, env, "IFACE=wlan0")
		assert.Contains(t, env, "STATE=full")
	}
}

func TestRunExecutesHooks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("sh hooks")
	}
	root := t.TempDir()
	out := filepath.Join(t.TempDir(), "out")
	dir := filepath.Join(root, "limited.d")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	body := "#!/bin/sh\necho \"$IFACE $STATE $#\" > " + out + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "50-log"), []byte(body), 0o755))

	r := NewRunner([]string{root})
	require.Equal(t, 1, r.Run("eth0", probe.Limited))

	require.Eventually(t, func() bool {
		b, err := os.ReadFile(out)
		return err == nil && strings.TrimSpace(string(b)) == "eth0 limited 0"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSplitPath(t *testing.T) {
	assert.Equal(t, []string{"/usr/lib/connectivity-dispatcher", "/etc/connectivity-dispatcher"}, SplitPath(DefaultPath))
	assert.Equal(t, []string{"/a", "/b"}, SplitPath("/a::/b:"))
	assert.Empty(t, SplitPath(""))
}
