// Copyright (c) 2025 RethinkDNS and its authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package probe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func permute(s []State, f func([]State)) {
	var rec func(int)
	rec = func(k int) {
		if k == len(s) {
			f(append([]State(nil), s...))
			return
		}
		for i := k; i < len(s); i++ {
			s[k], s[i] = s[i], s[k]
			rec(k + 1)
			s[k], s[i] = s[i], s[k]
		}
	}
	rec(0)
}

func TestReducePrecedence(t *testing.T) {
	cases := []struct {
		in   []State
		want State
	}{
		{[]State{Limited, Full, Portal}, Full},
		{[]State{Limited, Portal, Limited}, Portal},
		{[]State{Limited, Unknown}, Limited},
		{[]State{Unknown, Unknown}, Unknown},
		{nil, Unknown},
	}
	for _, c := range cases {
		permute(c.in, func(p []State) {
			assert.Equal(t, c.want, Reduce(p...), "%v", p)
		})
	}
}

func TestStateNames(t *testing.T) {
	for _, s := range States() {
		got, ok := Parse(s.String())
		assert.True(t, ok)
		assert.Equal(t, s, got)
	}
	assert.Equal(t, "unknown", State(42).String())
	assert.False(t, State(42).Valid())

	s, ok := Parse(" Full ")
	assert.True(t, ok)
	assert.Equal(t, Full, s)
	_, ok = Parse("online")
	assert.False(t, ok)
}
