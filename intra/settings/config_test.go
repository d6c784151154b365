// Copyright (c) 2025 RethinkDNS and its authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package settings

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTargetKinds(t *testing.T) {
	cases := []struct {
		in     string
		url    string
		match  Match
		expect string
	}{
		{"http://gstatic.com/generate_204", "http://gstatic.com/generate_204", MatchExact, ""},
		{"http://a.example/x=OK", "http://a.example/x", MatchExact, "OK"},
		{"http://a.example/x=Hello...", "http://a.example/x", MatchPrefix, "Hello"},
		{"http://a.example/x=...World", "http://a.example/x", MatchSuffix, "World"},
		{"http://example.com/=...Example%20Domain...", "http://example.com/", MatchContains, "Example Domain"},
		{"https://a.example/=...", "https://a.example/", MatchContains, ""},
	}
	for _, c := range cases {
		tg, err := ParseTarget(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.url, tg.URL, c.in)
		assert.Equal(t, c.match, tg.Match, c.in)
		assert.Equal(t, c.expect, string(tg.Expect), c.in)
	}
}

func TestParseTargetRejects(t *testing.T) {
	for _, in := range []string{"", "=foo", "ftp://a.example/", "http:///nohost", "://bad"} {
		_, err := ParseTarget(in)
		assert.Error(t, err, in)
	}
}

func TestTargetMatches(t *testing.T) {
	sub, err := ParseTarget("http://example.com/=...Example%20Domain...")
	require.NoError(t, err)
	assert.True(t, sub.Matches([]byte("<html><h1>Example Domain</h1></html>")))
	assert.False(t, sub.Matches([]byte("<html>Login to hotspot</html>")))

	empty, err := ParseTarget("http://gstatic.com/generate_204")
	require.NoError(t, err)
	assert.True(t, empty.Matches(nil))
	assert.False(t, empty.Matches([]byte("portal")))

	pre, _ := ParseTarget("http://a.example/=Net...")
	assert.True(t, pre.Matches([]byte("NetworkManager is online")))
	assert.False(t, pre.Matches([]byte("is online Net")))

	suf, _ := ParseTarget("http://a.example/=...online")
	assert.True(t, suf.Matches([]byte("NetworkManager is online")))
	assert.False(t, suf.Matches([]byte("online NetworkManager")))
}

func TestTargetStringRoundTrip(t *testing.T) {
	for _, in := range DefaultProbeURLs {
		tg, err := ParseTarget(in)
		require.NoError(t, err)
		again, err := ParseTarget(tg.String())
		require.NoError(t, err)
		assert.Equal(t, tg, again)
	}
}

func TestAccumulate(t *testing.T) {
	base := []string{"a", "b"}
	assert.Equal(t, []string{"a", "b", "c"}, Accumulate(base, "c"))
	assert.Equal(t, []string{"d"}, Accumulate(base, "c", "", "d"))
	assert.Empty(t, Accumulate(base, ""))
	assert.Equal(t, []string{"a", "b"}, base)
}

func TestParseSection(t *testing.T) {
	network := `# /etc/systemd/network/10-wlan0.network
[Match]
Name=wlan0

[ConnectivityMonitord]
ProbeURL=
ProbeURL=https://fedoraproject.org/static/hotspot.txt=OK
Interval=30
Timeout=2.5

# /etc/systemd/network/10-wlan0.network.d/extra.conf
[ConnectivityMonitord]
ProbeURL=http://gstatic.com/generate_204
`
	c, err := Parse(strings.NewReader(network))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://fedoraproject.org/static/hotspot.txt=OK",
		"http://gstatic.com/generate_204",
	}, c.ProbeURLs)
	assert.Len(t, c.Targets, 2)
	assert.Equal(t, 30*time.Second, c.Interval)
	assert.Equal(t, 2500*time.Millisecond, c.Timeout)
}

func TestParseAppendsToDefaults(t *testing.T) {
	network := "[ConnectivityMonitord]\nProbeURL=https://detectportal.firefox.com/success.txt=success\n"
	c, err := Parse(strings.NewReader(network))
	require.NoError(t, err)
	require.Len(t, c.ProbeURLs, len(DefaultProbeURLs)+1)
	assert.Equal(t, DefaultProbeURLs, c.ProbeURLs[:len(DefaultProbeURLs)])
}

func TestParseWithoutSectionUsesDefaults(t *testing.T) {
	c, err := Parse(strings.NewReader("[Match]\nName=eth0\n"))
	require.NoError(t, err)
	assert.Equal(t, DefaultProbeURLs, c.ProbeURLs)
	assert.Equal(t, DefaultInterval, c.Interval)
	assert.Equal(t, DefaultTimeout, c.Timeout)
}

func TestParseResetOnlyFallsBackToDefaults(t *testing.T) {
	c, err := Parse(strings.NewReader("[ConnectivityMonitord]\nProbeURL=\n"))
	require.NoError(t, err)
	assert.Equal(t, DefaultProbeURLs, c.ProbeURLs)
}

func TestParseBadInterval(t *testing.T) {
	_, err := Parse(strings.NewReader("[ConnectivityMonitord]\nInterval=-3\n"))
	assert.Error(t, err)
	_, err = Parse(strings.NewReader("[ConnectivityMonitord]\nTimeout=soon\n"))
	assert.Error(t, err)
}

func TestOverridesTakePrecedence(t *testing.T) {
	c, err := Parse(strings.NewReader("[ConnectivityMonitord]\nInterval=30\nTimeout=9\n"))
	require.NoError(t, err)

	err = c.Override(Overrides{
		Interval: 5 * time.Second,
		URLs:     []string{"http://a.example/=OK"},
	})
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, c.Interval)
	assert.Equal(t, 9*time.Second, c.Timeout)
	assert.Equal(t, []string{"http://a.example/=OK"}, c.ProbeURLs)
	require.Len(t, c.Targets, 1)
	assert.Equal(t, "OK", string(c.Targets[0].Expect))
}

func TestParseSeconds(t *testing.T) {
	d, err := ParseSeconds("1.5")
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, d)
	d, err = ParseSeconds("2m")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, d)
	_, err = ParseSeconds("0")
	assert.Error(t, err)
}
