// Copyright (c) 2025 RethinkDNS and its authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package settings

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Match is the kind of comparison a Target applies to a response body.
type Match int

const (
	// MatchExact requires the body to equal the expectation; an empty
	// expectation thus requires an empty body (ex: generate_204).
	MatchExact Match = iota
	// MatchPrefix requires the body to start with the expectation ("foo...").
	MatchPrefix
	// MatchSuffix requires the body to end with the expectation ("...foo").
	MatchSuffix
	// MatchContains requires the expectation anywhere in the body ("...foo...").
	MatchContains
)

const wildcard = "..."

var (
	errNoURL     = errors.New("settings: probe url missing")
	errBadScheme = errors.New("settings: probe url must be http or https")
	errNoHost    = errors.New("settings: probe url has no host")
)

func (m Match) String() string {
	switch m {
	case MatchExact:
		return "exact"
	case MatchPrefix:
		return "prefix"
	case MatchSuffix:
		return "suffix"
	case MatchContains:
		return "contains"
	default:
		return "invalid"
	}
}

// Target is one probe: a url and what its 2xx response body must look like.
type Target struct {
	URL    string
	Expect []byte
	Match  Match
}

// ParseTarget parses "URL[=EXPECTED]". The url ends at the first '=';
// EXPECTED is percent-unescaped and may carry "..." wildcards at
// either or both ends.
func ParseTarget(s string) (Target, error) {
	raw, expect, _ := strings.Cut(strings.TrimSpace(s), "=")
	if len(raw) <= 0 {
		return Target{}, errNoURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Target{}, fmt.Errorf("settings: probe url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Target{}, fmt.Errorf("%w: %q", errBadScheme, raw)
	}
	if len(u.Host) <= 0 {
		return Target{}, fmt.Errorf("%w: %q", errNoHost, raw)
	}

	if unq, err := url.PathUnescape(expect); err != nil {
		return Target{}, fmt.Errorf("settings: probe expectation %q: %w", expect, err)
	} else {
		expect = unq
	}

	t := Target{URL: raw}
	lw := len(wildcard)
	head := strings.HasPrefix(expect, wildcard)
	tail := strings.HasSuffix(expect, wildcard)
	switch {
	case expect == wildcard:
		t.Match = MatchContains
	case head && tail && len(expect) >= 2*lw:
		t.Match = MatchContains
		t.Expect = []byte(expect[lw : len(expect)-lw])
	case head:
		t.Match = MatchSuffix
		t.Expect = []byte(expect[lw:])
	case tail:
		t.Match = MatchPrefix
		t.Expect = []byte(expect[:len(expect)-lw])
	default:
		t.Match = MatchExact
		t.Expect = []byte(expect)
	}
	return t, nil
}

// ParseTargets parses all of ss, failing on the first invalid entry.
func ParseTargets(ss []string) ([]Target, error) {
	out := make([]Target, 0, len(ss))
	for _, s := range ss {
		t, err := ParseTarget(s)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Matches reports whether body satisfies the target's expectation.
func (t Target) Matches(body []byte) bool {
	switch t.Match {
	case MatchPrefix:
		return bytes.HasPrefix(body, t.Expect)
	case MatchSuffix:
		return bytes.HasSuffix(body, t.Expect)
	case MatchContains:
		return bytes.Contains(body, t.Expect)
	default:
		return bytes.Equal(body, t.Expect)
	}
}

func (t Target) String() string {
	e := string(t.Expect)
	switch t.Match {
	case MatchPrefix:
		e += wildcard
	case MatchSuffix:
		e = wildcard + e
	case MatchContains:
		e = wildcard + e + wildcard
	}
	if len(e) <= 0 {
		return t.URL
	}
	return t.URL + "=" + url.PathEscape(e)
}
