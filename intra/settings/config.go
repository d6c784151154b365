// Copyright (c) 2025 RethinkDNS and its authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package settings

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/unit"
	"github.com/russdill/networkd-connectivity/intra/log"
)

// Section is the networkd config section read by the monitor.
const Section = "ConnectivityMonitord"

const (
	keyProbeURL = "ProbeURL"
	keyInterval = "Interval"
	keyTimeout  = "Timeout"
)

const (
	DefaultInterval = 15 * time.Second
	DefaultTimeout  = 5 * time.Second
)

// networkctl prints the merged .network (+ drop-ins) of a link.
var networkctl = "networkctl"

// Well-known connectivity checks:
// Google: http://gstatic.com/generate_204
// Gnome: http://nmcheck.gnome.org/check_network_status.txt=NetworkManager%20is%20online
// Microsoft: http://www.msftconnecttest.com/connecttest.txt=Microsoft%20Connect%20Test
// Fedora: https://fedoraproject.org/static/hotspot.txt=OK
// Firefox: https://detectportal.firefox.com/success.txt=success
// IANA: http://example.com/=...Example%20Domain...
var DefaultProbeURLs = []string{
	"http://nmcheck.gnome.org/check_network_status.txt=NetworkManager%20is%20online",
	"http://gstatic.com/generate_204",
	"http://example.com/=...Example%20Domain...",
}

var (
	errBadDuration = errors.New("settings: duration must be positive")
)

// Config is the probe configuration of one interface.
type Config struct {
	ProbeURLs []string
	Targets   []Target
	Interval  time.Duration
	Timeout   time.Duration
}

// Overrides are command-line settings; zero values are not applied.
type Overrides struct {
	URLs     []string
	Interval time.Duration
	Timeout  time.Duration
}

// Default returns the built-in configuration.
func Default() *Config {
	c := &Config{
		ProbeURLs: append([]string(nil), DefaultProbeURLs...),
		Interval:  DefaultInterval,
		Timeout:   DefaultTimeout,
	}
	c.Targets, _ = ParseTargets(c.ProbeURLs)
	return c
}

// Accumulate appends values to base in order, where an empty value
// discards everything accumulated so far. base is never modified.
func Accumulate(base []string, values ...string) []string {
	out := append([]string(nil), base...)
	for _, v := range values {
		if len(v) <= 0 {
			out = out[:0]
		} else {
			out = append(out, v)
		}
	}
	return out
}

// Parse reads Section from the unit-file formatted r on top of defaults.
// A ProbeURL key, if present, extends the default urls subject to the
// reset rule of Accumulate.
func Parse(r io.Reader) (*Config, error) {
	opts, err := unit.DeserializeOptions(r)
	if err != nil {
		return nil, fmt.Errorf("settings: parse: %w", err)
	}

	c := Default()
	var urls []string
	seenurl := false
	for _, o := range opts {
		if o.Section != Section {
			continue
		}
		switch {
		case strings.EqualFold(o.Name, keyProbeURL):
			seenurl = true
			urls = append(urls, o.Value)
		case strings.EqualFold(o.Name, keyInterval):
			if c.Interval, err = ParseSeconds(o.Value); err != nil {
				return nil, fmt.Errorf("settings: %s: %w", keyInterval, err)
			}
		case strings.EqualFold(o.Name, keyTimeout):
			if c.Timeout, err = ParseSeconds(o.Value); err != nil {
				return nil, fmt.Errorf("settings: %s: %w", keyTimeout, err)
			}
		default:
			log.D("settings: ignoring %s.%s", o.Section, o.Name)
		}
	}
	if seenurl {
		c.ProbeURLs = Accumulate(DefaultProbeURLs, urls...)
	}
	if err := c.resolve(); err != nil {
		return nil, err
	}
	return c, nil
}

// Load reads the configuration of ifname from networkd. A link without
// a .network file, or a missing networkctl, is an error; callers usually
// fall back to Default.
func Load(ctx context.Context, ifname string) (*Config, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, networkctl, "cat", "@"+ifname)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("settings: %s cat @%s: %w (%s)",
			networkctl, ifname, err, strings.TrimSpace(stderr.String()))
	}
	return Parse(&stdout)
}

// Override applies non-zero overrides; urls replace the list wholesale.
func (c *Config) Override(o Overrides) error {
	if o.Interval > 0 {
		c.Interval = o.Interval
	}
	if o.Timeout > 0 {
		c.Timeout = o.Timeout
	}
	if len(o.URLs) > 0 {
		c.ProbeURLs = append([]string(nil), o.URLs...)
	}
	return c.resolve()
}

func (c *Config) resolve() error {
	if len(c.ProbeURLs) <= 0 {
		log.W("settings: no probe urls left; using defaults")
		c.ProbeURLs = append([]string(nil), DefaultProbeURLs...)
	}
	t, err := ParseTargets(c.ProbeURLs)
	if err != nil {
		return err
	}
	c.Targets = t
	return nil
}

func (c *Config) String() string {
	return fmt.Sprintf("interval(%s) timeout(%s) targets(%s)",
		c.Interval, c.Timeout, strings.Join(c.ProbeURLs, " "))
}

// ParseSeconds parses a positive number of (fractional) seconds,
// or a Go duration like "1m30s".
func ParseSeconds(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	var d time.Duration
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		d = time.Duration(f * float64(time.Second))
	} else if d, err = time.ParseDuration(s); err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: %q", errBadDuration, s)
	}
	return d, nil
}
