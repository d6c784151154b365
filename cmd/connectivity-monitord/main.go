// Copyright (c) 2025 RethinkDNS and its authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// connectivity-monitord probes Internet reachability through exactly one
// interface and publishes it on the system bus as one of
// unknown, none, portal, limited or full.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/russdill/networkd-connectivity/intra/bus"
	"github.com/russdill/networkd-connectivity/intra/core"
	"github.com/russdill/networkd-connectivity/intra/lifecycle"
	"github.com/russdill/networkd-connectivity/intra/log"
	"github.com/russdill/networkd-connectivity/intra/notify"
	"github.com/russdill/networkd-connectivity/intra/probe"
	"github.com/russdill/networkd-connectivity/intra/protect"
	"github.com/russdill/networkd-connectivity/intra/settings"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:                      "connectivity-monitord",
		Usage:                     "Per-interface connectivity daemon",
		ArgsUsage:                 "IFACE",
		Version:                   core.Version(),
		Flags:                     flags(),
		DisableSliceFlagSeparator: true,
		HideHelpCommand:           true,
		Action:                    run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "interval",
			Aliases: []string{"i"},
			Usage:   "seconds between probe rounds",
		},
		&cli.StringFlag{
			Name:    "timeout",
			Aliases: []string{"t"},
			Usage:   "timeout in seconds",
		},
		&cli.StringSliceFlag{
			Name:    "url",
			Aliases: []string{"u"},
			Usage:   "probe URL[=EXPECTED]; repeat for more, replaces configured urls",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
		},
		&cli.StringFlag{
			Name:    "log-level",
			EnvVars: []string{"CONNECTIVITY_LOG_LEVEL"},
			Hidden:  true,
		},
	}
}

func overrides(c *cli.Context) (o settings.Overrides, err error) {
	o.URLs = c.StringSlice("url")
	if s := c.String("interval"); len(s) > 0 {
		if o.Interval, err = settings.ParseSeconds(s); err != nil {
			return o, fmt.Errorf("interval %q: %w", s, err)
		}
	}
	if s := c.String("timeout"); len(s) > 0 {
		if o.Timeout, err = settings.ParseSeconds(s); err != nil {
			return o, fmt.Errorf("timeout %q: %w", s, err)
		}
	}
	return o, nil
}

func run(c *cli.Context) error {
	if c.NArg() != 1 {
		_ = cli.ShowAppHelp(c)
		return cli.Exit("Error: exactly one IFACE is required", 2)
	}
	ifname := c.Args().First()

	switch {
	case c.Bool("verbose"):
		log.SetLevel(log.DEBUG)
	case c.IsSet("log-level"):
		log.SetLevel(log.ParseLevel(c.String("log-level")))
	}

	ov, err := overrides(c)
	if err != nil {
		return cli.Exit("Error: "+err.Error(), 2)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := settings.Load(ctx, ifname)
	if err != nil {
		log.W("monitord: %s: %v; using defaults", ifname, err)
		cfg = settings.Default()
	}
	if err := cfg.Override(ov); err != nil {
		return cli.Exit("Error: "+err.Error(), 2)
	}
	log.I("monitord: %s: %s", ifname, cfg)

	binder := protect.NewBinder(ifname)
	if err := checkBinder(ifname, binder.Check()); err != nil {
		return err
	}

	conn, err := bus.Connect()
	if err != nil {
		return err
	}
	defer core.Close(conn)

	pub := bus.NewPublisher(ifname)
	if err := pub.Export(conn); err != nil {
		return err
	}

	link, err := bus.LinkByName(ctx, conn, ifname)
	if err != nil {
		return err
	}

	ctl := lifecycle.New(
		lifecycle.Session{Ifname: ifname, Config: cfg},
		link,
		probe.NewEngine(binder, cfg.Timeout),
		pub,
		lifecycle.WithNotifier(notify.Systemd),
	)
	err = ctl.Run(ctx)
	if err == nil || errors.Is(err, context.Canceled) {
		log.I("monitord: %s: bye", ifname)
		return nil
	}
	return err
}

// checkBinder turns the startup bind check into an exit error; a missing
// device is only a warning since the link may come up later.
func checkBinder(ifname string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, protect.ErrNoDevice):
		log.W("monitord: %v; probes fail until it appears", err)
		return nil
	default:
		return cli.Exit(fmt.Sprintf("Error: Failed to bind to interface '%s': %v\n"+
			"       (Is the process running as root/CAP_NET_RAW?)", ifname, err), 1)
	}
}
