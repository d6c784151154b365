// Copyright (c) 2025 RethinkDNS and its authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// connectivity-dispatcher runs hooks whenever a connectivity-monitord
// instance changes state. Within each root, hooks live in <state>.d/,
// e.g. full.d/00-refresh, portal.d/20-alert, none.d/90-backoff, and run
// in ascending name order with IFACE and STATE in their environment.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/russdill/networkd-connectivity/intra/bus"
	"github.com/russdill/networkd-connectivity/intra/core"
	"github.com/russdill/networkd-connectivity/intra/dispatch"
	"github.com/russdill/networkd-connectivity/intra/log"
	"github.com/russdill/networkd-connectivity/intra/notify"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:    "connectivity-dispatcher",
		Usage:   "connectivity hook dispatcher",
		Version: core.Version(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "script-dir",
				Aliases: []string{"S"},
				Value:   dispatch.DefaultPath,
				Usage:   "colon-separated list of hook roots",
			},
			&cli.BoolFlag{
				Name:    "run-startup-triggers",
				Aliases: []string{"T"},
				Usage:   "invoke hooks once for the current state on start",
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
		},
		HideHelpCommand: true,
		Action:          run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	switch {
	case c.Bool("verbose"):
		log.SetLevel(log.DEBUG)
	case c.IsSet("log-level"):
		log.SetLevel(log.ParseLevel(c.String("log-level")))
	}

	roots := dispatch.SplitPath(c.String("script-dir"))
	log.I("dispatcher: hook search path: %s", strings.Join(roots, ":"))

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := bus.Connect()
	if err != nil {
		return err
	}
	defer core.Close(conn)

	d := dispatch.New(
		dispatch.NewBusSource(conn),
		dispatch.NewRunner(roots),
		c.Bool("run-startup-triggers"),
		dispatch.WithNotifier(notify.Systemd),
	)
	return d.Run(ctx)
}
