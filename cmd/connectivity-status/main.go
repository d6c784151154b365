// Copyright (c) 2025 RethinkDNS and its authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// connectivity-status prints the state of every connectivity-monitord
// instance on the system bus, one interface per line:
//
//	IFACE  #  STATE
//	eth0   4  full
//	wlan0  2  portal
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/russdill/networkd-connectivity/intra/bus"
	"github.com/russdill/networkd-connectivity/intra/core"
	"github.com/russdill/networkd-connectivity/intra/log"
	"github.com/russdill/networkd-connectivity/intra/probe"
	"github.com/urfave/cli/v2"
)

type row struct {
	ifname string
	state  probe.State
}

func main() {
	app := &cli.App{
		Name:    "connectivity-status",
		Usage:   "Display current connectivity status per interface",
		Version: core.Version(),
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "no-header",
				Aliases: []string{"H"},
				Usage:   "suppress header row",
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
	log.SetLevel(log.WARN)

	conn, err := bus.Connect()
	if err != nil {
		return err
	}
	defer core.Close(conn)

	ctx := c.Context
	ifnames, err := bus.Publishers(ctx, conn)
	if err != nil {
		return err
	}
	rows := make([]row, 0, len(ifnames))
	for _, ifname := range ifnames {
		s, err := bus.Connectivity(ctx, conn, ifname)
		if err != nil {
			// the monitor went away between listing and reading
			log.W("status: %s: %v", ifname, err)
			continue
		}
		rows = append(rows, row{ifname, s})
	}
	render(os.Stdout, rows, !c.Bool("no-header"))
	return nil
}

func render(w io.Writer, rows []row, header bool) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	if header {
		tw.AppendHeader(table.Row{"IFACE", "#", "STATE"})
	}
	for _, r := range rows {
		tw.AppendRow(table.Row{r.ifname, uint32(r.state), r.state.String()})
	}
	tw.SetStyle(table.StyleDefault)
	tw.Style().Options = table.OptionsNoBordersAndSeparators
	tw.Style().Box.PaddingLeft = ""
	tw.Style().Box.PaddingRight = "  "
	tw.Render()
}
