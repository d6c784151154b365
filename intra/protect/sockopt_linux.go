// Copyright (c) 2024 RethinkDNS and its authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build linux

package protect

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// bindToDevice sets SO_BINDTODEVICE on fd.
func bindToDevice(fd int, ifname string) error {
	return unix.BindToDevice(fd, ifname)
}

func checkBind(ifname string) error {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return err
	}
	defer unix.Close(fd)

	return bindToDevice(fd, ifname)
}

func classify(ifname string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, unix.EPERM), errors.Is(err, unix.EACCES):
		return fmt.Errorf("%w %s: %w", ErrPermission, ifname, err)
	case errors.Is(err, unix.ENODEV):
		return fmt.Errorf("%w %s: %w", ErrNoDevice, ifname, err)
	default:
		return fmt.Errorf("protect: bind to %s: %w", ifname, err)
	}
}
