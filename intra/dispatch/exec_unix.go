// Copyright (c) 2025 RethinkDNS and its authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

//go:build unix

package dispatch

import (
	"io/fs"

	"golang.org/x/sys/unix"
)

// executable asks the kernel, so that effective ids and acls count.
func executable(path string, _ fs.FileInfo) bool {
	return unix.Access(path, unix.X_OK) == nil
}
