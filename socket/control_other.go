// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !unix

package socket

import "syscall"

// TODO: Windows support for SO_REUSEADDR via golang.org/x/sys/windows.
func control(network, address string, c syscall.RawConn) error {
	return nil
}
