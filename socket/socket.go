// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package socket provides the TCP endpoints a nub front-end and its
// executor use to find each other.
package socket

import (
	"context"
	"fmt"
	"net"
	"strconv"
)

// Listen binds all interfaces on the given port. Port 0 picks a free port;
// the chosen address is available from the listener.
func Listen(port int) (net.Listener, error) {
	return ListenContext(context.Background(), port)
}

// ListenContext is like Listen but takes a context for the bind.
func ListenContext(ctx context.Context, port int) (net.Listener, error) {
	if port < 0 || port > 65535 {
		return nil, fmt.Errorf("socket: port %d out of range", port)
	}
	lc := net.ListenConfig{Control: control}
	l, err := lc.Listen(ctx, "tcp4", net.JoinHostPort("0.0.0.0", strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("socket: listen on port %d: %w", port, err)
	}
	return l, nil
}

// Dial connects to the nub listening at addr. A bare port number means
// the local host.
func Dial(ctx context.Context, addr string) (net.Conn, error) {
	if _, err := strconv.Atoi(addr); err == nil {
		addr = net.JoinHostPort("127.0.0.1", addr)
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("socket: dial %s: %w", addr, err)
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		// Messages are small and strictly alternating.
		tc.SetNoDelay(true)
	}
	return conn, nil
}
