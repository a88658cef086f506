// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server

import (
	"context"
	"fmt"
	"net"
	"sync"

	"golang.org/x/nub/internal/srccache"
	"golang.org/x/nub/program"
	"golang.org/x/nub/program/wire"
)

// Serve answers consecutive connections on l and runs a session on each.
// The session runs in the calling goroutine, so a new connection is not
// accepted until the previous one is finished. A session that fails is
// logged and closed; the loop goes on to the next client.
//
// All sessions share opts.Cache (a new one if nil).
//
// Serve returns nil when ctx is canceled: the listener is closed and the
// live session, if any, is sent QUIT and closed. It returns an error if
// Accept fails for any other reason.
func Serve(ctx context.Context, l net.Listener, startup, fault program.Callback, opts Options) error {
	if opts.Cache == nil {
		opts.Cache = new(srccache.Cache)
	}
	log := opts.Logger

	var (
		mu     sync.Mutex
		active *Server
	)
	stop := context.AfterFunc(ctx, func() {
		l.Close()
		mu.Lock()
		defer mu.Unlock()
		if active != nil {
			active.Close()
		}
	})
	defer stop()

	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		peer := conn.RemoteAddr().String()
		log.Info().Str("peer", peer).Msg("now serving")

		sopts := opts
		sopts.Logger = log.With().Str("peer", peer).Logger()
		s := New(conn, sopts)
		mu.Lock()
		if ctx.Err() != nil {
			mu.Unlock()
			s.Close()
			return nil
		}
		active = s
		mu.Unlock()

		err = s.Run(startup, fault)

		mu.Lock()
		active = nil
		mu.Unlock()
		if cerr := s.Close(); cerr != nil {
			sopts.Logger.Warn().Err(cerr).Msg("close failed")
		}

		switch {
		case err == nil:
			log.Info().Str("peer", peer).Msg("disconnected")
		case program.IsProtocolError(err):
			log.Error().Err(err).Str("peer", peer).Msg("session aborted")
		case wire.IsTransportError(err):
			log.Warn().Err(err).Str("peer", peer).Msg("connection lost")
		default:
			log.Error().Err(err).Str("peer", peer).Msg("session failed")
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}
