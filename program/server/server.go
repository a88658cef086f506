// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package server is the debugger end of a nub connection. It performs the
// startup handshake, dispatches the executor's stop notifications to
// callbacks and implements program.Nub for the requests those callbacks
// issue.
//
// A Server has a single flow of control: Run reads from the connection, and
// the callbacks it invokes write requests and read their responses on the
// same connection before returning. Nothing is pipelined.
package server

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"golang.org/x/nub/arch"
	"golang.org/x/nub/internal/srccache"
	"golang.org/x/nub/program"
	"golang.org/x/nub/program/wire"
)

var _ program.Nub = (*Server)(nil)

// dispatchState is the position of a session in its lifecycle.
type dispatchState int

const (
	awaitingStartup dispatchState = iota
	running
	terminated
)

func (d dispatchState) String() string {
	switch d {
	case awaitingStartup:
		return "AWAITING_STARTUP"
	case running:
		return "RUNNING"
	case terminated:
		return "TERMINATED"
	}
	return fmt.Sprintf("dispatchState(%d)", int(d))
}

// Options configures a Server.
type Options struct {
	// Arch is the wire layout. Defaults to arch.AMD64.
	Arch *arch.Architecture
	// Logger receives session events; trace level logs every message.
	Logger zerolog.Logger
	// Cache holds source table records. Sharing one Cache between the
	// sessions of a process reuses its storage. Defaults to a private one.
	Cache *srccache.Cache
	// QuitTimeout bounds the QUIT sent by Close. Zero means no bound.
	QuitTimeout time.Duration
}

// Server is one nub session, bound to one connection.
type Server struct {
	conn        io.ReadWriteCloser
	codec       *wire.Codec
	log         zerolog.Logger
	srcs        *srccache.Cache
	quitTimeout time.Duration

	onBreak program.Callback

	mu     sync.Mutex
	state  dispatchState
	closed bool
}

// New returns a session on conn, waiting for the executor's STARTUP.
func New(conn io.ReadWriteCloser, opts Options) *Server {
	a := opts.Arch
	if a == nil {
		a = &arch.AMD64
	}
	srcs := opts.Cache
	if srcs == nil {
		srcs = new(srccache.Cache)
	}
	return &Server{
		conn:        conn,
		codec:       wire.NewCodec(conn, a, opts.Logger),
		log:         opts.Logger,
		srcs:        srcs,
		quitTimeout: opts.QuitTimeout,
	}
}

// Run performs the startup handshake and then dispatches stop
// notifications until the executor sends QUIT, which is the only case in
// which it returns nil. startup is called once with the initial state;
// fault is called for every FAULT. Either may be nil.
//
// Before every read after the handshake, Run sends CONTINUE: returning from
// a callback means the executor may resume.
//
// A message that is not valid in the current state yields a
// *program.ProtocolError. Any error leaves the connection unusable; the
// caller must Close the Server.
func (s *Server) Run(startup, fault program.Callback) error {
	if st := s.getState(); st != awaitingStartup {
		return fmt.Errorf("nub: Run in state %v: %w", st, program.ErrTerminated)
	}
	op, err := s.codec.ReadMessage()
	if err != nil {
		return err
	}
	if op != program.Startup {
		return s.violation(op, "expected STARTUP")
	}
	var msg wire.StateArgs
	if err := s.codec.Read(&msg); err != nil {
		return err
	}
	s.log.Debug().Stringer("state", msg.State).Msg("startup")
	if err := invoke(startup, s, msg.State); err != nil {
		return fmt.Errorf("startup callback: %w", err)
	}
	s.setState(running)

	for {
		if err := s.codec.WriteMessage(program.Continue, nil); err != nil {
			return err
		}
		op, err := s.codec.ReadMessage()
		if err != nil {
			return err
		}
		s.log.Trace().Stringer("op", op).Msg("switching")
		switch op {
		case program.Break:
			if err := s.codec.Read(&msg); err != nil {
				return err
			}
			if s.onBreak == nil {
				return s.violation(op, "no breakpoint handler registered")
			}
			s.log.Debug().Stringer("state", msg.State).Msg("break")
			if err := s.onBreak(s, msg.State); err != nil {
				return fmt.Errorf("break callback: %w", err)
			}
		case program.Fault:
			if err := s.codec.Read(&msg); err != nil {
				return err
			}
			s.log.Debug().Stringer("state", msg.State).Msg("fault")
			if err := invoke(fault, s, msg.State); err != nil {
				return fmt.Errorf("fault callback: %w", err)
			}
		case program.Quit:
			s.setState(terminated)
			s.log.Debug().Msg("executor quit")
			return nil
		default:
			return s.violation(op, "unexpected message")
		}
	}
}

func invoke(cb program.Callback, nub program.Nub, st program.State) error {
	if cb == nil {
		return nil
	}
	return cb(nub, st)
}

func (s *Server) violation(op program.Opcode, msg string) error {
	return &program.ProtocolError{State: s.getState().String(), Op: op, Msg: msg}
}

func (s *Server) getState() dispatchState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Server) setState(st dispatchState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// usable reports whether requests may still be sent.
func (s *Server) usable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.state == terminated {
		return program.ErrTerminated
	}
	return nil
}

// Close ends the session. Unless the executor already quit, it first sends
// QUIT so the executor can shut down cleanly; that send is best effort and
// bounded by Options.QuitTimeout. Close is idempotent and may be called
// from another goroutine to interrupt Run.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	quit := s.state != terminated
	s.mu.Unlock()

	if quit {
		if d, ok := s.conn.(interface{ SetWriteDeadline(time.Time) error }); ok && s.quitTimeout > 0 {
			d.SetWriteDeadline(time.Now().Add(s.quitTimeout))
		}
		if err := s.codec.WriteMessage(program.Quit, nil); err != nil {
			s.log.Debug().Err(err).Msg("QUIT not delivered")
		}
	}
	return s.conn.Close()
}
