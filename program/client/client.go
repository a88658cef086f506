// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package client is the executor end of a nub connection. It announces a
// stopped target with STARTUP and then serves the debugger's requests,
// resuming the target on every CONTINUE.
package client

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"golang.org/x/nub/arch"
	"golang.org/x/nub/program"
	"golang.org/x/nub/program/wire"
)

// Stop says why a resumed target stopped again.
type Stop int

const (
	// StopBreak means the target reached a breakpoint.
	StopBreak Stop = iota
	// StopFault means the target faulted.
	StopFault
	// StopExit means the target finished; the session ends.
	StopExit
)

func (s Stop) String() string {
	switch s {
	case StopBreak:
		return "break"
	case StopFault:
		return "fault"
	case StopExit:
		return "exit"
	}
	return fmt.Sprintf("Stop(%d)", int(s))
}

// Target is the program being debugged, as seen by the executor.
type Target interface {
	// Startup returns the state of the target before it first runs.
	Startup() program.State
	// Resume runs the target until it stops.
	Resume() (Stop, program.State)
	SetBreak(src program.Coord)
	RemoveBreak(src program.Coord)
	// Fetch copies memory into buf and returns the number of bytes copied,
	// which may be short.
	Fetch(space program.Space, address uint64, buf []byte) int
	// Store writes buf and returns the number of bytes written.
	Store(space program.Space, address uint64, buf []byte) int
	// Frame returns stack frame n, or false if there is none.
	Frame(n int) (program.State, bool)
	// Src returns the source table records matching filter. Records whose
	// line is zero are dropped, as they would end the stream.
	Src(filter program.Coord) []program.Coord
}

// MaxFetch bounds the bytes returned for a single FETCH.
const MaxFetch = 64 << 10

// Options configures Run.
type Options struct {
	// Arch is the wire layout. Defaults to arch.AMD64.
	Arch   *arch.Architecture
	Logger zerolog.Logger
}

// Run drives target over conn until the target exits, the debugger sends
// QUIT, or ctx is canceled. It returns nil in the first two cases.
func Run(ctx context.Context, conn io.ReadWriteCloser, target Target, opts Options) error {
	a := opts.Arch
	if a == nil {
		a = &arch.AMD64
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	e := &executor{
		codec:  wire.NewCodec(conn, a, opts.Logger),
		log:    opts.Logger,
		target: target,
	}
	err := e.run()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

type executor struct {
	codec  *wire.Codec
	log    zerolog.Logger
	target Target
}

func (e *executor) run() error {
	if err := e.codec.WriteMessage(program.Startup, &wire.StateArgs{State: e.target.Startup()}); err != nil {
		return err
	}
	for {
		// One message per loop.
		op, err := e.codec.ReadMessage()
		if err != nil {
			return err
		}
		switch op {
		case program.Continue:
			stop, st := e.target.Resume()
			e.log.Debug().Stringer("stop", stop).Stringer("state", st).Msg("stopped")
			switch stop {
			case StopBreak:
				err = e.codec.WriteMessage(program.Break, &wire.StateArgs{State: st})
			case StopFault:
				err = e.codec.WriteMessage(program.Fault, &wire.StateArgs{State: st})
			default:
				return e.codec.WriteMessage(program.Quit, nil)
			}
		case program.Quit:
			return nil
		case program.Set, program.Remove:
			var req wire.CoordArgs
			if err := e.codec.Read(&req); err != nil {
				return err
			}
			if op == program.Set {
				e.target.SetBreak(req.Coord)
			} else {
				e.target.RemoveBreak(req.Coord)
			}
		case program.Fetch:
			err = e.fetch()
		case program.Store:
			err = e.store()
		case program.Frame:
			err = e.frame()
		case program.Src:
			err = e.src()
		default:
			return &program.ProtocolError{State: "EXECUTOR", Op: op, Msg: "unexpected message"}
		}
		if err != nil {
			return err
		}
	}
}

func (e *executor) fetch() error {
	var req wire.FetchArgs
	if err := e.codec.Read(&req); err != nil {
		return err
	}
	// The count comes off the wire. A short answer is always allowed, so
	// large requests are answered in part.
	want := min(max(req.NBytes, 0), MaxFetch)
	buf := make([]byte, want)
	n := e.target.Fetch(req.Space, req.Address, buf)
	n = min(max(n, 0), want)
	if err := e.codec.WriteInt(n); err != nil {
		return err
	}
	return e.codec.WriteBytes(buf[:n])
}

func (e *executor) store() error {
	var req wire.StoreArgs
	if err := e.codec.Read(&req); err != nil {
		return err
	}
	if req.NBytes < 0 || req.NBytes > wire.StoreCapacity {
		return &program.ProtocolError{
			State: "EXECUTOR",
			Op:    program.Store,
			Msg:   fmt.Sprintf("byte count %d outside inline buffer", req.NBytes),
		}
	}
	n := e.target.Store(req.Space, req.Address, req.Buf[:req.NBytes])
	return e.codec.WriteInt(n)
}

func (e *executor) frame() error {
	var req wire.FrameArgs
	if err := e.codec.Read(&req); err != nil {
		return err
	}
	resp := wire.FrameArgs{N: -1}
	if req.N >= 0 {
		if st, ok := e.target.Frame(req.N); ok {
			resp = wire.FrameArgs{N: req.N, State: st}
		}
	}
	return e.codec.WritePayload(&resp)
}

func (e *executor) src() error {
	var req wire.CoordArgs
	if err := e.codec.Read(&req); err != nil {
		return err
	}
	for _, c := range e.target.Src(req.Coord) {
		if c.End() {
			continue
		}
		if err := e.codec.WritePayload(&wire.CoordArgs{Coord: c}); err != nil {
			return err
		}
	}
	return e.codec.WritePayload(&wire.CoordArgs{})
}
