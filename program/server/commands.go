// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server

import (
	"fmt"

	"golang.org/x/nub/program"
	"golang.org/x/nub/program/wire"
)

// SetBreak implements program.Nub. The handler is registered before the
// request is sent, so it is in place even if the send fails.
func (s *Server) SetBreak(src program.Coord, onBreak program.Callback) (program.Callback, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}
	prev := s.onBreak
	s.onBreak = onBreak
	return prev, s.codec.WriteMessage(program.Set, &wire.CoordArgs{Coord: src})
}

// RemoveBreak implements program.Nub. The registered handler is left in
// place: other breakpoints may still be set and share it.
func (s *Server) RemoveBreak(src program.Coord) (program.Callback, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}
	return s.onBreak, s.codec.WriteMessage(program.Remove, &wire.CoordArgs{Coord: src})
}

// Fetch implements program.Nub.
func (s *Server) Fetch(space program.Space, address uint64, buf []byte) (int, error) {
	if err := s.usable(); err != nil {
		return 0, err
	}
	if int64(len(buf)) > s.codec.Arch().MaxInt() {
		return 0, fmt.Errorf("%w: fetch of %d bytes", program.ErrInvalidArgument, len(buf))
	}
	req := &wire.FetchArgs{
		Space:   space,
		Address: address,
		NBytes:  len(buf),
	}
	if err := s.codec.WriteMessage(program.Fetch, req); err != nil {
		return 0, err
	}
	n, err := s.codec.ReadInt()
	if err != nil {
		return 0, err
	}
	if n < 0 || n > len(buf) {
		return 0, &program.ProtocolError{
			State: "FETCH",
			Msg:   fmt.Sprintf("executor returned %d bytes for a %d byte request", n, len(buf)),
		}
	}
	data, err := s.codec.ReadPayload(n)
	if err != nil {
		return 0, err
	}
	return copy(buf, data), nil
}

// Store implements program.Nub. A buffer larger than wire.StoreCapacity
// is rejected with program.ErrInvalidArgument before anything is sent.
func (s *Server) Store(space program.Space, address uint64, buf []byte) (int, error) {
	if len(buf) > wire.StoreCapacity {
		return 0, fmt.Errorf("%w: store of %d bytes exceeds the %d byte inline buffer",
			program.ErrInvalidArgument, len(buf), wire.StoreCapacity)
	}
	if err := s.usable(); err != nil {
		return 0, err
	}
	req := &wire.StoreArgs{
		Space:   space,
		Address: address,
		NBytes:  len(buf),
	}
	copy(req.Buf[:], buf)
	if err := s.codec.WriteMessage(program.Store, req); err != nil {
		return 0, err
	}
	n, err := s.codec.ReadInt()
	if err != nil {
		return 0, err
	}
	if n < 0 || n > len(buf) {
		return 0, &program.ProtocolError{
			State: "STORE",
			Msg:   fmt.Sprintf("executor wrote %d bytes of %d", n, len(buf)),
		}
	}
	return n, nil
}

// Frame implements program.Nub.
func (s *Server) Frame(n int, state *program.State) (int, error) {
	if err := s.usable(); err != nil {
		return 0, err
	}
	if limit := s.codec.Arch().MaxInt(); int64(n) > limit || int64(n) < -limit-1 {
		return 0, fmt.Errorf("%w: frame %d does not fit the wire int", program.ErrInvalidArgument, n)
	}
	req := &wire.FrameArgs{N: n}
	if err := s.codec.WriteMessage(program.Frame, req); err != nil {
		return 0, err
	}
	var resp wire.FrameArgs
	if err := s.codec.Read(&resp); err != nil {
		return 0, err
	}
	if resp.N >= 0 && state != nil {
		*state = resp.State
	}
	return resp.N, nil
}

// Src implements program.Nub. Records are stored in the session's
// coordinate cache, overwriting earlier answers from index 0, and visit
// sees exactly the records of this answer.
func (s *Server) Src(filter program.Coord, visit func(i int, src program.Coord)) error {
	if err := s.usable(); err != nil {
		return err
	}
	if err := s.codec.WriteMessage(program.Src, &wire.CoordArgs{Coord: filter}); err != nil {
		return err
	}
	n := 0
	for {
		var rec wire.CoordArgs
		if err := s.codec.Read(&rec); err != nil {
			return err
		}
		if rec.Coord.End() {
			break
		}
		s.srcs.Set(n, rec.Coord)
		n++
	}
	s.log.Debug().Int("records", n).Int("cached", s.srcs.Len()).Msg("source table")
	if visit != nil {
		s.srcs.Visit(n, visit)
	}
	return nil
}
