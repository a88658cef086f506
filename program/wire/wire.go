// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package wire defines the fixed-size payloads exchanged by the two ends of
// a nub connection and the codec that moves them.
//
// Every message is a one-byte opcode followed by the payload the opcode
// implies. Payloads are packed: fields are laid out back to back, without
// alignment padding, in the byte order of the target Architecture. Int
// fields are Architecture.IntSize bytes and addresses are
// Architecture.PointerSize bytes. There is no length prefix, magic number,
// version or checksum; both ends must be built from the same definitions.
package wire

import (
	"golang.org/x/nub/arch"
	"golang.org/x/nub/program"
)

// StoreCapacity is the size of the inline buffer carried by a STORE.
const StoreCapacity = 1024

// A Payload is a fixed-size message body.
type Payload interface {
	Size(a *arch.Architecture) int
	Marshal(a *arch.Architecture, b []byte)
	Unmarshal(a *arch.Architecture, b []byte)
}

// For regularity, each payload shape has its own type even when it wraps a
// single program value.

// CoordArgs is the payload of SET, REMOVE and SRC, and the record type of
// the SRC response stream.
type CoordArgs struct {
	Coord program.Coord
}

// StateArgs is the payload of STARTUP, BREAK and FAULT.
type StateArgs struct {
	State program.State
}

// FetchArgs is the payload of FETCH. The response is an int count followed
// by that many bytes.
type FetchArgs struct {
	Space   program.Space
	Address uint64
	NBytes  int
}

// StoreArgs is the payload of STORE. The response is the int count of bytes
// written.
type StoreArgs struct {
	Space   program.Space
	Address uint64
	NBytes  int
	Buf     [StoreCapacity]byte
}

// FrameArgs is both the request and the response payload of FRAME. In a
// response, a negative N means there is no such frame.
type FrameArgs struct {
	N     int
	State program.State
}

const coordSize = 4 + program.NameSize + 2 + 2

func stateSize(a *arch.Architecture) int {
	return program.NameSize + coordSize + 2*a.PointerSize
}

func putCoord(a *arch.Architecture, b []byte, c *program.Coord) int {
	a.ByteOrder.PutUint32(b, uint32(c.Index))
	n := 4
	n += copy(b[n:], c.File[:])
	a.ByteOrder.PutUint16(b[n:], c.X)
	a.ByteOrder.PutUint16(b[n+2:], c.Y)
	return n + 4
}

func getCoord(a *arch.Architecture, b []byte, c *program.Coord) int {
	c.Index = int32(a.ByteOrder.Uint32(b))
	n := 4
	n += copy(c.File[:], b[n:n+program.NameSize])
	c.X = a.ByteOrder.Uint16(b[n:])
	c.Y = a.ByteOrder.Uint16(b[n+2:])
	return n + 4
}

func putState(a *arch.Architecture, b []byte, s *program.State) int {
	n := copy(b, s.Name[:])
	n += putCoord(a, b[n:], &s.Src)
	a.PutUintptr(b[n:], s.FP)
	n += a.PointerSize
	a.PutUintptr(b[n:], s.Context)
	return n + a.PointerSize
}

func getState(a *arch.Architecture, b []byte, s *program.State) int {
	n := copy(s.Name[:], b[:program.NameSize])
	n += getCoord(a, b[n:], &s.Src)
	s.FP = a.Uintptr(b[n:])
	n += a.PointerSize
	s.Context = a.Uintptr(b[n:])
	return n + a.PointerSize
}

func (*CoordArgs) Size(a *arch.Architecture) int { return coordSize }

func (p *CoordArgs) Marshal(a *arch.Architecture, b []byte) { putCoord(a, b, &p.Coord) }

func (p *CoordArgs) Unmarshal(a *arch.Architecture, b []byte) { getCoord(a, b, &p.Coord) }

func (*StateArgs) Size(a *arch.Architecture) int { return stateSize(a) }

func (p *StateArgs) Marshal(a *arch.Architecture, b []byte) { putState(a, b, &p.State) }

func (p *StateArgs) Unmarshal(a *arch.Architecture, b []byte) { getState(a, b, &p.State) }

func (*FetchArgs) Size(a *arch.Architecture) int {
	return 2*a.IntSize + a.PointerSize
}

func (p *FetchArgs) Marshal(a *arch.Architecture, b []byte) {
	a.PutInt(b, int64(p.Space))
	n := a.IntSize
	a.PutUintptr(b[n:], p.Address)
	n += a.PointerSize
	a.PutInt(b[n:], int64(p.NBytes))
}

func (p *FetchArgs) Unmarshal(a *arch.Architecture, b []byte) {
	p.Space = program.Space(a.Int(b))
	n := a.IntSize
	p.Address = a.Uintptr(b[n:])
	n += a.PointerSize
	p.NBytes = int(a.Int(b[n:]))
}

func (*StoreArgs) Size(a *arch.Architecture) int {
	return 2*a.IntSize + a.PointerSize + StoreCapacity
}

func (p *StoreArgs) Marshal(a *arch.Architecture, b []byte) {
	a.PutInt(b, int64(p.Space))
	n := a.IntSize
	a.PutUintptr(b[n:], p.Address)
	n += a.PointerSize
	a.PutInt(b[n:], int64(p.NBytes))
	n += a.IntSize
	copy(b[n:], p.Buf[:])
}

func (p *StoreArgs) Unmarshal(a *arch.Architecture, b []byte) {
	p.Space = program.Space(a.Int(b))
	n := a.IntSize
	p.Address = a.Uintptr(b[n:])
	n += a.PointerSize
	p.NBytes = int(a.Int(b[n:]))
	n += a.IntSize
	copy(p.Buf[:], b[n:])
}

func (*FrameArgs) Size(a *arch.Architecture) int {
	return a.IntSize + stateSize(a)
}

func (p *FrameArgs) Marshal(a *arch.Architecture, b []byte) {
	a.PutInt(b, int64(p.N))
	putState(a, b[a.IntSize:], &p.State)
}

func (p *FrameArgs) Unmarshal(a *arch.Architecture, b []byte) {
	p.N = int(a.Int(b))
	getState(a, b[a.IntSize:], &p.State)
}

// PayloadSize returns the size of the payload that follows op when op is
// sent as a request or notification.
func PayloadSize(op program.Opcode, a *arch.Architecture) int {
	switch op {
	case program.Startup, program.Break, program.Fault:
		return stateSize(a)
	case program.Set, program.Remove, program.Src:
		return coordSize
	case program.Fetch:
		return (*FetchArgs)(nil).Size(a)
	case program.Store:
		return (*StoreArgs)(nil).Size(a)
	case program.Frame:
		return (*FrameArgs)(nil).Size(a)
	}
	return 0
}
