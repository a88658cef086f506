// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package program provides the portable interface to a program being
// debugged through a nub: the types exchanged with the remote executor and
// the operations a debugger front-end may issue while the target is stopped.
package program

import (
	"bytes"
	"errors"
	"fmt"
)

// Opcode identifies a nub message. Exactly one opcode precedes every
// payload, and the payload size is implied by the opcode.
type Opcode uint8

const (
	Startup Opcode = iota + 1
	Continue
	Quit
	Set
	Remove
	Fetch
	Store
	Frame
	Src
	Break
	Fault
)

var opcodeNames = [...]string{
	Startup:  "STARTUP",
	Continue: "CONTINUE",
	Quit:     "QUIT",
	Set:      "SET",
	Remove:   "REMOVE",
	Fetch:    "FETCH",
	Store:    "STORE",
	Frame:    "FRAME",
	Src:      "SRC",
	Break:    "BREAK",
	Fault:    "FAULT",
}

func (op Opcode) String() string {
	if op.Valid() {
		return opcodeNames[op]
	}
	return fmt.Sprintf("Opcode(%d)", uint8(op))
}

// Valid reports whether op is a known opcode.
func (op Opcode) Valid() bool {
	return op >= Startup && op <= Fault
}

// Space selects the address space a fetch or store applies to.
type Space int

const (
	SpaceText Space = iota
	SpaceData
	SpaceRegister
)

func (s Space) String() string {
	switch s {
	case SpaceText:
		return "text"
	case SpaceData:
		return "data"
	case SpaceRegister:
		return "reg"
	}
	return fmt.Sprintf("space%d", int(s))
}

// ParseSpace parses the names produced by Space.String, or a decimal number.
func ParseSpace(s string) (Space, error) {
	switch s {
	case "text", "code":
		return SpaceText, nil
	case "data":
		return SpaceData, nil
	case "reg", "register":
		return SpaceRegister, nil
	}
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return 0, fmt.Errorf("bad address space %q", s)
	}
	return Space(n), nil
}

// NameSize is the fixed size of the file and function name fields.
const NameSize = 32

// Coord identifies a source location. It is used as a breakpoint key and
// as the record type of the source table. A Coord whose line (Y) is zero
// terminates a source table stream.
type Coord struct {
	Index int32
	File  [NameSize]byte
	X     uint16 // Column, or a flag.
	Y     uint16 // Line.
}

// MaxLine is the largest line or column a Coord can carry.
const MaxLine = 0xffff

// NewCoord returns the Coord for file:line:col, checking that line and col
// fit the 16-bit wire fields. Line 0 is refused: it would read as the end of
// a source table. File names longer than NameSize bytes are truncated.
func NewCoord(file string, line, col int) (Coord, error) {
	if line < 1 || line > MaxLine {
		return Coord{}, fmt.Errorf("%w: line %d outside 1..%d", ErrInvalidArgument, line, MaxLine)
	}
	if col < 0 || col > MaxLine {
		return Coord{}, fmt.Errorf("%w: column %d outside 0..%d", ErrInvalidArgument, col, MaxLine)
	}
	return MakeCoord(file, line, col), nil
}

// MakeCoord is like NewCoord for values known to be valid, except that line
// may be 0, as in a source table filter. It panics if line or col does not
// fit in 16 bits.
func MakeCoord(file string, line, col int) Coord {
	if line < 0 || line > MaxLine || col < 0 || col > MaxLine {
		panic(fmt.Sprintf("program: coordinate %s:%d:%d out of range", file, line, col))
	}
	var c Coord
	copy(c.File[:], file)
	c.Y = uint16(line)
	c.X = uint16(col)
	return c
}

// End reports whether c is the source table terminator.
func (c Coord) End() bool {
	return c.Y == 0
}

// FileName returns the file name without its NUL padding.
func (c Coord) FileName() string {
	return cstring(c.File[:])
}

func (c Coord) String() string {
	if c.X != 0 {
		return fmt.Sprintf("%s:%d:%d", c.FileName(), c.Y, c.X)
	}
	return fmt.Sprintf("%s:%d", c.FileName(), c.Y)
}

// State is a snapshot of the executor at a stop point. It is passed by
// value; the receiver owns its copy.
type State struct {
	Name    [NameSize]byte // Function name.
	Src     Coord
	FP      uint64 // Frame pointer.
	Context uint64
}

// FuncName returns the function name without its NUL padding.
func (s State) FuncName() string {
	return cstring(s.Name[:])
}

func (s State) String() string {
	return fmt.Sprintf("%s at %v fp=%#x", s.FuncName(), s.Src, s.FP)
}

func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// Callback is invoked by the dispatcher when the executor stops. It runs on
// the dispatcher's flow of control and may issue Nub operations, but every
// nested request must complete before it returns: returning lets the
// executor continue. A non-nil error ends the session.
type Callback func(nub Nub, state State) error

// Nub is the set of operations a front-end may issue while the executor is
// stopped, that is, from inside a Callback.
type Nub interface {
	// SetBreak asks the executor to stop at src and makes onBreak the
	// handler for every subsequent BREAK. Only one handler is registered at
	// a time; the previous one is returned so the caller can chain or
	// restore it.
	SetBreak(src Coord, onBreak Callback) (Callback, error)

	// RemoveBreak asks the executor to stop no longer at src. It returns the
	// registered handler, which stays registered.
	RemoveBreak(src Coord) (Callback, error)

	// Fetch reads up to len(buf) bytes at address in space. The executor may
	// return fewer; the returned count is authoritative.
	Fetch(space Space, address uint64, buf []byte) (int, error)

	// Store writes buf at address in space and returns the number of bytes
	// the executor wrote. buf may not exceed the inline store capacity.
	Store(space Space, address uint64, buf []byte) (int, error)

	// Frame fetches stack frame n, 0 being the innermost. It returns the
	// index echoed by the executor; a negative value means there is no
	// such frame and state is left untouched.
	Frame(n int, state *State) (int, error)

	// Src asks for the source table matching filter and calls visit once
	// per record, in order.
	Src(filter Coord, visit func(i int, src Coord)) error
}

var (
	// ErrInvalidArgument reports a precondition failure detected before
	// anything was sent.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrTerminated reports use of a session after the executor quit.
	ErrTerminated = errors.New("session terminated")
)

// ProtocolError reports a message that is not valid in the current
// dispatcher state. There is no way to resynchronize a fixed-size framed
// stream, so the session that produced it must be torn down.
type ProtocolError struct {
	State string // Dispatcher state or operation in progress.
	Op    Opcode // Offending opcode, if any.
	Msg   string
}

func (e *ProtocolError) Error() string {
	if e.Op != 0 {
		return fmt.Sprintf("nub protocol violation in %s: %s: %s", e.State, e.Op, e.Msg)
	}
	return fmt.Sprintf("nub protocol violation in %s: %s", e.State, e.Msg)
}

// IsProtocolError reports whether err is or wraps a *ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
