// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wire

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"golang.org/x/nub/arch"
	"golang.org/x/nub/program"
)

// TransportError reports a failed read or write on the connection. The
// stream has no resynchronization point, so the connection is unusable
// afterwards.
type TransportError struct {
	Op   string // "read" or "write".
	What string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("nub: %s %s: %v", e.Op, e.What, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransportError reports whether err is or wraps a *TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// Codec reads and writes nub messages on a stream. Reads are expected to
// come from a single flow of control. Writes are serialized so that a
// message sent during teardown never interleaves with another.
type Codec struct {
	r    io.Reader
	w    io.Writer
	arch *arch.Architecture
	log  zerolog.Logger

	wmu sync.Mutex
}

// NewCodec returns a Codec on rw using the layout of a.
func NewCodec(rw io.ReadWriter, a *arch.Architecture, log zerolog.Logger) *Codec {
	return &Codec{
		r:    rw,
		w:    rw,
		arch: a,
		log:  log,
	}
}

// Arch returns the architecture the codec encodes for.
func (c *Codec) Arch() *arch.Architecture {
	return c.arch
}

// WriteMessage writes op followed by the encoding of p. p may be nil for
// opcodes without a payload.
func (c *Codec) WriteMessage(op program.Opcode, p Payload) error {
	size := 0
	if p != nil {
		size = p.Size(c.arch)
	}
	buf := make([]byte, 1+size)
	buf[0] = byte(op)
	if p != nil {
		p.Marshal(c.arch, buf[1:])
	}
	c.log.Trace().Stringer("op", op).Int("bytes", size).Msg("sending")
	return c.write(buf, op.String())
}

// WritePayload writes the encoding of p without an opcode, as used by
// responses.
func (c *Codec) WritePayload(p Payload) error {
	buf := make([]byte, p.Size(c.arch))
	p.Marshal(c.arch, buf)
	c.log.Trace().Int("bytes", len(buf)).Msg("sending")
	return c.write(buf, fmt.Sprintf("%T", p))
}

// WriteInt writes a single int field, as used by the FETCH and STORE
// responses.
func (c *Codec) WriteInt(v int) error {
	buf := make([]byte, c.arch.IntSize)
	c.arch.PutInt(buf, int64(v))
	c.log.Trace().Int("value", v).Int("bytes", len(buf)).Msg("sending")
	return c.write(buf, "int")
}

// WriteBytes writes b as is.
func (c *Codec) WriteBytes(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	c.log.Trace().Int("bytes", len(b)).Msg("sending")
	return c.write(b, "bytes")
}

func (c *Codec) write(b []byte, what string) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := c.w.Write(b); err != nil {
		return &TransportError{Op: "write", What: what, Err: err}
	}
	return nil
}

// ReadMessage reads one opcode.
func (c *Codec) ReadMessage() (program.Opcode, error) {
	var b [1]byte
	if _, err := io.ReadFull(c.r, b[:]); err != nil {
		return 0, &TransportError{Op: "read", What: "opcode", Err: err}
	}
	op := program.Opcode(b[0])
	c.log.Trace().Stringer("op", op).Msg("received")
	return op, nil
}

// ReadPayload reads exactly n bytes.
func (c *Codec) ReadPayload(n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := c.readFull(buf, "payload"); err != nil {
		return nil, err
	}
	return buf, nil
}

// Read reads and decodes one fixed-size payload into p.
func (c *Codec) Read(p Payload) error {
	buf := make([]byte, p.Size(c.arch))
	if err := c.readFull(buf, fmt.Sprintf("%T", p)); err != nil {
		return err
	}
	p.Unmarshal(c.arch, buf)
	return nil
}

// ReadInt reads a single int field.
func (c *Codec) ReadInt() (int, error) {
	buf := make([]byte, c.arch.IntSize)
	if err := c.readFull(buf, "int"); err != nil {
		return 0, err
	}
	return int(c.arch.Int(buf)), nil
}

func (c *Codec) readFull(buf []byte, what string) error {
	if len(buf) == 0 {
		return nil
	}
	if _, err := io.ReadFull(c.r, buf); err != nil {
		if err == io.EOF {
			// The peer went away between the opcode and its payload.
			err = io.ErrUnexpectedEOF
		}
		return &TransportError{Op: "read", What: what, Err: err}
	}
	c.log.Trace().Int("bytes", len(buf)).Msg("received")
	return nil
}
