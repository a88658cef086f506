// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package console is a line-oriented front end for a nub session. It
// supplies the startup, fault and break callbacks; when the executor stops
// it prints where and, if it has a line reader, takes commands until told
// to continue.
package console

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/rs/zerolog"

	"golang.org/x/nub/program"
)

// maxFetch bounds the x command.
const maxFetch = 4096

// LineReader supplies command lines. *readline.Instance implements it.
type LineReader interface {
	Readline() (string, error)
}

// ErrQuit is returned from a callback when the user asks to quit. It ends
// the current session; the server goes on to the next executor.
var ErrQuit = errors.New("quit requested")

// Console implements the session owner callbacks.
type Console struct {
	out io.Writer
	in  LineReader
	log zerolog.Logger
}

// New returns a Console writing to out. If in is nil the console only logs
// each stop and lets the executor continue.
func New(out io.Writer, in LineReader, log zerolog.Logger) *Console {
	return &Console{out: out, in: in, log: log}
}

// Startup is the callback for the executor's first stop.
func (c *Console) Startup(nub program.Nub, st program.State) error {
	return c.stopped(nub, "startup", st)
}

// Fault is the callback for FAULT.
func (c *Console) Fault(nub program.Nub, st program.State) error {
	return c.stopped(nub, "fault", st)
}

// Break is the handler registered by the b command.
func (c *Console) Break(nub program.Nub, st program.State) error {
	return c.stopped(nub, "break", st)
}

func (c *Console) stopped(nub program.Nub, event string, st program.State) error {
	c.log.Info().Str("event", event).Stringer("state", st).Msg("executor stopped")
	if c.in == nil {
		return nil
	}
	fmt.Fprintf(c.out, "%s: %v\n", event, st)
	for {
		line, err := c.in.Readline()
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			continue
		case errors.Is(err, io.EOF):
			// No more input: keep going without stopping again.
			c.in = nil
			return nil
		case err != nil:
			return fmt.Errorf("console: %w", err)
		}
		resume, err := c.exec(nub, line)
		if err != nil {
			return err
		}
		if resume {
			return nil
		}
	}
}

// exec runs one command line. Mistakes in the command are reported to the
// user; only errors from the session itself are returned.
func (c *Console) exec(nub program.Nub, line string) (resume bool, err error) {
	f := strings.Fields(line)
	if len(f) == 0 {
		return false, nil
	}
	cmd, args := f[0], f[1:]
	switch cmd {
	case "c", "continue":
		return true, nil
	case "q", "quit":
		return false, ErrQuit
	case "help", "h", "?":
		fmt.Fprint(c.out, help)
		return false, nil
	case "where", "bt":
		return false, c.where(nub)
	case "frame", "f":
		return false, c.frame(nub, args)
	case "x":
		return false, c.examine(nub, args)
	case "w":
		return false, c.write(nub, args)
	case "b", "break":
		return false, c.setBreak(nub, args)
	case "d", "delete":
		return false, c.removeBreak(nub, args)
	case "src":
		return false, c.src(nub, args)
	}
	fmt.Fprintf(c.out, "unknown command %q; try help\n", cmd)
	return false, nil
}

const help = `commands:
  c, continue             resume the executor
  where                   print the stack
  frame N                 print frame N
  x SPACE ADDR N          dump N bytes at ADDR
  w SPACE ADDR HEX        store bytes at ADDR
  b FILE:LINE[:COL]       set a breakpoint
  d FILE:LINE[:COL]       remove a breakpoint
  src [FILE]              list the source table
  q, quit                 end this session
spaces are text, data and reg.
`

type usageError string

func (e usageError) Error() string { return "usage: " + string(e) }

// report prints user mistakes and caller precondition failures and
// passes everything else through.
func (c *Console) report(err error) error {
	var u usageError
	if errors.As(err, &u) || errors.Is(err, program.ErrInvalidArgument) {
		fmt.Fprintln(c.out, err)
		return nil
	}
	return err
}

func (c *Console) where(nub program.Nub) error {
	for i := 0; ; i++ {
		var st program.State
		n, err := nub.Frame(i, &st)
		if err != nil {
			return err
		}
		if n < 0 {
			return nil
		}
		fmt.Fprintf(c.out, "#%d %v\n", i, st)
	}
}

func (c *Console) frame(nub program.Nub, args []string) error {
	if len(args) != 1 {
		return c.report(usageError("frame N"))
	}
	i, err := strconv.Atoi(args[0])
	if err != nil || i < 0 {
		return c.report(usageError("frame N"))
	}
	var st program.State
	n, err := nub.Frame(i, &st)
	if err != nil {
		return err
	}
	if n < 0 {
		fmt.Fprintf(c.out, "no frame %d\n", i)
		return nil
	}
	fmt.Fprintf(c.out, "#%d %v\n", n, st)
	return nil
}

func parseAddr(space, addr string) (program.Space, uint64, error) {
	sp, err := program.ParseSpace(space)
	if err != nil {
		return 0, 0, usageError("SPACE is text, data or reg")
	}
	a, err := strconv.ParseUint(addr, 0, 64)
	if err != nil {
		return 0, 0, usageError("ADDR is a number, like 0x1000")
	}
	return sp, a, nil
}

func (c *Console) examine(nub program.Nub, args []string) error {
	if len(args) != 3 {
		return c.report(usageError("x SPACE ADDR N"))
	}
	space, addr, err := parseAddr(args[0], args[1])
	if err != nil {
		return c.report(err)
	}
	n, err := strconv.Atoi(args[2])
	if err != nil || n <= 0 || n > maxFetch {
		return c.report(usageError(fmt.Sprintf("x SPACE ADDR N, 0 < N <= %d", maxFetch)))
	}
	buf := make([]byte, n)
	got, err := nub.Fetch(space, addr, buf)
	if err != nil {
		return c.report(err)
	}
	if got == 0 {
		fmt.Fprintf(c.out, "%#x: no data\n", addr)
		return nil
	}
	dump(c.out, addr, buf[:got])
	return nil
}

// dump prints b as lines of 16 hex bytes labeled with their address.
func dump(w io.Writer, addr uint64, b []byte) {
	for len(b) > 0 {
		n := min(len(b), 16)
		fmt.Fprintf(w, "%#x: % x\n", addr, b[:n])
		addr += uint64(n)
		b = b[n:]
	}
}

func (c *Console) write(nub program.Nub, args []string) error {
	if len(args) != 3 {
		return c.report(usageError("w SPACE ADDR HEX"))
	}
	space, addr, err := parseAddr(args[0], args[1])
	if err != nil {
		return c.report(err)
	}
	data, err := hex.DecodeString(args[2])
	if err != nil || len(data) == 0 {
		return c.report(usageError("w SPACE ADDR HEX"))
	}
	n, err := nub.Store(space, addr, data)
	if err != nil {
		return c.report(err)
	}
	fmt.Fprintf(c.out, "wrote %d of %d bytes\n", n, len(data))
	return nil
}

// parseCoord parses FILE:LINE or FILE:LINE:COL.
func parseCoord(s string) (program.Coord, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" {
		return program.Coord{}, usageError("FILE:LINE[:COL]")
	}
	line, err := strconv.Atoi(parts[1])
	if err != nil || line <= 0 || line > 0xffff {
		return program.Coord{}, usageError(fmt.Sprintf("bad line %q", parts[1]))
	}
	col := 0
	if len(parts) == 3 {
		col, err = strconv.Atoi(parts[2])
		if err != nil || col < 0 || col > 0xffff {
			return program.Coord{}, usageError(fmt.Sprintf("bad column %q", parts[2]))
		}
	}
	return program.MakeCoord(parts[0], line, col), nil
}

func (c *Console) setBreak(nub program.Nub, args []string) error {
	if len(args) != 1 {
		return c.report(usageError("b FILE:LINE[:COL]"))
	}
	at, err := parseCoord(args[0])
	if err != nil {
		return c.report(err)
	}
	if _, err := nub.SetBreak(at, c.Break); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "breakpoint at %v\n", at)
	return nil
}

func (c *Console) removeBreak(nub program.Nub, args []string) error {
	if len(args) != 1 {
		return c.report(usageError("d FILE:LINE[:COL]"))
	}
	at, err := parseCoord(args[0])
	if err != nil {
		return c.report(err)
	}
	if _, err := nub.RemoveBreak(at); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "removed breakpoint at %v\n", at)
	return nil
}

func (c *Console) src(nub program.Nub, args []string) error {
	var filter program.Coord
	switch len(args) {
	case 0:
	case 1:
		filter = program.MakeCoord(args[0], 0, 0)
	default:
		return c.report(usageError("src [FILE]"))
	}
	return nub.Src(filter, func(i int, at program.Coord) {
		fmt.Fprintf(c.out, "%d\t%v\n", i, at)
	})
}
