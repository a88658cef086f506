// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package server_test

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/nub/arch"
	"golang.org/x/nub/internal/console"
	"golang.org/x/nub/internal/srccache"
	"golang.org/x/nub/program"
	"golang.org/x/nub/program/client"
	"golang.org/x/nub/program/local"
	"golang.org/x/nub/program/server"
	"golang.org/x/nub/program/wire"
	"golang.org/x/nub/socket"
)

const wf1 = `
start: {func: main, file: wf1.c, line: 3, fp: 0x7ffe0040}
memory:
  - {space: data, base: 0x1000, text: "hello, world"}
source:
  - {file: wf1.c, line: 3, col: 1}
  - {file: wf1.c, line: 8}
  - {file: lookup.c, line: 20}
events:
  - stop: break
    frames:
      - {func: getword, file: wf1.c, line: 8, fp: 0x7ffe0010}
      - {func: main, file: wf1.c, line: 3, fp: 0x7ffe0040}
  - stop: fault
    frames:
      - {func: lookup, file: lookup.c, line: 20}
`

func listen(t *testing.T) (net.Listener, string) {
	t.Helper()
	l, err := socket.Listen(0)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l, net.JoinHostPort("127.0.0.1", strconv.Itoa(l.Addr().(*net.TCPAddr).Port))
}

// runExecutor dials addr and plays the wf1 script until it exits.
func runExecutor(t *testing.T, addr string) (*local.Target, <-chan error) {
	t.Helper()
	tgt, err := local.Parse([]byte(wf1))
	require.NoError(t, err)
	ch := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		conn, err := socket.Dial(ctx, addr)
		if err != nil {
			ch <- err
			return
		}
		defer conn.Close()
		ch <- client.Run(ctx, conn, tgt, client.Options{Arch: &arch.X86, Logger: zerolog.Nop()})
	}()
	return tgt, ch
}

func waitErr(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("timed out")
		return nil
	}
}

// session records what a debugger saw while driving the wf1 script.
type session struct {
	startup  program.State
	greeting string
	frames   []string
	source   []string
	faultAt  string
	stored   int
	breaks   int
}

func (s *session) callbacks() (startup, fault program.Callback) {
	onBreak := func(nub program.Nub, st program.State) error {
		s.breaks++
		for i := 0; ; i++ {
			var f program.State
			n, err := nub.Frame(i, &f)
			if err != nil {
				return err
			}
			if n < 0 {
				break
			}
			s.frames = append(s.frames, f.FuncName())
		}
		return nil
	}
	startup = func(nub program.Nub, st program.State) error {
		s.startup = st
		buf := make([]byte, 64)
		n, err := nub.Fetch(program.SpaceData, 0x1000, buf)
		if err != nil {
			return err
		}
		s.greeting = string(buf[:n])
		if s.stored, err = nub.Store(program.SpaceData, 0x1000, []byte("J")); err != nil {
			return err
		}
		err = nub.Src(program.MakeCoord("wf1.c", 0, 0), func(i int, src program.Coord) {
			s.source = append(s.source, src.String())
		})
		if err != nil {
			return err
		}
		_, err = nub.SetBreak(program.MakeCoord("wf1.c", 8, 0), onBreak)
		return err
	}
	fault = func(nub program.Nub, st program.State) error {
		s.faultAt = st.Src.String()
		buf := make([]byte, 5)
		n, err := nub.Fetch(program.SpaceData, 0x1000, buf)
		if err != nil {
			return err
		}
		s.greeting = string(buf[:n])
		return nil
	}
	return startup, fault
}

func TestEndToEnd(t *testing.T) {
	l, addr := listen(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sess session
	startup, fault := sess.callbacks()
	served := make(chan error, 1)
	go func() {
		served <- server.Serve(ctx, l, startup, fault, server.Options{Arch: &arch.X86, Logger: zerolog.Nop()})
	}()

	tgt, done := runExecutor(t, addr)
	require.NoError(t, waitErr(t, done))
	assert.Equal(t, 1, tgt.Breakpoints())

	// The callbacks ran on the Serve goroutine.
	cancel()
	require.NoError(t, waitErr(t, served))

	assert.Equal(t, "main", sess.startup.FuncName())
	assert.Equal(t, 1, sess.stored)
	assert.Equal(t, "Jello", sess.greeting)
	assert.Equal(t, []string{"wf1.c:3:1", "wf1.c:8"}, sess.source)
	assert.Equal(t, 1, sess.breaks)
	assert.Equal(t, []string{"getword", "main"}, sess.frames)
	assert.Equal(t, "lookup.c:20", sess.faultAt)
}

func TestServeOneClientAtATime(t *testing.T) {
	l, addr := listen(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cache := new(srccache.Cache)
	sessions := make(chan struct{}, 4)
	startup := func(nub program.Nub, _ program.State) error {
		sessions <- struct{}{}
		return nub.Src(program.Coord{}, nil)
	}
	served := make(chan error, 1)
	go func() {
		served <- server.Serve(ctx, l, startup, nil, server.Options{
			Arch:   &arch.X86,
			Logger: zerolog.Nop(),
			Cache:  cache,
		})
	}()

	for i := 0; i < 2; i++ {
		_, done := runExecutor(t, addr)
		require.NoError(t, waitErr(t, done))
	}
	cancel()
	require.NoError(t, waitErr(t, served))
	assert.Len(t, sessions, 2)
	assert.Equal(t, 3, cache.Len(), "sessions share the coordinate cache")
}

func TestServeSurvivesProtocolViolation(t *testing.T) {
	l, addr := listen(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	served := make(chan error, 1)
	go func() {
		served <- server.Serve(ctx, l, nil, nil, server.Options{Arch: &arch.X86, Logger: zerolog.Nop()})
	}()

	// A confused executor opens with BREAK and is sent away.
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	c := wire.NewCodec(conn, &arch.X86, zerolog.Nop())
	require.NoError(t, c.WriteMessage(program.Break, nil))
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	op, err := c.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, program.Quit, op)

	// The next client is served normally.
	_, done := runExecutor(t, addr)
	require.NoError(t, waitErr(t, done))

	cancel()
	require.NoError(t, waitErr(t, served))
}

func TestServeQuitFromConsoleEndsOnlySession(t *testing.T) {
	l, addr := listen(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessions := 0
	startup := func(program.Nub, program.State) error {
		sessions++
		if sessions == 1 {
			return console.ErrQuit
		}
		return nil
	}
	served := make(chan error, 1)
	go func() {
		served <- server.Serve(ctx, l, startup, nil, server.Options{Arch: &arch.X86, Logger: zerolog.Nop()})
	}()

	// The first executor is told to quit.
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	c := wire.NewCodec(conn, &arch.X86, zerolog.Nop())
	require.NoError(t, c.WriteMessage(program.Startup, &wire.StateArgs{}))
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	op, err := c.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, program.Quit, op)

	// The server is still there for the next one.
	_, done := runExecutor(t, addr)
	require.NoError(t, waitErr(t, done))

	cancel()
	require.NoError(t, waitErr(t, served))
	assert.Equal(t, 2, sessions)
}

func TestServeCancelQuitsPeer(t *testing.T) {
	l, addr := listen(t)
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() {
		served <- server.Serve(ctx, l, nil, nil, server.Options{
			Arch:        &arch.X86,
			Logger:      zerolog.Nop(),
			QuitTimeout: time.Second,
		})
	}()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	c := wire.NewCodec(conn, &arch.X86, zerolog.Nop())
	require.NoError(t, c.WriteMessage(program.Startup, &wire.StateArgs{}))
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	op, err := c.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, program.Continue, op)

	cancel()
	op, err = c.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, program.Quit, op)
	require.NoError(t, waitErr(t, served))
}

func TestServeAcceptFailure(t *testing.T) {
	l, _ := listen(t)
	served := make(chan error, 1)
	go func() {
		served <- server.Serve(context.Background(), l, nil, nil, server.Options{Logger: zerolog.Nop()})
	}()
	l.Close()
	assert.Error(t, waitErr(t, served))
}
