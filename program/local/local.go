// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package local provides a scripted, in-memory program for an executor to
// debug. It has memory segments, a source table and a list of events that
// play out as the program is resumed. A break event only stops the program
// if a breakpoint is set at its location; a fault event always stops it;
// running out of events ends it.
package local

import (
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"golang.org/x/nub/program"
	"golang.org/x/nub/program/client"
)

var _ client.Target = (*Target)(nil)

// Segment is a contiguous piece of one address space.
type Segment struct {
	Space program.Space
	Base  uint64
	Data  []byte
}

func (s *Segment) contains(space program.Space, addr uint64) bool {
	return s.Space == space && s.Base <= addr && addr-s.Base < uint64(len(s.Data))
}

// Event is one stop the program may make.
type Event struct {
	Stop   client.Stop
	Frames []program.State // Frames[0] is the state at the stop.
}

type bpKey struct {
	file string
	line uint16
}

func keyOf(c program.Coord) bpKey {
	return bpKey{c.FileName(), c.Y}
}

// Target implements client.Target.
type Target struct {
	Start    program.State
	Segments []*Segment
	Source   []program.Coord
	Events   []Event

	next        int
	frames      []program.State
	breakpoints map[bpKey]bool
}

// Startup implements client.Target.
func (t *Target) Startup() program.State {
	t.frames = []program.State{t.Start}
	return t.Start
}

// Resume implements client.Target.
func (t *Target) Resume() (client.Stop, program.State) {
	for t.next < len(t.Events) {
		ev := t.Events[t.next]
		t.next++
		var st program.State
		if len(ev.Frames) > 0 {
			st = ev.Frames[0]
		}
		if ev.Stop == client.StopBreak && !t.breakpoints[keyOf(st.Src)] {
			continue
		}
		if ev.Stop == client.StopExit {
			break
		}
		t.frames = ev.Frames
		return ev.Stop, st
	}
	t.next = len(t.Events)
	t.frames = nil
	return client.StopExit, program.State{}
}

// SetBreak implements client.Target.
func (t *Target) SetBreak(src program.Coord) {
	if t.breakpoints == nil {
		t.breakpoints = make(map[bpKey]bool)
	}
	t.breakpoints[keyOf(src)] = true
}

// RemoveBreak implements client.Target.
func (t *Target) RemoveBreak(src program.Coord) {
	delete(t.breakpoints, keyOf(src))
}

// Breakpoints returns the number of breakpoints set.
func (t *Target) Breakpoints() int {
	return len(t.breakpoints)
}

func (t *Target) segment(space program.Space, addr uint64) *Segment {
	for _, s := range t.Segments {
		if s.contains(space, addr) {
			return s
		}
	}
	return nil
}

// Fetch implements client.Target. The read stops at the end of the
// segment holding address; an unmapped address reads nothing.
func (t *Target) Fetch(space program.Space, address uint64, buf []byte) int {
	s := t.segment(space, address)
	if s == nil {
		return 0
	}
	return copy(buf, s.Data[address-s.Base:])
}

// Store implements client.Target, with the same bounds as Fetch.
func (t *Target) Store(space program.Space, address uint64, buf []byte) int {
	s := t.segment(space, address)
	if s == nil {
		return 0
	}
	return copy(s.Data[address-s.Base:], buf)
}

// Frame implements client.Target.
func (t *Target) Frame(n int) (program.State, bool) {
	if n < 0 || n >= len(t.frames) {
		return program.State{}, false
	}
	return t.frames[n], true
}

// Src implements client.Target. An empty filter file matches every record.
func (t *Target) Src(filter program.Coord) []program.Coord {
	file := filter.FileName()
	var out []program.Coord
	for _, c := range t.Source {
		if file != "" && c.FileName() != file {
			continue
		}
		c.Index = int32(len(out))
		out = append(out, c)
	}
	return out
}

// Load reads a program description from a YAML file.
func Load(path string) (*Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// The YAML form of a program:
//
//	start: {func: main, file: wf1.c, line: 3}
//	memory:
//	  - {space: data, base: 0x1000, text: "hello"}
//	  - {space: text, base: 0x400000, hex: "554889e5"}
//	source:
//	  - {file: wf1.c, line: 3, col: 1}
//	events:
//	  - stop: break
//	    frames:
//	      - {func: getword, file: wf1.c, line: 20, fp: 0x7ffe0010}
//	      - {func: main, file: wf1.c, line: 8, fp: 0x7ffe0040}
type yamlProgram struct {
	Start  yamlState     `yaml:"start"`
	Memory []yamlSegment `yaml:"memory"`
	Source []yamlCoord   `yaml:"source"`
	Events []yamlEvent   `yaml:"events"`
}

type yamlCoord struct {
	File string `yaml:"file"`
	Line int    `yaml:"line"`
	Col  int    `yaml:"col"`
}

type yamlState struct {
	Func    string    `yaml:"func"`
	At      yamlCoord `yaml:",inline"`
	FP      uint64    `yaml:"fp"`
	Context uint64    `yaml:"context"`
}

type yamlSegment struct {
	Space string `yaml:"space"`
	Base  uint64 `yaml:"base"`
	Hex   string `yaml:"hex"`
	Text  string `yaml:"text"`
	Size  int    `yaml:"size"`
}

type yamlEvent struct {
	Stop   string      `yaml:"stop"`
	Frames []yamlState `yaml:"frames"`
}

// coord checks the ranges of a source table record.
func (c yamlCoord) coord() (program.Coord, error) {
	return program.NewCoord(c.File, c.Line, c.Col)
}

// state allows a state with no line, as for a function without source.
func (s yamlState) state() (program.State, error) {
	var st program.State
	copy(st.Name[:], s.Func)
	if s.At.Line != 0 || s.At.Col != 0 {
		c, err := s.At.coord()
		if err != nil {
			return st, err
		}
		st.Src = c
	} else {
		copy(st.Src.File[:], s.At.File)
	}
	st.FP = s.FP
	st.Context = s.Context
	return st, nil
}

// Parse decodes a YAML program description.
func Parse(data []byte) (*Target, error) {
	var p yamlProgram
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	start, err := p.Start.state()
	if err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}
	t := &Target{Start: start}
	for i, m := range p.Memory {
		space, err := program.ParseSpace(m.Space)
		if err != nil {
			return nil, fmt.Errorf("memory[%d]: %w", i, err)
		}
		seg := &Segment{Space: space, Base: m.Base}
		switch {
		case m.Hex != "":
			seg.Data, err = hex.DecodeString(m.Hex)
			if err != nil {
				return nil, fmt.Errorf("memory[%d]: %w", i, err)
			}
		case m.Text != "":
			seg.Data = []byte(m.Text)
		}
		if len(seg.Data) < m.Size {
			seg.Data = append(seg.Data, make([]byte, m.Size-len(seg.Data))...)
		}
		t.Segments = append(t.Segments, seg)
	}
	for i, c := range p.Source {
		coord, err := c.coord()
		if err != nil {
			return nil, fmt.Errorf("source[%d]: %w", i, err)
		}
		t.Source = append(t.Source, coord)
	}
	for i, e := range p.Events {
		var ev Event
		switch e.Stop {
		case "break":
			ev.Stop = client.StopBreak
		case "fault":
			ev.Stop = client.StopFault
		case "exit":
			ev.Stop = client.StopExit
		default:
			return nil, fmt.Errorf("events[%d]: unknown stop %q", i, e.Stop)
		}
		if ev.Stop != client.StopExit && len(e.Frames) == 0 {
			return nil, fmt.Errorf("events[%d]: %s needs at least one frame", i, e.Stop)
		}
		for j, f := range e.Frames {
			st, err := f.state()
			if err != nil {
				return nil, fmt.Errorf("events[%d].frames[%d]: %w", i, j, err)
			}
			ev.Frames = append(ev.Frames, st)
		}
		t.Events = append(t.Events, ev)
	}
	return t, nil
}
