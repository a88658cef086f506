// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package arch contains architecture-specific definitions.
// The nub wire format carries integers and addresses in the target's
// native layout, so both ends must agree on an Architecture.
package arch

import (
	"encoding/binary"
	"fmt"
)

// Architecture defines the architecture-specific details for a given machine.
type Architecture struct {
	Name string
	// IntSize is the size of the C int type, in bytes.
	IntSize int
	// PointerSize is the size of a pointer, in bytes.
	PointerSize int
	// ByteOrder is the byte order for ints and pointers.
	ByteOrder binary.ByteOrder
}

func (a *Architecture) Int(buf []byte) int64 {
	switch a.IntSize {
	case 4:
		return int64(int32(a.ByteOrder.Uint32(buf[:4])))
	case 8:
		return int64(a.ByteOrder.Uint64(buf[:8]))
	}
	panic("no IntSize")
}

func (a *Architecture) PutInt(buf []byte, v int64) {
	switch a.IntSize {
	case 4:
		a.ByteOrder.PutUint32(buf[:4], uint32(int32(v)))
	case 8:
		a.ByteOrder.PutUint64(buf[:8], uint64(v))
	default:
		panic("no IntSize")
	}
}

func (a *Architecture) Uintptr(buf []byte) uint64 {
	switch a.PointerSize {
	case 4:
		return uint64(a.ByteOrder.Uint32(buf[:4]))
	case 8:
		return a.ByteOrder.Uint64(buf[:8])
	}
	panic("no PointerSize")
}

func (a *Architecture) PutUintptr(buf []byte, v uint64) {
	switch a.PointerSize {
	case 4:
		a.ByteOrder.PutUint32(buf[:4], uint32(v))
	case 8:
		a.ByteOrder.PutUint64(buf[:8], v)
	default:
		panic("no PointerSize")
	}
}

// MaxInt returns the largest value an int field can carry.
func (a *Architecture) MaxInt() int64 {
	if a.IntSize == 4 {
		return 1<<31 - 1
	}
	return 1<<63 - 1
}

func (a *Architecture) String() string {
	return a.Name
}

var AMD64 = Architecture{
	Name:        "amd64",
	IntSize:     4,
	PointerSize: 8,
	ByteOrder:   binary.LittleEndian,
}

var ARM64 = Architecture{
	Name:        "arm64",
	IntSize:     4,
	PointerSize: 8,
	ByteOrder:   binary.LittleEndian,
}

var X86 = Architecture{
	Name:        "386",
	IntSize:     4,
	PointerSize: 4,
	ByteOrder:   binary.LittleEndian,
}

var ARM = Architecture{
	Name:        "arm",
	IntSize:     4,
	PointerSize: 4,
	ByteOrder:   binary.LittleEndian,
}

// SPARC is big-endian; useful for checking that both ends honor ByteOrder.
var SPARC = Architecture{
	Name:        "sparc",
	IntSize:     4,
	PointerSize: 4,
	ByteOrder:   binary.BigEndian,
}

var all = []*Architecture{&AMD64, &ARM64, &X86, &ARM, &SPARC}

// Lookup returns the architecture with the given name.
func Lookup(name string) (*Architecture, error) {
	for _, a := range all {
		if a.Name == name {
			return a, nil
		}
	}
	return nil, fmt.Errorf("unknown architecture %q", name)
}
