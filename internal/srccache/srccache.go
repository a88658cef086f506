// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package srccache holds the source coordinates received from a nub.
//
// A Cache is an index-addressed sequence that only grows. Each source table
// query overwrites slots from index 0 upward; the slots past the end of the
// latest answer keep their stale records and their storage, to be reused by
// the next, possibly longer, answer.
package srccache

import (
	"golang.org/x/nub/program"
)

// Cache is a growable store of coordinates. The zero value is empty and
// ready to use. It is not safe for concurrent use.
type Cache struct {
	slots []*program.Coord
}

// Len returns the number of slots ever filled.
func (c *Cache) Len() int {
	return len(c.slots)
}

// Cap returns the number of slots the cache can hold without reallocating
// its index.
func (c *Cache) Cap() int {
	return cap(c.slots)
}

// Grow makes index i addressable, allocating every slot up to it.
func (c *Cache) Grow(i int) {
	for len(c.slots) <= i {
		c.slots = append(c.slots, new(program.Coord))
	}
}

// Set stores src at index i, overwriting the slot in place when it exists
// and growing the cache otherwise.
func (c *Cache) Set(i int, src program.Coord) {
	if i >= len(c.slots) {
		c.Grow(i)
	}
	*c.slots[i] = src
}

// At returns the record at index i. It panics if i is out of range.
func (c *Cache) At(i int) program.Coord {
	return *c.slots[i]
}

// Visit calls f for slots 0 through n-1, in order.
func (c *Cache) Visit(n int, f func(i int, src program.Coord)) {
	for i := 0; i < n; i++ {
		f(i, *c.slots[i])
	}
}
