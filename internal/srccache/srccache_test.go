// Copyright 2014 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package srccache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/nub/program"
)

func TestSetGrowsAndOverwrites(t *testing.T) {
	var c Cache
	assert.Zero(t, c.Len())

	a := program.MakeCoord("a.c", 1, 0)
	b := program.MakeCoord("b.c", 2, 0)
	c.Set(0, a)
	c.Set(1, b)
	require.Equal(t, 2, c.Len())

	// Keep the slot pointer to check the overwrite reuses it.
	slot := c.slots[0]
	c.Set(0, b)
	assert.Same(t, slot, c.slots[0])
	assert.Equal(t, b, c.At(0))
	assert.Equal(t, 2, c.Len())
}

func TestGrowSkipsAhead(t *testing.T) {
	var c Cache
	c.Grow(3)
	assert.Equal(t, 4, c.Len())
	assert.True(t, c.At(2).End())
	c.Grow(1)
	assert.Equal(t, 4, c.Len())
}

func TestVisitStopsAtCount(t *testing.T) {
	var c Cache
	for i, f := range []string{"a.c", "b.c", "c.c"} {
		c.Set(i, program.MakeCoord(f, i+1, 0))
	}
	var seen []string
	c.Visit(2, func(i int, src program.Coord) {
		assert.Equal(t, len(seen), i)
		seen = append(seen, src.FileName())
	})
	assert.Equal(t, []string{"a.c", "b.c"}, seen)
	assert.Equal(t, 3, c.Len())
}

func TestCapCoversLen(t *testing.T) {
	var c Cache
	assert.Zero(t, c.Cap())
	c.Grow(9)
	assert.Equal(t, 10, c.Len())
	assert.GreaterOrEqual(t, c.Cap(), c.Len())

	// A shorter answer reuses the index.
	before := c.Cap()
	c.Set(0, program.MakeCoord("a.c", 1, 0))
	assert.Equal(t, before, c.Cap())
}
