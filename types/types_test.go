package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypes(t *testing.T) {
	{ // Test packed key for block/cell labeling
		ck := NewCellKey(1, 0)
		assert.Equal(t, CellKey(1<<32), ck)
		b, c := ck.Split()
		assert.Equal(t, 1, b)
		assert.Equal(t, 0, c)

		ck = NewCellKey(0, 10)
		assert.Equal(t, CellKey(10), ck)

		ck = NewCellKey(100, 100001)
		b, c = ck.Split()
		assert.Equal(t, [2]int{100, 100001}, [2]int{b, c})

		// Maximum indices
		ck = NewCellKey(1<<32-1, 1<<32-1)
		assert.Equal(t, CellKey(1<<64-1), ck)
		b, c = ck.Split()
		assert.Equal(t, [2]int{1<<32 - 1, 1<<32 - 1}, [2]int{b, c})

		assert.Panics(t, func() { NewCellKey(-1, 0) })
	}
	{ // Floor division rounds toward negative infinity
		assert.Equal(t, -1, FloorDiv(-1, 4))
		assert.Equal(t, -1, FloorDiv(-4, 4))
		assert.Equal(t, -2, FloorDiv(-5, 4))
		assert.Equal(t, 1, FloorDiv(7, 4))
		assert.Equal(t, 0, FloorDiv(0, 4))
		assert.Equal(t, Index3{-1, 0, 2}, Index3{-1, 3, 9}.FloorDiv(Index3{4, 4, 4}))
	}
	{ // Block key names
		c := BlockKey{Level: 1, Index: Index3{0, 0, 0}}
		assert.Equal(t, "L1[0,0,0]", c.String())
	}
}
