package types

import (
	"fmt"
	"math"
)

// Index3 is an integer triple, used for block indices, cell coordinates and
// neighbor directions.
type Index3 [3]int

func (a Index3) Add(b Index3) Index3 {
	return Index3{a[0] + b[0], a[1] + b[1], a[2] + b[2]}
}

func (a Index3) Mul(b Index3) Index3 {
	return Index3{a[0] * b[0], a[1] * b[1], a[2] * b[2]}
}

func (a Index3) Scale(s int) Index3 {
	return Index3{a[0] * s, a[1] * s, a[2] * s}
}

func (a Index3) IsZero() bool {
	return a[0] == 0 && a[1] == 0 && a[2] == 0
}

// FloorDiv divides component-wise, rounding toward negative infinity
func (a Index3) FloorDiv(b Index3) (q Index3) {
	for n := 0; n < 3; n++ {
		q[n] = FloorDiv(a[n], b[n])
	}
	return
}

func FloorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// BlockKey identifies a block in the whole hierarchy, independent of the
// rank that holds it. Blocks are non-overlapping leaves, so level and index
// are unique.
type BlockKey struct {
	Level int
	Index Index3
}

func (bk BlockKey) String() string {
	return fmt.Sprintf("L%d[%d,%d,%d]", bk.Level, bk.Index[0], bk.Index[1], bk.Index[2])
}

/*
CellKey packs an arena block handle and a raster cell index into one uint64
so that a (block, cell) pair can be used as a map key without an allocation.
The block is stored in the upper 32 bits, the cell in the lower 32 bits.
*/
type CellKey uint64

func NewCellKey(block, cell int) (packed CellKey) {
	var (
		limit = math.MaxUint32
	)
	if block < 0 || block > limit || cell < 0 || cell > limit {
		panic(fmt.Errorf("unable to pack block %d and cell %d into a uint64",
			block, cell))
	}
	packed = CellKey(uint64(cell) + uint64(block)<<32)
	return
}

func (ck CellKey) Split() (block, cell int) {
	block = int(ck >> 32)
	cell = int(ck & math.MaxUint32)
	return
}
