package amr

import "github.com/notargets/fragments/types"

// CellIterator walks a box of cells inside a block in raster order
type CellIterator struct {
	b        *Block
	lo, hi   types.Index3 // hi is exclusive
	cur      types.Index3
	finished bool
}

func newCellIterator(b *Block, lo, hi types.Index3) (it *CellIterator) {
	it = &CellIterator{b: b, lo: lo, hi: hi, cur: lo}
	for n := 0; n < 3; n++ {
		if lo[n] >= hi[n] {
			it.finished = true
		}
	}
	return
}

// Next returns the next cell index, ok is false when the walk is done
func (it *CellIterator) Next() (cell int, ok bool) {
	if it.finished {
		return
	}
	cell, ok = it.b.CellIndex(it.cur), true
	for n := 0; n < 3; n++ {
		it.cur[n]++
		if it.cur[n] < it.hi[n] {
			return
		}
		it.cur[n] = it.lo[n]
	}
	it.finished = true
	return
}

func (it *CellIterator) Collect() (cells []int) {
	for cell, ok := it.Next(); ok; cell, ok = it.Next() {
		cells = append(cells, cell)
	}
	return
}

// NeighborIterator returns a cursor over the cells adjoining the face of
// the block on axis in direction (-1 or +1).
func (b *Block) NeighborIterator(axis, direction int) *CellIterator {
	var dir types.Index3
	dir[axis] = direction
	return b.BoundaryIterator(dir, 1)
}

// BoundaryIterator walks the layer of cells on the side dir of the block,
// depth cells deep. Depth is clipped to the block dimensions. Components of
// dir that are zero span the full range, so edges and corners are the
// intersections of the face layers.
func (b *Block) BoundaryIterator(dir types.Index3, depth int) *CellIterator {
	var lo, hi types.Index3
	for n := 0; n < 3; n++ {
		d := depth
		if d > b.Dims[n] {
			d = b.Dims[n]
		}
		if d < 1 {
			d = 1
		}
		switch {
		case dir[n] > 0:
			lo[n], hi[n] = b.Dims[n]-d, b.Dims[n]
		case dir[n] < 0:
			lo[n], hi[n] = 0, d
		default:
			lo[n], hi[n] = 0, b.Dims[n]
		}
	}
	return newCellIterator(b, lo, hi)
}

func (b *Block) BoundaryLayer(dir types.Index3, depth int) []int {
	return b.BoundaryIterator(dir, depth).Collect()
}

// AllCells walks the block interior in raster order
func (b *Block) AllCells() *CellIterator {
	return newCellIterator(b, types.Index3{}, b.Dims)
}
