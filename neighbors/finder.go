package neighbors

import (
	"github.com/notargets/fragments/amr"
	"github.com/notargets/fragments/types"
)

// Finder answers neighbor queries over a hierarchy of non-overlapping leaf
// blocks with a refinement ratio of 2 and at most one level of difference
// between abutting blocks. Relations are computed on demand, nothing is
// stored on the blocks.
type Finder struct {
	h    *amr.Hierarchy
	dirs *DirectionTable
}

func NewFinder(h *amr.Hierarchy, dirs *DirectionTable) *Finder {
	return &Finder{h: h, dirs: dirs}
}

func (f *Finder) Directions() *DirectionTable { return f.dirs }

var two = types.Index3{2, 2, 2}

// FindNeighbors returns the blocks adjoining block id in direction dir. The
// same level is searched first, then one level coarser, then one level
// finer, where up to four children can touch a face. An empty result is the
// domain boundary, not an error.
func (f *Finder) FindNeighbors(id amr.BlockID, dir types.Index3) (found bool, ids []amr.BlockID) {
	var (
		b = f.h.Block(id)
	)
	if b == nil || dir.IsZero() {
		return
	}
	target := b.Index.Add(dir)
	if nid, ok := f.h.Lookup(b.Level, target); ok {
		return true, []amr.BlockID{nid}
	}
	if b.Level > 0 {
		parent := target.FloorDiv(two)
		if parent != b.Index.FloorDiv(two) {
			if nid, ok := f.h.Lookup(b.Level-1, parent); ok {
				return true, []amr.BlockID{nid}
			}
		}
	}
	forEachChild(target, dir, func(child types.Index3) {
		if nid, ok := f.h.Lookup(b.Level+1, child); ok {
			ids = append(ids, nid)
		}
	})
	found = len(ids) > 0
	return
}

// Adjacency is one neighbor of a block and the direction it lies in
type Adjacency struct {
	Dir      types.Index3
	Neighbor amr.BlockID
}

// Neighbors lists every face, edge and corner neighbor of block id
func (f *Finder) Neighbors(id amr.BlockID) (adj []Adjacency) {
	for _, dir := range f.dirs.Dirs {
		if found, ids := f.FindNeighbors(id, dir); found {
			for _, nid := range ids {
				adj = append(adj, Adjacency{Dir: dir, Neighbor: nid})
			}
		}
	}
	return
}

// VisitCellNeighbors calls fn for every cell adjoining cell of block id in
// direction dir, at the same, the coarser, or the finer level. The cell may
// belong to a block without data on this rank; callers check HasCell.
func (f *Finder) VisitCellNeighbors(id amr.BlockID, cell int, dir types.Index3,
	fn func(nid amr.BlockID, ncell int)) {
	var (
		b = f.h.Block(id)
	)
	if b == nil {
		return
	}
	target := b.GlobalCell(cell).Add(dir)
	if nid, ncell, ok := f.cellAt(b.Level, target); ok {
		fn(nid, ncell)
		return
	}
	if b.Level > 0 {
		if nid, ncell, ok := f.cellAt(b.Level-1, target.FloorDiv(two)); ok {
			fn(nid, ncell)
			return
		}
	}
	forEachChild(target, dir, func(child types.Index3) {
		if nid, ncell, ok := f.cellAt(b.Level+1, child); ok {
			fn(nid, ncell)
		}
	})
}

func (f *Finder) cellAt(level int, g types.Index3) (id amr.BlockID, cell int, ok bool) {
	var (
		dims = f.h.Dims
		bi   = g.FloorDiv(dims)
	)
	if id, ok = f.h.Lookup(level, bi); !ok {
		return
	}
	cell = f.h.Block(id).CellIndex(g.Add(bi.Mul(dims).Scale(-1)))
	return
}

// forEachChild visits the children of target one level finer that touch
// the region target was reached from, i.e. the near side along each axis
// of dir and both halves along axes where dir is zero
func forEachChild(target, dir types.Index3, fn func(child types.Index3)) {
	var lo, hi types.Index3
	for n := 0; n < 3; n++ {
		switch {
		case dir[n] > 0:
			lo[n], hi[n] = 2*target[n], 2*target[n]
		case dir[n] < 0:
			lo[n], hi[n] = 2*target[n]+1, 2*target[n]+1
		default:
			lo[n], hi[n] = 2*target[n], 2*target[n]+1
		}
	}
	for k := lo[2]; k <= hi[2]; k++ {
		for j := lo[1]; j <= hi[1]; j++ {
			for i := lo[0]; i <= hi[0]; i++ {
				fn(types.Index3{i, j, k})
			}
		}
	}
}
