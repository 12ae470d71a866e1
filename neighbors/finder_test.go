package neighbors

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/fragments/amr"
	"github.com/notargets/fragments/types"
)

func TestDirectionTable(t *testing.T) {
	dt := NewDirectionTable()
	require.Len(t, dt.Dirs, 26)
	counts := make(map[int]int)
	seen := make(map[types.Index3]bool)
	for i, d := range dt.Dirs {
		assert.False(t, d.IsZero())
		assert.False(t, seen[d])
		seen[d] = true
		counts[Order(d)]++
		if i < 6 {
			assert.Equal(t, 1, Order(d))
		}
	}
	assert.Equal(t, map[int]int{1: 6, 2: 12, 3: 8}, counts)
}

// A level 0 block at the origin with four level 1 children covering the
// level 0 region to its +x side, and a level 0 block on its +y side
func twoLevelHierarchy(t *testing.T) (h *amr.Hierarchy, coarse, plusY amr.BlockID, children []amr.BlockID) {
	var (
		geom = amr.Geometry{Spacing: [3]float64{1, 1, 1}}
		dims = types.Index3{2, 2, 2}
	)
	h = amr.NewHierarchy(geom, 0)
	add := func(level int, idx types.Index3) amr.BlockID {
		b := amr.NewRemoteBlock(amr.BlockInfo{
			Key: types.BlockKey{Level: level, Index: idx}, Dims: dims}, geom)
		id, err := h.Add(b)
		require.NoError(t, err)
		return id
	}
	coarse = add(0, types.Index3{0, 0, 0})
	plusY = add(0, types.Index3{0, 1, 0})
	for k := 0; k < 2; k++ {
		for j := 0; j < 2; j++ {
			children = append(children, add(1, types.Index3{2, j, k}))
		}
	}
	return
}

func TestFindNeighbors(t *testing.T) {
	h, coarse, plusY, children := twoLevelHierarchy(t)
	f := NewFinder(h, NewDirectionTable())
	{ // Same level
		found, ids := f.FindNeighbors(coarse, types.Index3{0, 1, 0})
		assert.True(t, found)
		assert.Equal(t, []amr.BlockID{plusY}, ids)
	}
	{ // Finer: a face touches four children, an edge two, a corner one
		found, ids := f.FindNeighbors(coarse, types.Index3{1, 0, 0})
		assert.True(t, found)
		assert.ElementsMatch(t, children, ids)
		_, ids = f.FindNeighbors(coarse, types.Index3{1, 0, 1})
		assert.Len(t, ids, 0) // The children only cover z in [0,2) at level 1
		_, ids = f.FindNeighbors(plusY, types.Index3{1, -1, 0})
		assert.ElementsMatch(t, []amr.BlockID{children[1], children[3]}, ids)
	}
	{ // Coarser, from a child back to the coarse blocks
		found, ids := f.FindNeighbors(children[0], types.Index3{-1, 0, 0})
		assert.True(t, found)
		assert.Equal(t, []amr.BlockID{coarse}, ids)
		_, ids = f.FindNeighbors(children[1], types.Index3{-1, 1, 0})
		assert.Equal(t, []amr.BlockID{plusY}, ids)
		// A sibling, not the coarse level
		_, ids = f.FindNeighbors(children[0], types.Index3{0, 1, 0})
		assert.Equal(t, []amr.BlockID{children[1]}, ids)
	}
	{ // Domain boundary and invalid queries
		found, ids := f.FindNeighbors(coarse, types.Index3{-1, 0, 0})
		assert.False(t, found)
		assert.Empty(t, ids)
		found, _ = f.FindNeighbors(coarse, types.Index3{})
		assert.False(t, found)
		found, _ = f.FindNeighbors(amr.BlockID(99), types.Index3{1, 0, 0})
		assert.False(t, found)
	}
	{ // Every block sees its neighbors, sorted for comparison
		adj := f.Neighbors(coarse)
		var ids []int
		for _, a := range adj {
			ids = append(ids, int(a.Neighbor))
		}
		sort.Ints(ids)
		assert.Contains(t, ids, int(plusY))
		for _, c := range children {
			assert.Contains(t, ids, int(c))
		}
	}
}

func TestVisitCellNeighbors(t *testing.T) {
	h, coarse, _, children := twoLevelHierarchy(t)
	f := NewFinder(h, NewDirectionTable())
	collect := func(id amr.BlockID, cell int, dir types.Index3) (got [][2]int) {
		f.VisitCellNeighbors(id, cell, dir, func(nid amr.BlockID, ncell int) {
			got = append(got, [2]int{int(nid), ncell})
		})
		return
	}
	cb := h.Block(coarse)
	{ // Interior neighbor in the same block
		assert.Equal(t, [][2]int{{int(coarse), 1}}, collect(coarse, 0, types.Index3{1, 0, 0}))
	}
	{ // Coarse to fine across a face: four fine cells in child 0
		cell := cb.CellIndex(types.Index3{1, 0, 0})
		got := collect(coarse, cell, types.Index3{1, 0, 0})
		assert.ElementsMatch(t, [][2]int{
			{int(children[0]), 0}, {int(children[0]), 2}, {int(children[0]), 4}, {int(children[0]), 6},
		}, got)
		// Diagonal: the single nearest fine cell
		got = collect(coarse, cb.CellIndex(types.Index3{1, 0, 0}), types.Index3{1, 1, 1})
		assert.Equal(t, [][2]int{{int(children[3]), 0}}, got)
		// A corner that lands outside the refined region
		assert.Empty(t, collect(coarse, cb.CellIndex(types.Index3{1, 1, 1}), types.Index3{1, 1, 1}))
	}
	{ // Fine to coarse
		fb := h.Block(children[3])
		got := collect(children[3], fb.CellIndex(types.Index3{0, 1, 1}), types.Index3{-1, 0, 0})
		assert.Equal(t, [][2]int{{int(coarse), cb.CellIndex(types.Index3{1, 1, 1})}}, got)
	}
	{ // Off the domain
		assert.Empty(t, collect(coarse, 0, types.Index3{-1, 0, 0}))
	}
}
