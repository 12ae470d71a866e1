package amr

import (
	"fmt"

	"github.com/notargets/fragments/types"
)

// Hierarchy is an arena of blocks addressed by BlockID with a per level
// spatial index. It holds the local blocks, metadata for every remote block
// and, during a material pass, the ghost data received for remote
// neighbors.
type Hierarchy struct {
	Geometry
	Rank   int
	Dims   types.Index3 // Shared by every block
	Blocks []*Block
	levels []map[types.Index3]BlockID
	local  []BlockID
}

func NewHierarchy(geom Geometry, rank int) *Hierarchy {
	return &Hierarchy{Geometry: geom, Rank: rank}
}

// Add registers a block and returns its handle. Every block must have the
// same dimensions and a unique key.
func (h *Hierarchy) Add(b *Block) (id BlockID, err error) {
	if len(h.Blocks) == 0 {
		h.Dims = b.Dims
	} else if b.Dims != h.Dims {
		return NoBlock, fmt.Errorf("block %s has dimensions %v, hierarchy uses %v",
			b.BlockKey, b.Dims, h.Dims)
	}
	if b.Level < 0 {
		return NoBlock, fmt.Errorf("block %s has a negative level", b.BlockKey)
	}
	for len(h.levels) <= b.Level {
		h.levels = append(h.levels, make(map[types.Index3]BlockID))
	}
	if other, exists := h.levels[b.Level][b.Index]; exists {
		return NoBlock, fmt.Errorf("block %s registered twice (owners %d and %d)",
			b.BlockKey, h.Blocks[other].Owner, b.Owner)
	}
	id = BlockID(len(h.Blocks))
	b.ID = id
	h.Blocks = append(h.Blocks, b)
	h.levels[b.Level][b.Index] = id
	if b.Local {
		h.local = append(h.local, id)
	}
	return
}

func (h *Hierarchy) Block(id BlockID) *Block {
	if id < 0 || int(id) >= len(h.Blocks) {
		return nil
	}
	return h.Blocks[id]
}

func (h *Hierarchy) Lookup(level int, index types.Index3) (id BlockID, ok bool) {
	if level < 0 || level >= len(h.levels) {
		return NoBlock, false
	}
	id, ok = h.levels[level][index]
	return
}

func (h *Hierarchy) LookupKey(key types.BlockKey) (BlockID, bool) {
	return h.Lookup(key.Level, key.Index)
}

// Local returns the handles of the local blocks in creation order
func (h *Hierarchy) Local() []BlockID { return h.local }

func (h *Hierarchy) NumLevels() int { return len(h.levels) }

// AttachGhost fills a remote block with the boundary layer its owner sent.
// Cells outside the layer stay zero and absent. Cells out of range are
// skipped and counted.
func (h *Hierarchy) AttachGhost(gl GhostLayer, invert bool) (skipped int, err error) {
	var (
		id BlockID
		ok bool
	)
	if id, ok = h.LookupKey(gl.Key); !ok {
		return 0, fmt.Errorf("ghost layer for unknown block %s", gl.Key)
	}
	b := h.Blocks[id]
	if b.Local {
		return 0, fmt.Errorf("ghost layer for local block %s", gl.Key)
	}
	if len(gl.Cells) != len(gl.Values) {
		return 0, fmt.Errorf("ghost layer for %s has %d cells and %d values",
			gl.Key, len(gl.Cells), len(gl.Values))
	}
	if !b.Ghost {
		b.Ghost = true
		b.Fraction = make([]uint8, b.NumCells())
		b.Present = make([]bool, b.NumCells())
	}
	b.Invert = invert
	for i, cell := range gl.Cells {
		if cell < 0 || int(cell) >= len(b.Fraction) {
			skipped++
			continue
		}
		b.Fraction[cell] = gl.Values[i]
		b.Present[cell] = true
	}
	return
}

// DropGhosts discards all ghost data at the end of a material pass
func (h *Hierarchy) DropGhosts() {
	for _, b := range h.Blocks {
		if b.Ghost {
			b.Ghost = false
			b.Fraction = nil
			b.Present = nil
		}
	}
}
