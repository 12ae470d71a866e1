package amr

import (
	"fmt"
	"sort"

	"github.com/notargets/fragments/types"
)

// CellArray is a named cell data array, NComps values per cell
type CellArray struct {
	NComps int
	Data   []float64
}

func (ca CellArray) NumCells() int {
	if ca.NComps == 0 {
		return 0
	}
	return len(ca.Data) / ca.NComps
}

// BlockSpec is one input block as handed to a rank. Extent is the
// inclusive cell extent at Level including GhostLevel layers on every side,
// and the arrays cover the same cells.
type BlockSpec struct {
	Level      int
	Extent     [6]int
	GhostLevel int
	Arrays     map[string]CellArray
}

// Dataset is the set of blocks held by one rank
type Dataset struct {
	Geometry
	Blocks []BlockSpec
}

// ArrayNames is the sorted union of array names over all blocks
func (ds *Dataset) ArrayNames() (names []string) {
	seen := make(map[string]bool)
	for _, bs := range ds.Blocks {
		for name := range bs.Arrays {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return
}

// NewLocalBlock initializes a block owned by rank from its spec, removing
// the ghost layers from every array
func NewLocalBlock(spec BlockSpec, geom Geometry, rank int) (b *Block, err error) {
	b = &Block{
		ID:     NoBlock,
		Owner:  rank,
		Local:  true,
		arrays: make(map[string]CellArray, len(spec.Arrays)),
	}
	if err = b.Initialize(spec.Extent, spec.Level, spec.GhostLevel, nil); err != nil {
		return nil, err
	}
	b.SetGeometry(geom)
	fullDims := b.Dims.Add(types.Index3{2 * spec.GhostLevel, 2 * spec.GhostLevel, 2 * spec.GhostLevel})
	nFull := fullDims[0] * fullDims[1] * fullDims[2]
	for name, arr := range spec.Arrays {
		if arr.NComps < 1 || len(arr.Data) != nFull*arr.NComps {
			return nil, fmt.Errorf("block %s: array %q has %d values, expected %d cells x %d components",
				b.BlockKey, name, len(arr.Data), nFull, arr.NComps)
		}
		b.arrays[name] = CellArray{
			NComps: arr.NComps,
			Data:   stripGhosts(arr.Data, arr.NComps, fullDims, spec.GhostLevel),
		}
	}
	return
}

// NewRemoteBlock is a metadata only block owned by another rank
func NewRemoteBlock(info BlockInfo, geom Geometry) (b *Block) {
	b = &Block{
		ID:       NoBlock,
		BlockKey: info.Key,
		Owner:    info.Owner,
		Dims:     info.Dims,
	}
	b.SetGeometry(geom)
	return
}

// GhostLayer is the boundary data of one block sent to a neighboring rank
type GhostLayer struct {
	Key    types.BlockKey
	Owner  int
	Cells  []int32
	Values []uint8
}

// ExportGhostLayer copies the scaled raw (not inverted) fraction of the
// given cells
func (b *Block) ExportGhostLayer(cells []int) (gl GhostLayer) {
	gl = GhostLayer{
		Key:    b.BlockKey,
		Owner:  b.Owner,
		Cells:  make([]int32, 0, len(cells)),
		Values: make([]uint8, 0, len(cells)),
	}
	for _, cell := range cells {
		if !b.HasCell(cell) {
			continue
		}
		gl.Cells = append(gl.Cells, int32(cell))
		gl.Values = append(gl.Values, b.Fraction[cell])
	}
	return
}
