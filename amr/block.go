package amr

import (
	"fmt"
	"math"

	"github.com/notargets/fragments/types"
)

// BlockID is a handle into a Hierarchy's block arena
type BlockID int

const NoBlock BlockID = -1

// Geometry locates level 0 in space, each finer level halves the spacing
type Geometry struct {
	Origin  [3]float64
	Spacing [3]float64 // Level 0 cell spacing
}

func (g Geometry) LevelSpacing(level int) (spacing [3]float64) {
	scale := math.Ldexp(1, -level)
	for n := 0; n < 3; n++ {
		spacing[n] = g.Spacing[n] * scale
	}
	return
}

// BlockInfo is the part of a block every rank knows about
type BlockInfo struct {
	Key   types.BlockKey
	Owner int
	Dims  types.Index3
}

type Block struct {
	ID BlockID
	types.BlockKey
	Owner      int
	Dims       types.Index3 // Cells per axis, ghost layers removed
	GhostLevel int          // Ghost layers present on the input arrays
	Origin     [3]float64
	Spacing    [3]float64

	Local bool // Owned by this rank
	Ghost bool // Shadow copy of a remote block's boundary layer

	// Per material pass state
	Invert    bool
	Fraction  []uint8 // Scaled material fraction in [0,255]
	Present   []bool  // Ghost cells actually received, nil when all are present
	Mass      []float64
	Fragments []int32 // Local fragment id per cell, -1 when unvisited

	arrays map[string]CellArray // Interior cell data, local blocks only
}

// Initialize stores the block geometry from its input cell extent
// (inclusive, level cell coordinates, ghost layers included) and scales the
// material fraction after stripping ghostLevel layers from each side.
// Fraction may be nil for a geometry-only block.
func (b *Block) Initialize(extent [6]int, level, ghostLevel int, fraction []float64) (err error) {
	var (
		fullDims types.Index3
		low      types.Index3
	)
	if ghostLevel < 0 {
		return fmt.Errorf("negative ghost level %d", ghostLevel)
	}
	for n := 0; n < 3; n++ {
		fullDims[n] = extent[2*n+1] - extent[2*n] + 1
		b.Dims[n] = fullDims[n] - 2*ghostLevel
		if b.Dims[n] < 1 {
			return fmt.Errorf("extent %v leaves no interior cells with %d ghost levels",
				extent, ghostLevel)
		}
		low[n] = extent[2*n] + ghostLevel
		if low[n]%b.Dims[n] != 0 {
			return fmt.Errorf("extent %v is not aligned to the block dimensions %v",
				extent, b.Dims)
		}
	}
	b.Level = level
	b.GhostLevel = ghostLevel
	b.Index = low.FloorDiv(b.Dims)
	if fraction != nil {
		if len(fraction) != fullDims[0]*fullDims[1]*fullDims[2] {
			return fmt.Errorf("block %s: fraction array has %d cells, extent has %d",
				b.BlockKey, len(fraction), fullDims[0]*fullDims[1]*fullDims[2])
		}
		b.SetFraction(scaleFractions(stripGhosts(fraction, 1, fullDims, ghostLevel)))
	}
	return
}

func (b *Block) SetGeometry(geom Geometry) {
	b.Spacing = geom.LevelSpacing(b.Level)
	for n := 0; n < 3; n++ {
		b.Origin[n] = geom.Origin[n] + float64(b.Index[n]*b.Dims[n])*b.Spacing[n]
	}
}

func (b *Block) Info() BlockInfo {
	return BlockInfo{Key: b.BlockKey, Owner: b.Owner, Dims: b.Dims}
}

func (b *Block) NumCells() int { return b.Dims[0] * b.Dims[1] * b.Dims[2] }

// Extent is the interior cell extent in level coordinates
func (b *Block) Extent() (ext [6]int) {
	for n := 0; n < 3; n++ {
		ext[2*n] = b.Index[n] * b.Dims[n]
		ext[2*n+1] = ext[2*n] + b.Dims[n] - 1
	}
	return
}

func (b *Block) CellIndex(ijk types.Index3) int {
	return ijk[0] + b.Dims[0]*(ijk[1]+b.Dims[1]*ijk[2])
}

func (b *Block) CellIJK(cell int) (ijk types.Index3) {
	ijk[0] = cell % b.Dims[0]
	cell /= b.Dims[0]
	ijk[1] = cell % b.Dims[1]
	ijk[2] = cell / b.Dims[1]
	return
}

func (b *Block) Contains(ijk types.Index3) bool {
	for n := 0; n < 3; n++ {
		if ijk[n] < 0 || ijk[n] >= b.Dims[n] {
			return false
		}
	}
	return true
}

// GlobalCell returns the cell coordinates at this block's level
func (b *Block) GlobalCell(cell int) types.Index3 {
	return b.Index.Mul(b.Dims).Add(b.CellIJK(cell))
}

func (b *Block) CellVolume() float64 {
	return b.Spacing[0] * b.Spacing[1] * b.Spacing[2]
}

func (b *Block) CellCenter(cell int) (x [3]float64) {
	ijk := b.CellIJK(cell)
	for n := 0; n < 3; n++ {
		x[n] = b.Origin[n] + (float64(ijk[n])+0.5)*b.Spacing[n]
	}
	return
}

// CellBounds is xmin,xmax,ymin,ymax,zmin,zmax
func (b *Block) CellBounds(cell int) (bounds [6]float64) {
	ijk := b.CellIJK(cell)
	for n := 0; n < 3; n++ {
		bounds[2*n] = b.Origin[n] + float64(ijk[n])*b.Spacing[n]
		bounds[2*n+1] = bounds[2*n] + b.Spacing[n]
	}
	return
}

// HasCell reports whether cell carries data on this rank
func (b *Block) HasCell(cell int) bool {
	if cell < 0 || cell >= len(b.Fraction) {
		return false
	}
	return b.Present == nil || b.Present[cell]
}

// FractionAt returns the scaled fraction, inverted when configured
func (b *Block) FractionAt(cell int) uint8 {
	if !b.HasCell(cell) {
		return 0
	}
	if b.Invert {
		return 255 - b.Fraction[cell]
	}
	return b.Fraction[cell]
}

// IsAboveThreshold tests the scaled fraction strictly against the scaled
// threshold. Absent or out of range cells are never above.
func (b *Block) IsAboveThreshold(cell int, scaled uint8) bool {
	if !b.HasCell(cell) {
		return false
	}
	return b.FractionAt(cell) > scaled
}

func (b *Block) SetFraction(scaled []uint8) {
	b.Fraction = scaled
	b.Present = nil
}

// LoadMaterial sets the per pass fraction and mass from the named arrays.
// An empty mass name clears the mass.
func (b *Block) LoadMaterial(fractionName, massName string, invert bool) (err error) {
	var (
		arr CellArray
		ok  bool
	)
	if arr, ok = b.arrays[fractionName]; !ok {
		return fmt.Errorf("block %s has no material array %q", b.BlockKey, fractionName)
	}
	if arr.NComps != 1 {
		return fmt.Errorf("material array %q has %d components, expected 1", fractionName, arr.NComps)
	}
	b.SetFraction(scaleFractions(arr.Data))
	b.Invert = invert
	b.Mass = nil
	if massName != "" {
		if arr, ok = b.arrays[massName]; !ok {
			return fmt.Errorf("block %s has no mass array %q", b.BlockKey, massName)
		}
		b.Mass = arr.Data
	}
	return
}

func (b *Block) Array(name string) (arr CellArray, ok bool) {
	arr, ok = b.arrays[name]
	return
}

// ResetFragments marks every cell unvisited
func (b *Block) ResetFragments() {
	if len(b.Fragments) != b.NumCells() {
		b.Fragments = make([]int32, b.NumCells())
	}
	for i := range b.Fragments {
		b.Fragments[i] = -1
	}
}

// ScaleFraction maps a fraction in [0,1] onto [0,255], rounding to nearest
func ScaleFraction(f float64) uint8 {
	if math.IsNaN(f) || f <= 0 {
		return 0
	}
	if f >= 1 {
		return 255
	}
	return uint8(math.Round(f * 255))
}

func scaleFractions(fractions []float64) (scaled []uint8) {
	scaled = make([]uint8, len(fractions))
	for i, f := range fractions {
		scaled[i] = ScaleFraction(f)
	}
	return
}

// ScaleThreshold is the threshold counterpart of ScaleFraction
func ScaleThreshold(f float64) uint8 { return ScaleFraction(f) }

func stripGhosts(data []float64, nComps int, fullDims types.Index3, ghostLevel int) (interior []float64) {
	if ghostLevel == 0 {
		interior = make([]float64, len(data))
		copy(interior, data)
		return
	}
	var (
		g    = ghostLevel
		dims = types.Index3{fullDims[0] - 2*g, fullDims[1] - 2*g, fullDims[2] - 2*g}
		ind  int
	)
	interior = make([]float64, dims[0]*dims[1]*dims[2]*nComps)
	for k := g; k < fullDims[2]-g; k++ {
		for j := g; j < fullDims[1]-g; j++ {
			for i := g; i < fullDims[0]-g; i++ {
				src := (i + fullDims[0]*(j+fullDims[1]*k)) * nComps
				copy(interior[ind:ind+nComps], data[src:src+nComps])
				ind += nComps
			}
		}
	}
	return
}
