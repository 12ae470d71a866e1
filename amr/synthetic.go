package amr

import (
	"fmt"

	"github.com/notargets/fragments/parallel"
	"github.com/notargets/fragments/types"
)

type Shape interface {
	Inside(x [3]float64) bool
}

type Sphere struct {
	Center [3]float64
	Radius float64
}

func (s Sphere) Inside(x [3]float64) bool {
	var r2 float64
	for n := 0; n < 3; n++ {
		d := x[n] - s.Center[n]
		r2 += d * d
	}
	return r2 <= s.Radius*s.Radius
}

type Box struct {
	Min, Max [3]float64
}

func (bx Box) Inside(x [3]float64) bool {
	for n := 0; n < 3; n++ {
		if x[n] < bx.Min[n] || x[n] > bx.Max[n] {
			return false
		}
	}
	return true
}

type SyntheticMaterial struct {
	Name    string
	Density float64 // Mass per unit volume of pure material, 0 for no mass array
	Shapes  []Shape
}

func (sm SyntheticMaterial) MassName() string { return sm.Name + "_mass" }

// SyntheticField is an extra cell array evaluated at cell centers
type SyntheticField struct {
	Name   string
	NComps int
	Eval   func(x [3]float64) []float64
}

// Synthetic builds an AMR volume from analytic shapes. Level 0 is a regular
// array of blocks; blocks whose center lies in a Refine box are replaced by
// their eight level 1 children.
type Synthetic struct {
	Geometry
	Dims       types.Index3 // Cells per block
	Blocks     types.Index3 // Level 0 blocks per axis
	Refine     []Box
	GhostLevel int
	Samples    int // Sub-samples per axis used to estimate the fraction
	Materials  []SyntheticMaterial
	Fields     []SyntheticField
}

// Keys lists the leaf blocks in generation order
func (s *Synthetic) Keys() (keys []types.BlockKey) {
	for k := 0; k < s.Blocks[2]; k++ {
		for j := 0; j < s.Blocks[1]; j++ {
			for i := 0; i < s.Blocks[0]; i++ {
				idx := types.Index3{i, j, k}
				if !s.refined(idx) {
					keys = append(keys, types.BlockKey{Level: 0, Index: idx})
					continue
				}
				for c := 0; c < 8; c++ {
					child := idx.Scale(2).Add(types.Index3{c & 1, (c >> 1) & 1, (c >> 2) & 1})
					keys = append(keys, types.BlockKey{Level: 1, Index: child})
				}
			}
		}
	}
	return
}

func (s *Synthetic) refined(idx types.Index3) bool {
	var center [3]float64
	for n := 0; n < 3; n++ {
		center[n] = s.Origin[n] + (float64(idx[n])+0.5)*float64(s.Dims[n])*s.Spacing[n]
	}
	for _, bx := range s.Refine {
		if bx.Inside(center) {
			return true
		}
	}
	return false
}

// Build returns the blocks rank holds when the leaves are split over
// numRanks ranks in contiguous runs
func (s *Synthetic) Build(rank, numRanks int) (ds *Dataset, err error) {
	if s.Dims[0] < 1 || s.Dims[1] < 1 || s.Dims[2] < 1 {
		return nil, fmt.Errorf("synthetic volume needs positive block dimensions, have %v", s.Dims)
	}
	var (
		keys = s.Keys()
		pm   = parallel.NewPartitionMap(numRanks, len(keys))
	)
	ds = &Dataset{Geometry: s.Geometry}
	for i, key := range keys {
		if pm.Owner(i) == rank {
			ds.Blocks = append(ds.Blocks, s.buildBlock(key))
		}
	}
	return
}

func (s *Synthetic) buildBlock(key types.BlockKey) (bs BlockSpec) {
	var (
		g        = s.GhostLevel
		spacing  = s.LevelSpacing(key.Level)
		fullDims = s.Dims.Add(types.Index3{2 * g, 2 * g, 2 * g})
		nCells   = fullDims[0] * fullDims[1] * fullDims[2]
		samples  = s.Samples
		cellVol  = spacing[0] * spacing[1] * spacing[2]
	)
	if samples < 1 {
		samples = 1
	}
	bs = BlockSpec{
		Level:      key.Level,
		GhostLevel: g,
		Arrays:     make(map[string]CellArray),
	}
	low := key.Index.Mul(s.Dims)
	for n := 0; n < 3; n++ {
		bs.Extent[2*n] = low[n] - g
		bs.Extent[2*n+1] = low[n] + s.Dims[n] + g - 1
	}
	fractions := make([][]float64, len(s.Materials))
	masses := make([][]float64, len(s.Materials))
	for m := range s.Materials {
		fractions[m] = make([]float64, nCells)
		if s.Materials[m].Density != 0 {
			masses[m] = make([]float64, nCells)
		}
	}
	fields := make([][]float64, len(s.Fields))
	for f, fld := range s.Fields {
		fields[f] = make([]float64, nCells*fld.NComps)
	}
	var ind int
	for k := 0; k < fullDims[2]; k++ {
		for j := 0; j < fullDims[1]; j++ {
			for i := 0; i < fullDims[0]; i++ {
				var lo, center [3]float64
				for n, c := range [3]int{i, j, k} {
					lo[n] = s.Origin[n] + float64(bs.Extent[2*n]+c)*spacing[n]
					center[n] = lo[n] + 0.5*spacing[n]
				}
				for m, mat := range s.Materials {
					f := sampleFraction(mat.Shapes, lo, spacing, samples)
					fractions[m][ind] = f
					if masses[m] != nil {
						masses[m][ind] = mat.Density * f * cellVol
					}
				}
				for f, fld := range s.Fields {
					copy(fields[f][ind*fld.NComps:(ind+1)*fld.NComps], fld.Eval(center))
				}
				ind++
			}
		}
	}
	for m, mat := range s.Materials {
		bs.Arrays[mat.Name] = CellArray{NComps: 1, Data: fractions[m]}
		if masses[m] != nil {
			bs.Arrays[mat.MassName()] = CellArray{NComps: 1, Data: masses[m]}
		}
	}
	for f, fld := range s.Fields {
		bs.Arrays[fld.Name] = CellArray{NComps: fld.NComps, Data: fields[f]}
	}
	return
}

func sampleFraction(shapes []Shape, lo, spacing [3]float64, samples int) float64 {
	var (
		inside int
		total  = samples * samples * samples
		x      [3]float64
	)
	for k := 0; k < samples; k++ {
		for j := 0; j < samples; j++ {
			for i := 0; i < samples; i++ {
				for n, c := range [3]int{i, j, k} {
					x[n] = lo[n] + (float64(c)+0.5)/float64(samples)*spacing[n]
				}
				for _, sh := range shapes {
					if sh.Inside(x) {
						inside++
						break
					}
				}
			}
		}
	}
	return float64(inside) / float64(total)
}
