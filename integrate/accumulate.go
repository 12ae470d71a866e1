package integrate

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/notargets/fragments/amr"
	"github.com/notargets/fragments/utils"
)

// Field is a selected cell array and its component count
type Field struct {
	Name   string
	NComps int
}

// Layout names the arrays integrated for every fragment
type Layout struct {
	VolumeWeighted []Field
	MassWeighted   []Field
	Sums           []Field
	ComputeOBB     bool
}

// Width is the number of values the fields take per fragment
func Width(fields []Field) (n int) {
	for _, f := range fields {
		n += f.NComps
	}
	return
}

// Accumulate adds weight * src[cell] into dest, component by component.
// A cell outside src, or holding a NaN, is skipped and reported false.
func Accumulate(dest, src []float64, nComps, cell int, weight float64) bool {
	lo := cell * nComps
	if cell < 0 || nComps < 1 || lo+nComps > len(src) || len(dest) < nComps ||
		utils.IsNan(src[lo:lo+nComps]) {
		return false
	}
	floats.AddScaled(dest[:nComps], weight, src[lo:lo+nComps])
	return true
}

// AccumulateMoments adds (m x, m y, m z, m) for the cell's mass m at x
func AccumulateMoments(moments, mass []float64, cell int, x [3]float64) bool {
	if cell < 0 || cell >= len(mass) || len(moments) < 4 || utils.IsNan(mass[cell]) {
		return false
	}
	m := mass[cell]
	for n := 0; n < 3; n++ {
		moments[n] += m * x[n]
	}
	moments[3] += m
	return true
}

// Accumulator holds the partial integrals of every local fragment of one
// material pass, indexed by local fragment id
type Accumulator struct {
	Layout  Layout
	Volume  []float64
	Mass    []float64
	Moments [][4]float64
	VW      [][]float64 // Volume weighted numerators, fields concatenated
	MW      [][]float64 // Mass weighted numerators
	Sums    [][]float64
	Bounds  [][6]float64
	Points  [][][3]float64 // Cell centers, kept only when computing boxes
	Skipped int            // Contributions lost to short or missing arrays

	block *amr.Block
	src   [3][]*amr.CellArray
}

func NewAccumulator(layout Layout) *Accumulator {
	return &Accumulator{Layout: layout}
}

// Len is the number of local fragments seen
func (a *Accumulator) Len() int { return len(a.Volume) }

func (a *Accumulator) ensure(id int) {
	for len(a.Volume) <= id {
		a.Volume = append(a.Volume, 0)
		a.Mass = append(a.Mass, 0)
		a.Moments = append(a.Moments, [4]float64{})
		a.VW = append(a.VW, make([]float64, Width(a.Layout.VolumeWeighted)))
		a.MW = append(a.MW, make([]float64, Width(a.Layout.MassWeighted)))
		a.Sums = append(a.Sums, make([]float64, Width(a.Layout.Sums)))
		a.Bounds = append(a.Bounds, emptyBounds())
		if a.Layout.ComputeOBB {
			a.Points = append(a.Points, nil)
		}
	}
}

func (a *Accumulator) bind(b *amr.Block) {
	if a.block == b {
		return
	}
	a.block = b
	for cat, fields := range [3][]Field{a.Layout.VolumeWeighted, a.Layout.MassWeighted, a.Layout.Sums} {
		a.src[cat] = a.src[cat][:0]
		for _, f := range fields {
			if arr, ok := b.Array(f.Name); ok && arr.NComps == f.NComps {
				a.src[cat] = append(a.src[cat], &arr)
			} else {
				a.src[cat] = append(a.src[cat], nil)
			}
		}
	}
}

// AddCell integrates one cell of block b into fragment id. The volume is
// the cell volume scaled by the fraction, inverted when the block is.
// Without a mass array the moments are volume weighted.
func (a *Accumulator) AddCell(id int, b *amr.Block, cell int) {
	a.ensure(id)
	a.bind(b)
	var (
		vol  = b.CellVolume() * float64(b.FractionAt(cell)) / 255
		x    = b.CellCenter(cell)
		mass float64
	)
	a.Volume[id] += vol
	if b.Mass != nil {
		if AccumulateMoments(a.Moments[id][:], b.Mass, cell, x) {
			mass = b.Mass[cell]
			a.Mass[id] += mass
		} else {
			a.Skipped++
		}
	} else {
		AccumulateMoments(a.Moments[id][:], []float64{vol}, 0, x)
	}
	for cat, weight := range [3]float64{vol, mass, 1} {
		var (
			fields = [3][]Field{a.Layout.VolumeWeighted, a.Layout.MassWeighted, a.Layout.Sums}[cat]
			dest   = [3][][]float64{a.VW, a.MW, a.Sums}[cat][id]
			off    int
		)
		for f, fld := range fields {
			if arr := a.src[cat][f]; arr == nil || !Accumulate(dest[off:], arr.Data, fld.NComps, cell, weight) {
				a.Skipped++
			}
			off += fld.NComps
		}
	}
	extend(&a.Bounds[id], b.CellBounds(cell))
	if a.Layout.ComputeOBB {
		a.Points[id] = append(a.Points[id], x)
	}
}

// Rekey sums the local fragments into rows keyed by global id, so locally
// split pieces of one fragment become a single row. The cell centers move
// with them.
func (a *Accumulator) Rekey(localToGlobal []int, rank int) (rs *RowSet, points map[int][][3]float64) {
	var (
		byID = make(map[int]int)
	)
	rs = &RowSet{}
	if a.Layout.ComputeOBB {
		points = make(map[int][][3]float64)
	}
	for id := 0; id < a.Len() && id < len(localToGlobal); id++ {
		g := localToGlobal[id]
		ind, ok := byID[g]
		if !ok {
			ind = len(rs.Rows)
			byID[g] = ind
			rs.Rows = append(rs.Rows, newRow(g, a.Layout, rank))
		}
		rs.Rows[ind].add(Row{
			Volume:  a.Volume[id],
			Mass:    a.Mass[id],
			Moments: a.Moments[id],
			VW:      a.VW[id],
			MW:      a.MW[id],
			Sums:    a.Sums[id],
			Bounds:  a.Bounds[id],
		})
		if points != nil {
			points[g] = append(points[g], a.Points[id]...)
		}
	}
	rs.sort()
	return
}

func emptyBounds() [6]float64 {
	inf := math.Inf(1)
	return [6]float64{inf, -inf, inf, -inf, inf, -inf}
}

func extend(dst *[6]float64, src [6]float64) {
	for n := 0; n < 3; n++ {
		dst[2*n] = math.Min(dst[2*n], src[2*n])
		dst[2*n+1] = math.Max(dst[2*n+1], src[2*n+1])
	}
}
