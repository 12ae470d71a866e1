package integrate

import (
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Row is the partial integral of one global fragment. Everything but the
// bounds and the contributing ranks adds.
type Row struct {
	ID      int
	Volume  float64
	Mass    float64
	Moments [4]float64
	VW      []float64
	MW      []float64
	Sums    []float64
	Bounds  [6]float64
	Ranks   []int // Sorted
}

func newRow(id int, layout Layout, rank int) Row {
	return Row{
		ID:     id,
		VW:     make([]float64, Width(layout.VolumeWeighted)),
		MW:     make([]float64, Width(layout.MassWeighted)),
		Sums:   make([]float64, Width(layout.Sums)),
		Bounds: emptyBounds(),
		Ranks:  []int{rank},
	}
}

func (r *Row) compatible(o Row) bool {
	return len(r.VW) == len(o.VW) && len(r.MW) == len(o.MW) && len(r.Sums) == len(o.Sums)
}

// add folds o into r, leaving o untouched
func (r *Row) add(o Row) {
	r.Volume += o.Volume
	r.Mass += o.Mass
	for n := range r.Moments {
		r.Moments[n] += o.Moments[n]
	}
	floats.Add(r.VW, o.VW)
	floats.Add(r.MW, o.MW)
	floats.Add(r.Sums, o.Sums)
	extend(&r.Bounds, o.Bounds)
	r.Ranks = unionSorted(r.Ranks, o.Ranks)
}

func (r Row) clone() (c Row) {
	c = r
	c.VW = append([]float64(nil), r.VW...)
	c.MW = append([]float64(nil), r.MW...)
	c.Sums = append([]float64(nil), r.Sums...)
	c.Ranks = append([]int(nil), r.Ranks...)
	return
}

// RowSet is a set of rows sorted by global id
type RowSet struct {
	Rows []Row
}

func (rs *RowSet) sort() {
	sort.Slice(rs.Rows, func(i, j int) bool { return rs.Rows[i].ID < rs.Rows[j].ID })
}

// Merge adds the rows of o into rs, inserting ids rs has not seen. Rows
// whose array widths disagree are dropped and counted. o is only read.
func (rs *RowSet) Merge(o *RowSet) (dropped int) {
	var (
		merged = make([]Row, 0, len(rs.Rows)+len(o.Rows))
		i, j   int
	)
	for i < len(rs.Rows) || j < len(o.Rows) {
		switch {
		case j == len(o.Rows) || (i < len(rs.Rows) && rs.Rows[i].ID < o.Rows[j].ID):
			merged = append(merged, rs.Rows[i])
			i++
		case i == len(rs.Rows) || o.Rows[j].ID < rs.Rows[i].ID:
			merged = append(merged, o.Rows[j].clone())
			j++
		default:
			if rs.Rows[i].compatible(o.Rows[j]) {
				rs.Rows[i].add(o.Rows[j])
			} else {
				dropped++
			}
			merged = append(merged, rs.Rows[i])
			i++
			j++
		}
	}
	rs.Rows = merged
	return
}

// TotalVolume is the volume summed over all rows
func (rs *RowSet) TotalVolume() float64 {
	vols := make([]float64, len(rs.Rows))
	for i, r := range rs.Rows {
		vols[i] = r.Volume
	}
	return floats.Sum(vols)
}

// Fragment is a finalized row: averages divided out, centers computed
type Fragment struct {
	ID             int
	Volume         float64
	Mass           float64
	CenterOfMass   [3]float64
	AABBCenter     [3]float64
	Bounds         [6]float64
	VolumeWeighted []float64
	MassWeighted   []float64
	Sums           []float64
	Split          bool // Integrated on more than one rank
	Ranks          []int
	OBB            *OBB
}

// Finalize divides the weighted numerators by the fully reduced volume and
// mass, a zero denominator giving zero, and drops rows that never received
// any volume
func (rs *RowSet) Finalize() (frags []Fragment) {
	for _, r := range rs.Rows {
		if r.Volume <= 0 {
			continue
		}
		f := Fragment{
			ID:             r.ID,
			Volume:         r.Volume,
			Mass:           r.Mass,
			Bounds:         r.Bounds,
			VolumeWeighted: divide(r.VW, r.Volume),
			MassWeighted:   divide(r.MW, r.Mass),
			Sums:           append([]float64(nil), r.Sums...),
			Split:          len(r.Ranks) > 1,
			Ranks:          r.Ranks,
		}
		for n := 0; n < 3; n++ {
			if r.Moments[3] != 0 {
				f.CenterOfMass[n] = r.Moments[n] / r.Moments[3]
			}
			f.AABBCenter[n] = 0.5 * (r.Bounds[2*n] + r.Bounds[2*n+1])
		}
		frags = append(frags, f)
	}
	return
}

func divide(num []float64, den float64) (avg []float64) {
	avg = make([]float64, len(num))
	if den == 0 {
		return
	}
	floats.ScaleTo(avg, 1/den, num)
	return
}

func unionSorted(a, b []int) (u []int) {
	u = make([]int, 0, len(a)+len(b))
	var i, j int
	for i < len(a) || j < len(b) {
		switch {
		case j == len(b) || (i < len(a) && a[i] < b[j]):
			u = append(u, a[i])
			i++
		case i == len(a) || b[j] < a[i]:
			u = append(u, b[j])
			j++
		default:
			u = append(u, a[i])
			i++
			j++
		}
	}
	return
}
