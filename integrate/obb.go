package integrate

import (
	"context"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/notargets/fragments/parallel"
)

// OBB is an oriented bounding box around a point set, axes are unit length
// and ordered longest first
type OBB struct {
	Center      [3]float64
	Axes        [3][3]float64
	HalfLengths [3]float64
}

func (o OBB) Volume() float64 {
	return 8 * o.HalfLengths[0] * o.HalfLengths[1] * o.HalfLengths[2]
}

// Corners lists the 8 box corners, bit a of the index choosing the sign
// along axis a
func (o OBB) Corners() (corners [8][3]float64) {
	for c := range corners {
		corners[c] = o.Center
		for a := 0; a < 3; a++ {
			s := o.HalfLengths[a]
			if c&(1<<a) == 0 {
				s = -s
			}
			for n := 0; n < 3; n++ {
				corners[c][n] += s * o.Axes[a][n]
			}
		}
	}
	return
}

// ComputeOBB fits a box aligned with the principal axes of the points'
// covariance. Fewer than two points, or a failed decomposition, give an
// axis aligned box.
func ComputeOBB(points [][3]float64) (o OBB) {
	var (
		n = len(points)
	)
	o.Axes = [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	if n == 0 {
		return
	}
	if n > 1 {
		data := make([]float64, 0, 3*n)
		for _, p := range points {
			data = append(data, p[:]...)
		}
		var (
			cov mat.SymDense
			eig mat.EigenSym
		)
		stat.CovarianceMatrix(&cov, mat.NewDense(n, 3, data), nil)
		if ok := eig.Factorize(&cov, true); ok {
			var ev mat.Dense
			eig.VectorsTo(&ev)
			// Eigenvalues ascend, the longest axis is the last column
			for a := 0; a < 3; a++ {
				for d := 0; d < 3; d++ {
					o.Axes[a][d] = ev.At(d, 2-a)
				}
			}
		}
	}
	var (
		proj = make([]float64, n)
		mid  [3]float64
	)
	for a := 0; a < 3; a++ {
		for i := range points {
			proj[i] = floats.Dot(o.Axes[a][:], points[i][:])
		}
		lo, hi := floats.Min(proj), floats.Max(proj)
		o.HalfLengths[a] = 0.5 * (hi - lo)
		mid[a] = 0.5 * (hi + lo)
	}
	for a := 0; a < 3; a++ {
		for d := 0; d < 3; d++ {
			o.Center[d] += mid[a] * o.Axes[a][d]
		}
	}
	return
}

type PointCount struct {
	ID, N int
}

// AssignOBB picks the rank that computes each fragment's box: the one
// holding most of its points among ranks whose load, the points they hold
// or will receive, does not exceed upperLoadingBound. When every holder is
// over the bound the least loaded rank takes it. counts is per rank, and
// the result is the same on every rank given the same counts.
func AssignOBB(counts [][]PointCount, upperLoadingBound int) (dest map[int]int) {
	var (
		NP      = len(counts)
		load    = make([]int, NP)
		holders = make(map[int][]int) // id -> points per rank
		ids     []int
	)
	dest = make(map[int]int)
	for np, pcs := range counts {
		for _, pc := range pcs {
			if _, ok := holders[pc.ID]; !ok {
				holders[pc.ID] = make([]int, NP)
				ids = append(ids, pc.ID)
			}
			holders[pc.ID][np] += pc.N
			load[np] += pc.N
		}
	}
	sort.Ints(ids)
	for _, id := range ids {
		var (
			held  = holders[id]
			best  = -1
			total int
		)
		for np, n := range held {
			total += n
			if n > 0 && load[np] <= upperLoadingBound && (best < 0 || n > held[best]) {
				best = np
			}
		}
		if best < 0 {
			best = 0
			for np := range load {
				if load[np] < load[best] {
					best = np
				}
			}
		}
		dest[id] = best
		load[best] += total - held[best]
	}
	return
}

// DistributeOBB computes the box of every fragment from the cell centers
// all ranks hold for it. Points travel to the rank AssignOBB picks, and the
// boxes are gathered on rank 0, which alone receives a non-nil map.
func DistributeOBB(ctx context.Context, c parallel.Communicator, points map[int][][3]float64,
	upperLoadingBound int) (obbs map[int]OBB, err error) {
	var (
		me, NP   = c.Rank(), c.Size()
		mine     []PointCount
		counts   [][]PointCount
		incoming []map[int][][3]float64
		boxes    []map[int]OBB
	)
	for id, pts := range points {
		mine = append(mine, PointCount{ID: id, N: len(pts)})
	}
	sort.Slice(mine, func(i, j int) bool { return mine[i].ID < mine[j].ID })
	if counts, err = parallel.AllGather(ctx, c, mine); err != nil {
		return nil, fmt.Errorf("gathering point counts: %w", err)
	}
	dest := AssignOBB(counts, upperLoadingBound)
	outgoing := make([]map[int][][3]float64, NP)
	for np := range outgoing {
		outgoing[np] = make(map[int][][3]float64)
	}
	for id, pts := range points {
		outgoing[dest[id]][id] = pts
	}
	if incoming, err = parallel.AllToAll(ctx, c, outgoing); err != nil {
		return nil, fmt.Errorf("redistributing points: %w", err)
	}
	var (
		ids []int
		all = make(map[int][][3]float64)
	)
	for _, in := range incoming {
		for id, pts := range in {
			if _, ok := all[id]; !ok {
				ids = append(ids, id)
			}
			all[id] = append(all[id], pts...)
		}
	}
	local := make(map[int]OBB, len(ids))
	for _, id := range ids {
		local[id] = ComputeOBB(all[id])
	}
	if boxes, err = parallel.Gather(ctx, c, 0, local); err != nil {
		return nil, fmt.Errorf("gathering boxes: %w", err)
	}
	if me != 0 {
		return
	}
	obbs = make(map[int]OBB)
	for _, m := range boxes {
		for id, o := range m {
			obbs[id] = o
		}
	}
	return
}
