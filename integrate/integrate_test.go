package integrate

import (
	"context"
	"io"
	"log"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/fragments/amr"
	"github.com/notargets/fragments/parallel"
)

// A 2x2x1 block of unit cells
func testBlock(t *testing.T) *amr.Block {
	b, err := amr.NewLocalBlock(amr.BlockSpec{
		Extent: [6]int{0, 1, 0, 1, 0, 0},
		Arrays: map[string]amr.CellArray{
			"f": {NComps: 1, Data: []float64{1, 0.5, 0, 1}},
			"m": {NComps: 1, Data: []float64{2, 1, 0, 4}},
			"c": {NComps: 1, Data: []float64{3, 3, 3, 3}},
			"v": {NComps: 2, Data: []float64{1, 0, 2, 0, 3, 0, 4, 1}},
		},
	}, amr.Geometry{Spacing: [3]float64{1, 1, 1}}, 0)
	require.NoError(t, err)
	require.NoError(t, b.LoadMaterial("f", "m", false))
	return b
}

func TestAccumulate(t *testing.T) {
	{ // Weighted per component adds
		dest := make([]float64, 2)
		src := []float64{1, 2, 3, 4}
		assert.True(t, Accumulate(dest, src, 2, 1, 0.5))
		assert.Equal(t, []float64{1.5, 2}, dest)
		assert.False(t, Accumulate(dest, src, 2, 2, 1))
		assert.False(t, Accumulate(dest, src, 2, -1, 1))
		assert.Equal(t, []float64{1.5, 2}, dest)
	}
	{ // Moments
		mom := make([]float64, 4)
		assert.True(t, AccumulateMoments(mom, []float64{0, 2}, 1, [3]float64{1, 2, 3}))
		assert.Equal(t, []float64{2, 4, 6, 2}, mom)
		assert.False(t, AccumulateMoments(mom, []float64{0, 2}, 2, [3]float64{}))
	}
	{ // A NaN anywhere in the cell is skipped whole
		dest := make([]float64, 2)
		assert.False(t, Accumulate(dest, []float64{1, math.NaN()}, 2, 0, 1))
		assert.Equal(t, []float64{0, 0}, dest)
		mom := make([]float64, 4)
		assert.False(t, AccumulateMoments(mom, []float64{math.NaN()}, 0, [3]float64{1, 1, 1}))
		assert.Equal(t, []float64{0, 0, 0, 0}, mom)
	}
}

func TestAccumulatorFinalize(t *testing.T) {
	var (
		b      = testBlock(t)
		layout = Layout{
			VolumeWeighted: []Field{{"c", 1}},
			MassWeighted:   []Field{{"c", 1}},
			Sums:           []Field{{"v", 2}, {"missing", 1}},
		}
		acc  = NewAccumulator(layout)
		half = 128. / 255
	)
	acc.AddCell(0, b, 0)
	acc.AddCell(0, b, 1)
	acc.AddCell(2, b, 3)
	assert.Equal(t, 3, acc.Len())
	assert.Equal(t, 3, acc.Skipped) // The missing sum array, once per cell
	rs, points := acc.Rekey([]int{0, 1, 0}, 0)
	assert.Nil(t, points)
	require.Len(t, rs.Rows, 2)
	assert.InDelta(t, 2+half, rs.TotalVolume(), 1e-14)

	frags := rs.Finalize()
	require.Len(t, frags, 1) // Fragment 1 never received volume
	f := frags[0]
	assert.Equal(t, 0, f.ID)
	assert.InDelta(t, 2+half, f.Volume, 1e-14)
	assert.Equal(t, 7., f.Mass)
	assert.InDelta(t, 8.5/7, f.CenterOfMass[0], 1e-14)
	assert.InDelta(t, 7.5/7, f.CenterOfMass[1], 1e-14)
	assert.InDelta(t, 0.5, f.CenterOfMass[2], 1e-14)
	assert.InDelta(t, 3, f.VolumeWeighted[0], 1e-14)
	assert.InDelta(t, 3, f.MassWeighted[0], 1e-14)
	assert.Equal(t, []float64{1 + 2 + 4, 1, 0}, f.Sums)
	assert.Equal(t, [6]float64{0, 2, 0, 2, 0, 1}, f.Bounds)
	assert.Equal(t, [3]float64{1, 1, 0.5}, f.AABBCenter)
	assert.False(t, f.Split)
}

func TestInvertedVolume(t *testing.T) {
	b := testBlock(t)
	require.NoError(t, b.LoadMaterial("f", "", true))
	acc := NewAccumulator(Layout{MassWeighted: []Field{{"c", 1}}})
	acc.AddCell(0, b, 2)
	acc.AddCell(0, b, 1)
	rs, _ := acc.Rekey([]int{0}, 0)
	frags := rs.Finalize()
	require.Len(t, frags, 1)
	assert.InDelta(t, 1+127./255, frags[0].Volume, 1e-14)
	// No mass: the mass weighted average has a zero denominator
	assert.Equal(t, 0., frags[0].Mass)
	assert.Equal(t, []float64{0}, frags[0].MassWeighted)
	// Volume weighted centroid
	assert.InDelta(t, (0.5*1+1.5*127./255)/(1+127./255), frags[0].CenterOfMass[0], 1e-14)
}

func TestMerge(t *testing.T) {
	layout := Layout{Sums: []Field{{"s", 1}}}
	mk := func(rank int, ids ...int) *RowSet {
		rs := &RowSet{}
		for _, id := range ids {
			r := newRow(id, layout, rank)
			r.Volume = 1
			r.Sums[0] = float64(id)
			r.Bounds = [6]float64{float64(rank), float64(rank) + 1, 0, 1, 0, 1}
			rs.Rows = append(rs.Rows, r)
		}
		return rs
	}
	{ // Sorted merge, inserting new ids and adding shared ones
		a, b := mk(0, 1, 4), mk(3, 0, 4, 9)
		assert.Equal(t, 0, a.Merge(b))
		var ids []int
		for _, r := range a.Rows {
			ids = append(ids, r.ID)
		}
		assert.Equal(t, []int{0, 1, 4, 9}, ids)
		assert.Equal(t, 2., a.Rows[2].Volume)
		assert.Equal(t, []int{0, 3}, a.Rows[2].Ranks)
		assert.Equal(t, [6]float64{0, 4, 0, 1, 0, 1}, a.Rows[2].Bounds)
		// b is unchanged
		assert.Equal(t, 1., b.Rows[1].Volume)
		a.Rows[0].Sums[0] = 42
		assert.Equal(t, 0., b.Rows[0].Sums[0])
	}
	{ // Mismatched widths are dropped
		a, b := mk(0, 1), mk(1, 1)
		b.Rows[0].Sums = nil
		assert.Equal(t, 1, a.Merge(b))
		assert.Equal(t, 1., a.Rows[0].Volume)
	}
}

func TestReduce(t *testing.T) {
	layout := Layout{VolumeWeighted: []Field{{"v", 1}}}
	build := func(np, NP int) *RowSet {
		rs := &RowSet{}
		for _, id := range []int{np, NP} {
			r := newRow(id, layout, np)
			r.Volume = 0.1 * float64(np+1)
			r.Mass = 0.3 * float64(np+1)
			r.VW[0] = r.Volume * 2
			r.Moments = [4]float64{0.1, 0.2, 0.3, r.Mass}
			r.Bounds = [6]float64{float64(np), float64(np) + 1, 0, 1, 0, 1}
			rs.Rows = append(rs.Rows, r)
		}
		return rs
	}
	for _, NP := range []int{1, 2, 3, 5, 8} {
		var (
			results = make([]*RowSet, NP)
		)
		err := parallel.NewWorld(NP).Run(context.Background(), func(ctx context.Context, c parallel.Communicator) error {
			out, dropped, err := Reduce(ctx, c, build(c.Rank(), NP), log.New(io.Discard, "", 0))
			results[c.Rank()] = out
			if dropped != 0 {
				t.Errorf("rank %d dropped %d rows", c.Rank(), dropped)
			}
			return err
		})
		require.NoError(t, err)
		for np := 1; np < NP; np++ {
			assert.Empty(t, results[np].Rows)
		}
		// Serial merge in the opposite order
		serial := build(NP-1, NP)
		for np := NP - 2; np >= 0; np-- {
			serial.Merge(build(np, NP))
		}
		got := results[0]
		require.Len(t, got.Rows, len(serial.Rows))
		for i, r := range got.Rows {
			s := serial.Rows[i]
			assert.Equal(t, s.ID, r.ID)
			assert.InDelta(t, s.Volume, r.Volume, 1e-12)
			assert.InDelta(t, s.Mass, r.Mass, 1e-12)
			assert.InDelta(t, s.VW[0], r.VW[0], 1e-12)
			for n := 0; n < 4; n++ {
				assert.InDelta(t, s.Moments[n], r.Moments[n], 1e-12)
			}
			assert.Equal(t, s.Bounds, r.Bounds)
			assert.Equal(t, s.Ranks, r.Ranks)
		}
		shared := got.Rows[len(got.Rows)-1]
		assert.Equal(t, NP, shared.ID)
		assert.Len(t, shared.Ranks, NP)
		frags := got.Finalize()
		assert.InDelta(t, 2, frags[len(frags)-1].VolumeWeighted[0], 1e-12)
		assert.Equal(t, NP > 1, frags[len(frags)-1].Split)
	}
}

func TestComputeOBB(t *testing.T) {
	{ // Degenerate inputs
		o := ComputeOBB(nil)
		assert.Equal(t, [3]float64{}, o.HalfLengths)
		o = ComputeOBB([][3]float64{{1, 2, 3}})
		assert.Equal(t, [3]float64{1, 2, 3}, o.Center)
		assert.Equal(t, 0., o.Volume())
	}
	{ // A rotated 4x3x2 lattice
		var (
			theta  = math.Pi / 6
			u      = [3]float64{math.Cos(theta), math.Sin(theta), 0}
			v      = [3]float64{-math.Sin(theta), math.Cos(theta), 0}
			origin = [3]float64{5, -1, 2}
			points [][3]float64
		)
		for k := 0; k < 2; k++ {
			for j := 0; j < 3; j++ {
				for i := 0; i < 4; i++ {
					var p [3]float64
					for n := 0; n < 3; n++ {
						p[n] = origin[n] + float64(i)*u[n] + float64(j)*v[n]
					}
					p[2] += float64(k)
					points = append(points, p)
				}
			}
		}
		o := ComputeOBB(points)
		assert.InDelta(t, 1.5, o.HalfLengths[0], 1e-12)
		assert.InDelta(t, 1, o.HalfLengths[1], 1e-12)
		assert.InDelta(t, 0.5, o.HalfLengths[2], 1e-12)
		assert.InDelta(t, 6, o.Volume(), 1e-11)
		dot := u[0]*o.Axes[0][0] + u[1]*o.Axes[0][1] + u[2]*o.Axes[0][2]
		assert.InDelta(t, 1, math.Abs(dot), 1e-12)
		for n := 0; n < 3; n++ {
			center := origin[n] + 1.5*u[n] + v[n]
			if n == 2 {
				center += 0.5
			}
			assert.InDelta(t, center, o.Center[n], 1e-12)
		}
		// Every point lies in the box spanned by the corners
		corners := o.Corners()
		for _, p := range points {
			for a := 0; a < 3; a++ {
				var (
					pp, lo, hi = dotp(o.Axes[a], p), math.Inf(1), math.Inf(-1)
				)
				for _, c := range corners {
					lo = math.Min(lo, dotp(o.Axes[a], c))
					hi = math.Max(hi, dotp(o.Axes[a], c))
				}
				assert.True(t, pp >= lo-1e-12 && pp <= hi+1e-12)
			}
		}
	}
}

func dotp(a, b [3]float64) float64 { return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] }

func TestAssignOBB(t *testing.T) {
	counts := [][]PointCount{
		{{ID: 1, N: 10}},
		{{ID: 1, N: 5}, {ID: 2, N: 3}},
	}
	assert.Equal(t, map[int]int{1: 0, 2: 1}, AssignOBB(counts, 100))
	// Rank 0 starts over the bound, and rank 1 goes over it taking fragment 1
	assert.Equal(t, map[int]int{1: 1, 2: 0}, AssignOBB(counts, 9))
}

func TestDistributeOBB(t *testing.T) {
	var (
		NP  = 3
		all = map[int][][3]float64{
			7: {{0, 0, 0}, {4, 0, 0}, {0, 1, 0}, {4, 1, 0}, {0, 0, 2}, {4, 1, 2}},
			9: {{1, 1, 1}, {2, 3, 1}},
		}
		result map[int]OBB
	)
	err := parallel.NewWorld(NP).Run(context.Background(), func(ctx context.Context, c parallel.Communicator) error {
		// Deal the points round robin over the ranks
		mine := make(map[int][][3]float64)
		for id, pts := range all {
			for i, p := range pts {
				if i%NP == c.Rank() {
					mine[id] = append(mine[id], p)
				}
			}
		}
		obbs, err := DistributeOBB(ctx, c, mine, 1000)
		if c.Rank() == 0 {
			result = obbs
		} else if obbs != nil {
			t.Errorf("rank %d received boxes", c.Rank())
		}
		return err
	})
	require.NoError(t, err)
	require.Len(t, result, 2)
	for id, pts := range all {
		want := ComputeOBB(pts)
		got := result[id]
		for n := 0; n < 3; n++ {
			assert.InDelta(t, want.HalfLengths[n], got.HalfLengths[n], 1e-9)
			assert.InDelta(t, want.Center[n], got.Center[n], 1e-9)
		}
	}
}
