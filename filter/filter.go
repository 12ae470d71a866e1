package filter

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"

	"github.com/notargets/fragments/amr"
	"github.com/notargets/fragments/equivalence"
	"github.com/notargets/fragments/floodfill"
	"github.com/notargets/fragments/integrate"
	"github.com/notargets/fragments/neighbors"
	"github.com/notargets/fragments/parallel"
)

// ErrConfiguration marks a setup failure: Execute fails on every rank and
// produces no output
var ErrConfiguration = errors.New("configuration error")

// MaterialInterfaceFilter finds the fragments of each selected material in
// a distributed AMR volume and integrates their attributes. Every rank
// runs Execute with the same settings on its own blocks.
type MaterialInterfaceFilter struct {
	MaterialFractionThreshold float64 // In [0,1], a cell belongs when strictly above
	InvertVolumeFraction      bool
	ComputeOBB                bool
	UpperLoadingBound         int // Cells a rank may hold before it is skipped for OBB work
	BlockGhostLevel           int // Ghost layers every input block carries
	GhostLayerDepth           int // Boundary layers sent to neighboring ranks
	ClipFunction              floodfill.Clip
	WriteGeometryOutput       bool
	WriteStatisticsOutput     bool
	OutputBaseName            string

	MaterialArrays              amr.ArraySelection
	MassArrays                  amr.ArraySelection // Paired with the materials by position
	VolumeWeightedAverageArrays amr.ArraySelection
	MassWeightedAverageArrays   amr.ArraySelection
	SummationArrays             amr.ArraySelection

	Logger *log.Logger // Defaults to stderr with a rank prefix

	dirs *neighbors.DirectionTable
}

func NewMaterialInterfaceFilter() *MaterialInterfaceFilter {
	return &MaterialInterfaceFilter{
		MaterialFractionThreshold: 0.5,
		UpperLoadingBound:         1000000,
		BlockGhostLevel:           1,
		GhostLayerDepth:           1,
		OutputBaseName:            "fragments",
		dirs:                      neighbors.NewDirectionTable(),
	}
}

// Diagnostics counts what this rank recovered from locally. Non-zero
// values mean some fragment may be undercounted.
type Diagnostics struct {
	GhostCellsSkipped    int // Ghost cells outside their block
	GhostLayersRejected  int // Ghost layers for unknown or local blocks
	AbsentNeighbors      int // Neighbor cells without data
	DroppedEquivalences  int // Requests this rank could not answer
	DroppedRows          int // Rows with mismatched widths during the reduction
	SkippedContributions int // Cells whose integrated arrays were short
	OutputErrors         int
}

// Table is the result for one material. The fragments are only present on
// rank 0, every rank sees the counts.
type Table struct {
	Material                  string
	NumberOfRawFragments      int
	NumberOfResolvedFragments int
	NumberOfFragments         int
	TotalVolume               float64
	Layout                    integrate.Layout
	Fragments                 []integrate.Fragment
}

type Output struct {
	Tables      []Table
	Diagnostics Diagnostics
}

// rankMeta is what each rank reports about its input before any pass
type rankMeta struct {
	HasBlocks bool
	Geometry  amr.Geometry
	Comps     map[string]int
}

func (f *MaterialInterfaceFilter) logger(rank int) *log.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return log.New(os.Stderr, fmt.Sprintf("[rank %d] ", rank), log.LstdFlags)
}

func configErr(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// validate checks the settings that do not depend on the input
func (f *MaterialInterfaceFilter) validate() error {
	switch {
	case f.MaterialFractionThreshold < 0 || f.MaterialFractionThreshold > 1:
		return configErr("material fraction threshold %v is outside [0,1]", f.MaterialFractionThreshold)
	case f.UpperLoadingBound < 0:
		return configErr("negative upper loading bound %d", f.UpperLoadingBound)
	case f.BlockGhostLevel < 0 || f.BlockGhostLevel > 255:
		return configErr("block ghost level %d is outside [0,255]", f.BlockGhostLevel)
	case f.GhostLayerDepth < 1:
		return configErr("ghost layer depth %d must be at least 1", f.GhostLayerDepth)
	}
	materials, masses := f.MaterialArrays.Selected(), f.MassArrays.Selected()
	if len(materials) == 0 {
		return configErr("no material array selected")
	}
	if len(masses) != 0 && len(masses) != len(materials) {
		return configErr("%d mass arrays selected for %d materials", len(masses), len(materials))
	}
	if len(f.MassWeightedAverageArrays.Selected()) != 0 && len(masses) == 0 {
		return configErr("mass weighted averages need mass arrays")
	}
	if f.ClipFunction != nil {
		if err := f.ClipFunction.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
	}
	return nil
}

// loadBlocks builds the local blocks and checks the selected arrays exist
// on each of them with a consistent component count
func (f *MaterialInterfaceFilter) loadBlocks(ds *amr.Dataset, rank int) (blocks []*amr.Block,
	meta rankMeta, err error) {
	meta.Comps = make(map[string]int)
	if ds == nil || len(ds.Blocks) == 0 {
		return
	}
	meta.HasBlocks = true
	meta.Geometry = ds.Geometry
	var (
		scalars = append(f.MaterialArrays.Selected(), f.MassArrays.Selected()...)
		fields  = f.fieldNames()
	)
	for i, spec := range ds.Blocks {
		if spec.GhostLevel != f.BlockGhostLevel {
			return nil, meta, configErr("block %d carries %d ghost levels, expected %d",
				i, spec.GhostLevel, f.BlockGhostLevel)
		}
		var b *amr.Block
		if b, err = amr.NewLocalBlock(spec, ds.Geometry, rank); err != nil {
			return nil, meta, fmt.Errorf("%w: block %d: %w", ErrConfiguration, i, err)
		}
		for _, name := range scalars {
			if arr, ok := b.Array(name); !ok || arr.NComps != 1 {
				return nil, meta, configErr("block %s has no scalar array %q", b.BlockKey, name)
			}
		}
		for _, name := range fields {
			arr, ok := b.Array(name)
			if !ok {
				return nil, meta, configErr("block %s has no array %q", b.BlockKey, name)
			}
			if n, seen := meta.Comps[name]; seen && n != arr.NComps {
				return nil, meta, configErr("array %q has %d components on block %s, %d elsewhere",
					name, arr.NComps, b.BlockKey, n)
			}
			meta.Comps[name] = arr.NComps
		}
		blocks = append(blocks, b)
	}
	return
}

func (f *MaterialInterfaceFilter) fieldNames() (names []string) {
	names = append(names, f.VolumeWeightedAverageArrays.Selected()...)
	names = append(names, f.MassWeightedAverageArrays.Selected()...)
	names = append(names, f.SummationArrays.Selected()...)
	return
}

// layout merges the array metadata of every rank. Ranks without blocks do
// not vote; arrays no rank holds default to one component.
func (f *MaterialInterfaceFilter) layout(metas []rankMeta) (layout integrate.Layout,
	geom amr.Geometry, err error) {
	var (
		comps = make(map[string]int)
		first = -1
	)
	for np, m := range metas {
		if !m.HasBlocks {
			continue
		}
		if first < 0 {
			first, geom = np, m.Geometry
		} else if m.Geometry != geom {
			return layout, geom, configErr("rank %d has geometry %+v, rank %d has %+v",
				np, m.Geometry, first, geom)
		}
		for name, n := range m.Comps {
			if prev, ok := comps[name]; ok && prev != n {
				return layout, geom, configErr("array %q has %d components on rank %d, %d elsewhere",
					name, n, np, prev)
			}
			comps[name] = n
		}
	}
	fields := func(sel *amr.ArraySelection) (fl []integrate.Field) {
		for _, name := range sel.Selected() {
			n := comps[name]
			if n == 0 {
				n = 1
			}
			fl = append(fl, integrate.Field{Name: name, NComps: n})
		}
		return
	}
	layout = integrate.Layout{
		VolumeWeighted: fields(&f.VolumeWeightedAverageArrays),
		MassWeighted:   fields(&f.MassWeightedAverageArrays),
		Sums:           fields(&f.SummationArrays),
		ComputeOBB:     f.ComputeOBB,
	}
	return
}

// agree makes a setup failure on any rank a failure on every rank
func agree(ctx context.Context, c parallel.Communicator, err error) error {
	failed, cerr := parallel.AllReduceOr(ctx, c, err != nil)
	switch {
	case cerr != nil:
		return cerr
	case err != nil:
		return err
	case failed:
		return fmt.Errorf("%w: rejected on another rank", ErrConfiguration)
	}
	return nil
}

// buildHierarchy registers every block of every rank in rank order, the
// local ones with their data
func buildHierarchy(geom amr.Geometry, rank int, local []*amr.Block,
	infos [][]amr.BlockInfo) (h *amr.Hierarchy, err error) {
	h = amr.NewHierarchy(geom, rank)
	for np, rankInfos := range infos {
		for i, info := range rankInfos {
			b := amr.NewRemoteBlock(info, geom)
			if np == rank {
				b = local[i]
			}
			if _, err = h.Add(b); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
			}
		}
	}
	return
}

// Execute runs the filter on this rank's blocks. Every rank of c must call
// it. A configuration problem on any rank fails all of them with
// ErrConfiguration before any material is processed.
func (f *MaterialInterfaceFilter) Execute(ctx context.Context, c parallel.Communicator,
	ds *amr.Dataset) (out *Output, err error) {
	var (
		me     = c.Rank()
		logger = f.logger(me)
		local  []*amr.Block
		meta   rankMeta
		metas  []rankMeta
		layout integrate.Layout
		geom   amr.Geometry
		infos  [][]amr.BlockInfo
		h      *amr.Hierarchy
	)
	if f.dirs == nil {
		f.dirs = neighbors.NewDirectionTable()
	}
	setupErr := f.validate()
	if setupErr == nil {
		local, meta, setupErr = f.loadBlocks(ds, me)
	}
	if metas, err = parallel.AllGather(ctx, c, meta); err != nil {
		return nil, err
	}
	if setupErr == nil {
		layout, geom, setupErr = f.layout(metas)
	}
	if err = agree(ctx, c, setupErr); err != nil {
		logger.Printf("setup failed: %v", err)
		return nil, err
	}

	myInfos := make([]amr.BlockInfo, len(local))
	for i, b := range local {
		myInfos[i] = b.Info()
	}
	if infos, err = parallel.AllGather(ctx, c, myInfos); err != nil {
		return nil, err
	}
	h, setupErr = buildHierarchy(geom, me, local, infos)
	if err = agree(ctx, c, setupErr); err != nil {
		logger.Printf("setup failed: %v", err)
		return nil, err
	}

	var (
		materials = f.MaterialArrays.Selected()
		masses    = f.MassArrays.Selected()
		finder    = neighbors.NewFinder(h, f.dirs)
	)
	out = &Output{}
	for m, name := range materials {
		var massName string
		if len(masses) != 0 {
			massName = masses[m]
		}
		for _, b := range local {
			if err = b.LoadMaterial(name, massName, f.InvertVolumeFraction); err != nil {
				return nil, err
			}
		}
		var table Table
		if table, err = f.pass(ctx, c, h, finder, name, layout, &out.Diagnostics, logger); err != nil {
			return nil, fmt.Errorf("material %q: %w", name, err)
		}
		out.Tables = append(out.Tables, table)
	}
	if me == 0 {
		f.writeOutputs(out, logger)
	}
	// Nobody returns before the files are on disk
	err = parallel.Barrier(ctx, c)
	return
}

// pass processes one material: ghost exchange, flood fill, resolution,
// reduction, and boxes
func (f *MaterialInterfaceFilter) pass(ctx context.Context, c parallel.Communicator,
	h *amr.Hierarchy, finder *neighbors.Finder, name string, layout integrate.Layout,
	diag *Diagnostics, logger *log.Logger) (table Table, err error) {
	var (
		me         = c.Rank()
		acc        = integrate.NewAccumulator(layout)
		conn       = floodfill.NewConnector(h, finder, acc)
		resolver   = &equivalence.Resolver{Comm: c, Logger: logger}
		res        *equivalence.Resolution
		reduced    *integrate.RowSet
		obbs       map[int]integrate.OBB
		dropped    int
		largest    int
		allDropped int
	)
	defer h.DropGhosts()
	if err = exchangeGhosts(ctx, c, h, finder, f.GhostLayerDepth, f.InvertVolumeFraction, diag, logger); err != nil {
		return
	}
	conn.Clip = f.ClipFunction
	nLocal := conn.Run(f.MaterialFractionThreshold)
	diag.AbsentNeighbors += conn.Absent
	diag.SkippedContributions += acc.Skipped
	if res, err = resolver.Resolve(ctx, conn.Set, conn.Requests, conn.Lookup); err != nil {
		return
	}
	diag.DroppedEquivalences += res.Dropped
	if largest, err = parallel.AllReduceMax(ctx, c, nLocal); err != nil {
		return
	}
	if allDropped, err = parallel.AllReduceSum(ctx, c, res.Dropped); err != nil {
		return
	}
	if me == 0 && allDropped != 0 {
		logger.Printf("material %s: %d equivalence requests dropped over all ranks", name, allDropped)
	}
	rows, points := acc.Rekey(res.LocalToGlobal, me)
	if reduced, dropped, err = integrate.Reduce(ctx, c, rows, logger); err != nil {
		return
	}
	diag.DroppedRows += dropped
	if f.ComputeOBB {
		if obbs, err = integrate.DistributeOBB(ctx, c, points, f.UpperLoadingBound); err != nil {
			return
		}
	}
	table = Table{
		Material:                  name,
		NumberOfRawFragments:      res.TotalRaw,
		NumberOfResolvedFragments: res.NumberOfResolvedFragments,
		Layout:                    layout,
	}
	if me == 0 {
		table.TotalVolume = reduced.TotalVolume()
		table.Fragments = reduced.Finalize()
		for i := range table.Fragments {
			if o, ok := obbs[table.Fragments[i].ID]; ok {
				table.Fragments[i].OBB = &o
			}
		}
	}
	if table.NumberOfFragments, err = parallel.Broadcast(ctx, c, 0, len(table.Fragments)); err != nil {
		return
	}
	logger.Printf("material %s: %d local fragments (most on a rank %d), %d resolved, %d requests",
		name, nLocal, largest, res.NumberOfResolvedFragments, len(conn.Requests))
	return
}

// exchangeGhosts sends each remote neighbor the boundary layers of the
// local blocks facing it, one message per rank, and attaches what arrives.
// Bad layers are logged and skipped.
func exchangeGhosts(ctx context.Context, c parallel.Communicator, h *amr.Hierarchy,
	finder *neighbors.Finder, depth int, invert bool, diag *Diagnostics, logger *log.Logger) (err error) {
	var (
		NP       = c.Size()
		outgoing = make([][]amr.GhostLayer, NP)
		incoming [][]amr.GhostLayer
	)
	for _, id := range h.Local() {
		var (
			b     = h.Block(id)
			cells = make(map[int]map[int]bool) // owner -> cells
		)
		for _, adj := range finder.Neighbors(id) {
			nb := h.Block(adj.Neighbor)
			if nb.Local {
				continue
			}
			if cells[nb.Owner] == nil {
				cells[nb.Owner] = make(map[int]bool)
			}
			for _, cell := range b.BoundaryLayer(adj.Dir, depth) {
				cells[nb.Owner][cell] = true
			}
		}
		for owner, set := range cells {
			sorted := make([]int, 0, len(set))
			for cell := range set {
				sorted = append(sorted, cell)
			}
			sort.Ints(sorted)
			outgoing[owner] = append(outgoing[owner], b.ExportGhostLayer(sorted))
		}
	}
	if incoming, err = parallel.AllToAll(ctx, c, outgoing); err != nil {
		return fmt.Errorf("ghost exchange: %w", err)
	}
	for np, layers := range incoming {
		for _, gl := range layers {
			skipped, aerr := h.AttachGhost(gl, invert)
			if aerr != nil {
				logger.Printf("ghost layer from rank %d rejected: %v", np, aerr)
				diag.GhostLayersRejected++
				continue
			}
			if skipped > 0 {
				logger.Printf("ghost layer %s from rank %d: %d cells out of range", gl.Key, np, skipped)
				diag.GhostCellsSkipped += skipped
			}
		}
	}
	return
}
