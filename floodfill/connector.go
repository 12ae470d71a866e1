package floodfill

import (
	"github.com/notargets/fragments/amr"
	"github.com/notargets/fragments/equivalence"
	"github.com/notargets/fragments/integrate"
	"github.com/notargets/fragments/neighbors"
	"github.com/notargets/fragments/types"
	"github.com/notargets/fragments/utils"
)

type State uint8

const (
	Idle State = iota
	Seeding
	Growing
	Done
)

func (s State) String() string {
	return [...]string{"Idle", "Seeding", "Growing", "Done"}[s]
}

// Connector labels the connected above threshold cells of the local blocks
// of one material. Local cells are grown into across block boundaries;
// ghost cells end the growth and leave an equivalence request for their
// owner instead.
type Connector struct {
	H      *amr.Hierarchy
	Finder *neighbors.Finder
	Acc    *integrate.Accumulator
	Clip   Clip // Optional, masks the cells taking part

	Set      *equivalence.Set
	Requests []equivalence.Request
	Absent   int // Neighbor cells skipped for lack of data

	state     State
	threshold uint8
	queue     *utils.RingBuffer[types.CellKey]
	requested map[request]bool
	next      struct {
		local int // Position in H.Local()
		cell  int
	}
}

type request struct {
	block    amr.BlockID
	cell     int
	fragment int32
}

func NewConnector(h *amr.Hierarchy, finder *neighbors.Finder, acc *integrate.Accumulator) *Connector {
	return &Connector{
		H:      h,
		Finder: finder,
		Acc:    acc,
		queue:  utils.NewRingBuffer[types.CellKey](1024),
	}
}

func (c *Connector) State() State { return c.state }

// Init starts a material pass at the given fraction threshold
func (c *Connector) Init(threshold float64) {
	c.threshold = amr.ScaleThreshold(threshold)
	for _, id := range c.H.Local() {
		c.H.Block(id).ResetFragments()
	}
	c.queue.Reset()
	c.Set = equivalence.NewSet(0)
	c.Requests = nil
	c.Absent = 0
	c.requested = make(map[request]bool)
	c.next.local, c.next.cell = 0, 0
	c.state = Seeding
}

// Seed resumes the raster scan of the local blocks, in creation order, and
// starts a fragment at the first unvisited member cell. It reports false
// once no seed remains.
func (c *Connector) Seed() bool {
	if c.state != Seeding {
		return false
	}
	local := c.H.Local()
	for ; c.next.local < len(local); c.next.local, c.next.cell = c.next.local+1, 0 {
		var (
			id = local[c.next.local]
			b  = c.H.Block(id)
		)
		for ; c.next.cell < b.NumCells(); c.next.cell++ {
			cell := c.next.cell
			if b.Fragments[cell] >= 0 || !c.member(b, cell) {
				continue
			}
			c.mark(id, cell, int32(c.Set.Add()))
			c.state = Growing
			return true
		}
	}
	c.state = Done
	return false
}

// Grow drains the queue, labelling every local cell reachable from the
// current seed through the 26 neighbor directions
func (c *Connector) Grow() {
	if c.state != Growing {
		return
	}
	dirs := c.Finder.Directions().Dirs
	for {
		key, ok := c.queue.Pop()
		if !ok {
			break
		}
		var (
			bi, cell = key.Split()
			id       = amr.BlockID(bi)
			frag     = c.H.Block(id).Fragments[cell]
		)
		for _, dir := range dirs {
			c.Finder.VisitCellNeighbors(id, cell, dir, func(nid amr.BlockID, ncell int) {
				c.visit(nid, ncell, frag)
			})
		}
	}
	c.state = Seeding
}

func (c *Connector) visit(nid amr.BlockID, ncell int, frag int32) {
	nb := c.H.Block(nid)
	if !nb.HasCell(ncell) {
		c.Absent++
		return
	}
	if !c.member(nb, ncell) {
		return
	}
	switch {
	case nb.Local:
		switch other := nb.Fragments[ncell]; {
		case other < 0:
			c.mark(nid, ncell, frag)
		case other != frag:
			c.Set.AddEquivalence(int(frag), int(other))
		}
	case nb.Ghost:
		rq := request{block: nid, cell: ncell, fragment: frag}
		if c.requested[rq] {
			return
		}
		c.requested[rq] = true
		c.Requests = append(c.Requests, equivalence.Request{
			Owner:    nb.Owner,
			Key:      nb.BlockKey,
			Cell:     int32(ncell),
			Fragment: int(frag),
		})
	}
}

// member reports whether a cell takes part in the fill: above the threshold
// and accepted by the clip when there is one. Local and ghost cells get the
// same test, so the fragments do not depend on how the blocks are split.
func (c *Connector) member(b *amr.Block, cell int) bool {
	if !b.IsAboveThreshold(cell, c.threshold) {
		return false
	}
	return c.Clip == nil || c.Clip.Accept(b.CellCenter(cell))
}

func (c *Connector) mark(id amr.BlockID, cell int, frag int32) {
	b := c.H.Block(id)
	b.Fragments[cell] = frag
	if c.Acc != nil {
		c.Acc.AddCell(int(frag), b, cell)
	}
	c.queue.Push(types.NewCellKey(int(id), cell))
}

// Run performs a whole material pass and returns the number of local
// fragments found
func (c *Connector) Run(threshold float64) int {
	c.Init(threshold)
	for c.Seed() {
		c.Grow()
	}
	return c.Set.Len()
}

// Lookup answers equivalence requests against the local blocks
func (c *Connector) Lookup(key types.BlockKey, cell int32) (fragment int, ok bool) {
	var (
		id amr.BlockID
	)
	if id, ok = c.H.LookupKey(key); !ok {
		return
	}
	b := c.H.Block(id)
	if !b.Local || cell < 0 || int(cell) >= len(b.Fragments) || b.Fragments[cell] < 0 {
		return 0, false
	}
	return int(b.Fragments[cell]), true
}
