package equivalence

import (
	"context"
	"fmt"
	"log"

	"github.com/notargets/fragments/parallel"
	"github.com/notargets/fragments/types"
)

// Request is an equivalence recorded against a ghost cell: local fragment
// Fragment touches cell Cell of block Key, which rank Owner holds
type Request struct {
	Owner    int
	Key      types.BlockKey
	Cell     int32
	Fragment int
}

// Lookup returns the local fragment an owned cell was assigned, false when
// the block is unknown or the cell was never visited
type Lookup func(key types.BlockKey, cell int32) (fragment int, ok bool)

// Pair joins two raw global fragment ids
type Pair [2]int

type Resolution struct {
	Offset                    int // Raw global id of this rank's first local class
	TotalRaw                  int
	NumberOfResolvedFragments int
	LocalToGlobal             []int // Per local fragment id
	Dropped                   int   // Requests this rank could not answer
}

type Resolver struct {
	Comm   parallel.Communicator
	Logger *log.Logger
}

// routedRequest is a request as the owner sees it, the requester's class
// already numbered globally
type routedRequest struct {
	Raw  int
	Key  types.BlockKey
	Cell int32
}

// Resolve turns the local equivalence set and the ghost requests of every
// rank into dense global fragment ids. Every rank must call it; each ends
// up with the same global union so no further exchange is needed.
func (r *Resolver) Resolve(ctx context.Context, set *Set, requests []Request,
	lookup Lookup) (res *Resolution, err error) {
	var (
		c            = r.Comm
		NP           = c.Size()
		rootIndex, n = set.Compress()
		incoming     [][]routedRequest
		gathered     [][]Pair
	)
	res = &Resolution{}
	if res.Offset, res.TotalRaw, err = parallel.ExclusiveScan(ctx, c, n); err != nil {
		return nil, fmt.Errorf("gathering fragment counts: %w", err)
	}

	outgoing := make([][]routedRequest, NP)
	seen := make(map[routedRequest]bool)
	for _, req := range requests {
		if req.Owner < 0 || req.Owner >= NP || req.Fragment < 0 || req.Fragment >= len(rootIndex) {
			r.logger().Printf("dropping equivalence request %+v: owner or fragment out of range", req)
			res.Dropped++
			continue
		}
		rr := routedRequest{Raw: res.Offset + rootIndex[req.Fragment], Key: req.Key, Cell: req.Cell}
		if seen[rr] {
			continue
		}
		seen[rr] = true
		outgoing[req.Owner] = append(outgoing[req.Owner], rr)
	}
	if incoming, err = parallel.AllToAll(ctx, c, outgoing); err != nil {
		return nil, fmt.Errorf("routing equivalence requests: %w", err)
	}

	var local []Pair
	for np, reqs := range incoming {
		for _, rr := range reqs {
			frag, ok := lookup(rr.Key, rr.Cell)
			if !ok || frag < 0 || frag >= len(rootIndex) {
				r.logger().Printf("dropping equivalence from rank %d: cell %d of block %s has no fragment",
					np, rr.Cell, rr.Key)
				res.Dropped++
				continue
			}
			local = append(local, Pair{rr.Raw, res.Offset + rootIndex[frag]})
		}
	}
	if gathered, err = parallel.AllGather(ctx, c, local); err != nil {
		return nil, fmt.Errorf("gathering equivalence pairs: %w", err)
	}

	global := NewSet(res.TotalRaw)
	for _, rankPairs := range gathered {
		for _, p := range rankPairs {
			if p[0] < 0 || p[0] >= res.TotalRaw || p[1] < 0 || p[1] >= res.TotalRaw {
				r.logger().Printf("dropping equivalence pair %v outside [0,%d)", p, res.TotalRaw)
				continue
			}
			global.AddEquivalence(p[0], p[1])
		}
	}
	globalIndex, nResolved := global.Compress()
	res.NumberOfResolvedFragments = nResolved
	res.LocalToGlobal = make([]int, len(rootIndex))
	for id, ri := range rootIndex {
		res.LocalToGlobal[id] = globalIndex[res.Offset+ri]
	}
	return
}

func (r *Resolver) logger() *log.Logger {
	if r.Logger == nil {
		return log.Default()
	}
	return r.Logger
}
