package integrate

import (
	"context"
	"fmt"
	"log"

	"github.com/notargets/fragments/parallel"
)

const tagReduce = 100 // Round r uses tagReduce + r

// Reduce merges the row sets of every rank onto rank 0 with a binary tree.
// In each round the upper half of the active ranks sends to its partner in
// the lower half, then the lower half becomes the active set. A rank that
// has sent returns an empty set. Rows dropped for mismatched widths are
// logged and counted.
func Reduce(ctx context.Context, c parallel.Communicator, rs *RowSet,
	logger *log.Logger) (out *RowSet, dropped int, err error) {
	var (
		me = c.Rank()
	)
	out = rs
	for round, active := 0, c.Size(); active > 1; round, active = round+1, (active+1)/2 {
		half := (active + 1) / 2
		switch {
		case me >= half:
			if err = c.Send(me-half, tagReduce+round, out); err != nil {
				return nil, dropped, fmt.Errorf("reduce round %d: %w", round, err)
			}
			return &RowSet{}, dropped, nil
		case me+half < active:
			var in *RowSet
			if in, err = parallel.RecvAs[*RowSet](ctx, c, me+half, tagReduce+round); err != nil {
				return nil, dropped, fmt.Errorf("reduce round %d: %w", round, err)
			}
			if n := out.Merge(in); n > 0 {
				if logger != nil {
					logger.Printf("reduce round %d: dropped %d rows from rank %d with mismatched widths",
						round, n, me+half)
				}
				dropped += n
			}
		}
	}
	return
}
