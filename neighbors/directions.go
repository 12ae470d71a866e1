package neighbors

import "github.com/notargets/fragments/types"

// DirectionTable lists the 26 neighbor directions: the 6 faces first, then
// the 12 edges, then the 8 corners. It is built once and handed to the
// finder and the flood fill.
type DirectionTable struct {
	Dirs []types.Index3
}

func NewDirectionTable() (dt *DirectionTable) {
	dt = &DirectionTable{}
	for nonZero := 1; nonZero <= 3; nonZero++ {
		for k := -1; k <= 1; k++ {
			for j := -1; j <= 1; j++ {
				for i := -1; i <= 1; i++ {
					d := types.Index3{i, j, k}
					if Order(d) == nonZero {
						dt.Dirs = append(dt.Dirs, d)
					}
				}
			}
		}
	}
	return
}

// Order is 1 for a face, 2 for an edge, 3 for a corner direction
func Order(d types.Index3) (n int) {
	for _, v := range d {
		if v != 0 {
			n++
		}
	}
	return
}
