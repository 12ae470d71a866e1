package parallel

// PartitionMap deals NumItems items over NumRanks ranks in contiguous runs.
// The first NumItems%NumRanks ranks hold one item more than the rest.
type PartitionMap struct {
	NumRanks, NumItems int
}

func NewPartitionMap(numRanks, numItems int) PartitionMap {
	return PartitionMap{NumRanks: numRanks, NumItems: numItems}
}

// Owner returns the rank holding item k, or -1 when k is out of range
func (pm PartitionMap) Owner(k int) int {
	if k < 0 || k >= pm.NumItems || pm.NumRanks < 1 {
		return -1
	}
	var (
		base  = pm.NumItems / pm.NumRanks
		extra = pm.NumItems % pm.NumRanks
		wide  = extra * (base + 1)
	)
	if k < wide {
		return k / (base + 1)
	}
	return extra + (k-wide)/base
}
