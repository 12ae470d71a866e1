package parallel

import (
	"context"
	"fmt"
)

// Collectives are built from point-to-point messages. Every rank must call
// the same collectives in the same order; there is no timeout, a rank that
// never arrives stalls the others until ctx is cancelled. Payloads are
// shared, not copied: a received value is read-only for the receiver.

func RecvAs[T any](ctx context.Context, c Communicator, source, tag int) (val T, err error) {
	var (
		payload any
		ok      bool
	)
	if payload, err = c.Recv(ctx, source, tag); err != nil {
		return
	}
	if val, ok = payload.(T); !ok {
		err = fmt.Errorf("rank %d: message from %d tag %d has type %T, expected %T",
			c.Rank(), source, tag, payload, val)
	}
	return
}

// Broadcast returns root's value on every rank
func Broadcast[T any](ctx context.Context, c Communicator, root int, val T) (T, error) {
	if c.Rank() == root {
		for np := 0; np < c.Size(); np++ {
			if np == root {
				continue
			}
			if err := c.Send(np, tagBroadcast, val); err != nil {
				return val, err
			}
		}
		return val, nil
	}
	return RecvAs[T](ctx, c, root, tagBroadcast)
}

// Gather collects one value per rank at root, in rank order. Non-root ranks
// receive nil.
func Gather[T any](ctx context.Context, c Communicator, root int, val T) (all []T, err error) {
	if c.Rank() != root {
		err = c.Send(root, tagGather, val)
		return
	}
	all = make([]T, c.Size())
	for np := 0; np < c.Size(); np++ {
		if np == root {
			all[np] = val
			continue
		}
		if all[np], err = RecvAs[T](ctx, c, np, tagGather); err != nil {
			return nil, err
		}
	}
	return
}

// AllGather returns the rank-ordered values of every rank on every rank
func AllGather[T any](ctx context.Context, c Communicator, val T) (all []T, err error) {
	if all, err = Gather(ctx, c, 0, val); err != nil {
		return
	}
	return Broadcast(ctx, c, 0, all)
}

// AllToAll sends out[np] to rank np and returns what every rank sent here
func AllToAll[T any](ctx context.Context, c Communicator, out []T) (in []T, err error) {
	var (
		me = c.Rank()
		NP = c.Size()
	)
	if len(out) != NP {
		return nil, fmt.Errorf("all-to-all on rank %d: have %d outgoing buffers for %d ranks",
			me, len(out), NP)
	}
	for np := 0; np < NP; np++ {
		if np == me {
			continue
		}
		if err = c.Send(np, tagAllToAll, out[np]); err != nil {
			return
		}
	}
	in = make([]T, NP)
	in[me] = out[me]
	for np := 0; np < NP; np++ {
		if np == me {
			continue
		}
		if in[np], err = RecvAs[T](ctx, c, np, tagAllToAll); err != nil {
			return nil, err
		}
	}
	return
}

// ExclusiveScan returns the sum of val over all lower ranks, and the total
func ExclusiveScan(ctx context.Context, c Communicator, val int) (offset, total int, err error) {
	var all []int
	if all, err = AllGather(ctx, c, val); err != nil {
		return
	}
	for np, v := range all {
		if np < c.Rank() {
			offset += v
		}
		total += v
	}
	return
}

type Number interface {
	~int | ~int32 | ~int64 | ~float64
}

func AllReduceSum[T Number](ctx context.Context, c Communicator, val T) (sum T, err error) {
	var all []T
	if all, err = AllGather(ctx, c, val); err != nil {
		return
	}
	for _, v := range all {
		sum += v
	}
	return
}

func AllReduceMax[T Number](ctx context.Context, c Communicator, val T) (maxVal T, err error) {
	var all []T
	if all, err = AllGather(ctx, c, val); err != nil {
		return
	}
	maxVal = all[0]
	for _, v := range all[1:] {
		if v > maxVal {
			maxVal = v
		}
	}
	return
}

// AllReduceOr is the logical-or reduction, used to agree on failure
func AllReduceOr(ctx context.Context, c Communicator, val bool) (result bool, err error) {
	var all []bool
	if all, err = AllGather(ctx, c, val); err != nil {
		return
	}
	for _, v := range all {
		result = result || v
	}
	return
}

func Barrier(ctx context.Context, c Communicator) error {
	_, err := AllGather(ctx, c, struct{}{})
	return err
}
