package parallel

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Communicator is the message passing surface consumed by the filter. The
// in-process World implements it with one goroutine per rank; an MPI backed
// implementation only has to supply tagged point-to-point messaging.
//
// Send never blocks. Recv blocks until a message from source with the given
// tag arrives, or ctx is done. Messages between one (source, destination,
// tag) triple are delivered in the order they were sent.
type Communicator interface {
	Rank() int
	Size() int
	Send(dest, tag int, payload any) error
	Recv(ctx context.Context, source, tag int) (any, error)
}

// Reserved tags for collectives, user tags must be non-negative
const (
	tagBroadcast = -1 - iota
	tagGather
	tagAllToAll
)

type envelope struct {
	source, tag int
	payload     any
}

type mailbox struct {
	mu     sync.Mutex
	queue  []envelope
	signal chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{
		signal: make(chan struct{}, 1),
	}
}

func (mb *mailbox) post(env envelope) {
	mb.mu.Lock()
	mb.queue = append(mb.queue, env)
	mb.mu.Unlock()
	select {
	case mb.signal <- struct{}{}:
	default:
	}
}

func (mb *mailbox) take(source, tag int) (payload any, ok bool) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	for i, env := range mb.queue {
		if env.source == source && env.tag == tag {
			payload = env.payload
			mb.queue = append(mb.queue[:i], mb.queue[i+1:]...)
			return payload, true
		}
	}
	return
}

func (mb *mailbox) pending() int {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return len(mb.queue)
}

// World is a set of in-process ranks sharing one mailbox per rank
type World struct {
	NP    int
	boxes []*mailbox
}

func NewWorld(NP int) *World {
	if NP < 1 {
		panic(fmt.Sprintf("world size must be positive, have %d", NP))
	}
	w := &World{
		NP:    NP,
		boxes: make([]*mailbox, NP),
	}
	for n := 0; n < NP; n++ {
		w.boxes[n] = newMailbox()
	}
	return w
}

func (w *World) Comm(rank int) *Comm {
	if rank < 0 || rank >= w.NP {
		panic(fmt.Sprintf("rank %d out of bounds", rank))
	}
	return &Comm{world: w, rank: rank}
}

// Pending reports the number of undelivered messages across all ranks
func (w *World) Pending() (n int) {
	for _, mb := range w.boxes {
		n += mb.pending()
	}
	return
}

// Run executes fn once per rank, each on its own goroutine, and waits for
// all of them. The first failing rank cancels the shared context so ranks
// blocked in Recv return instead of stalling.
func (w *World) Run(ctx context.Context,
	fn func(ctx context.Context, comm Communicator) error) error {
	var (
		wg          = sync.WaitGroup{}
		errs        = make([]error, w.NP)
		cctx, abort = context.WithCancel(ctx)
	)
	defer abort()
	for np := 0; np < w.NP; np++ {
		wg.Add(1)
		go func(np int) {
			defer wg.Done()
			if err := fn(cctx, w.Comm(np)); err != nil {
				errs[np] = fmt.Errorf("rank %d: %w", np, err)
				abort()
			}
		}(np)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Comm is one rank's view of a World
type Comm struct {
	world *World
	rank  int
}

func (c *Comm) Rank() int { return c.rank }

func (c *Comm) Size() int { return c.world.NP }

func (c *Comm) Send(dest, tag int, payload any) error {
	if dest < 0 || dest >= c.world.NP {
		return fmt.Errorf("send from rank %d: destination %d out of bounds", c.rank, dest)
	}
	c.world.boxes[dest].post(envelope{source: c.rank, tag: tag, payload: payload})
	return nil
}

func (c *Comm) Recv(ctx context.Context, source, tag int) (payload any, err error) {
	if source < 0 || source >= c.world.NP {
		return nil, fmt.Errorf("recv on rank %d: source %d out of bounds", c.rank, source)
	}
	mb := c.world.boxes[c.rank]
	for {
		var ok bool
		if payload, ok = mb.take(source, tag); ok {
			return
		}
		select {
		case <-mb.signal:
		case <-ctx.Done():
			return nil, fmt.Errorf("recv on rank %d from %d tag %d: %w",
				c.rank, source, tag, ctx.Err())
		}
	}
}
