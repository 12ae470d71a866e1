package utils

// RingBuffer is a growable FIFO queue. The flood fill pushes pending cell
// references here; storage is reused across passes via Reset.
type RingBuffer[T any] struct {
	cells      []T
	head, size int
}

func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity < 1 {
		capacity = 16
	}
	return &RingBuffer[T]{
		cells: make([]T, capacity),
	}
}

func (rb *RingBuffer[T]) Len() int { return rb.size }

func (rb *RingBuffer[T]) Cap() int { return len(rb.cells) }

func (rb *RingBuffer[T]) Push(val T) {
	if rb.size == len(rb.cells) {
		rb.grow()
	}
	tail := (rb.head + rb.size) % len(rb.cells)
	rb.cells[tail] = val
	rb.size++
}

// Pop removes the oldest entry, ok is false when the buffer is empty
func (rb *RingBuffer[T]) Pop() (val T, ok bool) {
	if rb.size == 0 {
		return
	}
	val = rb.cells[rb.head]
	var zero T
	rb.cells[rb.head] = zero
	rb.head = (rb.head + 1) % len(rb.cells)
	rb.size--
	ok = true
	return
}

func (rb *RingBuffer[T]) Reset() {
	var zero T
	for i := range rb.cells {
		rb.cells[i] = zero
	}
	rb.head, rb.size = 0, 0
}

func (rb *RingBuffer[T]) grow() {
	var (
		newCells = make([]T, 2*len(rb.cells))
	)
	// Unroll the wrapped contents so the oldest entry lands at 0
	for i := 0; i < rb.size; i++ {
		newCells[i] = rb.cells[(rb.head+i)%len(rb.cells)]
	}
	rb.cells = newCells
	rb.head = 0
}
