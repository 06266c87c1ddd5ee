package state

// Ring is a bounded FIFO buffer. Pushing beyond capacity evicts the oldest entry.
// Not safe for concurrent use; the store is the only writer.
type Ring[T any] struct {
	buf   []T
	head  int
	count int
}

// NewRing creates a ring with the given capacity. Capacity must be positive.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends v, evicting the oldest entry when full.
func (r *Ring[T]) Push(v T) {
	tail := (r.head + r.count) % len(r.buf)
	r.buf[tail] = v
	if r.count < len(r.buf) {
		r.count++
		return
	}
	r.head = (r.head + 1) % len(r.buf)
}

// Len returns the number of buffered entries.
func (r *Ring[T]) Len() int { return r.count }

// Cap returns the fixed capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// Items returns a fresh slice of entries in insertion order, oldest first.
// The returned slice is safe to hand to a published snapshot.
func (r *Ring[T]) Items() []T {
	out := make([]T, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}
