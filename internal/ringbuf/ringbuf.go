// Package ringbuf provides the bounded ring buffers used on the hot
// demodulator path. All rings are allocated once at construction; none of
// the operations allocate.
package ringbuf

// Ring is a bounded FIFO that drops the oldest element on overflow. It also
// exposes an index-based look-behind view so sync detectors can examine the
// most recent N elements without consuming them.
type Ring[T any] struct {
	buf   []T
	head  int // next write position
	count int
}

// New creates a ring with the given capacity.
func New[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		panic("ringbuf: capacity must be > 0")
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push appends v, evicting the oldest element if the ring is full.
// It reports whether an eviction occurred.
func (r *Ring[T]) Push(v T) bool {
	evicted := r.count == len(r.buf)
	r.buf[r.head] = v
	r.head++
	if r.head == len(r.buf) {
		r.head = 0
	}
	if !evicted {
		r.count++
	}
	return evicted
}

// Pop removes and returns the oldest element.
func (r *Ring[T]) Pop() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}
	tail := r.head - r.count
	if tail < 0 {
		tail += len(r.buf)
	}
	v := r.buf[tail]
	r.buf[tail] = zero
	r.count--
	return v, true
}

// Recent returns the element i positions behind the newest one, so
// Recent(0) is the most recently pushed element.
func (r *Ring[T]) Recent(i int) (T, bool) {
	var zero T
	if i < 0 || i >= r.count {
		return zero, false
	}
	idx := r.head - 1 - i
	if idx < 0 {
		idx += len(r.buf)
	}
	return r.buf[idx], true
}

// Snapshot copies the ring contents oldest-first into dst and returns the
// number of elements copied. Useful for consumers that must not mutate the
// ring (event readers).
func (r *Ring[T]) Snapshot(dst []T) int {
	n := r.count
	if n > len(dst) {
		n = len(dst)
	}
	tail := r.head - r.count
	if tail < 0 {
		tail += len(r.buf)
	}
	for i := 0; i < n; i++ {
		dst[i] = r.buf[(tail+i)%len(r.buf)]
	}
	return n
}

// Len returns the number of buffered elements.
func (r *Ring[T]) Len() int { return r.count }

// Cap returns the ring capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// Clear discards all buffered elements.
func (r *Ring[T]) Clear() {
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.head = 0
	r.count = 0
}
