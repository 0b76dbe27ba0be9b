package sampling

// ring is a fixed-capacity FIFO. Pushing into a full ring evicts the oldest
// element. The backing array is allocated once and reused across Reset.
type ring[T any] struct {
	buf  []T
	head int // index of the oldest element
	size int
}

func newRing[T any](capacity int) *ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &ring[T]{buf: make([]T, capacity)}
}

func (r *ring[T]) Len() int { return r.size }
func (r *ring[T]) Cap() int { return len(r.buf) }

// Push appends v and reports whether an element was evicted.
func (r *ring[T]) Push(v T) bool {
	if r.size < len(r.buf) {
		r.buf[(r.head+r.size)%len(r.buf)] = v
		r.size++
		return false
	}
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
	return true
}

// At returns the i-th element counting from the oldest.
func (r *ring[T]) At(i int) T {
	return r.buf[(r.head+i)%len(r.buf)]
}

// Do calls fn for every element from oldest to newest.
func (r *ring[T]) Do(fn func(T)) {
	for i := 0; i < r.size; i++ {
		fn(r.At(i))
	}
}

// Slice copies the contents, oldest first.
func (r *ring[T]) Slice() []T {
	out := make([]T, 0, r.size)
	r.Do(func(v T) { out = append(out, v) })
	return out
}

// Reset empties the ring without releasing its storage.
func (r *ring[T]) Reset() {
	clear(r.buf)
	r.head = 0
	r.size = 0
}

// Resize changes the capacity, keeping the newest elements that still fit.
func (r *ring[T]) Resize(capacity int) {
	if capacity < 1 {
		capacity = 1
	}
	if capacity == len(r.buf) {
		return
	}
	items := r.Slice()
	if len(items) > capacity {
		items = items[len(items)-capacity:]
	}
	r.buf = make([]T, capacity)
	r.head = 0
	r.size = copy(r.buf, items)
}
