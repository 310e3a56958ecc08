package history

// RingBuffer is a fixed-capacity circular buffer that overwrites its oldest
// item once full. Callers never see slot indices.
//
// RingBuffer is not safe for concurrent use; the owner serializes access.
type RingBuffer[T any] struct {
	items     []T
	nextIndex int
	count     int
}

// NewRingBuffer creates an empty ring buffer holding at most size items.
func NewRingBuffer[T any](size int) *RingBuffer[T] {
	if size <= 0 {
		panic("history: ring buffer size must be positive")
	}
	return &RingBuffer[T]{
		items:     make([]T, size),
		nextIndex: 0,
		count:     0,
	}
}

// Add appends an item, overwriting the oldest one when the buffer is full.
func (r *RingBuffer[T]) Add(item T) {
	r.items[r.nextIndex] = item
	r.nextIndex = (r.nextIndex + 1) % len(r.items)
	if r.count < len(r.items) {
		r.count++
	}
}

// Load replaces the contents with the trailing Cap() items of a
// chronologically ordered slice.
func (r *RingBuffer[T]) Load(items []T) {
	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	if len(items) > len(r.items) {
		items = items[len(items)-len(r.items):]
	}
	n := copy(r.items, items)
	r.count = n
	r.nextIndex = n % len(r.items)
}

// Latest returns the most recently added item.
func (r *RingBuffer[T]) Latest() (T, bool) {
	if r.count == 0 {
		var zero T
		return zero, false
	}
	return r.items[(r.nextIndex-1+len(r.items))%len(r.items)], true
}

// GetAll returns all items in the buffer, oldest first
func (r *RingBuffer[T]) GetAll() []T {
	result := make([]T, r.count)
	for i := 0; i < r.count; i++ {
		result[i] = r.items[(r.nextIndex-r.count+i+len(r.items))%len(r.items)]
	}
	return result
}

// Len returns the number of valid items.
func (r *RingBuffer[T]) Len() int {
	return r.count
}

// Cap returns the fixed capacity.
func (r *RingBuffer[T]) Cap() int {
	return len(r.items)
}
