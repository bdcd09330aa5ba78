package pool

import "sync"

// Recycler is a bounded LIFO of reusable pointers. Unlike Arena it is safe
// for concurrent use, since adapters from several owner loops share one.
type Recycler[T any] struct {
	mu       sync.Mutex
	items    []*T
	capacity int
	newFn    func() *T
}

// NewRecycler keeps at most capacity items; newFn builds a value when empty.
func NewRecycler[T any](capacity int, newFn func() *T) *Recycler[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Recycler[T]{
		items:    make([]*T, 0, capacity),
		capacity: capacity,
		newFn:    newFn,
	}
}

// Get pops a parked item or builds a new one.
func (r *Recycler[T]) Get() *T {
	r.mu.Lock()
	if last := len(r.items) - 1; last >= 0 {
		v := r.items[last]
		r.items[last] = nil
		r.items = r.items[:last]
		r.mu.Unlock()
		return v
	}
	r.mu.Unlock()
	return r.newFn()
}

// Put parks v when below capacity. Values implementing Resetter are reset
// first. Returns false when v was dropped.
func (r *Recycler[T]) Put(v *T) bool {
	if v == nil {
		return false
	}
	if rs, ok := any(v).(Resetter); ok {
		rs.Reset()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) >= r.capacity {
		return false
	}
	r.items = append(r.items, v)
	return true
}

// Len returns the number of parked items.
func (r *Recycler[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}
