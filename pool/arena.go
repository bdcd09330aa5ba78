// Package pool provides the node storage used by subjects and adapters.
//
// Arena hands out stable integer handles instead of pointers. A slot is
// either active (owned by the caller), free (parked on the intrusive free
// list, ready for reuse) or retired (discarded; its handle may later be
// reused for a brand new node). Callers that keep handles across mutations
// are responsible for rewriting them when they release a slot.
package pool

import "github.com/maxpert/herald/telemetry"

// Handle addresses a slot in an Arena. Nil is never handed out.
type Handle uint32

const Nil Handle = 0

type slotState uint8

const (
	slotRetired slotState = iota
	slotFree
	slotActive
)

// Resetter is implemented by values that must drop references when their
// slot goes back to the free list.
type Resetter interface {
	Reset()
}

type node[T any] struct {
	value T
	state slotState
	next  Handle // free list link
}

// Stats is a point-in-time view of an arena.
type Stats struct {
	Capacity    int    `json:"capacity" msgpack:"capacity"`
	Free        int    `json:"free" msgpack:"free"`
	Active      int    `json:"active" msgpack:"active"`
	Allocations uint64 `json:"allocations" msgpack:"allocations"`
}

// Arena is a bounded free list of nodes addressed by handle.
// Not safe for concurrent use.
type Arena[T any] struct {
	nodes    []*node[T]
	retired  []Handle
	freeHead Handle
	free     int
	active   int
	capacity int
	allocs   uint64
}

// NewArena creates an arena that keeps at most capacity released nodes.
func NewArena[T any](capacity int) *Arena[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Arena[T]{
		nodes:    make([]*node[T], 1),
		capacity: capacity,
	}
}

// Reserve grows or shrinks the free list to exactly n nodes. Shrinking only
// discards free nodes, never active ones. Capacity is raised to n when it
// is lower so the reserved nodes survive release.
func (a *Arena[T]) Reserve(n int) {
	if n < 0 {
		n = 0
	}
	if a.capacity < n {
		a.capacity = n
	}

	for a.free < n {
		h := a.allocate()
		a.push(h)
	}
	for a.free > n {
		a.retire(a.pop())
	}
}

// SetCapacity changes how many released nodes are kept. Free nodes above the
// new capacity are discarded; active nodes are untouched.
func (a *Arena[T]) SetCapacity(n int) {
	if n < 0 {
		n = 0
	}
	a.capacity = n
	for a.free > n {
		a.retire(a.pop())
	}
}

// Acquire returns the handle of an active node, reusing a free one when the
// pool is enabled and non-empty.
func (a *Arena[T]) Acquire() Handle {
	var h Handle
	if a.freeHead != Nil && a.capacity > 0 {
		h = a.pop()
	} else {
		h = a.allocate()
	}

	a.nodes[h].state = slotActive
	a.active++
	return h
}

// Release gives an active node back. It is parked on the free list when the
// list is below capacity, otherwise discarded. Returns true when parked.
func (a *Arena[T]) Release(h Handle) bool {
	if !a.Valid(h) {
		return false
	}

	n := a.nodes[h]
	if r, ok := any(&n.value).(Resetter); ok {
		r.Reset()
	}
	a.active--

	if a.free < a.capacity {
		a.push(h)
		return true
	}

	a.retire(h)
	return false
}

// Get returns the value stored in an active node, or nil.
func (a *Arena[T]) Get(h Handle) *T {
	if !a.Valid(h) {
		return nil
	}
	return &a.nodes[h].value
}

// Valid reports whether h addresses an active node.
func (a *Arena[T]) Valid(h Handle) bool {
	if h == Nil || int(h) >= len(a.nodes) {
		return false
	}
	n := a.nodes[h]
	return n != nil && n.state == slotActive
}

// Reset drops every node, active or free.
func (a *Arena[T]) Reset() {
	for i := range a.nodes {
		a.nodes[i] = nil
	}
	a.nodes = a.nodes[:1]
	a.retired = nil
	a.freeHead = Nil
	a.free = 0
	a.active = 0
}

func (a *Arena[T]) Capacity() int       { return a.capacity }
func (a *Arena[T]) Free() int           { return a.free }
func (a *Arena[T]) Active() int         { return a.active }
func (a *Arena[T]) Allocations() uint64 { return a.allocs }

// Stats snapshots the arena counters.
func (a *Arena[T]) Stats() Stats {
	return Stats{
		Capacity:    a.capacity,
		Free:        a.free,
		Active:      a.active,
		Allocations: a.allocs,
	}
}

// allocate creates a fresh node, reusing the handle of a retired one if any.
func (a *Arena[T]) allocate() Handle {
	a.allocs++
	telemetry.PoolAllocationsTotal.Inc()
	n := &node[T]{}

	if last := len(a.retired) - 1; last >= 0 {
		h := a.retired[last]
		a.retired = a.retired[:last]
		a.nodes[h] = n
		return h
	}

	a.nodes = append(a.nodes, n)
	return Handle(len(a.nodes) - 1)
}

func (a *Arena[T]) push(h Handle) {
	n := a.nodes[h]
	n.state = slotFree
	n.next = a.freeHead
	a.freeHead = h
	a.free++
}

func (a *Arena[T]) pop() Handle {
	h := a.freeHead
	n := a.nodes[h]
	a.freeHead = n.next
	n.next = Nil
	a.free--
	return h
}

func (a *Arena[T]) retire(h Handle) {
	a.nodes[h] = nil
	a.retired = append(a.retired, h)
}
