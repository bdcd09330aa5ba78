package observe

import (
	"github.com/maxpert/herald/id"
	"github.com/maxpert/herald/mask"
	"github.com/maxpert/herald/pool"
	"github.com/maxpert/herald/registry"
	"github.com/maxpert/herald/telemetry"
	"github.com/rs/zerolog"
)

// Subject broadcasts typed events to attached subscribers.
type Subject struct {
	name      string
	id        uint64
	layout    mask.Layout
	directory Directory
	logger    zerolog.Logger

	nodes  *pool.Arena[record]
	head   pool.Handle
	tail   pool.Handle
	lookup map[uint64]pool.Handle
	count  int
	muted  mask.Code
	epoch  uint64 // stamped on each new record

	// Reentrancy state. cursor is the resume hook of the running walk.
	broadcasting bool
	cursor       pool.Handle
	current      frame
	suspended    []frame

	destroyed bool
}

// New creates a subject. The name is only used for diagnostics and relay topics.
func New(name string, opts ...Option) *Subject {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if r, ok := o.directory.(*registry.Registry); ok && r == nil {
		o.directory = nil
	}

	return &Subject{
		name:      name,
		id:        id.Default().NextID(),
		layout:    o.layout,
		directory: o.directory,
		logger:    o.logger,
		nodes:     pool.NewArena[record](o.capacity),
		lookup:    make(map[uint64]pool.Handle),
	}
}

func (s *Subject) Name() string          { return s.name }
func (s *Subject) ID() uint64            { return s.id }
func (s *Subject) Layout() mask.Layout   { return s.layout }
func (s *Subject) Size() int             { return s.count }
func (s *Subject) Muted() mask.Code      { return s.muted }
func (s *Subject) Destroyed() bool       { return s.destroyed }
func (s *Subject) Broadcasting() bool    { return s.broadcasting }
func (s *Subject) PoolStats() pool.Stats { return s.nodes.Stats() }

// Depth returns the number of suspended broadcasts waiting to resume.
func (s *Subject) Depth() int { return len(s.suspended) }

// Attach registers sub with an interest mask. Mask 0 or mask.All means every
// event. Attaching an already attached subscriber merges the mask into the
// addressed group: a group holding mask.All is replaced by a nonzero mask,
// otherwise the bits are OR-ed in, and mask 0 forces the group to mask.All.
func (s *Subject) Attach(sub Subscriber, m mask.Code) {
	if s.destroyed || sub == nil {
		return
	}

	ident := sub.SubscriberIdentity()
	if ident.id == 0 {
		ident.id = id.Default().NextID()
	}
	group, bits := s.layout.Split(m)

	if h, ok := s.lookup[ident.id]; ok {
		s.nodes.Get(h).merge(m, group, bits)
		telemetry.SubscriptionsTotal.With("merge").Inc()
		return
	}

	h := s.nodes.Acquire()
	rec := s.nodes.Get(h)
	rec.init(sub, s.layout.Groups())
	rec.set(m, group, bits)
	s.epoch++
	rec.epoch = s.epoch
	s.link(h, rec)
	s.lookup[ident.id] = h
	s.count++
	telemetry.SubscriptionsTotal.With("attach").Inc()

	if s.count == 1 && s.directory != nil {
		s.directory.Register(s)
	}
}

// Detach removes interest. A nonzero mask clears only those bits of the
// addressed group and keeps the subscriber while any group still has
// interest. Mask 0 or mask.All removes the subscriber. Unknown subscribers
// are ignored.
func (s *Subject) Detach(sub Subscriber, m mask.Code) {
	if s.destroyed || sub == nil {
		return
	}

	key := sub.SubscriberIdentity().id
	h, ok := s.lookup[key]
	if !ok {
		return
	}

	if m != 0 && m != mask.All {
		group, bits := s.layout.Split(m)
		if s.nodes.Get(h).clearBits(group, bits) {
			telemetry.SubscriptionsTotal.With("detach_bits").Inc()
			return
		}
	}

	s.remove(h, key)
}

// Contains reports whether sub is attached.
func (s *Subject) Contains(sub Subscriber) bool {
	if s.destroyed || sub == nil {
		return false
	}
	key := sub.SubscriberIdentity().id
	if key == 0 {
		return false
	}
	_, ok := s.lookup[key]
	return ok
}

// Each visits attached subscribers in traversal order until fn returns false.
// Mutating the subject from fn has unspecified results.
func (s *Subject) Each(fn func(Subscriber) bool) {
	for h := s.head; h != pool.Nil; {
		rec := s.nodes.Get(h)
		if rec == nil || !fn(rec.sub) {
			return
		}
		h = rec.next
	}
}

// List returns the attached subscribers in traversal order.
func (s *Subject) List() []Subscriber {
	out := make([]Subscriber, 0, s.count)
	s.Each(func(sub Subscriber) bool {
		out = append(out, sub)
		return true
	})
	return out
}

// Mute suppresses every Notify whose code is fully covered by the mute mask.
func (s *Subject) Mute(bits mask.Code) {
	if s.destroyed {
		return
	}
	s.muted |= bits
}

// Unmute clears bits from the mute mask.
func (s *Subject) Unmute(bits mask.Code) {
	if s.destroyed {
		return
	}
	s.muted &^= bits
}

// Reserve sizes the record free list to exactly n.
func (s *Subject) Reserve(n int) {
	if s.destroyed {
		return
	}
	s.nodes.Reserve(n)
}

// SetCapacity bounds the record free list. Attached subscribers are unaffected.
func (s *Subject) SetCapacity(n int) {
	if s.destroyed {
		return
	}
	s.nodes.SetCapacity(n)
}

// Clear detaches every subscriber. With purge the free list is emptied too.
// Broadcasts in flight stop after the current callback returns.
func (s *Subject) Clear(purge bool) {
	if s.destroyed {
		return
	}

	for h := s.head; h != pool.Nil; {
		rec := s.nodes.Get(h)
		next := rec.next
		delete(s.lookup, rec.sub.SubscriberIdentity().id)
		s.nodes.Release(h)
		h = next
	}
	s.head, s.tail = pool.Nil, pool.Nil
	s.cursor = pool.Nil
	for i := range s.suspended {
		s.suspended[i].cursor = pool.Nil
	}

	if s.count > 0 {
		s.count = 0
		if s.directory != nil {
			s.directory.Unregister(s)
		}
	}
	if purge {
		s.nodes.Reserve(0)
	}
}

// Destroy releases every record and makes the subject unusable. All later
// calls are no-ops. A broadcast in flight stops without further dispatch.
func (s *Subject) Destroy() {
	if s.destroyed {
		return
	}

	wasTracked := s.count > 0
	s.nodes.Reset()
	s.head, s.tail = pool.Nil, pool.Nil
	s.lookup = nil
	s.count = 0
	s.muted = 0
	s.cursor = pool.Nil
	s.current = frame{}
	s.suspended = nil
	s.destroyed = true

	if wasTracked && s.directory != nil {
		s.directory.Unregister(s)
	}
	telemetry.SubjectsDestroyedTotal.Inc()

	s.logger.Debug().
		Uint64("subject_id", s.id).
		Str("subject", s.name).
		Msg("Subject destroyed")
}

// link appends h at the tail of the active list.
func (s *Subject) link(h pool.Handle, rec *record) {
	rec.prev = s.tail
	rec.next = pool.Nil
	if s.tail != pool.Nil {
		s.nodes.Get(s.tail).next = h
	} else {
		s.head = h
	}
	s.tail = h
}

// remove unlinks h, repairs every walk positioned on it and releases it.
func (s *Subject) remove(h pool.Handle, key uint64) {
	rec := s.nodes.Get(h)
	next := rec.next

	if rec.prev != pool.Nil {
		s.nodes.Get(rec.prev).next = rec.next
	} else {
		s.head = rec.next
	}
	if rec.next != pool.Nil {
		s.nodes.Get(rec.next).prev = rec.prev
	} else {
		s.tail = rec.prev
	}

	if s.cursor == h {
		s.cursor = next
	}
	for i := range s.suspended {
		if s.suspended[i].cursor == h {
			s.suspended[i].cursor = next
		}
	}

	delete(s.lookup, key)
	s.nodes.Release(h)
	s.count--
	telemetry.SubscriptionsTotal.With("detach").Inc()

	if s.count == 0 && s.directory != nil {
		s.directory.Unregister(s)
	}
}
