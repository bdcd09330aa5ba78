// Package adapter wraps plain functions as subscribers that can remove
// themselves. A wrapped function returns false to stop receiving the event it
// was just handed; once every bit it asked for has been stopped this way the
// adapter goes back to a shared pool.
package adapter

import (
	"github.com/maxpert/herald/mask"
	"github.com/maxpert/herald/observe"
	"github.com/maxpert/herald/pool"
)

// PoolCapacity bounds how many released adapters are kept for reuse.
const PoolCapacity = 256

// Func handles an event and returns false to stop receiving it.
type Func func(t mask.Code, payload any) bool

// SubjectFunc is Func with access to the firing subject.
type SubjectFunc func(t mask.Code, s *observe.Subject, payload any) bool

var _ observe.Subscriber = (*Adapter)(nil)

var adapters = pool.NewRecycler(PoolCapacity, func() *Adapter { return &Adapter{} })

// Adapter is a Subscriber backed by a SubjectFunc. It remembers the mask it
// was attached with on each subject so it knows when nothing is left.
type Adapter struct {
	observe.Identity
	fn       SubjectFunc
	interest map[*observe.Subject]mask.Code
	pooled   bool
}

// New wraps fn. The adapter is not attached anywhere yet.
func New(fn Func) *Adapter {
	return NewWithSubject(func(t mask.Code, _ *observe.Subject, payload any) bool {
		return fn(t, payload)
	})
}

// NewWithSubject wraps fn, handing it the subject the event came from.
func NewWithSubject(fn SubjectFunc) *Adapter {
	a := adapters.Get()
	a.pooled = false
	a.fn = fn
	if a.interest == nil {
		a.interest = make(map[*observe.Subject]mask.Code)
	}
	return a
}

// Attach wraps fn and attaches it to s with mask m.
func Attach(s *observe.Subject, m mask.Code, fn Func) *Adapter {
	return New(fn).AttachTo(s, m)
}

// AttachWithSubject wraps fn and attaches it to s with mask m.
func AttachWithSubject(s *observe.Subject, m mask.Code, fn SubjectFunc) *Adapter {
	return NewWithSubject(fn).AttachTo(s, m)
}

// Once attaches fn so that it runs for the first matching event only.
func Once(s *observe.Subject, m mask.Code, fn func(t mask.Code, payload any)) *Adapter {
	return Attach(s, m, func(t mask.Code, payload any) bool {
		fn(t, payload)
		return false
	})
}

// Times attaches fn so that it runs for the first n matching events.
func Times(s *observe.Subject, m mask.Code, n int, fn func(t mask.Code, payload any)) *Adapter {
	remaining := n
	return Attach(s, m, func(t mask.Code, payload any) bool {
		if remaining <= 0 {
			return false
		}
		fn(t, payload)
		remaining--
		return remaining > 0
	})
}

// AttachTo attaches a to s, widening the interest tracked for s.
func (a *Adapter) AttachTo(s *observe.Subject, m mask.Code) *Adapter {
	cur, ok := a.interest[s]
	switch {
	case m == 0 || m == mask.All || cur == mask.All:
		cur = mask.All
	case !ok:
		cur = m
	default:
		cur |= m
	}
	a.interest[s] = cur
	s.Attach(a, m)
	return a
}

// Interest returns the bits the adapter still wants from s. mask.All means
// every event, 0 means it is not attached to s.
func (a *Adapter) Interest(s *observe.Subject) mask.Code {
	return a.interest[s]
}

// Update implements observe.Subscriber.
func (a *Adapter) Update(t mask.Code, s *observe.Subject, payload any) {
	if a.fn == nil {
		return
	}
	if !a.fn(t, s, payload) {
		a.stop(t, s)
	}
}

// stop detaches from the firing subject for the delivered bits and releases
// the adapter once no subject is left.
func (a *Adapter) stop(t mask.Code, s *observe.Subject) {
	l := s.Layout()
	group, bits := l.Split(t)

	cur := a.interest[s]
	switch {
	case cur == 0 || cur == mask.All || bits == 0:
		cur = 0
	case l.Group(cur) == group:
		cur = l.Make(group, l.Bits(cur)&^bits)
	}

	if cur == 0 || l.Bits(cur) == 0 {
		delete(a.interest, s)
		s.Detach(a, 0)
	} else {
		a.interest[s] = cur
		s.Detach(a, t)
	}

	if len(a.interest) == 0 {
		a.recycle()
	}
}

// Release detaches a from every subject it is attached to and returns it to
// the pool. Calling it on an adapter that already released itself is a
// no-op. The adapter must not be used afterwards.
func (a *Adapter) Release() {
	if a.pooled {
		return
	}
	for s := range a.interest {
		s.Detach(a, 0)
	}
	a.recycle()
}

// recycle hands a back to the pool at most once per acquisition.
func (a *Adapter) recycle() {
	if a.pooled {
		return
	}
	a.pooled = true
	adapters.Put(a)
}

// Reset clears the adapter for reuse, including its identity. The pooled
// flag is left to recycle and NewWithSubject.
func (a *Adapter) Reset() {
	a.Identity = observe.Identity{}
	a.fn = nil
	clear(a.interest)
}
