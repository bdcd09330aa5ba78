package observe

import (
	"github.com/maxpert/herald/mask"
	"github.com/maxpert/herald/pool"
	"github.com/maxpert/herald/telemetry"
)

// frame is the context of one walk: where it resumes, what it delivers, and
// the newest record it may visit.
type frame struct {
	cursor  pool.Handle
	code    mask.Code
	payload any
	limit   uint64
}

// Notify broadcasts an event to every subscriber whose interest matches the
// event bits of t's group. It is a no-op on a destroyed subject, without
// subscribers, or when t is fully covered by the mute mask.
//
// Called from inside an Update callback, Notify suspends the running walk,
// delivers the new event to the whole list, and returns; the outermost
// Notify resumes suspended walks newest first once its own walk ends.
// Subscribers attached while a walk is running are not visited by that walk.
func (s *Subject) Notify(t mask.Code, payload any) {
	if s.destroyed || s.count == 0 {
		return
	}
	if mask.Covered(s.muted, t) {
		telemetry.NotificationsMutedTotal.Inc()
		return
	}

	group, bits := s.layout.Split(t)
	next := frame{cursor: s.head, code: t, payload: payload, limit: s.epoch}
	telemetry.NotificationsTotal.Inc()

	if s.broadcasting {
		if s.cursor != pool.Nil {
			suspended := s.current
			suspended.cursor = s.cursor
			s.suspended = append(s.suspended, suspended)
			telemetry.SuspendDepth.Observe(float64(len(s.suspended)))
		}
		telemetry.NestedNotificationsTotal.Inc()

		s.walk(next, group, bits)
		return
	}

	s.broadcasting = true
	defer s.settle()

	s.walk(next, group, bits)

	// Resumed walks keep matching with this call's group and bits.
	for len(s.suspended) > 0 && !s.destroyed {
		last := len(s.suspended) - 1
		f := s.suspended[last]
		s.suspended[last] = frame{}
		s.suspended = s.suspended[:last]

		s.walk(f, group, bits)
	}
}

// walk dispatches f to matching records from f.cursor to the end of the
// list. The next handle is stored in s.cursor before each callback so that
// detaching any record, including the current one, keeps the walk on live
// records.
func (s *Subject) walk(f frame, group int, bits mask.Code) {
	s.current = f
	for h := f.cursor; h != pool.Nil && !s.destroyed; h = s.cursor {
		rec := s.nodes.Get(h)
		if rec == nil {
			break
		}

		s.cursor = rec.next
		if rec.epoch <= f.limit && rec.matches(group, bits) {
			telemetry.DispatchesTotal.Inc()
			rec.sub.Update(f.code, s, f.payload)
		}
	}
	s.cursor = pool.Nil
	s.current = frame{}
}

// settle returns the subject to idle. It also runs when a subscriber panics.
func (s *Subject) settle() {
	s.broadcasting = false
	s.cursor = pool.Nil
	s.current = frame{}
	clear(s.suspended)
	s.suspended = s.suspended[:0]
}
