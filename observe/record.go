package observe

import (
	"github.com/maxpert/herald/mask"
	"github.com/maxpert/herald/pool"
)

// record is the bookkeeping for one attached subscriber. It lives in the
// subject's arena and is linked into the active list by handle.
type record struct {
	prev, next pool.Handle
	sub        Subscriber
	interest   []mask.Code // indexed by group id
	groups     uint32      // bit g set while interest[g] != 0
	all        bool
	epoch      uint64 // attach order; walks skip records newer than their start
}

// Reset drops the subscriber reference while keeping the interest storage
// for the next acquire.
func (r *record) Reset() {
	r.prev, r.next = pool.Nil, pool.Nil
	r.sub = nil
	clear(r.interest)
	r.groups = 0
	r.all = false
	r.epoch = 0
}

func (r *record) init(sub Subscriber, groups int) {
	r.Reset()
	r.sub = sub
	if cap(r.interest) < groups {
		r.interest = make([]mask.Code, groups)
	}
	r.interest = r.interest[:groups]
}

// set records interest for a brand new record.
func (r *record) set(m mask.Code, group int, bits mask.Code) {
	if m == 0 || m == mask.All {
		r.all = true
		return
	}
	if group >= len(r.interest) {
		return
	}
	r.interest[group] = bits
	r.groups |= 1 << group
}

// merge folds a repeated attach into an existing record.
func (r *record) merge(m mask.Code, group int, bits mask.Code) {
	switch {
	case m == mask.All:
		r.all = true
		return
	case group >= len(r.interest):
		return
	case m == 0:
		r.interest[group] = mask.All
	case r.interest[group] == mask.All:
		r.interest[group] = bits
	default:
		r.interest[group] |= bits
	}
	r.groups |= 1 << group
}

// clearBits removes bits from one group and reports whether any group
// still holds interest.
func (r *record) clearBits(group int, bits mask.Code) bool {
	if group < len(r.interest) {
		r.interest[group] &^= bits
		if r.interest[group] == 0 {
			r.groups &^= 1 << group
		}
	}
	return r.groups != 0
}

func (r *record) matches(group int, bits mask.Code) bool {
	if r.all {
		return true
	}
	if group < 0 || group >= len(r.interest) {
		return false
	}
	return r.interest[group]&bits != 0
}
