// Package mask splits event type codes into a group id and the event bits
// inside that group.
//
// A code is laid out as (group << BitsPerGroup) | eventBits. One subject can
// therefore multiplex several unrelated event taxonomies through a single
// integer: each taxonomy owns a group and up to BitsPerGroup event bits.
// Mixing two groups in one code is a contract violation; the filtering result
// is unspecified but never a fault.
package mask

import (
	"errors"
	"fmt"
)

// Code is an event type code or an interest mask.
type Code uint32

// All is the reserved "every event" sentinel.
const All Code = 0xFFFFFFFF

const (
	DefaultBitsPerGroup = 24
	DefaultGroups       = 8

	// MaxGroups is bounded by the width of the per-record group bitfield.
	MaxGroups = 32
)

// ErrInvalidLayout is returned when a layout cannot address its groups in 32 bits.
var ErrInvalidLayout = errors.New("invalid mask layout")

// DefaultLayout uses 24 event bits per group and 8 groups.
var DefaultLayout = MustLayout(DefaultBitsPerGroup, DefaultGroups)

// Layout fixes how many low bits of a code carry event bits and how many
// groups a subject tracks.
type Layout struct {
	bits      uint
	groups    int
	eventMask Code
}

// NewLayout validates and builds a layout.
func NewLayout(bitsPerGroup uint, groups int) (Layout, error) {
	if bitsPerGroup < 1 || bitsPerGroup > 31 {
		return Layout{}, fmt.Errorf("%w: bits per group %d out of [1,31]", ErrInvalidLayout, bitsPerGroup)
	}
	if groups < 1 || groups > MaxGroups {
		return Layout{}, fmt.Errorf("%w: groups %d out of [1,%d]", ErrInvalidLayout, groups, MaxGroups)
	}
	if uint64(groups-1)<<bitsPerGroup > uint64(All) {
		return Layout{}, fmt.Errorf("%w: %d groups do not fit above %d event bits", ErrInvalidLayout, groups, bitsPerGroup)
	}

	return Layout{
		bits:      bitsPerGroup,
		groups:    groups,
		eventMask: Code(1)<<bitsPerGroup - 1,
	}, nil
}

// MustLayout is NewLayout that panics on error. Meant for package-level vars.
func MustLayout(bitsPerGroup uint, groups int) Layout {
	l, err := NewLayout(bitsPerGroup, groups)
	if err != nil {
		panic(err)
	}
	return l
}

// IsZero reports whether l is the unusable zero Layout.
func (l Layout) IsZero() bool { return l.groups == 0 }

func (l Layout) BitsPerGroup() uint { return l.bits }
func (l Layout) Groups() int        { return l.groups }
func (l Layout) EventMask() Code    { return l.eventMask }

// Group returns the group id addressed by c.
func (l Layout) Group(c Code) int {
	return int(uint32(c) >> l.bits)
}

// Bits returns the event bits of c within its group.
func (l Layout) Bits(c Code) Code {
	return c & l.eventMask
}

// Split decomposes c into (group, eventBits).
func (l Layout) Split(c Code) (int, Code) {
	return l.Group(c), l.Bits(c)
}

// Make composes a code from a group id and event bits. Bits outside the
// event mask are dropped.
func (l Layout) Make(group int, bits Code) Code {
	return Code(uint32(group)<<l.bits) | bits&l.eventMask
}

// InRange reports whether group is tracked by this layout.
func (l Layout) InRange(group int) bool {
	return group >= 0 && group < l.groups
}

// Covered reports whether every bit of c is set in set. Used by subject muting.
func Covered(set, c Code) bool {
	return set != 0 && c&set == c
}

// String renders the layout as "bits/groups".
func (l Layout) String() string {
	return fmt.Sprintf("%d/%d", l.bits, l.groups)
}
