package id

import "sync/atomic"

// Generator issues identities for subjects and subscribers.
// Zero is reserved for "unassigned" and is never returned.
type Generator interface {
	NextID() uint64
}

// Sequence is a monotonically increasing Generator starting at 1.
// Identities are never reused for the lifetime of the Sequence.
type Sequence struct {
	last atomic.Uint64
}

// NewSequence creates a sequence whose first identity is 1.
func NewSequence() *Sequence {
	return &Sequence{}
}

// NextID returns the next identity. Safe for concurrent use.
func (s *Sequence) NextID() uint64 {
	return s.last.Add(1)
}

// Last returns the most recently issued identity, or 0.
func (s *Sequence) Last() uint64 {
	return s.last.Load()
}

// process is created once at process start and never reset.
var process = NewSequence()

// Default returns the process-wide identity sequence.
func Default() Generator {
	return process
}
