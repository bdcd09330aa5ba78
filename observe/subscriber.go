package observe

import "github.com/maxpert/herald/mask"

// Subscriber receives events from subjects it is attached to.
// Subjects hold a non-owning reference; they never create or free subscribers.
type Subscriber interface {
	Update(t mask.Code, s *Subject, payload any)
	SubscriberIdentity() *Identity
}

// Identity is embedded in subscriber types. The identity is assigned lazily
// by the first subject the subscriber is attached to and never changes.
type Identity struct {
	id uint64
}

// SubscriberIdentity returns the receiver so embedding types satisfy Subscriber.
func (i *Identity) SubscriberIdentity() *Identity { return i }

// ID returns the assigned identity, or 0 when the subscriber was never attached.
func (i *Identity) ID() uint64 { return i.id }

var _ Subscriber = (*FuncSubscriber)(nil)

// UpdateFunc adapts a function to the Update half of Subscriber.
type UpdateFunc func(t mask.Code, s *Subject, payload any)

// FuncSubscriber is a Subscriber backed by a function. It never detaches
// itself; see package adapter for self-detaching wrappers.
type FuncSubscriber struct {
	Identity
	fn UpdateFunc
}

// NewFuncSubscriber wraps fn.
func NewFuncSubscriber(fn UpdateFunc) *FuncSubscriber {
	return &FuncSubscriber{fn: fn}
}

func (f *FuncSubscriber) Update(t mask.Code, s *Subject, payload any) {
	f.fn(t, s, payload)
}
