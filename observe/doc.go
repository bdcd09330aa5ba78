// Package observe implements the subject side of an in-process
// publish/subscribe dispatcher.
//
// A Subject keeps an ordered list of subscriber records. Each record holds a
// per-group interest mask (see package mask) or an "everything" flag, and
// Notify delivers a typed event plus payload to every record whose interest
// intersects the event bits of the event's group.
//
// # Reentrancy
//
// Update callbacks may call Attach, Detach, Notify, Clear or Destroy on the
// subject that is currently broadcasting. Before a subscriber is called the
// walk captures the next record (the resume hook); detaching a record rewrites
// the hook and every suspended broadcast that points at it, so the walk never
// touches a released record and never skips or repeats a live one.
//
// A Notify issued from inside a callback suspends the running walk, runs to
// completion, and the suspended walk then resumes where it left off. With
// subscribers A, B and C, where B notifies E2 while handling E1, the dispatch
// order is:
//
//	E1:A  E1:B  E2:A  E2:B  E2:C  E1:C
//
// Resumed walks match records with the group and event bits of the outermost
// Notify call and deliver the suspended walk's own code and payload.
//
// # Threading
//
// A Subject is not safe for concurrent use. All methods must be called from
// one goroutine (see package loop). Panics raised by subscribers are not
// recovered; they unwind through Notify and leave the subject idle.
package observe
