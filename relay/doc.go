// Package relay forwards subject events to external systems.
//
// A Relay is attached to subjects like any other subscriber. Every event it
// receives is encoded into an Envelope and appended to the Outbox, a
// Pebble-backed append-only log. One Worker per configured sink polls the
// outbox, filters envelopes by subject name, formats them and publishes
// them with exponential backoff. Each sink keeps its own cursor so sinks
// progress independently and entries below the slowest cursor are removed.
//
// Delivery is at-least-once: the cursor is advanced after a successful
// publish, so a crash between the two redelivers the envelope on restart.
//
// Key layout in the outbox:
//
//	/outbox/{seq:016x}     -> msgpack(Envelope)
//	/cursor/{sinkName}     -> uint64 (last published seq)
//	/seq                   -> uint64 (last assigned seq)
//
// Topics are "{prefix}.{subject}.g{group}"; the subject name is the message
// key so a partitioned sink keeps per-subject order.
package relay
