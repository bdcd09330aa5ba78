package sink

import "github.com/maxpert/herald/relay"

// Compile-time interface verification
var (
	_ relay.Sink = (*KafkaSink)(nil)
	_ relay.Sink = (*NatsSink)(nil)
	_ relay.Sink = (*MockSink)(nil)

	_ relay.EnvelopeSink = (*KafkaSink)(nil)
	_ relay.EnvelopeSink = (*NatsSink)(nil)
	_ relay.EnvelopeSink = (*MockSink)(nil)
)
