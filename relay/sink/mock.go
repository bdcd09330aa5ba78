package sink

import (
	"sync"

	"github.com/maxpert/herald/cfg"
	"github.com/maxpert/herald/relay"
)

func init() {
	relay.RegisterSink("mock", func(cfg.SinkConfiguration) (relay.Sink, error) {
		return &MockSink{}, nil
	})
}

// MockSink records published messages. Useful for tests and dry runs.
type MockSink struct {
	Messages   []MockMessage
	PublishErr error
	mu         sync.Mutex
}

// MockMessage is one recorded publish
type MockMessage struct {
	Topic   string
	Key     string
	Value   []byte
	Headers []relay.Header
}

// Publish records a message unless PublishErr is set
func (m *MockSink) Publish(topic, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.PublishErr != nil {
		return m.PublishErr
	}
	m.Messages = append(m.Messages, MockMessage{Topic: topic, Key: key, Value: value})
	return nil
}

// PublishEnvelope records a message with the envelope headers attached
func (m *MockSink) PublishEnvelope(topic string, env relay.Envelope, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.PublishErr != nil {
		return m.PublishErr
	}
	m.Messages = append(m.Messages, MockMessage{Topic: topic, Key: env.Subject, Value: value, Headers: env.Headers()})
	return nil
}

// Close is a no-op
func (m *MockSink) Close() error {
	return nil
}

// Snapshot returns a copy of the recorded messages
func (m *MockSink) Snapshot() []MockMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockMessage(nil), m.Messages...)
}

// Reset clears all recorded messages
func (m *MockSink) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = nil
}
