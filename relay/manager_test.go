package relay

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/maxpert/herald/cfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	topics []string
	closed bool
}

func (r *recordingSink) Publish(topic, _ string, _ []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	return nil
}

func (r *recordingSink) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recordingSink) snapshot() ([]string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.topics...), r.closed
}

var (
	recordingSinks   = map[string]*recordingSink{}
	recordingSinksMu sync.Mutex
)

func init() {
	RegisterSink("recording", func(config cfg.SinkConfiguration) (Sink, error) {
		recordingSinksMu.Lock()
		defer recordingSinksMu.Unlock()
		s := &recordingSink{}
		recordingSinks[config.Name] = s
		return s, nil
	})
}

func recorded(name string) *recordingSink {
	recordingSinksMu.Lock()
	defer recordingSinksMu.Unlock()
	return recordingSinks[name]
}

func TestNewManager_Validation(t *testing.T) {
	_, err := NewManager(ManagerConfig{})
	assert.Error(t, err)

	_, err = NewManager(ManagerConfig{
		OutboxPath: filepath.Join(t.TempDir(), "outbox"),
		Sinks:      []cfg.SinkConfiguration{{Name: "x", Type: "carrier-pigeon"}},
	})
	assert.Error(t, err)

	_, err = NewManager(ManagerConfig{
		OutboxPath: filepath.Join(t.TempDir(), "outbox"),
		Sinks:      []cfg.SinkConfiguration{{Name: "x", Type: "recording", Format: "avro"}},
	})
	assert.Error(t, err)
}

func TestManager_EndToEnd(t *testing.T) {
	m, err := NewManager(ManagerConfig{
		OutboxPath:        filepath.Join(t.TempDir(), "outbox"),
		Subjects:          []string{"orders.*"},
		CompressThreshold: 1024,
		Instance:          "node-a",
		Sinks: []cfg.SinkConfiguration{
			{Name: "all", Type: "recording", TopicPrefix: "herald", PollIntervalMS: 5},
			{Name: "eu", Type: "recording", Format: cfg.FormatJSON, FilterSubjects: []string{"orders.eu"}, PollIntervalMS: 5},
		},
	})
	require.NoError(t, err)
	require.NoError(t, m.Start())
	assert.Error(t, m.Start())

	eu := newTestSubject("orders.eu")
	us := newTestSubject("orders.us")
	other := newTestSubject("users")
	assert.True(t, m.Relay().Watch(eu, 0))
	assert.True(t, m.Relay().Watch(us, 0))
	assert.False(t, m.Relay().Watch(other, 0))

	eu.Notify(eu.Layout().Make(1, 1), "a")
	us.Notify(us.Layout().Make(0, 2), "b")
	assert.Equal(t, uint64(2), m.Outbox().LastSeq())

	require.Eventually(t, func() bool {
		all, _ := recorded("all").snapshot()
		euTopics, _ := recorded("eu").snapshot()
		return len(all) == 2 && len(euTopics) == 1
	}, 2*time.Second, 5*time.Millisecond)

	all, _ := recorded("all").snapshot()
	assert.Equal(t, []string{"herald.orders.eu.g1", "herald.orders.us.g0"}, all)
	euTopics, _ := recorded("eu").snapshot()
	assert.Equal(t, []string{"orders.eu.g1"}, euTopics)

	eu.Detach(m.Relay(), 0)
	us.Detach(m.Relay(), 0)
	m.Stop()

	_, closed := recorded("all").snapshot()
	assert.True(t, closed)
}

func TestManager_PrunesRemovedSinkCursors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "outbox")

	o, err := OpenOutbox(path)
	require.NoError(t, err)
	require.NoError(t, o.AdvanceCursor("retired", 0))
	require.NoError(t, o.Close())

	m, err := NewManager(ManagerConfig{
		OutboxPath: path,
		Sinks:      []cfg.SinkConfiguration{{Name: "current", Type: "recording"}},
	})
	require.NoError(t, err)
	defer m.Stop()

	m.Outbox().cursorsMu.RLock()
	_, ok := m.Outbox().cursors["retired"]
	m.Outbox().cursorsMu.RUnlock()
	assert.False(t, ok)
}
