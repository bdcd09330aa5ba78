package relay

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maxpert/herald/cfg"
	"github.com/rs/zerolog/log"
)

// ManagerConfig configures the relay manager
type ManagerConfig struct {
	OutboxPath        string
	Subjects          []string // Subjects the relay attaches to
	CompressThreshold int
	Instance          string
	Sinks             []cfg.SinkConfiguration
}

// Manager owns the outbox, the relay subscriber and one worker per sink
type Manager struct {
	outbox  *Outbox
	relay   *Relay
	workers []*Worker
	running atomic.Bool
	mu      sync.Mutex
}

// NewManager opens the outbox and creates a worker for every sink.
func NewManager(config ManagerConfig) (*Manager, error) {
	if config.OutboxPath == "" {
		return nil, fmt.Errorf("outbox path is required")
	}

	outbox, err := OpenOutbox(config.OutboxPath)
	if err != nil {
		return nil, err
	}

	relay, err := NewRelay(RelayConfig{
		Outbox:            outbox,
		Subjects:          config.Subjects,
		CompressThreshold: config.CompressThreshold,
		Instance:          config.Instance,
	})
	if err != nil {
		outbox.Close()
		return nil, err
	}

	m := &Manager{
		outbox:  outbox,
		relay:   relay,
		workers: make([]*Worker, 0, len(config.Sinks)),
	}

	names := make([]string, 0, len(config.Sinks))
	for _, sinkCfg := range config.Sinks {
		if err := m.AddSink(sinkCfg); err != nil {
			m.closeSinks()
			outbox.Close()
			return nil, fmt.Errorf("failed to add sink %q: %w", sinkCfg.Name, err)
		}
		names = append(names, sinkCfg.Name)
	}

	if err := outbox.PruneCursors(names); err != nil {
		log.Warn().Err(err).Msg("Failed to prune outbox cursors")
	}

	log.Info().
		Int("workers", len(m.workers)).
		Uint64("last_seq", outbox.LastSeq()).
		Msg("Relay manager initialized")

	return m, nil
}

// Relay returns the subscriber to attach to subjects.
func (m *Manager) Relay() *Relay {
	return m.relay
}

// Outbox returns the underlying outbox.
func (m *Manager) Outbox() *Outbox {
	return m.outbox
}

// AddSink creates a worker for config. Workers added while running start
// immediately.
func (m *Manager) AddSink(config cfg.SinkConfiguration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snk, err := createSink(config)
	if err != nil {
		return fmt.Errorf("failed to create sink: %w", err)
	}

	trans, err := createTransformer(config.Format)
	if err != nil {
		snk.Close()
		return fmt.Errorf("failed to create transformer: %w", err)
	}

	filter, err := NewGlobFilter(config.FilterSubjects)
	if err != nil {
		snk.Close()
		return fmt.Errorf("failed to create filter: %w", err)
	}

	worker, err := NewWorker(WorkerConfig{
		Name:            config.Name,
		Outbox:          m.outbox,
		Sink:            snk,
		Transformer:     trans,
		Filter:          filter,
		TopicPrefix:     config.TopicPrefix,
		BatchSize:       config.BatchSize,
		PollInterval:    time.Duration(config.PollIntervalMS) * time.Millisecond,
		RetryInitial:    time.Duration(config.RetryInitialMS) * time.Millisecond,
		RetryMax:        time.Duration(config.RetryMaxMS) * time.Millisecond,
		RetryMultiplier: config.RetryMultiplier,
	})
	if err != nil {
		snk.Close()
		return fmt.Errorf("failed to create worker: %w", err)
	}

	m.workers = append(m.workers, worker)
	if m.running.Load() {
		worker.Start()
	}

	log.Info().
		Str("sink", config.Name).
		Str("type", config.Type).
		Str("format", config.Format).
		Msg("Added relay sink")

	return nil
}

// Start starts all workers
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running.Load() {
		return fmt.Errorf("relay manager already running")
	}

	for _, w := range m.workers {
		w.Start()
	}
	m.running.Store(true)
	return nil
}

// Stop stops all workers, closes the sinks and the outbox. Subjects must
// no longer deliver to the relay once Stop is called.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range m.workers {
		w.Stop()
	}
	m.running.Store(false)
	m.closeSinks()

	if err := m.outbox.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close outbox")
	}
	log.Info().Msg("Relay manager stopped")
}

func (m *Manager) closeSinks() {
	for _, w := range m.workers {
		if err := w.config.Sink.Close(); err != nil {
			log.Warn().Err(err).Str("sink", w.config.Name).Msg("Failed to close sink")
		}
	}
}

// SinkFactory creates a Sink from a configuration
type SinkFactory func(cfg.SinkConfiguration) (Sink, error)

var (
	sinkFactories = make(map[string]SinkFactory)
	sinkMu        sync.RWMutex
)

// RegisterSink registers a sink factory for a type
func RegisterSink(sinkType string, factory SinkFactory) {
	sinkMu.Lock()
	defer sinkMu.Unlock()
	sinkFactories[sinkType] = factory
}

func createSink(config cfg.SinkConfiguration) (Sink, error) {
	sinkMu.RLock()
	factory, ok := sinkFactories[config.Type]
	sinkMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown sink type: %s", config.Type)
	}
	return factory(config)
}
