package relay

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maxpert/herald/telemetry"
	"github.com/rs/zerolog/log"
)

const (
	// Default batch size for reading envelopes per poll cycle
	DefaultBatchSize = 100
	// Default interval between poll cycles
	DefaultPollInterval = 100 * time.Millisecond
	// Default initial retry delay for failed publish operations
	DefaultRetryInitial = 100 * time.Millisecond
	// Default maximum retry delay (exponential backoff cap)
	DefaultRetryMax = 30 * time.Second
	// Default exponential backoff multiplier
	DefaultRetryMultiplier = 2.0
)

// WorkerConfig configures a sink worker
type WorkerConfig struct {
	Name            string        // Sink name (for cursor tracking)
	Outbox          *Outbox       // Outbox to read from
	Sink            Sink          // Destination sink
	Transformer     Transformer   // Envelope formatter
	Filter          Filter        // Subject filter
	TopicPrefix     string        // Topic prefix (e.g., "herald")
	BatchSize       int           // Envelopes per poll cycle
	PollInterval    time.Duration // Poll interval
	RetryInitial    time.Duration // Initial retry delay
	RetryMax        time.Duration // Max retry delay
	RetryMultiplier float64       // Backoff multiplier
	MaxRetries      int           // Maximum retry attempts (0 = unlimited)
}

// Worker polls the outbox and publishes envelopes to one sink
type Worker struct {
	config      WorkerConfig
	cursor      uint64
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     atomic.Bool
	lifecycleMu sync.Mutex
}

// NewWorker creates a sink worker positioned at the sink's saved cursor
func NewWorker(config WorkerConfig) (*Worker, error) {
	if config.Name == "" {
		return nil, fmt.Errorf("worker name is required")
	}
	if config.Outbox == nil {
		return nil, fmt.Errorf("outbox is required")
	}
	if config.Sink == nil {
		return nil, fmt.Errorf("sink is required")
	}
	if config.Transformer == nil {
		return nil, fmt.Errorf("transformer is required")
	}
	if config.Filter == nil {
		return nil, fmt.Errorf("filter is required")
	}

	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.RetryInitial <= 0 {
		config.RetryInitial = DefaultRetryInitial
	}
	if config.RetryMax <= 0 {
		config.RetryMax = DefaultRetryMax
	}
	if config.RetryMultiplier <= 1 {
		config.RetryMultiplier = DefaultRetryMultiplier
	}

	cursor, err := config.Outbox.Cursor(config.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to get cursor: %w", err)
	}

	return &Worker{
		config: config,
		cursor: cursor,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}, nil
}

// Name returns the sink name.
func (w *Worker) Name() string {
	return w.config.Name
}

// Start starts the worker goroutine
func (w *Worker) Start() {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()

	if w.running.Load() {
		return
	}

	w.running.Store(true)
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})

	log.Info().
		Str("worker", w.config.Name).
		Uint64("cursor", w.cursor).
		Msg("Starting relay worker")

	go w.pollLoop()
}

// Stop stops the worker and waits for it to exit
func (w *Worker) Stop() {
	w.lifecycleMu.Lock()
	defer w.lifecycleMu.Unlock()

	if !w.running.Load() {
		return
	}

	close(w.stopCh)
	<-w.doneCh
	w.running.Store(false)

	log.Info().Str("worker", w.config.Name).Msg("Relay worker stopped")
}

func (w *Worker) pollLoop() {
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			return
		default:
		}

		envs, err := w.config.Outbox.ReadFrom(w.cursor, w.config.BatchSize)
		if err != nil {
			log.Error().
				Err(err).
				Str("worker", w.config.Name).
				Uint64("cursor", w.cursor).
				Msg("Failed to read from outbox")
			w.sleep(w.config.PollInterval)
			continue
		}

		if len(envs) == 0 {
			w.sleep(w.config.PollInterval)
			continue
		}

		for _, env := range envs {
			if err := w.process(env); err != nil {
				log.Error().
					Err(err).
					Str("worker", w.config.Name).
					Uint64("seq", env.Seq).
					Msg("Failed to process envelope")
				return
			}
			w.cursor = env.Seq
		}
	}
}

// process publishes one envelope and advances the cursor. Filtered and
// unformattable envelopes are skipped.
func (w *Worker) process(env Envelope) error {
	if !w.config.Filter.Match(env.Subject) {
		telemetry.RelayPublishedTotal.With(w.config.Name, "filtered").Inc()
		w.advance(env.Seq)
		return nil
	}

	data, err := w.config.Transformer.Transform(env)
	if err != nil {
		// Retrying cannot fix a payload that does not format.
		telemetry.RelayPublishedTotal.With(w.config.Name, "dropped").Inc()
		log.Warn().
			Err(err).
			Str("worker", w.config.Name).
			Uint64("seq", env.Seq).
			Msg("Failed to format envelope, skipping")
		w.advance(env.Seq)
		return nil
	}

	if err := w.publishWithRetry(w.topic(env), env, data); err != nil {
		return err
	}

	telemetry.RelayPublishedTotal.With(w.config.Name, "success").Inc()
	w.advance(env.Seq)
	return nil
}

func (w *Worker) advance(seq uint64) {
	if err := w.config.Outbox.AdvanceCursor(w.config.Name, seq); err != nil {
		log.Warn().
			Err(err).
			Str("worker", w.config.Name).
			Uint64("seq", seq).
			Msg("Failed to advance cursor, envelope may be redelivered")
	}
}

// topic builds "{prefix}.{subject}.g{group}"
func (w *Worker) topic(env Envelope) string {
	suffix := env.Subject + ".g" + strconv.Itoa(env.Group)
	if w.config.TopicPrefix == "" {
		return suffix
	}
	return w.config.TopicPrefix + "." + suffix
}

// publishWithRetry publishes data with exponential backoff retry.
// Returns an error if max retries are exhausted or the worker is stopped.
func (w *Worker) publishWithRetry(topic string, env Envelope, data []byte) error {
	delay := w.config.RetryInitial
	attempts := 0

	for {
		start := time.Now()
		err := w.publish(topic, env, data)
		telemetry.RelayPublishSeconds.With(w.config.Name).Observe(time.Since(start).Seconds())
		if err == nil {
			return nil
		}

		attempts++
		telemetry.RelayPublishedTotal.With(w.config.Name, "retry").Inc()
		if w.config.MaxRetries > 0 && attempts >= w.config.MaxRetries {
			return fmt.Errorf("exhausted max retries (%d) for topic %s: %w", w.config.MaxRetries, topic, err)
		}

		log.Warn().
			Err(err).
			Str("worker", w.config.Name).
			Str("topic", topic).
			Int("attempt", attempts).
			Dur("retry_delay", delay).
			Msg("Failed to publish envelope, retrying")

		if !w.sleep(delay) {
			return fmt.Errorf("worker stopped during retry")
		}

		delay = time.Duration(float64(delay) * w.config.RetryMultiplier)
		if delay > w.config.RetryMax {
			delay = w.config.RetryMax
		}
	}
}

// publish hands data to the sink, with envelope metadata when the sink
// accepts it. The subject name is the partition key otherwise.
func (w *Worker) publish(topic string, env Envelope, data []byte) error {
	if es, ok := w.config.Sink.(EnvelopeSink); ok {
		return es.PublishEnvelope(topic, env, data)
	}
	return w.config.Sink.Publish(topic, env.Subject, data)
}

// sleep returns false when the worker was stopped first
func (w *Worker) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-w.stopCh:
		return false
	case <-timer.C:
		return true
	}
}
