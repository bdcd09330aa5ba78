package relay

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/maxpert/herald/encoding"
	"github.com/rs/zerolog/log"
)

// Key prefixes for Pebble storage
const (
	prefixOutbox = "/outbox/" // /outbox/{16-digit-hex-seq}
	prefixCursor = "/cursor/" // /cursor/{sinkName}
	keySeq       = "/seq"     // /seq -> uint64 (last assigned sequence)
)

// Pebble tuning for a small sequential log
const (
	memTableSize                = 16 << 20 // 16MB
	memTableStopWritesThreshold = 4
	l0CompactionThreshold       = 2
	l0StopWritesThreshold       = 12
)

const (
	defaultReadLimit    = 100
	cleanupIntervalMask = 0x7F // Cleanup every 128 sequences
)

// ErrOutboxClosed is returned by every operation after Close.
var ErrOutboxClosed = errors.New("outbox closed")

// Outbox is a Pebble-backed append-only log of envelopes with per-sink cursors.
type Outbox struct {
	db   *pebble.DB
	path string

	appendMu sync.Mutex
	lastSeq  atomic.Uint64

	cursors   map[string]uint64
	cursorsMu sync.RWMutex

	cleanupMu      sync.Mutex
	cleanupRunning atomic.Bool
	cleanupWg      sync.WaitGroup

	closed atomic.Bool
}

// OpenOutbox creates or opens an outbox stored at path.
func OpenOutbox(path string) (*Outbox, error) {
	opts := &pebble.Options{
		MemTableSize:                memTableSize,
		MemTableStopWritesThreshold: memTableStopWritesThreshold,
		L0CompactionThreshold:       l0CompactionThreshold,
		L0StopWritesThreshold:       l0StopWritesThreshold,
	}

	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open outbox at %s: %w", path, err)
	}

	o := &Outbox{
		db:      db,
		path:    path,
		cursors: make(map[string]uint64),
	}

	if err := o.loadSeq(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load sequence number: %w", err)
	}
	if err := o.loadCursors(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load cursors: %w", err)
	}

	return o, nil
}

func (o *Outbox) loadSeq() error {
	val, closer, err := o.db.Get([]byte(keySeq))
	if errors.Is(err, pebble.ErrNotFound) {
		o.lastSeq.Store(0)
		return nil
	}
	if err != nil {
		return err
	}
	defer closer.Close()

	if len(val) != 8 {
		return fmt.Errorf("invalid sequence value length: %d", len(val))
	}
	o.lastSeq.Store(binary.LittleEndian.Uint64(val))
	return nil
}

func (o *Outbox) loadCursors() error {
	prefix := []byte(prefixCursor)
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		name := string(iter.Key()[len(prefixCursor):])
		val, err := iter.ValueAndErr()
		if err != nil {
			return err
		}
		if len(val) != 8 {
			return fmt.Errorf("corrupted cursor for sink %s: invalid length %d", name, len(val))
		}
		o.cursors[name] = binary.LittleEndian.Uint64(val)
	}
	if err := iter.Error(); err != nil {
		return err
	}

	if len(o.cursors) > 0 {
		log.Info().Int("cursors", len(o.cursors)).Msg("Loaded outbox cursors")
	}
	return nil
}

// Append assigns sequence numbers to envs in place and writes them in one
// synced batch.
func (o *Outbox) Append(envs []Envelope) error {
	if len(envs) == 0 {
		return nil
	}
	if o.closed.Load() {
		return ErrOutboxClosed
	}

	o.appendMu.Lock()
	defer o.appendMu.Unlock()

	seq := o.lastSeq.Load()
	batch := o.db.NewBatch()
	defer batch.Close()

	for i := range envs {
		seq++
		envs[i].Seq = seq

		val, err := encoding.Marshal(&envs[i])
		if err != nil {
			return fmt.Errorf("failed to marshal envelope: %w", err)
		}
		if err := batch.Set(outboxKey(seq), val, nil); err != nil {
			return fmt.Errorf("failed to write envelope: %w", err)
		}
	}

	var seqBuf [8]byte
	binary.LittleEndian.PutUint64(seqBuf[:], seq)
	if err := batch.Set([]byte(keySeq), seqBuf[:], nil); err != nil {
		return fmt.Errorf("failed to update sequence: %w", err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}

	o.lastSeq.Store(seq)
	return nil
}

// LastSeq returns the highest sequence appended so far.
func (o *Outbox) LastSeq() uint64 {
	return o.lastSeq.Load()
}

// ReadFrom returns up to limit envelopes with Seq > cursor.
func (o *Outbox) ReadFrom(cursor uint64, limit int) ([]Envelope, error) {
	if o.closed.Load() {
		return nil, ErrOutboxClosed
	}
	if limit <= 0 {
		limit = defaultReadLimit
	}

	start := outboxKey(cursor + 1)
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: start,
		UpperBound: prefixUpperBound([]byte(prefixOutbox)),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	envs := make([]Envelope, 0, limit)
	for iter.SeekGE(start); iter.Valid() && len(envs) < limit; iter.Next() {
		val, err := iter.ValueAndErr()
		if err != nil {
			return nil, err
		}

		var env Envelope
		if err := encoding.Unmarshal(val, &env); err != nil {
			log.Warn().Err(err).Str("key", string(iter.Key())).Msg("Failed to unmarshal envelope")
			continue
		}
		envs = append(envs, env)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}

	return envs, nil
}

// Cursor returns the last published sequence for a sink, 0 for a new sink.
func (o *Outbox) Cursor(sinkName string) (uint64, error) {
	if o.closed.Load() {
		return 0, ErrOutboxClosed
	}

	o.cursorsMu.RLock()
	defer o.cursorsMu.RUnlock()
	return o.cursors[sinkName], nil
}

// AdvanceCursor records that a sink has published everything up to seq.
func (o *Outbox) AdvanceCursor(sinkName string, seq uint64) error {
	if o.closed.Load() {
		return ErrOutboxClosed
	}

	o.cursorsMu.Lock()
	o.cursors[sinkName] = seq
	o.cursorsMu.Unlock()

	var val [8]byte
	binary.LittleEndian.PutUint64(val[:], seq)
	if err := o.db.Set([]byte(prefixCursor+sinkName), val[:], pebble.Sync); err != nil {
		return fmt.Errorf("failed to update cursor: %w", err)
	}

	if seq&cleanupIntervalMask == 0 && o.cleanupRunning.CompareAndSwap(false, true) {
		o.cleanupWg.Add(1)
		go o.cleanupAsync()
	}
	return nil
}

// PruneCursors drops the cursors of sinks that are no longer configured so
// they stop holding back cleanup.
func (o *Outbox) PruneCursors(keep []string) error {
	if o.closed.Load() {
		return ErrOutboxClosed
	}

	wanted := make(map[string]bool, len(keep))
	for _, name := range keep {
		wanted[name] = true
	}

	o.cursorsMu.Lock()
	defer o.cursorsMu.Unlock()
	for name := range o.cursors {
		if wanted[name] {
			continue
		}
		if err := o.db.Delete([]byte(prefixCursor+name), pebble.Sync); err != nil {
			return fmt.Errorf("failed to drop cursor %s: %w", name, err)
		}
		delete(o.cursors, name)
		log.Info().Str("sink", name).Msg("Dropped cursor of removed sink")
	}
	return nil
}

// cleanup deletes entries every sink has already published.
func (o *Outbox) cleanup() {
	o.cleanupMu.Lock()
	defer o.cleanupMu.Unlock()

	if o.closed.Load() {
		return
	}

	o.cursorsMu.RLock()
	if len(o.cursors) == 0 {
		o.cursorsMu.RUnlock()
		return
	}
	minCursor := ^uint64(0)
	for _, c := range o.cursors {
		minCursor = min(minCursor, c)
	}
	o.cursorsMu.RUnlock()

	if minCursor == 0 {
		return
	}

	// DeleteRange's end is exclusive, so minCursor itself is removed too.
	if err := o.db.DeleteRange([]byte(prefixOutbox), outboxKey(minCursor+1), pebble.Sync); err != nil {
		log.Warn().Err(err).Uint64("min_cursor", minCursor).Msg("Failed to clean up outbox")
		return
	}
	log.Debug().Uint64("min_cursor", minCursor).Msg("Cleaned up outbox entries")
}

func (o *Outbox) cleanupAsync() {
	defer o.cleanupWg.Done()
	defer o.cleanupRunning.Store(false)
	o.cleanup()
}

// Close waits for in-flight cleanup and closes the database.
func (o *Outbox) Close() error {
	if !o.closed.CompareAndSwap(false, true) {
		return ErrOutboxClosed
	}

	o.cleanupWg.Wait()
	o.cleanupMu.Lock()
	defer o.cleanupMu.Unlock()
	return o.db.Close()
}

func outboxKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%016x", prefixOutbox, seq))
}

func prefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end
		}
	}
	return nil
}
