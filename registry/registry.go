// Package registry tracks every subject that currently has at least one
// subscriber. Subjects register themselves when they gain their first
// subscriber and unregister when they lose the last one.
//
// Membership is stored in a concurrent map so diagnostics can be listed from
// another goroutine. Entry methods such as Size are still owned by the
// goroutine that drives the subject.
package registry

import (
	"errors"
	"fmt"
	"sort"

	"github.com/gobwas/glob"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/maxpert/herald/telemetry"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog/log"
)

// patternCacheSize bounds the number of compiled glob patterns kept around.
const patternCacheSize = 128

// ErrInvalidPattern is returned by Match for a pattern that does not compile.
var ErrInvalidPattern = errors.New("invalid subject pattern")

// Entry is the view of a subject the registry needs.
type Entry interface {
	ID() uint64
	Name() string
	Size() int
}

// Registry is a set of entries keyed by subject id.
type Registry struct {
	entries  *xsync.MapOf[uint64, Entry]
	patterns *lru.Cache[string, glob.Glob]
}

// New creates an empty registry.
func New() *Registry {
	patterns, err := lru.New[string, glob.Glob](patternCacheSize)
	if err != nil {
		// Only fails for a non-positive size.
		panic(err)
	}

	return &Registry{
		entries:  xsync.NewMapOf[uint64, Entry](),
		patterns: patterns,
	}
}

var process = New()

// Default returns the process-wide registry.
func Default() *Registry {
	return process
}

// Register adds e. Registering twice is harmless.
func (r *Registry) Register(e Entry) {
	if _, loaded := r.entries.LoadOrStore(e.ID(), e); loaded {
		return
	}
	telemetry.SubjectsActive.Inc()

	log.Debug().
		Uint64("subject_id", e.ID()).
		Str("subject", e.Name()).
		Msg("Subject registered")
}

// Unregister removes e. Unknown entries are ignored.
func (r *Registry) Unregister(e Entry) {
	if _, loaded := r.entries.LoadAndDelete(e.ID()); !loaded {
		return
	}
	telemetry.SubjectsActive.Dec()

	log.Debug().
		Uint64("subject_id", e.ID()).
		Str("subject", e.Name()).
		Msg("Subject unregistered")
}

// Get returns the entry registered under id.
func (r *Registry) Get(id uint64) (Entry, bool) {
	return r.entries.Load(id)
}

// Len returns the number of registered subjects.
func (r *Registry) Len() int {
	return r.entries.Size()
}

// ForEach visits entries in no particular order until fn returns false.
func (r *Registry) ForEach(fn func(Entry) bool) {
	r.entries.Range(func(_ uint64, e Entry) bool {
		return fn(e)
	})
}

// Entries returns all entries ordered by id.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, 0, r.entries.Size())
	r.ForEach(func(e Entry) bool {
		out = append(out, e)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// TotalSubscriberCount sums Size over all registered subjects.
func (r *Registry) TotalSubscriberCount() int {
	total := 0
	r.ForEach(func(e Entry) bool {
		total += e.Size()
		return true
	})
	return total
}

// Match returns the entries whose name matches a glob pattern, ordered by id.
// Dots separate name segments: "ui.*" matches "ui.click" but not "ui.a.b".
func (r *Registry) Match(pattern string) ([]Entry, error) {
	g, err := r.compile(pattern)
	if err != nil {
		return nil, err
	}

	var out []Entry
	for _, e := range r.Entries() {
		if g.Match(e.Name()) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *Registry) compile(pattern string) (glob.Glob, error) {
	if g, ok := r.patterns.Get(pattern); ok {
		return g, nil
	}

	g, err := glob.Compile(pattern, '.')
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidPattern, pattern, err)
	}
	r.patterns.Add(pattern, g)
	return g, nil
}
