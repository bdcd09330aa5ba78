package observe

import (
	"github.com/maxpert/herald/mask"
	"github.com/maxpert/herald/registry"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultCapacity is the number of released records a subject keeps for reuse.
const DefaultCapacity = 16

// Directory is told when a subject gains its first subscriber and loses its last.
type Directory interface {
	Register(registry.Entry)
	Unregister(registry.Entry)
}

type options struct {
	layout    mask.Layout
	capacity  int
	directory Directory
	logger    zerolog.Logger
}

func defaultOptions() options {
	return options{
		layout:    mask.DefaultLayout,
		capacity:  DefaultCapacity,
		directory: registry.Default(),
		logger:    log.Logger,
	}
}

// Option configures a Subject.
type Option func(*options)

// WithLayout sets the group/event-bit layout. A zero Layout is ignored.
func WithLayout(l mask.Layout) Option {
	return func(o *options) {
		if !l.IsZero() {
			o.layout = l
		}
	}
}

// WithCapacity bounds the record free list.
func WithCapacity(n int) Option {
	return func(o *options) {
		o.capacity = n
	}
}

// WithRegistry sets where the subject registers itself. Nil disables tracking.
func WithRegistry(d Directory) Option {
	return func(o *options) {
		o.directory = d
	}
}

// WithLogger sets the logger used for lifecycle messages.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}
