package relay

import (
	"fmt"

	"github.com/gobwas/glob"
)

// GlobFilter matches subject names against glob patterns. Dots separate
// name segments, so "orders.*" matches "orders.created" only.
type GlobFilter struct {
	globs []glob.Glob
}

// NewGlobFilter compiles patterns. No patterns matches every subject.
func NewGlobFilter(patterns []string) (*GlobFilter, error) {
	f := &GlobFilter{globs: make([]glob.Glob, 0, len(patterns))}
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern, '.')
		if err != nil {
			return nil, fmt.Errorf("invalid subject pattern %q: %w", pattern, err)
		}
		f.globs = append(f.globs, g)
	}
	return f, nil
}

// Match reports whether subject matches any pattern.
func (f *GlobFilter) Match(subject string) bool {
	if len(f.globs) == 0 {
		return true
	}
	for _, g := range f.globs {
		if g.Match(subject) {
			return true
		}
	}
	return false
}
