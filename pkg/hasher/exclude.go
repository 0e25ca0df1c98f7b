package hasher

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
)

// ExcludedDirs are directory names skipped at every depth when hashing.
var ExcludedDirs = []string{".git", "node_modules"}

// IsExcluded reports whether the slash separated relative path passes
// through, or names, one of the ExcludedDirs.
func IsExcluded(rel string) bool {
	for _, segment := range strings.Split(rel, "/") {
		for _, name := range ExcludedDirs {
			if segment == name {
				return true
			}
		}
	}
	return false
}

// Excluder decides which relative paths are left out of a digest.
type Excluder struct {
	patterns []string
}

// DefaultExcluder only applies the ExcludedDirs rule.
func DefaultExcluder() *Excluder {
	return &Excluder{}
}

// NewExcluder validates the extra doublestar patterns.
func NewExcluder(patterns ...string) (*Excluder, error) {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, errors.Errorf("invalid exclude pattern %q", p)
		}
	}
	return &Excluder{patterns: patterns}, nil
}

// Match reports whether rel should be skipped. Directories matching a
// pattern are pruned together with everything below them.
func (e *Excluder) Match(rel string, isDir bool) bool {
	if IsExcluded(rel) {
		return true
	}
	for _, p := range e.patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
		if isDir {
			if ok, _ := doublestar.Match(p, rel+"/"); ok {
				return true
			}
		}
	}
	return false
}
