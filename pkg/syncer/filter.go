package syncer

import (
	"github.com/gobwas/glob"
	"github.com/jingkaihe/skillsync/pkg/discovery"
	"github.com/pkg/errors"
)

// skillFilter restricts a run to skills whose name or package matches one
// of the patterns. A nil filter matches everything.
type skillFilter struct {
	globs []glob.Glob
}

func newSkillFilter(patterns []string) (*skillFilter, error) {
	if len(patterns) == 0 {
		return nil, nil
	}

	f := &skillFilter{}
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, errors.Wrapf(err, "invalid skill filter %q", p)
		}
		f.globs = append(f.globs, g)
	}
	return f, nil
}

func (f *skillFilter) match(found discovery.Found) bool {
	if f == nil {
		return true
	}
	for _, g := range f.globs {
		if g.Match(found.Skill.Name) || g.Match(found.Package) {
			return true
		}
	}
	return false
}
