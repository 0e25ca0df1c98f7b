package syncer

import (
	"context"

	"github.com/aymanbagabas/go-udiff"
	"github.com/jingkaihe/skillsync/pkg/lockfile"
	"github.com/jingkaihe/skillsync/pkg/logger"
	"github.com/pkg/errors"
)

// lockDiff renders the change to the lock file that installing every pending
// skill successfully would produce.
func (s *Syncer) lockDiff(ctx context.Context, snapshot *lockfile.Lock, pending []candidate) (string, error) {
	projected := snapshot.Clone()
	for _, c := range pending {
		digest := c.hash
		if digest == "" {
			var err error
			digest, err = s.hasher.Hash(ctx, c.found.Skill.Path)
			if err != nil {
				logger.G(ctx).WithError(err).WithField("skill", c.name()).Warn("failed to hash skill for preview")
				continue
			}
		}
		projected.Set(c.name(), lockfile.Entry{
			Source:       c.found.Package,
			SourceType:   lockfile.SourceTypeNodeModules,
			ComputedHash: digest,
		})
	}

	before, err := lockfile.Marshal(snapshot)
	if err != nil {
		return "", errors.Wrap(err, "failed to render current lock file")
	}
	after, err := lockfile.Marshal(projected)
	if err != nil {
		return "", errors.Wrap(err, "failed to render projected lock file")
	}

	return udiff.Unified("a/"+lockfile.FileName, "b/"+lockfile.FileName, string(before), string(after)), nil
}
