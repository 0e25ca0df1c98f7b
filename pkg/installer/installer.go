// Package installer places skill folders into target agent directories.
package installer

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/jingkaihe/skillsync/pkg/hasher"
	"github.com/jingkaihe/skillsync/pkg/logger"
	"github.com/jingkaihe/skillsync/pkg/manifest"
	"github.com/jingkaihe/skillsync/pkg/targets"
	"github.com/pkg/errors"
)

// Mode selects how a skill is placed into a target
type Mode string

// Installation modes
const (
	ModeSymlink Mode = "symlink"
	ModeCopy    Mode = "copy"
)

// ParseMode validates a mode name, defaulting to symlink when empty
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(s)) {
	case "", ModeSymlink:
		return ModeSymlink, nil
	case ModeCopy:
		return ModeCopy, nil
	default:
		return "", errors.Errorf("invalid install mode %q (expected symlink or copy)", s)
	}
}

// Result describes one installation attempt
type Result struct {
	Success bool
	// Path is where the skill is now reachable inside the target.
	Path string
	// CanonicalPath is the folder Path resolves to, when it is a link.
	CanonicalPath string
	Error         string
}

// Installer installs a skill into a target. Failures are reported in the
// Result rather than as errors.
type Installer interface {
	Install(ctx context.Context, skill *manifest.Skill, target targets.Target, mode Mode) Result
}

// FSInstaller installs skills into target directories below a project.
type FSInstaller struct {
	projectDir string
}

// NewFSInstaller creates an installer for projectDir
func NewFSInstaller(projectDir string) *FSInstaller {
	return &FSInstaller{projectDir: projectDir}
}

// SanitizeName turns a skill name into a single safe path element.
func SanitizeName(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':':
			return '-'
		}
		return r
	}, strings.TrimSpace(name))
	cleaned = strings.Trim(cleaned, ".")
	if cleaned == "" {
		return "unnamed-skill"
	}
	return cleaned
}

// Destination returns where skill would be installed for target
func (i *FSInstaller) Destination(skill *manifest.Skill, target targets.Target) string {
	return filepath.Join(i.projectDir, target.SkillsDir, SanitizeName(skill.Name))
}

// Install implements Installer
func (i *FSInstaller) Install(ctx context.Context, skill *manifest.Skill, target targets.Target, mode Mode) Result {
	dest := i.Destination(skill, target)
	log := logger.G(ctx).WithField("skill", skill.Name).WithField("target", target.Name).WithField("path", dest)

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return failure(dest, errors.Wrap(err, "failed to create skills directory"))
	}
	if err := os.RemoveAll(dest); err != nil {
		return failure(dest, errors.Wrap(err, "failed to remove existing skill"))
	}

	if mode == ModeSymlink {
		canonical, err := i.link(skill.Path, dest)
		if err == nil {
			log.Debug("linked skill")
			return Result{Success: true, Path: dest, CanonicalPath: canonical}
		}
		if os.IsExist(err) {
			// Another install claimed dest after it was cleared; copying
			// would write through whatever is now there.
			return failure(dest, errors.Wrap(err, "skill folder already taken"))
		}
		log.WithError(err).Debug("symlink failed, falling back to copy")
	}

	if err := copyDir(ctx, skill.Path, dest); err != nil {
		_ = os.RemoveAll(dest)
		return failure(dest, errors.Wrap(err, "failed to copy skill"))
	}

	log.Debug("copied skill")
	return Result{Success: true, Path: dest}
}

func (i *FSInstaller) link(src, dest string) (string, error) {
	canonical, err := filepath.Abs(src)
	if err != nil {
		return "", err
	}

	absDest, err := filepath.Abs(dest)
	if err != nil {
		return "", err
	}

	rel, err := filepath.Rel(filepath.Dir(absDest), canonical)
	if err != nil {
		return "", err
	}

	if err := os.Symlink(rel, dest); err != nil {
		return "", err
	}
	return canonical, nil
}

func failure(dest string, err error) Result {
	return Result{Success: false, Path: dest, Error: err.Error()}
}

func copyDir(ctx context.Context, src, dst string) error {
	src, err := filepath.EvalSymlinks(src)
	if err != nil {
		return err
	}

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		relPath, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}

		if relPath != "." && hasher.IsExcluded(filepath.ToSlash(relPath)) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		destPath := filepath.Join(dst, relPath)

		if d.IsDir() {
			return os.MkdirAll(destPath, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}

		return copyFile(path, destPath)
	})
}

func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	srcInfo, err := srcFile.Stat()
	if err != nil {
		return err
	}

	dstFile, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, srcInfo.Mode())
	if err != nil {
		return err
	}
	defer dstFile.Close()

	_, err = io.Copy(dstFile, srcFile)
	return err
}
