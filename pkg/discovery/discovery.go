// Package discovery finds skills embedded in installed packages.
//
// Every package directory below a dependency directory is searched for a
// SKILL.md at its root, or failing that, for skill folders one level inside
// a small set of conventional subdirectories. Scoped packages ("@scope/name")
// are followed one level deep. Discovery is best-effort: anything missing or
// unreadable yields no results for that subtree rather than an error.
package discovery

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/jingkaihe/skillsync/pkg/logger"
	"github.com/jingkaihe/skillsync/pkg/manifest"
)

// DefaultSearchDirs are the package-relative directories whose immediate
// children are checked for skills when the package has no root manifest.
var DefaultSearchDirs = []string{
	"skills",
	filepath.Join(".agents", "skills"),
	filepath.Join(".claude", "skills"),
}

// Found is a skill discovered inside a package
type Found struct {
	Skill *manifest.Skill
	// Package is the owning package identifier, e.g. "my-pkg" or "@acme/tools".
	Package string
}

// Discoverer walks dependency directories for skills
type Discoverer struct {
	parse      manifest.Parser
	searchDirs []string
}

// Option configures a Discoverer
type Option func(*Discoverer)

// WithParser replaces the manifest parser
func WithParser(p manifest.Parser) Option {
	return func(d *Discoverer) {
		d.parse = p
	}
}

// WithSearchDirs replaces the conventional package subdirectories
func WithSearchDirs(dirs ...string) Option {
	return func(d *Discoverer) {
		d.searchDirs = dirs
	}
}

// New creates a Discoverer
func New(opts ...Option) *Discoverer {
	d := &Discoverer{
		parse:      manifest.Parse,
		searchDirs: DefaultSearchDirs,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type sink struct {
	mu    sync.Mutex
	found []Found
}

func (s *sink) add(found ...Found) {
	if len(found) == 0 {
		return
	}
	s.mu.Lock()
	s.found = append(s.found, found...)
	s.mu.Unlock()
}

// Discover returns every skill found under depsDir. The order of the result
// is unspecified; use Sorted for display.
func (d *Discoverer) Discover(ctx context.Context, depsDir string) []Found {
	entries, err := os.ReadDir(depsDir)
	if err != nil {
		logger.G(ctx).WithError(err).WithField("path", depsDir).Debug("dependency directory not readable")
		return nil
	}

	results := &sink{}
	var wg sync.WaitGroup

	for _, entry := range entries {
		name := entry.Name()
		if isHidden(name) {
			continue
		}

		entryPath := filepath.Join(depsDir, name)
		if !isDir(entryPath) {
			continue
		}

		wg.Add(1)
		if strings.HasPrefix(name, "@") {
			go func(scope, scopePath string) {
				defer wg.Done()
				d.discoverScope(ctx, scope, scopePath, results)
			}(name, entryPath)
			continue
		}

		go func(pkg, pkgPath string) {
			defer wg.Done()
			results.add(d.discoverPackage(ctx, pkg, pkgPath)...)
		}(name, entryPath)
	}

	wg.Wait()
	return results.found
}

func (d *Discoverer) discoverScope(ctx context.Context, scope, scopePath string, results *sink) {
	entries, err := os.ReadDir(scopePath)
	if err != nil {
		logger.G(ctx).WithError(err).WithField("path", scopePath).Debug("scope directory not readable")
		return
	}

	var wg sync.WaitGroup
	for _, entry := range entries {
		name := entry.Name()
		if isHidden(name) {
			continue
		}

		pkgPath := filepath.Join(scopePath, name)
		if !isDir(pkgPath) {
			continue
		}

		wg.Add(1)
		go func(pkg, pkgPath string) {
			defer wg.Done()
			results.add(d.discoverPackage(ctx, pkg, pkgPath)...)
		}(scope+"/"+name, pkgPath)
	}
	wg.Wait()
}

// discoverPackage searches one package directory. A root manifest wins over
// anything in the conventional subdirectories.
func (d *Discoverer) discoverPackage(ctx context.Context, pkg, pkgPath string) []Found {
	if skill, ok := d.parse(filepath.Join(pkgPath, manifest.FileName)); ok {
		return []Found{{Skill: skill, Package: pkg}}
	}

	var found []Found
	for _, searchDir := range d.searchDirs {
		dir := filepath.Join(pkgPath, searchDir)
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}

		for _, entry := range entries {
			skillDir := filepath.Join(dir, entry.Name())
			if !isDir(skillDir) {
				continue
			}

			skill, ok := d.parse(filepath.Join(skillDir, manifest.FileName))
			if !ok {
				continue
			}
			found = append(found, Found{Skill: skill, Package: pkg})
		}
	}

	if len(found) > 0 {
		logger.G(ctx).WithField("package", pkg).WithField("count", len(found)).Debug("discovered skills in package")
	}
	return found
}

// Sorted returns found ordered by skill name, then package.
func Sorted(found []Found) []Found {
	sorted := append([]Found(nil), found...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Skill.Name != sorted[j].Skill.Name {
			return sorted[i].Skill.Name < sorted[j].Skill.Name
		}
		return sorted[i].Package < sorted[j].Package
	})
	return sorted
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// isDir follows symlinks, which package managers use for linked packages.
func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
