// Package targets describes the agents skills can be installed for and the
// policies used to choose between them.
package targets

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
)

// ErrUnknownTarget is returned for target names that are not registered
var ErrUnknownTarget = errors.New("unknown target")

// Target is an installation destination inside a project
type Target struct {
	Name        string
	DisplayName string
	// SkillsDir is the project relative directory skills are installed into.
	SkillsDir string
	// ConfigDir is the project relative directory whose presence indicates the
	// agent is in use.
	ConfigDir string
}

var registry = []Target{
	{Name: "agents", DisplayName: "Universal (.agents)", SkillsDir: filepath.Join(".agents", "skills"), ConfigDir: ".agents"},
	{Name: "claude-code", DisplayName: "Claude Code", SkillsDir: filepath.Join(".claude", "skills"), ConfigDir: ".claude"},
	{Name: "codex", DisplayName: "Codex", SkillsDir: filepath.Join(".codex", "skills"), ConfigDir: ".codex"},
	{Name: "cursor", DisplayName: "Cursor", SkillsDir: filepath.Join(".cursor", "skills"), ConfigDir: ".cursor"},
	{Name: "kodelet", DisplayName: "Kodelet", SkillsDir: filepath.Join(".kodelet", "skills"), ConfigDir: ".kodelet"},
	{Name: "opencode", DisplayName: "OpenCode", SkillsDir: filepath.Join(".opencode", "skills"), ConfigDir: ".opencode"},
}

// All returns every known target, ordered by name
func All() []Target {
	all := append([]Target(nil), registry...)
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all
}

// Names returns the names of every known target
func Names() []string {
	all := All()
	names := make([]string, len(all))
	for i, t := range all {
		names[i] = t.Name
	}
	return names
}

// Lookup finds a target by name
func Lookup(name string) (Target, bool) {
	for _, t := range registry {
		if t.Name == name {
			return t, true
		}
	}
	return Target{}, false
}

// Validate resolves names to targets, dropping duplicates while keeping the
// first occurrence order. Any unknown name fails the whole call.
func Validate(names []string) ([]Target, error) {
	seen := make(map[string]bool, len(names))
	var resolved []Target
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true

		t, ok := Lookup(name)
		if !ok {
			return nil, errors.Wrapf(ErrUnknownTarget, "%q (valid targets: %v)", name, Names())
		}
		resolved = append(resolved, t)
	}
	return resolved, nil
}

// Detect returns the targets whose agent directory already exists in
// projectDir.
func Detect(projectDir string) []Target {
	var detected []Target
	for _, t := range All() {
		info, err := os.Stat(filepath.Join(projectDir, t.ConfigDir))
		if err == nil && info.IsDir() {
			detected = append(detected, t)
		}
	}
	return detected
}

// TargetNames returns the names of ts in order
func TargetNames(ts []Target) []string {
	names := make([]string, len(ts))
	for i, t := range ts {
		names[i] = t.Name
	}
	return names
}
