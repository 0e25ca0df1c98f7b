// Package syncer reconciles the skills shipped inside a project's
// dependencies with the agent directories they are installed into.
//
// A run discovers skills, compares each one's content digest with the
// digest recorded in the lock file, installs the changed ones into every
// selected target and records the successful ones back in the lock file.
// Partial failures are reported per skill and target; they never abort the
// batch.
package syncer

import (
	"context"

	"github.com/jingkaihe/skillsync/pkg/discovery"
	"github.com/jingkaihe/skillsync/pkg/installer"
	"github.com/jingkaihe/skillsync/pkg/lockfile"
)

// Outcome classifies how a run ended
type Outcome string

// Run outcomes
const (
	// OutcomeNothingToDo means no skills were discovered at all.
	OutcomeNothingToDo Outcome = "nothing_to_do"
	// OutcomeUpToDate means skills were discovered but none changed.
	OutcomeUpToDate Outcome = "up_to_date"
	// OutcomeSynced means installation was attempted for pending skills.
	OutcomeSynced Outcome = "synced"
	// OutcomeAborted means the user cancelled target selection.
	OutcomeAborted Outcome = "aborted"
	// OutcomeDryRun means pending skills were computed but nothing changed.
	OutcomeDryRun Outcome = "dry_run"
)

// Discoverer finds skills below a dependency directory
type Discoverer interface {
	Discover(ctx context.Context, depsDir string) []discovery.Found
}

// LockStore is the part of the lock store a run needs
type LockStore interface {
	Read(ctx context.Context) *lockfile.Lock
	AddEntry(ctx context.Context, name string, e lockfile.Entry) error
}

// Hasher computes skill folder digests
type Hasher interface {
	Hash(ctx context.Context, root string) (string, error)
}

// Options controls a single run
type Options struct {
	// DepsDir is the dependency directory to scan.
	DepsDir string
	// Targets are explicitly requested target names. When set they are
	// validated up front and no selection happens.
	Targets []string
	// DefaultTargets are offered to the selector as preselected.
	DefaultTargets []string
	// Force reinstalls every discovered skill regardless of the lock.
	Force bool
	Mode  installer.Mode
	// DryRun stops after partitioning and reports the lock file diff.
	DryRun bool
	// SkillFilters are glob patterns matched against skill names and
	// package names; when set only matching skills are considered.
	SkillFilters []string
}

// SkillReport is the per skill outcome of the installation step
type SkillReport struct {
	Name    string
	Package string
	// Succeeded lists target names the skill was installed into.
	Succeeded []string
	// Failed maps target names to installation errors.
	Failed map[string]string
	// Paths maps target names to installed paths.
	Paths map[string]string
	// Recorded is set when the lock entry was written.
	Recorded bool
}

// Result summarises a run
type Result struct {
	Outcome    Outcome
	Discovered int
	// UpToDate lists skills whose lock digest matched.
	UpToDate []string
	// Pending lists skills that needed installation, sorted.
	Pending []string
	// Installed lists skills installed into at least one target, sorted.
	Installed []string
	// Failed counts failed installation attempts.
	Failed  int
	Targets []string
	Skills  map[string]*SkillReport
	// LockDiff is the unified diff of the lock file a dry run would write.
	LockDiff string
	// Errors aggregates the failures that did not abort the run.
	Errors error
}
