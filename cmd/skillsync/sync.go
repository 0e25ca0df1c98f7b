package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jingkaihe/skillsync/pkg/hasher"
	"github.com/jingkaihe/skillsync/pkg/installer"
	"github.com/jingkaihe/skillsync/pkg/lockfile"
	"github.com/jingkaihe/skillsync/pkg/logger"
	"github.com/jingkaihe/skillsync/pkg/presenter"
	"github.com/jingkaihe/skillsync/pkg/syncer"
	"github.com/jingkaihe/skillsync/pkg/targets"
	"github.com/jingkaihe/skillsync/pkg/telemetry"
	"github.com/jingkaihe/skillsync/pkg/version"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const telemetryFlushTimeout = 2 * time.Second

// SyncConfig holds the options of a sync invocation
type SyncConfig struct {
	ProjectDir string
	DepsDir    string
	Targets    []string
	Skills     []string
	Force      bool
	Copy       bool
	DryRun     bool
	Yes        bool
}

// NewSyncConfig returns the flag defaults
func NewSyncConfig() *SyncConfig {
	return &SyncConfig{
		ProjectDir: ".",
		DepsDir:    "node_modules",
	}
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Install changed skills from dependencies into agent directories",
	Long: `Discover skills shipped in installed dependencies, install the ones whose content
changed since the last sync into every selected agent target and record them in
skills-lock.json.

Examples:
  skillsync sync
  skillsync sync -t claude-code -t codex
  skillsync sync --dry-run
  skillsync sync --skill '@acme/*' --copy -y`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runSync(cmd.Context(), getSyncConfigFromFlags(cmd))
	},
}

func init() {
	syncCmd.Flags().StringSliceP("target", "t", nil, "Target agents to install into (repeatable); skips the prompt")
	syncCmd.Flags().StringSlice("skill", nil, "Only sync skills whose name or package matches the glob (repeatable)")
	syncCmd.Flags().Bool("force", false, "Reinstall every discovered skill regardless of the lock file")
	syncCmd.Flags().Bool("copy", false, "Copy skills instead of symlinking them")
	syncCmd.Flags().Bool("dry-run", false, "Show what would be installed and the lock file diff without changing anything")
	syncCmd.Flags().BoolP("yes", "y", false, "Do not prompt; use configured or detected targets")
}

func getSyncConfigFromFlags(cmd *cobra.Command) *SyncConfig {
	config := NewSyncConfig()
	config.ProjectDir = viper.GetString("project_dir")
	config.DepsDir = viper.GetString("deps_dir")

	if ts, err := cmd.Flags().GetStringSlice("target"); err == nil {
		config.Targets = ts
	}
	if skills, err := cmd.Flags().GetStringSlice("skill"); err == nil {
		config.Skills = skills
	}
	if force, err := cmd.Flags().GetBool("force"); err == nil {
		config.Force = force
	}
	if cp, err := cmd.Flags().GetBool("copy"); err == nil {
		config.Copy = cp
	}
	if dryRun, err := cmd.Flags().GetBool("dry-run"); err == nil {
		config.DryRun = dryRun
	}
	if yes, err := cmd.Flags().GetBool("yes"); err == nil {
		config.Yes = yes
	}
	return config
}

func resolveDirs(projectDir, depsDir string) (string, string, error) {
	project, err := filepath.Abs(projectDir)
	if err != nil {
		return "", "", errors.Wrapf(err, "failed to resolve project directory %s", projectDir)
	}
	if !filepath.IsAbs(depsDir) {
		depsDir = filepath.Join(project, depsDir)
	}
	return project, depsDir, nil
}

func newHasher() (*hasher.Hasher, error) {
	return hasher.New(hasher.WithExcludePatterns(viper.GetStringSlice("exclude")...))
}

func newReporter() telemetry.Reporter {
	endpoint := viper.GetString("telemetry.endpoint")
	if endpoint == "" || viper.GetBool("telemetry.disabled") || telemetry.Disabled() {
		return telemetry.NopReporter{}
	}
	return telemetry.NewHTTPReporter(endpoint)
}

// defaultTargets prefers configured targets over agent directories found in
// the project.
func defaultTargets(projectDir string) []string {
	if configured := viper.GetStringSlice("targets"); len(configured) > 0 {
		return configured
	}
	return targets.TargetNames(targets.Detect(projectDir))
}

func runSync(ctx context.Context, config *SyncConfig) error {
	projectDir, depsDir, err := resolveDirs(config.ProjectDir, config.DepsDir)
	if err != nil {
		return err
	}

	mode, err := installer.ParseMode(viper.GetString("mode"))
	if err != nil {
		return err
	}
	if config.Copy {
		mode = installer.ModeCopy
	}

	h, err := newHasher()
	if err != nil {
		return err
	}

	var selector targets.Selector = targets.PromptSelector{Asker: presenter.Default()}
	if config.Yes {
		selector = targets.StaticSelector{}
	}

	reporter := newReporter()
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), telemetryFlushTimeout)
		defer cancel()
		reporter.Flush(flushCtx)
	}()

	s, err := syncer.New(
		syncer.WithStore(lockfile.NewStore(projectDir)),
		syncer.WithInstaller(installer.NewFSInstaller(projectDir)),
		syncer.WithHasher(h),
		syncer.WithSelector(selector),
		syncer.WithReporter(reporter),
		syncer.WithVersion(version.Get().Version),
		syncer.WithConcurrency(viper.GetInt("concurrency")),
	)
	if err != nil {
		return err
	}

	ctx = logger.WithLogger(ctx, logger.G(ctx).WithField("project", projectDir))
	result, err := s.Run(ctx, syncer.Options{
		DepsDir:        depsDir,
		Targets:        config.Targets,
		DefaultTargets: defaultTargets(projectDir),
		Force:          config.Force,
		Mode:           mode,
		DryRun:         config.DryRun,
		SkillFilters:   config.Skills,
	})
	if err != nil {
		return errors.Wrap(err, "sync failed")
	}

	presentSyncResult(presenter.Default(), result)
	return nil
}

func presentSyncResult(p presenter.Presenter, result *syncer.Result) {
	switch result.Outcome {
	case syncer.OutcomeNothingToDo:
		p.Info("No skills found in dependencies")
		return
	case syncer.OutcomeUpToDate:
		p.Success(fmt.Sprintf("All %d skill(s) are up to date", result.Discovered))
		return
	case syncer.OutcomeAborted:
		p.Warning("Sync cancelled, nothing was installed")
		return
	case syncer.OutcomeDryRun:
		p.Section("Skills that would be installed")
		p.List(result.Pending)
		if result.LockDiff != "" {
			p.Section("skills-lock.json changes")
			p.Diff(result.LockDiff)
		}
		return
	}

	p.Section(fmt.Sprintf("Installed into %s", strings.Join(result.Targets, ", ")))
	names := make([]string, 0, len(result.Skills))
	for name := range result.Skills {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		report := result.Skills[name]
		if len(report.Succeeded) > 0 {
			p.Success(fmt.Sprintf("%s (%s) -> %s", name, report.Package, strings.Join(report.Succeeded, ", ")))
		}
		failed := make([]string, 0, len(report.Failed))
		for target := range report.Failed {
			failed = append(failed, target)
		}
		sort.Strings(failed)
		for _, target := range failed {
			p.Warning(fmt.Sprintf("%s -> %s: %s", name, target, report.Failed[target]))
		}
		if len(report.Succeeded) > 0 && !report.Recorded {
			p.Warning(fmt.Sprintf("%s was installed but could not be recorded in %s", name, lockfile.FileName))
		}
	}

	p.Separator()
	p.Stats(&presenter.SyncStats{
		Discovered: result.Discovered,
		UpToDate:   len(result.UpToDate),
		Installed:  len(result.Installed),
		Failed:     result.Failed,
	})
}
