package syncer

import (
	"context"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/jingkaihe/skillsync/pkg/discovery"
	"github.com/jingkaihe/skillsync/pkg/hasher"
	"github.com/jingkaihe/skillsync/pkg/installer"
	"github.com/jingkaihe/skillsync/pkg/lockfile"
	"github.com/jingkaihe/skillsync/pkg/logger"
	"github.com/jingkaihe/skillsync/pkg/targets"
	"github.com/jingkaihe/skillsync/pkg/telemetry"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const defaultConcurrency = 4

// Syncer runs skill synchronisation for one project
type Syncer struct {
	discoverer  Discoverer
	store       LockStore
	installer   installer.Installer
	selector    targets.Selector
	reporter    telemetry.Reporter
	hasher      Hasher
	version     string
	concurrency int
}

// Option configures a Syncer
type Option func(*Syncer)

// WithDiscoverer replaces the skill discoverer
func WithDiscoverer(d Discoverer) Option {
	return func(s *Syncer) {
		s.discoverer = d
	}
}

// WithStore sets the lock store
func WithStore(store LockStore) Option {
	return func(s *Syncer) {
		s.store = store
	}
}

// WithInstaller sets the installer
func WithInstaller(i installer.Installer) Option {
	return func(s *Syncer) {
		s.installer = i
	}
}

// WithSelector sets the target selection policy
func WithSelector(sel targets.Selector) Option {
	return func(s *Syncer) {
		s.selector = sel
	}
}

// WithReporter sets the telemetry reporter
func WithReporter(r telemetry.Reporter) Option {
	return func(s *Syncer) {
		s.reporter = r
	}
}

// WithHasher replaces the content hasher
func WithHasher(h Hasher) Option {
	return func(s *Syncer) {
		s.hasher = h
	}
}

// WithVersion sets the version reported with telemetry events
func WithVersion(v string) Option {
	return func(s *Syncer) {
		s.version = v
	}
}

// WithConcurrency bounds how many skills are hashed or installed at once
func WithConcurrency(n int) Option {
	return func(s *Syncer) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// New creates a Syncer. A store and an installer are required.
func New(opts ...Option) (*Syncer, error) {
	s := &Syncer{
		discoverer:  discovery.New(),
		selector:    targets.StaticSelector{},
		reporter:    telemetry.NopReporter{},
		hasher:      &hasher.Hasher{},
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.store == nil {
		return nil, errors.New("syncer requires a lock store")
	}
	if s.installer == nil {
		return nil, errors.New("syncer requires an installer")
	}
	return s, nil
}

// candidate is a discovered skill under consideration for installation
type candidate struct {
	found discovery.Found
	hash  string
}

func (c candidate) name() string { return c.found.Skill.Name }

// Run performs one synchronisation. Only invalid input is returned as an
// error; a cancelled selection yields OutcomeAborted with a nil error.
func (s *Syncer) Run(ctx context.Context, opts Options) (*Result, error) {
	ctx, span := telemetry.Tracer("").Start(ctx, "sync.run")
	defer span.End()

	result := &Result{Skills: map[string]*SkillReport{}}

	explicit, err := targets.Validate(opts.Targets)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, err
	}

	filter, err := newSkillFilter(opts.SkillFilters)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, err
	}

	mode := opts.Mode
	if mode == "" {
		mode = installer.ModeSymlink
	}

	found := s.discover(ctx, opts.DepsDir, filter)
	result.Discovered = len(found)
	span.SetAttributes(attribute.Int("skills.discovered", len(found)))
	if len(found) == 0 {
		result.Outcome = OutcomeNothingToDo
		return result, nil
	}

	snapshot := s.store.Read(ctx)

	var pending []candidate
	err = telemetry.WithSpan(ctx, "sync.partition", func(ctx context.Context) error {
		var err error
		pending, result.UpToDate, err = s.partition(ctx, found, snapshot, opts.Force)
		telemetry.SetAttributes(ctx,
			attribute.Int("skills.pending", len(pending)),
			attribute.Bool("force", opts.Force),
		)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "sync interrupted")
	}
	for _, c := range pending {
		result.Pending = append(result.Pending, c.name())
	}

	if len(pending) == 0 {
		result.Outcome = OutcomeUpToDate
		return result, nil
	}

	if opts.DryRun {
		diff, err := s.lockDiff(ctx, snapshot, pending)
		if err != nil {
			return nil, err
		}
		result.LockDiff = diff
		result.Outcome = OutcomeDryRun
		return result, nil
	}

	chosen := explicit
	if len(chosen) == 0 {
		chosen, err = s.selector.Select(ctx, targets.All(), opts.DefaultTargets)
		if errors.Is(err, targets.ErrSelectionCancelled) {
			logger.G(ctx).WithError(err).Debug("target selection cancelled")
			result.Outcome = OutcomeAborted
			return result, nil
		}
		if err != nil {
			telemetry.RecordError(ctx, err)
			return nil, err
		}
		if len(chosen) == 0 {
			result.Outcome = OutcomeAborted
			return result, nil
		}
	}
	result.Targets = targets.TargetNames(chosen)

	var reports []installOutcome
	_ = telemetry.WithSpan(ctx, "sync.install", func(ctx context.Context) error {
		reports = s.install(ctx, pending, chosen, mode)
		return nil
	}, attribute.StringSlice("targets", result.Targets), attribute.String("mode", string(mode)))

	var errs *multierror.Error
	for i, c := range pending {
		report := reports[i].report
		result.Skills[c.name()] = report
		result.Failed += len(report.Failed)
		for target, msg := range report.Failed {
			errs = multierror.Append(errs, errors.Errorf("%s -> %s: %s", c.name(), target, msg))
		}
		if len(report.Succeeded) > 0 {
			result.Installed = append(result.Installed, c.name())
		}
	}

	var recordErrs []error
	_ = telemetry.WithSpan(ctx, "sync.record", func(ctx context.Context) error {
		recordErrs = s.record(ctx, pending, reports)
		return multierror.Append(nil, recordErrs...).ErrorOrNil()
	})
	errs = multierror.Append(errs, recordErrs...)
	result.Errors = errs.ErrorOrNil()
	result.Outcome = OutcomeSynced

	span.SetAttributes(
		attribute.Int("skills.installed", len(result.Installed)),
		attribute.Int("installs.failed", result.Failed),
	)

	s.report(ctx, result, pending)
	return result, nil
}

func (s *Syncer) discover(ctx context.Context, depsDir string, filter *skillFilter) []discovery.Found {
	all := discovery.Sorted(s.discoverer.Discover(ctx, depsDir))

	// Keyed by install folder name: distinct skill names can sanitize to the
	// same destination and must not overwrite each other.
	seen := make(map[string]discovery.Found, len(all))
	found := make([]discovery.Found, 0, len(all))
	for _, f := range all {
		if !filter.match(f) {
			continue
		}
		folder := installer.SanitizeName(f.Skill.Name)
		if owner, dup := seen[folder]; dup {
			log := logger.G(ctx).WithFields(logrus.Fields{
				"skill":        f.Skill.Name,
				"package":      f.Package,
				"kept":         owner.Skill.Name,
				"kept_package": owner.Package,
			})
			if owner.Skill.Name == f.Skill.Name {
				log.Warn("skill name provided by more than one package, ignoring duplicate")
			} else {
				log.WithField("folder", folder).Warn("skill installs into the same folder as another skill, ignoring it")
			}
			continue
		}
		seen[folder] = f
		found = append(found, f)
	}
	return found
}

// partition splits found skills into those needing installation and the
// names of those whose digest matches the lock snapshot. It fails only when
// ctx is cancelled.
func (s *Syncer) partition(ctx context.Context, found []discovery.Found, snapshot *lockfile.Lock, force bool) ([]candidate, []string, error) {
	candidates := make([]candidate, len(found))
	changed := make([]bool, len(found))
	for i, f := range found {
		candidates[i] = candidate{found: f}
	}

	err := s.forEach(ctx, len(found), func(i int) {
		f := found[i]
		if force {
			changed[i] = true
			return
		}

		entry, ok := snapshot.Get(f.Skill.Name)
		if !ok {
			changed[i] = true
			return
		}

		current, err := s.hasher.Hash(ctx, f.Skill.Path)
		if err != nil {
			logger.G(ctx).WithError(err).WithField("skill", f.Skill.Name).Warn("failed to hash skill, treating as changed")
			changed[i] = true
			return
		}
		candidates[i].hash = current
		changed[i] = current != entry.ComputedHash
	})
	if err != nil {
		return nil, nil, err
	}

	var pending []candidate
	var upToDate []string
	for i, c := range candidates {
		if changed[i] {
			pending = append(pending, c)
		} else {
			upToDate = append(upToDate, c.name())
		}
	}
	return pending, upToDate, nil
}

type installOutcome struct {
	report *SkillReport
	hash   string
	err    error
}

// install attempts every (skill, target) pair. The post install digest of a
// skill is computed once all of its targets have settled. Skills not started
// before ctx is cancelled are reported as failed on every target.
func (s *Syncer) install(ctx context.Context, pending []candidate, chosen []targets.Target, mode installer.Mode) []installOutcome {
	outcomes := make([]installOutcome, len(pending))
	for i, c := range pending {
		outcomes[i].report = &SkillReport{
			Name:    c.name(),
			Package: c.found.Package,
			Failed:  map[string]string{},
			Paths:   map[string]string{},
		}
	}

	started := make([]bool, len(pending))
	err := s.forEach(ctx, len(pending), func(i int) {
		started[i] = true
		c := pending[i]
		report := outcomes[i].report

		for _, target := range chosen {
			res := s.installer.Install(ctx, c.found.Skill, target, mode)
			log := logger.G(ctx).WithField("skill", c.name()).WithField("target", target.Name)
			if res.Success {
				report.Succeeded = append(report.Succeeded, target.Name)
				report.Paths[target.Name] = res.Path
				log.WithField("path", res.Path).Debug("installed skill")
				continue
			}

			msg := res.Error
			if msg == "" {
				msg = "installation failed"
			}
			report.Failed[target.Name] = msg
			log.WithField("error", msg).Warn("failed to install skill")
		}

		if len(report.Succeeded) == 0 {
			return
		}

		outcomes[i].hash, outcomes[i].err = s.hasher.Hash(ctx, c.found.Skill.Path)
	})

	if err != nil {
		for i := range pending {
			if started[i] {
				continue
			}
			for _, target := range chosen {
				outcomes[i].report.Failed[target.Name] = err.Error()
			}
		}
	}
	return outcomes
}

// record writes a lock entry for every skill installed at least once. Write
// failures are logged and returned for reporting only.
func (s *Syncer) record(ctx context.Context, pending []candidate, outcomes []installOutcome) []error {
	var errs []error
	for i, c := range pending {
		out := outcomes[i]
		if len(out.report.Succeeded) == 0 {
			continue
		}

		log := logger.G(ctx).WithField("skill", c.name())
		if out.err != nil {
			err := errors.Wrapf(out.err, "failed to hash %s after install", c.name())
			log.WithError(err).Warn("not recording lock entry")
			errs = append(errs, err)
			continue
		}

		entry := lockfile.Entry{
			Source:       c.found.Package,
			SourceType:   lockfile.SourceTypeNodeModules,
			ComputedHash: out.hash,
		}
		if err := s.store.AddEntry(ctx, c.name(), entry); err != nil {
			log.WithError(err).Warn("failed to update lock file")
			telemetry.AddEvent(ctx, "lock.write_failed", attribute.String("skill", c.name()))
			errs = append(errs, err)
			continue
		}
		out.report.Recorded = true
	}
	return errs
}

func (s *Syncer) report(ctx context.Context, result *Result, pending []candidate) {
	if len(result.Installed) == 0 {
		return
	}

	installed := make(map[string]bool, len(result.Installed))
	for _, name := range result.Installed {
		installed[name] = true
	}

	var sources []string
	seen := map[string]bool{}
	for _, c := range pending {
		if installed[c.name()] && !seen[c.found.Package] {
			seen[c.found.Package] = true
			sources = append(sources, c.found.Package)
		}
	}
	sort.Strings(sources)

	s.reporter.Report(ctx, telemetry.Event{
		Name:      "sync",
		Version:   s.version,
		Skills:    result.Installed,
		Sources:   sources,
		Targets:   result.Targets,
		Installed: len(result.Installed),
		Failed:    result.Failed,
	})
}

// forEach runs f for 0..n-1 with at most s.concurrency calls in flight.
// Once ctx is done no further calls are started; calls already running are
// waited for and ctx.Err() is returned.
func (s *Syncer) forEach(ctx context.Context, n int, f func(i int)) error {
	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup
	defer wg.Wait()

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			f(i)
		}(i)
	}
	return nil
}
