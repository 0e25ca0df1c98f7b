package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/jingkaihe/skillsync/pkg/lockfile"
	"github.com/jingkaihe/skillsync/pkg/presenter"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type lockedSkill struct {
	Name         string `json:"name" yaml:"name"`
	Source       string `json:"source" yaml:"source"`
	SourceType   string `json:"sourceType" yaml:"sourceType"`
	ComputedHash string `json:"computedHash" yaml:"computedHash"`
}

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Inspect and edit skills-lock.json",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

var lockListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the skills recorded in the lock file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		format, _ := cmd.Flags().GetString("output")
		if err := validateOutput(format); err != nil {
			return err
		}
		store, err := projectStore()
		if err != nil {
			return err
		}
		return listLock(cmd.Context(), cmd.OutOrStdout(), store, format)
	},
}

var lockRemoveCmd = &cobra.Command{
	Use:   "remove <skill-name>...",
	Short: "Remove skills from the lock file",
	Long: `Remove entries from skills-lock.json. Installed skill folders are left alone; the
next sync reinstalls a removed skill if it is still shipped by a dependency.

Examples:
  skillsync lock remove root-skill
  skillsync lock remove lint format`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := projectStore()
		if err != nil {
			return err
		}
		return removeLockEntries(cmd.Context(), presenter.Default(), store, args)
	},
}

var lockSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON schema of the lock file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		schema, err := lockfile.Schema()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(schema))
		return nil
	},
}

func init() {
	lockListCmd.Flags().StringP("output", "o", outputTable, "Output format: table, json or yaml")

	lockCmd.PersistentFlags().String("lock-file", "", "Lock file to operate on instead of <project-dir>/"+lockfile.FileName)
	viper.BindPFlag("lock_file", lockCmd.PersistentFlags().Lookup("lock-file"))

	lockCmd.AddCommand(withTracing(lockListCmd))
	lockCmd.AddCommand(withTracing(lockRemoveCmd))
	lockCmd.AddCommand(lockSchemaCmd)
}

func projectStore() (*lockfile.Store, error) {
	return lockStore(viper.GetString("project_dir"), viper.GetString("lock_file"))
}

// lockStore resolves the lock file, relative paths being taken from the
// project directory.
func lockStore(projectDir, lockFile string) (*lockfile.Store, error) {
	project, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve project directory %s", projectDir)
	}
	if lockFile == "" {
		return lockfile.NewStore(project), nil
	}
	if !filepath.IsAbs(lockFile) {
		lockFile = filepath.Join(project, lockFile)
	}
	return lockfile.NewStoreAt(lockFile), nil
}

func listLock(ctx context.Context, w io.Writer, store *lockfile.Store, format string) error {
	lock := store.Read(ctx)

	entries := make([]lockedSkill, 0, len(lock.Skills))
	for _, name := range lock.Names() {
		e := lock.Skills[name]
		entries = append(entries, lockedSkill{
			Name:         name,
			Source:       e.Source,
			SourceType:   e.SourceType,
			ComputedHash: e.ComputedHash,
		})
	}

	if format != outputTable {
		return writeStructured(w, format, entries)
	}

	if len(entries) == 0 {
		presenter.Info("No skills recorded in " + store.Path())
		return nil
	}

	rows := make([][]string, len(entries))
	for i, e := range entries {
		rows[i] = []string{e.Name, e.Source, truncate(e.ComputedHash, 15)}
	}
	return writeTable(w, []string{"NAME", "SOURCE", "HASH"}, rows)
}

func removeLockEntries(ctx context.Context, p presenter.Presenter, store *lockfile.Store, names []string) error {
	var missing []string
	for _, name := range names {
		removed, err := store.RemoveEntry(ctx, name)
		if err != nil {
			return errors.Wrapf(err, "failed to remove %s from %s", name, lockfile.FileName)
		}
		if !removed {
			missing = append(missing, name)
			continue
		}
		p.Success(fmt.Sprintf("Removed '%s' from %s", name, lockfile.FileName))
	}

	if len(missing) > 0 {
		return errors.Errorf("not recorded in %s: %v", lockfile.FileName, missing)
	}
	return nil
}
