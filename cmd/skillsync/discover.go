package main

import (
	"context"
	"io"

	"github.com/jingkaihe/skillsync/pkg/discovery"
	"github.com/jingkaihe/skillsync/pkg/presenter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type discoveredSkill struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Package     string `json:"package" yaml:"package"`
	Path        string `json:"path" yaml:"path"`
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "List skills shipped in installed dependencies",
	Long:  `List every skill found in the dependency directory, sorted by name. Nothing is installed.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		format, _ := cmd.Flags().GetString("output")
		if err := validateOutput(format); err != nil {
			return err
		}
		_, depsDir, err := resolveDirs(viper.GetString("project_dir"), viper.GetString("deps_dir"))
		if err != nil {
			return err
		}
		return runDiscover(cmd.Context(), cmd.OutOrStdout(), depsDir, format)
	},
}

func init() {
	discoverCmd.Flags().StringP("output", "o", outputTable, "Output format: table, json or yaml")
}

func runDiscover(ctx context.Context, w io.Writer, depsDir, format string) error {
	found := discovery.Sorted(discovery.New().Discover(ctx, depsDir))

	skills := make([]discoveredSkill, len(found))
	for i, f := range found {
		skills[i] = discoveredSkill{
			Name:        f.Skill.Name,
			Description: f.Skill.Description,
			Package:     f.Package,
			Path:        f.Skill.Path,
		}
	}

	if format != outputTable {
		return writeStructured(w, format, skills)
	}

	if len(skills) == 0 {
		presenter.Info("No skills found in " + depsDir)
		return nil
	}

	rows := make([][]string, len(skills))
	for i, s := range skills {
		rows[i] = []string{s.Name, s.Package, truncate(s.Description, 60)}
	}
	return writeTable(w, []string{"NAME", "PACKAGE", "DESCRIPTION"}, rows)
}
