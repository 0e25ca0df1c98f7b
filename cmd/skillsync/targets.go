package main

import (
	"io"

	"github.com/jingkaihe/skillsync/pkg/targets"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "List the agents skills can be installed for",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		projectDir, _, err := resolveDirs(viper.GetString("project_dir"), viper.GetString("deps_dir"))
		if err != nil {
			return err
		}
		return listTargets(cmd.OutOrStdout(), projectDir)
	},
}

func listTargets(w io.Writer, projectDir string) error {
	detected := map[string]bool{}
	for _, t := range targets.Detect(projectDir) {
		detected[t.Name] = true
	}

	var rows [][]string
	for _, t := range targets.All() {
		mark := ""
		if detected[t.Name] {
			mark = "yes"
		}
		rows = append(rows, []string{t.Name, t.DisplayName, t.SkillsDir, mark})
	}
	return writeTable(w, []string{"NAME", "AGENT", "SKILLS DIR", "DETECTED"}, rows)
}
