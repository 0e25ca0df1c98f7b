package main

import (
	"context"
	"os"
	"strings"

	"github.com/jingkaihe/skillsync/pkg/logger"
	"github.com/jingkaihe/skillsync/pkg/presenter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	// Environment variables
	viper.SetEnvPrefix("SKILLSYNC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "fmt")
	viper.SetDefault("project_dir", ".")
	viper.SetDefault("deps_dir", "node_modules")
	viper.SetDefault("mode", "symlink")
	viper.SetDefault("concurrency", 4)
	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.sampler", "ratio")
	viper.SetDefault("tracing.ratio", 1.0)
	viper.SetDefault("telemetry.disabled", false)

	// Config file support
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME/.skillsync")
	viper.AddConfigPath(".")

	// Load config file if it exists (ignore errors if it doesn't)
	_ = viper.ReadInConfig()
}

var rootCmd = &cobra.Command{
	Use:   "skillsync",
	Short: "Sync agent skills shipped in project dependencies",
	Long: `skillsync discovers agent skills (folders with a SKILL.md manifest) shipped inside
installed dependencies, installs changed ones into the skill directories of your coding
agents and records their content digests in skills-lock.json.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if quiet, _ := cmd.Flags().GetBool("quiet"); quiet {
			presenter.SetQuiet(true)
		}
		if err := logger.Configure(viper.GetString("log_level"), viper.GetString("log_format")); err != nil {
			return err
		}

		shutdown, err := initTracing(cmd.Context())
		if err != nil {
			logger.G(cmd.Context()).WithError(err).Warn("failed to initialise tracing")
			return nil
		}
		shutdownTracing = shutdown
		return nil
	},
}

func main() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (panic, fatal, error, warn, info, debug, trace)")
	rootCmd.PersistentFlags().String("log-format", "fmt", "Log format (fmt, text or json)")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "Only print errors")
	rootCmd.PersistentFlags().String("project-dir", ".", "Project directory holding skills-lock.json")
	rootCmd.PersistentFlags().String("deps-dir", "node_modules", "Dependency directory to scan, relative to the project directory")

	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("project_dir", rootCmd.PersistentFlags().Lookup("project-dir"))
	viper.BindPFlag("deps_dir", rootCmd.PersistentFlags().Lookup("deps-dir"))

	rootCmd.AddCommand(withTracing(syncCmd))
	rootCmd.AddCommand(withTracing(discoverCmd))
	rootCmd.AddCommand(lockCmd)
	rootCmd.AddCommand(targetsCmd)
	rootCmd.AddCommand(versionCmd)

	ctx := context.Background()
	err := rootCmd.ExecuteContext(ctx)
	if shutdownTracing != nil {
		if serr := shutdownTracing(ctx); serr != nil {
			logger.G(ctx).WithError(serr).Debug("failed to flush traces")
		}
	}
	if err != nil {
		presenter.Error(err, "skillsync failed")
		os.Exit(1)
	}
}
