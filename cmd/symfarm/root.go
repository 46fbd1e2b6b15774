package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/arthur-debert/symfarm/internal/version"
	"github.com/arthur-debert/symfarm/pkg/config"
	"github.com/arthur-debert/symfarm/pkg/core"
	"github.com/arthur-debert/symfarm/pkg/logging"
)

var (
	verbosity  int
	configPath string
	dryRun     bool

	rootCmd = &cobra.Command{
		Use:   "symfarm [flags] MUSIC_DIR... LINK_DIR",
		Short: "Maintain a symlink farm organized by music tags",
		Long: `symfarm scans your music directories, reads the files' tags and maintains
a directory of symlinks laid out by artist, album and track. The music files
themselves are never touched; rerunning is cheap and only applies what
changed.`,
		Args: cobra.MinimumNArgs(2),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.SetupLogger(verbosity)
			log.Debug().Str("command", cmd.Name()).Msg("Command started")
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runSync,
	}
)

// Execute runs the root command. Called once from main.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v",
		"Increase verbosity (-v INFO, -vv DEBUG, -vvv TRACE)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Config file (default is $XDG_CONFIG_HOME/symfarm/config.yaml)")

	rootCmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false,
		"Report what would change without touching the link directory")
	rootCmd.Flags().Bool("clean", false,
		"Remove broken links and emptied directories (overrides config)")
	rootCmd.Flags().Bool("rescan-existing", false,
		"Re-read files that already have a valid link (overrides config)")
	rootCmd.Flags().Bool("relative-links", false,
		"Write link destinations relative to the link's directory (overrides config)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	report, err := core.Run(cmd.Context(), cfg, core.Options{
		MusicDirs: args[:len(args)-1],
		LinkDir:   args[len(args)-1],
		DryRun:    dryRun,
	})
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), renderReport(report, dryRun))
	return nil
}

// loadConfig reads the layered configuration and applies the option flags
// the user actually set, so an unset flag never shadows the config file.
func loadConfig(cmd *cobra.Command) (*config.Compiled, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("clean") {
		cfg.Options.Clean, _ = flags.GetBool("clean")
	}
	if flags.Changed("rescan-existing") {
		cfg.Options.RescanExisting, _ = flags.GetBool("rescan-existing")
	}
	if flags.Changed("relative-links") {
		cfg.Options.RelativeLinks, _ = flags.GetBool("relative-links")
	}

	return cfg.Compile()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "symfarm version %s\n", version.Version)
		fmt.Fprintf(cmd.OutOrStdout(), "  commit: %s\n", version.Commit)
		fmt.Fprintf(cmd.OutOrStdout(), "  built:  %s\n", version.Date)
	},
}
