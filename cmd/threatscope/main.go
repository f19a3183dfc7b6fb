// threatscope is a terminal explorer for MITRE ATT&CK threat
// intelligence: who the threat actors are, the tools they run, and the
// techniques those map to. It keeps a local snapshot cache of the
// ATT&CK STIX bundles so everything after the first fetch works
// offline.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"threatscope/internal/config"
	"threatscope/internal/logging"
)

var (
	version = "0.4.0"

	verbose     bool
	configPath  string
	refreshFlag bool
	offlineFlag bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "threatscope",
	Short: "Explore MITRE ATT&CK threat actors, tools, and techniques",
	Long: `Threat Scope is a terminal explorer for MITRE ATT&CK content.

It keeps a local snapshot cache of the ATT&CK STIX bundles, classifies
threat actors by region, activity type, and target sector, and
cross-links actors, tools, and techniques. Run it with no arguments to
open the interactive explorer; the subcommands print the same data for
scripts and pipelines.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapConfig := zap.NewProductionConfig()
		if verbose {
			zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapConfig.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		// Category file logging is configured separately so the
		// explorer can trace without touching the terminal.
		if root, rootErr := config.FindWorkspaceRoot(); rootErr == nil {
			if logErr := logging.Initialize(root); logErr != nil {
				logger.Warn("file logging unavailable", zap.Error(logErr))
			}
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runExplore,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default .threatscope/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&refreshFlag, "refresh", false, "Fetch fresh ATT&CK data even when the cache is current")
	rootCmd.PersistentFlags().BoolVar(&offlineFlag, "offline", false, "Never fetch; fail if the cache is missing or stale")
	rootCmd.MarkFlagsMutuallyExclusive("refresh", "offline")

	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(actorsCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(techniquesCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the threatscope version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("threatscope %s\n", version)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
