// Package cli holds the cobra command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"solana-cluster-sniper/internal/app"
	"solana-cluster-sniper/internal/config"
	"solana-cluster-sniper/internal/logging"
)

var (
	cfgFile   string
	logLevel  string
	dryRun    bool
	appHandle *app.App
)

var rootCmd = &cobra.Command{
	Use:           "sniper",
	Short:         "Detect coordinated wallet clusters on Solana and trade them",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if appHandle != nil {
			return nil
		}

		var overrides []config.Override
		if logLevel != "" {
			overrides = append(overrides, config.Set("logging.level", logLevel))
		}
		if cmd.Flags().Changed("dry-run") {
			overrides = append(overrides, config.Set("execution.dry_run", dryRun))
		}
		cfg, err := config.Load(cfgFile, overrides...)
		if err != nil {
			return err
		}

		logger := logging.NewLogger(cfg.Logging).With().Str("app", cfg.App.Name).Str("env", cfg.App.Environment).Logger()
		appHandle = app.NewApp(cfg, logger)
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level defined in config")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "Build and sign trades without sending them")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(versionCmd)
}

func getApp() *app.App {
	if appHandle == nil {
		panic("application not initialized; PersistentPreRunE not executed")
	}
	return appHandle
}
