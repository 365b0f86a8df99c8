package cli

import (
	"time"

	"github.com/spf13/cobra"

	"solana-cluster-sniper/internal/app"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sniper: ingest, detect, trade and manage positions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Run(cmd.Context())
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Ingest and report clusters without trading",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Scan(cmd.Context())
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply Postgres and ClickHouse schemas",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Migrate(cmd.Context())
	},
}

var (
	reportSince time.Duration
	reportOut   string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize realized trading performance from the analytics store",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Report(cmd.Context(), app.ReportOptions{
			Since:  reportSince,
			OutDir: reportOut,
			Stdout: cmd.OutOrStdout(),
		})
	},
}

func init() {
	reportCmd.Flags().DurationVar(&reportSince, "since", 24*time.Hour, "Report on trades within this window")
	reportCmd.Flags().StringVar(&reportOut, "out", "", "Directory for report.md and CSV files; prints Markdown when empty")
}
