package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"solana-cluster-sniper/internal/reporting"
	"solana-cluster-sniper/internal/storage"
	chstore "solana-cluster-sniper/internal/storage/clickhouse"
)

// ReportOptions selects the report window and destination.
type ReportOptions struct {
	Since time.Duration
	// OutDir receives report.md, summary.csv and paths.csv. Empty prints
	// the Markdown to Stdout.
	OutDir string
	Stdout io.Writer
}

// Report summarizes realized performance from the ClickHouse trade store.
func (a *App) Report(ctx context.Context, opts ReportOptions) error {
	dsn := a.Config.Storage.ClickhouseDSN
	if dsn == "" {
		return errors.New("report requires storage.clickhouse_dsn")
	}
	conn, err := chstore.NewConn(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect clickhouse: %w", err)
	}
	defer conn.Close()
	return a.writeReport(ctx, chstore.NewTradeStore(conn), opts)
}

func (a *App) writeReport(ctx context.Context, trades storage.TradeAnalyticsStore, opts ReportOptions) error {
	if opts.Since <= 0 {
		return fmt.Errorf("report window must be positive, got %s", opts.Since)
	}
	report, err := reporting.NewGenerator(trades).Generate(ctx, time.Now().UTC().Add(-opts.Since))
	if err != nil {
		return err
	}

	if opts.OutDir == "" {
		_, err := io.WriteString(opts.Stdout, reporting.RenderMarkdown(report))
		return err
	}
	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	files := map[string]string{
		"report.md":   reporting.RenderMarkdown(report),
		"summary.csv": reporting.RenderCSV(report),
		"paths.csv":   reporting.RenderPathsCSV(report),
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(opts.OutDir, name), []byte(body), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	a.Logger.Info().
		Str("dir", opts.OutDir).
		Int("exits", report.Summary.Exits).
		Str("realized_pnl_sol", report.Summary.RealizedPnL.StringFixed(6)).
		Msg("report written")
	return nil
}
