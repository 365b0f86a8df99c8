package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderCSV renders the summary as a header and one row.
func RenderCSV(r *Report) string {
	var sb strings.Builder
	s := r.Summary

	sb.WriteString("start,end,entries,exits,wins,losses,win_rate,tokens,token_win_rate,")
	sb.WriteString("realized_pnl_sol,pnl_mean,pnl_median,pnl_p10,pnl_p90,max_drawdown,max_consecutive_losses,")
	sb.WriteString("latency_p50_ms,latency_p90_ms,latency_p99_ms,fees_lamports,tips_lamports\n")

	sb.WriteString(fmt.Sprintf("%s,%s,%d,%d,%d,%d,%.6f,%d,%.6f,%s,%.6f,%.6f,%.6f,%.6f,%.6f,%d,%.1f,%.1f,%.1f,%d,%d\n",
		s.Start.Format(time.RFC3339),
		s.End.Format(time.RFC3339),
		s.Entries,
		s.Exits,
		s.Wins,
		s.Losses,
		s.WinRate,
		s.Tokens,
		s.TokenWinRate,
		s.RealizedPnL.StringFixed(9),
		s.PnLMean,
		s.PnLMedian,
		s.PnLP10,
		s.PnLP90,
		s.MaxDrawdown,
		s.MaxConsecutiveLosses,
		s.LatencyP50,
		s.LatencyP90,
		s.LatencyP99,
		s.FeesLamports,
		s.TipsLamports,
	))

	return sb.String()
}

// RenderPathsCSV renders per-path fill aggregates.
func RenderPathsCSV(r *Report) string {
	var sb strings.Builder
	sb.WriteString("path,fills,avg_latency_ms,total_fees,total_tips\n")
	for _, p := range r.Summary.Paths {
		sb.WriteString(fmt.Sprintf("%s,%d,%.1f,%d,%d\n", p.Path, p.Fills, p.AvgLatencyMs, p.TotalFees, p.TotalTips))
	}
	return sb.String()
}
