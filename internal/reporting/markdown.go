package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders the report as Markdown.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder
	s := r.Summary

	sb.WriteString("# Trading Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Range: %s to %s\n\n", s.Start.Format(time.RFC3339), s.End.Format(time.RFC3339)))

	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Entries | %d |\n", s.Entries))
	sb.WriteString(fmt.Sprintf("| Exits | %d |\n", s.Exits))
	sb.WriteString(fmt.Sprintf("| Wins / Losses | %d / %d |\n", s.Wins, s.Losses))
	sb.WriteString(fmt.Sprintf("| Win Rate | %.4f |\n", s.WinRate))
	sb.WriteString(fmt.Sprintf("| Tokens | %d |\n", s.Tokens))
	sb.WriteString(fmt.Sprintf("| Token Win Rate | %.4f |\n", s.TokenWinRate))
	sb.WriteString(fmt.Sprintf("| Realized PnL (SOL) | %s |\n", s.RealizedPnL.StringFixed(6)))
	sb.WriteString(fmt.Sprintf("| Gross Profit (SOL) | %s |\n", s.GrossProfit.StringFixed(6)))
	sb.WriteString(fmt.Sprintf("| Gross Loss (SOL) | %s |\n", s.GrossLoss.StringFixed(6)))
	sb.WriteString(fmt.Sprintf("| Max Drawdown (SOL) | %.6f |\n", s.MaxDrawdown))
	sb.WriteString(fmt.Sprintf("| Max Consecutive Losses | %d |\n", s.MaxConsecutiveLosses))
	sb.WriteString(fmt.Sprintf("| Fees (lamports) | %d |\n", s.FeesLamports))
	sb.WriteString(fmt.Sprintf("| Tips (lamports) | %d |\n", s.TipsLamports))
	sb.WriteString("\n")

	sb.WriteString("## PnL Distribution (SOL)\n\n")
	if s.Exits > 0 {
		sb.WriteString("| Mean | Median | P10 | P90 | Min | Max | Stddev |\n")
		sb.WriteString("|------|--------|-----|-----|-----|-----|--------|\n")
		sb.WriteString(fmt.Sprintf("| %.6f | %.6f | %.6f | %.6f | %.6f | %.6f | %.6f |\n",
			s.PnLMean, s.PnLMedian, s.PnLP10, s.PnLP90, s.PnLMin, s.PnLMax, s.PnLStddev))
	} else {
		sb.WriteString("No exits in range.\n")
	}
	sb.WriteString("\n")

	sb.WriteString("## Latency (ms)\n\n")
	sb.WriteString("| P50 | P90 | P99 |\n")
	sb.WriteString("|-----|-----|-----|\n")
	sb.WriteString(fmt.Sprintf("| %.1f | %.1f | %.1f |\n", s.LatencyP50, s.LatencyP90, s.LatencyP99))
	sb.WriteString("\n")

	sb.WriteString("## Exit Reasons\n\n")
	if len(s.ExitReasons) > 0 {
		sb.WriteString("| Reason | Exits | PnL (SOL) |\n")
		sb.WriteString("|--------|-------|-----------|\n")
		for _, rc := range s.ExitReasons {
			sb.WriteString(fmt.Sprintf("| %s | %d | %s |\n", rc.Reason, rc.Count, rc.PnL.StringFixed(6)))
		}
	} else {
		sb.WriteString("No exits in range.\n")
	}
	sb.WriteString("\n")

	sb.WriteString("## Submission Paths\n\n")
	if len(s.Paths) > 0 {
		sb.WriteString("| Path | Fills | Avg Latency (ms) | Fees | Tips |\n")
		sb.WriteString("|------|-------|------------------|------|------|\n")
		for _, p := range s.Paths {
			sb.WriteString(fmt.Sprintf("| %s | %d | %.1f | %d | %d |\n",
				p.Path, p.Fills, p.AvgLatencyMs, p.TotalFees, p.TotalTips))
		}
	} else {
		sb.WriteString("No fills in range.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}
