// Package reporting renders trading performance reports.
package reporting

import (
	"time"

	"solana-cluster-sniper/internal/performance"
)

// Report is one rendered performance report.
type Report struct {
	GeneratedAt time.Time
	Summary     *performance.Summary
}
