package reporting

import (
	"context"
	"fmt"
	"time"

	"solana-cluster-sniper/internal/performance"
	"solana-cluster-sniper/internal/storage"
)

// Generator produces reports from the trade analytics store.
type Generator struct {
	trades storage.TradeAnalyticsStore
	now    func() time.Time
}

// NewGenerator creates a report generator.
func NewGenerator(trades storage.TradeAnalyticsStore) *Generator {
	return &Generator{
		trades: trades,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets the clock, for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate reports on the trades from since until now.
func (g *Generator) Generate(ctx context.Context, since time.Time) (*Report, error) {
	now := g.now()
	if !since.Before(now) {
		return nil, fmt.Errorf("report start %s is not before %s", since.Format(time.RFC3339), now.Format(time.RFC3339))
	}
	records, err := g.trades.GetByTimeRange(ctx, since, now)
	if err != nil {
		return nil, fmt.Errorf("load trades: %w", err)
	}
	paths, err := g.trades.PathStats(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("load path stats: %w", err)
	}
	return &Report{
		GeneratedAt: now,
		Summary:     performance.Compute(records, paths, since, now),
	}, nil
}
