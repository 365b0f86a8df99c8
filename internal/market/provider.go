// Package market produces MarketSnapshots for the safety gate and the
// position manager from DexScreener pair data and on-chain pool state.
package market

import (
	"context"

	"github.com/shopspring/decimal"

	"solana-cluster-sniper/internal/domain"
)

// Provider returns a fresh snapshot or an error wrapping domain.ErrDataUnavailable.
// Implementations never return stale data in place of an error.
type Provider interface {
	Snapshot(ctx context.Context, token string) (*domain.MarketSnapshot, error)
}

// SOLPricer supplies the SOL/USD rate used to value lamport amounts.
type SOLPricer interface {
	SOLPriceUSD(ctx context.Context) (decimal.Decimal, error)
}
