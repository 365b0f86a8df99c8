package journal

import (
	"context"
	"fmt"

	"solana-cluster-sniper/internal/domain"
)

// PositionRestorer takes positions that were open at shutdown.
type PositionRestorer interface {
	Restore(positions []*domain.Position)
}

// ExposureRestorer re-installs committed capital per token.
type ExposureRestorer interface {
	Restore(token string, lamports uint64)
}

// WalletLoader takes persisted wallet statistics.
type WalletLoader interface {
	Load(wallets []*domain.Wallet)
}

// Restore reloads open positions into the manager and the exposure ledger,
// and wallet statistics into the book. Any argument may be nil.
func (j *Journal) Restore(ctx context.Context, positions PositionRestorer, ledger ExposureRestorer, wallets WalletLoader) error {
	open, err := j.stores.Positions.GetOpen(ctx)
	if err != nil {
		return fmt.Errorf("load open positions: %w", err)
	}
	if positions != nil {
		positions.Restore(open)
	}
	if ledger != nil {
		for _, p := range open {
			ledger.Restore(p.Token, p.EntryCostLamports)
		}
	}

	var loaded []*domain.Wallet
	if wallets != nil {
		loaded, err = j.stores.Wallets.GetAll(ctx)
		if err != nil {
			return fmt.Errorf("load wallets: %w", err)
		}
		wallets.Load(loaded)
	}

	j.log.Info().Int("positions", len(open)).Int("wallets", len(loaded)).Msg("state restored")
	return nil
}
