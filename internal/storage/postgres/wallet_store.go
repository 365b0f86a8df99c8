package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-cluster-sniper/internal/domain"
	"solana-cluster-sniper/internal/storage"
)

// WalletStore implements storage.WalletStore using PostgreSQL.
type WalletStore struct {
	pool *Pool
}

// NewWalletStore creates a new WalletStore.
func NewWalletStore(pool *Pool) *WalletStore {
	return &WalletStore{pool: pool}
}

// Compile-time interface check.
var _ storage.WalletStore = (*WalletStore)(nil)

// Upsert inserts or replaces each wallet's statistics in one batch.
func (s *WalletStore) Upsert(ctx context.Context, wallets []*domain.Wallet) error {
	if len(wallets) == 0 {
		return nil
	}
	for _, w := range wallets {
		if w == nil || w.Address == "" {
			return storage.ErrInvalidInput
		}
	}
	query := `
		INSERT INTO wallets (address, trade_count, profitable_count, first_seen, last_active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (address) DO UPDATE SET
			trade_count = EXCLUDED.trade_count,
			profitable_count = EXCLUDED.profitable_count,
			first_seen = LEAST(wallets.first_seen, EXCLUDED.first_seen),
			last_active = GREATEST(wallets.last_active, EXCLUDED.last_active),
			updated_at = now()
	`
	batch := &pgx.Batch{}
	for _, w := range wallets {
		batch.Queue(query, w.Address, w.TradeCount, w.ProfitableCount, w.FirstSeen, w.LastActive)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert wallets: %w", err)
	}
	return nil
}

// GetAll returns every wallet ordered by address.
func (s *WalletStore) GetAll(ctx context.Context) ([]*domain.Wallet, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT address, trade_count, profitable_count, first_seen, last_active
		FROM wallets
		ORDER BY address ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("get wallets: %w", err)
	}
	defer rows.Close()

	var wallets []*domain.Wallet
	for rows.Next() {
		var w domain.Wallet
		if err := rows.Scan(&w.Address, &w.TradeCount, &w.ProfitableCount, &w.FirstSeen, &w.LastActive); err != nil {
			return nil, fmt.Errorf("scan wallet row: %w", err)
		}
		wallets = append(wallets, &w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallet rows: %w", err)
	}
	return wallets, nil
}
