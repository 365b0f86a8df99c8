package app

import (
	"context"
	"fmt"

	"solana-cluster-sniper/internal/cluster"
	"solana-cluster-sniper/internal/journal"
	chstore "solana-cluster-sniper/internal/storage/clickhouse"
	"solana-cluster-sniper/internal/storage/memory"
	pgstore "solana-cluster-sniper/internal/storage/postgres"
)

// stores bundles the journal's stores with the optional scan source.
type stores struct {
	journal.Stores
	// events backs cluster scans with the transfer table. Nil keeps the
	// engine on its in-memory window.
	events  cluster.EventSource
	closers []func()
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openStores connects to Postgres and ClickHouse when DSNs are set and
// falls back to in-memory stores otherwise.
func (a *App) openStores(ctx context.Context) (*stores, error) {
	cfg := a.Config.Storage
	st := &stores{}

	if cfg.PostgresDSN == "" {
		a.Logger.Warn().Msg("storage.postgres_dsn not configured; state is kept in memory")
		st.Transfers = memory.NewTransferEventStore()
		st.Clusters = memory.NewClusterStore()
		st.Fills = memory.NewFillStore()
		st.Positions = memory.NewPositionStore()
		st.Wallets = memory.NewWalletStore()
	} else {
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		st.closers = append(st.closers, pool.Close)
		transfers := pgstore.NewTransferEventStore(pool)
		st.Transfers = transfers
		st.Clusters = pgstore.NewClusterStore(pool)
		st.Fills = pgstore.NewFillStore(pool)
		st.Positions = pgstore.NewPositionStore(pool)
		st.Wallets = pgstore.NewWalletStore(pool)
		if a.Config.Cluster.StoreBackedScans {
			st.events = transfers
		}
	}

	if cfg.ClickhouseDSN != "" {
		conn, err := chstore.NewConn(ctx, cfg.ClickhouseDSN)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("connect clickhouse: %w", err)
		}
		st.closers = append(st.closers, func() { _ = conn.Close() })
		st.Trades = chstore.NewTradeStore(conn)
	}
	return st, nil
}
