package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-cluster-sniper/internal/domain"
	"solana-cluster-sniper/internal/idhash"
	"solana-cluster-sniper/internal/storage"
)

// PositionStore implements storage.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *Pool
}

// NewPositionStore creates a new PositionStore.
func NewPositionStore(pool *Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PositionStore = (*PositionStore)(nil)

const positionColumns = `token, pool, state, entry_price::text, entry_amount::text, entry_cost_lamports::text,
	high_water_mark::text, last_price::text, opened_at, entry_signature, cluster_id,
	exit_reason, exit_detail, exit_attempts, exit_started_at, exit_price::text, exit_signature,
	realized_pnl::text, closed_at`

// Upsert inserts or replaces a position.
func (s *PositionStore) Upsert(ctx context.Context, p *domain.Position) error {
	if p == nil || p.Token == "" || p.EntrySignature == "" {
		return storage.ErrInvalidInput
	}
	query := `
		INSERT INTO positions (
			position_id, token, pool, state, entry_price, entry_amount, entry_cost_lamports,
			high_water_mark, last_price, opened_at, entry_signature, cluster_id,
			exit_reason, exit_detail, exit_attempts, exit_started_at, exit_price, exit_signature,
			realized_pnl, closed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (position_id) DO UPDATE SET
			state = EXCLUDED.state,
			high_water_mark = EXCLUDED.high_water_mark,
			last_price = EXCLUDED.last_price,
			exit_reason = EXCLUDED.exit_reason,
			exit_detail = EXCLUDED.exit_detail,
			exit_attempts = EXCLUDED.exit_attempts,
			exit_started_at = EXCLUDED.exit_started_at,
			exit_price = EXCLUDED.exit_price,
			exit_signature = EXCLUDED.exit_signature,
			realized_pnl = EXCLUDED.realized_pnl,
			closed_at = EXCLUDED.closed_at,
			updated_at = now()
	`
	_, err := s.pool.Exec(ctx, query,
		idhash.ComputePositionID(p.Token, p.EntrySignature),
		p.Token,
		p.Pool,
		string(p.State),
		p.EntryPrice.String(),
		u64(p.EntryAmount),
		u64(p.EntryCostLamports),
		p.HighWaterMark.String(),
		p.LastPrice.String(),
		p.OpenedAt,
		p.EntrySignature,
		p.ClusterID,
		string(p.ExitReason),
		p.ExitDetail,
		p.ExitAttempts,
		nullTime(p.ExitStartedAt),
		p.ExitPrice.String(),
		p.ExitSignature,
		p.RealizedPnL.String(),
		nullTime(p.ClosedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert position: %w", err)
	}
	return nil
}

// GetByID returns a position. Returns ErrNotFound if the id does not exist.
func (s *PositionStore) GetByID(ctx context.Context, id string) (*domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE position_id = $1`
	p, err := scanPosition(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get position by id: %w", err)
	}
	return p, nil
}

// GetOpen returns positions in OPEN or EXITING state ordered by open time.
func (s *PositionStore) GetOpen(ctx context.Context) ([]*domain.Position, error) {
	query := `SELECT ` + positionColumns + ` FROM positions WHERE state <> 'CLOSED' ORDER BY opened_at ASC, token ASC`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get open positions: %w", err)
	}
	defer rows.Close()

	var positions []*domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position row: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate position rows: %w", err)
	}
	return positions, nil
}

func scanPosition(row pgx.Row) (*domain.Position, error) {
	var p domain.Position
	var state, entryPrice, entryAmount, entryCost, hwm, lastPrice string
	var exitReason, exitPrice, pnl string
	var exitStartedAt, closedAt *time.Time
	err := row.Scan(
		&p.Token,
		&p.Pool,
		&state,
		&entryPrice,
		&entryAmount,
		&entryCost,
		&hwm,
		&lastPrice,
		&p.OpenedAt,
		&p.EntrySignature,
		&p.ClusterID,
		&exitReason,
		&p.ExitDetail,
		&p.ExitAttempts,
		&exitStartedAt,
		&exitPrice,
		&p.ExitSignature,
		&pnl,
		&closedAt,
	)
	if err != nil {
		return nil, err
	}
	var n numerics
	p.State = domain.PositionState(state)
	p.EntryPrice = n.dec(entryPrice)
	p.EntryAmount = n.u64(entryAmount)
	p.EntryCostLamports = n.u64(entryCost)
	p.HighWaterMark = n.dec(hwm)
	p.LastPrice = n.dec(lastPrice)
	p.ExitReason = domain.ExitReason(exitReason)
	p.ExitStartedAt = fromNullTime(exitStartedAt)
	p.ExitPrice = n.dec(exitPrice)
	p.RealizedPnL = n.dec(pnl)
	p.ClosedAt = fromNullTime(closedAt)
	return &p, n.err
}
