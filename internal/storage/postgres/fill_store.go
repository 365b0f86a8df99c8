package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-cluster-sniper/internal/domain"
	"solana-cluster-sniper/internal/storage"
)

// FillStore implements storage.FillStore using PostgreSQL.
type FillStore struct {
	pool *Pool
}

// NewFillStore creates a new FillStore.
func NewFillStore(pool *Pool) *FillStore {
	return &FillStore{pool: pool}
}

// Compile-time interface check.
var _ storage.FillStore = (*FillStore)(nil)

const fillColumns = `signature, intent_id, token, side, in_amount::text, out_amount::text, price::text,
	path, endpoint, fee_lamports, tip_lamports, filled_at`

// Insert adds a fill. Returns ErrDuplicateKey if the signature exists.
func (s *FillStore) Insert(ctx context.Context, f *domain.Fill) error {
	if f == nil || f.Signature == "" || f.Token == "" {
		return storage.ErrInvalidInput
	}
	query := `
		INSERT INTO fills (
			signature, intent_id, token, side, in_amount, out_amount, price,
			path, endpoint, fee_lamports, tip_lamports, filled_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.pool.Exec(ctx, query,
		f.Signature,
		f.IntentID,
		f.Token,
		string(f.Side),
		u64(f.InAmount),
		u64(f.OutAmount),
		f.Price.String(),
		string(f.Path),
		f.Endpoint,
		int64(f.FeeLamports),
		int64(f.TipLamports),
		f.Timestamp,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert fill: %w", err)
	}
	return nil
}

// GetByIntentID returns the fill for an intent. Returns ErrNotFound if none.
func (s *FillStore) GetByIntentID(ctx context.Context, intentID string) (*domain.Fill, error) {
	query := `SELECT ` + fillColumns + ` FROM fills WHERE intent_id = $1 ORDER BY filled_at ASC LIMIT 1`
	f, err := scanFill(s.pool.QueryRow(ctx, query, intentID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get fill by intent: %w", err)
	}
	return f, nil
}

// GetByToken returns the token's fills ordered by time.
func (s *FillStore) GetByToken(ctx context.Context, token string) ([]*domain.Fill, error) {
	query := `SELECT ` + fillColumns + ` FROM fills WHERE token = $1 ORDER BY filled_at ASC, signature ASC`
	rows, err := s.pool.Query(ctx, query, token)
	if err != nil {
		return nil, fmt.Errorf("get fills by token: %w", err)
	}
	defer rows.Close()

	var fills []*domain.Fill
	for rows.Next() {
		f, err := scanFill(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fill row: %w", err)
		}
		fills = append(fills, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fill rows: %w", err)
	}
	return fills, nil
}

func scanFill(row pgx.Row) (*domain.Fill, error) {
	var f domain.Fill
	var side, inAmount, outAmount, price, path string
	var fee, tip int64
	err := row.Scan(
		&f.Signature,
		&f.IntentID,
		&f.Token,
		&side,
		&inAmount,
		&outAmount,
		&price,
		&path,
		&f.Endpoint,
		&fee,
		&tip,
		&f.Timestamp,
	)
	if err != nil {
		return nil, err
	}
	var n numerics
	f.Side = domain.Side(side)
	f.InAmount = n.u64(inAmount)
	f.OutAmount = n.u64(outAmount)
	f.Price = n.dec(price)
	f.Path = domain.Path(path)
	f.FeeLamports = uint64(fee)
	f.TipLamports = uint64(tip)
	return &f, n.err
}
