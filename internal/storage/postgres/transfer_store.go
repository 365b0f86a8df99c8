package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"solana-cluster-sniper/internal/domain"
	"solana-cluster-sniper/internal/storage"
)

// TransferEventStore implements storage.TransferEventStore using PostgreSQL.
type TransferEventStore struct {
	pool *Pool
}

// NewTransferEventStore creates a new TransferEventStore.
func NewTransferEventStore(pool *Pool) *TransferEventStore {
	return &TransferEventStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TransferEventStore = (*TransferEventStore)(nil)

// Insert adds an event. Returns ErrDuplicateKey if (signature, wallet, token) exists.
func (s *TransferEventStore) Insert(ctx context.Context, ev *domain.TransferEvent) error {
	if ev == nil || ev.Signature == "" || ev.Token == "" || !ev.Direction.IsValid() {
		return storage.ErrInvalidInput
	}
	query := `
		INSERT INTO transfer_events (
			signature, wallet, token, direction, token_amount, quote_lamports,
			quote_usd, slot, event_index, observed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.pool.Exec(ctx, query,
		ev.Signature,
		ev.Wallet,
		ev.Token,
		string(ev.Direction),
		u64(ev.TokenAmount),
		u64(ev.QuoteLamports),
		ev.QuoteUSD.String(),
		ev.Slot,
		ev.Index,
		ev.Timestamp,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert transfer event: %w", err)
	}
	return nil
}

// Tokens lists tokens with at least one buy at or after since.
func (s *TransferEventStore) Tokens(ctx context.Context, since time.Time) ([]string, error) {
	query := `
		SELECT DISTINCT token
		FROM transfer_events
		WHERE direction = 'buy' AND observed_at >= $1
		ORDER BY token
	`
	rows, err := s.pool.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("query tokens: %w", err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tokens: %w", err)
	}
	return tokens, nil
}

// Window returns the token's buys in [from, to].
func (s *TransferEventStore) Window(ctx context.Context, token string, from, to time.Time) ([]domain.TransferEvent, error) {
	query := `
		SELECT signature, wallet, token, direction, token_amount::text, quote_lamports::text,
			quote_usd::text, slot, event_index, observed_at
		FROM transfer_events
		WHERE token = $1 AND direction = 'buy' AND observed_at >= $2 AND observed_at <= $3
		ORDER BY observed_at ASC, signature ASC
	`
	rows, err := s.pool.Query(ctx, query, token, from, to)
	if err != nil {
		return nil, fmt.Errorf("query window: %w", err)
	}
	defer rows.Close()
	return scanTransferEvents(rows)
}

// Prune deletes events older than before.
func (s *TransferEventStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM transfer_events WHERE observed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("prune transfer events: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanTransferEvents(rows pgx.Rows) ([]domain.TransferEvent, error) {
	var events []domain.TransferEvent
	for rows.Next() {
		var ev domain.TransferEvent
		var direction, tokenAmount, quoteLamports, quoteUSD string
		err := rows.Scan(
			&ev.Signature,
			&ev.Wallet,
			&ev.Token,
			&direction,
			&tokenAmount,
			&quoteLamports,
			&quoteUSD,
			&ev.Slot,
			&ev.Index,
			&ev.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan transfer event row: %w", err)
		}
		var n numerics
		ev.Direction = domain.Direction(direction)
		ev.TokenAmount = n.u64(tokenAmount)
		ev.QuoteLamports = n.u64(quoteLamports)
		ev.QuoteUSD = n.dec(quoteUSD)
		if n.err != nil {
			return nil, n.err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transfer event rows: %w", err)
	}
	return events, nil
}
