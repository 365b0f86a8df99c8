package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"solana-cluster-sniper/internal/domain"
	"solana-cluster-sniper/internal/storage"
)

// TradeStore implements storage.TradeAnalyticsStore using ClickHouse.
type TradeStore struct {
	conn *Conn
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(conn *Conn) *TradeStore {
	return &TradeStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TradeAnalyticsStore = (*TradeStore)(nil)

const tradeColumns = `signature, kind, token, cluster_id, path, endpoint, in_amount, out_amount,
	price, fee_lamports, tip_lamports, attempts, latency_ms, exit_reason, pnl_lamports, timestamp_ms`

// InsertBulk adds records. Fails the entire batch on a duplicate signature,
// within the batch or against stored rows, since MergeTree does not enforce keys.
func (s *TradeStore) InsertBulk(ctx context.Context, records []*storage.TradeRecord) error {
	if len(records) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if r == nil || r.Signature == "" {
			return storage.ErrInvalidInput
		}
		if _, dup := seen[r.Signature]; dup {
			return storage.ErrDuplicateKey
		}
		seen[r.Signature] = struct{}{}
	}

	for _, r := range records {
		exists, err := s.exists(ctx, r.Signature)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO trades (`+tradeColumns+`)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	for _, r := range records {
		price, _ := r.Price.Float64()
		pnl, _ := r.PnLLamports.Float64()
		err = batch.Append(
			r.Signature, string(r.Kind), r.Token, r.ClusterID, string(r.Path), r.Endpoint,
			r.InAmount, r.OutAmount, price, r.FeeLamports, r.TipLamports,
			uint32(r.Attempts), r.LatencyMs, string(r.ExitReason), pnl,
			uint64(r.Timestamp.UnixMilli()),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByTimeRange returns records in [start, end] ordered by time.
func (s *TradeStore) GetByTimeRange(ctx context.Context, start, end time.Time) ([]*storage.TradeRecord, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		WHERE timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC, signature ASC
	`
	rows, err := s.conn.Query(ctx, query, uint64(start.UnixMilli()), uint64(end.UnixMilli()))
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

// PathStats aggregates records at or after since, ordered by path.
func (s *TradeStore) PathStats(ctx context.Context, since time.Time) ([]storage.PathStat, error) {
	query := `
		SELECT path, count(), avg(latency_ms), sum(fee_lamports), sum(tip_lamports)
		FROM trades
		WHERE timestamp_ms >= ?
		GROUP BY path
		ORDER BY path ASC
	`
	rows, err := s.conn.Query(ctx, query, uint64(since.UnixMilli()))
	if err != nil {
		return nil, fmt.Errorf("query path stats: %w", err)
	}
	defer rows.Close()

	var stats []storage.PathStat
	for rows.Next() {
		var st storage.PathStat
		var path string
		if err := rows.Scan(&path, &st.Fills, &st.AvgLatencyMs, &st.TotalFees, &st.TotalTips); err != nil {
			return nil, fmt.Errorf("scan path stat row: %w", err)
		}
		st.Path = domain.Path(path)
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate path stat rows: %w", err)
	}
	return stats, nil
}

func (s *TradeStore) exists(ctx context.Context, signature string) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `SELECT count(*) FROM trades WHERE signature = ?`, signature).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func scanTrades(rows chRows) ([]*storage.TradeRecord, error) {
	var records []*storage.TradeRecord
	for rows.Next() {
		var r storage.TradeRecord
		var kind, path, exitReason string
		var price, pnl float64
		var attempts uint32
		var timestampMs uint64
		err := rows.Scan(
			&r.Signature, &kind, &r.Token, &r.ClusterID, &path, &r.Endpoint,
			&r.InAmount, &r.OutAmount, &price, &r.FeeLamports, &r.TipLamports,
			&attempts, &r.LatencyMs, &exitReason, &pnl, &timestampMs,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}
		r.Kind = storage.TradeKind(kind)
		r.Path = domain.Path(path)
		r.ExitReason = domain.ExitReason(exitReason)
		r.Price = decimal.NewFromFloat(price)
		r.PnLLamports = decimal.NewFromFloat(pnl)
		r.Attempts = int(attempts)
		r.Timestamp = time.UnixMilli(int64(timestampMs)).UTC()
		records = append(records, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}
	return records, nil
}
