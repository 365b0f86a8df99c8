// Package storage defines persistence for the trading pipeline. Event-like
// records (transfers, fills, trade analytics) are append-only; clusters
// change only their status and positions are upserted as they move through
// their lifecycle.
package storage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"solana-cluster-sniper/internal/domain"
)

// TransferEventStore keeps observed transfers. It doubles as the cluster
// engine's event source, so Tokens and Window only consider buys.
type TransferEventStore interface {
	// Insert adds an event. Returns ErrDuplicateKey if (signature, wallet, token) exists.
	Insert(ctx context.Context, ev *domain.TransferEvent) error

	// Tokens lists tokens with at least one buy at or after since, sorted.
	Tokens(ctx context.Context, since time.Time) ([]string, error)

	// Window returns the token's buys in [from, to], ordered by time.
	Window(ctx context.Context, token string, from, to time.Time) ([]domain.TransferEvent, error)

	// Prune deletes events older than before and returns how many were removed.
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// ClusterStore keeps detected clusters.
type ClusterStore interface {
	// Insert adds a cluster. Returns ErrDuplicateKey if the id exists.
	Insert(ctx context.Context, c *domain.Cluster) error

	// UpdateStatus changes a cluster's status. Returns ErrNotFound if the id does not exist.
	UpdateStatus(ctx context.Context, id string, status domain.ClusterStatus) error

	// GetByID returns a cluster. Returns ErrNotFound if the id does not exist.
	GetByID(ctx context.Context, id string) (*domain.Cluster, error)

	// GetByToken returns the token's clusters ordered by detection time.
	GetByToken(ctx context.Context, token string) ([]*domain.Cluster, error)
}

// FillStore keeps confirmed fills.
type FillStore interface {
	// Insert adds a fill. Returns ErrDuplicateKey if the signature exists.
	Insert(ctx context.Context, f *domain.Fill) error

	// GetByIntentID returns the fill for an intent. Returns ErrNotFound if none.
	GetByIntentID(ctx context.Context, intentID string) (*domain.Fill, error)

	// GetByToken returns the token's fills ordered by time.
	GetByToken(ctx context.Context, token string) ([]*domain.Fill, error)
}

// PositionStore keeps positions keyed by idhash.ComputePositionID.
type PositionStore interface {
	// Upsert inserts or replaces a position.
	Upsert(ctx context.Context, p *domain.Position) error

	// GetByID returns a position. Returns ErrNotFound if the id does not exist.
	GetByID(ctx context.Context, id string) (*domain.Position, error)

	// GetOpen returns positions in OPEN or EXITING state ordered by open time.
	GetOpen(ctx context.Context) ([]*domain.Position, error)
}

// WalletStore keeps per-wallet trade statistics.
type WalletStore interface {
	// Upsert inserts or replaces each wallet's statistics.
	Upsert(ctx context.Context, wallets []*domain.Wallet) error

	// GetAll returns every wallet ordered by address.
	GetAll(ctx context.Context) ([]*domain.Wallet, error)
}

// TradeKind separates entries from exits in the analytics store.
type TradeKind string

const (
	TradeEntry TradeKind = "entry"
	TradeExit  TradeKind = "exit"
)

// TradeRecord is one analytics row per fill.
type TradeRecord struct {
	Signature   string
	Kind        TradeKind
	Token       string
	ClusterID   string
	Path        domain.Path
	Endpoint    string
	InAmount    uint64
	OutAmount   uint64
	Price       decimal.Decimal
	FeeLamports uint64
	TipLamports uint64
	Attempts    int
	LatencyMs   int64
	ExitReason  domain.ExitReason
	PnLLamports decimal.Decimal
	Timestamp   time.Time
}

// PathStat aggregates fills per submission path.
type PathStat struct {
	Path         domain.Path
	Fills        uint64
	AvgLatencyMs float64
	TotalFees    uint64
	TotalTips    uint64
}

// TradeAnalyticsStore keeps the trade time series.
type TradeAnalyticsStore interface {
	// InsertBulk adds records. Fails the entire batch on a duplicate signature.
	InsertBulk(ctx context.Context, records []*TradeRecord) error

	// GetByTimeRange returns records in [start, end] ordered by time.
	GetByTimeRange(ctx context.Context, start, end time.Time) ([]*TradeRecord, error)

	// PathStats aggregates records at or after since, ordered by path.
	PathStats(ctx context.Context, since time.Time) ([]PathStat, error)
}
