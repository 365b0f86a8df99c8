// Package journal persists pipeline activity. It is an orchestrator sink:
// events are turned into store writes and queued so the trading goroutines
// never wait on a database. Trade analytics rows are batched.
package journal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"solana-cluster-sniper/internal/domain"
	"solana-cluster-sniper/internal/orchestrator"
	"solana-cluster-sniper/internal/position"
	"solana-cluster-sniper/internal/storage"
)

// ErrQueueFull is reported when a write is dropped because the queue is full.
var ErrQueueFull = errors.New("journal queue full")

// Config controls queueing and housekeeping.
type Config struct {
	QueueSize      int
	WriteTimeout   time.Duration
	TradeBatchSize int
	TradeFlush     time.Duration
	WalletFlush    time.Duration
	// RetainTransfers bounds how long transfer events are kept. Zero disables pruning.
	RetainTransfers time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		QueueSize:       4096,
		WriteTimeout:    5 * time.Second,
		TradeBatchSize:  100,
		TradeFlush:      5 * time.Second,
		WalletFlush:     30 * time.Second,
		RetainTransfers: 24 * time.Hour,
	}
}

// Stores are the persistence targets. Trades is optional.
type Stores struct {
	Transfers storage.TransferEventStore
	Clusters  storage.ClusterStore
	Fills     storage.FillStore
	Positions storage.PositionStore
	Wallets   storage.WalletStore
	Trades    storage.TradeAnalyticsStore
}

// WalletSource exposes wallet statistics changed since a point in time.
type WalletSource interface {
	Dirty(since time.Time) []*domain.Wallet
}

type op struct {
	name string
	fn   func(ctx context.Context) error
}

// Journal queues store writes and runs them on its own goroutine.
type Journal struct {
	cfg     Config
	stores  Stores
	wallets WalletSource
	log     zerolog.Logger
	now     func() time.Time

	queue   chan op
	dropped atomic.Uint64
	failed  atomic.Uint64

	mu     sync.Mutex
	trades []*storage.TradeRecord
}

var _ orchestrator.Sink = (*Journal)(nil)

// New creates a Journal. wallets may be nil to skip wallet flushing.
func New(cfg Config, stores Stores, wallets WalletSource, log zerolog.Logger) (*Journal, error) {
	if stores.Transfers == nil || stores.Clusters == nil || stores.Fills == nil || stores.Positions == nil || stores.Wallets == nil {
		return nil, fmt.Errorf("journal: transfer, cluster, fill, position and wallet stores are required")
	}
	def := DefaultConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.TradeBatchSize <= 0 {
		cfg.TradeBatchSize = def.TradeBatchSize
	}
	if cfg.TradeFlush <= 0 {
		cfg.TradeFlush = def.TradeFlush
	}
	if cfg.WalletFlush <= 0 {
		cfg.WalletFlush = def.WalletFlush
	}
	return &Journal{
		cfg:     cfg,
		stores:  stores,
		wallets: wallets,
		log:     log.With().Str("component", "journal").Logger(),
		now:     time.Now,
		queue:   make(chan op, cfg.QueueSize),
	}, nil
}

// Stats counts writes that never reached a store.
type Stats struct {
	Queued  int    `json:"queued"`
	Dropped uint64 `json:"dropped"`
	Failed  uint64 `json:"failed"`
}

// Stats returns the current queue depth and loss counters.
func (j *Journal) Stats() Stats {
	return Stats{Queued: len(j.queue), Dropped: j.dropped.Load(), Failed: j.failed.Load()}
}

func (j *Journal) enqueue(name string, fn func(ctx context.Context) error) {
	select {
	case j.queue <- op{name: name, fn: fn}:
	default:
		j.dropped.Add(1)
		j.log.Error().Err(ErrQueueFull).Str("op", name).Msg("write dropped")
	}
}

// Run executes queued writes and the periodic flushes until ctx is done,
// then drains what is left under a fresh deadline.
func (j *Journal) Run(ctx context.Context) error {
	tradeTick := time.NewTicker(j.cfg.TradeFlush)
	defer tradeTick.Stop()
	walletTick := time.NewTicker(j.cfg.WalletFlush)
	defer walletTick.Stop()

	var pruneC <-chan time.Time
	if j.cfg.RetainTransfers > 0 {
		pruneTick := time.NewTicker(j.cfg.RetainTransfers / 4)
		defer pruneTick.Stop()
		pruneC = pruneTick.C
	}

	walletsSince := j.now()
	for {
		select {
		case <-ctx.Done():
			j.shutdown(walletsSince)
			return ctx.Err()
		case o := <-j.queue:
			j.exec(ctx, o)
		case <-tradeTick.C:
			j.flushTrades(ctx)
		case <-walletTick.C:
			next := j.now()
			j.flushWallets(ctx, walletsSince)
			walletsSince = next
		case <-pruneC:
			j.prune(ctx)
		}
	}
}

func (j *Journal) shutdown(walletsSince time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 4*j.cfg.WriteTimeout)
	defer cancel()
drain:
	for {
		select {
		case o := <-j.queue:
			j.exec(ctx, o)
		default:
			break drain
		}
	}
	j.flushTrades(ctx)
	j.flushWallets(ctx, walletsSince)
}

func (j *Journal) exec(ctx context.Context, o op) {
	wctx, cancel := context.WithTimeout(ctx, j.cfg.WriteTimeout)
	defer cancel()
	if err := o.fn(wctx); err != nil {
		j.failed.Add(1)
		j.log.Error().Err(err).Str("op", o.name).Msg("write failed")
	}
}

// RecordTransfer stores an event synchronously. It is used as the
// orchestrator's transfer hook when the store backs the cluster engine, so
// the row must exist before the next scan. Duplicates are ignored.
func (j *Journal) RecordTransfer(ctx context.Context, ev domain.TransferEvent) {
	wctx, cancel := context.WithTimeout(ctx, j.cfg.WriteTimeout)
	defer cancel()
	err := j.stores.Transfers.Insert(wctx, &ev)
	if err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		j.failed.Add(1)
		j.log.Error().Err(err).Str("signature", ev.Signature).Msg("record transfer failed")
	}
}

// OnCluster stores detected clusters and marks expiries.
func (j *Journal) OnCluster(ev orchestrator.ClusterEvent) {
	c := ev.Cluster.Clone()
	switch ev.Kind {
	case orchestrator.ClusterDetected:
		j.enqueue("insert_cluster", func(ctx context.Context) error {
			err := j.stores.Clusters.Insert(ctx, c)
			if errors.Is(err, storage.ErrDuplicateKey) {
				return nil
			}
			return err
		})
	case orchestrator.ClusterExpired:
		j.enqueue("expire_cluster", func(ctx context.Context) error {
			return ignoreNotFound(j.stores.Clusters.UpdateStatus(ctx, c.ID, domain.ClusterExpired))
		})
	}
}

// OnTrade stores the entry fill, its position and the analytics row.
// Rejections and failures are not persisted.
func (j *Journal) OnTrade(ev orchestrator.TradeEvent) {
	if ev.Status != orchestrator.TradeFilled || ev.Fill == nil {
		return
	}
	fill := *ev.Fill
	j.enqueue("insert_fill", func(ctx context.Context) error {
		err := j.stores.Fills.Insert(ctx, &fill)
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil
		}
		return err
	})
	if ev.Position != nil {
		pos := ev.Position.Clone()
		j.enqueue("upsert_position", func(ctx context.Context) error {
			return j.stores.Positions.Upsert(ctx, pos)
		})
	}
	if ev.Cluster != nil {
		id := ev.Cluster.ID
		j.enqueue("act_on_cluster", func(ctx context.Context) error {
			return ignoreNotFound(j.stores.Clusters.UpdateStatus(ctx, id, domain.ClusterActedOn))
		})
	}
	j.addTrade(EntryRecord(ev))
}

// OnExit keeps the stored position in step with the manager and records
// the exit fill once the position closes.
func (j *Journal) OnExit(ev orchestrator.ExitEvent) {
	if ev.Position == nil {
		return
	}
	pos := ev.Position.Clone()
	j.enqueue("upsert_position", func(ctx context.Context) error {
		return j.stores.Positions.Upsert(ctx, pos)
	})
	if ev.Kind != position.EventClosed || ev.Fill == nil {
		return
	}
	fill := *ev.Fill
	j.enqueue("insert_fill", func(ctx context.Context) error {
		err := j.stores.Fills.Insert(ctx, &fill)
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil
		}
		return err
	})
	j.addTrade(ExitRecord(ev))
}

func (j *Journal) addTrade(r *storage.TradeRecord) {
	if j.stores.Trades == nil || r == nil {
		return
	}
	j.mu.Lock()
	j.trades = append(j.trades, r)
	full := len(j.trades) >= j.cfg.TradeBatchSize
	j.mu.Unlock()
	if full {
		j.enqueue("flush_trades", func(ctx context.Context) error {
			j.flushTrades(ctx)
			return nil
		})
	}
}

func (j *Journal) flushTrades(ctx context.Context) {
	j.mu.Lock()
	batch := j.trades
	j.trades = nil
	j.mu.Unlock()
	if len(batch) == 0 {
		return
	}
	wctx, cancel := context.WithTimeout(ctx, j.cfg.WriteTimeout)
	defer cancel()
	if err := j.stores.Trades.InsertBulk(wctx, batch); err != nil {
		j.failed.Add(uint64(len(batch)))
		j.log.Error().Err(err).Int("records", len(batch)).Msg("trade analytics flush failed")
		return
	}
	j.log.Debug().Int("records", len(batch)).Msg("trade analytics flushed")
}

func (j *Journal) flushWallets(ctx context.Context, since time.Time) {
	if j.wallets == nil {
		return
	}
	dirty := j.wallets.Dirty(since)
	if len(dirty) == 0 {
		return
	}
	wctx, cancel := context.WithTimeout(ctx, j.cfg.WriteTimeout)
	defer cancel()
	if err := j.stores.Wallets.Upsert(wctx, dirty); err != nil {
		j.failed.Add(1)
		j.log.Error().Err(err).Int("wallets", len(dirty)).Msg("wallet flush failed")
	}
}

func (j *Journal) prune(ctx context.Context) {
	wctx, cancel := context.WithTimeout(ctx, j.cfg.WriteTimeout)
	defer cancel()
	n, err := j.stores.Transfers.Prune(wctx, j.now().Add(-j.cfg.RetainTransfers))
	if err != nil {
		j.log.Error().Err(err).Msg("prune transfers failed")
		return
	}
	if n > 0 {
		j.log.Info().Int64("deleted", n).Msg("pruned transfer events")
	}
}

func ignoreNotFound(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	return err
}
