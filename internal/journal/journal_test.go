package journal

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-cluster-sniper/internal/domain"
	"solana-cluster-sniper/internal/execution"
	"solana-cluster-sniper/internal/exposure"
	"solana-cluster-sniper/internal/idhash"
	"solana-cluster-sniper/internal/orchestrator"
	"solana-cluster-sniper/internal/position"
	"solana-cluster-sniper/internal/storage"
	"solana-cluster-sniper/internal/storage/memory"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type walletsStub struct{ wallets []*domain.Wallet }

func (w walletsStub) Dirty(time.Time) []*domain.Wallet { return w.wallets }

type harness struct {
	j      *Journal
	stores Stores
	trades *memory.TradeAnalyticsStore
}

func newHarness(t *testing.T, wallets WalletSource) *harness {
	t.Helper()
	trades := memory.NewTradeAnalyticsStore()
	stores := Stores{
		Transfers: memory.NewTransferEventStore(),
		Clusters:  memory.NewClusterStore(),
		Fills:     memory.NewFillStore(),
		Positions: memory.NewPositionStore(),
		Wallets:   memory.NewWalletStore(),
		Trades:    trades,
	}
	j, err := New(DefaultConfig(), stores, wallets, zerolog.Nop())
	require.NoError(t, err)
	return &harness{j: j, stores: stores, trades: trades}
}

// drain runs the journal until every queued write has been applied.
func (h *harness) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, h.j.Run(ctx), context.Canceled)
}

func cluster() *domain.Cluster {
	return &domain.Cluster{
		ID:          "cl-1",
		Token:       "MINT",
		Members:     []string{"a", "b", "c"},
		Methods:     domain.MethodTemporal,
		WindowStart: t0,
		WindowEnd:   t0.Add(time.Minute),
		VolumeUSD:   decimal.NewFromInt(900),
		Score:       80,
		Signal:      domain.SignalStrongBuy,
		Status:      domain.ClusterActive,
		DetectedAt:  t0.Add(time.Minute),
		ExpiresAt:   t0.Add(10 * time.Minute),
	}
}

func entryFill() *domain.Fill {
	return &domain.Fill{
		IntentID:    "intent-1",
		Token:       "MINT",
		Side:        domain.SideBuy,
		InAmount:    100_000_000,
		OutAmount:   4_000_000,
		Price:       decimal.NewFromInt(25),
		Path:        domain.PathBundle,
		Endpoint:    "ny",
		FeeLamports: 5_000,
		TipLamports: 50_000,
		Signature:   "entry-sig",
		Timestamp:   t0.Add(2 * time.Minute),
	}
}

func openPosition() *domain.Position {
	return &domain.Position{
		Token:             "MINT",
		Pool:              "POOL",
		State:             domain.PositionOpen,
		EntryPrice:        decimal.NewFromInt(25),
		EntryAmount:       4_000_000,
		EntryCostLamports: 100_055_000,
		HighWaterMark:     decimal.NewFromInt(25),
		LastPrice:         decimal.NewFromInt(25),
		OpenedAt:          t0.Add(2 * time.Minute),
		EntrySignature:    "entry-sig",
		ClusterID:         "cl-1",
	}
}

func TestJournal_ClusterLifecycle(t *testing.T) {
	h := newHarness(t, nil)
	c := cluster()

	h.j.OnCluster(orchestrator.ClusterEvent{Kind: orchestrator.ClusterDetected, Cluster: c, At: t0})
	h.j.OnCluster(orchestrator.ClusterEvent{Kind: orchestrator.ClusterDetected, Cluster: c, At: t0})
	h.j.OnCluster(orchestrator.ClusterEvent{Kind: orchestrator.ClusterExpired, Cluster: c, At: t0})
	h.drain(t)

	got, err := h.stores.Clusters.GetByID(context.Background(), "cl-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ClusterExpired, got.Status)
	assert.Zero(t, h.j.Stats().Failed)
}

func TestJournal_FilledTrade(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	c := cluster()
	h.j.OnCluster(orchestrator.ClusterEvent{Kind: orchestrator.ClusterDetected, Cluster: c})

	h.j.OnTrade(orchestrator.TradeEvent{Status: orchestrator.TradeRejected, Cluster: c, Reason: "gate"})
	h.j.OnTrade(orchestrator.TradeEvent{
		Status:   orchestrator.TradeFilled,
		Cluster:  c,
		Intent:   &domain.TradeIntent{ID: "intent-1", CreatedAt: t0.Add(2*time.Minute - 750*time.Millisecond)},
		Fill:     entryFill(),
		Position: openPosition(),
		Attempts: []execution.Attempt{
			{Path: domain.PathBundle, Status: execution.AttemptSucceeded},
			{Path: domain.PathDirect, Status: execution.AttemptCancelled},
			{Path: domain.PathRPC, Status: execution.AttemptSkipped},
		},
	})
	h.drain(t)

	f, err := h.stores.Fills.GetByIntentID(ctx, "intent-1")
	require.NoError(t, err)
	assert.Equal(t, "entry-sig", f.Signature)

	p, err := h.stores.Positions.GetByID(ctx, idhash.ComputePositionID("MINT", "entry-sig"))
	require.NoError(t, err)
	assert.Equal(t, domain.PositionOpen, p.State)

	got, err := h.stores.Clusters.GetByID(ctx, "cl-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ClusterActedOn, got.Status)

	records, err := h.trades.GetByTimeRange(ctx, t0, t0.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, storage.TradeEntry, records[0].Kind)
	assert.Equal(t, "cl-1", records[0].ClusterID)
	assert.Equal(t, 2, records[0].Attempts)
	assert.Equal(t, int64(750), records[0].LatencyMs)
}

func TestJournal_ExitClosesPosition(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	pos := openPosition()
	h.j.OnExit(orchestrator.ExitEvent{Kind: position.EventOpened, Position: pos})

	closed := pos.Clone()
	closed.State = domain.PositionClosed
	closed.ExitReason = domain.ExitStopLoss
	closed.ExitAttempts = 2
	closed.ExitStartedAt = t0.Add(10 * time.Minute)
	closed.ClosedAt = t0.Add(10*time.Minute + 3*time.Second)
	closed.RealizedPnL = decimal.NewFromInt(-30_000_000)
	exit := &domain.Fill{
		IntentID:  "exit-1",
		Token:     "MINT",
		Side:      domain.SideSell,
		InAmount:  4_000_000,
		OutAmount: 70_000_000,
		Price:     decimal.RequireFromString("17.5"),
		Path:      domain.PathRPC,
		Signature: "exit-sig",
		Timestamp: closed.ClosedAt,
	}
	h.j.OnExit(orchestrator.ExitEvent{Kind: position.EventClosed, Position: closed, Fill: exit})
	h.j.OnExit(orchestrator.ExitEvent{Kind: position.EventExitFailed})
	h.drain(t)

	open, err := h.stores.Positions.GetOpen(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	fills, err := h.stores.Fills.GetByToken(ctx, "MINT")
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.Equal(t, domain.SideSell, fills[0].Side)

	records, err := h.trades.GetByTimeRange(ctx, t0, t0.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, records, 1)
	r := records[0]
	assert.Equal(t, storage.TradeExit, r.Kind)
	assert.Equal(t, domain.ExitStopLoss, r.ExitReason)
	assert.Equal(t, 2, r.Attempts)
	assert.Equal(t, int64(3000), r.LatencyMs)
	assert.True(t, r.PnLLamports.Equal(decimal.NewFromInt(-30_000_000)))
}

func TestJournal_RecordTransferIgnoresDuplicates(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	ev := domain.TransferEvent{
		Signature: "s1", Wallet: "w", Token: "MINT", Direction: domain.DirectionBuy,
		TokenAmount: 10, QuoteLamports: 10, Timestamp: t0,
	}
	h.j.RecordTransfer(ctx, ev)
	h.j.RecordTransfer(ctx, ev)

	window, err := h.stores.Transfers.Window(ctx, "MINT", t0, t0)
	require.NoError(t, err)
	assert.Len(t, window, 1)
	assert.Zero(t, h.j.Stats().Failed)
}

func TestJournal_QueueOverflowDrops(t *testing.T) {
	trades := memory.NewTradeAnalyticsStore()
	cfg := DefaultConfig()
	cfg.QueueSize = 1
	j, err := New(cfg, Stores{
		Transfers: memory.NewTransferEventStore(),
		Clusters:  memory.NewClusterStore(),
		Fills:     memory.NewFillStore(),
		Positions: memory.NewPositionStore(),
		Wallets:   memory.NewWalletStore(),
		Trades:    trades,
	}, nil, zerolog.Nop())
	require.NoError(t, err)

	c := cluster()
	j.OnCluster(orchestrator.ClusterEvent{Kind: orchestrator.ClusterDetected, Cluster: c})
	j.OnCluster(orchestrator.ClusterEvent{Kind: orchestrator.ClusterExpired, Cluster: c})

	st := j.Stats()
	assert.Equal(t, 1, st.Queued)
	assert.Equal(t, uint64(1), st.Dropped)
}

func TestJournal_FlushesWalletsOnShutdown(t *testing.T) {
	w := &domain.Wallet{Address: "w1", TradeCount: 5, ProfitableCount: 4, FirstSeen: t0, LastActive: t0}
	h := newHarness(t, walletsStub{wallets: []*domain.Wallet{w}})
	h.drain(t)

	all, err := h.stores.Wallets.GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 4, all[0].ProfitableCount)
}

type positionsStub struct{ got []*domain.Position }

func (p *positionsStub) Restore(ps []*domain.Position) { p.got = ps }

type walletLoader struct{ got []*domain.Wallet }

func (w *walletLoader) Load(ws []*domain.Wallet) { w.got = ws }

func TestJournal_Restore(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	require.NoError(t, h.stores.Positions.Upsert(ctx, openPosition()))
	closed := openPosition()
	closed.Token = "GONE"
	closed.EntrySignature = "gone-sig"
	closed.State = domain.PositionClosed
	require.NoError(t, h.stores.Positions.Upsert(ctx, closed))
	require.NoError(t, h.stores.Wallets.Upsert(ctx, []*domain.Wallet{{Address: "w1", FirstSeen: t0, LastActive: t0}}))

	positions := &positionsStub{}
	ledger := exposure.NewLedger(exposure.DefaultConfig(), zerolog.Nop())
	wallets := &walletLoader{}
	require.NoError(t, h.j.Restore(ctx, positions, ledger, wallets))

	require.Len(t, positions.got, 1)
	assert.Equal(t, "MINT", positions.got[0].Token)
	assert.True(t, ledger.Holds("MINT"))
	assert.False(t, ledger.Holds("GONE"))
	assert.Equal(t, uint64(100_055_000), ledger.Totals().CommittedLamports)
	require.Len(t, wallets.got, 1)
}

func TestNew_RequiresStores(t *testing.T) {
	_, err := New(DefaultConfig(), Stores{}, nil, zerolog.Nop())
	assert.Error(t, err)
}
