package position

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-cluster-sniper/internal/domain"
	"solana-cluster-sniper/internal/execution"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fakePrices struct {
	mu    sync.Mutex
	snaps map[string]*domain.MarketSnapshot
	err   error
}

func (f *fakePrices) set(token string, price int64) *domain.MarketSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &domain.MarketSnapshot{
		Token:                    token,
		PriceLamports:            decimal.NewFromInt(price),
		LiquidityUSD:             decimal.NewFromInt(10_000),
		MintAuthorityRenounced:   true,
		FreezeAuthorityRenounced: true,
	}
	f.snaps[token] = s
	return s
}

func (f *fakePrices) Snapshot(_ context.Context, token string) (*domain.MarketSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.snaps[token]
	if !ok {
		return nil, domain.ErrDataUnavailable
	}
	cp := *s
	return &cp, nil
}

type fakeExec struct {
	mu      sync.Mutex
	intents []*domain.TradeIntent
	out     uint64
	err     error
}

func (f *fakeExec) Execute(_ context.Context, intent *domain.TradeIntent) (*execution.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intents = append(f.intents, intent)
	if f.err != nil {
		return &execution.Result{}, f.err
	}
	fill := &domain.Fill{
		IntentID:    intent.ID,
		Token:       intent.Token,
		Side:        domain.SideSell,
		InAmount:    intent.AmountIn,
		OutAmount:   f.out,
		FeeLamports: 5000,
		Signature:   "sell-" + intent.Token,
		Timestamp:   t0.Add(time.Minute),
	}
	fill.Price = execution.FillPrice(fill)
	return &execution.Result{Fill: fill}, nil
}

func (f *fakeExec) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.intents)
}

type fakeLedger struct {
	mu       sync.Mutex
	released []string
}

func (f *fakeLedger) Release(token string) error {
	f.mu.Lock()
	f.released = append(f.released, token)
	f.mu.Unlock()
	return nil
}

type harness struct {
	m      *Manager
	prices *fakePrices
	exec   *fakeExec
	ledger *fakeLedger

	mu     sync.Mutex
	events []EventKind
}

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	h := &harness{
		prices: &fakePrices{snaps: make(map[string]*domain.MarketSnapshot)},
		exec:   &fakeExec{out: 2_010_000_000},
		ledger: &fakeLedger{},
	}
	m, err := NewManager(Options{
		Config:   cfg,
		Prices:   h.prices,
		Executor: h.exec,
		Ledger:   h.ledger,
		OnEvent: func(ev Event) {
			h.mu.Lock()
			h.events = append(h.events, ev.Kind)
			h.mu.Unlock()
		},
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	h.m = m
	return h
}

func entryFill(token string) *domain.Fill {
	return &domain.Fill{
		IntentID:    "buy-" + token,
		Token:       token,
		Side:        domain.SideBuy,
		InAmount:    1_000_000_000,
		OutAmount:   10_000_000,
		Price:       decimal.NewFromInt(100),
		FeeLamports: 5000,
		Signature:   "buysig-" + token,
		Timestamp:   t0,
	}
}

// tickAt sets the price and runs one tick, returning the live position if any.
func (h *harness) tickAt(t *testing.T, token string, price int64) (*domain.Position, bool) {
	t.Helper()
	h.prices.set(token, price)
	require.NoError(t, h.m.Tick(context.Background(), t0.Add(time.Minute)))
	return h.m.Get(token)
}

func TestManager_TakeProfitExitsExactlyAtThreshold(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.TakeProfit = 1.0 })
	_, err := h.m.Open(entryFill("TOKEN"), "pool", "cluster")
	require.NoError(t, err)

	for _, price := range []int64{150, 195} {
		pos, ok := h.tickAt(t, "TOKEN", price)
		require.True(t, ok)
		assert.Equal(t, domain.PositionOpen, pos.State, "price %d", price)
	}
	assert.Equal(t, 0, h.exec.calls())

	_, ok := h.tickAt(t, "TOKEN", 201)
	assert.False(t, ok)
	require.Equal(t, 1, h.exec.calls())

	closed := h.m.Closed()
	require.Len(t, closed, 1)
	assert.Equal(t, domain.ExitTakeProfit, closed[0].ExitReason)
	assert.Equal(t, domain.PositionClosed, closed[0].State)
	assert.True(t, closed[0].RealizedPnL.Equal(decimal.NewFromInt(1_009_990_000)), closed[0].RealizedPnL.String())
	assert.Equal(t, []string{"TOKEN"}, h.ledger.released)
	assert.Equal(t, []EventKind{EventOpened, EventExiting, EventClosed}, h.events)

	intent := h.exec.intents[0]
	assert.Equal(t, domain.SideSell, intent.Side)
	assert.Equal(t, uint64(10_000_000), intent.AmountIn)
	assert.Equal(t, "pool", intent.Pool)
	assert.False(t, intent.Emergency)
}

func TestManager_TrailingStopBoundary(t *testing.T) {
	h := newHarness(t, func(c *Config) {
		c.TakeProfit = 1.0
		c.Trail = 0.15
	})
	_, err := h.m.Open(entryFill("TOKEN"), "pool", "")
	require.NoError(t, err)

	for _, price := range []int64{100, 130, 160, 140} {
		_, ok := h.tickAt(t, "TOKEN", price)
		require.True(t, ok)
	}
	pos, _ := h.m.Get("TOKEN")
	assert.True(t, pos.HighWaterMark.Equal(decimal.NewFromInt(160)))

	pos, ok := h.tickAt(t, "TOKEN", 136)
	require.True(t, ok, "136 is exactly 160*0.85 and must not trigger")
	assert.Equal(t, domain.PositionOpen, pos.State)

	_, ok = h.tickAt(t, "TOKEN", 135)
	assert.False(t, ok)
	assert.Equal(t, domain.ExitTrailingStop, h.m.Closed()[0].ExitReason)
}

func TestManager_TrailingNeedsActivation(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.m.Open(entryFill("TOKEN"), "pool", "")
	require.NoError(t, err)

	// high of 115 never arms the 20% activation, so a 10% pullback is ignored
	for _, price := range []int64{115, 100} {
		_, ok := h.tickAt(t, "TOKEN", price)
		require.True(t, ok)
	}
}

func TestManager_StopLoss(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.m.Open(entryFill("TOKEN"), "pool", "")
	require.NoError(t, err)

	_, ok := h.tickAt(t, "TOKEN", 86)
	require.True(t, ok)
	_, ok = h.tickAt(t, "TOKEN", 85)
	require.False(t, ok)
	assert.Equal(t, domain.ExitStopLoss, h.m.Closed()[0].ExitReason)
}

func TestManager_EmergencyOnLiquidityCollapse(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.m.Open(entryFill("TOKEN"), "pool", "")
	require.NoError(t, err)

	snap := h.prices.set("TOKEN", 110)
	snap.LiquidityUSD = decimal.NewFromInt(1500)
	require.NoError(t, h.m.Tick(context.Background(), t0.Add(time.Minute)))

	require.Equal(t, 1, h.exec.calls())
	assert.True(t, h.exec.intents[0].Emergency)
	assert.Equal(t, domain.ExitEmergency, h.m.Closed()[0].ExitReason)
}

func TestManager_EmergencyOnAuthorityFlip(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.m.Open(entryFill("TOKEN"), "pool", "")
	require.NoError(t, err)

	_, ok := h.tickAt(t, "TOKEN", 105)
	require.True(t, ok)

	snap := h.prices.set("TOKEN", 105)
	snap.MintAuthorityRenounced = false
	require.NoError(t, h.m.Tick(context.Background(), t0.Add(time.Minute)))
	require.Len(t, h.m.Closed(), 1)
	assert.Equal(t, "authority no longer renounced", h.m.Closed()[0].ExitDetail)
}

func TestManager_EmergencyOnSharpDrop(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.StopLoss = 0.5 })
	_, err := h.m.Open(entryFill("TOKEN"), "pool", "")
	require.NoError(t, err)

	_, ok := h.tickAt(t, "TOKEN", 100)
	require.True(t, ok)
	_, ok = h.tickAt(t, "TOKEN", 65)
	require.False(t, ok)
	assert.Equal(t, domain.ExitEmergency, h.m.Closed()[0].ExitReason)
}

func TestManager_MaxHoldWithoutPrice(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.m.Open(entryFill("TOKEN"), "pool", "")
	require.NoError(t, err)
	h.prices.err = domain.ErrDataUnavailable

	require.NoError(t, h.m.Tick(context.Background(), t0.Add(59*time.Minute)))
	_, ok := h.m.Get("TOKEN")
	require.True(t, ok)

	require.NoError(t, h.m.Tick(context.Background(), t0.Add(time.Hour)))
	_, ok = h.m.Get("TOKEN")
	require.False(t, ok)
	assert.Equal(t, domain.ExitMaxHold, h.m.Closed()[0].ExitReason)
}

func TestManager_FailedExitRetriesNextTick(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.m.Open(entryFill("TOKEN"), "pool", "")
	require.NoError(t, err)
	h.exec.err = fmt.Errorf("%w: exhausted", domain.ErrExecutionFailed)

	pos, ok := h.tickAt(t, "TOKEN", 80)
	require.True(t, ok)
	assert.Equal(t, domain.PositionExiting, pos.State)
	assert.Equal(t, 1, pos.ExitAttempts)
	assert.Empty(t, h.ledger.released)

	h.exec.mu.Lock()
	h.exec.err = nil
	h.exec.mu.Unlock()

	// the price recovered, but an EXITING position keeps exiting
	_, ok = h.tickAt(t, "TOKEN", 120)
	require.False(t, ok)
	closed := h.m.Closed()[0]
	assert.Equal(t, 2, closed.ExitAttempts)
	assert.Equal(t, domain.ExitStopLoss, closed.ExitReason)
	require.Len(t, h.exec.intents, 2)
	assert.Equal(t, 0, h.exec.intents[0].PriorAttempts)
	assert.Equal(t, 1, h.exec.intents[1].PriorAttempts)
	assert.Equal(t, []EventKind{EventOpened, EventExiting, EventExitFailed, EventClosed}, h.events)
}

func TestManager_OpenTwiceIsInvariantViolation(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.m.Open(entryFill("TOKEN"), "pool", "")
	require.NoError(t, err)
	_, err = h.m.Open(entryFill("TOKEN"), "pool", "")
	assert.ErrorIs(t, err, domain.ErrInvariantViolation)

	sell := entryFill("OTHER")
	sell.Side = domain.SideSell
	_, err = h.m.Open(sell, "pool", "")
	assert.ErrorIs(t, err, domain.ErrInvariantViolation)
}

func TestManager_OpenDerivesEntry(t *testing.T) {
	h := newHarness(t, nil)
	fill := entryFill("TOKEN")
	fill.Price = decimal.Zero
	fill.TipLamports = 100_000
	pos, err := h.m.Open(fill, "pool", "c1")
	require.NoError(t, err)

	assert.True(t, pos.EntryPrice.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, uint64(1_000_105_000), pos.EntryCostLamports)
	assert.Equal(t, "c1", pos.ClusterID)
	assert.Equal(t, t0, pos.OpenedAt)
}

func TestManager_AddFoldsSiblingBuy(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.m.Open(entryFill("TOKEN"), "pool", "")
	require.NoError(t, err)

	sibling := &domain.Fill{
		IntentID:    "buy-TOKEN",
		Token:       "TOKEN",
		Side:        domain.SideBuy,
		InAmount:    500_000_000,
		OutAmount:   2_500_000,
		Price:       decimal.NewFromInt(200),
		FeeLamports: 5000,
		Signature:   "sibling",
	}
	pos, err := h.m.Add(sibling)
	require.NoError(t, err)
	assert.Equal(t, uint64(12_500_000), pos.EntryAmount)
	assert.True(t, pos.EntryPrice.Equal(decimal.NewFromInt(120)), pos.EntryPrice.String())
	assert.Equal(t, uint64(1_500_010_000), pos.EntryCostLamports)

	// take profit is measured from the averaged entry and sells everything
	_, ok := h.tickAt(t, "TOKEN", 210)
	require.False(t, ok)
	require.Len(t, h.exec.intents, 1)
	assert.Equal(t, uint64(12_500_000), h.exec.intents[0].AmountIn)

	_, err = h.m.Add(sibling)
	assert.ErrorIs(t, err, domain.ErrInvariantViolation)
}

func TestManager_ManyPositionsInParallel(t *testing.T) {
	h := newHarness(t, func(c *Config) { c.Parallelism = 4 })
	for i := 0; i < 20; i++ {
		token := fmt.Sprintf("T%02d", i)
		_, err := h.m.Open(entryFill(token), "pool", "")
		require.NoError(t, err)
		h.prices.set(token, 200)
	}
	require.NoError(t, h.m.Tick(context.Background(), t0.Add(time.Minute)))

	assert.Empty(t, h.m.Positions())
	assert.Len(t, h.m.Closed(), 20)
	assert.Len(t, h.ledger.released, 20)
}

func TestManager_RestoreSkipsClosed(t *testing.T) {
	h := newHarness(t, nil)
	h.m.Restore([]*domain.Position{
		{Token: "A", State: domain.PositionOpen, EntryPrice: decimal.NewFromInt(1), OpenedAt: t0},
		{Token: "B", State: domain.PositionExiting, ExitReason: domain.ExitStopLoss, OpenedAt: t0.Add(time.Second)},
		{Token: "C", State: domain.PositionClosed},
	})
	live := h.m.Positions()
	require.Len(t, live, 2)
	assert.Equal(t, "A", live[0].Token)
	assert.Equal(t, "B", live[1].Token)
}

func TestManager_CloseFromLateFill(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.m.Open(entryFill("TOKEN"), "pool", "")
	require.NoError(t, err)

	late := &domain.Fill{Token: "TOKEN", Side: domain.SideSell, InAmount: 10_000_000, OutAmount: 900_000_000, Price: decimal.NewFromInt(90)}
	assert.True(t, h.m.Close("TOKEN", late))
	assert.False(t, h.m.Close("TOKEN", late))
	assert.True(t, h.m.Closed()[0].RealizedPnL.IsNegative())
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	cfg := DefaultConfig()
	cfg.StopLoss = 1
	assert.True(t, errors.Is(cfg.Validate(), ErrInvalidConfig))
	cfg = DefaultConfig()
	cfg.Trail = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}
