package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-cluster-sniper/internal/domain"
	"solana-cluster-sniper/internal/execution"
	"solana-cluster-sniper/internal/exposure"
	"solana-cluster-sniper/internal/gate"
	"solana-cluster-sniper/internal/ingestion"
)

const token = "Token1111111111111111111111111111111111111"

type fakeMarket struct {
	snap  *domain.MarketSnapshot
	err   error
	calls atomic.Int32
}

func (m *fakeMarket) Snapshot(context.Context, string) (*domain.MarketSnapshot, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	cp := *m.snap
	return &cp, nil
}

type fakeGate struct {
	decision gate.Decision
	mu       sync.Mutex
	requests []gate.Request
}

func (g *fakeGate) Evaluate(_ context.Context, req gate.Request) gate.Decision {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()
	return g.decision
}

type fakeRouter struct {
	mu      sync.Mutex
	paused  string
	intents []*domain.TradeIntent
	exec    func(intent *domain.TradeIntent) (*execution.Result, error)
	late    chan *domain.Fill
}

func (r *fakeRouter) Execute(_ context.Context, intent *domain.TradeIntent) (*execution.Result, error) {
	r.mu.Lock()
	r.intents = append(r.intents, intent)
	r.mu.Unlock()
	return r.exec(intent)
}

func (r *fakeRouter) Paused() (bool, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.paused != "", r.paused
}

func (r *fakeRouter) Late() <-chan *domain.Fill { return r.late }

func fillFor(intent *domain.TradeIntent, in uint64) *domain.Fill {
	return &domain.Fill{
		IntentID:    intent.ID,
		Token:       intent.Token,
		Side:        intent.Side,
		InAmount:    in,
		OutAmount:   in * 1000,
		Price:       decimal.NewFromFloat(0.001),
		Path:        domain.PathBundle,
		FeeLamports: 5000,
		Signature:   "sig-" + intent.ID,
		Timestamp:   time.Now(),
	}
}

func fills(intent *domain.TradeIntent) (*execution.Result, error) {
	return &execution.Result{Fill: fillFor(intent, intent.AmountIn)}, nil
}

type fakeEngine struct {
	clusters chan *domain.Cluster
	mu       sync.Mutex
	marked   []string
}

func (e *fakeEngine) Run(ctx context.Context, events <-chan domain.TransferEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-events:
			if !ok {
				events = nil
			}
		}
	}
}

func (e *fakeEngine) Clusters() <-chan *domain.Cluster { return e.clusters }

func (e *fakeEngine) MarkActedOn(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.marked = append(e.marked, id)
	return nil
}

type fakePositions struct {
	mu     sync.Mutex
	opened []*domain.Fill
	added  []*domain.Fill
	pools  []string
	closed []*domain.Fill
}

func (p *fakePositions) Open(fill *domain.Fill, pool, clusterID string) (*domain.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, f := range p.opened {
		if f.Token == fill.Token {
			return nil, domain.ErrInvariantViolation
		}
	}
	p.opened = append(p.opened, fill)
	p.pools = append(p.pools, pool)
	return &domain.Position{Token: fill.Token, Pool: pool, ClusterID: clusterID, State: domain.PositionOpen}, nil
}

func (p *fakePositions) Add(fill *domain.Fill) (*domain.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, f := range p.opened {
		if f.Token == fill.Token {
			p.added = append(p.added, fill)
			return &domain.Position{Token: fill.Token, State: domain.PositionOpen}, nil
		}
	}
	return nil, domain.ErrInvariantViolation
}

func (p *fakePositions) Close(token string, fill *domain.Fill) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, f := range p.opened {
		if f.Token == token {
			p.closed = append(p.closed, fill)
			return true
		}
	}
	return false
}

func (p *fakePositions) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

type recorder struct {
	mu       sync.Mutex
	clusters []ClusterEvent
	trades   []TradeEvent
	exits    []ExitEvent
}

func (r *recorder) OnCluster(ev ClusterEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clusters = append(r.clusters, ev)
}

func (r *recorder) OnTrade(ev TradeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trades = append(r.trades, ev)
}

func (r *recorder) OnExit(ev ExitEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exits = append(r.exits, ev)
}

func (r *recorder) tradeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.trades)
}

type harness struct {
	orch      *Orchestrator
	market    *fakeMarket
	gate      *fakeGate
	router    *fakeRouter
	engine    *fakeEngine
	positions *fakePositions
	ledger    *exposure.Ledger
	sink      *recorder
}

func newHarness(t *testing.T, mutate ...func(*Config)) *harness {
	t.Helper()
	h := &harness{
		market: &fakeMarket{snap: &domain.MarketSnapshot{
			Token:        token,
			Pool:         "Pool1",
			Dex:          "raydium",
			ReserveToken: 1_000_000_000_000_000,
			ReserveSOL:   1_000 * domain.LamportsPerSOL,
			LiquidityUSD: decimal.NewFromInt(50_000),
		}},
		gate:      &fakeGate{decision: gate.Decision{Admit: true}},
		router:    &fakeRouter{exec: fills, late: make(chan *domain.Fill, 4)},
		engine:    &fakeEngine{clusters: make(chan *domain.Cluster, 4)},
		positions: &fakePositions{},
		ledger:    exposure.NewLedger(exposure.DefaultConfig(), zerolog.Nop()),
		sink:      &recorder{},
	}
	cfg := DefaultConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	orch, err := New(Options{
		Config:    cfg,
		Engine:    h.engine,
		Gate:      h.gate,
		Market:    h.market,
		Ledger:    h.ledger,
		Router:    h.router,
		Positions: h.positions,
		Sink:      Sinks{h.sink},
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)
	h.orch = orch
	return h
}

func strongBuy(id string) *domain.Cluster {
	return &domain.Cluster{ID: id, Token: token, Score: 85, Signal: domain.SignalStrongBuy, Status: domain.ClusterActive}
}

func TestHandleCluster_Fills(t *testing.T) {
	h := newHarness(t)
	ev := h.orch.HandleCluster(context.Background(), strongBuy("c1"))

	require.Equal(t, TradeFilled, ev.Status, ev.Detail)
	require.NotNil(t, ev.Fill)
	require.NotNil(t, ev.Position)
	assert.Equal(t, "c1", ev.Position.ClusterID)
	assert.Equal(t, "Pool1", ev.Position.Pool)

	require.Len(t, h.router.intents, 1)
	intent := h.router.intents[0]
	assert.Equal(t, domain.SideBuy, intent.Side)
	assert.Equal(t, uint64(100_000_000), intent.AmountIn)
	assert.Equal(t, "c1", intent.ClusterID)
	assert.Equal(t, 2000, intent.Constraints.MaxSlippageBps)
	assert.WithinDuration(t, time.Now().Add(time.Minute), intent.Constraints.Deadline, 5*time.Second)
	assert.NotEmpty(t, intent.ID)

	assert.Equal(t, uint64(100_000_000), h.ledger.Totals().CommittedLamports)
	assert.Equal(t, []string{"c1"}, h.engine.marked)
	require.Len(t, h.gate.requests, 1)
	assert.Equal(t, uint64(100_000_000), h.gate.requests[0].TradeLamports)
	require.Len(t, h.sink.trades, 1)
	assert.Equal(t, TradeFilled, h.sink.trades[0].Status)
}

func TestHandleCluster_PartialFillCommitsActual(t *testing.T) {
	h := newHarness(t)
	h.router.exec = func(intent *domain.TradeIntent) (*execution.Result, error) {
		return &execution.Result{Fill: fillFor(intent, 90_000_000)}, nil
	}
	ev := h.orch.HandleCluster(context.Background(), strongBuy("c1"))
	require.Equal(t, TradeFilled, ev.Status)
	assert.Equal(t, uint64(90_000_000), h.ledger.Totals().CommittedLamports)
}

func TestHandleCluster_Rejections(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(h *harness)
		cluster     *domain.Cluster
		reason      string
		wantSnapped bool
	}{
		{
			name:    "monitor signal",
			cluster: &domain.Cluster{ID: "m", Token: token, Score: 50, Signal: domain.SignalMonitor},
			reason:  string(gate.ReasonSignal),
		},
		{
			name:   "paused",
			setup:  func(h *harness) { h.router.paused = "3 consecutive failures" },
			reason: ReasonPaused,
		},
		{
			name:        "market data unavailable",
			setup:       func(h *harness) { h.market.err = domain.ErrDataUnavailable },
			reason:      ReasonMarketData,
			wantSnapped: true,
		},
		{
			name: "gate refuses",
			setup: func(h *harness) {
				h.gate.decision = gate.Decision{Reason: gate.ReasonLiquidity, Detail: "liquidity $4999.00 < $5000.00"}
			},
			reason:      string(gate.ReasonLiquidity),
			wantSnapped: true,
		},
		{
			name: "impact bounded size too small",
			setup: func(h *harness) {
				h.market.snap.ReserveSOL = 10_000_000
				h.market.snap.ReserveToken = 10_000_000
			},
			reason:      ReasonSizing,
			wantSnapped: true,
		},
		{
			name:   "token already held",
			setup:  func(h *harness) { _, _ = h.ledger.Reserve(token, 1) },
			reason: ReasonExposure,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			if tt.setup != nil {
				tt.setup(h)
			}
			c := tt.cluster
			if c == nil {
				c = strongBuy("c1")
			}
			held := h.ledger.Totals().CommittedLamports

			ev := h.orch.HandleCluster(context.Background(), c)
			assert.Equal(t, TradeRejected, ev.Status)
			assert.Equal(t, tt.reason, ev.Reason)
			assert.NotEmpty(t, ev.Detail)
			assert.Empty(t, h.router.intents)
			assert.Equal(t, held, h.ledger.Totals().CommittedLamports, "no exposure left behind")
			assert.Equal(t, tt.wantSnapped, h.market.calls.Load() > 0)
			assert.Empty(t, h.engine.marked)
			require.Len(t, h.sink.trades, 1, "rejections are reported")
		})
	}
}

func TestHandleCluster_ExecutionFailureReleases(t *testing.T) {
	h := newHarness(t)
	h.router.exec = func(intent *domain.TradeIntent) (*execution.Result, error) {
		return &execution.Result{Attempts: []execution.Attempt{{IntentID: intent.ID, Status: execution.AttemptFailed}}},
			domain.ErrExecutionFailed
	}
	ev := h.orch.HandleCluster(context.Background(), strongBuy("c1"))

	assert.Equal(t, TradeFailed, ev.Status)
	assert.Equal(t, ReasonExecution, ev.Reason)
	assert.ErrorIs(t, ev.Err, domain.ErrExecutionFailed)
	assert.Len(t, ev.Attempts, 1)
	assert.False(t, h.ledger.Holds(token))
	assert.Empty(t, h.positions.opened)
	assert.Empty(t, h.engine.marked)
}

func TestHandleLateFill_BuyOpensWithClusterContext(t *testing.T) {
	h := newHarness(t)
	h.router.exec = func(*domain.TradeIntent) (*execution.Result, error) {
		return &execution.Result{}, domain.ErrExecutionFailed
	}
	failed := h.orch.HandleCluster(context.Background(), strongBuy("c1"))
	require.Equal(t, TradeFailed, failed.Status)

	late := fillFor(failed.Intent, failed.Intent.AmountIn)
	ev := h.orch.HandleLateFill(late)

	assert.True(t, ev.Late)
	require.NoError(t, ev.Err)
	require.NotNil(t, ev.Position)
	assert.Equal(t, "c1", ev.Position.ClusterID)
	assert.Equal(t, "Pool1", ev.Position.Pool)
	assert.True(t, h.ledger.Holds(token))
	assert.Equal(t, late.InAmount, h.ledger.Totals().PerToken[token])
	assert.Equal(t, []string{"c1"}, h.engine.marked)
}

func TestHandleLateFill_SiblingBuyAddsToPosition(t *testing.T) {
	h := newHarness(t)
	won := h.orch.HandleCluster(context.Background(), strongBuy("c1"))
	require.Equal(t, TradeFilled, won.Status)
	before := h.ledger.Totals().PerToken[token]

	sibling := fillFor(won.Intent, 40_000_000)
	sibling.Signature = "sibling"
	ev := h.orch.HandleLateFill(sibling)

	require.NoError(t, ev.Err)
	require.NotNil(t, ev.Position)
	assert.Len(t, h.positions.opened, 1)
	require.Len(t, h.positions.added, 1)
	assert.Equal(t, "sibling", h.positions.added[0].Signature)
	assert.Equal(t, before+40_000_000, h.ledger.Totals().PerToken[token])
}

func TestHandleLateFill_BuyWhileReservedWithoutPosition(t *testing.T) {
	h := newHarness(t)
	_, err := h.ledger.Reserve(token, 5)
	require.NoError(t, err)

	ev := h.orch.HandleLateFill(&domain.Fill{IntentID: "x", Token: token, Side: domain.SideBuy, InAmount: 10, OutAmount: 10})
	assert.ErrorIs(t, ev.Err, domain.ErrInvariantViolation)
	assert.Equal(t, uint64(5), h.ledger.Totals().PerToken[token])
}

func TestHandleLateFill_Sell(t *testing.T) {
	h := newHarness(t)
	ev := h.orch.HandleCluster(context.Background(), strongBuy("c1"))
	require.Equal(t, TradeFilled, ev.Status)

	sell := &domain.Fill{IntentID: "exit", Token: token, Side: domain.SideSell, InAmount: 1, OutAmount: 2}
	late := h.orch.HandleLateFill(sell)
	assert.NoError(t, late.Err)
	assert.Len(t, h.positions.closed, 1)

	orphan := h.orch.HandleLateFill(&domain.Fill{Token: "Other", Side: domain.SideSell})
	assert.ErrorIs(t, orphan.Err, domain.ErrInvariantViolation)
}

func TestHandleCluster_SameTokenConcurrentlyBuysOnce(t *testing.T) {
	h := newHarness(t)
	release := make(chan struct{})
	var executed atomic.Int32
	h.router.exec = func(intent *domain.TradeIntent) (*execution.Result, error) {
		executed.Add(1)
		<-release
		return fills(intent)
	}

	var wg sync.WaitGroup
	results := make([]TradeEvent, 4)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = h.orch.HandleCluster(context.Background(), strongBuy("c"))
		}()
	}
	require.Eventually(t, func() bool { return h.sink.tradeCount() == 3 }, 2*time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()

	var filled, refused int
	for _, ev := range results {
		switch ev.Status {
		case TradeFilled:
			filled++
		case TradeRejected:
			refused++
			assert.Equal(t, ReasonExposure, ev.Reason)
		}
	}
	assert.Equal(t, 1, filled)
	assert.Equal(t, 3, refused)
	assert.Equal(t, int32(1), executed.Load())
}

func TestRun_ConsumesClustersAndLateFills(t *testing.T) {
	h := newHarness(t)
	var bgRan atomic.Bool
	h.orch.background = append(h.orch.background, func(ctx context.Context) error {
		bgRan.Store(true)
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.orch.Run(ctx) }()

	h.engine.clusters <- strongBuy("c1")
	require.Eventually(t, func() bool { return h.sink.tradeCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	h.router.late <- &domain.Fill{IntentID: "exit", Token: token, Side: domain.SideSell, OutAmount: 1}
	require.Eventually(t, func() bool { return h.sink.tradeCount() == 2 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}

	assert.True(t, bgRan.Load())
	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	require.Len(t, h.sink.clusters, 1)
	assert.Equal(t, ClusterDetected, h.sink.clusters[0].Kind)
	assert.True(t, h.sink.trades[1].Late)
}

type staticSource []domain.TransferEvent

func (s staticSource) Name() string { return "static" }

func (s staticSource) Stream(context.Context) (<-chan domain.TransferEvent, <-chan error) {
	events := make(chan domain.TransferEvent, len(s))
	errs := make(chan error)
	for _, ev := range s {
		events <- ev
	}
	close(events)
	close(errs)
	return events, errs
}

func TestRun_TransferHookSeesEachEvent(t *testing.T) {
	h := newHarness(t)
	h.orch.sources = []ingestion.Source{staticSource{
		{Signature: "a", Wallet: "w1", Token: token, Direction: domain.DirectionBuy},
		{Signature: "a", Wallet: "w1", Token: token, Direction: domain.DirectionBuy},
		{Signature: "b", Wallet: "w2", Token: token, Direction: domain.DirectionBuy},
	}}
	var mu sync.Mutex
	var seen []string
	h.orch.onXfer = func(_ context.Context, ev domain.TransferEvent) {
		mu.Lock()
		seen = append(seen, ev.Signature)
		mu.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.orch.Run(ctx) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"a", "b"}, seen)
}

func TestRun_BackgroundFailureStops(t *testing.T) {
	h := newHarness(t)
	boom := errors.New("ops server failed")
	h.orch.background = []func(context.Context) error{func(context.Context) error { return boom }}

	err := h.orch.Run(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestOnExpireAndSinks(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	h := newHarness(t)
	h.orch.sink = Sinks{a, b}

	h.orch.OnExpire(strongBuy("c9"))
	Sinks{a, b}.OnExit(ExitEvent{Kind: "closed"})

	for _, r := range []*recorder{a, b} {
		require.Len(t, r.clusters, 1)
		assert.Equal(t, ClusterExpired, r.clusters[0].Kind)
		assert.Len(t, r.exits, 1)
	}
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	bad := []func(*Config){
		func(c *Config) { c.TradeLamports = 0 },
		func(c *Config) { c.MinTradeLamports = c.TradeLamports + 1 },
		func(c *Config) { c.MaxSlippageBps = 0 },
		func(c *Config) { c.MaxImpactBps = 10_001 },
		func(c *Config) { c.IntentTTL = 0 },
	}
	for i, mutate := range bad {
		cfg := DefaultConfig()
		mutate(&cfg)
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig, "case %d", i)
	}

	_, err := New(Options{Config: DefaultConfig()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
