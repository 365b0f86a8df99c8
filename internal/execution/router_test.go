package execution

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
	"solana-cluster-sniper/internal/solana"
	"solana-cluster-sniper/internal/solana/stub"
)

type fakePath struct {
	path   domain.Path
	submit func(ctx context.Context, p Params) (*Submission, error)

	mu     sync.Mutex
	params []Params
}

func (f *fakePath) Path() domain.Path { return f.path }

func (f *fakePath) Submit(ctx context.Context, _ *domain.TradeIntent, p Params) (*Submission, error) {
	f.mu.Lock()
	f.params = append(f.params, p)
	f.mu.Unlock()
	return f.submit(ctx, p)
}

func (f *fakePath) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.params)
}

func lands(sig string) func(context.Context, Params) (*Submission, error) {
	return func(context.Context, Params) (*Submission, error) {
		return &Submission{Signature: sig, Endpoint: "primary", ExpectedOut: 1000, FeeLamports: 20_000}, nil
	}
}

func blocks(ctx context.Context, _ Params) (*Submission, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func fails(context.Context, Params) (*Submission, error) {
	return nil, errors.New("node unhealthy")
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.HedgeDelay = 20 * time.Millisecond
	cfg.AttemptTimeout = time.Second
	cfg.ConfirmPoll = 5 * time.Millisecond
	cfg.SettleTimeout = 20 * time.Millisecond
	cfg.LateWatch = 0
	return cfg
}

func newRouter(t *testing.T, cfg Config, chain *stub.RPCClient, paths ...Submitter) *Router {
	t.Helper()
	r, err := NewRouter(Options{Config: cfg, Paths: paths, Chain: chain, Owner: "owner", Logger: zerolog.Nop()})
	require.NoError(t, err)
	return r
}

func confirmed(chain *stub.RPCClient, sigs ...string) {
	for _, s := range sigs {
		chain.Statuses[s] = &solana.SignatureStatus{ConfirmationStatus: solana.CommitmentConfirmed}
	}
}

func buyIntent(id string) *domain.TradeIntent {
	return &domain.TradeIntent{ID: id, Token: "TokenMint", Side: domain.SideBuy, AmountIn: 1_000_000}
}

func TestRouter_HedgedRaceCancelsSlowPath(t *testing.T) {
	chain := stub.NewRPCClient()
	confirmed(chain, "sig2")
	slow := &fakePath{path: domain.PathBundle, submit: blocks}
	fast := &fakePath{path: domain.PathDirect, submit: lands("sig2")}
	spare := &fakePath{path: domain.PathAggregator, submit: lands("sig3")}
	r := newRouter(t, testConfig(), chain, slow, fast, spare)

	res, err := r.Execute(context.Background(), buyIntent("i1"))
	require.NoError(t, err)
	require.NotNil(t, res.Fill)

	assert.Equal(t, domain.PathDirect, res.Fill.Path)
	assert.Equal(t, "sig2", res.Fill.Signature)
	assert.Equal(t, uint64(1000), res.Fill.OutAmount)
	assert.True(t, res.Fill.Price.Equal(decimal.NewFromInt(1000)))

	require.Len(t, res.Attempts, 2)
	assert.Equal(t, domain.PathBundle, res.Attempts[0].Path)
	assert.Equal(t, AttemptCancelled, res.Attempts[0].Status)
	assert.Equal(t, AttemptSucceeded, res.Attempts[1].Status)
	assert.Equal(t, 0, spare.calls())
}

func TestRouter_FailureStartsNextPathImmediately(t *testing.T) {
	chain := stub.NewRPCClient()
	confirmed(chain, "sig2")
	cfg := testConfig()
	cfg.HedgeDelay = time.Hour
	r := newRouter(t, cfg, chain,
		&fakePath{path: domain.PathBundle, submit: fails},
		&fakePath{path: domain.PathDirect, submit: lands("sig2")},
	)

	res, err := r.Execute(context.Background(), buyIntent("i1"))
	require.NoError(t, err)
	require.Len(t, res.Attempts, 2)
	assert.Equal(t, AttemptFailed, res.Attempts[0].Status)
	assert.Equal(t, "node unhealthy", res.Attempts[0].Error)
	assert.Equal(t, domain.PathDirect, res.Fill.Path)
}

func TestRouter_EscalatesAcrossRounds(t *testing.T) {
	chain := stub.NewRPCClient()
	confirmed(chain, "sig")
	round := 0
	path := &fakePath{path: domain.PathDirect}
	path.submit = func(ctx context.Context, p Params) (*Submission, error) {
		round++
		if round < 3 {
			return nil, errors.New("blockhash not found")
		}
		return lands("sig")(ctx, p)
	}
	r := newRouter(t, testConfig(), chain, path)

	res, err := r.Execute(context.Background(), buyIntent("i1"))
	require.NoError(t, err)
	require.Len(t, res.Attempts, 3)
	assert.Equal(t, 2, res.Attempts[2].Round)

	require.Len(t, path.params, 3)
	var slippage []int
	var tips []uint64
	for _, p := range path.params {
		slippage = append(slippage, p.SlippageBps)
		tips = append(tips, p.TipLamports)
	}
	assert.Equal(t, []int{500, 700, 900}, slippage)
	assert.Equal(t, []uint64{100_000, 150_000, 225_000}, tips)
	assert.Less(t, path.params[0].PriorityFee, path.params[1].PriorityFee)
	assert.Less(t, path.params[1].PriorityFee, path.params[2].PriorityFee)
}

func TestRouter_ParamsRespectCeilings(t *testing.T) {
	r := newRouter(t, testConfig(), stub.NewRPCClient(), &fakePath{path: domain.PathDirect, submit: fails})

	intent := buyIntent("i1")
	intent.Constraints.MaxSlippageBps = 600
	assert.Equal(t, 500, r.params(intent, 0).SlippageBps)
	assert.Equal(t, 600, r.params(intent, 1).SlippageBps)
	assert.Equal(t, 600, r.params(intent, 5).SlippageBps)

	exit := &domain.TradeIntent{ID: "x", Token: "TokenMint", Side: domain.SideSell, AmountIn: 10, Emergency: true}
	p := r.params(exit, 0)
	assert.Equal(t, 1000, p.SlippageBps)
	assert.True(t, p.Panic)
	assert.Equal(t, uint64(300_000), p.TipLamports)
	assert.Equal(t, 3000, r.params(exit, 20).SlippageBps)

	intent.Constraints.MaxImpactBps = 150
	assert.Equal(t, 150, r.params(intent, 0).MaxImpactBps)
	assert.Equal(t, 2000, r.params(exit, 0).MaxImpactBps)
}

func TestRouter_ParamsContinueEscalationAcrossIntents(t *testing.T) {
	r := newRouter(t, testConfig(), stub.NewRPCClient(), &fakePath{path: domain.PathDirect, submit: fails})

	exit := &domain.TradeIntent{ID: "x", Token: "TokenMint", Side: domain.SideSell, AmountIn: 10, Emergency: true, PriorAttempts: 2}
	p := r.params(exit, 0)
	assert.Equal(t, 0, p.Round)
	assert.Equal(t, 1400, p.SlippageBps)
	assert.Equal(t, uint64(675_000), p.TipLamports)
	assert.Equal(t, uint64(1_000_000), r.params(exit, 1).TipLamports)

	exit.PriorAttempts = 0
	assert.Equal(t, uint64(300_000), r.params(exit, 0).TipLamports)
}

func TestRouter_ExhaustionFailsAndPauses(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 0
	a := &fakePath{path: domain.PathDirect, submit: fails}
	b := &fakePath{path: domain.PathRPC, submit: fails}
	r := newRouter(t, cfg, stub.NewRPCClient(), a, b)

	res, err := r.Execute(context.Background(), buyIntent("i1"))
	require.ErrorIs(t, err, domain.ErrExecutionFailed)
	assert.Nil(t, res.Fill)
	assert.Len(t, res.Attempts, 2)
	assert.Equal(t, 1, r.PauseStatus().ConsecutiveFailures)

	paused, _ := r.Paused()
	assert.False(t, paused)
	for _, id := range []string{"i2", "i3"} {
		_, err := r.Execute(context.Background(), buyIntent(id))
		require.ErrorIs(t, err, domain.ErrExecutionFailed)
	}
	paused, reason := r.Paused()
	assert.True(t, paused)
	assert.Contains(t, reason, "3 consecutive failures")
}

func TestRouter_AllRoundsCount(t *testing.T) {
	a := &fakePath{path: domain.PathDirect, submit: fails}
	b := &fakePath{path: domain.PathRPC, submit: fails}
	r := newRouter(t, testConfig(), stub.NewRPCClient(), a, b)

	res, err := r.Execute(context.Background(), buyIntent("i1"))
	require.ErrorIs(t, err, domain.ErrExecutionFailed)
	assert.Len(t, res.Attempts, 6)
	assert.Equal(t, 3, a.calls())
}

func TestRouter_SkippedPathsAreNotFailures(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 0
	skip := &fakePath{path: domain.PathDirect, submit: func(context.Context, Params) (*Submission, error) {
		return nil, skipped("no pool")
	}}
	chain := stub.NewRPCClient()
	confirmed(chain, "agg")
	r := newRouter(t, cfg, chain, skip, &fakePath{path: domain.PathAggregator, submit: lands("agg")})

	res, err := r.Execute(context.Background(), buyIntent("i1"))
	require.NoError(t, err)
	assert.Equal(t, AttemptSkipped, res.Attempts[0].Status)
	assert.Equal(t, domain.PathAggregator, res.Fill.Path)
}

func TestRouter_OnChainFailure(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 0
	chain := stub.NewRPCClient()
	chain.Statuses["bad"] = &solana.SignatureStatus{ConfirmationStatus: solana.CommitmentConfirmed, Err: "InstructionError"}
	r := newRouter(t, cfg, chain, &fakePath{path: domain.PathDirect, submit: lands("bad")})

	res, err := r.Execute(context.Background(), buyIntent("i1"))
	require.ErrorIs(t, err, domain.ErrExecutionFailed)
	assert.Equal(t, AttemptFailed, res.Attempts[0].Status)
	assert.Contains(t, res.Attempts[0].Error, ErrTxFailed.Error())
}

func TestRouter_DuplicateIntent(t *testing.T) {
	chain := stub.NewRPCClient()
	confirmed(chain, "sig")
	path := &fakePath{path: domain.PathDirect, submit: lands("sig")}
	r := newRouter(t, testConfig(), chain, path)

	first, err := r.Execute(context.Background(), buyIntent("i1"))
	require.NoError(t, err)
	second, err := r.Execute(context.Background(), buyIntent("i1"))
	require.NoError(t, err)

	assert.True(t, second.Duplicate)
	assert.Same(t, first.Fill, second.Fill)
	assert.Equal(t, 1, path.calls())
}

func TestRouter_SettlesFromTransaction(t *testing.T) {
	chain := stub.NewRPCClient()
	confirmed(chain, "buy", "sell")
	chain.AddTransaction(&solana.Transaction{
		Signature: "buy",
		Message:   &solana.TransactionMessage{AccountKeys: []string{"owner", "pool"}},
		Meta: &solana.TransactionMeta{
			Fee:               25_000,
			PreBalances:       []uint64{2_000_000_000, 0},
			PostBalances:      []uint64{1_998_975_000, 0},
			PostTokenBalances: []solana.TokenBalance{{Mint: "TokenMint", Owner: "owner", Amount: 4200}},
		},
	})
	chain.AddTransaction(&solana.Transaction{
		Signature: "sell",
		Message:   &solana.TransactionMessage{AccountKeys: []string{"owner", "pool"}},
		Meta: &solana.TransactionMeta{
			Fee:              5000,
			PreBalances:      []uint64{1_000_000_000, 0},
			PostBalances:     []uint64{1_000_895_000, 0},
			PreTokenBalances: []solana.TokenBalance{{Mint: "TokenMint", Owner: "owner", Amount: 4200}},
		},
	})
	buy := &fakePath{path: domain.PathDirect, submit: lands("buy")}
	r := newRouter(t, testConfig(), chain, buy)

	res, err := r.Execute(context.Background(), buyIntent("i1"))
	require.NoError(t, err)
	assert.Equal(t, uint64(4200), res.Fill.OutAmount)
	assert.Equal(t, uint64(25_000), res.Fill.FeeLamports)
	assert.True(t, res.Fill.Price.Equal(decimal.NewFromInt(1_000_000).Div(decimal.NewFromInt(4200))))

	r2 := newRouter(t, testConfig(), chain, &fakePath{path: domain.PathDirect, submit: lands("sell")})
	res, err = r2.Execute(context.Background(), &domain.TradeIntent{ID: "x1", Token: "TokenMint", Side: domain.SideSell, AmountIn: 4200})
	require.NoError(t, err)
	assert.Equal(t, uint64(900_000), res.Fill.OutAmount)
	assert.True(t, res.Fill.Price.Equal(decimal.NewFromInt(900_000).Div(decimal.NewFromInt(4200))))
}

func TestRouter_DryRunSkipsConfirmation(t *testing.T) {
	builder := &fakeBuilder{tx: &BuiltTx{Raw: []byte{1}, Signature: "simulated", ExpectedOut: 77}}
	r := newRouter(t, testConfig(), stub.NewRPCClient(), NewDryRunPath([]Builder{builder}))

	res, err := r.Execute(context.Background(), buyIntent("i1"))
	require.NoError(t, err)
	assert.Equal(t, PathDryRun, res.Fill.Path)
	assert.Equal(t, uint64(77), res.Fill.OutAmount)
}

func TestRouter_InvalidIntent(t *testing.T) {
	r := newRouter(t, testConfig(), stub.NewRPCClient(), &fakePath{path: domain.PathDirect, submit: fails})
	_, err := r.Execute(context.Background(), &domain.TradeIntent{ID: "i1", Token: "TokenMint"})
	assert.ErrorIs(t, err, ErrInvalidIntent)
}

func TestRouter_RecordLate(t *testing.T) {
	r := newRouter(t, testConfig(), stub.NewRPCClient(), &fakePath{path: domain.PathDirect, submit: fails})
	fill := &domain.Fill{IntentID: "i1", Signature: "late"}
	assert.True(t, r.RecordLate(fill))
	assert.False(t, r.RecordLate(fill))

	res, err := r.Execute(context.Background(), buyIntent("i1"))
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
}

func TestRouter_ObserverSeesEveryAttempt(t *testing.T) {
	chain := stub.NewRPCClient()
	confirmed(chain, "sig")
	var mu sync.Mutex
	var seen []AttemptStatus
	cfg := testConfig()
	r, err := NewRouter(Options{
		Config: cfg,
		Paths:  []Submitter{&fakePath{path: domain.PathBundle, submit: fails}, &fakePath{path: domain.PathDirect, submit: lands("sig")}},
		Chain:  chain,
		Observer: func(a Attempt) {
			mu.Lock()
			seen = append(seen, a.Status)
			mu.Unlock()
		},
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)

	_, err = r.Execute(context.Background(), buyIntent("i1"))
	require.NoError(t, err)
	assert.Equal(t, []AttemptStatus{AttemptFailed, AttemptSucceeded}, seen)
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.MaxSlippageBps = 100
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidSlippage)

	cfg = DefaultConfig()
	cfg.Paths = nil
	assert.ErrorIs(t, cfg.Validate(), ErrNoPaths)

	cfg = DefaultConfig()
	cfg.ConfirmPoll = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidTimeouts)
}

func TestRouter_TimedOutSubmissionLandsLate(t *testing.T) {
	chain := stub.NewRPCClient()
	cfg := testConfig()
	cfg.MaxRetries = 0
	cfg.AttemptTimeout = 30 * time.Millisecond
	cfg.LateWatch = 2 * time.Second
	r := newRouter(t, cfg, chain, &fakePath{path: domain.PathDirect, submit: lands("sigSlow")})

	res, err := r.Execute(context.Background(), buyIntent("i1"))
	require.ErrorIs(t, err, domain.ErrExecutionFailed)
	require.Len(t, res.Attempts, 1)
	assert.Equal(t, AttemptTimeout, res.Attempts[0].Status)
	assert.Equal(t, "sigSlow", res.Attempts[0].Signature)

	chain.SetStatus("sigSlow", &solana.SignatureStatus{ConfirmationStatus: solana.CommitmentConfirmed})

	select {
	case fill := <-r.Late():
		assert.Equal(t, "i1", fill.IntentID)
		assert.Equal(t, "sigSlow", fill.Signature)
		assert.Equal(t, domain.SideBuy, fill.Side)
	case <-time.After(time.Second):
		t.Fatal("timed-out submission landed but no late fill was reported")
	}
}

func TestRouter_EarlierRoundLandsAfterLaterRoundWins(t *testing.T) {
	chain := stub.NewRPCClient()
	cfg := testConfig()
	cfg.MaxRetries = 1
	cfg.AttemptTimeout = 30 * time.Millisecond
	cfg.LateWatch = 2 * time.Second

	var mu sync.Mutex
	n := 0
	path := &fakePath{path: domain.PathDirect, submit: func(context.Context, Params) (*Submission, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		sig := fmt.Sprintf("sig%d", n)
		if n == 2 {
			chain.SetStatus(sig, &solana.SignatureStatus{ConfirmationStatus: solana.CommitmentConfirmed})
		}
		return &Submission{Signature: sig, Endpoint: "primary", ExpectedOut: 1000}, nil
	}}
	r := newRouter(t, cfg, chain, path)

	res, err := r.Execute(context.Background(), buyIntent("i1"))
	require.NoError(t, err)
	assert.Equal(t, "sig2", res.Fill.Signature)

	chain.SetStatus("sig1", &solana.SignatureStatus{ConfirmationStatus: solana.CommitmentConfirmed})
	select {
	case fill := <-r.Late():
		assert.Equal(t, "sig1", fill.Signature)
	case <-time.After(time.Second):
		t.Fatal("first-round submission landed unseen")
	}
}
