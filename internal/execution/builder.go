package execution

import (
	"context"
	"errors"
	"fmt"

	"solana-cluster-sniper/internal/amm"
	"solana-cluster-sniper/internal/domain"
	"solana-cluster-sniper/internal/raydium"
	"solana-cluster-sniper/internal/solana"
)

// ErrSkipped means a path cannot serve an intent at the current parameters.
// It never counts as a failure.
var ErrSkipped = errors.New("path skipped")

// Params are the per-round execution parameters.
type Params struct {
	Round        int
	PriorityFee  uint64 // micro-lamports per compute unit
	TipLamports  uint64
	SlippageBps  int
	MaxImpactBps int
	Panic        bool
}

// BuiltTx is a signed transaction ready to submit.
type BuiltTx struct {
	Raw         []byte
	Signature   string
	ExpectedOut uint64
	MinOut      uint64
	ImpactBps   int
	FeeLamports uint64
}

// Builder turns an intent into a signed swap transaction.
type Builder interface {
	Name() string
	Build(ctx context.Context, intent *domain.TradeIntent, p Params) (*BuiltTx, error)
}

// RouteSource resolves a Raydium pool with live reserves.
type RouteSource interface {
	Route(ctx context.Context, pool solana.PublicKey) (*raydium.Route, error)
}

// BlockhashSource returns a recent blockhash.
type BlockhashSource interface {
	GetLatestBlockhash(ctx context.Context) (string, error)
}

func skipped(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrSkipped, fmt.Sprintf(format, args...))
}

// DirectBuilder swaps through the token's Raydium AMM V4 pool.
type DirectBuilder struct {
	routes  RouteSource
	chain   BlockhashSource
	signer  solana.Signer
	cuLimit uint32
}

// NewDirectBuilder creates a DirectBuilder.
func NewDirectBuilder(routes RouteSource, chain BlockhashSource, signer solana.Signer, cuLimit uint32) *DirectBuilder {
	if cuLimit == 0 {
		cuLimit = 200_000
	}
	return &DirectBuilder{routes: routes, chain: chain, signer: signer, cuLimit: cuLimit}
}

func (b *DirectBuilder) Name() string { return "raydium" }

// Build quotes against live reserves and assembles the swap. Buys wrap SOL
// into a temporary WSOL account; both sides close it afterwards.
func (b *DirectBuilder) Build(ctx context.Context, intent *domain.TradeIntent, p Params) (*BuiltTx, error) {
	if intent.Pool == "" {
		return nil, skipped("no direct pool for %s", intent.Token)
	}
	poolID, err := solana.ParsePublicKey(intent.Pool)
	if err != nil {
		return nil, skipped("pool %q: %v", intent.Pool, err)
	}
	mint, err := solana.ParsePublicKey(intent.Token)
	if err != nil {
		return nil, fmt.Errorf("token %q: %w", intent.Token, err)
	}
	route, err := b.routes.Route(ctx, poolID)
	if err != nil {
		return nil, fmt.Errorf("load route: %w", err)
	}

	wsol := solana.MustPublicKey(solana.WrappedSOLMint)
	input := wsol
	if intent.Side == domain.SideSell {
		input = mint
	}
	rIn, rOut, err := route.Reserves(input)
	if err != nil {
		return nil, skipped("pool %s does not trade %s", intent.Pool, input)
	}
	q, err := amm.NewQuote(rIn, rOut, intent.AmountIn, route.Pool.Fee, p.SlippageBps)
	if err != nil {
		return nil, skipped("quote: %v", err)
	}
	if p.MaxImpactBps > 0 && q.ImpactBps > p.MaxImpactBps {
		return nil, skipped("impact %d bps over %d", q.ImpactBps, p.MaxImpactBps)
	}

	owner := b.signer.PublicKey()
	createWSOL, wsolATA, err := solana.CreateAssociatedTokenAccountIdempotent(owner, owner, wsol)
	if err != nil {
		return nil, err
	}
	createToken, tokenATA, err := solana.CreateAssociatedTokenAccountIdempotent(owner, owner, mint)
	if err != nil {
		return nil, err
	}

	swap := raydium.SwapParams{
		Pool:     route.Pool,
		Market:   route.Market,
		Owner:    owner,
		AmountIn: intent.AmountIn,
		MinOut:   q.MinAmountOut,
	}
	ixs := []solana.Instruction{solana.SetComputeUnitLimit(b.cuLimit)}
	if p.PriorityFee > 0 {
		ixs = append(ixs, solana.SetComputeUnitPrice(p.PriorityFee))
	}
	if intent.Side == domain.SideBuy {
		swap.Source, swap.Destination = wsolATA, tokenATA
		ixs = append(ixs,
			createWSOL,
			solana.Transfer(owner, wsolATA, intent.AmountIn),
			solana.SyncNative(wsolATA),
			createToken,
		)
	} else {
		swap.Source, swap.Destination = tokenATA, wsolATA
		ixs = append(ixs, createWSOL)
	}
	swapIx, err := raydium.SwapBaseIn(swap)
	if err != nil {
		return nil, err
	}
	ixs = append(ixs, swapIx, solana.CloseAccount(wsolATA, owner, owner))

	blockhash, err := b.chain.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("blockhash: %w", err)
	}
	raw, sig, err := solana.BuildTransaction(b.signer, blockhash, ixs)
	if err != nil {
		return nil, err
	}
	return &BuiltTx{
		Raw:         raw,
		Signature:   sig,
		ExpectedOut: q.AmountOut,
		MinOut:      q.MinAmountOut,
		ImpactBps:   q.ImpactBps,
		FeeLamports: solana.PriorityFeeLamports(p.PriorityFee, b.cuLimit),
	}, nil
}

// firstBuilt returns the first builder output that is not skipped.
func firstBuilt(ctx context.Context, builders []Builder, intent *domain.TradeIntent, p Params) (*BuiltTx, error) {
	var reasons []error
	for _, b := range builders {
		tx, err := b.Build(ctx, intent, p)
		if err == nil {
			return tx, nil
		}
		if !errors.Is(err, ErrSkipped) {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		reasons = append(reasons, err)
	}
	if len(reasons) == 0 {
		return nil, skipped("no builders")
	}
	return nil, errors.Join(reasons...)
}
