package market

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"solana-cluster-sniper/internal/domain"
	"solana-cluster-sniper/internal/raydium"
	"solana-cluster-sniper/internal/solana"
)

// PairSource resolves the best SOL pair for a token.
type PairSource interface {
	BestPair(ctx context.Context, token string) (*Pair, error)
}

// RouteSource resolves on-chain reserves for a Raydium pool.
type RouteSource interface {
	Route(ctx context.Context, pool solana.PublicKey) (*raydium.Route, error)
}

// LiveConfig tunes the live provider.
type LiveConfig struct {
	HistoryWindow time.Duration
	// SeedFromChange back-fills one sample from the pair's 5 minute price change.
	SeedFromChange bool
}

// DefaultLiveConfig keeps ten minutes of samples.
func DefaultLiveConfig() LiveConfig {
	return LiveConfig{HistoryWindow: 10 * time.Minute, SeedFromChange: true}
}

// Live builds snapshots from DexScreener metadata, the mint account and pool reserves.
type Live struct {
	pairs   PairSource
	routes  RouteSource
	rpc     solana.RPCClient
	history *History
	cfg     LiveConfig
	log     zerolog.Logger
	now     func() time.Time
}

// NewLive creates a Live provider. routes may be nil, in which case reserves
// are estimated from the pair's reported liquidity.
func NewLive(pairs PairSource, routes RouteSource, rpc solana.RPCClient, cfg LiveConfig, log zerolog.Logger) *Live {
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = DefaultLiveConfig().HistoryWindow
	}
	return &Live{
		pairs:   pairs,
		routes:  routes,
		rpc:     rpc,
		history: NewHistory(cfg.HistoryWindow),
		cfg:     cfg,
		log:     log.With().Str("component", "market").Logger(),
		now:     time.Now,
	}
}

var _ Provider = (*Live)(nil)

func unavailable(what string, err error) error {
	if errors.Is(err, domain.ErrDataUnavailable) {
		return fmt.Errorf("%s: %w", what, err)
	}
	return fmt.Errorf("%s: %w: %v", what, domain.ErrDataUnavailable, err)
}

// Snapshot implements Provider.
func (l *Live) Snapshot(ctx context.Context, token string) (*domain.MarketSnapshot, error) {
	pair, err := l.pairs.BestPair(ctx, token)
	if err != nil {
		return nil, unavailable("pair", err)
	}
	mint, err := FetchMint(ctx, l.rpc, token)
	if err != nil {
		return nil, unavailable("mint", err)
	}

	now := l.now()
	snap := &domain.MarketSnapshot{
		Token:                    token,
		Pool:                     pair.PairAddress,
		Dex:                      pair.DexID,
		LiquidityUSD:             decimal.NewFromFloat(pair.Liquidity.USD),
		PoolCreated:              pair.CreatedAt(),
		Decimals:                 mint.Decimals,
		MintAuthorityRenounced:   mint.MintAuthorityRenounced,
		FreezeAuthorityRenounced: mint.FreezeAuthorityRenounced,
		FetchedAt:                now,
	}
	if usd, err := decimal.NewFromString(pair.PriceUSD); err == nil {
		snap.PriceUSD = usd
	}

	if err := l.fillReserves(ctx, snap, pair, mint.Decimals); err != nil {
		return nil, unavailable("reserves", err)
	}
	if !snap.HasReserves() {
		return nil, unavailable("reserves", fmt.Errorf("empty pool %s", snap.Pool))
	}
	snap.PriceLamports = domain.Uint64(snap.ReserveSOL).Div(domain.Uint64(snap.ReserveToken))

	if l.cfg.SeedFromChange && pair.PriceChange.M5 > -100 && pair.PriceChange.M5 != 0 {
		prior := snap.PriceLamports.Div(decimal.NewFromFloat(1 + pair.PriceChange.M5/100))
		l.history.Seed(token, now.Add(-5*time.Minute), prior)
	}
	snap.PriceHistory = l.history.Record(token, now, snap.PriceLamports)
	return snap, nil
}

// fillReserves reads vault balances for Raydium pools and estimates them otherwise.
func (l *Live) fillReserves(ctx context.Context, snap *domain.MarketSnapshot, pair *Pair, decimals uint8) error {
	if l.routes != nil && pair.DexID == "raydium" {
		id, err := solana.ParsePublicKey(pair.PairAddress)
		if err != nil {
			return err
		}
		route, err := l.routes.Route(ctx, id)
		if err != nil {
			return err
		}
		mint, err := solana.ParsePublicKey(snap.Token)
		if err != nil {
			return err
		}
		tokenReserve, solReserve, err := route.Reserves(mint)
		if err != nil {
			return err
		}
		snap.ReserveToken, snap.ReserveSOL = tokenReserve, solReserve
		if !route.Pool.OpenTime.IsZero() && snap.PoolCreated.IsZero() {
			snap.PoolCreated = route.Pool.OpenTime
		}
		return nil
	}

	snap.ReserveToken = uint64(pair.Liquidity.Base * math.Pow10(int(decimals)))
	snap.ReserveSOL = uint64(pair.Liquidity.Quote * domain.LamportsPerSOL)
	l.log.Debug().Str("token", snap.Token).Str("dex", pair.DexID).Msg("reserves estimated from pair liquidity")
	return nil
}
