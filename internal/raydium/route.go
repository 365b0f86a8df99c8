package raydium

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"solana-cluster-sniper/internal/solana"
)

// ErrAccountMissing is returned when the RPC does not know a required account.
var ErrAccountMissing = errors.New("account not found")

// Route is a pool with its market and current vault reserves.
type Route struct {
	Pool         *Pool
	Market       *Market
	BaseReserve  uint64
	QuoteReserve uint64
	FetchedAt    time.Time
}

// Reserves returns (reserveIn, reserveOut) for a swap paying inputMint.
func (r *Route) Reserves(inputMint solana.PublicKey) (uint64, uint64, error) {
	switch inputMint {
	case r.Pool.BaseMint:
		return r.BaseReserve, r.QuoteReserve, nil
	case r.Pool.QuoteMint:
		return r.QuoteReserve, r.BaseReserve, nil
	}
	return 0, 0, ErrMintNotInPool
}

// LoaderConfig sets cache lifetimes. Reserves are hot; pool and market layout are cold.
type LoaderConfig struct {
	HotTTL  time.Duration
	ColdTTL time.Duration
	MaxSize int
}

// DefaultLoaderConfig returns 5s reserve and 30s layout lifetimes.
func DefaultLoaderConfig() LoaderConfig {
	return LoaderConfig{HotTTL: 5 * time.Second, ColdTTL: 30 * time.Second, MaxSize: 256}
}

type layoutEntry struct {
	pool    *Pool
	market  *Market
	expires time.Time
}

type reserveEntry struct {
	base, quote uint64
	fetched     time.Time
	expires     time.Time
}

// Loader resolves routes over RPC with a two-tier cache.
type Loader struct {
	rpc solana.RPCClient
	cfg LoaderConfig
	log zerolog.Logger
	now func() time.Time

	mu       sync.Mutex
	layouts  map[solana.PublicKey]layoutEntry
	reserves map[solana.PublicKey]reserveEntry
}

// NewLoader creates a Loader.
func NewLoader(rpc solana.RPCClient, cfg LoaderConfig, log zerolog.Logger) *Loader {
	def := DefaultLoaderConfig()
	if cfg.HotTTL <= 0 {
		cfg.HotTTL = def.HotTTL
	}
	if cfg.ColdTTL <= 0 {
		cfg.ColdTTL = def.ColdTTL
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = def.MaxSize
	}
	return &Loader{
		rpc:      rpc,
		cfg:      cfg,
		log:      log.With().Str("component", "raydium").Logger(),
		now:      time.Now,
		layouts:  make(map[solana.PublicKey]layoutEntry),
		reserves: make(map[solana.PublicKey]reserveEntry),
	}
}

// Route returns pool, market and reserves for poolID.
func (l *Loader) Route(ctx context.Context, poolID solana.PublicKey) (*Route, error) {
	pool, market, err := l.layout(ctx, poolID)
	if err != nil {
		return nil, err
	}

	now := l.now()
	l.mu.Lock()
	res, ok := l.reserves[poolID]
	l.mu.Unlock()
	if !ok || now.After(res.expires) {
		accts, err := l.rpc.GetMultipleAccounts(ctx, []string{pool.BaseVault.String(), pool.QuoteVault.String()})
		if err != nil {
			return nil, fmt.Errorf("fetch vaults: %w", err)
		}
		if len(accts) != 2 || accts[0] == nil || accts[1] == nil {
			return nil, fmt.Errorf("vaults of %s: %w", poolID, ErrAccountMissing)
		}
		base, err := TokenAccountAmount(accts[0].Data)
		if err != nil {
			return nil, err
		}
		quote, err := TokenAccountAmount(accts[1].Data)
		if err != nil {
			return nil, err
		}
		res = reserveEntry{base: base, quote: quote, fetched: now, expires: now.Add(l.cfg.HotTTL)}
		l.mu.Lock()
		evictOne(l.reserves, l.cfg.MaxSize)
		l.reserves[poolID] = res
		l.mu.Unlock()
	}

	return &Route{Pool: pool, Market: market, BaseReserve: res.base, QuoteReserve: res.quote, FetchedAt: res.fetched}, nil
}

func (l *Loader) layout(ctx context.Context, poolID solana.PublicKey) (*Pool, *Market, error) {
	now := l.now()
	l.mu.Lock()
	e, ok := l.layouts[poolID]
	l.mu.Unlock()
	if ok && now.Before(e.expires) {
		return e.pool, e.market, nil
	}

	accts, err := l.rpc.GetMultipleAccounts(ctx, []string{poolID.String()})
	if err != nil {
		return nil, nil, fmt.Errorf("fetch pool: %w", err)
	}
	if len(accts) == 0 || accts[0] == nil {
		return nil, nil, fmt.Errorf("pool %s: %w", poolID, ErrAccountMissing)
	}
	pool, err := ParsePool(poolID, accts[0].Data)
	if err != nil {
		return nil, nil, err
	}

	accts, err = l.rpc.GetMultipleAccounts(ctx, []string{pool.MarketID.String()})
	if err != nil {
		return nil, nil, fmt.Errorf("fetch market: %w", err)
	}
	if len(accts) == 0 || accts[0] == nil {
		return nil, nil, fmt.Errorf("market %s: %w", pool.MarketID, ErrAccountMissing)
	}
	program := pool.MarketProgram
	if program.IsZero() {
		program = solana.MustPublicKey(OpenBookProgramID)
	}
	market, err := ParseMarket(pool.MarketID, program, accts[0].Data)
	if err != nil {
		return nil, nil, err
	}

	l.mu.Lock()
	evictOne(l.layouts, l.cfg.MaxSize)
	l.layouts[poolID] = layoutEntry{pool: pool, market: market, expires: now.Add(l.cfg.ColdTTL)}
	l.mu.Unlock()
	l.log.Debug().Str("pool", poolID.String()).Str("market", pool.MarketID.String()).Msg("pool layout cached")
	return pool, market, nil
}

// Invalidate drops cached reserves so the next Route refetches them.
func (l *Loader) Invalidate(poolID solana.PublicKey) {
	l.mu.Lock()
	delete(l.reserves, poolID)
	l.mu.Unlock()
}

// evictOne removes an arbitrary entry when m is full. Caller holds mu.
func evictOne[V any](m map[solana.PublicKey]V, max int) {
	if len(m) < max {
		return
	}
	for k := range m {
		delete(m, k)
		return
	}
}
