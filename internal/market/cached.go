package market

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"solana-cluster-sniper/internal/domain"
)

// Cached fronts a Provider with a short-lived snapshot cache. Cache failures
// fall through to the provider; they never turn into stale reads.
type Cached struct {
	next  Provider
	cache Cache
	ttl   time.Duration
	log   zerolog.Logger
}

// NewCached wraps next. ttl bounds how old a served snapshot may be.
func NewCached(next Provider, cache Cache, ttl time.Duration, log zerolog.Logger) *Cached {
	return &Cached{next: next, cache: cache, ttl: ttl, log: log.With().Str("component", "market_cache").Logger()}
}

var _ Provider = (*Cached)(nil)

func snapshotKey(token string) string { return "snapshot:" + token }

// Snapshot implements Provider.
func (c *Cached) Snapshot(ctx context.Context, token string) (*domain.MarketSnapshot, error) {
	if raw, ok, err := c.cache.Get(ctx, snapshotKey(token)); err != nil {
		c.log.Warn().Err(err).Str("token", token).Msg("cache get failed")
	} else if ok {
		var snap domain.MarketSnapshot
		if err := json.Unmarshal(raw, &snap); err == nil {
			return &snap, nil
		}
	}

	snap, err := c.next.Snapshot(ctx, token)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(snap); err == nil {
		if err := c.cache.Set(ctx, snapshotKey(token), raw, c.ttl); err != nil {
			c.log.Warn().Err(err).Str("token", token).Msg("cache set failed")
		}
	}
	return snap, nil
}

// Invalidate forces the next Snapshot for token to hit the provider.
func (c *Cached) Invalidate(ctx context.Context, token string) {
	_ = c.cache.Delete(ctx, snapshotKey(token))
}

// CachedSOLPrice memoizes a SOLPricer for ttl and serves the last good price
// for up to maxAge when the upstream fails.
type CachedSOLPrice struct {
	next   SOLPricer
	ttl    time.Duration
	maxAge time.Duration
	now    func() time.Time

	mu      sync.Mutex
	price   decimal.Decimal
	fetched time.Time
}

// NewCachedSOLPrice wraps next.
func NewCachedSOLPrice(next SOLPricer, ttl, maxAge time.Duration) *CachedSOLPrice {
	return &CachedSOLPrice{next: next, ttl: ttl, maxAge: maxAge, now: time.Now}
}

// SOLPriceUSD implements SOLPricer.
func (c *CachedSOLPrice) SOLPriceUSD(ctx context.Context) (decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if !c.fetched.IsZero() && now.Sub(c.fetched) < c.ttl {
		return c.price, nil
	}
	p, err := c.next.SOLPriceUSD(ctx)
	if err != nil {
		if !c.fetched.IsZero() && now.Sub(c.fetched) < c.maxAge {
			return c.price, nil
		}
		return decimal.Zero, err
	}
	c.price, c.fetched = p, now
	return p, nil
}

var _ SOLPricer = (*CachedSOLPrice)(nil)
