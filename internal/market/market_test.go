package market

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-cluster-sniper/internal/domain"
	"solana-cluster-sniper/internal/httpx"
	"solana-cluster-sniper/internal/raydium"
	"solana-cluster-sniper/internal/solana"
	"solana-cluster-sniper/internal/solana/stub"
)

const testToken = "7GCihgDB8fe6KNjn2MYtkzZcRjQy3t9GHdC8uHYmW2hr"

const pairsJSON = `{"pairs":[
 {"chainId":"solana","dexId":"orca","pairAddress":"orcaPool","baseToken":{"address":"%[1]s"},"quoteToken":{"address":"So11111111111111111111111111111111111111112"},
  "priceNative":"0.00001","priceUsd":"0.0015","liquidity":{"usd":1000,"base":100000,"quote":1},"pairCreatedAt":1700000000000},
 {"chainId":"solana","dexId":"raydium","pairAddress":"rayPool","baseToken":{"address":"%[1]s"},"quoteToken":{"address":"So11111111111111111111111111111111111111112"},
  "priceNative":"0.00001","priceUsd":"0.0015","liquidity":{"usd":25000,"base":5000000,"quote":50},"pairCreatedAt":1700000000000,"priceChange":{"m5":25}},
 {"chainId":"ethereum","dexId":"uniswap","pairAddress":"eth","baseToken":{"address":"%[1]s"},"quoteToken":{"address":"x"},"liquidity":{"usd":999999}}
]}`

const solPairsJSON = `{"pairs":[
 {"chainId":"solana","dexId":"raydium","baseToken":{"address":"So11111111111111111111111111111111111111112"},"quoteToken":{"symbol":"USDC"},"priceUsd":"150.25","liquidity":{"usd":9000000}},
 {"chainId":"solana","dexId":"orca","baseToken":{"address":"So11111111111111111111111111111111111111112"},"quoteToken":{"symbol":"USDT"},"priceUsd":"149.00","liquidity":{"usd":100}},
 {"chainId":"solana","dexId":"meteora","baseToken":{"address":"So11111111111111111111111111111111111111112"},"quoteToken":{"symbol":"BONK"},"priceUsd":"1","liquidity":{"usd":99999999}}
]}`

func dexServer(t *testing.T) *DexScreener {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/latest/dex/tokens/" + wsolMint:
			_, _ = w.Write([]byte(solPairsJSON))
		case "/latest/dex/tokens/" + testToken:
			_, _ = fmt.Fprintf(w, pairsJSON, testToken)
		default:
			_, _ = w.Write([]byte(`{"pairs":null}`))
		}
	}))
	t.Cleanup(srv.Close)
	return NewDexScreener(srv.URL, httpx.NewClient(time.Second))
}

func TestDexScreener_BestPair(t *testing.T) {
	d := dexServer(t)
	p, err := d.BestPair(context.Background(), testToken)
	require.NoError(t, err)
	assert.Equal(t, "rayPool", p.PairAddress)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), p.CreatedAt())

	_, err = d.BestPair(context.Background(), "unknown")
	assert.ErrorIs(t, err, ErrNoPair)
}

func TestDexScreener_SOLPrice(t *testing.T) {
	d := dexServer(t)
	p, err := d.SOLPriceUSD(context.Background())
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("150.25").Equal(p))
}

func mintData(decimals uint8, mintAuth, freezeAuth bool) []byte {
	buf := make([]byte, mintAccountSize)
	if mintAuth {
		binary.LittleEndian.PutUint32(buf[mintAuthorityOption:], 1)
	}
	if freezeAuth {
		binary.LittleEndian.PutUint32(buf[freezeAuthorityOption:], 1)
	}
	buf[mintDecimals] = decimals
	return buf
}

func TestParseMint(t *testing.T) {
	m, err := ParseMint(mintData(6, false, true))
	require.NoError(t, err)
	assert.Equal(t, uint8(6), m.Decimals)
	assert.True(t, m.MintAuthorityRenounced)
	assert.False(t, m.FreezeAuthorityRenounced)

	_, err = ParseMint(make([]byte, 10))
	assert.Error(t, err)
}

type fakePairs struct {
	pair *Pair
	err  error
}

func (f fakePairs) BestPair(context.Context, string) (*Pair, error) { return f.pair, f.err }

type fakeRoutes struct{ route *raydium.Route }

func (f fakeRoutes) Route(context.Context, solana.PublicKey) (*raydium.Route, error) {
	return f.route, nil
}

func TestLive_EstimatesReservesWithoutRoute(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.SetAccount(testToken, &solana.AccountInfo{Data: mintData(6, false, false)})

	pair := &Pair{DexID: "pumpswap", PairAddress: "pool", PriceUSD: "0.002", PairCreatedAt: 1700000000000}
	pair.Liquidity.USD = 12000
	pair.Liquidity.Base = 1_000_000 // whole tokens
	pair.Liquidity.Quote = 40       // SOL

	live := NewLive(fakePairs{pair: pair}, nil, rpc, LiveConfig{SeedFromChange: false}, zerolog.Nop())
	now := time.Unix(1700000600, 0)
	live.now = func() time.Time { return now }

	snap, err := live.Snapshot(context.Background(), testToken)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000_000_000), snap.ReserveToken)
	assert.Equal(t, uint64(40_000_000_000), snap.ReserveSOL)
	assert.True(t, decimal.NewFromFloat(0.04).Equal(snap.PriceLamports))
	assert.True(t, snap.MintAuthorityRenounced)
	assert.Equal(t, 10*time.Minute, snap.PoolAge(now))
	require.Len(t, snap.PriceHistory, 1)
}

func TestLive_UsesRaydiumReservesAndSeedsHistory(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.SetAccount(testToken, &solana.AccountInfo{Data: mintData(6, false, false)})

	mint := solana.MustPublicKey(testToken)
	route := &raydium.Route{
		Pool:         &raydium.Pool{BaseMint: mint, QuoteMint: solana.MustPublicKey(wsolMint)},
		BaseReserve:  2_000_000,
		QuoteReserve: 1_000_000,
	}
	pair := &Pair{DexID: "raydium", PairAddress: "58oQChx4yWmvKdwLLZzBi4ChoCc2fqCUWBkwMihLYQo2", PriceUSD: "1"}
	pair.Liquidity.USD = 9000
	pair.PriceChange.M5 = 25

	live := NewLive(fakePairs{pair: pair}, fakeRoutes{route: route}, rpc, DefaultLiveConfig(), zerolog.Nop())
	snap, err := live.Snapshot(context.Background(), testToken)
	require.NoError(t, err)

	assert.Equal(t, uint64(2_000_000), snap.ReserveToken)
	assert.Equal(t, uint64(1_000_000), snap.ReserveSOL)
	assert.True(t, decimal.NewFromFloat(0.5).Equal(snap.PriceLamports))
	require.Len(t, snap.PriceHistory, 2)
	assert.True(t, decimal.NewFromFloat(0.4).Equal(snap.PriceHistory[0].Price), "price before a +25%% move")
}

func TestLive_UnavailableOnPairError(t *testing.T) {
	live := NewLive(fakePairs{err: errors.New("boom")}, nil, stub.NewRPCClient(), DefaultLiveConfig(), zerolog.Nop())
	_, err := live.Snapshot(context.Background(), testToken)
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
}

func TestHistory_PrunesWindow(t *testing.T) {
	h := NewHistory(5 * time.Minute)
	t0 := time.Unix(0, 0)
	h.Record("t", t0, decimal.NewFromInt(1))
	h.Record("t", t0.Add(3*time.Minute), decimal.NewFromInt(2))
	pts := h.Record("t", t0.Add(7*time.Minute), decimal.NewFromInt(3))
	require.Len(t, pts, 2)
	assert.True(t, pts[0].Price.Equal(decimal.NewFromInt(2)))

	h.Seed("t", t0.Add(time.Minute), decimal.NewFromInt(9))
	pts = h.Record("t", t0.Add(7*time.Minute), decimal.NewFromInt(3))
	require.Len(t, pts, 2, "seed older than window is pruned, duplicate timestamp ignored")
}

type countingProvider struct {
	calls int
	snap  *domain.MarketSnapshot
}

func (c *countingProvider) Snapshot(context.Context, string) (*domain.MarketSnapshot, error) {
	c.calls++
	return c.snap, nil
}

func TestCached_MemoryTTL(t *testing.T) {
	next := &countingProvider{snap: &domain.MarketSnapshot{Token: testToken, LiquidityUSD: decimal.NewFromInt(5000)}}
	mc := NewMemoryCache()
	now := time.Unix(100, 0)
	mc.now = func() time.Time { return now }
	c := NewCached(next, mc, 5*time.Second, zerolog.Nop())

	ctx := context.Background()
	s1, err := c.Snapshot(ctx, testToken)
	require.NoError(t, err)
	s2, err := c.Snapshot(ctx, testToken)
	require.NoError(t, err)
	assert.Equal(t, 1, next.calls)
	assert.True(t, s1.LiquidityUSD.Equal(s2.LiquidityUSD))

	now = now.Add(5 * time.Second)
	_, err = c.Snapshot(ctx, testToken)
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls, "entry expires at ttl")

	c.Invalidate(ctx, testToken)
	_, err = c.Snapshot(ctx, testToken)
	require.NoError(t, err)
	assert.Equal(t, 3, next.calls)
}

func TestRedisCache(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedisCache(db, "sniper:")
	ctx := context.Background()

	mock.ExpectGet("sniper:a").SetVal("payload")
	v, ok, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("payload"), v)

	mock.ExpectGet("sniper:missing").RedisNil()
	_, ok, err = c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectGet("sniper:bad").SetErr(errors.New("conn reset"))
	_, _, err = c.Get(ctx, "bad")
	assert.Error(t, err)

	mock.ExpectSet("sniper:a", []byte("v"), 5*time.Second).SetVal("OK")
	require.NoError(t, c.Set(ctx, "a", []byte("v"), 5*time.Second))

	mock.ExpectDel("sniper:a").SetVal(1)
	require.NoError(t, c.Delete(ctx, "a"))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCached_RedisFailureFallsThrough(t *testing.T) {
	db, mock := redismock.NewClientMock()
	next := &countingProvider{snap: &domain.MarketSnapshot{Token: testToken}}
	c := NewCached(next, NewRedisCache(db, ""), time.Second, zerolog.Nop())

	mock.ExpectGet("snapshot:" + testToken).SetErr(errors.New("down"))

	snap, err := c.Snapshot(context.Background(), testToken)
	require.NoError(t, err)
	assert.Equal(t, testToken, snap.Token)
	assert.Equal(t, 1, next.calls)
}

type flakyPricer struct {
	price decimal.Decimal
	err   error
	calls int
}

func (f *flakyPricer) SOLPriceUSD(context.Context) (decimal.Decimal, error) {
	f.calls++
	return f.price, f.err
}

func TestCachedSOLPrice(t *testing.T) {
	up := &flakyPricer{price: decimal.NewFromInt(150)}
	c := NewCachedSOLPrice(up, 30*time.Second, 5*time.Minute)
	now := time.Unix(0, 0)
	c.now = func() time.Time { return now }

	ctx := context.Background()
	p, err := c.SOLPriceUSD(ctx)
	require.NoError(t, err)
	assert.True(t, p.Equal(decimal.NewFromInt(150)))

	_, _ = c.SOLPriceUSD(ctx)
	assert.Equal(t, 1, up.calls)

	now = now.Add(time.Minute)
	up.err = errors.New("down")
	p, err = c.SOLPriceUSD(ctx)
	require.NoError(t, err, "last good price within max age")
	assert.True(t, p.Equal(decimal.NewFromInt(150)))

	now = now.Add(10 * time.Minute)
	_, err = c.SOLPriceUSD(ctx)
	assert.Error(t, err)
}
