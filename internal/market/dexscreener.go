package market

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"solana-cluster-sniper/internal/domain"
	"solana-cluster-sniper/internal/httpx"
)

// DefaultDexScreenerURL is the public DexScreener API root.
const DefaultDexScreenerURL = "https://api.dexscreener.com"

const wsolMint = "So11111111111111111111111111111111111111112"

// ErrNoPair is returned when no Solana pair quoted in SOL exists for a token.
var ErrNoPair = errors.New("no SOL pair listed")

// Pair is the subset of a DexScreener pair used here.
type Pair struct {
	ChainID     string `json:"chainId"`
	DexID       string `json:"dexId"`
	PairAddress string `json:"pairAddress"`
	BaseToken   struct {
		Address string `json:"address"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	QuoteToken struct {
		Address string `json:"address"`
		Symbol  string `json:"symbol"`
	} `json:"quoteToken"`
	PriceNative string `json:"priceNative"`
	PriceUSD    string `json:"priceUsd"`
	Liquidity   struct {
		USD   float64 `json:"usd"`
		Base  float64 `json:"base"`
		Quote float64 `json:"quote"`
	} `json:"liquidity"`
	PairCreatedAt int64 `json:"pairCreatedAt"` // unix ms
	PriceChange   struct {
		M5 float64 `json:"m5"`
		H1 float64 `json:"h1"`
	} `json:"priceChange"`
}

// CreatedAt returns the pair creation time, zero when unknown.
func (p *Pair) CreatedAt() time.Time {
	if p.PairCreatedAt <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(p.PairCreatedAt).UTC()
}

// DexScreener is a client for the token pairs endpoint.
type DexScreener struct {
	baseURL string
	http    *httpx.Client
}

// NewDexScreener creates a client. An empty baseURL uses the public API.
func NewDexScreener(baseURL string, client *httpx.Client) *DexScreener {
	if baseURL == "" {
		baseURL = DefaultDexScreenerURL
	}
	return &DexScreener{baseURL: strings.TrimRight(baseURL, "/"), http: client}
}

// Pairs lists every pair DexScreener knows for token.
func (d *DexScreener) Pairs(ctx context.Context, token string) ([]Pair, error) {
	var resp struct {
		Pairs []Pair `json:"pairs"`
	}
	if err := d.http.GetJSON(ctx, d.baseURL+"/latest/dex/tokens/"+token, nil, &resp); err != nil {
		return nil, fmt.Errorf("dexscreener %s: %w", token, err)
	}
	return resp.Pairs, nil
}

// BestPair picks the deepest Solana pair with token as base and SOL as quote,
// preferring Raydium pools on equal footing.
func (d *DexScreener) BestPair(ctx context.Context, token string) (*Pair, error) {
	pairs, err := d.Pairs(ctx, token)
	if err != nil {
		return nil, err
	}
	var best *Pair
	for i := range pairs {
		p := &pairs[i]
		if p.ChainID != "solana" || p.BaseToken.Address != token || p.QuoteToken.Address != wsolMint {
			continue
		}
		if best == nil || p.Liquidity.USD > best.Liquidity.USD ||
			(p.Liquidity.USD == best.Liquidity.USD && p.DexID == "raydium" && best.DexID != "raydium") {
			best = p
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%s: %w", token, ErrNoPair)
	}
	return best, nil
}

// SOLPriceUSD returns the USD price of SOL from its deepest stablecoin pair.
func (d *DexScreener) SOLPriceUSD(ctx context.Context) (decimal.Decimal, error) {
	pairs, err := d.Pairs(ctx, wsolMint)
	if err != nil {
		return decimal.Zero, err
	}
	var (
		best  decimal.Decimal
		depth float64
	)
	for _, p := range pairs {
		if p.ChainID != "solana" || p.BaseToken.Address != wsolMint {
			continue
		}
		if sym := strings.ToUpper(p.QuoteToken.Symbol); sym != "USDC" && sym != "USDT" {
			continue
		}
		price, err := decimal.NewFromString(p.PriceUSD)
		if err != nil || !price.IsPositive() {
			continue
		}
		if p.Liquidity.USD > depth {
			best, depth = price, p.Liquidity.USD
		}
	}
	if !best.IsPositive() {
		return decimal.Zero, fmt.Errorf("sol price: %w", domain.ErrDataUnavailable)
	}
	return best, nil
}

var _ SOLPricer = (*DexScreener)(nil)
