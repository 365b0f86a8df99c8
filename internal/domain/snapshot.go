package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PricePoint is a timestamped price sample.
type PricePoint struct {
	Timestamp time.Time
	Price     decimal.Decimal
}

// MarketSnapshot is a normalized, timestamped view of a token's pool.
type MarketSnapshot struct {
	Token string
	Pool  string
	Dex   string // DexScreener dex id, "raydium" when a direct route exists

	// Reserves in raw units; ReserveSOL is the quote (WSOL) side.
	ReserveToken uint64
	ReserveSOL   uint64

	PriceLamports decimal.Decimal // lamports per raw token unit
	PriceUSD      decimal.Decimal // USD per whole token
	LiquidityUSD  decimal.Decimal
	PoolCreated   time.Time
	PriceHistory  []PricePoint // PriceLamports samples, ascending by time
	Decimals      uint8

	MintAuthorityRenounced   bool
	FreezeAuthorityRenounced bool

	FetchedAt time.Time
}

// PoolAge returns the age of the pool relative to now.
func (s *MarketSnapshot) PoolAge(now time.Time) time.Duration {
	if s.PoolCreated.IsZero() {
		return 0
	}
	return now.Sub(s.PoolCreated)
}

// HasReserves reports whether on-chain reserves are known.
func (s *MarketSnapshot) HasReserves() bool {
	return s.ReserveToken > 0 && s.ReserveSOL > 0
}

// Verdict is the outcome of a single risk source lookup.
type Verdict int

const (
	VerdictUnavailable Verdict = iota
	VerdictPass
	VerdictFail
)

func (v Verdict) String() string {
	switch v {
	case VerdictPass:
		return "pass"
	case VerdictFail:
		return "fail"
	default:
		return "unavailable"
	}
}
