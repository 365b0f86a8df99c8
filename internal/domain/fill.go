package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fill is the confirmed result of a trade intent.
type Fill struct {
	IntentID  string
	Token     string
	Side      Side
	InAmount  uint64 // lamports for buys, token units for sells
	OutAmount uint64 // token units for buys, lamports for sells

	// Price is lamports per raw token unit.
	Price decimal.Decimal

	Path        Path
	Endpoint    string
	FeeLamports uint64 // priority fee paid
	TipLamports uint64 // bundle tip paid
	Signature   string
	Timestamp   time.Time
}

// CostLamports returns fees and tips attached to the fill.
func (f *Fill) CostLamports() uint64 {
	return f.FeeLamports + f.TipLamports
}
