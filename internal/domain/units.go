package domain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// LamportsPerSOL is the lamport denomination of one SOL.
const LamportsPerSOL = 1_000_000_000

// Uint64 converts a raw on-chain amount to a decimal without overflow.
func Uint64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

// LamportsToSOL converts lamports to SOL.
func LamportsToSOL(lamports uint64) decimal.Decimal {
	return Uint64(lamports).Shift(-9)
}

// LamportsToUSD values lamports at solUSD dollars per SOL.
func LamportsToUSD(lamports uint64, solUSD decimal.Decimal) decimal.Decimal {
	return LamportsToSOL(lamports).Mul(solUSD)
}

// USDToLamports converts a dollar amount at solUSD into lamports, truncating.
func USDToLamports(usd, solUSD decimal.Decimal) uint64 {
	if !solUSD.IsPositive() || !usd.IsPositive() {
		return 0
	}
	return uint64(usd.Div(solUSD).Shift(9).IntPart())
}
