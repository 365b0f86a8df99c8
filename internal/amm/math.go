// Package amm implements constant-product swap math on raw integer token amounts.
//
// All amounts are in on-chain base units. Rounding always favours the pool:
// outputs are truncated and fees are rounded up, so a quote never exceeds
// what the program would pay out.
package amm

import (
	"errors"
	"math/big"

	"github.com/shopspring/decimal"
)

// BpsDenominator is the basis-point scale.
const BpsDenominator = 10_000

// Errors returned by quoting functions.
var (
	ErrEmptyReserves = errors.New("amm: pool reserves are empty")
	ErrZeroAmount    = errors.New("amm: input amount is zero")
)

// Fee is a protocol trade fee expressed as a fraction.
type Fee struct {
	Numerator   uint64
	Denominator uint64
}

// RaydiumFee is the Raydium AMM V4 swap fee (0.25%).
var RaydiumFee = Fee{Numerator: 25, Denominator: 10_000}

// NoFee disables fee deduction.
var NoFee = Fee{}

// AfterFee returns the input amount left once the protocol fee is taken.
// The fee is rounded up.
func AfterFee(amountIn uint64, fee Fee) uint64 {
	if fee.Denominator == 0 || fee.Numerator == 0 {
		return amountIn
	}
	num := new(big.Int).Mul(u(amountIn), u(fee.Numerator))
	den := u(fee.Denominator)
	feeAmt := ceilDiv(num, den)
	if feeAmt.Cmp(u(amountIn)) >= 0 {
		return 0
	}
	return amountIn - feeAmt.Uint64()
}

// AmountOut returns out = R_out - ceil(R_in*R_out / (R_in + A)).
// A is the input after fees. The ceiling keeps the result at or below the exact value.
func AmountOut(reserveIn, reserveOut, amountIn uint64) uint64 {
	if reserveIn == 0 || reserveOut == 0 || amountIn == 0 {
		return 0
	}
	k := new(big.Int).Mul(u(reserveIn), u(reserveOut))
	newIn := new(big.Int).Add(u(reserveIn), u(amountIn))
	newOut := ceilDiv(k, newIn)
	out := new(big.Int).Sub(u(reserveOut), newOut)
	if out.Sign() <= 0 {
		return 0
	}
	return out.Uint64()
}

// PriceImpact returns 1 - (out/A) / (R_out/R_in) as a fraction in [0,1].
func PriceImpact(reserveIn, reserveOut, amountIn, amountOut uint64) decimal.Decimal {
	if reserveIn == 0 || reserveOut == 0 || amountIn == 0 {
		return decimal.NewFromInt(1)
	}
	num := new(big.Int).Mul(u(amountOut), u(reserveIn))
	den := new(big.Int).Mul(u(amountIn), u(reserveOut))
	ratio := decimal.NewFromBigInt(num, 0).Div(decimal.NewFromBigInt(den, 0))
	impact := decimal.NewFromInt(1).Sub(ratio)
	if impact.IsNegative() {
		return decimal.Zero
	}
	return impact
}

// ImpactBps converts a fractional impact to basis points, rounding up.
func ImpactBps(impact decimal.Decimal) int {
	return int(impact.Mul(decimal.NewFromInt(BpsDenominator)).Ceil().IntPart())
}

// MinOut applies a slippage tolerance to an expected output, truncating.
func MinOut(amountOut uint64, slippageBps int) uint64 {
	if slippageBps <= 0 {
		return amountOut
	}
	if slippageBps >= BpsDenominator {
		return 0
	}
	num := new(big.Int).Mul(u(amountOut), big.NewInt(int64(BpsDenominator-slippageBps)))
	return new(big.Int).Quo(num, big.NewInt(BpsDenominator)).Uint64()
}

// SpotPrice returns R_out / R_in.
func SpotPrice(reserveIn, reserveOut uint64) decimal.Decimal {
	if reserveIn == 0 {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(u(reserveOut), 0).Div(decimal.NewFromBigInt(u(reserveIn), 0))
}

// Quote is the full pre-trade calculation for a single swap.
type Quote struct {
	ReserveIn      uint64
	ReserveOut     uint64
	AmountIn       uint64
	AmountAfterFee uint64
	AmountOut      uint64
	MinAmountOut   uint64
	Impact         decimal.Decimal
	ImpactBps      int
}

// NewQuote computes output, impact and minimum acceptable output.
func NewQuote(reserveIn, reserveOut, amountIn uint64, fee Fee, slippageBps int) (Quote, error) {
	if reserveIn == 0 || reserveOut == 0 {
		return Quote{}, ErrEmptyReserves
	}
	if amountIn == 0 {
		return Quote{}, ErrZeroAmount
	}
	afterFee := AfterFee(amountIn, fee)
	out := AmountOut(reserveIn, reserveOut, afterFee)
	impact := PriceImpact(reserveIn, reserveOut, afterFee, out)
	return Quote{
		ReserveIn:      reserveIn,
		ReserveOut:     reserveOut,
		AmountIn:       amountIn,
		AmountAfterFee: afterFee,
		AmountOut:      out,
		MinAmountOut:   MinOut(out, slippageBps),
		Impact:         impact,
		ImpactBps:      ImpactBps(impact),
	}, nil
}

// SizeForImpact returns the largest input <= maxIn whose price impact stays
// within targetBps. Returns 0 when even the smallest trade exceeds the target.
func SizeForImpact(reserveIn, reserveOut, maxIn uint64, fee Fee, targetBps int) uint64 {
	if reserveIn == 0 || reserveOut == 0 || maxIn == 0 {
		return 0
	}
	fits := func(a uint64) bool {
		q, err := NewQuote(reserveIn, reserveOut, a, fee, 0)
		return err == nil && q.AmountOut > 0 && q.ImpactBps <= targetBps
	}
	if fits(maxIn) {
		return maxIn
	}
	lo, hi := uint64(0), maxIn
	for lo < hi {
		mid := lo + (hi-lo+1)/2
		if fits(mid) {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

func u(v uint64) *big.Int {
	return new(big.Int).SetUint64(v)
}

func ceilDiv(num, den *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(num, den, new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}
