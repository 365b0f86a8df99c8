package cluster

import (
	"errors"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"solana-cluster-sniper/internal/domain"
)

// ScoreWeights are the additive scoring components. Every term is capped
// so the weights bound the total.
type ScoreWeights struct {
	BasePerMember       int
	BaseMax             int
	SmartMax            int
	VolumeMax           int
	VolumeSaturationUSD decimal.Decimal
	TightnessBonus      int
	TightWindow         time.Duration
	CoordinationBonus   int

	StrongBuyAt int
	BuyAt       int
}

// DefaultScoreWeights returns the documented weights.
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{
		BasePerMember:       8,
		BaseMax:             40,
		SmartMax:            25,
		VolumeMax:           20,
		VolumeSaturationUSD: decimal.NewFromInt(50_000),
		TightnessBonus:      10,
		TightWindow:         5 * time.Minute,
		CoordinationBonus:   10,
		StrongBuyAt:         70,
		BuyAt:               50,
	}
}

// ErrInvalidWeights is returned for negative weights or inverted thresholds.
var ErrInvalidWeights = errors.New("invalid score weights")

// Validate checks weights.
func (w ScoreWeights) Validate() error {
	for _, v := range []int{w.BasePerMember, w.BaseMax, w.SmartMax, w.VolumeMax, w.TightnessBonus, w.CoordinationBonus} {
		if v < 0 {
			return ErrInvalidWeights
		}
	}
	if !w.VolumeSaturationUSD.IsPositive() || w.BuyAt > w.StrongBuyAt {
		return ErrInvalidWeights
	}
	return nil
}

// ScoreInput is what the scorer needs to know about a merged cluster.
type ScoreInput struct {
	Members       int
	SmartFraction float64
	VolumeUSD     decimal.Decimal
	Width         time.Duration
	Methods       domain.Method
}

// Scorer turns a merged cluster into a 0..100 score.
type Scorer struct {
	w ScoreWeights
}

// NewScorer creates a scorer.
func NewScorer(w ScoreWeights) *Scorer {
	return &Scorer{w: w}
}

// Score sums the capped components and clamps to [0, 100].
// It is non-decreasing in Members, SmartFraction and VolumeUSD.
func (s *Scorer) Score(in ScoreInput) int {
	base := s.w.BasePerMember * in.Members
	if base > s.w.BaseMax {
		base = s.w.BaseMax
	}

	frac := math.Max(0, math.Min(1, in.SmartFraction))
	smart := int(math.Round(float64(s.w.SmartMax) * frac))

	volume := 0
	if in.VolumeUSD.IsPositive() {
		v := in.VolumeUSD.Mul(decimal.NewFromInt(int64(s.w.VolumeMax))).Div(s.w.VolumeSaturationUSD)
		if v.GreaterThanOrEqual(decimal.NewFromInt(int64(s.w.VolumeMax))) {
			volume = s.w.VolumeMax
		} else {
			volume = int(v.IntPart())
		}
	}

	tight := 0
	if in.Width < s.w.TightWindow {
		tight = s.w.TightnessBonus
	}

	coord := 0
	if in.Methods.Has(domain.MethodAmountSimilarity) {
		coord = s.w.CoordinationBonus
	}

	return clamp(base+smart+volume+tight+coord, 0, 100)
}

// Classify maps a score to a signal.
func (s *Scorer) Classify(score int) domain.Signal {
	switch {
	case score >= s.w.StrongBuyAt:
		return domain.SignalStrongBuy
	case score >= s.w.BuyAt:
		return domain.SignalBuy
	default:
		return domain.SignalMonitor
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
