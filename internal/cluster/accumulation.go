package cluster

import (
	"time"

	"github.com/shopspring/decimal"

	"solana-cluster-sniper/internal/domain"
)

// EarlyAccumulation flags a token whose recent buy volume outpaces its own
// history while the buyer set is still small.
//
// The baseline is the buy volume observed before the short window, scaled
// to short-window units by the span of history actually available. Tokens
// with less than one short window of prior history are skipped.
type EarlyAccumulation struct {
	cfg  AccumulationConfig
	mult decimal.Decimal
}

// NewEarlyAccumulation creates an early-accumulation detector.
func NewEarlyAccumulation(cfg AccumulationConfig) *EarlyAccumulation {
	return &EarlyAccumulation{cfg: cfg, mult: decimal.NewFromFloat(cfg.Multiplier)}
}

var _ Detector = (*EarlyAccumulation)(nil)

func (d *EarlyAccumulation) Method() domain.Method { return domain.MethodEarlyAccumulation }

func (d *EarlyAccumulation) Detect(_ string, buys []domain.TransferEvent, now time.Time) *Candidate {
	if len(buys) == 0 {
		return nil
	}
	shortStart := now.Add(-d.cfg.Short)
	historyStart := now.Add(-d.cfg.Baseline)

	hist := since(buys, historyStart)
	recent := since(hist, shortStart)
	prior := hist[:len(hist)-len(recent)]
	if len(prior) == 0 || len(recent) == 0 {
		return nil
	}

	priorSpan := shortStart.Sub(prior[0].Timestamp)
	if maxSpan := d.cfg.Baseline - d.cfg.Short; priorSpan > maxSpan {
		priorSpan = maxSpan
	}
	if priorSpan < d.cfg.Short {
		return nil
	}

	buyers := distinctWallets(recent)
	if len(buyers) < d.cfg.MinWallets || len(buyers) > d.cfg.MaxBuyers {
		return nil
	}

	shortVol := sumUSD(recent)
	if shortVol.LessThan(d.cfg.MinVolumeUSD) {
		return nil
	}

	windows := decimal.NewFromInt(int64(priorSpan)).Div(decimal.NewFromInt(int64(d.cfg.Short)))
	baselineAvg := sumUSD(prior).Div(windows)
	if !shortVol.GreaterThan(baselineAvg.Mul(d.mult)) {
		return nil
	}

	return &Candidate{
		Method:  domain.MethodEarlyAccumulation,
		Members: sortedKeys(buyers),
		Start:   recent[0].Timestamp,
		End:     recent[len(recent)-1].Timestamp,
	}
}
