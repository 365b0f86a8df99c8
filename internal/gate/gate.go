// Package gate admits or refuses a buy for a scored cluster. Checks run in a
// fixed order and the first failing check decides; the gate never retries.
package gate

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"solana-cluster-sniper/internal/amm"
	"solana-cluster-sniper/internal/domain"
)

// Reason names the check that refused a request.
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonSignal      Reason = "signal"
	ReasonLiquidity   Reason = "liquidity"
	ReasonPoolAge     Reason = "pool_age"
	ReasonRugDrop     Reason = "rug_drop"
	ReasonPriceImpact Reason = "price_impact"
	ReasonAuthority   Reason = "authority"
	ReasonRisk        Reason = "risk"
	ReasonRiskQuorum  Reason = "risk_quorum"
)

// RiskSource is a third-party verdict provider.
type RiskSource interface {
	Name() string
	Check(ctx context.Context, token string) domain.Verdict
}

// Config holds gate thresholds.
type Config struct {
	MinLiquidityUSD  decimal.Decimal
	MinPoolAge       time.Duration
	RugWindow        time.Duration
	MaxDropPct       float64
	MaxImpactBps     int
	RequireRenounced bool
	RiskTimeout      time.Duration
	MinResponders    int
}

// DefaultConfig returns the documented thresholds.
func DefaultConfig() Config {
	return Config{
		MinLiquidityUSD:  decimal.NewFromInt(5000),
		MinPoolAge:       2 * time.Minute,
		RugWindow:        5 * time.Minute,
		MaxDropPct:       15,
		MaxImpactBps:     2000,
		RequireRenounced: true,
		RiskTimeout:      3 * time.Second,
	}
}

// Request is one admission question.
type Request struct {
	Cluster       *domain.Cluster // nil skips the signal check
	Snapshot      *domain.MarketSnapshot
	TradeLamports uint64
}

// Decision is the gate's answer. A refusal is a value, not an error.
type Decision struct {
	Admit    bool
	Reason   Reason
	Detail   string
	Verdicts map[string]domain.Verdict
}

func refuse(r Reason, format string, args ...interface{}) Decision {
	return Decision{Reason: r, Detail: fmt.Sprintf(format, args...)}
}

// Gate evaluates requests.
type Gate struct {
	cfg     Config
	sources []RiskSource
	log     zerolog.Logger
	now     func() time.Time
}

// New creates a Gate over the given risk sources.
func New(cfg Config, sources []RiskSource, log zerolog.Logger) *Gate {
	return &Gate{
		cfg:     cfg,
		sources: sources,
		log:     log.With().Str("component", "gate").Logger(),
		now:     time.Now,
	}
}

// Evaluate runs every check in order and stops at the first failure.
func (g *Gate) Evaluate(ctx context.Context, req Request) Decision {
	d := g.evaluate(ctx, req)
	ev := g.log.Info()
	if d.Admit {
		ev = g.log.Debug()
	}
	ev.Str("token", req.Snapshot.Token).
		Bool("admit", d.Admit).
		Str("reason", string(d.Reason)).
		Str("detail", d.Detail).
		Msg("gate decision")
	return d
}

func (g *Gate) evaluate(ctx context.Context, req Request) Decision {
	snap := req.Snapshot
	if c := req.Cluster; c != nil && !c.Signal.Actionable() {
		return refuse(ReasonSignal, "signal %s score %d", c.Signal, c.Score)
	}

	if snap.LiquidityUSD.LessThan(g.cfg.MinLiquidityUSD) {
		return refuse(ReasonLiquidity, "liquidity $%s < $%s", snap.LiquidityUSD.StringFixed(2), g.cfg.MinLiquidityUSD.StringFixed(2))
	}

	now := g.now()
	if age := snap.PoolAge(now); age < g.cfg.MinPoolAge {
		return refuse(ReasonPoolAge, "pool age %s < %s", age.Truncate(time.Second), g.cfg.MinPoolAge)
	}

	if drop := MaxDropPct(snap, now.Add(-g.cfg.RugWindow)); drop > g.cfg.MaxDropPct {
		return refuse(ReasonRugDrop, "dropped %.1f%% within %s", drop, g.cfg.RugWindow)
	}

	if !snap.HasReserves() {
		return refuse(ReasonPriceImpact, "reserves unknown")
	}
	q, err := amm.NewQuote(snap.ReserveSOL, snap.ReserveToken, req.TradeLamports, amm.RaydiumFee, 0)
	if err != nil {
		return refuse(ReasonPriceImpact, "%v", err)
	}
	if q.ImpactBps > g.cfg.MaxImpactBps {
		return refuse(ReasonPriceImpact, "impact %d bps > %d", q.ImpactBps, g.cfg.MaxImpactBps)
	}

	if g.cfg.RequireRenounced {
		if !snap.MintAuthorityRenounced {
			return refuse(ReasonAuthority, "mint authority active")
		}
		if !snap.FreezeAuthorityRenounced {
			return refuse(ReasonAuthority, "freeze authority active")
		}
	}

	verdicts := g.checkRisk(ctx, snap.Token)
	var responders int
	var failedBy []string
	for name, v := range verdicts {
		switch v {
		case domain.VerdictFail:
			failedBy = append(failedBy, name)
			responders++
		case domain.VerdictPass:
			responders++
		}
	}
	if len(failedBy) > 0 {
		sort.Strings(failedBy)
		d := refuse(ReasonRisk, "failed by %v", failedBy)
		d.Verdicts = verdicts
		return d
	}
	if responders < g.cfg.MinResponders {
		d := refuse(ReasonRiskQuorum, "%d of %d required sources answered", responders, g.cfg.MinResponders)
		d.Verdicts = verdicts
		return d
	}

	return Decision{Admit: true, Verdicts: verdicts}
}

// checkRisk queries every source concurrently, each under its own timeout.
// A source that ignores its context is abandoned when the timeout fires.
func (g *Gate) checkRisk(ctx context.Context, token string) map[string]domain.Verdict {
	var mu sync.Mutex
	out := make(map[string]domain.Verdict, len(g.sources))
	var eg errgroup.Group
	for _, src := range g.sources {
		eg.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, g.cfg.RiskTimeout)
			defer cancel()
			done := make(chan domain.Verdict, 1)
			go func() { done <- src.Check(cctx, token) }()
			var v domain.Verdict
			select {
			case v = <-done:
				if cctx.Err() != nil {
					v = domain.VerdictUnavailable
				}
			case <-cctx.Done():
				v = domain.VerdictUnavailable
				g.log.Debug().Str("source", src.Name()).Str("token", token).Msg("risk source timed out")
			}
			mu.Lock()
			out[src.Name()] = v
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()
	return out
}

// MaxDropPct returns how far the current price sits below the highest
// sample at or after since, in percent.
func MaxDropPct(snap *domain.MarketSnapshot, since time.Time) float64 {
	peak := snap.PriceLamports
	for _, p := range snap.PriceHistory {
		if !p.Timestamp.Before(since) && p.Price.GreaterThan(peak) {
			peak = p.Price
		}
	}
	if !peak.IsPositive() || !snap.PriceLamports.LessThan(peak) {
		return 0
	}
	drop, _ := peak.Sub(snap.PriceLamports).Div(peak).Mul(decimal.NewFromInt(100)).Float64()
	return drop
}
