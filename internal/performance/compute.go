// Package performance summarizes realized trading results from the trade
// analytics records.
package performance

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"solana-cluster-sniper/internal/domain"
	"solana-cluster-sniper/internal/storage"
)

// Summary is the performance of the exits and entries in one time range.
// PnL figures are in SOL.
type Summary struct {
	Start time.Time
	End   time.Time

	Entries int
	Exits   int
	Wins    int
	Losses  int
	WinRate float64

	Tokens       int
	TokenWinRate float64

	RealizedPnL decimal.Decimal
	GrossProfit decimal.Decimal
	GrossLoss   decimal.Decimal

	PnLMean   float64
	PnLMedian float64
	PnLP10    float64
	PnLP90    float64
	PnLMin    float64
	PnLMax    float64
	PnLStddev float64

	MaxDrawdown          float64
	MaxConsecutiveLosses int

	LatencyP50 float64
	LatencyP90 float64
	LatencyP99 float64

	FeesLamports uint64
	TipsLamports uint64

	ExitReasons []ReasonCount
	Paths       []storage.PathStat
}

// ReasonCount is the number of exits for one reason.
type ReasonCount struct {
	Reason domain.ExitReason
	Count  int
	PnL    decimal.Decimal
}

// Compute builds a summary from records in [start, end] and the per-path
// aggregates for the same range.
func Compute(records []*storage.TradeRecord, paths []storage.PathStat, start, end time.Time) *Summary {
	s := &Summary{
		Start:       start,
		End:         end,
		RealizedPnL: decimal.Zero,
		GrossProfit: decimal.Zero,
		GrossLoss:   decimal.Zero,
		Paths:       paths,
	}

	sorted := make([]*storage.TradeRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		}
		return sorted[i].Signature < sorted[j].Signature
	})

	var pnls, latencies []float64
	byToken := make(map[string]bool)
	byReason := make(map[domain.ExitReason]*ReasonCount)
	for _, r := range sorted {
		s.FeesLamports += r.FeeLamports
		s.TipsLamports += r.TipLamports
		latencies = append(latencies, float64(r.LatencyMs))

		if r.Kind != storage.TradeExit {
			s.Entries++
			continue
		}
		s.Exits++
		sol := r.PnLLamports.Shift(-9)
		s.RealizedPnL = s.RealizedPnL.Add(sol)
		if r.PnLLamports.IsPositive() {
			s.Wins++
			s.GrossProfit = s.GrossProfit.Add(sol)
		} else {
			s.Losses++
			s.GrossLoss = s.GrossLoss.Add(sol)
		}
		pnls = append(pnls, sol.InexactFloat64())
		byToken[r.Token] = byToken[r.Token] || r.PnLLamports.IsPositive()

		rc, ok := byReason[r.ExitReason]
		if !ok {
			rc = &ReasonCount{Reason: r.ExitReason, PnL: decimal.Zero}
			byReason[r.ExitReason] = rc
		}
		rc.Count++
		rc.PnL = rc.PnL.Add(sol)
	}

	s.WinRate = ratio(s.Wins, s.Exits)
	s.Tokens = len(byToken)
	winning := 0
	for _, won := range byToken {
		if won {
			winning++
		}
	}
	s.TokenWinRate = ratio(winning, s.Tokens)

	if len(pnls) > 0 {
		s.MaxDrawdown = maxDrawdown(pnls)
		s.MaxConsecutiveLosses = maxConsecutiveLosses(pnls)
		s.PnLMean = mean(pnls)
		s.PnLStddev = stddev(pnls, s.PnLMean)
		sort.Float64s(pnls)
		s.PnLMedian = percentile(pnls, 0.50)
		s.PnLP10 = percentile(pnls, 0.10)
		s.PnLP90 = percentile(pnls, 0.90)
		s.PnLMin = pnls[0]
		s.PnLMax = pnls[len(pnls)-1]
	}

	sort.Float64s(latencies)
	s.LatencyP50 = percentile(latencies, 0.50)
	s.LatencyP90 = percentile(latencies, 0.90)
	s.LatencyP99 = percentile(latencies, 0.99)

	for _, rc := range byReason {
		s.ExitReasons = append(s.ExitReasons, *rc)
	}
	sort.Slice(s.ExitReasons, func(i, j int) bool { return s.ExitReasons[i].Reason < s.ExitReasons[j].Reason })
	return s
}

func ratio(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stddev is the sample standard deviation.
func stddev(xs []float64, m float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	sumSq := 0.0
	for _, x := range xs {
		d := x - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(n-1))
}

// percentile interpolates linearly between ranks of an ascending slice.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	switch n {
	case 0:
		return 0
	case 1:
		return sorted[0]
	}
	idx := p * float64(n-1)
	lower := int(idx)
	if lower+1 >= n {
		return sorted[n-1]
	}
	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[lower+1]-sorted[lower])
}

// maxDrawdown is the worst peak-to-trough drop of cumulative PnL, in
// chronological order.
func maxDrawdown(pnls []float64) float64 {
	cumulative, peak, worst := 0.0, 0.0, 0.0
	for _, p := range pnls {
		cumulative += p
		if cumulative > peak {
			peak = cumulative
		}
		if dd := peak - cumulative; dd > worst {
			worst = dd
		}
	}
	return worst
}

func maxConsecutiveLosses(pnls []float64) int {
	longest, current := 0, 0
	for _, p := range pnls {
		if p <= 0 {
			current++
			if current > longest {
				longest = current
			}
		} else {
			current = 0
		}
	}
	return longest
}
