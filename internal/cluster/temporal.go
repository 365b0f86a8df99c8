package cluster

import (
	"time"

	"solana-cluster-sniper/internal/domain"
)

// Temporal finds the densest fixed-width window of distinct buyers.
type Temporal struct {
	cfg TemporalConfig
}

// NewTemporal creates a temporal detector.
func NewTemporal(cfg TemporalConfig) *Temporal {
	return &Temporal{cfg: cfg}
}

var _ Detector = (*Temporal)(nil)

func (d *Temporal) Method() domain.Method { return domain.MethodTemporal }

// Detect slides a window anchored at each buy. The window with the most distinct
// wallets wins; ties go to the earliest window.
func (d *Temporal) Detect(_ string, buys []domain.TransferEvent, _ time.Time) *Candidate {
	if len(buys) < d.cfg.MinWallets {
		return nil
	}

	var (
		best      map[string]struct{}
		bestStart time.Time
		bestEnd   time.Time
	)
	j := 0
	counts := make(map[string]int)
	for i := range buys {
		start := buys[i].Timestamp
		limit := start.Add(d.cfg.Window)
		if j < i {
			j = i
		}
		for j < len(buys) && !buys[j].Timestamp.After(limit) {
			counts[buys[j].Wallet]++
			j++
		}
		if len(counts) > len(best) {
			best = make(map[string]struct{}, len(counts))
			for w := range counts {
				best[w] = struct{}{}
			}
			bestStart, bestEnd = start, buys[j-1].Timestamp
		}
		// Slide: drop buys[i] before the next anchor.
		if counts[buys[i].Wallet]--; counts[buys[i].Wallet] == 0 {
			delete(counts, buys[i].Wallet)
		}
	}

	if len(best) < d.cfg.MinWallets {
		return nil
	}
	return &Candidate{
		Method:  domain.MethodTemporal,
		Members: sortedKeys(best),
		Start:   bestStart,
		End:     bestEnd,
	}
}
