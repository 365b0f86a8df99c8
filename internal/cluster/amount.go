package cluster

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"solana-cluster-sniper/internal/domain"
)

// AmountSimilarity groups buyers whose total spend on the token falls in the
// same band. Buckets are built greedily over ascending amounts: the first
// amount anchors a bucket and later amounts join while within Tolerance of it.
type AmountSimilarity struct {
	cfg AmountConfig
	tol decimal.Decimal
}

// NewAmountSimilarity creates an amount-similarity detector.
func NewAmountSimilarity(cfg AmountConfig) *AmountSimilarity {
	return &AmountSimilarity{cfg: cfg, tol: decimal.NewFromFloat(cfg.Tolerance)}
}

var _ Detector = (*AmountSimilarity)(nil)

func (d *AmountSimilarity) Method() domain.Method { return domain.MethodAmountSimilarity }

type walletSpend struct {
	wallet string
	amount decimal.Decimal
	first  time.Time
	last   time.Time
}

func (d *AmountSimilarity) Detect(_ string, buys []domain.TransferEvent, _ time.Time) *Candidate {
	byWallet := make(map[string]*walletSpend)
	for i := range buys {
		b := &buys[i]
		ws, ok := byWallet[b.Wallet]
		if !ok {
			ws = &walletSpend{wallet: b.Wallet, first: b.Timestamp}
			byWallet[b.Wallet] = ws
		}
		ws.amount = ws.amount.Add(b.QuoteUSD)
		ws.last = b.Timestamp
	}
	if len(byWallet) < d.cfg.MinWallets {
		return nil
	}

	spends := make([]*walletSpend, 0, len(byWallet))
	for _, ws := range byWallet {
		if ws.amount.IsPositive() {
			spends = append(spends, ws)
		}
	}
	sort.Slice(spends, func(i, j int) bool {
		if c := spends[i].amount.Cmp(spends[j].amount); c != 0 {
			return c < 0
		}
		return spends[i].wallet < spends[j].wallet
	})

	var best, cur []*walletSpend
	var anchor decimal.Decimal
	for _, ws := range spends {
		if len(cur) > 0 && ws.amount.Sub(anchor).Abs().LessThanOrEqual(anchor.Mul(d.tol)) {
			cur = append(cur, ws)
			continue
		}
		if len(cur) > len(best) {
			best = cur
		}
		cur = []*walletSpend{ws}
		anchor = ws.amount
	}
	if len(cur) > len(best) {
		best = cur
	}
	if len(best) < d.cfg.MinWallets {
		return nil
	}

	members := make(map[string]struct{}, len(best))
	start, end := best[0].first, best[0].last
	for _, ws := range best {
		members[ws.wallet] = struct{}{}
		if ws.first.Before(start) {
			start = ws.first
		}
		if ws.last.After(end) {
			end = ws.last
		}
	}
	return &Candidate{
		Method:  domain.MethodAmountSimilarity,
		Members: sortedKeys(members),
		Start:   start,
		End:     end,
	}
}
