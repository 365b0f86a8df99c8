package cluster

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"solana-cluster-sniper/internal/domain"
)

// Candidate is one detector's finding for a token.
type Candidate struct {
	Method  domain.Method
	Members []string // sorted, unique
	Start   time.Time
	End     time.Time
}

// Detector inspects a token's buy events and reports at most one candidate.
// buys are sorted ascending by timestamp.
type Detector interface {
	Method() domain.Method
	Detect(token string, buys []domain.TransferEvent, now time.Time) *Candidate
}

// sortedKeys returns the keys of set in ascending order.
func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// since returns the suffix of buys at or after t.
func since(buys []domain.TransferEvent, t time.Time) []domain.TransferEvent {
	i := sort.Search(len(buys), func(i int) bool { return !buys[i].Timestamp.Before(t) })
	return buys[i:]
}

func sumUSD(buys []domain.TransferEvent) decimal.Decimal {
	total := decimal.Zero
	for i := range buys {
		total = total.Add(buys[i].QuoteUSD)
	}
	return total
}

func distinctWallets(buys []domain.TransferEvent) map[string]struct{} {
	set := make(map[string]struct{}, len(buys))
	for i := range buys {
		set[buys[i].Wallet] = struct{}{}
	}
	return set
}

// sortBuys orders events by timestamp, breaking ties with TransferEvent.Less.
func sortBuys(buys []domain.TransferEvent) {
	sort.SliceStable(buys, func(i, j int) bool { return buyBefore(&buys[i], &buys[j]) })
}

func buyBefore(a, b *domain.TransferEvent) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	return a.Less(b)
}
