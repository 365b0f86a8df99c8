package market

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"solana-cluster-sniper/internal/domain"
)

// History keeps a rolling window of observed prices per token.
type History struct {
	mu     sync.Mutex
	window time.Duration
	points map[string][]domain.PricePoint
}

// NewHistory retains samples for window.
func NewHistory(window time.Duration) *History {
	return &History{window: window, points: make(map[string][]domain.PricePoint)}
}

// Record appends a sample and returns a copy of the retained series.
func (h *History) Record(token string, at time.Time, price decimal.Decimal) []domain.PricePoint {
	h.mu.Lock()
	defer h.mu.Unlock()

	pts := h.points[token]
	if n := len(pts); n == 0 || at.After(pts[n-1].Timestamp) {
		pts = append(pts, domain.PricePoint{Timestamp: at, Price: price})
	}
	cutoff := at.Add(-h.window)
	i := 0
	for i < len(pts) && pts[i].Timestamp.Before(cutoff) {
		i++
	}
	pts = pts[i:]
	h.points[token] = pts

	out := make([]domain.PricePoint, len(pts))
	copy(out, pts)
	return out
}

// Seed inserts an older sample ahead of the series when nothing that old exists yet.
func (h *History) Seed(token string, at time.Time, price decimal.Decimal) {
	h.mu.Lock()
	defer h.mu.Unlock()
	pts := h.points[token]
	if len(pts) > 0 && !at.Before(pts[0].Timestamp) {
		return
	}
	h.points[token] = append([]domain.PricePoint{{Timestamp: at, Price: price}}, pts...)
}

// Forget drops a token's series.
func (h *History) Forget(token string) {
	h.mu.Lock()
	delete(h.points, token)
	h.mu.Unlock()
}
