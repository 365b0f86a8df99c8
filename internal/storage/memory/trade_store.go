package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"solana-cluster-sniper/internal/domain"
	"solana-cluster-sniper/internal/storage"
)

// TradeAnalyticsStore is an in-memory implementation of storage.TradeAnalyticsStore.
type TradeAnalyticsStore struct {
	mu   sync.RWMutex
	data map[string]*storage.TradeRecord // keyed by signature
}

// NewTradeAnalyticsStore creates an empty store.
func NewTradeAnalyticsStore() *TradeAnalyticsStore {
	return &TradeAnalyticsStore{data: make(map[string]*storage.TradeRecord)}
}

var _ storage.TradeAnalyticsStore = (*TradeAnalyticsStore)(nil)

// InsertBulk adds records. Fails the entire batch on any duplicate.
func (s *TradeAnalyticsStore) InsertBulk(_ context.Context, records []*storage.TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make(map[string]struct{}, len(records))
	for _, r := range records {
		if r == nil || r.Signature == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[r.Signature]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batch[r.Signature]; exists {
			return storage.ErrDuplicateKey
		}
		batch[r.Signature] = struct{}{}
	}
	for _, r := range records {
		cp := *r
		s.data[r.Signature] = &cp
	}
	return nil
}

// GetByTimeRange returns records in [start, end] ordered by time.
func (s *TradeAnalyticsStore) GetByTimeRange(_ context.Context, start, end time.Time) ([]*storage.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*storage.TradeRecord
	for _, r := range s.data {
		if !r.Timestamp.Before(start) && !r.Timestamp.After(end) {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].Signature < out[j].Signature
	})
	return out, nil
}

// PathStats aggregates records at or after since.
func (s *TradeAnalyticsStore) PathStats(_ context.Context, since time.Time) ([]storage.PathStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	type acc struct {
		stat    storage.PathStat
		latency int64
	}
	byPath := make(map[domain.Path]*acc)
	for _, r := range s.data {
		if r.Timestamp.Before(since) {
			continue
		}
		a, ok := byPath[r.Path]
		if !ok {
			a = &acc{stat: storage.PathStat{Path: r.Path}}
			byPath[r.Path] = a
		}
		a.stat.Fills++
		a.stat.TotalFees += r.FeeLamports
		a.stat.TotalTips += r.TipLamports
		a.latency += r.LatencyMs
	}
	out := make([]storage.PathStat, 0, len(byPath))
	for _, a := range byPath {
		a.stat.AvgLatencyMs = float64(a.latency) / float64(a.stat.Fills)
		out = append(out, a.stat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}
