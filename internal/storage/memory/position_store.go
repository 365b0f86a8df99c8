package memory

import (
	"context"
	"sort"
	"sync"

	"solana-cluster-sniper/internal/domain"
	"solana-cluster-sniper/internal/idhash"
	"solana-cluster-sniper/internal/storage"
)

// PositionStore is an in-memory implementation of storage.PositionStore.
type PositionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Position
}

// NewPositionStore creates an empty store.
func NewPositionStore() *PositionStore {
	return &PositionStore{data: make(map[string]*domain.Position)}
}

var _ storage.PositionStore = (*PositionStore)(nil)

// Upsert inserts or replaces a position.
func (s *PositionStore) Upsert(_ context.Context, p *domain.Position) error {
	if p == nil || p.Token == "" || p.EntrySignature == "" {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[idhash.ComputePositionID(p.Token, p.EntrySignature)] = p.Clone()
	return nil
}

// GetByID returns a copy of the position.
func (s *PositionStore) GetByID(_ context.Context, id string) (*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.data[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return p.Clone(), nil
}

// GetOpen returns OPEN and EXITING positions ordered by open time.
func (s *PositionStore) GetOpen(_ context.Context) ([]*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Position
	for _, p := range s.data {
		if p.State != domain.PositionClosed {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].OpenedAt.Before(out[j].OpenedAt)
		}
		return out[i].Token < out[j].Token
	})
	return out, nil
}
