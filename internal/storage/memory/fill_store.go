package memory

import (
	"context"
	"sort"
	"sync"

	"solana-cluster-sniper/internal/domain"
	"solana-cluster-sniper/internal/storage"
)

// FillStore is an in-memory implementation of storage.FillStore.
type FillStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Fill // keyed by signature
}

// NewFillStore creates an empty store.
func NewFillStore() *FillStore {
	return &FillStore{data: make(map[string]*domain.Fill)}
}

var _ storage.FillStore = (*FillStore)(nil)

// Insert adds a fill. Returns ErrDuplicateKey if the signature exists.
func (s *FillStore) Insert(_ context.Context, f *domain.Fill) error {
	if f == nil || f.Signature == "" || f.IntentID == "" {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[f.Signature]; exists {
		return storage.ErrDuplicateKey
	}
	cp := *f
	s.data[f.Signature] = &cp
	return nil
}

// GetByIntentID returns the fill for an intent.
func (s *FillStore) GetByIntentID(_ context.Context, intentID string) (*domain.Fill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, f := range s.data {
		if f.IntentID == intentID {
			cp := *f
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

// GetByToken returns the token's fills ordered by time.
func (s *FillStore) GetByToken(_ context.Context, token string) ([]*domain.Fill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Fill
	for _, f := range s.data {
		if f.Token == token {
			cp := *f
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
