package memory

import (
	"context"
	"sort"
	"sync"

	"solana-cluster-sniper/internal/domain"
	"solana-cluster-sniper/internal/storage"
)

// ClusterStore is an in-memory implementation of storage.ClusterStore.
type ClusterStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Cluster
}

// NewClusterStore creates an empty store.
func NewClusterStore() *ClusterStore {
	return &ClusterStore{data: make(map[string]*domain.Cluster)}
}

var _ storage.ClusterStore = (*ClusterStore)(nil)

// Insert adds a cluster. Returns ErrDuplicateKey if the id exists.
func (s *ClusterStore) Insert(_ context.Context, c *domain.Cluster) error {
	if c == nil || c.ID == "" {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[c.ID]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[c.ID] = c.Clone()
	return nil
}

// UpdateStatus changes a cluster's status.
func (s *ClusterStore) UpdateStatus(_ context.Context, id string, status domain.ClusterStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.data[id]
	if !ok {
		return storage.ErrNotFound
	}
	c.Status = status
	return nil
}

// GetByID returns a copy of the cluster.
func (s *ClusterStore) GetByID(_ context.Context, id string) (*domain.Cluster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.data[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return c.Clone(), nil
}

// GetByToken returns the token's clusters ordered by detection time.
func (s *ClusterStore) GetByToken(_ context.Context, token string) ([]*domain.Cluster, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Cluster
	for _, c := range s.data {
		if c.Token == token {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DetectedAt.Equal(out[j].DetectedAt) {
			return out[i].DetectedAt.Before(out[j].DetectedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
