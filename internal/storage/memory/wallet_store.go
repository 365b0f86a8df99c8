package memory

import (
	"context"
	"sort"
	"sync"

	"solana-cluster-sniper/internal/domain"
	"solana-cluster-sniper/internal/storage"
)

// WalletStore is an in-memory implementation of storage.WalletStore.
type WalletStore struct {
	mu   sync.RWMutex
	data map[string]domain.Wallet
}

// NewWalletStore creates an empty store.
func NewWalletStore() *WalletStore {
	return &WalletStore{data: make(map[string]domain.Wallet)}
}

var _ storage.WalletStore = (*WalletStore)(nil)

// Upsert inserts or replaces each wallet.
func (s *WalletStore) Upsert(_ context.Context, wallets []*domain.Wallet) error {
	for _, w := range wallets {
		if w == nil || w.Address == "" {
			return storage.ErrInvalidInput
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range wallets {
		s.data[w.Address] = *w
	}
	return nil
}

// GetAll returns every wallet ordered by address.
func (s *WalletStore) GetAll(_ context.Context) ([]*domain.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Wallet, 0, len(s.data))
	for _, w := range s.data {
		cp := w
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}
