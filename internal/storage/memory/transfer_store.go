// Package memory provides in-memory storage implementations for tests and
// for running without a database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"solana-cluster-sniper/internal/domain"
	"solana-cluster-sniper/internal/storage"
)

type transferKey struct {
	signature, wallet, token string
}

// TransferEventStore is an in-memory implementation of storage.TransferEventStore.
type TransferEventStore struct {
	mu   sync.RWMutex
	data map[transferKey]domain.TransferEvent
}

// NewTransferEventStore creates an empty store.
func NewTransferEventStore() *TransferEventStore {
	return &TransferEventStore{data: make(map[transferKey]domain.TransferEvent)}
}

var _ storage.TransferEventStore = (*TransferEventStore)(nil)

// Insert adds an event. Returns ErrDuplicateKey if (signature, wallet, token) exists.
func (s *TransferEventStore) Insert(_ context.Context, ev *domain.TransferEvent) error {
	if ev == nil || ev.Signature == "" || ev.Token == "" || !ev.Direction.IsValid() {
		return storage.ErrInvalidInput
	}
	k := transferKey{ev.Signature, ev.Wallet, ev.Token}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[k]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[k] = *ev
	return nil
}

// Tokens lists tokens with at least one buy at or after since.
func (s *TransferEventStore) Tokens(_ context.Context, since time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := make(map[string]struct{})
	for _, ev := range s.data {
		if ev.Direction == domain.DirectionBuy && !ev.Timestamp.Before(since) {
			set[ev.Token] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for token := range set {
		out = append(out, token)
	}
	sort.Strings(out)
	return out, nil
}

// Window returns the token's buys in [from, to].
func (s *TransferEventStore) Window(_ context.Context, token string, from, to time.Time) ([]domain.TransferEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.TransferEvent
	for _, ev := range s.data {
		if ev.Token == token && ev.Direction == domain.DirectionBuy &&
			!ev.Timestamp.Before(from) && !ev.Timestamp.After(to) {
			out = append(out, ev)
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

// Prune deletes events older than before.
func (s *TransferEventStore) Prune(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, ev := range s.data {
		if ev.Timestamp.Before(before) {
			delete(s.data, k)
			n++
		}
	}
	return n, nil
}
