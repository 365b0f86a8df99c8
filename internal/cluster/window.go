package cluster

import (
	"context"
	"sort"
	"sync"
	"time"

	"solana-cluster-sniper/internal/domain"
)

// EventSource yields buy events per token for a scan.
// Window fails with domain.ErrDataUnavailable when the token's data cannot be read.
type EventSource interface {
	Tokens(ctx context.Context, since time.Time) ([]string, error)
	Window(ctx context.Context, token string, from, to time.Time) ([]domain.TransferEvent, error)
}

// Window is the in-memory EventSource fed by Engine.Ingest.
type Window struct {
	mu      sync.RWMutex
	byToken map[string][]domain.TransferEvent
}

// NewWindow creates an empty window.
func NewWindow() *Window {
	return &Window{byToken: make(map[string][]domain.TransferEvent)}
}

var _ EventSource = (*Window)(nil)

// Add inserts a buy keeping the token's slice time-ordered.
func (w *Window) Add(ev domain.TransferEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	buys := w.byToken[ev.Token]
	i := sort.Search(len(buys), func(i int) bool { return buyBefore(&ev, &buys[i]) })
	buys = append(buys, domain.TransferEvent{})
	copy(buys[i+1:], buys[i:])
	buys[i] = ev
	w.byToken[ev.Token] = buys
}

// Tokens lists tokens with at least one buy at or after since.
func (w *Window) Tokens(_ context.Context, since time.Time) ([]string, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]string, 0, len(w.byToken))
	for token, buys := range w.byToken {
		if len(buys) > 0 && !buys[len(buys)-1].Timestamp.Before(since) {
			out = append(out, token)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Window returns a copy of the token's buys in [from, to].
func (w *Window) Window(_ context.Context, token string, from, to time.Time) ([]domain.TransferEvent, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	buys := since(w.byToken[token], from)
	end := sort.Search(len(buys), func(i int) bool { return buys[i].Timestamp.After(to) })
	return append([]domain.TransferEvent(nil), buys[:end]...), nil
}

// Prune drops buys older than before and returns their event keys.
func (w *Window) Prune(before time.Time) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var dropped []string
	for token, buys := range w.byToken {
		keep := since(buys, before)
		for i := 0; i < len(buys)-len(keep); i++ {
			dropped = append(dropped, buys[i].Key())
		}
		if len(keep) == 0 {
			delete(w.byToken, token)
			continue
		}
		w.byToken[token] = append([]domain.TransferEvent(nil), keep...)
	}
	return dropped
}

// Len returns the number of buffered buys.
func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	n := 0
	for _, buys := range w.byToken {
		n += len(buys)
	}
	return n
}
