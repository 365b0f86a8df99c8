package ingestion

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"solana-cluster-sniper/internal/domain"
)

// DefaultDedupWindow is how many recent event keys Merge remembers.
const DefaultDedupWindow = 100_000

// seenSet remembers the last n keys in insertion order.
type seenSet struct {
	mu   sync.Mutex
	keys map[string]struct{}
	ring []string
	next int
}

func newSeenSet(n int) *seenSet {
	if n <= 0 {
		n = DefaultDedupWindow
	}
	return &seenSet{keys: make(map[string]struct{}, n), ring: make([]string, n)}
}

// add reports whether key is new.
func (s *seenSet) add(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; ok {
		return false
	}
	if old := s.ring[s.next]; old != "" {
		delete(s.keys, old)
	}
	s.ring[s.next] = key
	s.next = (s.next + 1) % len(s.ring)
	s.keys[key] = struct{}{}
	return true
}

// Merge fans every source into one channel, dropping events already
// delivered by another source. The output closes once all sources stop.
// Source errors are logged and counted through onError when non-nil.
func Merge(ctx context.Context, sources []Source, window int, onError func(source string, err error), log zerolog.Logger) <-chan domain.TransferEvent {
	log = log.With().Str("component", "ingestion").Logger()
	out := make(chan domain.TransferEvent, defaultBuffer)
	seen := newSeenSet(window)

	var wg sync.WaitGroup
	for _, src := range sources {
		events, errs := src.Stream(ctx)
		name := src.Name()
		wg.Add(2)
		go func() {
			defer wg.Done()
			for err := range errs {
				log.Warn().Err(err).Str("source", name).Msg("source error")
				if onError != nil {
					onError(name, err)
				}
			}
		}()
		go func() {
			defer wg.Done()
			for ev := range events {
				if !seen.add(ev.Key()) {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					// drain so the producer can exit
					for range events {
					}
					return
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}
