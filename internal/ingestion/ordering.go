package ingestion

import (
	"errors"
	"sort"

	"solana-cluster-sniper/internal/domain"
)

// ErrInvalidOrdering is returned when events are not in chain order.
var ErrInvalidOrdering = errors.New("events are not in deterministic order")

// SortEvents orders events by (slot, index), falling back to timestamp and
// signature. Events from one transaction keep their relative order.
func SortEvents(events []domain.TransferEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Less(&events[j])
	})
}

// ValidateOrdering reports ErrInvalidOrdering when any event sorts before
// its predecessor.
func ValidateOrdering(events []domain.TransferEvent) error {
	for i := 1; i < len(events); i++ {
		if events[i].Less(&events[i-1]) {
			return ErrInvalidOrdering
		}
	}
	return nil
}
