package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"solana-cluster-sniper/internal/domain"
	"solana-cluster-sniper/internal/solana"
)

// PollConfig tunes a PollSource.
type PollConfig struct {
	Addresses []string
	Interval  time.Duration
	Limit     int
	// Backfill emits the first page of history instead of only recording
	// the cursor on the first poll.
	Backfill bool
}

// DefaultPollConfig polls every 10 seconds, 100 signatures per page.
func DefaultPollConfig() PollConfig {
	return PollConfig{Interval: 10 * time.Second, Limit: 100}
}

// PollSource walks getSignaturesForAddress for each address, remembering
// the newest signature it has seen.
type PollSource struct {
	rpc     solana.RPCClient
	decoder *Decoder
	cfg     PollConfig
	log     zerolog.Logger

	cursor map[string]string
	primed map[string]bool
}

// NewPollSource creates a polling producer.
func NewPollSource(rpc solana.RPCClient, decoder *Decoder, cfg PollConfig, log zerolog.Logger) *PollSource {
	def := DefaultPollConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Limit <= 0 {
		cfg.Limit = def.Limit
	}
	return &PollSource{
		rpc:     rpc,
		decoder: decoder,
		cfg:     cfg,
		log:     log.With().Str("component", "poll_source").Logger(),
		cursor:  make(map[string]string),
		primed:  make(map[string]bool),
	}
}

var _ Source = (*PollSource)(nil)

// Name implements Source.
func (s *PollSource) Name() string { return "poll" }

// Stream implements Source.
func (s *PollSource) Stream(ctx context.Context) (<-chan domain.TransferEvent, <-chan error) {
	out := make(chan domain.TransferEvent, defaultBuffer)
	errs := make(chan error, 8)
	go func() {
		defer close(errs)
		defer close(out)
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			for _, addr := range s.cfg.Addresses {
				events, err := s.Poll(ctx, addr)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					s.log.Warn().Err(err).Str("address", addr).Msg("poll failed")
					report(ctx, errs, err)
				}
				for _, ev := range events {
					select {
					case out <- ev:
					case <-ctx.Done():
						return
					}
				}
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return out, errs
}

// Poll fetches signatures newer than the address cursor and returns their
// decoded events in chain order. The cursor only advances on success.
func (s *PollSource) Poll(ctx context.Context, addr string) ([]domain.TransferEvent, error) {
	cursor := s.cursor[addr]
	sigs, err := s.rpc.GetSignaturesForAddress(ctx, addr, &solana.SignaturesOpts{Until: cursor, Limit: s.cfg.Limit})
	if err != nil {
		return nil, fmt.Errorf("signatures for %s: %w", addr, err)
	}
	var fresh []solana.SignatureInfo
	for _, si := range sigs {
		if si.Signature == cursor {
			break
		}
		fresh = append(fresh, si)
	}
	if len(fresh) == 0 {
		s.primed[addr] = true
		return nil, nil
	}

	first := !s.primed[addr]
	s.primed[addr] = true
	if first && !s.cfg.Backfill {
		s.cursor[addr] = fresh[0].Signature
		return nil, nil
	}

	var events []domain.TransferEvent
	for i := len(fresh) - 1; i >= 0; i-- {
		si := fresh[i]
		if si.Err != nil {
			continue
		}
		tx, err := s.decoder.Fetch(ctx, si.Signature)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.log.Warn().Err(err).Str("signature", si.Signature).Msg("transaction dropped")
			continue
		}
		events = append(events, s.decoder.Decode(ctx, tx)...)
	}
	SortEvents(events)
	s.cursor[addr] = fresh[0].Signature
	return events, nil
}
