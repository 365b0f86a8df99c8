package ingestion

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"solana-cluster-sniper/internal/domain"
	"solana-cluster-sniper/internal/solana"
)

// WSConfig tunes a WSSource.
type WSConfig struct {
	// Mentions are subscribed one address per subscription; some providers
	// reject multi-address filters.
	Mentions []string
	// Workers bounds concurrent getTransaction lookups.
	Workers int
}

// WSSource follows logsSubscribe notifications and decodes each mentioned
// transaction.
type WSSource struct {
	ws      solana.LogStream
	decoder *Decoder
	cfg     WSConfig
	log     zerolog.Logger
}

// NewWSSource creates a WebSocket-backed producer.
func NewWSSource(ws solana.LogStream, decoder *Decoder, cfg WSConfig, log zerolog.Logger) *WSSource {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	return &WSSource{
		ws:      ws,
		decoder: decoder,
		cfg:     cfg,
		log:     log.With().Str("component", "ws_source").Logger(),
	}
}

var _ Source = (*WSSource)(nil)

// Name implements Source.
func (s *WSSource) Name() string { return "ws" }

// Stream implements Source.
func (s *WSSource) Stream(ctx context.Context) (<-chan domain.TransferEvent, <-chan error) {
	out := make(chan domain.TransferEvent, defaultBuffer)
	errs := make(chan error, 8)

	var subs []<-chan solana.LogNotification
	for _, addr := range s.cfg.Mentions {
		ch, err := s.ws.SubscribeLogs(ctx, solana.LogsFilter{Mentions: []string{addr}})
		if err != nil {
			report(ctx, errs, err)
			continue
		}
		s.log.Info().Str("address", addr).Msg("subscribed")
		subs = append(subs, ch)
	}

	go func() {
		defer close(errs)
		defer close(out)
		if len(subs) == 0 {
			report(ctx, errs, ErrSourceClosed)
			return
		}

		notes := make(chan solana.LogNotification, defaultBuffer)
		var fan errgroup.Group
		for _, ch := range subs {
			fan.Go(func() error {
				for n := range ch {
					select {
					case notes <- n:
					case <-ctx.Done():
						return nil
					}
				}
				return nil
			})
		}
		go func() {
			_ = fan.Wait()
			close(notes)
		}()

		var work errgroup.Group
		work.SetLimit(s.cfg.Workers)
		defer func() { _ = work.Wait() }()
		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-notes:
				if !ok {
					report(ctx, errs, ErrSourceClosed)
					return
				}
				if n.Failed() {
					continue
				}
				work.Go(func() error {
					s.handle(ctx, n, out, errs)
					return nil
				})
			}
		}
	}()
	return out, errs
}

func (s *WSSource) handle(ctx context.Context, n solana.LogNotification, out chan<- domain.TransferEvent, errs chan<- error) {
	tx, err := s.decoder.Fetch(ctx, n.Signature)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Warn().Err(err).Str("signature", n.Signature).Int64("slot", n.Slot).Msg("transaction dropped")
			report(ctx, errs, err)
		}
		return
	}
	for _, ev := range s.decoder.Decode(ctx, tx) {
		select {
		case out <- ev:
		case <-ctx.Done():
			return
		}
	}
}
