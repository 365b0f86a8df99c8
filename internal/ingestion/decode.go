package ingestion

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"solana-cluster-sniper/internal/domain"
	"solana-cluster-sniper/internal/solana"
)

// Decoder fetches transactions and converts the signer's balance changes
// into transfer events.
type Decoder struct {
	rpc     solana.RPCClient
	pricer  QuotePricer
	wallets map[string]bool
	log     zerolog.Logger
	now     func() time.Time
	delay   time.Duration
}

// NewDecoder creates a Decoder. A nil pricer leaves QuoteUSD zero. When
// wallets is non-empty only transactions signed by one of them decode.
func NewDecoder(rpc solana.RPCClient, pricer QuotePricer, wallets []string, log zerolog.Logger) *Decoder {
	if pricer == nil {
		pricer = fixedPrice(decimal.Zero)
	}
	d := &Decoder{
		rpc:    rpc,
		pricer: pricer,
		log:    log.With().Str("component", "decoder").Logger(),
		now:    time.Now,
		delay:  fetchBaseDelay,
	}
	if len(wallets) > 0 {
		d.wallets = make(map[string]bool, len(wallets))
		for _, w := range wallets {
			d.wallets[w] = true
		}
	}
	return d
}

// Fetch loads a transaction, retrying with exponential backoff. A
// transaction the node does not have yet counts as a failed attempt.
func (d *Decoder) Fetch(ctx context.Context, signature string) (*solana.Transaction, error) {
	var lastErr error
	for attempt := 0; attempt < fetchRetries; attempt++ {
		tx, err := d.rpc.GetTransaction(ctx, signature)
		if err == nil && tx != nil {
			return tx, nil
		}
		if err == nil {
			err = fmt.Errorf("transaction %s not found", signature)
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt == fetchRetries-1 {
			break
		}
		delay := d.delay * time.Duration(1<<attempt)
		d.log.Debug().Err(err).Str("signature", signature).Int("attempt", attempt+1).Dur("delay", delay).Msg("retrying getTransaction")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("%w: %v", domain.ErrDataUnavailable, lastErr)
}

// Decode returns one event per non-WSOL mint whose balance changed for the
// signer. Failed transactions decode to nothing. When several mints move
// the same way, the SOL leg is split evenly between them.
func (d *Decoder) Decode(ctx context.Context, tx *solana.Transaction) []domain.TransferEvent {
	if tx == nil || tx.Meta == nil || tx.Meta.Err != nil || tx.Message == nil || len(tx.Message.AccountKeys) == 0 {
		return nil
	}
	signer := tx.Message.AccountKeys[0]
	if d.wallets != nil && !d.wallets[signer] {
		return nil
	}

	ts := d.now()
	if tx.BlockTime > 0 {
		ts = time.Unix(tx.BlockTime, 0)
	}

	var out []domain.TransferEvent
	var lamports int64
	for _, mint := range solana.TradedMints(tx, signer) {
		delta, ok := solana.OwnerDelta(tx, signer, mint)
		if !ok || delta.Tokens.Sign() == 0 {
			continue
		}
		size := new(big.Int).Abs(delta.Tokens)
		if !size.IsUint64() {
			continue
		}
		// The fee is charged to the signer either way; quote legs exclude it.
		lamports = delta.Lamports + int64(delta.Fee)
		dir := domain.DirectionBuy
		if delta.Tokens.Sign() < 0 {
			dir = domain.DirectionSell
		}
		out = append(out, domain.TransferEvent{
			Signature:   tx.Signature,
			Wallet:      signer,
			Token:       mint,
			Direction:   dir,
			TokenAmount: size.Uint64(),
			Timestamp:   ts,
			Slot:        tx.Slot,
			Index:       -1,
		})
	}

	// SOL out pays for buys; SOL in comes from sells.
	var quote uint64
	legDir := domain.DirectionBuy
	switch {
	case lamports < 0:
		quote = uint64(-lamports)
	case lamports > 0:
		quote = uint64(lamports)
		legDir = domain.DirectionSell
	}
	var legs uint64
	for i := range out {
		if out[i].Direction == legDir {
			legs++
		}
	}

	var solUSD decimal.Decimal
	var priced bool
	first := true
	for i := range out {
		ev := &out[i]
		if quote == 0 || ev.Direction != legDir {
			ev.Direction = domain.DirectionTransfer
			continue
		}
		ev.QuoteLamports = quote / legs
		if first {
			ev.QuoteLamports += quote % legs
			first = false
		}
		if !priced {
			p, err := d.pricer.SOLPriceUSD(ctx)
			if err != nil {
				d.log.Warn().Err(err).Str("signature", tx.Signature).Msg("SOL price unavailable, USD leg left zero")
			} else {
				solUSD = p
			}
			priced = true
		}
		ev.QuoteUSD = domain.Uint64(ev.QuoteLamports).Div(decimal.NewFromInt(domain.LamportsPerSOL)).Mul(solUSD)
	}
	if legs > 1 {
		d.log.Debug().Str("signature", tx.Signature).Uint64("legs", legs).Uint64("lamports", quote).Msg("SOL leg split across mints")
	}
	return out
}
