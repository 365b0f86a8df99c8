// Package ingestion turns on-chain activity into TransferEvents for the
// cluster engine. Producers decode balance deltas from confirmed
// transactions; Merge fans them into one de-duplicated stream.
package ingestion

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"solana-cluster-sniper/internal/domain"
)

// ErrSourceClosed is reported when a producer's upstream stream ends.
var ErrSourceClosed = errors.New("source stream closed")

// Source produces transfer events until ctx is done. Both channels are
// closed when the producer stops. Errors are informational; a producer
// keeps running after reporting one unless the error channel is the last
// thing it sends.
type Source interface {
	Name() string
	Stream(ctx context.Context) (<-chan domain.TransferEvent, <-chan error)
}

// QuotePricer values SOL legs in USD.
type QuotePricer interface {
	SOLPriceUSD(ctx context.Context) (decimal.Decimal, error)
}

// fixedPrice is used when no pricer is configured.
type fixedPrice decimal.Decimal

func (p fixedPrice) SOLPriceUSD(context.Context) (decimal.Decimal, error) {
	return decimal.Decimal(p), nil
}

const (
	fetchRetries   = 3
	fetchBaseDelay = 500 * time.Millisecond
	defaultBuffer  = 256
)

// report delivers err without blocking past ctx.
func report(ctx context.Context, errs chan<- error, err error) {
	select {
	case errs <- err:
	case <-ctx.Done():
	default:
	}
}
