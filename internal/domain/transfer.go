package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the side of a transfer relative to the wallet.
type Direction string

const (
	DirectionBuy      Direction = "buy"
	DirectionSell     Direction = "sell"
	DirectionTransfer Direction = "transfer"
)

// IsValid checks if the direction is a known value.
func (d Direction) IsValid() bool {
	return d == DirectionBuy || d == DirectionSell || d == DirectionTransfer
}

// TransferEvent is a single observed token movement for one wallet.
// Events are immutable once observed and keyed by Signature.
type TransferEvent struct {
	Signature     string          // transaction signature
	Wallet        string          // signer / owner address
	Token         string          // token mint
	Direction     Direction       // buy | sell | transfer
	TokenAmount   uint64          // raw token units
	QuoteLamports uint64          // SOL leg in lamports
	QuoteUSD      decimal.Decimal // quote leg valued in USD
	Timestamp     time.Time
	Slot          int64 // 0 when unknown
	Index         int   // intra-slot index, -1 when unknown
}

// Key identifies the event for dedup. One transaction can move several
// mints, so the signature alone is not unique.
func (e *TransferEvent) Key() string {
	return e.Signature + "/" + e.Wallet + "/" + e.Token
}

// Less orders events by (slot, index) when both carry them, else by timestamp.
func (e *TransferEvent) Less(o *TransferEvent) bool {
	if e.Slot > 0 && o.Slot > 0 && e.Index >= 0 && o.Index >= 0 {
		if e.Slot != o.Slot {
			return e.Slot < o.Slot
		}
		return e.Index < o.Index
	}
	if !e.Timestamp.Equal(o.Timestamp) {
		return e.Timestamp.Before(o.Timestamp)
	}
	return e.Signature < o.Signature
}
