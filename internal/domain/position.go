package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionState is the lifecycle state of a position.
type PositionState string

const (
	PositionOpen    PositionState = "OPEN"
	PositionExiting PositionState = "EXITING"
	PositionClosed  PositionState = "CLOSED"
)

// ExitReason explains why a position left OPEN.
type ExitReason string

const (
	ExitTakeProfit   ExitReason = "TAKE_PROFIT"
	ExitStopLoss     ExitReason = "STOP_LOSS"
	ExitTrailingStop ExitReason = "TRAILING_STOP"
	ExitMaxHold      ExitReason = "MAX_HOLD"
	ExitEmergency    ExitReason = "EMERGENCY"
)

// Position is an open or archived holding in one token.
type Position struct {
	Token             string
	Pool              string
	State             PositionState
	EntryPrice        decimal.Decimal // lamports per raw token unit
	EntryAmount       uint64          // raw token units held
	EntryCostLamports uint64          // notional + fees paid on entry
	HighWaterMark     decimal.Decimal
	LastPrice         decimal.Decimal
	OpenedAt          time.Time
	EntrySignature    string
	ClusterID         string

	ExitReason    ExitReason
	ExitDetail    string
	ExitAttempts  int
	ExitStartedAt time.Time

	ExitPrice     decimal.Decimal
	ExitSignature string
	RealizedPnL   decimal.Decimal // lamports, net of fees
	ClosedAt      time.Time
}

// Clone returns a copy safe to hand out as a read-only snapshot.
func (p *Position) Clone() *Position {
	cp := *p
	return &cp
}

// Emergency reports whether the position is exiting on an emergency trigger.
func (p *Position) Emergency() bool {
	return p.ExitReason == ExitEmergency
}
