package domain

import "time"

// Side of a trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Constraints bound how an intent may be executed.
type Constraints struct {
	MaxSlippageBps int
	MaxImpactBps   int
	Deadline       time.Time
}

// TradeIntent is a short-lived request consumed by the execution router.
type TradeIntent struct {
	ID        string
	Token     string
	Pool      string // empty when no direct pool route is known
	Side      Side
	ClusterID string // empty for exits

	// AmountIn is lamports for buys and raw token units for sells.
	AmountIn uint64

	Constraints Constraints
	Emergency   bool

	// PriorAttempts counts earlier intents for the same trade that failed;
	// fee, tip and slippage start that many rounds up.
	PriorAttempts int
	CreatedAt     time.Time
}

// Path identifies a submission protocol.
type Path string

const (
	PathBundle     Path = "bundle"
	PathDirect     Path = "direct"
	PathAggregator Path = "aggregator"
	PathRPC        Path = "rpc"
)
