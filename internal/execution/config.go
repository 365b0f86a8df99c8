package execution

import (
	"errors"
	"time"

	"solana-cluster-sniper/internal/domain"
)

// Config errors.
var (
	ErrInvalidSlippage = errors.New("slippage bounds must satisfy 0 < base <= max <= 10000")
	ErrInvalidTimeouts = errors.New("attempt timeout and confirm poll must be positive")
	ErrNoPaths         = errors.New("at least one execution path must be enabled")
)

// Config tunes the execution router.
type Config struct {
	// Paths are tried in this order; later paths start when an earlier one
	// fails or HedgeDelay passes without a result.
	Paths          []domain.Path
	MaxRetries     int // rounds after the first
	HedgeDelay     time.Duration
	AttemptTimeout time.Duration
	ConfirmPoll    time.Duration
	SettleTimeout  time.Duration
	// LateWatch is how long cancelled submissions are watched for landing.
	LateWatch time.Duration

	ComputeUnitLimit uint32
	PriorityFeeStep  uint64 // micro-lamports added per retry round

	BaseSlippageBps      int
	SlippageStepBps      int
	MaxSlippageBps       int
	PanicBaseSlippageBps int
	PanicMaxSlippageBps  int
	MaxImpactBps         int

	JitoURL    string
	JupiterURL string
	DryRun     bool

	Fee     FeeConfig
	Tip     TipConfig
	Pause   PauseConfig
	Breaker BreakerConfig
}

// DefaultConfig races all four paths with two retry rounds.
func DefaultConfig() Config {
	return Config{
		Paths:                []domain.Path{domain.PathBundle, domain.PathDirect, domain.PathAggregator, domain.PathRPC},
		MaxRetries:           2,
		HedgeDelay:           250 * time.Millisecond,
		AttemptTimeout:       20 * time.Second,
		ConfirmPoll:          400 * time.Millisecond,
		SettleTimeout:        5 * time.Second,
		LateWatch:            time.Minute,
		ComputeUnitLimit:     200_000,
		PriorityFeeStep:      50_000,
		BaseSlippageBps:      500,
		SlippageStepBps:      200,
		MaxSlippageBps:       2000,
		PanicBaseSlippageBps: 1000,
		PanicMaxSlippageBps:  3000,
		MaxImpactBps:         2000,
		JitoURL:              DefaultJitoURL,
		JupiterURL:           DefaultJupiterURL,
		Fee:                  DefaultFeeConfig(),
		Tip:                  DefaultTipConfig(),
		Pause:                DefaultPauseConfig(),
		Breaker:              DefaultBreakerConfig(),
	}
}

// Validate checks the router settings.
func (c Config) Validate() error {
	if len(c.Paths) == 0 {
		return ErrNoPaths
	}
	for _, pair := range [][2]int{{c.BaseSlippageBps, c.MaxSlippageBps}, {c.PanicBaseSlippageBps, c.PanicMaxSlippageBps}} {
		if pair[0] <= 0 || pair[0] > pair[1] || pair[1] > 10_000 {
			return ErrInvalidSlippage
		}
	}
	if c.AttemptTimeout <= 0 || c.ConfirmPoll <= 0 {
		return ErrInvalidTimeouts
	}
	return nil
}
