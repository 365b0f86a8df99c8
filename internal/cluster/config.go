package cluster

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Config errors.
var (
	ErrInvalidMinWallets = errors.New("min wallets must be >= 1")
	ErrInvalidWindow     = errors.New("window must be > 0")
	ErrInvalidTolerance  = errors.New("tolerance must be in (0, 1)")
	ErrInvalidMultiplier = errors.New("multiplier must be > 1")
	ErrInvalidMaxBuyers  = errors.New("max buyers must be >= min wallets")
)

// TemporalConfig tunes the sliding-window detector.
type TemporalConfig struct {
	Enabled    bool
	Window     time.Duration
	MinWallets int
}

// AmountConfig tunes the amount-similarity detector.
type AmountConfig struct {
	Enabled    bool
	Tolerance  float64 // relative band around the bucket anchor
	MinWallets int
}

// AccumulationConfig tunes the early-accumulation detector.
type AccumulationConfig struct {
	Enabled      bool
	Short        time.Duration
	Baseline     time.Duration
	Multiplier   float64
	MinWallets   int
	MaxBuyers    int
	MinVolumeUSD decimal.Decimal
}

// Config holds detector, scoring and engine parameters.
type Config struct {
	Temporal     TemporalConfig
	Amount       AmountConfig
	Accumulation AccumulationConfig
	Score        ScoreWeights
	Wallets      WalletConfig

	ScanInterval time.Duration
	Lookback     time.Duration // buy history considered by temporal and amount detectors
	TTL          time.Duration // ACTIVE clusters expire after this
	Parallelism  int
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Temporal: TemporalConfig{Enabled: true, Window: 5 * time.Minute, MinWallets: 3},
		Amount:   AmountConfig{Enabled: true, Tolerance: 0.10, MinWallets: 3},
		Accumulation: AccumulationConfig{
			Enabled:      true,
			Short:        5 * time.Minute,
			Baseline:     60 * time.Minute,
			Multiplier:   3.0,
			MinWallets:   3,
			MaxBuyers:    10,
			MinVolumeUSD: decimal.NewFromInt(500),
		},
		Score:        DefaultScoreWeights(),
		Wallets:      DefaultWalletConfig(),
		ScanInterval: 60 * time.Second,
		Lookback:     15 * time.Minute,
		TTL:          10 * time.Minute,
		Parallelism:  8,
	}
}

// Validate checks detector parameters.
func (c Config) Validate() error {
	if c.Temporal.Enabled {
		if c.Temporal.MinWallets < 1 {
			return ErrInvalidMinWallets
		}
		if c.Temporal.Window <= 0 {
			return ErrInvalidWindow
		}
	}
	if c.Amount.Enabled {
		if c.Amount.MinWallets < 1 {
			return ErrInvalidMinWallets
		}
		if c.Amount.Tolerance <= 0 || c.Amount.Tolerance >= 1 {
			return ErrInvalidTolerance
		}
	}
	if a := c.Accumulation; a.Enabled {
		if a.MinWallets < 1 {
			return ErrInvalidMinWallets
		}
		if a.Short <= 0 || a.Baseline <= a.Short {
			return ErrInvalidWindow
		}
		if a.Multiplier <= 1 {
			return ErrInvalidMultiplier
		}
		if a.MaxBuyers < a.MinWallets {
			return ErrInvalidMaxBuyers
		}
	}
	if c.ScanInterval <= 0 || c.Lookback <= 0 || c.TTL <= 0 {
		return ErrInvalidWindow
	}
	return c.Score.Validate()
}
