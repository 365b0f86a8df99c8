package position

import (
	"errors"
	"time"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid position config")

// Config holds exit policy. Fractions are relative: 0.75 is 75%.
type Config struct {
	TakeProfit      float64
	StopLoss        float64
	TrailActivation float64 // gain over entry before the trailing stop arms
	Trail           float64 // allowed fall below the high-water mark
	MaxHold         time.Duration

	RugLiquidityUSD float64
	RugDrop         float64 // fall from the high-water mark treated as a rug

	PollInterval time.Duration
	ExitTimeout  time.Duration
	Parallelism  int
	History      int // closed positions kept in memory
}

// DefaultConfig exits at +75% / -15%, trails 10% once up 20%, and holds at most an hour.
func DefaultConfig() Config {
	return Config{
		TakeProfit:      0.75,
		StopLoss:        0.15,
		TrailActivation: 0.20,
		Trail:           0.10,
		MaxHold:         time.Hour,
		RugLiquidityUSD: 2000,
		RugDrop:         0.35,
		PollInterval:    5 * time.Second,
		ExitTimeout:     30 * time.Second,
		Parallelism:     8,
		History:         256,
	}
}

// Validate checks ranges.
func (c Config) Validate() error {
	switch {
	case c.TakeProfit <= 0, c.StopLoss <= 0 || c.StopLoss >= 1:
		return ErrInvalidConfig
	case c.Trail <= 0 || c.Trail >= 1, c.TrailActivation < 0:
		return ErrInvalidConfig
	case c.RugDrop <= 0 || c.RugDrop > 1:
		return ErrInvalidConfig
	case c.MaxHold <= 0, c.PollInterval <= 0:
		return ErrInvalidConfig
	}
	return nil
}
