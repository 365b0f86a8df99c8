package execution

import (
	"sync"
	"time"
)

// Congestion is the network load level used to scale priority fees.
type Congestion string

const (
	CongestionLow      Congestion = "low"
	CongestionNormal   Congestion = "normal"
	CongestionHigh     Congestion = "high"
	CongestionCritical Congestion = "critical"
)

// Outcome is the result of one execution round as seen by the fee tuner.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailure
	OutcomeTimeout
)

// FeeConfig tunes the priority fee in micro-lamports per compute unit.
type FeeConfig struct {
	Base               uint64
	Min                uint64
	Max                uint64
	SuccessDecreasePct float64
	FailureIncreasePct float64
	TimeoutIncreasePct float64
	SuccessStreak      int // successes in a row before decreasing
	Cooldown           time.Duration

	LowMultiplier      float64
	HighMultiplier     float64
	CriticalMultiplier float64
}

// DefaultFeeConfig returns the stock tuning.
func DefaultFeeConfig() FeeConfig {
	return FeeConfig{
		Base:               50_000,
		Min:                10_000,
		Max:                1_000_000,
		SuccessDecreasePct: 10,
		FailureIncreasePct: 50,
		TimeoutIncreasePct: 25,
		SuccessStreak:      3,
		Cooldown:           30 * time.Second,
		LowMultiplier:      0.75,
		HighMultiplier:     2,
		CriticalMultiplier: 4,
	}
}

// FeeTuner adapts the priority fee to recent outcomes and congestion.
type FeeTuner struct {
	cfg FeeConfig
	now func() time.Time

	mu         sync.Mutex
	current    uint64
	streak     int
	lastAdjust time.Time
	congestion Congestion
}

// NewFeeTuner starts at the base fee under normal congestion.
func NewFeeTuner(cfg FeeConfig) *FeeTuner {
	return &FeeTuner{cfg: cfg, now: time.Now, current: cfg.Base, congestion: CongestionNormal}
}

// Current returns the congestion-scaled fee, clamped to [Min, Max].
func (t *FeeTuner) Current() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.clamp(uint64(float64(t.current) * t.multiplier()))
}

// Max returns the configured ceiling.
func (t *FeeTuner) Max() uint64 { return t.cfg.Max }

func (t *FeeTuner) multiplier() float64 {
	switch t.congestion {
	case CongestionLow:
		return t.cfg.LowMultiplier
	case CongestionHigh:
		return t.cfg.HighMultiplier
	case CongestionCritical:
		return t.cfg.CriticalMultiplier
	default:
		return 1
	}
}

// Record folds one outcome in and returns the new unscaled fee. Adjustments
// closer together than Cooldown are ignored.
func (t *FeeTuner) Record(o Outcome) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if !t.lastAdjust.IsZero() && now.Sub(t.lastAdjust) < t.cfg.Cooldown {
		return t.current
	}

	switch o {
	case OutcomeSuccess:
		t.streak++
		if t.streak >= t.cfg.SuccessStreak {
			t.current = t.clamp(uint64(float64(t.current) * (1 - t.cfg.SuccessDecreasePct/100)))
			t.lastAdjust = now
			t.streak = 0
		}
	case OutcomeTimeout:
		t.streak = 0
		t.current = t.clamp(uint64(float64(t.current) * (1 + t.cfg.TimeoutIncreasePct/100)))
		t.lastAdjust = now
	default:
		t.streak = 0
		t.current = t.clamp(uint64(float64(t.current) * (1 + t.cfg.FailureIncreasePct/100)))
		t.lastAdjust = now
	}
	return t.current
}

// SetCongestion updates the congestion level.
func (t *FeeTuner) SetCongestion(c Congestion) {
	t.mu.Lock()
	t.congestion = c
	t.mu.Unlock()
}

// Congestion returns the current level.
func (t *FeeTuner) Congestion() Congestion {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.congestion
}

// Reset returns to the base fee.
func (t *FeeTuner) Reset() {
	t.mu.Lock()
	t.current = t.cfg.Base
	t.streak = 0
	t.lastAdjust = time.Time{}
	t.mu.Unlock()
}

func (t *FeeTuner) clamp(fee uint64) uint64 {
	if fee < t.cfg.Min {
		return t.cfg.Min
	}
	if fee > t.cfg.Max {
		return t.cfg.Max
	}
	return fee
}
