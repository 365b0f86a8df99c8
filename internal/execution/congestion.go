package execution

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"solana-cluster-sniper/internal/solana"
)

// PerformanceSampler exposes getRecentPerformanceSamples.
type PerformanceSampler interface {
	GetRecentPerformanceSamples(ctx context.Context, limit int) ([]solana.PerformanceSample, error)
}

// CongestionMonitor classifies network load from slot times and feeds the
// fee tuner.
type CongestionMonitor struct {
	rpc      PerformanceSampler
	tuner    *FeeTuner
	interval time.Duration
	log      zerolog.Logger
}

// NewCongestionMonitor polls every interval (30s when zero).
func NewCongestionMonitor(rpc PerformanceSampler, tuner *FeeTuner, interval time.Duration, log zerolog.Logger) *CongestionMonitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &CongestionMonitor{
		rpc:      rpc,
		tuner:    tuner,
		interval: interval,
		log:      log.With().Str("component", "congestion").Logger(),
	}
}

// ClassifySlotTime maps average seconds per slot to a congestion level.
func ClassifySlotTime(secs float64) Congestion {
	switch {
	case secs < 0.4:
		return CongestionLow
	case secs < 0.5:
		return CongestionNormal
	case secs < 0.7:
		return CongestionHigh
	default:
		return CongestionCritical
	}
}

// Sample fetches recent samples and updates the tuner.
func (m *CongestionMonitor) Sample(ctx context.Context) (Congestion, error) {
	samples, err := m.rpc.GetRecentPerformanceSamples(ctx, 5)
	if err != nil {
		return "", err
	}
	var slots, secs int64
	for _, s := range samples {
		slots += s.NumSlots
		secs += s.SamplePeriodSecs
	}
	level := CongestionNormal
	if slots > 0 {
		level = ClassifySlotTime(float64(secs) / float64(slots))
	}
	if prev := m.tuner.Congestion(); prev != level {
		m.log.Info().Str("from", string(prev)).Str("to", string(level)).Msg("congestion changed")
	}
	m.tuner.SetCongestion(level)
	return level, nil
}

// Run samples until ctx is cancelled.
func (m *CongestionMonitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		if _, err := m.Sample(ctx); err != nil && ctx.Err() == nil {
			m.log.Warn().Err(err).Msg("performance samples unavailable")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
