package alerting

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"solana-cluster-sniper/internal/domain"
	"solana-cluster-sniper/internal/orchestrator"
	"solana-cluster-sniper/internal/position"
)

// SinkConfig selects which events alert.
type SinkConfig struct {
	// MinClusterScore filters detection alerts. Zero alerts on every
	// actionable cluster.
	MinClusterScore int
	Rejections      bool
	QueueSize       int
	SendTimeout     time.Duration
}

// DefaultSinkConfig alerts on actionable clusters, fills, failures and exits.
func DefaultSinkConfig() SinkConfig {
	return SinkConfig{QueueSize: 256, SendTimeout: 10 * time.Second}
}

// Sink adapts a Notifier to the orchestrator's event stream. Alerts are
// queued and sent from Run so a slow chat API never stalls trading.
type Sink struct {
	cfg      SinkConfig
	notifier Notifier
	log      zerolog.Logger
	queue    chan Alert
	dropped  atomic.Uint64
}

var _ orchestrator.Sink = (*Sink)(nil)

// NewSink creates a Sink.
func NewSink(cfg SinkConfig, notifier Notifier, log zerolog.Logger) *Sink {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultSinkConfig().QueueSize
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSinkConfig().SendTimeout
	}
	return &Sink{
		cfg:      cfg,
		notifier: notifier,
		log:      log.With().Str("component", "alerting").Logger(),
		queue:    make(chan Alert, cfg.QueueSize),
	}
}

// Dropped counts alerts discarded on a full queue.
func (s *Sink) Dropped() uint64 { return s.dropped.Load() }

// Run sends queued alerts until ctx ends.
func (s *Sink) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case a := <-s.queue:
			sctx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
			if err := s.notifier.Notify(sctx, a); err != nil {
				s.log.Warn().Err(err).Str("title", a.Title).Msg("alert delivery failed")
			}
			cancel()
		}
	}
}

func (s *Sink) push(a Alert) {
	select {
	case s.queue <- a:
	default:
		s.dropped.Add(1)
		s.log.Warn().Str("title", a.Title).Msg("alert queue full, dropped")
	}
}

// OnCluster alerts on new actionable clusters.
func (s *Sink) OnCluster(ev orchestrator.ClusterEvent) {
	if a, ok := ClusterAlert(ev, s.cfg.MinClusterScore); ok {
		s.push(a)
	}
}

// OnTrade alerts on fills and failures, and on rejections when enabled.
func (s *Sink) OnTrade(ev orchestrator.TradeEvent) {
	if ev.Status == orchestrator.TradeRejected && !s.cfg.Rejections {
		return
	}
	s.push(TradeAlert(ev))
}

// OnExit alerts on closed positions and failed exits.
func (s *Sink) OnExit(ev orchestrator.ExitEvent) {
	if a, ok := ExitAlert(ev); ok {
		s.push(a)
	}
}

// ClusterAlert renders a detection. Expiries and non-actionable or
// low-scoring clusters do not alert.
func ClusterAlert(ev orchestrator.ClusterEvent, minScore int) (Alert, bool) {
	c := ev.Cluster
	if ev.Kind != orchestrator.ClusterDetected || c == nil || !c.Signal.Actionable() || c.Score < minScore {
		return Alert{}, false
	}
	return Alert{
		Severity: SeverityInfo,
		Title:    "Cluster " + string(c.Signal),
		Token:    c.Token,
		Fields: []Field{
			{"score", strconv.Itoa(c.Score)},
			{"wallets", strconv.Itoa(len(c.Members))},
			{"methods", c.Methods.String()},
			{"volume_usd", c.VolumeUSD.StringFixed(2)},
			{"smart_money", strconv.FormatFloat(c.SmartMoneyFraction*100, 'f', 0, 64) + "%"},
		},
		At: ev.At,
	}, true
}

// TradeAlert renders a buy outcome.
func TradeAlert(ev orchestrator.TradeEvent) Alert {
	a := Alert{At: ev.At}
	if ev.Cluster != nil {
		a.Token = ev.Cluster.Token
	}
	switch ev.Status {
	case orchestrator.TradeFilled:
		a.Severity = SeverityInfo
		a.Title = "Bought"
		if ev.Late {
			a.Title = "Bought (late fill)"
		}
		if f := ev.Fill; f != nil {
			a.Token = f.Token
			a.Fields = append(a.Fields,
				Field{"spent_sol", lamportsToSOL(f.InAmount)},
				Field{"tokens", strconv.FormatUint(f.OutAmount, 10)},
				Field{"path", string(f.Path)},
				Field{"signature", f.Signature},
			)
		}
	case orchestrator.TradeFailed:
		a.Severity = SeverityWarning
		a.Title = "Buy failed"
		if ev.Err != nil {
			a.Fields = append(a.Fields, Field{"error", ev.Err.Error()})
		}
		a.Fields = append(a.Fields, Field{"attempts", strconv.Itoa(len(ev.Attempts))})
	default:
		a.Severity = SeverityInfo
		a.Title = "Buy rejected"
		a.Fields = append(a.Fields, Field{"reason", ev.Reason})
		if ev.Detail != "" {
			a.Fields = append(a.Fields, Field{"detail", ev.Detail})
		}
	}
	return a
}

// ExitAlert renders a closed position or a failed exit attempt.
func ExitAlert(ev orchestrator.ExitEvent) (Alert, bool) {
	p := ev.Position
	if p == nil {
		return Alert{}, false
	}
	switch ev.Kind {
	case position.EventClosed:
		sev := SeverityInfo
		if p.RealizedPnL.IsNegative() {
			sev = SeverityWarning
		}
		return Alert{
			Severity: sev,
			Title:    "Closed " + string(p.ExitReason),
			Token:    p.Token,
			Fields: []Field{
				{"pnl_sol", p.RealizedPnL.Shift(-9).StringFixed(4)},
				{"held", p.ClosedAt.Sub(p.OpenedAt).Truncate(time.Second).String()},
				{"signature", p.ExitSignature},
			},
			At: ev.At,
		}, true
	case position.EventExitFailed:
		a := Alert{
			Severity: SeverityCritical,
			Title:    "Exit failed",
			Token:    p.Token,
			Fields:   []Field{{"attempts", strconv.Itoa(p.ExitAttempts)}, {"reason", string(p.ExitReason)}},
			At:       ev.At,
		}
		if ev.Err != nil {
			a.Fields = append(a.Fields, Field{"error", ev.Err.Error()})
		}
		return a, true
	}
	return Alert{}, false
}

func lamportsToSOL(l uint64) string {
	return strconv.FormatFloat(float64(l)/float64(domain.LamportsPerSOL), 'f', 4, 64)
}
