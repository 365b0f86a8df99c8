package orchestrator

import (
	"time"

	"solana-cluster-sniper/internal/domain"
	"solana-cluster-sniper/internal/execution"
	"solana-cluster-sniper/internal/position"
)

// ClusterKind names a cluster lifecycle event.
type ClusterKind string

const (
	ClusterDetected ClusterKind = "detected"
	ClusterExpired  ClusterKind = "expired"
)

// ClusterEvent reports a cluster entering or leaving ACTIVE.
type ClusterEvent struct {
	Kind    ClusterKind
	Cluster *domain.Cluster
	At      time.Time
}

// TradeStatus is the outcome of a buy attempt.
type TradeStatus string

const (
	TradeFilled   TradeStatus = "filled"
	TradeRejected TradeStatus = "rejected"
	TradeFailed   TradeStatus = "failed"
)

// Rejection reasons outside the safety gate's own.
const (
	ReasonPaused     = "paused"
	ReasonMarketData = "market_data"
	ReasonSizing     = "sizing"
	ReasonExposure   = "exposure"
	ReasonExecution  = "execution"
)

// TradeEvent reports a fill, a rejection or a failed execution. Late is set
// for fills that landed after their intent was given up on.
type TradeEvent struct {
	Status   TradeStatus
	Cluster  *domain.Cluster
	Intent   *domain.TradeIntent
	Fill     *domain.Fill
	Position *domain.Position
	Attempts []execution.Attempt
	Reason   string
	Detail   string
	Err      error
	Late     bool
	At       time.Time
}

// ExitEvent mirrors a position lifecycle transition.
type ExitEvent struct {
	Kind     position.EventKind
	Position *domain.Position
	Fill     *domain.Fill
	Err      error
	At       time.Time
}

// ExitEventFrom converts a position manager event.
func ExitEventFrom(ev position.Event, at time.Time) ExitEvent {
	return ExitEvent{Kind: ev.Kind, Position: ev.Position, Fill: ev.Fill, Err: ev.Err, At: at}
}

// Sink receives pipeline events. Implementations must not block for long;
// they run on the pipeline's goroutines.
type Sink interface {
	OnCluster(ClusterEvent)
	OnTrade(TradeEvent)
	OnExit(ExitEvent)
}

// Sinks fans every event out to each member in order.
type Sinks []Sink

var _ Sink = Sinks(nil)

func (s Sinks) OnCluster(ev ClusterEvent) {
	for _, sink := range s {
		sink.OnCluster(ev)
	}
}

func (s Sinks) OnTrade(ev TradeEvent) {
	for _, sink := range s {
		sink.OnTrade(ev)
	}
}

func (s Sinks) OnExit(ev ExitEvent) {
	for _, sink := range s {
		sink.OnExit(ev)
	}
}
