// Package observability exposes Prometheus metrics and the ops HTTP server.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"solana-cluster-sniper/internal/execution"
	"solana-cluster-sniper/internal/orchestrator"
	"solana-cluster-sniper/internal/position"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "sniper"

// Metrics holds all Prometheus metrics for the application. It is an
// orchestrator sink and provides observer hooks for the router and the
// RPC client.
type Metrics struct {
	registry *prometheus.Registry
	factory  promauto.Factory
	ns       string

	// Ingestion metrics
	TransfersIngested *prometheus.CounterVec
	SourceErrors      *prometheus.CounterVec

	// Cluster metrics
	ClustersDetected *prometheus.CounterVec
	ClustersExpired  prometheus.Counter
	ClusterScore     prometheus.Histogram

	// Trade metrics
	Trades          *prometheus.CounterVec
	Rejections      *prometheus.CounterVec
	Attempts        *prometheus.CounterVec
	AttemptDuration *prometheus.HistogramVec
	TipLamports     prometheus.Counter
	FeeLamports     prometheus.Counter

	// Position metrics
	Exits           *prometheus.CounterVec
	ExitFailures    prometheus.Counter
	RealizedPnLSOL  prometheus.Gauge
	HoldingDuration prometheus.Histogram

	// Solana metrics
	RPCCallLatency *prometheus.HistogramVec
	RPCCallErrors  *prometheus.CounterVec

	// Health metrics
	StartTime prometheus.Gauge
}

// NewMetrics registers every metric on a fresh registry together with the
// Go runtime and process collectors.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		factory:  f,
		ns:       namespace,

		TransfersIngested: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "transfers_total",
			Help:      "Transfer events handed to the cluster engine by direction",
		}, []string{"direction"}),
		SourceErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "source_errors_total",
			Help:      "Errors reported by ingestion sources",
		}, []string{"source"}),

		ClustersDetected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cluster",
			Name:      "detected_total",
			Help:      "Clusters detected by signal",
		}, []string{"signal"}),
		ClustersExpired: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cluster",
			Name:      "expired_total",
			Help:      "Clusters that expired without being acted on",
		}),
		ClusterScore: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cluster",
			Name:      "score",
			Help:      "Score of detected clusters",
			Buckets:   prometheus.LinearBuckets(10, 10, 10),
		}),

		Trades: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trade",
			Name:      "outcomes_total",
			Help:      "Buy outcomes by status",
		}, []string{"status", "late"}),
		Rejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trade",
			Name:      "rejections_total",
			Help:      "Rejected buys by reason",
		}, []string{"reason"}),
		Attempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "attempts_total",
			Help:      "Submission attempts by path and status",
		}, []string{"path", "status"}),
		AttemptDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "attempt_duration_seconds",
			Help:      "Submission-to-outcome time per path",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30},
		}, []string{"path"}),
		TipLamports: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "tip_lamports_total",
			Help:      "Bundle tips paid",
		}),
		FeeLamports: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "priority_fee_lamports_total",
			Help:      "Priority fees paid",
		}),

		Exits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "position",
			Name:      "exits_total",
			Help:      "Closed positions by exit reason",
		}, []string{"reason"}),
		ExitFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "position",
			Name:      "exit_failures_total",
			Help:      "Failed exit attempts",
		}),
		RealizedPnLSOL: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "position",
			Name:      "realized_pnl_sol",
			Help:      "Cumulative realized PnL in SOL since start",
		}),
		HoldingDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "position",
			Name:      "holding_duration_seconds",
			Help:      "Time from entry to close",
			Buckets:   []float64{30, 60, 300, 900, 1800, 3600, 7200, 14400},
		}),

		RPCCallLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		RPCCallErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_errors_total",
			Help:      "Failed Solana RPC calls",
		}, []string{"method"}),

		StartTime: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "start_time_seconds",
			Help:      "Unix time the process started",
		}),
	}
	m.StartTime.Set(float64(time.Now().Unix()))
	return m
}

// Registry returns the registry the metrics live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// WatchState registers gauges read from live components at scrape time.
// Nil functions are skipped.
func (m *Metrics) WatchState(st StatusSource) {
	gauge := func(subsystem, name, help string, fn func() float64) {
		m.factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: m.ns, Subsystem: subsystem, Name: name, Help: help,
		}, fn)
	}
	if st.Clusters != nil {
		gauge("cluster", "active", "Clusters currently ACTIVE", func() float64 {
			return float64(len(st.Clusters()))
		})
	}
	if st.Positions != nil {
		gauge("position", "open", "Positions OPEN or EXITING", func() float64 {
			return float64(len(st.Positions()))
		})
	}
	if st.Exposure != nil {
		gauge("exposure", "committed_lamports", "Capital reserved or committed", func() float64 {
			return float64(st.Exposure().CommittedLamports)
		})
	}
	if st.Paused != nil {
		gauge("execution", "paused", "1 while new entries are paused", func() float64 {
			if paused, _ := st.Paused(); paused {
				return 1
			}
			return 0
		})
	}
}

var _ orchestrator.Sink = (*Metrics)(nil)

// OnCluster counts detections and expiries.
func (m *Metrics) OnCluster(ev orchestrator.ClusterEvent) {
	switch ev.Kind {
	case orchestrator.ClusterDetected:
		m.ClustersDetected.WithLabelValues(string(ev.Cluster.Signal)).Inc()
		m.ClusterScore.Observe(float64(ev.Cluster.Score))
	case orchestrator.ClusterExpired:
		m.ClustersExpired.Inc()
	}
}

// OnTrade counts buy outcomes and fill costs.
func (m *Metrics) OnTrade(ev orchestrator.TradeEvent) {
	late := "false"
	if ev.Late {
		late = "true"
	}
	m.Trades.WithLabelValues(string(ev.Status), late).Inc()
	if ev.Status == orchestrator.TradeRejected {
		m.Rejections.WithLabelValues(ev.Reason).Inc()
	}
	if f := ev.Fill; f != nil {
		m.FeeLamports.Add(float64(f.FeeLamports))
		m.TipLamports.Add(float64(f.TipLamports))
	}
}

// OnExit counts closes, failed exits and realized PnL.
func (m *Metrics) OnExit(ev orchestrator.ExitEvent) {
	switch ev.Kind {
	case position.EventClosed:
		p := ev.Position
		m.Exits.WithLabelValues(string(p.ExitReason)).Inc()
		pnl, _ := p.RealizedPnL.Shift(-9).Float64()
		m.RealizedPnLSOL.Add(pnl)
		if !p.ClosedAt.IsZero() {
			m.HoldingDuration.Observe(p.ClosedAt.Sub(p.OpenedAt).Seconds())
		}
		if f := ev.Fill; f != nil {
			m.FeeLamports.Add(float64(f.FeeLamports))
			m.TipLamports.Add(float64(f.TipLamports))
		}
	case position.EventExitFailed:
		m.ExitFailures.Inc()
	}
}

// ObserveAttempt is an execution.AttemptObserver.
func (m *Metrics) ObserveAttempt(a execution.Attempt) {
	m.Attempts.WithLabelValues(string(a.Path), string(a.Status)).Inc()
	if a.Status != execution.AttemptSkipped {
		m.AttemptDuration.WithLabelValues(string(a.Path)).Observe(a.Duration.Seconds())
	}
}

// ObserveRPC is a solana.LatencyObserver.
func (m *Metrics) ObserveRPC(method string, d time.Duration, err error) {
	m.RPCCallLatency.WithLabelValues(method).Observe(d.Seconds())
	if err != nil {
		m.RPCCallErrors.WithLabelValues(method).Inc()
	}
}

// ObserveSourceError counts an ingestion source failure.
func (m *Metrics) ObserveSourceError(source string, _ error) {
	m.SourceErrors.WithLabelValues(source).Inc()
}

// ObserveTransfer counts an event reaching the engine.
func (m *Metrics) ObserveTransfer(direction string) {
	m.TransfersIngested.WithLabelValues(direction).Inc()
}
