package observability

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-cluster-sniper/internal/domain"
	"solana-cluster-sniper/internal/execution"
	"solana-cluster-sniper/internal/exposure"
	"solana-cluster-sniper/internal/orchestrator"
	"solana-cluster-sniper/internal/position"
)

func TestMetrics_Sink(t *testing.T) {
	m := NewMetrics("")
	c := &domain.Cluster{ID: "c", Token: "MINT", Score: 82, Signal: domain.SignalStrongBuy}

	m.OnCluster(orchestrator.ClusterEvent{Kind: orchestrator.ClusterDetected, Cluster: c})
	m.OnCluster(orchestrator.ClusterEvent{Kind: orchestrator.ClusterExpired, Cluster: c})
	m.OnTrade(orchestrator.TradeEvent{Status: orchestrator.TradeRejected, Reason: "liquidity"})
	m.OnTrade(orchestrator.TradeEvent{
		Status: orchestrator.TradeFilled,
		Fill:   &domain.Fill{FeeLamports: 5_000, TipLamports: 100_000},
	})
	m.OnExit(orchestrator.ExitEvent{Kind: position.EventClosed, Position: &domain.Position{
		ExitReason:  domain.ExitTakeProfit,
		RealizedPnL: decimal.NewFromInt(500_000_000),
		OpenedAt:    time.Unix(0, 0),
		ClosedAt:    time.Unix(120, 0),
	}})
	m.OnExit(orchestrator.ExitEvent{Kind: position.EventExitFailed, Position: &domain.Position{}})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ClustersDetected.WithLabelValues("STRONG_BUY")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ClustersExpired))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rejections.WithLabelValues("liquidity")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Trades.WithLabelValues("filled", "false")))
	assert.Equal(t, 100_000.0, testutil.ToFloat64(m.TipLamports))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Exits.WithLabelValues("TAKE_PROFIT")))
	assert.InDelta(t, 0.5, testutil.ToFloat64(m.RealizedPnLSOL), 1e-9)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExitFailures))
}

func TestMetrics_Observers(t *testing.T) {
	m := NewMetrics("test")
	m.ObserveAttempt(execution.Attempt{Path: domain.PathBundle, Status: execution.AttemptSucceeded, Duration: time.Second})
	m.ObserveAttempt(execution.Attempt{Path: domain.PathRPC, Status: execution.AttemptSkipped})
	m.ObserveRPC("getTransaction", 20*time.Millisecond, errors.New("timeout"))
	m.ObserveSourceError("ws", errors.New("closed"))
	m.ObserveTransfer("buy")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Attempts.WithLabelValues("bundle", "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Attempts.WithLabelValues("rpc", "skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RPCCallErrors.WithLabelValues("getTransaction")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SourceErrors.WithLabelValues("ws")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransfersIngested.WithLabelValues("buy")))
}

func testServer(ready func() error) (*Server, *Metrics) {
	m := NewMetrics("")
	status := StatusSource{
		Clusters:  func() []*domain.Cluster { return []*domain.Cluster{{ID: "c1", Token: "MINT"}} },
		Positions: func() []*domain.Position { return nil },
		Exposure: func() exposure.Totals {
			return exposure.Totals{CommittedLamports: 42, PerToken: map[string]uint64{"MINT": 42}, OpenPositions: 1}
		},
		Paused: func() (bool, string) { return true, "3 consecutive failures" },
		Extra:  map[string]func() interface{}{"journal": func() interface{} { return map[string]int{"queued": 3} }},
		Ready:  ready,
	}
	m.WatchState(status)
	return NewServer(DefaultServerConfig(), m, status, zerolog.Nop()), m
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestServer_Status(t *testing.T) {
	s, _ := testServer(nil)
	rec := get(t, s.Handler(), "/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var st struct {
		Paused      bool                     `json:"paused"`
		PauseReason string                   `json:"pause_reason"`
		Clusters    []map[string]interface{} `json:"clusters"`
		Positions   []interface{}            `json:"positions"`
		Exposure    exposure.Totals          `json:"exposure"`
		Extra       map[string]interface{}   `json:"extra"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.True(t, st.Paused)
	assert.Equal(t, "3 consecutive failures", st.PauseReason)
	assert.Len(t, st.Clusters, 1)
	assert.NotNil(t, st.Positions)
	assert.Equal(t, uint64(42), st.Exposure.CommittedLamports)
	assert.Contains(t, st.Extra, "journal")
}

func TestServer_Health(t *testing.T) {
	s, _ := testServer(nil)
	assert.Equal(t, http.StatusOK, get(t, s.Handler(), "/health").Code)

	s, _ = testServer(func() error { return errors.New("rpc unreachable") })
	rec := get(t, s.Handler(), "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "rpc unreachable")

	assert.Equal(t, http.StatusNotFound, get(t, s.Handler(), "/nope").Code)
}

func TestServer_Metrics(t *testing.T) {
	s, _ := testServer(nil)
	rec := get(t, s.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "sniper_exposure_committed_lamports 42")
	assert.Contains(t, string(body), "sniper_execution_paused 1")
	assert.Contains(t, string(body), "sniper_cluster_active 1")
}
