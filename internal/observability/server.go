package observability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"solana-cluster-sniper/internal/domain"
	"solana-cluster-sniper/internal/exposure"
)

// StatusSource gathers the read-only views served on /status. Any field may
// be nil.
type StatusSource struct {
	Clusters  func() []*domain.Cluster
	Positions func() []*domain.Position
	Exposure  func() exposure.Totals
	Paused    func() (bool, string)
	// Extra adds named sections, e.g. journal queue statistics.
	Extra map[string]func() interface{}
	// Ready fails /health while the process cannot trade.
	Ready func() error
}

// Status is the /status document.
type Status struct {
	Time        time.Time              `json:"time"`
	Uptime      string                 `json:"uptime"`
	Paused      bool                   `json:"paused"`
	PauseReason string                 `json:"pause_reason,omitempty"`
	Clusters    []*domain.Cluster      `json:"clusters"`
	Positions   []*domain.Position     `json:"positions"`
	Exposure    *exposure.Totals       `json:"exposure,omitempty"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
}

// ServerConfig holds ops server settings.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultServerConfig binds to localhost only.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:         "127.0.0.1:9090",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Server serves /metrics, /health and /status.
type Server struct {
	cfg     ServerConfig
	router  *mux.Router
	metrics *Metrics
	status  StatusSource
	log     zerolog.Logger
	started time.Time
}

// NewServer builds the router. metrics may be nil to omit /metrics.
func NewServer(cfg ServerConfig, metrics *Metrics, status StatusSource, log zerolog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		router:  mux.NewRouter(),
		metrics: metrics,
		status:  status,
		log:     log.With().Str("component", "ops").Logger(),
		started: time.Now(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(s.requestID)
	s.router.Use(s.logRequests)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	})
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}
	errc := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.cfg.Addr).Msg("ops server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("ops server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("ops server shutdown: %w", err)
		}
		return ctx.Err()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if s.status.Ready != nil {
		if err := s.status.Ready(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Snapshot())
}

// Snapshot assembles the current status document.
func (s *Server) Snapshot() Status {
	now := time.Now()
	st := Status{
		Time:      now.UTC(),
		Uptime:    now.Sub(s.started).Truncate(time.Second).String(),
		Clusters:  []*domain.Cluster{},
		Positions: []*domain.Position{},
	}
	src := s.status
	if src.Clusters != nil {
		if cs := src.Clusters(); cs != nil {
			st.Clusters = cs
		}
	}
	if src.Positions != nil {
		if ps := src.Positions(); ps != nil {
			st.Positions = ps
		}
	}
	if src.Exposure != nil {
		t := src.Exposure()
		st.Exposure = &t
	}
	if src.Paused != nil {
		st.Paused, st.PauseReason = src.Paused()
	}
	if len(src.Extra) > 0 {
		st.Extra = make(map[string]interface{}, len(src.Extra))
		for name, fn := range src.Extra {
			st.Extra[name] = fn()
		}
	}
	return st
}

type requestIDKey struct{}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()[:8]
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		id, _ := r.Context().Value(requestIDKey{}).(string)
		s.log.Debug().Str("request_id", id).Str("method", r.Method).Str("path", r.URL.Path).
			Int("status", rec.code).Dur("took", time.Since(start)).Msg("request")
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
