// Package monitor is the operational HTTP surface: liveness, Prometheus
// metrics and read-only request inspection for pollers.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/licitaware/cotador/internal/cache"
	"github.com/licitaware/cotador/internal/domain"
	"github.com/licitaware/cotador/internal/persistence"
	"github.com/licitaware/cotador/internal/telemetry"
)

// Pinger is the database connectivity check.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Server serves the monitoring endpoints.
type Server struct {
	db      Pinger
	cache   *cache.Cache
	repo    *persistence.Repository
	metrics *telemetry.Metrics
	log     zerolog.Logger
}

// New wires the server.
func New(db Pinger, c *cache.Cache, repo *persistence.Repository, metrics *telemetry.Metrics, log zerolog.Logger) *Server {
	return &Server{
		db:      db,
		cache:   c,
		repo:    repo,
		metrics: metrics,
		log:     log.With().Str("component", "monitor").Logger(),
	}
}

// Router builds the endpoint table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/requests/{id}", s.handleRequest).Methods(http.MethodGet)
	r.HandleFunc("/batches/{id}", s.handleBatch).Methods(http.MethodGet)
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("monitor listening")
		errCh <- srv.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

type healthResponse struct {
	Status   string             `json:"status"`
	Database bool               `json:"database"`
	Cache    cache.Stats        `json:"cache"`
	Counters map[string]float64 `json:"counters"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Database: true}
	if err := s.db.PingContext(ctx); err != nil {
		s.log.Warn().Err(err).Msg("database ping failed")
		resp.Status = "degraded"
		resp.Database = false
	}
	s.cache.Ping(ctx)
	resp.Cache = s.cache.Stats()
	resp.Counters = map[string]float64{
		"requests_claimed":  s.metrics.CounterValue("cotador_requests_claimed_total", nil),
		"candidates_probed": s.metrics.CounterValue("cotador_candidates_probed_total", nil),
	}

	code := http.StatusOK
	if !resp.Database {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

type requestResponse struct {
	Request  *domain.QuoteRequest        `json:"request"`
	Sources  []domain.QuoteSource        `json:"sources,omitempty"`
	Failures []domain.QuoteSourceFailure `json:"-"`
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "identificador inválido")
		return
	}
	q, err := s.repo.Quotes.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			writeError(w, http.StatusNotFound, "requisição não encontrada")
			return
		}
		s.log.Error().Err(err).Msg("request lookup failed")
		writeError(w, http.StatusInternalServerError, "erro interno")
		return
	}
	sources, err := s.repo.Sources.ListByRequest(r.Context(), id)
	if err != nil {
		s.log.Warn().Err(err).Msg("source listing failed")
	}
	writeJSON(w, http.StatusOK, requestResponse{Request: q, Sources: sources})
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "identificador inválido")
		return
	}
	b, err := s.repo.Batch.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			writeError(w, http.StatusNotFound, "lote não encontrado")
			return
		}
		s.log.Error().Err(err).Msg("batch lookup failed")
		writeError(w, http.StatusInternalServerError, "erro interno")
		return
	}
	children, err := s.repo.Quotes.ListByBatch(r.Context(), id)
	if err != nil {
		s.log.Warn().Err(err).Msg("batch children listing failed")
	}
	writeJSON(w, http.StatusOK, map[string]any{"batch": b, "requests": children})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// Addr formats the listen address from configuration values.
func Addr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
