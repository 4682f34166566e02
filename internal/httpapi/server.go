// Package httpapi is the thin HTTP surface around the orchestrator: health
// and readiness probes, Prometheus scraping, turn-stage latency snapshots,
// and the mount point for the WebSocket Multiplexer (C3). Every realtime
// frame flows through wsmux, not through this package; httpapi exists so
// the process has something for a load balancer and an operator to poll.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/renfield-project/renfield/internal/config"
	"github.com/renfield-project/renfield/internal/observability"
)

// WSHandler is the subset of wsmux.Server this package needs to mount it.
type WSHandler interface {
	ServeHTTP(w http.ResponseWriter, r *http.Request)
}

// Readier reports whether the orchestrator's dependencies (database,
// presence store, collaborators) are reachable.
type Readier interface {
	Ready() error
}

type Server struct {
	cfg     config.Config
	ws      WSHandler
	ready   Readier
	metrics *observability.Metrics
}

func New(cfg config.Config, ws WSHandler, ready Readier, metrics *observability.Metrics) *Server {
	return &Server{cfg: cfg, ws: ws, ready: ready, metrics: metrics}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/latency", s.handlePerfLatency)
	r.Post("/v1/perf/latency/reset", s.handlePerfLatencyReset)

	if s.ws != nil {
		r.Get("/ws", s.ws.ServeHTTP)
		r.Get("/ws/satellite", s.ws.ServeHTTP)
		r.Get("/ws/device", s.ws.ServeHTTP)
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.ready != nil {
		if err := s.ready.Ready(); err != nil {
			respondError(w, http.StatusServiceUnavailable, "not_ready", err.Error())
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
