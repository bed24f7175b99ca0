// Package api serves the latest run over HTTP for dashboards and probes.
package api

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fundlaunch/platform/internal/engine"
)

// RunStore holds the most recent run result. Safe for concurrent use.
type RunStore struct {
	mu  sync.RWMutex
	run *engine.RunResult
}

// NewRunStore returns an empty store.
func NewRunStore() *RunStore {
	return &RunStore{}
}

// Set replaces the stored run.
func (s *RunStore) Set(run engine.RunResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.run = &run
}

// Latest returns the stored run, or false when nothing completed yet.
func (s *RunStore) Latest() (engine.RunResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.run == nil {
		return engine.RunResult{}, false
	}
	return *s.run, true
}

// Server is a lightweight HTTP API over the latest pipeline run.
type Server struct {
	httpServer *http.Server
	store      *RunStore
	log        zerolog.Logger
	startedAt  time.Time
}

// NewServer creates an API server bound to addr.
func NewServer(addr string, store *RunStore, log zerolog.Logger) *Server {
	s := &Server{
		store:     store,
		log:       log,
		startedAt: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/ready", s.handleReady)
	mux.HandleFunc("/api/run-summary", s.handleRunSummary)
	mux.HandleFunc("/api/run", s.handleRun)
	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc("/api/telemetry", s.handleTelemetry)
	mux.HandleFunc("/api/intents.csv", s.handleIntentsCsv)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start begins serving HTTP requests.
func (s *Server) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("api server listening")
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("api server")
		}
	}()
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// GET /api/health — liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"ok":       true,
		"uptime_s": time.Since(s.startedAt).Seconds(),
	})
}

// GET /api/ready — readiness probe; ready once a run has completed.
func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	run, ok := s.store.Latest()
	resp := map[string]interface{}{
		"ready":    ok,
		"uptime_s": time.Since(s.startedAt).Seconds(),
	}
	if ok {
		resp["run_id"] = run.RunID
	} else {
		resp["reason"] = "no_completed_run"
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	s.writeJSON(w, resp)
}

// GET /api/run-summary — flattened summary of the latest run.
func (s *Server) handleRunSummary(w http.ResponseWriter, _ *http.Request) {
	run, ok := s.store.Latest()
	if !ok {
		http.Error(w, "no completed run", http.StatusNotFound)
		return
	}
	s.writeJSON(w, engine.BuildSummary(run))
}

// GET /api/run — the full latest run result.
func (s *Server) handleRun(w http.ResponseWriter, _ *http.Request) {
	run, ok := s.store.Latest()
	if !ok {
		http.Error(w, "no completed run", http.StatusNotFound)
		return
	}
	s.writeJSON(w, run)
}

// GET /api/events — the runtime event timeline of the latest run.
func (s *Server) handleEvents(w http.ResponseWriter, _ *http.Request) {
	run, ok := s.store.Latest()
	if !ok {
		http.Error(w, "no completed run", http.StatusNotFound)
		return
	}
	s.writeJSON(w, map[string]interface{}{
		"run_id": run.RunID,
		"events": run.Events,
	})
}

// GET /api/telemetry — control-plane health of the latest run.
func (s *Server) handleTelemetry(w http.ResponseWriter, _ *http.Request) {
	run, ok := s.store.Latest()
	if !ok {
		http.Error(w, "no completed run", http.StatusNotFound)
		return
	}
	s.writeJSON(w, run.Telemetry)
}

// GET /api/intents.csv — execution intents of the latest run as CSV.
func (s *Server) handleIntentsCsv(w http.ResponseWriter, _ *http.Request) {
	run, ok := s.store.Latest()
	if !ok {
		http.Error(w, "no completed run", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"symbol", "side", "delta_weight", "notional", "route", "urgency", "strategy_book_id"})
	for _, it := range run.ExecutionIntents {
		_ = cw.Write([]string{
			it.Symbol, it.Side,
			strconv.FormatFloat(it.DeltaWeight, 'f', 6, 64),
			strconv.FormatFloat(it.Notional, 'f', 2, 64),
			it.Route, it.Urgency, it.BookID,
		})
	}
	cw.Flush()
}
