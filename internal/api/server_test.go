package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/fundlaunch/platform/internal/config"
	"github.com/fundlaunch/platform/internal/engine"
	"github.com/fundlaunch/platform/internal/plugin"
)

func newTestServer(t *testing.T, withRun bool) *Server {
	t.Helper()
	store := NewRunStore()
	if withRun {
		run, err := engine.New(plugin.DefaultRegistry(), zerolog.Nop()).Run(config.Default())
		if err != nil {
			t.Fatalf("run scenario: %v", err)
		}
		store.Set(run)
	}
	return NewServer(":0", store, zerolog.Nop())
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthAlwaysOK(t *testing.T) {
	rec := get(t, newTestServer(t, false), "/api/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if resp["ok"] != true {
		t.Fatalf("expected ok=true, got %v", resp["ok"])
	}
}

func TestReadyWithoutRunReturns503(t *testing.T) {
	rec := get(t, newTestServer(t, false), "/api/ready")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestReadyAfterRun(t *testing.T) {
	rec := get(t, newTestServer(t, true), "/api/ready")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode ready: %v", err)
	}
	if resp["run_id"] == "" {
		t.Fatalf("expected run_id in ready response")
	}
}

func TestRunSummaryEndpoint(t *testing.T) {
	rec := get(t, newTestServer(t, true), "/api/run-summary")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var summary engine.Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.SignalSymbolCount != 6 {
		t.Fatalf("expected 6 signal symbols, got %d", summary.SignalSymbolCount)
	}
}

func TestRunEndpointWithoutRunReturns404(t *testing.T) {
	for _, path := range []string{"/api/run", "/api/run-summary", "/api/events", "/api/telemetry", "/api/intents.csv"} {
		rec := get(t, newTestServer(t, false), path)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404 for %s, got %d", path, rec.Code)
		}
	}
}

func TestIntentsCsvEndpoint(t *testing.T) {
	rec := get(t, newTestServer(t, true), "/api/intents.csv")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	lines := strings.Split(strings.TrimRight(rec.Body.String(), "\n"), "\n")
	if lines[0] != "symbol,side,delta_weight,notional,route,urgency,strategy_book_id" {
		t.Fatalf("unexpected header %q", lines[0])
	}
}

func TestRunStoreLatest(t *testing.T) {
	store := NewRunStore()
	if _, ok := store.Latest(); ok {
		t.Fatalf("empty store should report no run")
	}
	store.Set(engine.RunResult{RunID: "run-1"})
	run, ok := store.Latest()
	if !ok || run.RunID != "run-1" {
		t.Fatalf("expected stored run, got %+v ok=%t", run, ok)
	}
}
