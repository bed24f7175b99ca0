package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fundlaunch/platform/internal/config"
	"github.com/fundlaunch/platform/internal/engine"
	"github.com/fundlaunch/platform/internal/plugin"
)

func testRun(t *testing.T) engine.RunResult {
	t.Helper()
	run, err := engine.New(plugin.DefaultRegistry(), zerolog.Nop()).Run(config.Default())
	require.NoError(t, err)
	return run
}

func TestWriteProducesAllArtifacts(t *testing.T) {
	dir := t.TempDir()
	run := testRun(t)

	require.NoError(t, Write(dir, run))

	expected := []string{
		MarkdownFile, IntentsFile, AllocationsFile, BooksFile, PolicyAuditFile,
		LifecycleFile, IncidentTimelineFile, IncidentReplayFile, IncidentSummaryFile,
		TcaFillFile, TcaRouteFile, FeedbackFile, FeedbackSummaryFile,
		ArenaBidsFile, ArenaSummaryFile, TelemetryFile, RunSummaryFile,
	}
	for _, name := range expected {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("missing artifact %s: %v", name, err)
		}
	}
}

func TestWriteMarkdownReport(t *testing.T) {
	dir := t.TempDir()
	run := testRun(t)
	require.NoError(t, Write(dir, run))

	data, err := os.ReadFile(filepath.Join(dir, MarkdownFile))
	require.NoError(t, err)
	body := string(data)

	assert.True(t, strings.HasPrefix(body, "# Equities Fund Launch Platform Run Report"))
	assert.Contains(t, body, "| Metric | Value |")
	assert.Contains(t, body, run.RunID)
	assert.Contains(t, body, run.Telemetry.ControlState)
}

func TestWriteIntentCsvHeader(t *testing.T) {
	dir := t.TempDir()
	run := testRun(t)
	require.NoError(t, Write(dir, run))

	data, err := os.ReadFile(filepath.Join(dir, IntentsFile))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	assert.Equal(t, "symbol,side,delta_weight,notional,route,urgency,strategy_book_id", lines[0])
	assert.Len(t, lines, len(run.ExecutionIntents)+1)
}

func TestWriteRunSummaryJSON(t *testing.T) {
	dir := t.TempDir()
	run := testRun(t)
	require.NoError(t, Write(dir, run))

	data, err := os.ReadFile(filepath.Join(dir, RunSummaryFile))
	require.NoError(t, err)

	var summary engine.Summary
	require.NoError(t, json.Unmarshal(data, &summary))
	assert.Equal(t, run.RunID, summary.RunID)
	assert.Equal(t, len(run.Signals), summary.SignalSymbolCount)
}

func TestWriteIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	run := testRun(t)

	require.NoError(t, Write(dir, run))
	first, err := os.ReadFile(filepath.Join(dir, MarkdownFile))
	require.NoError(t, err)

	require.NoError(t, Write(dir, run))
	second, err := os.ReadFile(filepath.Join(dir, MarkdownFile))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
