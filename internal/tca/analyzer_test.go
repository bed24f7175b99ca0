package tca

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fundlaunch/platform/internal/eventlog"
	"github.com/fundlaunch/platform/internal/incident"
	"github.com/fundlaunch/platform/internal/model"
)

var ts = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func calmIncident() incident.Result {
	return incident.Result{Regime: model.MarketRegimeSnapshot{
		Regime: model.RegimeCalm, VolatilityMultiplier: 1.05, LiquidityMultiplier: 1.0, SpreadBps: 5.1,
	}}
}

func TestAnalyzeFullFillIsStrong(t *testing.T) {
	baseline := []model.ExecutionIntent{
		{Symbol: "NVDA", BookID: "ALPHA", Notional: 30000, Route: model.RouteInternalCross, Urgency: model.UrgencyLow},
	}
	res := Analyze(baseline, baseline, calmIncident(), ts, eventlog.New())

	require.Len(t, res.FillMetrics, 1)
	m := res.FillMetrics[0]
	require.Equal(t, 1.0, m.FillRate)
	// 3.8 + 0.4 + 0 + 1.05*2.25 = 6.5625
	require.InDelta(t, 6.5625, m.SlippageBps, 1e-9)
	require.Equal(t, BandStrong, m.QualityBand)
	require.InDelta(t, 30000*6.5625/10000, m.EstimatedCost, 1e-6)
}

func TestAnalyzeBlockedIffZeroExecuted(t *testing.T) {
	baseline := []model.ExecutionIntent{
		{Symbol: "AAPL", Notional: 360000, Route: model.RouteLitSmart, Urgency: model.UrgencyHigh},
	}
	executed := []model.ExecutionIntent{
		{Symbol: "AAPL", Notional: 0, Route: model.RouteRejectedByVenue, Urgency: model.UrgencyBlocked},
	}
	res := Analyze(baseline, executed, calmIncident(), ts, eventlog.New())

	m := res.FillMetrics[0]
	require.Equal(t, BandBlocked, m.QualityBand)
	require.Equal(t, 0.0, m.FillRate)
	require.Equal(t, 0.0, m.EstimatedCost)
	require.Equal(t, 1, res.Summary.BlockedIntentCount)
	require.Equal(t, 1, res.Summary.PoorQualityCount)
}

func TestAnalyzePartialFillDegrades(t *testing.T) {
	baseline := []model.ExecutionIntent{
		{Symbol: "MSFT", Notional: 100000, Route: model.RouteLitSmart, Urgency: model.UrgencyMedium},
	}
	executed := []model.ExecutionIntent{
		{Symbol: "MSFT", Notional: 75000, Route: model.RouteSafePassive, Urgency: model.UrgencyLow},
	}
	res := Analyze(baseline, executed, calmIncident(), ts, eventlog.New())

	m := res.FillMetrics[0]
	require.Equal(t, 0.75, m.FillRate)
	// 4.2 + 0.4 + 0.25*8 + 2.3625 = 8.9625 -> fill 0.75 within DEGRADED band
	require.InDelta(t, 8.9625, m.SlippageBps, 1e-9)
	require.Equal(t, BandDegraded, m.QualityBand)
}

func TestAnalyzeRouteSummariesSorted(t *testing.T) {
	baseline := []model.ExecutionIntent{
		{Symbol: "A", Notional: 100, Route: model.RouteLitSmart, Urgency: model.UrgencyLow},
		{Symbol: "B", Notional: 100, Route: model.RouteInternalCross, Urgency: model.UrgencyLow},
		{Symbol: "C", Notional: 100, Route: model.RouteInternalCross, Urgency: model.UrgencyLow},
	}
	res := Analyze(baseline, baseline, calmIncident(), ts, eventlog.New())

	require.Len(t, res.RouteSummaries, 2)
	require.Equal(t, model.RouteInternalCross, res.RouteSummaries[0].Route)
	require.Equal(t, 2, res.RouteSummaries[0].IntentCount)
	require.Equal(t, model.RouteLitSmart, res.RouteSummaries[1].Route)
}

func TestAnalyzePairsPositionally(t *testing.T) {
	baseline := []model.ExecutionIntent{
		{Symbol: "A", Notional: 100, Route: model.RouteLitSmart, Urgency: model.UrgencyLow},
		{Symbol: "B", Notional: 100, Route: model.RouteLitSmart, Urgency: model.UrgencyLow},
	}
	executed := baseline[:1]
	res := Analyze(baseline, executed, calmIncident(), ts, eventlog.New())
	require.Len(t, res.FillMetrics, 1)
}

func TestAnalyzeEmitsEvent(t *testing.T) {
	log := eventlog.New()
	Analyze(nil, nil, calmIncident(), ts, log)
	events := log.Snapshot()
	require.Len(t, events, 1)
	require.Equal(t, "TCA_ANALYSIS_READY", events[0].EventType)
}
