package feedback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fundlaunch/platform/internal/eventlog"
	"github.com/fundlaunch/platform/internal/incident"
	"github.com/fundlaunch/platform/internal/model"
	"github.com/fundlaunch/platform/internal/tca"
)

var ts = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func approvedRisk() model.RiskDecision { return model.RiskDecision{Approved: true} }

func calmIncident() incident.Result {
	return incident.Result{Regime: model.MarketRegimeSnapshot{Regime: model.RegimeCalm, VolatilityMultiplier: 1.05}}
}

func metric(symbol, book, route, band string, fillRate, slippage float64) tca.FillMetric {
	return tca.FillMetric{
		Symbol: symbol, BookID: book, Route: route,
		FillRate: fillRate, SlippageBps: slippage, QualityBand: band,
	}
}

func TestNoCandidatesYieldsSyntheticMonitor(t *testing.T) {
	res := BuildRecommendations(tca.Result{
		FillMetrics: []tca.FillMetric{metric("AAPL", "A", model.RouteLitSmart, tca.BandStrong, 1, 6)},
	}, approvedRisk(), calmIncident(), ts, eventlog.New())

	require.Len(t, res.Recommendations, 1)
	rec := res.Recommendations[0]
	require.Equal(t, "GLOBAL", rec.Scope)
	require.Equal(t, GuardrailMonitor, rec.GuardrailDecision)
	require.Equal(t, StateObserveOnly, res.Summary.PolicyState)
}

func TestPoorRejectedRouteProposesFailover(t *testing.T) {
	res := BuildRecommendations(tca.Result{
		FillMetrics: []tca.FillMetric{metric("AAPL", "ALPHA", model.RouteRejectedByVenue, tca.BandBlocked, 0, 48)},
	}, approvedRisk(), calmIncident(), ts, eventlog.New())

	rec := res.Recommendations[0]
	require.Equal(t, "AAPL:ALPHA", rec.Scope)
	require.Equal(t, model.RouteInternalCrossFailover, rec.ProposedRoute)
	require.Equal(t, PriorityHigh, rec.Priority)
	require.Equal(t, GuardrailApproved, rec.GuardrailDecision)
	require.Equal(t, StateActiveTuning, res.Summary.PolicyState)
	// 0.86 + 0.22 + 0.10 clamps to 0.98
	require.Equal(t, 0.98, rec.Confidence)
}

func TestDegradedGetsMonitorAndMediumPriority(t *testing.T) {
	res := BuildRecommendations(tca.Result{
		FillMetrics: []tca.FillMetric{metric("MSFT", "B", model.RouteSafePassive, tca.BandDegraded, 0.75, 9)},
	}, approvedRisk(), calmIncident(), ts, eventlog.New())

	rec := res.Recommendations[0]
	require.Equal(t, PriorityMedium, rec.Priority)
	require.Equal(t, GuardrailMonitor, rec.GuardrailDecision)
	require.Equal(t, StateObserveOnly, res.Summary.PolicyState)
}

func TestRiskRejectionBlocksEverything(t *testing.T) {
	res := BuildRecommendations(tca.Result{
		FillMetrics: []tca.FillMetric{metric("MSFT", "B", model.RouteLitSmart, tca.BandPoor, 0.3, 20)},
	}, model.RiskDecision{Approved: false}, calmIncident(), ts, eventlog.New())

	rec := res.Recommendations[0]
	require.Equal(t, GuardrailBlocked, rec.GuardrailDecision)
	require.Equal(t, "Risk gate is not approved.", rec.GuardrailReason)
	require.Equal(t, StateGuardrailedOnly, res.Summary.PolicyState)
}

func TestVenueRejectBurstDoesNotBlockDarkProposals(t *testing.T) {
	// The route table only ever proposes dark/passive routes, so the lit
	// guardrails stay latent; a DEGRADED metric still lands on MONITOR even
	// with the burst fault active.
	inc := calmIncident()
	inc.ActiveFaults = []string{incident.FaultVenueRejectBurst}

	res := BuildRecommendations(tca.Result{
		FillMetrics: []tca.FillMetric{metric("NVDA", "C", model.RouteLitSmartFailover, tca.BandDegraded, 0.72, 16)},
	}, approvedRisk(), inc, ts, eventlog.New())

	rec := res.Recommendations[0]
	require.Equal(t, model.RouteInternalCrossFailover, rec.ProposedRoute)
	require.Equal(t, GuardrailMonitor, rec.GuardrailDecision)
}

func TestDedupeKeepsHighestPriorityPerScope(t *testing.T) {
	res := BuildRecommendations(tca.Result{
		FillMetrics: []tca.FillMetric{
			metric("AAPL", "ALPHA", model.RouteSafePassive, tca.BandDegraded, 0.8, 10),
			metric("AAPL", "ALPHA", model.RouteRejectedByVenue, tca.BandBlocked, 0, 48),
		},
	}, approvedRisk(), calmIncident(), ts, eventlog.New())

	require.Len(t, res.Recommendations, 1)
	require.Equal(t, PriorityHigh, res.Recommendations[0].Priority)
}

func TestSortHighPriorityFirstThenScope(t *testing.T) {
	res := BuildRecommendations(tca.Result{
		FillMetrics: []tca.FillMetric{
			metric("ZZZ", "B", model.RouteSafePassive, tca.BandDegraded, 0.8, 10),
			metric("AAA", "A", model.RouteLitSmart, tca.BandPoor, 0.4, 22),
		},
	}, approvedRisk(), calmIncident(), ts, eventlog.New())

	require.Len(t, res.Recommendations, 2)
	require.Equal(t, "AAA:A", res.Recommendations[0].Scope)
	require.Equal(t, "ZZZ:B", res.Recommendations[1].Scope)
}
