package arena

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fundlaunch/platform/internal/eventlog"
	"github.com/fundlaunch/platform/internal/feedback"
	"github.com/fundlaunch/platform/internal/incident"
	"github.com/fundlaunch/platform/internal/model"
	"github.com/fundlaunch/platform/internal/tca"
)

var ts = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func books() []model.BookSummary {
	return []model.BookSummary{
		{BookID: "BETA", CapitalShare: 0.4},
		{BookID: "ALPHA", CapitalShare: 0.6},
	}
}

func tcaResult() tca.Result {
	return tca.Result{FillMetrics: []tca.FillMetric{
		{Symbol: "AAPL", BookID: "ALPHA", FillRate: 0.95, SlippageBps: 6, QualityBand: tca.BandStrong},
		{Symbol: "NVDA", BookID: "BETA", FillRate: 0.40, SlippageBps: 30, QualityBand: tca.BandPoor},
	}}
}

func feedbackResult() feedback.Result {
	return feedback.Result{Recommendations: []feedback.Recommendation{
		{Scope: "NVDA:BETA", GuardrailDecision: feedback.GuardrailApproved},
	}}
}

func enabledConfig() *Config {
	return &Config{Enabled: true, NegotiationRounds: 3, MaxShiftPerRound: 0.05, MinConvergenceScore: 0.80}
}

func approvedRisk() model.RiskDecision { return model.RiskDecision{Approved: true} }

func calmIncident() incident.Result {
	return incident.Result{Regime: model.MarketRegimeSnapshot{Regime: model.RegimeCalm}}
}

func TestRunDisabledConfig(t *testing.T) {
	res := Run(books(), tcaResult(), feedbackResult(), calmIncident(), approvedRisk(), nil, ts, eventlog.New())
	require.Equal(t, StateDisabled, res.Summary.PolicyState)
	require.False(t, res.Summary.Enabled)
	require.Empty(t, res.Bids)
	require.Equal(t, 2, res.Summary.ParticipatingAgents)
}

func TestRunZeroParticipants(t *testing.T) {
	res := Run(nil, tcaResult(), feedbackResult(), calmIncident(), approvedRisk(), enabledConfig(), ts, eventlog.New())
	require.Equal(t, StateDisabled, res.Summary.PolicyState)
	require.Empty(t, res.Bids)
}

func TestRunFinalSharesSumToOne(t *testing.T) {
	res := Run(books(), tcaResult(), feedbackResult(), calmIncident(), approvedRisk(), enabledConfig(), ts, eventlog.New())

	require.Len(t, res.Outcomes, 2)
	var sum float64
	for _, o := range res.Outcomes {
		sum += o.FinalShare
	}
	require.GreaterOrEqual(t, sum, 0.9999)
	require.LessOrEqual(t, sum, 1.0001)
}

func TestRunBidsOrderedByRoundThenAgent(t *testing.T) {
	res := Run(books(), tcaResult(), feedbackResult(), calmIncident(), approvedRisk(), enabledConfig(), ts, eventlog.New())

	require.Len(t, res.Bids, 6)
	require.Equal(t, 1, res.Bids[0].Round)
	require.Equal(t, "ALPHA", res.Bids[0].AgentID)
	require.Equal(t, "BETA", res.Bids[1].AgentID)
	require.Equal(t, 3, res.Bids[5].Round)
}

func TestRunStrongBookGainsShare(t *testing.T) {
	res := Run(books(), tcaResult(), feedbackResult(), calmIncident(), approvedRisk(), enabledConfig(), ts, eventlog.New())

	var alpha, beta BookOutcome
	for _, o := range res.Outcomes {
		switch o.AgentID {
		case "ALPHA":
			alpha = o
		case "BETA":
			beta = o
		}
	}
	require.Greater(t, alpha.AvgUtilityScore, beta.AvgUtilityScore)
	require.GreaterOrEqual(t, alpha.NetShift, beta.NetShift)
}

func TestRunHaltedWhenRiskRejected(t *testing.T) {
	res := Run(books(), tcaResult(), feedbackResult(), calmIncident(), model.RiskDecision{Approved: false}, enabledConfig(), ts, eventlog.New())
	require.Equal(t, StateHalted, res.Summary.PolicyState)
}

func TestRunGuardrailedWhenFeedbackBlocked(t *testing.T) {
	fb := feedback.Result{Summary: feedback.Summary{BlockedCount: 1}}
	res := Run(books(), tcaResult(), fb, calmIncident(), approvedRisk(), enabledConfig(), ts, eventlog.New())
	require.Equal(t, StateGuardrailed, res.Summary.PolicyState)
}

func TestRunDeterministicBidSequence(t *testing.T) {
	a := Run(books(), tcaResult(), feedbackResult(), calmIncident(), approvedRisk(), enabledConfig(), ts, eventlog.New())
	b := Run(books(), tcaResult(), feedbackResult(), calmIncident(), approvedRisk(), enabledConfig(), ts, eventlog.New())
	require.Equal(t, a.Bids, b.Bids)
	require.Equal(t, a.Summary, b.Summary)
}

func TestNormalizeSharesDriftOntoFirstBook(t *testing.T) {
	out := normalizeShares(map[string]float64{"A": 1, "B": 1, "C": 1})
	var sum float64
	for _, v := range out {
		sum += v
	}
	require.InDelta(t, 1, sum, 1e-9)
	// 1/3 rounds to 0.333333; drift 0.000001 lands on A.
	require.InDelta(t, 0.333334, out["A"], 1e-9)
	require.InDelta(t, 0.333333, out["B"], 1e-9)
}

func TestNormalizeSharesZeroTotalSplitsEqually(t *testing.T) {
	out := normalizeShares(map[string]float64{"A": 0, "B": 0})
	require.Equal(t, 0.5, out["A"])
	require.Equal(t, 0.5, out["B"])
}

func TestConvergenceScoreBounds(t *testing.T) {
	require.Equal(t, 1.0, convergenceScore(0, 0.05, 2))
	require.Equal(t, 0.0, convergenceScore(1, 0.05, 2))
	require.Equal(t, 1.0, convergenceScore(0.5, 0, 2))
	if got := convergenceScore(0.05, 0.05, 2); math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("expected 0.5, got %v", got)
	}
}
