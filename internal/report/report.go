// Package report writes the per-run artifact set: a markdown report, CSV
// extracts for each stage, and JSON summaries.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/fundlaunch/platform/internal/arena"
	"github.com/fundlaunch/platform/internal/engine"
	"github.com/fundlaunch/platform/internal/feedback"
	"github.com/fundlaunch/platform/internal/incident"
	"github.com/fundlaunch/platform/internal/model"
	"github.com/fundlaunch/platform/internal/plugin"
	"github.com/fundlaunch/platform/internal/policy"
	"github.com/fundlaunch/platform/internal/tca"
)

// Artifact file names, stable so downstream jobs can glob for them.
const (
	MarkdownFile         = "latest-run-report.md"
	IntentsFile          = "execution-intents.csv"
	AllocationsFile      = "allocations.csv"
	BooksFile            = "strategy-books.csv"
	PolicyAuditFile      = "policy-override-audit.csv"
	LifecycleFile        = "strategy-plugin-lifecycle.csv"
	IncidentTimelineFile = "incident-event-timeline.csv"
	IncidentReplayFile   = "incident-replay.csv"
	IncidentSummaryFile  = "incident-summary.json"
	TcaFillFile          = "tca-fill-quality.csv"
	TcaRouteFile         = "tca-route-summary.csv"
	FeedbackFile         = "feedback-recommendations.csv"
	FeedbackSummaryFile  = "feedback-loop-summary.json"
	ArenaBidsFile        = "agent-arena-bids.csv"
	ArenaSummaryFile     = "agent-arena-summary.json"
	TelemetryFile        = "telemetry-dashboard.json"
	RunSummaryFile       = "run-summary.json"
)

// Write renders every artifact for one run into dir, creating it if
// needed.
func Write(dir string, run engine.RunResult) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}

	summary := engine.BuildSummary(run)

	writers := []struct {
		name  string
		build func() ([]byte, error)
	}{
		{MarkdownFile, func() ([]byte, error) { return []byte(buildMarkdown(summary)), nil }},
		{IntentsFile, func() ([]byte, error) { return buildIntentCsv(run.ExecutionIntents) }},
		{AllocationsFile, func() ([]byte, error) { return buildAllocationCsv(run.Allocations) }},
		{BooksFile, func() ([]byte, error) { return buildBookCsv(run.StrategyBooks) }},
		{PolicyAuditFile, func() ([]byte, error) { return buildPolicyCsv(run.PolicyAudit) }},
		{LifecycleFile, func() ([]byte, error) { return buildLifecycleCsv(run.StrategyLifecycle) }},
		{IncidentTimelineFile, func() ([]byte, error) { return buildTimelineCsv(run.Incident.Timeline) }},
		{IncidentReplayFile, func() ([]byte, error) { return buildReplayCsv(run.Incident.ReplayFrames) }},
		{IncidentSummaryFile, func() ([]byte, error) { return marshalJSON(run.Incident) }},
		{TcaFillFile, func() ([]byte, error) { return buildTcaFillCsv(run.Tca.FillMetrics) }},
		{TcaRouteFile, func() ([]byte, error) { return buildTcaRouteCsv(run.Tca.RouteSummaries) }},
		{FeedbackFile, func() ([]byte, error) { return buildFeedbackCsv(run.Feedback.Recommendations) }},
		{FeedbackSummaryFile, func() ([]byte, error) { return marshalJSON(run.Feedback.Summary) }},
		{ArenaBidsFile, func() ([]byte, error) { return buildArenaBidCsv(run.Arena.Bids) }},
		{ArenaSummaryFile, func() ([]byte, error) { return marshalJSON(run.Arena.Summary) }},
		{TelemetryFile, func() ([]byte, error) { return marshalJSON(run.Telemetry) }},
		{RunSummaryFile, func() ([]byte, error) { return marshalJSON(summary) }},
	}

	for _, w := range writers {
		data, err := w.build()
		if err != nil {
			return fmt.Errorf("build %s: %w", w.name, err)
		}
		if err := os.WriteFile(filepath.Join(dir, w.name), data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", w.name, err)
		}
	}
	return nil
}

func buildMarkdown(summary engine.Summary) string {
	var sb strings.Builder
	sb.WriteString("# Equities Fund Launch Platform Run Report\n\n")

	tw := table.NewWriter()
	tw.AppendHeader(table.Row{"Metric", "Value"})
	tw.AppendRows([]table.Row{
		{"Run id", summary.RunID},
		{"Signal symbols", summary.SignalSymbolCount},
		{"Allocations", summary.AllocationCount},
		{"Strategy books", summary.StrategyBookCount},
		{"Risk approved", summary.RiskApproved},
		{"Breach count", summary.BreachCount},
		{"Execution intents", summary.ExecutionIntentCount},
		{"Gross exposure", fixed(summary.GrossExposure, 4)},
		{"Net exposure", fixed(summary.NetExposure, 4)},
		{"Turnover", fixed(summary.Turnover, 4)},
		{"Total execution notional", fixed(summary.TotalExecutionNotional, 2)},
		{"Top signal", fmt.Sprintf("%s (%s)", summary.TopSignalSymbol, fixed(summary.TopSignalScore, 4))},
		{"Fleet health score", fixed(summary.FleetHealthScore, 2)},
		{"Control state", summary.ControlState},
		{"Applied policy overrides", summary.AppliedPolicyOverrideCount},
		{"Pending policy overrides", summary.PendingPolicyOverrideCount},
		{"Strategy lifecycle events", summary.StrategyLifecycleEvents},
		{"Incident timeline events", summary.IncidentTimelineEvents},
		{"Incident replay frames", summary.IncidentReplayFrames},
		{"Active incident faults", summary.ActiveIncidentFaults},
		{"TCA avg fill rate", fixed(summary.TcaAvgFillRate, 4)},
		{"TCA avg slippage (bps)", fixed(summary.TcaAvgSlippageBps, 2)},
		{"TCA estimated cost", fixed(summary.TcaTotalEstimatedCost, 2)},
		{"Feedback recommendations", summary.FeedbackRecommendationCount},
		{"Feedback approved/blocked", fmt.Sprintf("%d/%d", summary.FeedbackApprovedCount, summary.FeedbackBlockedCount)},
		{"Feedback policy state", summary.FeedbackPolicyState},
		{"Arena policy state", summary.ArenaPolicyState},
		{"Arena convergence", fixed(summary.ArenaConvergenceScore, 4)},
	})
	sb.WriteString(tw.RenderMarkdown())
	sb.WriteString("\n")
	return sb.String()
}

func buildIntentCsv(intents []model.ExecutionIntent) ([]byte, error) {
	rows := [][]string{{"symbol", "side", "delta_weight", "notional", "route", "urgency", "strategy_book_id"}}
	for _, it := range intents {
		rows = append(rows, []string{
			it.Symbol, it.Side, fixed(it.DeltaWeight, 6), fixed(it.Notional, 2),
			it.Route, it.Urgency, it.BookID,
		})
	}
	return renderCsv(rows)
}

func buildAllocationCsv(allocations []model.AllocationDraft) ([]byte, error) {
	rows := [][]string{{"symbol", "current_weight", "target_weight", "delta_weight", "action", "rationale", "strategy_book_id"}}
	for _, a := range allocations {
		rows = append(rows, []string{
			a.Symbol, fixed(a.CurrentWeight, 6), fixed(a.TargetWeight, 6), fixed(a.DeltaWeight, 6),
			a.Action, a.Rationale, a.BookID,
		})
	}
	return renderCsv(rows)
}

func buildBookCsv(books []model.BookSummary) ([]byte, error) {
	rows := [][]string{{"book_id", "capital_share", "allocation_count", "gross_exposure", "net_exposure", "turnover"}}
	for _, b := range books {
		rows = append(rows, []string{
			b.BookID, fixed(b.CapitalShare, 6), strconv.Itoa(b.AllocationCount),
			fixed(b.GrossExposure, 6), fixed(b.NetExposure, 6), fixed(b.Turnover, 6),
		})
	}
	return renderCsv(rows)
}

func buildPolicyCsv(audit []policy.AuditEntry) ([]byte, error) {
	rows := [][]string{{
		"policy_key", "requested_value", "prior_value", "applied_value", "status", "reason",
		"requested_by", "approved_by", "requested_at_utc", "approved_at_utc", "evaluated_at_utc",
	}}
	for _, e := range audit {
		rows = append(rows, []string{
			e.PolicyKey, fixed(e.RequestedValue, 6), optFixed(e.PriorValue, 6), optFixed(e.AppliedValue, 6),
			e.Status, e.Reason, e.RequestedBy, e.ApprovedBy,
			stamp(e.RequestedAt), optStamp(e.ApprovedAt), stamp(e.EvaluatedAt),
		})
	}
	return renderCsv(rows)
}

func buildLifecycleCsv(events []plugin.LifecycleEvent) ([]byte, error) {
	rows := [][]string{{"strategy_id", "hook", "status", "detail", "timestamp_utc"}}
	for _, ev := range events {
		rows = append(rows, []string{ev.StrategyID, ev.Hook, ev.Status, ev.Detail, stamp(ev.Timestamp)})
	}
	return renderCsv(rows)
}

func buildTimelineCsv(timeline []model.RuntimeEvent) ([]byte, error) {
	rows := [][]string{{"sequence", "timestamp_utc", "event_type", "source", "detail", "impact_score"}}
	for _, ev := range timeline {
		rows = append(rows, []string{
			strconv.Itoa(ev.Sequence), stamp(ev.Timestamp), ev.EventType, ev.Source, ev.Detail,
			fixed(ev.ImpactScore, 6),
		})
	}
	return renderCsv(rows)
}

func buildReplayCsv(frames []incident.ReplayFrame) ([]byte, error) {
	rows := [][]string{{"step", "symbol", "baseline_notional", "adjusted_notional", "baseline_route", "adjusted_route", "outcome"}}
	for _, f := range frames {
		rows = append(rows, []string{
			strconv.Itoa(f.Step), f.Symbol, fixed(f.BaselineNotional, 2), fixed(f.AdjustedNotional, 2),
			f.BaselineRoute, f.AdjustedRoute, f.Outcome,
		})
	}
	return renderCsv(rows)
}

func buildTcaFillCsv(metrics []tca.FillMetric) ([]byte, error) {
	rows := [][]string{{
		"symbol", "strategy_book_id", "route", "intended_notional", "executed_notional",
		"fill_rate", "slippage_bps", "estimated_cost", "quality_band",
	}}
	for _, m := range metrics {
		rows = append(rows, []string{
			m.Symbol, m.BookID, m.Route, fixed(m.IntendedNotional, 2), fixed(m.ExecutedNotional, 2),
			fixed(m.FillRate, 6), fixed(m.SlippageBps, 6), fixed(m.EstimatedCost, 2), m.QualityBand,
		})
	}
	return renderCsv(rows)
}

func buildTcaRouteCsv(routes []tca.RouteSummary) ([]byte, error) {
	rows := [][]string{{"route", "intent_count", "avg_fill_rate", "avg_slippage_bps", "total_estimated_cost", "poor_quality_count"}}
	for _, r := range routes {
		rows = append(rows, []string{
			r.Route, strconv.Itoa(r.IntentCount), fixed(r.AvgFillRate, 6), fixed(r.AvgSlippageBps, 6),
			fixed(r.TotalEstimatedCost, 2), strconv.Itoa(r.PoorQualityCount),
		})
	}
	return renderCsv(rows)
}

func buildFeedbackCsv(recommendations []feedback.Recommendation) ([]byte, error) {
	rows := [][]string{{
		"scope", "current_route", "proposed_route", "priority", "confidence",
		"rationale", "guardrail_decision", "guardrail_reason",
	}}
	for _, r := range recommendations {
		rows = append(rows, []string{
			r.Scope, r.CurrentRoute, r.ProposedRoute, r.Priority, fixed(r.Confidence, 4),
			r.Rationale, r.GuardrailDecision, r.GuardrailReason,
		})
	}
	return renderCsv(rows)
}

func buildArenaBidCsv(bids []arena.Bid) ([]byte, error) {
	rows := [][]string{{
		"round", "agent_id", "prior_share", "requested_share", "granted_share",
		"utility_score", "confidence", "decision", "rationale",
	}}
	for _, b := range bids {
		rows = append(rows, []string{
			strconv.Itoa(b.Round), b.AgentID, fixed(b.PriorShare, 6), fixed(b.RequestedShare, 6),
			fixed(b.GrantedShare, 6), fixed(b.UtilityScore, 6), fixed(b.Confidence, 4),
			b.Decision, b.Rationale,
		})
	}
	return renderCsv(rows)
}

func renderCsv(rows [][]string) ([]byte, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return []byte(sb.String()), nil
}

func marshalJSON(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func fixed(v float64, places int) string {
	return strconv.FormatFloat(v, 'f', places, 64)
}

func optFixed(v *float64, places int) string {
	if v == nil {
		return ""
	}
	return fixed(*v, places)
}

func stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func optStamp(t *time.Time) string {
	if t == nil {
		return ""
	}
	return stamp(*t)
}
