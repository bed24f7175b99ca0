// Package showcase writes the anonymized public snapshot of a run.
// Symbols, books, and strategies are replaced by deterministic aliases so
// the artifacts can be shared outside the desk.
package showcase

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fundlaunch/platform/internal/engine"
)

// Public artifact file names.
const (
	ReportFile    = "public-run-report.md"
	SummaryFile   = "public-run-summary.json"
	IntentsFile   = "public-execution-intents.csv"
	FeedbackFile  = "public-feedback-recommendations.csv"
	TimelineFile  = "public-event-timeline.csv"
	LifecycleFile = "public-strategy-lifecycle.csv"
	ArenaFile     = "public-agent-arena-bids.csv"
)

const unmappedAlias = "UNMAPPED"

// PublicSummary is the sanitized run summary. No symbol, book, or
// strategy names appear in it.
type PublicSummary struct {
	RunTimestampUTC             time.Time `json:"run_timestamp_utc"`
	SignalSymbolCount           int       `json:"signal_symbol_count"`
	StrategyBookCount           int       `json:"strategy_book_count"`
	RiskApproved                bool      `json:"risk_approved"`
	ExecutionIntentCount        int       `json:"execution_intent_count"`
	GrossExposure               float64   `json:"gross_exposure"`
	NetExposure                 float64   `json:"net_exposure"`
	Turnover                    float64   `json:"turnover"`
	TotalExecutionNotional      float64   `json:"total_execution_notional"`
	ControlState                string    `json:"control_state"`
	IncidentTimelineEvents      int       `json:"incident_timeline_events"`
	ActiveIncidentFaults        int       `json:"active_incident_faults"`
	TcaAvgFillRate              float64   `json:"tca_avg_fill_rate"`
	TcaAvgSlippageBps           float64   `json:"tca_avg_slippage_bps"`
	TcaTotalEstimatedCost       float64   `json:"tca_total_estimated_cost"`
	FeedbackRecommendationCount int       `json:"feedback_recommendation_count"`
	FeedbackApprovedCount       int       `json:"feedback_approved_count"`
	FeedbackBlockedCount        int       `json:"feedback_blocked_count"`
	FeedbackPolicyState         string    `json:"feedback_policy_state"`
	ArenaRounds                 int       `json:"agent_arena_rounds"`
	ArenaAgents                 int       `json:"agent_arena_agents"`
	ArenaConvergenceScore       float64   `json:"agent_arena_convergence_score"`
	ArenaPolicyState            string    `json:"agent_arena_policy_state"`
	SanitizedSymbols            int       `json:"sanitized_symbols"`
	SanitizedStrategyBooks      int       `json:"sanitized_strategy_books"`
	SanitizedStrategies         int       `json:"sanitized_strategies"`
}

// WritePublicSnapshot renders the sanitized artifact set for one run into
// dir.
func WritePublicSnapshot(dir string, run engine.RunResult) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create showcase dir: %w", err)
	}

	summary := engine.BuildSummary(run)
	symbolMap := buildAliasMap(collectSymbols(run), "EQ")
	bookMap := buildAliasMap(collectBooks(run), "BOOK")
	strategyMap := buildAliasMap(collectStrategies(run), "STRAT")

	publicSummary := PublicSummary{
		RunTimestampUTC:             run.Timestamp,
		SignalSymbolCount:           summary.SignalSymbolCount,
		StrategyBookCount:           summary.StrategyBookCount,
		RiskApproved:                summary.RiskApproved,
		ExecutionIntentCount:        summary.ExecutionIntentCount,
		GrossExposure:               summary.GrossExposure,
		NetExposure:                 summary.NetExposure,
		Turnover:                    summary.Turnover,
		TotalExecutionNotional:      summary.TotalExecutionNotional,
		ControlState:                summary.ControlState,
		IncidentTimelineEvents:      summary.IncidentTimelineEvents,
		ActiveIncidentFaults:        summary.ActiveIncidentFaults,
		TcaAvgFillRate:              summary.TcaAvgFillRate,
		TcaAvgSlippageBps:           summary.TcaAvgSlippageBps,
		TcaTotalEstimatedCost:       summary.TcaTotalEstimatedCost,
		FeedbackRecommendationCount: summary.FeedbackRecommendationCount,
		FeedbackApprovedCount:       summary.FeedbackApprovedCount,
		FeedbackBlockedCount:        summary.FeedbackBlockedCount,
		FeedbackPolicyState:         summary.FeedbackPolicyState,
		ArenaRounds:                 run.Arena.Summary.RoundsExecuted,
		ArenaAgents:                 run.Arena.Summary.ParticipatingAgents,
		ArenaConvergenceScore:       summary.ArenaConvergenceScore,
		ArenaPolicyState:            summary.ArenaPolicyState,
		SanitizedSymbols:            len(symbolMap),
		SanitizedStrategyBooks:      len(bookMap),
		SanitizedStrategies:         len(strategyMap),
	}

	summaryJSON, err := json.MarshalIndent(publicSummary, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal public summary: %w", err)
	}

	files := map[string][]byte{
		ReportFile:  []byte(buildMarkdown(summary)),
		SummaryFile: append(summaryJSON, '\n'),
	}
	if files[IntentsFile], err = buildIntentsCsv(run, symbolMap, bookMap); err != nil {
		return err
	}
	if files[FeedbackFile], err = buildFeedbackCsv(run, symbolMap, bookMap); err != nil {
		return err
	}
	if files[TimelineFile], err = buildTimelineCsv(run); err != nil {
		return err
	}
	if files[LifecycleFile], err = buildLifecycleCsv(run, strategyMap); err != nil {
		return err
	}
	if files[ArenaFile], err = buildArenaCsv(run, bookMap); err != nil {
		return err
	}

	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}

func buildMarkdown(summary engine.Summary) string {
	var sb strings.Builder
	sb.WriteString("# Equities Fund Launch Platform - Public Showcase Snapshot\n\n")

	sb.WriteString("## Deterministic Runtime Summary\n")
	fmt.Fprintf(&sb, "- Signal universe size: `%d`\n", summary.SignalSymbolCount)
	fmt.Fprintf(&sb, "- Strategy books: `%d`\n", summary.StrategyBookCount)
	fmt.Fprintf(&sb, "- Risk approved: `%t`\n", summary.RiskApproved)
	fmt.Fprintf(&sb, "- Execution intents: `%d`\n", summary.ExecutionIntentCount)
	fmt.Fprintf(&sb, "- Gross / Net exposure: `%.4f` / `%.4f`\n", summary.GrossExposure, summary.NetExposure)
	fmt.Fprintf(&sb, "- Turnover: `%.4f`\n", summary.Turnover)
	fmt.Fprintf(&sb, "- Execution notional: `%.2f`\n", summary.TotalExecutionNotional)

	sb.WriteString("\n## Incident + Control\n")
	fmt.Fprintf(&sb, "- Control state: `%s`\n", summary.ControlState)
	fmt.Fprintf(&sb, "- Incident events: `%d`\n", summary.IncidentTimelineEvents)
	fmt.Fprintf(&sb, "- Replay frames: `%d`\n", summary.IncidentReplayFrames)
	fmt.Fprintf(&sb, "- Active faults: `%d`\n", summary.ActiveIncidentFaults)

	sb.WriteString("\n## TCA + Feedback\n")
	fmt.Fprintf(&sb, "- Avg fill rate: `%.4f`\n", summary.TcaAvgFillRate)
	fmt.Fprintf(&sb, "- Avg slippage (bps): `%.2f`\n", summary.TcaAvgSlippageBps)
	fmt.Fprintf(&sb, "- Estimated execution cost: `%.2f`\n", summary.TcaTotalEstimatedCost)
	fmt.Fprintf(&sb, "- Recommendations (approved/blocked): `%d/%d`\n", summary.FeedbackApprovedCount, summary.FeedbackBlockedCount)
	fmt.Fprintf(&sb, "- Feedback policy state: `%s`\n", summary.FeedbackPolicyState)

	sb.WriteString("\n## Agent Arena\n")
	fmt.Fprintf(&sb, "- Convergence score: `%.4f`\n", summary.ArenaConvergenceScore)
	fmt.Fprintf(&sb, "- Arena policy state: `%s`\n", summary.ArenaPolicyState)

	return sb.String()
}

func buildIntentsCsv(run engine.RunResult, symbolMap, bookMap map[string]string) ([]byte, error) {
	rows := [][]string{{"symbol_alias", "side", "delta_weight", "notional", "route", "urgency", "strategy_book_alias"}}
	for _, it := range run.ExecutionIntents {
		rows = append(rows, []string{
			resolveAlias(symbolMap, it.Symbol), it.Side,
			strconv.FormatFloat(it.DeltaWeight, 'f', 6, 64),
			strconv.FormatFloat(it.Notional, 'f', 2, 64),
			it.Route, it.Urgency, resolveAlias(bookMap, it.BookID),
		})
	}
	return renderCsv(rows)
}

func buildFeedbackCsv(run engine.RunResult, symbolMap, bookMap map[string]string) ([]byte, error) {
	rows := [][]string{{"scope_alias", "current_route", "proposed_route", "priority", "confidence", "guardrail_decision", "guardrail_reason"}}
	for _, r := range run.Feedback.Recommendations {
		rows = append(rows, []string{
			scopeAlias(r.Scope, symbolMap, bookMap), r.CurrentRoute, r.ProposedRoute, r.Priority,
			strconv.FormatFloat(r.Confidence, 'f', 4, 64), r.GuardrailDecision, r.GuardrailReason,
		})
	}
	return renderCsv(rows)
}

// buildTimelineCsv drops the free-text detail column, which may name real
// symbols.
func buildTimelineCsv(run engine.RunResult) ([]byte, error) {
	rows := [][]string{{"sequence", "timestamp_utc", "event_type", "source", "impact_score"}}
	for _, ev := range run.Incident.Timeline {
		rows = append(rows, []string{
			strconv.Itoa(ev.Sequence), ev.Timestamp.UTC().Format(time.RFC3339Nano),
			ev.EventType, ev.Source, strconv.FormatFloat(ev.ImpactScore, 'f', 6, 64),
		})
	}
	return renderCsv(rows)
}

func buildLifecycleCsv(run engine.RunResult, strategyMap map[string]string) ([]byte, error) {
	rows := [][]string{{"strategy_alias", "hook", "status", "timestamp_utc"}}
	for _, ev := range run.StrategyLifecycle {
		rows = append(rows, []string{
			resolveAlias(strategyMap, ev.StrategyID), ev.Hook, ev.Status,
			ev.Timestamp.UTC().Format(time.RFC3339Nano),
		})
	}
	return renderCsv(rows)
}

func buildArenaCsv(run engine.RunResult, bookMap map[string]string) ([]byte, error) {
	rows := [][]string{{"round", "agent_alias", "prior_share", "requested_share", "granted_share", "utility_score", "confidence", "decision"}}
	for _, b := range run.Arena.Bids {
		rows = append(rows, []string{
			strconv.Itoa(b.Round), resolveAlias(bookMap, b.AgentID),
			strconv.FormatFloat(b.PriorShare, 'f', 6, 64),
			strconv.FormatFloat(b.RequestedShare, 'f', 6, 64),
			strconv.FormatFloat(b.GrantedShare, 'f', 6, 64),
			strconv.FormatFloat(b.UtilityScore, 'f', 6, 64),
			strconv.FormatFloat(b.Confidence, 'f', 4, 64),
			b.Decision,
		})
	}
	return renderCsv(rows)
}

func collectSymbols(run engine.RunResult) []string {
	set := map[string]struct{}{}
	for _, s := range run.Signals {
		set[strings.ToUpper(s.Symbol)] = struct{}{}
	}
	for _, a := range run.Allocations {
		set[strings.ToUpper(a.Symbol)] = struct{}{}
	}
	for _, it := range run.ExecutionIntents {
		set[strings.ToUpper(it.Symbol)] = struct{}{}
	}
	for _, f := range run.Incident.ReplayFrames {
		set[strings.ToUpper(f.Symbol)] = struct{}{}
	}
	for _, m := range run.Tca.FillMetrics {
		set[strings.ToUpper(m.Symbol)] = struct{}{}
	}
	return sortedKeys(set)
}

func collectBooks(run engine.RunResult) []string {
	set := map[string]struct{}{}
	for _, b := range run.StrategyBooks {
		set[strings.ToUpper(b.BookID)] = struct{}{}
	}
	for _, it := range run.ExecutionIntents {
		set[strings.ToUpper(it.BookID)] = struct{}{}
	}
	for _, a := range run.Allocations {
		set[strings.ToUpper(a.BookID)] = struct{}{}
	}
	for _, m := range run.Tca.FillMetrics {
		set[strings.ToUpper(m.BookID)] = struct{}{}
	}
	delete(set, "")
	return sortedKeys(set)
}

func collectStrategies(run engine.RunResult) []string {
	set := map[string]struct{}{}
	for _, ev := range run.StrategyLifecycle {
		set[strings.ToUpper(ev.StrategyID)] = struct{}{}
	}
	return sortedKeys(set)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// buildAliasMap assigns EQ01-style aliases in sorted source order, so the
// mapping is stable across runs of the same scenario.
func buildAliasMap(values []string, prefix string) map[string]string {
	m := make(map[string]string, len(values))
	for i, v := range values {
		m[v] = fmt.Sprintf("%s%02d", prefix, i+1)
	}
	return m
}

func resolveAlias(m map[string]string, source string) string {
	if alias, ok := m[strings.ToUpper(source)]; ok {
		return alias
	}
	return unmappedAlias
}

func scopeAlias(scope string, symbolMap, bookMap map[string]string) string {
	parts := strings.Split(scope, ":")
	cleaned := parts[:0]
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	if len(cleaned) != 2 {
		return strings.ToUpper(strings.TrimSpace(scope))
	}
	return resolveAlias(symbolMap, cleaned[0]) + ":" + resolveAlias(bookMap, cleaned[1])
}

func renderCsv(rows [][]string) ([]byte, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return []byte(sb.String()), nil
}
