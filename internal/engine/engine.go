// Package engine runs the full decision pipeline for one scenario: signal
// aggregation, allocation, risk gating, execution planning, incident
// simulation, transaction cost analysis, feedback, and the agent arena.
package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fundlaunch/platform/internal/allocator"
	"github.com/fundlaunch/platform/internal/arena"
	"github.com/fundlaunch/platform/internal/config"
	"github.com/fundlaunch/platform/internal/eventlog"
	"github.com/fundlaunch/platform/internal/execution"
	"github.com/fundlaunch/platform/internal/feedback"
	"github.com/fundlaunch/platform/internal/incident"
	"github.com/fundlaunch/platform/internal/model"
	"github.com/fundlaunch/platform/internal/num"
	"github.com/fundlaunch/platform/internal/plugin"
	"github.com/fundlaunch/platform/internal/policy"
	"github.com/fundlaunch/platform/internal/risk"
	"github.com/fundlaunch/platform/internal/signal"
	"github.com/fundlaunch/platform/internal/tca"
	"github.com/fundlaunch/platform/internal/telemetry"
)

// RunResult is the complete output of one pipeline run.
type RunResult struct {
	RunID             string
	Timestamp         time.Time
	Signals           []model.CompositeSignal
	Allocations       []model.AllocationDraft
	StrategyBooks     []model.BookSummary
	Risk              model.RiskDecision
	ExecutionIntents  []model.ExecutionIntent
	PolicyAudit       []policy.AuditEntry
	StrategyLifecycle []plugin.LifecycleEvent
	Incident          incident.Result
	Tca               tca.Result
	Feedback          feedback.Result
	Arena             arena.Result
	Telemetry         telemetry.Snapshot
	Events            []model.RuntimeEvent
}

// Summary flattens a run for operators and report headers.
type Summary struct {
	RunID                       string
	SignalSymbolCount           int
	AllocationCount             int
	StrategyBookCount           int
	RiskApproved                bool
	BreachCount                 int
	ExecutionIntentCount        int
	GrossExposure               float64
	NetExposure                 float64
	Turnover                    float64
	TotalExecutionNotional      float64
	TopSignalSymbol             string
	TopSignalScore              float64
	FleetHealthScore            float64
	ControlState                string
	AppliedPolicyOverrideCount  int
	PendingPolicyOverrideCount  int
	StrategyLifecycleEvents     int
	IncidentTimelineEvents      int
	IncidentReplayFrames        int
	ActiveIncidentFaults        int
	TcaAvgFillRate              float64
	TcaAvgSlippageBps           float64
	TcaTotalEstimatedCost       float64
	FeedbackRecommendationCount int
	FeedbackApprovedCount       int
	FeedbackBlockedCount        int
	FeedbackPolicyState         string
	ArenaPolicyState            string
	ArenaConvergenceScore       float64
}

// Engine wires the pipeline stages together.
type Engine struct {
	plugins *plugin.Registry
	log     zerolog.Logger
}

// New builds an engine. A nil registry disables all plugin hooks.
func New(plugins *plugin.Registry, log zerolog.Logger) *Engine {
	if plugins == nil {
		plugins = plugin.Empty()
	}
	return &Engine{plugins: plugins, log: log}
}

// Run executes every stage in order. Limit validation and allocation
// failures abort the run; every later stage degrades instead of failing.
func (e *Engine) Run(scenario config.Scenario) (RunResult, error) {
	timestamp, runID := runIdentity(scenario)
	log := e.log.With().Str("run_id", runID).Logger()

	if err := scenario.Validate(); err != nil {
		return RunResult{}, fmt.Errorf("validate scenario: %w", err)
	}

	policyResult, err := policy.Apply(scenario.Limits, scenario.PolicyOverrides, timestamp)
	if err != nil {
		return RunResult{}, fmt.Errorf("apply policy overrides: %w", err)
	}
	limits := policyResult.EffectiveLimits
	log.Debug().Int("overrides", len(policyResult.AuditTrail)).Msg("policy overrides evaluated")

	hookResult := e.plugins.ExecuteInitialize(scenario.Signals, timestamp, runID)
	lifecycle := hookResult.Events
	inputSignals := hookResult.Signals

	composites := signal.Aggregate(inputSignals)
	lifecycle = append(lifecycle, e.plugins.ExecuteCompositePublished(composites, timestamp, runID)...)
	log.Info().Int("symbols", len(composites)).Msg("composite signals built")

	var allocations []model.AllocationDraft
	var books []model.BookSummary
	if scenario.MultiBook() {
		multi, buildErr := allocator.BuildForBooks(inputSignals, scenario.StrategyBooks, limits)
		if buildErr != nil {
			return RunResult{}, fmt.Errorf("build book allocations: %w", buildErr)
		}
		allocations = multi.PortfolioAllocations
		books = multi.BookSummaries
	} else {
		allocations, err = allocator.Build(composites, scenario.CurrentBook, limits)
		if err != nil {
			return RunResult{}, fmt.Errorf("build allocations: %w", err)
		}
	}

	riskDecision, err := risk.Evaluate(allocations, limits)
	if err != nil {
		return RunResult{}, fmt.Errorf("evaluate risk: %w", err)
	}
	if !riskDecision.Approved {
		log.Warn().Strs("breaches", riskDecision.Breaches).Msg("risk gate rejected run")
	}

	intents := execution.Plan(allocations, riskDecision, limits)

	runtimeLog := eventlog.New()
	incidentResult := incident.Simulate(composites, intents, scenario.Incident, timestamp, runtimeLog)
	if len(incidentResult.ActiveFaults) > 0 {
		log.Warn().Strs("faults", incidentResult.ActiveFaults).Msg("incident faults active")
	}

	tcaResult := tca.Analyze(intents, incidentResult.AdjustedIntents, incidentResult, timestamp, runtimeLog)
	feedbackResult := feedback.BuildRecommendations(tcaResult, riskDecision, incidentResult, timestamp, runtimeLog)
	arenaResult := arena.Run(books, tcaResult, feedbackResult, incidentResult, riskDecision, scenario.AgentArena, timestamp, runtimeLog)

	snapshot := telemetry.Build(allocations, riskDecision, intents, &incidentResult)
	telemetry.Observe(snapshot, riskDecision, &incidentResult, feedbackResult)

	result := RunResult{
		RunID:            runID,
		Timestamp:        timestamp,
		Signals:          composites,
		Allocations:      allocations,
		StrategyBooks:    books,
		Risk:             riskDecision,
		ExecutionIntents: intents,
		PolicyAudit:      policyResult.AuditTrail,
		Incident:         incidentResult,
		Tca:              tcaResult,
		Feedback:         feedbackResult,
		Arena:            arenaResult,
		Telemetry:        snapshot,
	}

	lifecycle = append(lifecycle, e.plugins.ExecuteRunCompleted(runView(result), timestamp, runID)...)
	result.StrategyLifecycle = lifecycle
	result.Events = runtimeLog.Snapshot()

	log.Info().
		Bool("approved", riskDecision.Approved).
		Int("intents", len(intents)).
		Str("control_state", snapshot.ControlState).
		Msg("run completed")
	return result, nil
}

// BuildSummary flattens a run result.
func BuildSummary(run RunResult) Summary {
	topSymbol := "(none)"
	topScore := 0.0
	for _, s := range run.Signals {
		if topSymbol == "(none)" ||
			abs(s.CompositeScore) > abs(topScore) ||
			(abs(s.CompositeScore) == abs(topScore) && s.Symbol < topSymbol) {
			topSymbol = s.Symbol
			topScore = s.CompositeScore
		}
	}

	return Summary{
		RunID:                       run.RunID,
		SignalSymbolCount:           len(run.Signals),
		AllocationCount:             len(run.Allocations),
		StrategyBookCount:           len(run.StrategyBooks),
		RiskApproved:                run.Risk.Approved,
		BreachCount:                 len(run.Risk.Breaches),
		ExecutionIntentCount:        len(run.ExecutionIntents),
		GrossExposure:               run.Risk.GrossExposure,
		NetExposure:                 run.Risk.NetExposure,
		Turnover:                    run.Risk.Turnover,
		TotalExecutionNotional:      num.Round6(execution.TotalNotional(run.ExecutionIntents)),
		TopSignalSymbol:             topSymbol,
		TopSignalScore:              topScore,
		FleetHealthScore:            run.Telemetry.FleetHealthScore,
		ControlState:                run.Telemetry.ControlState,
		AppliedPolicyOverrideCount:  policy.CountByStatus(run.PolicyAudit, policy.StatusApplied),
		PendingPolicyOverrideCount:  policy.CountByStatus(run.PolicyAudit, policy.StatusPendingApproval),
		StrategyLifecycleEvents:     len(run.StrategyLifecycle),
		IncidentTimelineEvents:      len(run.Incident.Timeline),
		IncidentReplayFrames:        len(run.Incident.ReplayFrames),
		ActiveIncidentFaults:        len(run.Incident.ActiveFaults),
		TcaAvgFillRate:              run.Tca.Summary.AvgFillRate,
		TcaAvgSlippageBps:           run.Tca.Summary.AvgSlippageBps,
		TcaTotalEstimatedCost:       run.Tca.Summary.TotalEstimatedCost,
		FeedbackRecommendationCount: run.Feedback.Summary.RecommendationCount,
		FeedbackApprovedCount:       run.Feedback.Summary.ApprovedCount,
		FeedbackBlockedCount:        run.Feedback.Summary.BlockedCount,
		FeedbackPolicyState:         run.Feedback.Summary.PolicyState,
		ArenaPolicyState:            run.Arena.Summary.PolicyState,
		ArenaConvergenceScore:       run.Arena.Summary.ConvergenceScore,
	}
}

// runIdentity derives the run clock and id. A fixed timestamp pins the id
// too, so repeated runs of the same scenario are byte identical.
func runIdentity(scenario config.Scenario) (time.Time, string) {
	if scenario.FixedTimestamp != nil {
		ts := scenario.FixedTimestamp.UTC()
		return ts, fmt.Sprintf("run-%d", ts.UnixNano())
	}
	return time.Now().UTC(), uuid.NewString()
}

func runView(result RunResult) plugin.RunView {
	return plugin.RunView{
		Timestamp:   result.Timestamp,
		Signals:     result.Signals,
		Allocations: result.Allocations,
		Risk:        result.Risk,
		Intents:     result.ExecutionIntents,
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
