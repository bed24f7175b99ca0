// Package feedback derives routing-policy recommendations from low-quality
// fills, gated by guardrails on risk state, regime, and active faults.
package feedback

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fundlaunch/platform/internal/eventlog"
	"github.com/fundlaunch/platform/internal/incident"
	"github.com/fundlaunch/platform/internal/model"
	"github.com/fundlaunch/platform/internal/num"
	"github.com/fundlaunch/platform/internal/tca"
)

// Priorities.
const (
	PriorityHigh   = "HIGH"
	PriorityMedium = "MEDIUM"
	PriorityLow    = "LOW"
)

// Guardrail decisions.
const (
	GuardrailApproved = "APPROVED"
	GuardrailMonitor  = "MONITOR"
	GuardrailBlocked  = "BLOCKED"
)

// Policy states.
const (
	StateActiveTuning    = "ACTIVE_TUNING"
	StateGuardrailedOnly = "GUARDRAILED_ONLY"
	StateObserveOnly     = "OBSERVE_ONLY"
)

// Recommendation proposes a route change for one symbol/book scope.
type Recommendation struct {
	Scope             string
	CurrentRoute      string
	ProposedRoute     string
	Priority          string
	Confidence        float64
	Rationale         string
	GuardrailDecision string
	GuardrailReason   string
}

// Summary counts recommendations by guardrail decision.
type Summary struct {
	RecommendationCount int
	ApprovedCount       int
	BlockedCount        int
	MonitorCount        int
	PolicyState         string
}

// Result is the full feedback output for one run.
type Result struct {
	Recommendations []Recommendation
	Summary         Summary
}

// BuildRecommendations filters DEGRADED/POOR/BLOCKED fills, de-duplicates
// to one recommendation per scope, and applies guardrails. With no
// qualifying fills it emits a single synthetic MONITOR recommendation.
func BuildRecommendations(t tca.Result, risk model.RiskDecision, inc incident.Result, timestamp time.Time, log *eventlog.Log) Result {
	if log == nil {
		log = eventlog.New()
	}

	byScope := make(map[string]Recommendation)
	for _, metric := range t.FillMetrics {
		switch metric.QualityBand {
		case tca.BandDegraded, tca.BandPoor, tca.BandBlocked:
		default:
			continue
		}
		rec := buildRecommendation(metric, risk, inc)
		existing, ok := byScope[rec.Scope]
		if !ok || betterCandidate(rec, existing) {
			byScope[rec.Scope] = rec
		}
	}

	recs := make([]Recommendation, 0, len(byScope))
	for _, rec := range byScope {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool {
		if priorityRank(recs[i].Priority) != priorityRank(recs[j].Priority) {
			return priorityRank(recs[i].Priority) > priorityRank(recs[j].Priority)
		}
		return recs[i].Scope < recs[j].Scope
	})

	if len(recs) == 0 {
		recs = append(recs, Recommendation{
			Scope:             "GLOBAL",
			CurrentRoute:      "UNCHANGED",
			ProposedRoute:     "UNCHANGED",
			Priority:          PriorityLow,
			Confidence:        0.58,
			Rationale:         "No low-quality fills detected in current replay window.",
			GuardrailDecision: GuardrailMonitor,
			GuardrailReason:   "Observe additional cycles before tuning.",
		})
	}

	summary := Summary{RecommendationCount: len(recs)}
	for _, rec := range recs {
		switch rec.GuardrailDecision {
		case GuardrailApproved:
			summary.ApprovedCount++
		case GuardrailBlocked:
			summary.BlockedCount++
		case GuardrailMonitor:
			summary.MonitorCount++
		}
	}
	switch {
	case summary.ApprovedCount > 0:
		summary.PolicyState = StateActiveTuning
	case summary.BlockedCount > 0:
		summary.PolicyState = StateGuardrailedOnly
	default:
		summary.PolicyState = StateObserveOnly
	}

	log.Publish("FEEDBACK_READY", "FEEDBACK_LOOP_ENGINE",
		fmt.Sprintf("Recommendations=%d, approved=%d, blocked=%d.",
			summary.RecommendationCount, summary.ApprovedCount, summary.BlockedCount),
		float64(summary.RecommendationCount), timestamp)

	return Result{Recommendations: recs, Summary: summary}
}

func buildRecommendation(metric tca.FillMetric, risk model.RiskDecision, inc incident.Result) Recommendation {
	proposed := proposeRoute(metric)
	priority := selectPriority(metric.QualityBand, metric.FillRate)
	confidence := selectConfidence(metric.QualityBand, metric.FillRate, metric.SlippageBps)

	decision := GuardrailApproved
	reason := "Within guardrails."
	switch {
	case !risk.Approved:
		decision = GuardrailBlocked
		reason = "Risk gate is not approved."
	case inc.Regime.Regime == model.RegimeStress && proposed == model.RouteLitSmart:
		decision = GuardrailBlocked
		reason = "Stress regime blocks lit expansion."
	case faultActive(inc.ActiveFaults, incident.FaultVenueRejectBurst) && strings.Contains(proposed, model.RouteLitSmart):
		decision = GuardrailBlocked
		reason = "Venue reject burst active for lit routing."
	case metric.QualityBand == tca.BandDegraded:
		decision = GuardrailMonitor
		reason = "Require one more cycle before route switch."
	}

	return Recommendation{
		Scope:             fmt.Sprintf("%s:%s", metric.Symbol, metric.BookID),
		CurrentRoute:      metric.Route,
		ProposedRoute:     proposed,
		Priority:          priority,
		Confidence:        confidence,
		Rationale:         fmt.Sprintf("FillRate=%.3f, Slippage=%.2fbps, Quality=%s.", metric.FillRate, metric.SlippageBps, metric.QualityBand),
		GuardrailDecision: decision,
		GuardrailReason:   reason,
	}
}

// proposeRoute is a deterministic lookup keyed by current route and quality
// band.
func proposeRoute(metric tca.FillMetric) string {
	if metric.QualityBand == tca.BandBlocked || metric.QualityBand == tca.BandPoor {
		switch metric.Route {
		case model.RouteRejectedByVenue:
			return model.RouteInternalCrossFailover
		case model.RouteCancelledFeedGap:
			return model.RouteSafePassive
		case model.RouteLitSmart:
			return model.RouteInternalCross
		default:
			return model.RouteSafePassive
		}
	}

	switch metric.Route {
	case model.RouteLitSmartFailover:
		return model.RouteInternalCrossFailover
	case model.RouteLitSmart:
		return model.RouteInternalCross
	case model.RouteInternalCrossFailover, model.RouteInternalCross:
		return model.RouteSafePassive
	case model.RouteSafePassive:
		if metric.FillRate < 0.70 {
			return model.RouteInternalCross
		}
		return model.RouteSafePassive
	default:
		return model.RouteSafePassive
	}
}

func selectPriority(band string, fillRate float64) string {
	switch {
	case band == tca.BandBlocked || band == tca.BandPoor || fillRate < 0.55:
		return PriorityHigh
	case band == tca.BandDegraded:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// selectConfidence combines the band base score with a fill-rate penalty
// and a slippage boost, clamped to [0.45, 0.98].
func selectConfidence(band string, fillRate, slippageBps float64) float64 {
	var base float64
	switch band {
	case tca.BandBlocked:
		base = 0.86
	case tca.BandPoor:
		base = 0.79
	case tca.BandDegraded:
		base = 0.65
	default:
		base = 0.55
	}
	fillPenalty := (1 - num.Clamp(fillRate, 0, 1)) * 0.22
	slipBoost := slippageBps / 200
	if slipBoost > 0.10 {
		slipBoost = 0.10
	}
	return num.Round4(num.Clamp(base+fillPenalty+slipBoost, 0.45, 0.98))
}

func betterCandidate(candidate, existing Recommendation) bool {
	if priorityRank(candidate.Priority) != priorityRank(existing.Priority) {
		return priorityRank(candidate.Priority) > priorityRank(existing.Priority)
	}
	return candidate.Confidence > existing.Confidence
}

func priorityRank(priority string) int {
	switch priority {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	default:
		return 1
	}
}

func faultActive(faults []string, fault string) bool {
	for _, f := range faults {
		if f == fault {
			return true
		}
	}
	return false
}
