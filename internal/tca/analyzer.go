// Package tca scores realized-vs-intended fills for each adjusted intent
// and aggregates the results by route.
package tca

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/fundlaunch/platform/internal/eventlog"
	"github.com/fundlaunch/platform/internal/incident"
	"github.com/fundlaunch/platform/internal/model"
	"github.com/fundlaunch/platform/internal/num"
)

// Quality bands.
const (
	BandStrong   = "STRONG"
	BandGood     = "GOOD"
	BandDegraded = "DEGRADED"
	BandPoor     = "POOR"
	BandBlocked  = "BLOCKED"
)

// FillMetric scores one (baseline, adjusted) intent pair.
type FillMetric struct {
	Symbol           string
	BookID           string
	Route            string
	IntendedNotional float64
	ExecutedNotional float64
	FillRate         float64
	SlippageBps      float64
	EstimatedCost    float64
	QualityBand      string
}

// RouteSummary aggregates fill metrics for one route.
type RouteSummary struct {
	Route              string
	IntentCount        int
	AvgFillRate        float64
	AvgSlippageBps     float64
	TotalEstimatedCost float64
	PoorQualityCount   int
}

// Summary is the run-level TCA rollup.
type Summary struct {
	AvgFillRate        float64
	AvgSlippageBps     float64
	TotalEstimatedCost float64
	PoorQualityCount   int
	BlockedIntentCount int
}

// Result is the full TCA output for one run.
type Result struct {
	FillMetrics    []FillMetric
	RouteSummaries []RouteSummary
	Summary        Summary
}

// Analyze pairs baseline and adjusted intents positionally (same ordering
// guarantee as the incident replay) and scores each pair.
func Analyze(baseline, executed []model.ExecutionIntent, inc incident.Result, timestamp time.Time, log *eventlog.Log) Result {
	if log == nil {
		log = eventlog.New()
	}

	count := len(baseline)
	if len(executed) < count {
		count = len(executed)
	}

	metrics := make([]FillMetric, 0, count)
	for i := 0; i < count; i++ {
		intended := math.Max(0, baseline[i].Notional)
		actual := math.Max(0, executed[i].Notional)

		fillRate := 0.0
		if intended > 0 {
			fillRate = num.Round6(actual / intended)
		}
		slippage := slippageBps(executed[i].Route, executed[i].Urgency, fillRate, inc.Regime)
		cost := num.Round6(actual * slippage / 10000)

		metrics = append(metrics, FillMetric{
			Symbol:           baseline[i].Symbol,
			BookID:           baseline[i].BookID,
			Route:            executed[i].Route,
			IntendedNotional: intended,
			ExecutedNotional: actual,
			FillRate:         fillRate,
			SlippageBps:      slippage,
			EstimatedCost:    cost,
			QualityBand:      qualityBand(fillRate, slippage, actual),
		})
	}

	return Result{
		FillMetrics:    metrics,
		RouteSummaries: summarizeRoutes(metrics),
		Summary:        summarize(metrics, log, timestamp),
	}
}

func summarize(metrics []FillMetric, log *eventlog.Log, timestamp time.Time) Summary {
	var s Summary
	if len(metrics) > 0 {
		var fill, slip float64
		for _, m := range metrics {
			fill += m.FillRate
			slip += m.SlippageBps
			s.TotalEstimatedCost += m.EstimatedCost
			if m.QualityBand == BandPoor || m.QualityBand == BandBlocked {
				s.PoorQualityCount++
			}
			if m.QualityBand == BandBlocked {
				s.BlockedIntentCount++
			}
		}
		s.AvgFillRate = num.Round6(fill / float64(len(metrics)))
		s.AvgSlippageBps = num.Round6(slip / float64(len(metrics)))
	}
	s.TotalEstimatedCost = num.Round6(s.TotalEstimatedCost)

	log.Publish("TCA_ANALYSIS_READY", "TCA_ENGINE",
		fmt.Sprintf("TCA metrics ready: %d intents, avg fill %.3f.", len(metrics), s.AvgFillRate),
		s.AvgSlippageBps, timestamp)
	return s
}

func summarizeRoutes(metrics []FillMetric) []RouteSummary {
	byRoute := make(map[string][]FillMetric)
	for _, m := range metrics {
		byRoute[m.Route] = append(byRoute[m.Route], m)
	}

	routes := make([]string, 0, len(byRoute))
	for r := range byRoute {
		routes = append(routes, r)
	}
	sort.Strings(routes)

	out := make([]RouteSummary, 0, len(routes))
	for _, route := range routes {
		group := byRoute[route]
		var fill, slip, cost float64
		var poor int
		for _, m := range group {
			fill += m.FillRate
			slip += m.SlippageBps
			cost += m.EstimatedCost
			if m.QualityBand == BandPoor || m.QualityBand == BandBlocked {
				poor++
			}
		}
		n := float64(len(group))
		out = append(out, RouteSummary{
			Route:              route,
			IntentCount:        len(group),
			AvgFillRate:        num.Round6(fill / n),
			AvgSlippageBps:     num.Round6(slip / n),
			TotalEstimatedCost: num.Round6(cost),
			PoorQualityCount:   poor,
		})
	}
	return out
}

// slippageBps combines a fixed per-route base cost, an urgency adjustment,
// an unfilled-notional penalty, and a regime volatility term.
func slippageBps(route, urgency string, fillRate float64, regime model.MarketRegimeSnapshot) float64 {
	var routeBase float64
	switch route {
	case model.RouteInternalCross:
		routeBase = 3.8
	case model.RouteSafePassive:
		routeBase = 4.2
	case model.RouteLitSmart:
		routeBase = 6.3
	case model.RouteInternalCrossFailover:
		routeBase = 7.1
	case model.RouteLitSmartFailover:
		routeBase = 9.6
	case model.RouteRejectedByVenue:
		routeBase = 42
	case model.RouteCancelledFeedGap:
		routeBase = 31
	default:
		routeBase = 8.2
	}

	var urgencyAdj float64
	switch urgency {
	case model.UrgencyHigh:
		urgencyAdj = 1.6
	case model.UrgencyMedium:
		urgencyAdj = 0.9
	case model.UrgencyBlocked:
		urgencyAdj = 4
	default:
		urgencyAdj = 0.4
	}

	fillPenalty := (1 - num.Clamp(fillRate, 0, 1)) * 8
	volatilityAdj := regime.VolatilityMultiplier * 2.25

	return num.Round6(routeBase + urgencyAdj + fillPenalty + volatilityAdj)
}

// qualityBand is BLOCKED iff nothing executed; other bands combine fill
// rate and slippage thresholds.
func qualityBand(fillRate, slippage, executedNotional float64) string {
	switch {
	case executedNotional <= 0:
		return BandBlocked
	case fillRate >= 0.95 && slippage <= 8:
		return BandStrong
	case fillRate >= 0.85 && slippage <= 12:
		return BandGood
	case fillRate >= 0.70 && slippage <= 18:
		return BandDegraded
	default:
		return BandPoor
	}
}
