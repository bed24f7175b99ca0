// Package execution converts approved allocation deltas into sized, routed
// order intents.
package execution

import (
	"math"
	"sort"

	"github.com/fundlaunch/platform/internal/model"
	"github.com/fundlaunch/platform/internal/num"
)

const (
	deltaTolerance   = 0.000001
	highUrgencyDelta = 0.10
	medUrgencyDelta  = 0.05
	litRouteNotional = 125000
)

// Plan builds one intent per allocation with a material delta. A rejected
// risk decision yields no orders. Intents below the minimum order notional
// are dropped; output is sorted by descending notional, then symbol.
func Plan(allocations []model.AllocationDraft, decision model.RiskDecision, limits model.RiskLimitConfig) []model.ExecutionIntent {
	if !decision.Approved {
		return nil
	}

	intents := make([]model.ExecutionIntent, 0, len(allocations))
	for _, a := range allocations {
		absDelta := math.Abs(a.DeltaWeight)
		if absDelta <= deltaTolerance {
			continue
		}

		notional := num.Round6(absDelta * limits.CapitalBase)
		if notional < limits.MinOrderNotional {
			continue
		}

		urgency := model.UrgencyLow
		switch {
		case absDelta >= highUrgencyDelta:
			urgency = model.UrgencyHigh
		case absDelta >= medUrgencyDelta:
			urgency = model.UrgencyMedium
		}

		route := model.RouteInternalCross
		if notional >= litRouteNotional {
			route = model.RouteLitSmart
		}

		intents = append(intents, model.ExecutionIntent{
			Symbol:      a.Symbol,
			Side:        a.Action,
			DeltaWeight: a.DeltaWeight,
			Notional:    notional,
			Route:       route,
			Urgency:     urgency,
			BookID:      a.BookID,
		})
	}

	sort.Slice(intents, func(i, j int) bool {
		if intents[i].Notional != intents[j].Notional {
			return intents[i].Notional > intents[j].Notional
		}
		return intents[i].Symbol < intents[j].Symbol
	})
	return intents
}

// TotalNotional sums intent notionals for summary reporting.
func TotalNotional(intents []model.ExecutionIntent) float64 {
	var total float64
	for _, it := range intents {
		total += it.Notional
	}
	return num.Round6(total)
}
