// Package risk evaluates an allocation set against hard limits. Approval is
// atomic: a single breach rejects the entire set.
package risk

import (
	"fmt"
	"math"
	"strings"

	"github.com/fundlaunch/platform/internal/model"
	"github.com/fundlaunch/platform/internal/num"
)

const tolerance = 0.000001

// Evaluate computes gross exposure, net exposure, turnover, and per-symbol
// cap breaches for the allocation set. Pure function, no side effects.
func Evaluate(allocations []model.AllocationDraft, limits model.RiskLimitConfig) (model.RiskDecision, error) {
	if err := limits.Validate(); err != nil {
		return model.RiskDecision{}, err
	}

	var gross, net, turnover float64
	for _, a := range allocations {
		gross += math.Abs(a.TargetWeight)
		net += a.TargetWeight
		turnover += math.Abs(a.DeltaWeight)
	}

	var breaches []string
	if gross > limits.MaxGrossExposure+tolerance {
		breaches = append(breaches, fmt.Sprintf("GrossExposure:%.6f>%.6f", gross, limits.MaxGrossExposure))
	}
	if math.Abs(net) > limits.MaxAbsNetExposure+tolerance {
		breaches = append(breaches, fmt.Sprintf("NetExposure:%.6f>%.6f", math.Abs(net), limits.MaxAbsNetExposure))
	}
	if turnover > limits.MaxTurnover+tolerance {
		breaches = append(breaches, fmt.Sprintf("Turnover:%.6f>%.6f", turnover, limits.MaxTurnover))
	}
	for _, a := range allocations {
		if math.Abs(a.TargetWeight) > limits.MaxAbsWeightPerSymbol+tolerance {
			breaches = append(breaches, fmt.Sprintf("SymbolCap:%s:%.6f>%.6f", a.Symbol, math.Abs(a.TargetWeight), limits.MaxAbsWeightPerSymbol))
		}
	}

	approved := len(breaches) == 0
	code := "APPROVED"
	detail := "All limits satisfied."
	if !approved {
		code = "REJECTED"
		detail = strings.Join(breaches, "; ")
	}

	return model.RiskDecision{
		Approved:      approved,
		Code:          code,
		Detail:        detail,
		GrossExposure: num.Round6(gross),
		NetExposure:   num.Round6(net),
		Turnover:      num.Round6(turnover),
		Breaches:      breaches,
	}, nil
}
