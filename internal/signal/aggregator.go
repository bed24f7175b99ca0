// Package signal collapses raw per-strategy signals into one composite
// score per symbol.
package signal

import (
	"sort"
	"strings"

	"github.com/fundlaunch/platform/internal/model"
	"github.com/fundlaunch/platform/internal/num"
)

// Normalize trims and upper-cases ids, and clamps alpha to [-1, 1] and
// confidence to [0, 1].
func Normalize(s model.StrategySignal) model.StrategySignal {
	return model.StrategySignal{
		StrategyID: strings.ToUpper(strings.TrimSpace(s.StrategyID)),
		Symbol:     strings.ToUpper(strings.TrimSpace(s.Symbol)),
		AlphaScore: num.Round6(num.Clamp(s.AlphaScore, -1, 1)),
		Confidence: num.Round6(num.Clamp(s.Confidence, 0, 1)),
	}
}

// Aggregate groups normalized signals by symbol and blends them into
// composite scores. Output is sorted by symbol; empty input yields empty
// output.
func Aggregate(signals []model.StrategySignal) []model.CompositeSignal {
	type group struct {
		score        float64
		contributors map[string]struct{}
	}
	groups := make(map[string]*group)
	for _, raw := range signals {
		s := Normalize(raw)
		g, ok := groups[s.Symbol]
		if !ok {
			g = &group{contributors: make(map[string]struct{})}
			groups[s.Symbol] = g
		}
		g.score += s.AlphaScore * s.Confidence
		g.contributors[s.StrategyID] = struct{}{}
	}

	out := make([]model.CompositeSignal, 0, len(groups))
	for symbol, g := range groups {
		contributors := make([]string, 0, len(g.contributors))
		for id := range g.contributors {
			contributors = append(contributors, id)
		}
		sort.Strings(contributors)
		out = append(out, model.CompositeSignal{
			Symbol:         symbol,
			CompositeScore: num.Round6(g.score),
			Contributors:   contributors,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// AverageAbsScore is the mean absolute composite score, zero for no signals.
// The incident simulator keys regime selection off this value.
func AverageAbsScore(signals []model.CompositeSignal) float64 {
	if len(signals) == 0 {
		return 0
	}
	var sum float64
	for _, s := range signals {
		if s.CompositeScore < 0 {
			sum -= s.CompositeScore
		} else {
			sum += s.CompositeScore
		}
	}
	return sum / float64(len(signals))
}
