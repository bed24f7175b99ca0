// Package allocator turns composite signals into target portfolio weights
// under risk limits, for a single book or a set of strategy books with
// independent capital shares.
package allocator

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/fundlaunch/platform/internal/model"
	"github.com/fundlaunch/platform/internal/num"
	"github.com/fundlaunch/platform/internal/signal"
)

const deltaTolerance = 0.000001

// MultiBookResult is the portfolio roll-up plus the per-book summaries.
type MultiBookResult struct {
	PortfolioAllocations []model.AllocationDraft
	BookSummaries        []model.BookSummary
}

// Build runs the single-book allocation algorithm: remove the mean score
// bias, scale to the gross exposure budget, clamp per-symbol, and rescale
// if the clamped basket still exceeds the budget.
func Build(signals []model.CompositeSignal, currentBook []model.BookWeight, limits model.RiskLimitConfig) ([]model.AllocationDraft, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}

	currentMap := make(map[string]float64, len(currentBook))
	for _, w := range currentBook {
		currentMap[normalizeSymbol(w.Symbol)] = num.Round6(w.Weight)
	}

	rawMap := make(map[string]float64, len(signals))
	for _, s := range signals {
		rawMap[normalizeSymbol(s.Symbol)] = s.CompositeScore
	}

	var bias float64
	if len(rawMap) > 0 {
		for _, v := range rawMap {
			bias += v
		}
		bias /= float64(len(rawMap))
	}

	var totalAbs float64
	for k := range rawMap {
		rawMap[k] -= bias
		totalAbs += math.Abs(rawMap[k])
	}

	targetMap := make(map[string]float64, len(rawMap))
	for k, v := range rawMap {
		if totalAbs <= 0 {
			targetMap[k] = 0
			continue
		}
		candidate := num.Round6(v / totalAbs * limits.MaxGrossExposure)
		targetMap[k] = num.Clamp(candidate, -limits.MaxAbsWeightPerSymbol, limits.MaxAbsWeightPerSymbol)
	}

	var gross float64
	for _, v := range targetMap {
		gross += math.Abs(v)
	}
	if gross > limits.MaxGrossExposure && gross > 0 {
		scale := limits.MaxGrossExposure / gross
		for k := range targetMap {
			targetMap[k] = num.Round6(targetMap[k] * scale)
		}
	}

	symbols := make([]string, 0, len(targetMap)+len(currentMap))
	seen := make(map[string]struct{})
	for k := range targetMap {
		symbols = append(symbols, k)
		seen[k] = struct{}{}
	}
	for k := range currentMap {
		if _, ok := seen[k]; !ok {
			symbols = append(symbols, k)
		}
	}
	sort.Strings(symbols)

	drafts := make([]model.AllocationDraft, 0, len(symbols))
	for _, sym := range symbols {
		current := currentMap[sym]
		target := targetMap[sym]
		delta := num.Round6(target - current)
		action := classifyAction(delta)

		rationale := "No material change required."
		if action != model.ActionHold {
			rationale = fmt.Sprintf("Rebalance to align with aggregated score for %s.", sym)
		}

		drafts = append(drafts, model.AllocationDraft{
			Symbol:        sym,
			CurrentWeight: current,
			TargetWeight:  target,
			DeltaWeight:   delta,
			Action:        action,
			Rationale:     rationale,
			BookID:        model.PortfolioBookID,
		})
	}
	return drafts, nil
}

// BuildForBooks runs the single-book algorithm once per strategy book with
// share-restricted limits, then rolls the books up to a portfolio view.
func BuildForBooks(strategySignals []model.StrategySignal, strategyBooks []model.StrategyBookConfig, limits model.RiskLimitConfig) (MultiBookResult, error) {
	if err := limits.Validate(); err != nil {
		return MultiBookResult{}, err
	}

	books := normalizeBooks(strategyBooks)
	if len(books) == 0 {
		return MultiBookResult{}, nil
	}

	var totalShare float64
	for _, b := range books {
		totalShare += b.CapitalShare
	}
	if totalShare <= 0 {
		return MultiBookResult{}, model.ErrBookShare
	}

	var allDrafts []model.AllocationDraft
	summaries := make([]model.BookSummary, 0, len(books))

	for _, book := range books {
		share := num.Round6(book.CapitalShare / totalShare)
		ids := make(map[string]struct{}, len(book.StrategyIDs))
		for _, id := range book.StrategyIDs {
			ids[id] = struct{}{}
		}

		var bookSignals []model.StrategySignal
		for _, s := range strategySignals {
			id := strings.ToUpper(strings.TrimSpace(s.StrategyID))
			if _, ok := ids[id]; ok {
				bookSignals = append(bookSignals, s)
			}
		}

		composite := signal.Aggregate(bookSignals)
		drafts, err := Build(composite, book.CurrentBook, bookLimits(limits, share))
		if err != nil {
			return MultiBookResult{}, err
		}

		var grossExp, netExp, turnover float64
		for i := range drafts {
			drafts[i].BookID = book.BookID
			grossExp += math.Abs(drafts[i].TargetWeight)
			netExp += drafts[i].TargetWeight
			turnover += math.Abs(drafts[i].DeltaWeight)
		}
		allDrafts = append(allDrafts, drafts...)

		summaries = append(summaries, model.BookSummary{
			BookID:          book.BookID,
			CapitalShare:    share,
			AllocationCount: len(drafts),
			GrossExposure:   num.Round6(grossExp),
			NetExposure:     num.Round6(netExp),
			Turnover:        num.Round6(turnover),
		})
	}

	sort.Slice(summaries, func(i, j int) bool { return summaries[i].BookID < summaries[j].BookID })

	return MultiBookResult{
		PortfolioAllocations: rollUp(allDrafts),
		BookSummaries:        summaries,
	}, nil
}

// rollUp sums current and target weights per symbol across all contributing
// books; the delta is recomputed from the summed values, not summed deltas.
func rollUp(bookDrafts []model.AllocationDraft) []model.AllocationDraft {
	type agg struct {
		current float64
		target  float64
		books   map[string]struct{}
	}
	bySymbol := make(map[string]*agg)
	for _, d := range bookDrafts {
		a, ok := bySymbol[d.Symbol]
		if !ok {
			a = &agg{books: make(map[string]struct{})}
			bySymbol[d.Symbol] = a
		}
		a.current += d.CurrentWeight
		a.target += d.TargetWeight
		a.books[d.BookID] = struct{}{}
	}

	symbols := make([]string, 0, len(bySymbol))
	for sym := range bySymbol {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	out := make([]model.AllocationDraft, 0, len(symbols))
	for _, sym := range symbols {
		a := bySymbol[sym]
		books := make([]string, 0, len(a.books))
		for b := range a.books {
			books = append(books, b)
		}
		sort.Strings(books)

		current := num.Round6(a.current)
		target := num.Round6(a.target)
		delta := num.Round6(target - current)
		action := classifyAction(delta)

		bookID := model.MultiBookID
		if len(books) == 1 {
			bookID = books[0]
		}
		rationale := fmt.Sprintf("Roll-up from strategy books (%s).", strings.Join(books, "|"))
		if action == model.ActionHold {
			rationale = fmt.Sprintf("No material multi-book change required (%s).", strings.Join(books, "|"))
		}

		out = append(out, model.AllocationDraft{
			Symbol:        sym,
			CurrentWeight: current,
			TargetWeight:  target,
			DeltaWeight:   delta,
			Action:        action,
			Rationale:     rationale,
			BookID:        bookID,
		})
	}
	return out
}

// bookLimits restricts exposure, turnover, and capital fields by the book's
// normalized capital share. The share is floored at 0.0001 so a tiny book
// still gets a workable limit set.
func bookLimits(limits model.RiskLimitConfig, share float64) model.RiskLimitConfig {
	bounded := num.Clamp(share, 0.0001, 1)
	return model.RiskLimitConfig{
		MaxAbsWeightPerSymbol: num.Round6(limits.MaxAbsWeightPerSymbol * bounded),
		MaxGrossExposure:      num.Round6(limits.MaxGrossExposure * bounded),
		MaxTurnover:           num.Round6(limits.MaxTurnover * bounded),
		MaxAbsNetExposure:     num.Round6(limits.MaxAbsNetExposure * bounded),
		MinOrderNotional:      limits.MinOrderNotional,
		CapitalBase:           num.Round6(limits.CapitalBase * bounded),
	}
}

func normalizeBooks(books []model.StrategyBookConfig) []model.StrategyBookConfig {
	out := make([]model.StrategyBookConfig, 0, len(books))
	for _, book := range books {
		seen := make(map[string]struct{})
		var ids []string
		for _, id := range book.StrategyIDs {
			norm := strings.ToUpper(strings.TrimSpace(id))
			if norm == "" {
				continue
			}
			if _, ok := seen[norm]; ok {
				continue
			}
			seen[norm] = struct{}{}
			ids = append(ids, norm)
		}
		sort.Strings(ids)

		share := num.Round6(math.Max(0, book.CapitalShare))
		if len(ids) == 0 || share <= 0 {
			continue
		}
		out = append(out, model.StrategyBookConfig{
			BookID:       strings.ToUpper(strings.TrimSpace(book.BookID)),
			StrategyIDs:  ids,
			CapitalShare: share,
			CurrentBook:  book.CurrentBook,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BookID < out[j].BookID })
	return out
}

func classifyAction(delta float64) string {
	switch {
	case math.Abs(delta) <= deltaTolerance:
		return model.ActionHold
	case delta > 0:
		return model.ActionBuy
	default:
		return model.ActionSell
	}
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
