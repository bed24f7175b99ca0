package signal

import (
	"testing"

	"github.com/fundlaunch/platform/internal/model"
)

func TestAggregateBlendsAndSorts(t *testing.T) {
	signals := []model.StrategySignal{
		{StrategyID: " trend_core ", Symbol: "msft", AlphaScore: 0.5, Confidence: 0.8},
		{StrategyID: "MEAN_REV", Symbol: "AAPL", AlphaScore: -0.2, Confidence: 0.5},
		{StrategyID: "TREND_CORE", Symbol: "AAPL", AlphaScore: 0.6, Confidence: 0.9},
	}
	out := Aggregate(signals)
	if len(out) != 2 {
		t.Fatalf("expected 2 composites, got %d", len(out))
	}
	if out[0].Symbol != "AAPL" || out[1].Symbol != "MSFT" {
		t.Fatalf("expected sorted symbols, got %v %v", out[0].Symbol, out[1].Symbol)
	}
	// 0.6*0.9 + (-0.2*0.5) = 0.44
	if out[0].CompositeScore != 0.44 {
		t.Fatalf("expected 0.44, got %v", out[0].CompositeScore)
	}
	if len(out[0].Contributors) != 2 || out[0].Contributors[0] != "MEAN_REV" {
		t.Fatalf("unexpected contributors %v", out[0].Contributors)
	}
}

func TestAggregateClampsOutOfRangeInputs(t *testing.T) {
	out := Aggregate([]model.StrategySignal{
		{StrategyID: "S1", Symbol: "XOM", AlphaScore: 4.0, Confidence: 2.0},
	})
	if len(out) != 1 {
		t.Fatalf("expected 1 composite, got %d", len(out))
	}
	// alpha clamps to 1, confidence clamps to 1
	if out[0].CompositeScore != 1.0 {
		t.Fatalf("expected clamped score 1.0, got %v", out[0].CompositeScore)
	}
}

func TestAggregateEmptyInput(t *testing.T) {
	if out := Aggregate(nil); len(out) != 0 {
		t.Fatalf("expected empty output, got %d", len(out))
	}
}

func TestAggregateDedupesContributors(t *testing.T) {
	out := Aggregate([]model.StrategySignal{
		{StrategyID: "S1", Symbol: "NVDA", AlphaScore: 0.1, Confidence: 0.5},
		{StrategyID: "s1", Symbol: "nvda", AlphaScore: 0.2, Confidence: 0.5},
	})
	if len(out[0].Contributors) != 1 {
		t.Fatalf("expected deduped contributors, got %v", out[0].Contributors)
	}
	// 0.1*0.5 + 0.2*0.5
	if out[0].CompositeScore != 0.15 {
		t.Fatalf("expected 0.15, got %v", out[0].CompositeScore)
	}
}

func TestAverageAbsScore(t *testing.T) {
	avg := AverageAbsScore([]model.CompositeSignal{
		{CompositeScore: 0.5},
		{CompositeScore: -0.3},
	})
	if avg != 0.4 {
		t.Fatalf("expected 0.4, got %v", avg)
	}
	if AverageAbsScore(nil) != 0 {
		t.Fatal("expected 0 for empty input")
	}
}
