package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fundlaunch/platform/internal/arena"
	"github.com/fundlaunch/platform/internal/incident"
	"github.com/fundlaunch/platform/internal/model"
	"github.com/fundlaunch/platform/internal/policy"
)

// Scenario is the full input to one pipeline run. StrategyBooks takes
// precedence over CurrentBook when both are set.
type Scenario struct {
	Signals         []model.StrategySignal     `yaml:"signals"`
	CurrentBook     []model.BookWeight         `yaml:"current_book"`
	StrategyBooks   []model.StrategyBookConfig `yaml:"strategy_books"`
	Limits          model.RiskLimitConfig      `yaml:"risk_limits"`
	PolicyOverrides []policy.OverrideRequest   `yaml:"policy_overrides"`
	Incident        *incident.Config           `yaml:"incident"`
	AgentArena      *arena.Config              `yaml:"agent_arena"`
	FixedTimestamp  *time.Time                 `yaml:"fixed_timestamp"`
}

// MultiBook reports whether the scenario partitions capital across
// strategy books.
func (s Scenario) MultiBook() bool {
	return len(s.StrategyBooks) > 0
}

// Default returns the deterministic demo scenario: four strategies, six
// symbols, and limits that approve the run.
func Default() Scenario {
	fixed := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	return Scenario{
		Signals: []model.StrategySignal{
			{StrategyID: "TREND_CORE", Symbol: "AAPL", AlphaScore: 0.82, Confidence: 0.90},
			{StrategyID: "TREND_CORE", Symbol: "MSFT", AlphaScore: 0.74, Confidence: 0.88},
			{StrategyID: "TREND_CORE", Symbol: "NVDA", AlphaScore: 0.65, Confidence: 0.84},
			{StrategyID: "MEAN_REV", Symbol: "AAPL", AlphaScore: -0.21, Confidence: 0.64},
			{StrategyID: "MEAN_REV", Symbol: "AMZN", AlphaScore: 0.41, Confidence: 0.71},
			{StrategyID: "MEAN_REV", Symbol: "META", AlphaScore: -0.32, Confidence: 0.67},
			{StrategyID: "MACRO_REGIME", Symbol: "MSFT", AlphaScore: 0.19, Confidence: 0.61},
			{StrategyID: "MACRO_REGIME", Symbol: "NVDA", AlphaScore: 0.22, Confidence: 0.58},
			{StrategyID: "MACRO_REGIME", Symbol: "XOM", AlphaScore: -0.28, Confidence: 0.73},
			{StrategyID: "QUALITY_LONG", Symbol: "AAPL", AlphaScore: 0.36, Confidence: 0.76},
			{StrategyID: "QUALITY_LONG", Symbol: "MSFT", AlphaScore: 0.33, Confidence: 0.79},
			{StrategyID: "QUALITY_LONG", Symbol: "AMZN", AlphaScore: 0.29, Confidence: 0.72},
		},
		CurrentBook: []model.BookWeight{
			{Symbol: "AAPL", Weight: 0.09},
			{Symbol: "MSFT", Weight: 0.08},
			{Symbol: "NVDA", Weight: 0.05},
			{Symbol: "AMZN", Weight: 0.02},
			{Symbol: "META", Weight: -0.03},
			{Symbol: "XOM", Weight: 0.01},
		},
		Limits: model.RiskLimitConfig{
			MaxAbsWeightPerSymbol: 0.24,
			MaxGrossExposure:      0.95,
			MaxTurnover:           0.70,
			MaxAbsNetExposure:     0.22,
			MinOrderNotional:      15000,
			CapitalBase:           3000000,
		},
		Incident: &incident.Config{
			EnableLatencySpike:     true,
			EnableVenueRejectBurst: true,
			EnableFeedDropout:      true,
			LatencySpikeMultiplier: 2.5,
			VenueRejectRatio:       0.34,
			FeedDropoutRatio:       0.25,
		},
		AgentArena: &arena.Config{
			Enabled:             true,
			NegotiationRounds:   3,
			MaxShiftPerRound:    0.05,
			MinConvergenceScore: 0.80,
		},
		FixedTimestamp: &fixed,
	}
}

// LoadFile reads a scenario from a yaml file, starting from the default
// scenario so partial files stay runnable.
func LoadFile(path string) (Scenario, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects scenarios with unusable limits. An empty signal set is
// valid and runs through every stage with empty outputs.
func (s Scenario) Validate() error {
	return s.Limits.Validate()
}
