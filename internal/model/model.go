// Package model holds the contracts shared by every pipeline stage. Stages
// produce new values from these types and never mutate them in place.
package model

import (
	"fmt"
	"time"
)

// StrategySignal is one raw alpha observation emitted by a strategy.
type StrategySignal struct {
	StrategyID string  `yaml:"strategy_id"`
	Symbol     string  `yaml:"symbol"`
	AlphaScore float64 `yaml:"alpha_score"` // clamped to [-1, 1] during normalization
	Confidence float64 `yaml:"confidence"`  // clamped to [0, 1] during normalization
}

// CompositeSignal is the per-symbol blend of all contributing strategies.
type CompositeSignal struct {
	Symbol         string
	CompositeScore float64
	Contributors   []string // distinct strategy ids, sorted
}

// BookWeight is a current holding expressed as a portfolio weight.
type BookWeight struct {
	Symbol string  `yaml:"symbol"`
	Weight float64 `yaml:"weight"`
}

// StrategyBookConfig partitions capital across a subset of strategies.
type StrategyBookConfig struct {
	BookID       string       `yaml:"book_id"`
	StrategyIDs  []string     `yaml:"strategy_ids"`
	CapitalShare float64      `yaml:"capital_share"`
	CurrentBook  []BookWeight `yaml:"current_book"`
}

// MultiBookID tags a rolled-up allocation contributed by more than one book.
const MultiBookID = "MULTI_BOOK"

// PortfolioBookID tags allocations built without strategy books.
const PortfolioBookID = "PORTFOLIO"

// Allocation actions.
const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"
	ActionHold = "HOLD"
)

// AllocationDraft is the allocation intent for a single symbol.
type AllocationDraft struct {
	Symbol        string
	CurrentWeight float64
	TargetWeight  float64
	DeltaWeight   float64
	Action        string
	Rationale     string
	BookID        string
}

// BookSummary is the per-book view of a multi-book allocation.
type BookSummary struct {
	BookID          string
	CapitalShare    float64
	AllocationCount int
	GrossExposure   float64
	NetExposure     float64
	Turnover        float64
}

// RiskLimitConfig carries all hard limits for one run. Values are validated
// on every construction and after every policy override.
type RiskLimitConfig struct {
	MaxAbsWeightPerSymbol float64 `yaml:"max_abs_weight_per_symbol"`
	MaxGrossExposure      float64 `yaml:"max_gross_exposure"`
	MaxTurnover           float64 `yaml:"max_turnover"`
	MaxAbsNetExposure     float64 `yaml:"max_abs_net_exposure"`
	MinOrderNotional      float64 `yaml:"min_order_notional"`
	CapitalBase           float64 `yaml:"capital_base"`
}

// Validate checks limit invariants: strictly positive fields except
// MaxAbsNetExposure and MinOrderNotional, which only need to be >= 0.
func (c RiskLimitConfig) Validate() error {
	if c.MaxAbsWeightPerSymbol <= 0 {
		return fmt.Errorf("%w: max_abs_weight_per_symbol %f", ErrInvalidLimit, c.MaxAbsWeightPerSymbol)
	}
	if c.MaxGrossExposure <= 0 {
		return fmt.Errorf("%w: max_gross_exposure %f", ErrInvalidLimit, c.MaxGrossExposure)
	}
	if c.MaxTurnover <= 0 {
		return fmt.Errorf("%w: max_turnover %f", ErrInvalidLimit, c.MaxTurnover)
	}
	if c.MaxAbsNetExposure < 0 {
		return fmt.Errorf("%w: max_abs_net_exposure %f", ErrInvalidLimit, c.MaxAbsNetExposure)
	}
	if c.MinOrderNotional < 0 {
		return fmt.Errorf("%w: min_order_notional %f", ErrInvalidLimit, c.MinOrderNotional)
	}
	if c.CapitalBase <= 0 {
		return fmt.Errorf("%w: capital_base %f", ErrInvalidLimit, c.CapitalBase)
	}
	return nil
}

// RiskDecision is a single atomic accept/reject for a whole allocation set.
type RiskDecision struct {
	Approved      bool
	Code          string
	Detail        string
	GrossExposure float64
	NetExposure   float64
	Turnover      float64
	Breaches      []string
}

// Execution routes.
const (
	RouteLitSmart              = "LIT_SMART"
	RouteInternalCross         = "INTERNAL_CROSS"
	RouteLitSmartFailover      = "LIT_SMART_FAILOVER"
	RouteInternalCrossFailover = "INTERNAL_CROSS_FAILOVER"
	RouteSafePassive           = "SAFE_PASSIVE"
	RouteRejectedByVenue       = "REJECTED_BY_VENUE"
	RouteCancelledFeedGap      = "CANCELLED_FEED_GAP"
)

// Execution urgencies.
const (
	UrgencyHigh    = "HIGH"
	UrgencyMedium  = "MEDIUM"
	UrgencyLow     = "LOW"
	UrgencyBlocked = "BLOCKED"
)

// ExecutionIntent is one order derived from a non-zero allocation delta.
type ExecutionIntent struct {
	Symbol      string
	Side        string
	DeltaWeight float64
	Notional    float64
	Route       string
	Urgency     string
	BookID      string
}

// Market regimes.
const (
	RegimeCalm     = "CALM"
	RegimeVolatile = "VOLATILE"
	RegimeStress   = "STRESS"
)

// MarketRegimeSnapshot fixes the stress parameters for one run.
type MarketRegimeSnapshot struct {
	Regime               string
	VolatilityMultiplier float64
	LiquidityMultiplier  float64
	SpreadBps            float64
}

// RuntimeEvent is one append-only audit record on the run event log.
type RuntimeEvent struct {
	Sequence    int
	Timestamp   time.Time
	EventType   string
	Source      string
	Detail      string
	ImpactScore float64
}
