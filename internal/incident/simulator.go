// Package incident applies synthetic market-stress faults to baseline
// execution intents and records a step-by-step replay. Regime parameters
// derive from the run's composite signals, so the whole simulation is
// deterministic per scenario.
package incident

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/fundlaunch/platform/internal/eventlog"
	"github.com/fundlaunch/platform/internal/model"
	"github.com/fundlaunch/platform/internal/num"
	"github.com/fundlaunch/platform/internal/signal"
)

// Fault identifiers.
const (
	FaultLatencySpike     = "LATENCY_SPIKE"
	FaultVenueRejectBurst = "VENUE_REJECT_BURST"
	FaultFeedDropout      = "FEED_DROPOUT"
)

// Replay outcomes.
const (
	OutcomeUnchanged = "UNCHANGED"
	OutcomeRejected  = "REJECTED"
	OutcomeThrottled = "THROTTLED"
	OutcomeRerouted  = "REROUTED"
)

// Config toggles the individual faults. A nil config disables everything.
type Config struct {
	EnableLatencySpike     bool    `yaml:"enable_latency_spike"`
	EnableVenueRejectBurst bool    `yaml:"enable_venue_reject_burst"`
	EnableFeedDropout      bool    `yaml:"enable_feed_dropout"`
	LatencySpikeMultiplier float64 `yaml:"latency_spike_multiplier"`
	VenueRejectRatio       float64 `yaml:"venue_reject_ratio"`
	FeedDropoutRatio       float64 `yaml:"feed_dropout_ratio"`
}

// ReplayFrame is the before/after view of one intent.
type ReplayFrame struct {
	Step             int
	Symbol           string
	BaselineNotional float64
	AdjustedNotional float64
	BaselineRoute    string
	AdjustedRoute    string
	Outcome          string
}

// Result carries the adjusted intents plus everything needed for audit.
type Result struct {
	Regime           model.MarketRegimeSnapshot
	Timeline         []model.RuntimeEvent
	ActiveFaults     []string
	AdjustedIntents  []model.ExecutionIntent
	ReplayFrames     []ReplayFrame
	RejectedNotional float64
	AddedLatencyMs   float64
}

// Simulate applies the enabled faults, in fixed order, against the baseline
// intents. Every mutation publishes an event; regime selection and replay
// completion publish even with zero faults.
func Simulate(signals []model.CompositeSignal, baseline []model.ExecutionIntent, cfg *Config, timestamp time.Time, log *eventlog.Log) Result {
	conf := normalizeConfig(cfg)
	if log == nil {
		log = eventlog.New()
	}

	regime := SelectRegime(signals)
	log.Publish("REGIME_SELECTED", "MARKET_REGIME_SIMULATOR",
		fmt.Sprintf("%s regime selected. Spread=%.1fbps", regime.Regime, regime.SpreadBps),
		regime.VolatilityMultiplier, timestamp)

	adjusted := make([]model.ExecutionIntent, len(baseline))
	copy(adjusted, baseline)

	var activeFaults []string
	var rejectedNotional float64
	addedLatencyMs := num.Round6(4 * regime.VolatilityMultiplier)

	if conf.EnableLatencySpike && len(adjusted) > 0 {
		activeFaults = append(activeFaults, FaultLatencySpike)
		addedLatencyMs += num.Round6(float64(10+len(adjusted)) * math.Max(1, conf.LatencySpikeMultiplier))

		log.Publish("FAULT_INJECTED", "INCIDENT_SIMULATOR",
			fmt.Sprintf("Latency spike injected (x%.2f).", conf.LatencySpikeMultiplier),
			conf.LatencySpikeMultiplier, timestamp)

		for i := range adjusted {
			if adjusted[i].Route == model.RouteRejectedByVenue {
				continue
			}
			switch adjusted[i].Urgency {
			case model.UrgencyHigh:
				adjusted[i].Route = model.RouteLitSmartFailover
			case model.UrgencyMedium:
				adjusted[i].Route = model.RouteInternalCrossFailover
			}
		}
	}

	if conf.EnableVenueRejectBurst && len(adjusted) > 0 {
		activeFaults = append(activeFaults, FaultVenueRejectBurst)
		rejectCount := affectedCount(len(adjusted), conf.VenueRejectRatio)

		indices := sortedIndices(adjusted, func(i, j int) bool {
			if adjusted[i].Notional != adjusted[j].Notional {
				return adjusted[i].Notional > adjusted[j].Notional
			}
			return adjusted[i].Symbol < adjusted[j].Symbol
		})
		for _, idx := range indices[:rejectCount] {
			prior := adjusted[idx]
			if prior.Notional <= 0 {
				continue
			}
			rejectedNotional += prior.Notional
			adjusted[idx].Notional = 0
			adjusted[idx].Route = model.RouteRejectedByVenue
			adjusted[idx].Urgency = model.UrgencyBlocked

			log.Publish("ORDER_REJECTED", "VENUE_ADAPTER",
				fmt.Sprintf("%s rejected by venue burst protection.", prior.Symbol),
				prior.Notional, timestamp)
		}
	}

	if conf.EnableFeedDropout && len(adjusted) > 0 {
		activeFaults = append(activeFaults, FaultFeedDropout)
		count := affectedCount(len(adjusted), conf.FeedDropoutRatio)

		indices := sortedIndices(adjusted, func(i, j int) bool {
			if adjusted[i].Symbol != adjusted[j].Symbol {
				return adjusted[i].Symbol < adjusted[j].Symbol
			}
			return adjusted[i].BookID < adjusted[j].BookID
		})
		for _, idx := range indices[:count] {
			prior := adjusted[idx]
			if prior.Notional <= 0 {
				continue
			}
			trimmed := num.Round6(prior.Notional * (1 - num.Clamp(conf.FeedDropoutRatio, 0, 1)))
			adjusted[idx].Notional = math.Max(0, trimmed)
			adjusted[idx].Urgency = model.UrgencyLow
			if trimmed <= 0 {
				adjusted[idx].Route = model.RouteCancelledFeedGap
			} else {
				adjusted[idx].Route = model.RouteSafePassive
			}

			log.Publish("FEED_DEGRADED", "MARKET_DATA_GATEWAY",
				fmt.Sprintf("%s downgraded due to feed dropout.", prior.Symbol),
				conf.FeedDropoutRatio, timestamp)
		}
	}

	frames := buildReplayFrames(baseline, adjusted)
	log.Publish("REPLAY_READY", "INCIDENT_SIMULATOR",
		fmt.Sprintf("Replay frames ready: %d.", len(frames)),
		float64(len(frames)), timestamp)

	sort.Strings(activeFaults)

	return Result{
		Regime:           regime,
		Timeline:         log.Snapshot(),
		ActiveFaults:     activeFaults,
		AdjustedIntents:  adjusted,
		ReplayFrames:     frames,
		RejectedNotional: num.Round6(rejectedNotional),
		AddedLatencyMs:   num.Round6(addedLatencyMs),
	}
}

// SelectRegime classifies market stress off the average absolute composite
// score: >= 0.80 STRESS, >= 0.45 VOLATILE, else CALM.
func SelectRegime(signals []model.CompositeSignal) model.MarketRegimeSnapshot {
	avgAbs := signal.AverageAbsScore(signals)
	switch {
	case avgAbs >= 0.80:
		return model.MarketRegimeSnapshot{Regime: model.RegimeStress, VolatilityMultiplier: 1.65, LiquidityMultiplier: 0.62, SpreadBps: 19.5}
	case avgAbs >= 0.45:
		return model.MarketRegimeSnapshot{Regime: model.RegimeVolatile, VolatilityMultiplier: 1.30, LiquidityMultiplier: 0.78, SpreadBps: 11.2}
	default:
		return model.MarketRegimeSnapshot{Regime: model.RegimeCalm, VolatilityMultiplier: 1.05, LiquidityMultiplier: 1.00, SpreadBps: 5.1}
	}
}

func buildReplayFrames(baseline, adjusted []model.ExecutionIntent) []ReplayFrame {
	count := len(baseline)
	if len(adjusted) < count {
		count = len(adjusted)
	}
	frames := make([]ReplayFrame, 0, count)
	for i := 0; i < count; i++ {
		before, after := baseline[i], adjusted[i]

		outcome := OutcomeUnchanged
		switch {
		case after.Notional <= 0 && before.Notional > 0:
			outcome = OutcomeRejected
		case after.Notional < before.Notional:
			outcome = OutcomeThrottled
		case before.Route != after.Route:
			outcome = OutcomeRerouted
		}

		frames = append(frames, ReplayFrame{
			Step:             i + 1,
			Symbol:           before.Symbol,
			BaselineNotional: before.Notional,
			AdjustedNotional: after.Notional,
			BaselineRoute:    before.Route,
			AdjustedRoute:    after.Route,
			Outcome:          outcome,
		})
	}
	return frames
}

func normalizeConfig(cfg *Config) Config {
	if cfg == nil {
		return Config{}
	}
	return Config{
		EnableLatencySpike:     cfg.EnableLatencySpike,
		EnableVenueRejectBurst: cfg.EnableVenueRejectBurst,
		EnableFeedDropout:      cfg.EnableFeedDropout,
		LatencySpikeMultiplier: num.Round6(math.Max(0.25, cfg.LatencySpikeMultiplier)),
		VenueRejectRatio:       num.Round6(num.Clamp(cfg.VenueRejectRatio, 0, 1)),
		FeedDropoutRatio:       num.Round6(num.Clamp(cfg.FeedDropoutRatio, 0, 1)),
	}
}

// affectedCount is max(1, floor(total*ratio)), capped at total.
func affectedCount(total int, ratio float64) int {
	if total <= 0 || ratio <= 0 {
		return 0
	}
	count := int(math.Floor(float64(total) * ratio))
	if count < 1 {
		count = 1
	}
	if count > total {
		count = total
	}
	return count
}

func sortedIndices(intents []model.ExecutionIntent, less func(i, j int) bool) []int {
	indices := make([]int, len(intents))
	for i := range indices {
		indices[i] = i
	}
	sort.SliceStable(indices, func(a, b int) bool { return less(indices[a], indices[b]) })
	return indices
}
