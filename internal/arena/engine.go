// Package arena runs a fixed number of negotiation rounds in which each
// strategy book bids for a capital share based on its execution performance.
// Shares are represented as immutable per-round snapshots: every round
// produces a new normalized mapping rather than editing the previous one.
package arena

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/fundlaunch/platform/internal/eventlog"
	"github.com/fundlaunch/platform/internal/feedback"
	"github.com/fundlaunch/platform/internal/incident"
	"github.com/fundlaunch/platform/internal/model"
	"github.com/fundlaunch/platform/internal/num"
	"github.com/fundlaunch/platform/internal/tca"
)

// Terminal policy states.
const (
	StateDisabled    = "DISABLED"
	StateHalted      = "HALTED"
	StateGuardrailed = "GUARDRAILED"
	StateConverged   = "CONVERGED"
	StateStabilizing = "STABILIZING"
	StateDivergent   = "DIVERGENT"
)

// Share decisions.
const (
	DecisionIncrease = "INCREASE"
	DecisionDecrease = "DECREASE"
	DecisionHold     = "HOLD"
)

const shareTolerance = 0.000001

// Config bounds the negotiation. A nil config disables the arena.
type Config struct {
	Enabled             bool    `yaml:"enabled"`
	NegotiationRounds   int     `yaml:"negotiation_rounds"`
	MaxShiftPerRound    float64 `yaml:"max_shift_per_round"`
	MinConvergenceScore float64 `yaml:"min_convergence_score"`
}

// Bid is one agent's ledger entry for one round.
type Bid struct {
	Round          int
	AgentID        string
	PriorShare     float64
	RequestedShare float64
	GrantedShare   float64
	UtilityScore   float64
	Confidence     float64
	Decision       string
	Rationale      string
}

// BookOutcome is the terminal share for one book.
type BookOutcome struct {
	AgentID         string
	StartShare      float64
	FinalShare      float64
	NetShift        float64
	AvgUtilityScore float64
}

// Summary describes the terminal arena state.
type Summary struct {
	Enabled             bool
	RoundsExecuted      int
	ParticipatingAgents int
	ConvergenceScore    float64
	PolicyState         string
}

// Result is the full arena output for one run.
type Result struct {
	Bids     []Bid
	Outcomes []BookOutcome
	Summary  Summary
}

// Run executes the negotiation. Disabled config or zero participants
// returns a terminal DISABLED summary with no bids.
func Run(books []model.BookSummary, t tca.Result, fb feedback.Result, inc incident.Result, risk model.RiskDecision, cfg *Config, timestamp time.Time, log *eventlog.Log) Result {
	if log == nil {
		log = eventlog.New()
	}
	conf := normalizeConfig(cfg)

	participants := make([]model.BookSummary, len(books))
	copy(participants, books)
	sort.Slice(participants, func(i, j int) bool { return participants[i].BookID < participants[j].BookID })

	if !conf.Enabled || len(participants) == 0 {
		return Result{Summary: Summary{
			Enabled:             false,
			ParticipatingAgents: len(participants),
			PolicyState:         StateDisabled,
		}}
	}

	initial := make(map[string]float64, len(participants))
	for _, b := range participants {
		initial[b.BookID] = b.CapitalShare
	}
	startShares := normalizeShares(initial)
	shares := startShares

	var bids []Bid
	var lastRoundShift float64

	log.Publish("AGENT_ARENA_STARTED", "AGENT_ARENA_ENGINE",
		fmt.Sprintf("Agent arena started with %d participants.", len(participants)),
		float64(len(participants)), timestamp)

	for round := 1; round <= conf.NegotiationRounds; round++ {
		requested := make(map[string]float64, len(participants))
		perfByBook := make(map[string]performance, len(participants))

		for _, book := range participants {
			prior := shares[book.BookID]
			perf := buildPerformance(book.BookID, t, fb, inc)

			shift := num.Clamp(perf.utilityBias-perf.riskPenalty, -conf.MaxShiftPerRound, conf.MaxShiftPerRound)
			requested[book.BookID] = num.Round6(math.Max(0.01, prior+shift))
			perfByBook[book.BookID] = perf
		}

		normalizedRequested := normalizeShares(requested)

		blended := make(map[string]float64, len(participants))
		for _, book := range participants {
			prior := shares[book.BookID]
			blended[book.BookID] = num.Round6(prior*0.35 + normalizedRequested[book.BookID]*0.65)
		}
		granted := normalizeShares(blended)

		lastRoundShift = 0
		for _, book := range participants {
			prior := shares[book.BookID]
			grantedShare := granted[book.BookID]
			lastRoundShift += math.Abs(grantedShare - prior)

			decision := DecisionHold
			if grantedShare > prior+shareTolerance {
				decision = DecisionIncrease
			} else if grantedShare < prior-shareTolerance {
				decision = DecisionDecrease
			}

			perf := perfByBook[book.BookID]
			bids = append(bids, Bid{
				Round:          round,
				AgentID:        book.BookID,
				PriorShare:     prior,
				RequestedShare: normalizedRequested[book.BookID],
				GrantedShare:   grantedShare,
				UtilityScore:   perf.utilityScore,
				Confidence:     perf.confidence,
				Decision:       decision,
				Rationale:      perf.rationale,
			})
		}

		shares = granted

		log.Publish("AGENT_ARENA_ROUND", "AGENT_ARENA_ENGINE",
			fmt.Sprintf("Round %d completed; aggregate shift=%.4f.", round, num.Round6(lastRoundShift)),
			num.Round6(lastRoundShift), timestamp)
	}

	convergence := convergenceScore(lastRoundShift, conf.MaxShiftPerRound, len(participants))
	policyState := resolvePolicyState(risk, fb, convergence, conf.MinConvergenceScore)

	outcomes := make([]BookOutcome, 0, len(participants))
	for _, book := range participants {
		var utilitySum float64
		var utilityCount int
		for _, bid := range bids {
			if bid.AgentID == book.BookID {
				utilitySum += bid.UtilityScore
				utilityCount++
			}
		}
		var avgUtility float64
		if utilityCount > 0 {
			avgUtility = utilitySum / float64(utilityCount)
		}
		outcomes = append(outcomes, BookOutcome{
			AgentID:         book.BookID,
			StartShare:      startShares[book.BookID],
			FinalShare:      shares[book.BookID],
			NetShift:        num.Round6(shares[book.BookID] - startShares[book.BookID]),
			AvgUtilityScore: num.Round6(avgUtility),
		})
	}

	summary := Summary{
		Enabled:             true,
		RoundsExecuted:      conf.NegotiationRounds,
		ParticipatingAgents: len(participants),
		ConvergenceScore:    convergence,
		PolicyState:         policyState,
	}

	log.Publish("AGENT_ARENA_COMPLETED", "AGENT_ARENA_ENGINE",
		fmt.Sprintf("Agent arena completed with state=%s.", policyState),
		convergence, timestamp)

	sort.SliceStable(bids, func(i, j int) bool {
		if bids[i].Round != bids[j].Round {
			return bids[i].Round < bids[j].Round
		}
		return bids[i].AgentID < bids[j].AgentID
	})

	return Result{Bids: bids, Outcomes: outcomes, Summary: summary}
}

type performance struct {
	utilityScore float64
	utilityBias  float64
	riskPenalty  float64
	confidence   float64
	rationale    string
}

// buildPerformance scores one book from its TCA metrics and feedback
// attribution. Recommendation scopes attribute by ":"+bookID suffix match;
// a symbol containing a colon-terminated copy of another book id would
// mis-attribute, which is kept as-is for parity with the share ledger.
func buildPerformance(bookID string, t tca.Result, fb feedback.Result, inc incident.Result) performance {
	var fillSum, slipSum float64
	var count, poorCount int
	for _, m := range t.FillMetrics {
		if !strings.EqualFold(m.BookID, bookID) {
			continue
		}
		count++
		fillSum += m.FillRate
		slipSum += m.SlippageBps
		if m.QualityBand == tca.BandPoor || m.QualityBand == tca.BandBlocked {
			poorCount++
		}
	}

	avgFill, avgSlip := 0.70, 10.0
	if count > 0 {
		avgFill = fillSum / float64(count)
		avgSlip = slipSum / float64(count)
	}

	var approved, blocked int
	suffix := ":" + strings.ToUpper(bookID)
	for _, rec := range fb.Recommendations {
		if !strings.HasSuffix(strings.ToUpper(rec.Scope), suffix) {
			continue
		}
		switch rec.GuardrailDecision {
		case feedback.GuardrailApproved:
			approved++
		case feedback.GuardrailBlocked:
			blocked++
		}
	}

	return performance{
		utilityScore: num.Round6(avgFill*100 - avgSlip*2.4 - float64(poorCount)*4 + float64(approved)*3 - float64(blocked)*5),
		utilityBias:  num.Round6((avgFill-0.72)*0.18 - (avgSlip-10)/500 + float64(approved)*0.02 - float64(blocked)*0.02),
		riskPenalty:  num.Round6(float64(len(inc.ActiveFaults))*0.012 + float64(poorCount)*0.01),
		confidence:   num.Round4(num.Clamp(0.55+avgFill*0.25-float64(blocked)*0.04, 0.35, 0.98)),
		rationale: fmt.Sprintf("Fill=%.3f, Slip=%.2fbps, Poor=%d, Approved=%d, Blocked=%d.",
			avgFill, avgSlip, poorCount, approved, blocked),
	}
}

// normalizeShares scales shares to sum to exactly 1, correcting floating
// drift onto the alphabetically-first book.
func normalizeShares(shares map[string]float64) map[string]float64 {
	keys := make([]string, 0, len(shares))
	var total float64
	for k, v := range shares {
		keys = append(keys, k)
		total += math.Max(0, v)
	}
	sort.Strings(keys)

	normalized := make(map[string]float64, len(shares))
	if total <= 0 {
		var equal float64
		if len(shares) > 0 {
			equal = num.Round6(1 / float64(len(shares)))
		}
		for _, k := range keys {
			normalized[k] = equal
		}
		return normalized
	}

	var sum float64
	for _, k := range keys {
		normalized[k] = num.Round6(math.Max(0, shares[k]) / total)
		sum += normalized[k]
	}
	drift := num.Round6(1 - sum)
	if drift != 0 && len(keys) > 0 {
		normalized[keys[0]] = num.Round6(normalized[keys[0]] + drift)
	}
	return normalized
}

func convergenceScore(lastRoundShift, maxShift float64, participants int) float64 {
	if participants <= 0 || maxShift <= 0 {
		return 1
	}
	normalized := lastRoundShift / (float64(participants) * maxShift)
	return num.Round6(num.Clamp(1-normalized, 0, 1))
}

func resolvePolicyState(risk model.RiskDecision, fb feedback.Result, convergence, minConvergence float64) string {
	switch {
	case !risk.Approved:
		return StateHalted
	case fb.Summary.BlockedCount > 0:
		return StateGuardrailed
	case convergence >= minConvergence:
		return StateConverged
	case convergence >= minConvergence*0.75:
		return StateStabilizing
	default:
		return StateDivergent
	}
}

func normalizeConfig(cfg *Config) Config {
	if cfg == nil {
		return Config{}
	}
	rounds := cfg.NegotiationRounds
	if rounds < 1 {
		rounds = 1
	}
	return Config{
		Enabled:             cfg.Enabled,
		NegotiationRounds:   rounds,
		MaxShiftPerRound:    num.Round6(num.Clamp(cfg.MaxShiftPerRound, 0.01, 0.25)),
		MinConvergenceScore: num.Round6(num.Clamp(cfg.MinConvergenceScore, 0.50, 0.99)),
	}
}
