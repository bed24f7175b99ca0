// Package plugin defines the per-strategy hook contract and a registry that
// dispatches hooks with per-call isolation: a failing hook degrades to
// pass-through data and a FAILED lifecycle event, never aborting the run.
package plugin

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fundlaunch/platform/internal/model"
	"github.com/fundlaunch/platform/internal/num"
)

// Hook names.
const (
	HookInitialize         = "INITIALIZE"
	HookCompositePublished = "COMPOSITE_PUBLISHED"
	HookRunCompleted       = "RUN_COMPLETED"
)

// Lifecycle statuses.
const (
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

const maxDetailLength = 120

// Context identifies the strategy and run a hook invocation belongs to.
type Context struct {
	StrategyID string
	Timestamp  time.Time
	RunID      string
}

// RunView is the read-only slice of a completed run handed to
// OnRunCompleted hooks.
type RunView struct {
	Timestamp   time.Time
	Signals     []model.CompositeSignal
	Allocations []model.AllocationDraft
	Risk        model.RiskDecision
	Intents     []model.ExecutionIntent
}

// Plugin is the per-strategy capability set. Implementations must not
// retain or mutate the slices they receive.
type Plugin interface {
	StrategyID() string
	OnInitialize(signals []model.StrategySignal, ctx Context) ([]model.StrategySignal, error)
	OnCompositePublished(signals []model.CompositeSignal, ctx Context) error
	OnRunCompleted(run RunView, ctx Context) error
}

// LifecycleEvent records one hook invocation outcome.
type LifecycleEvent struct {
	StrategyID string
	Hook       string
	Status     string
	Detail     string
	Timestamp  time.Time
}

// HookResult bundles transformed signals with the lifecycle records the
// dispatch produced.
type HookResult struct {
	Signals []model.StrategySignal
	Events  []LifecycleEvent
}

// Registry maps normalized strategy ids to one plugin each. The last
// registration for an id wins.
type Registry struct {
	plugins map[string]Plugin
}

// NewRegistry builds a registry from the given plugins.
func NewRegistry(plugins ...Plugin) *Registry {
	m := make(map[string]Plugin, len(plugins))
	for _, p := range plugins {
		m[normalizeID(p.StrategyID())] = p
	}
	return &Registry{plugins: m}
}

// Empty is a registry with no plugins; every hook passes through.
func Empty() *Registry {
	return NewRegistry()
}

// Len reports the number of registered plugins.
func (r *Registry) Len() int {
	return len(r.plugins)
}

// ExecuteInitialize groups input signals by strategy and passes each group
// through its plugin's OnInitialize, falling back to the unmodified group
// on failure.
func (r *Registry) ExecuteInitialize(signals []model.StrategySignal, timestamp time.Time, runID string) HookResult {
	type group struct {
		id      string
		signals []model.StrategySignal
	}
	var order []string
	grouped := make(map[string]*group)
	for _, s := range signals {
		id := normalizeID(s.StrategyID)
		g, ok := grouped[id]
		if !ok {
			g = &group{id: id}
			grouped[id] = g
			order = append(order, id)
		}
		g.signals = append(g.signals, s)
	}

	var out []model.StrategySignal
	var events []LifecycleEvent
	for _, id := range order {
		g := grouped[id]
		p, ok := r.plugins[id]
		if !ok {
			out = append(out, g.signals...)
			continue
		}

		ctx := Context{StrategyID: id, Timestamp: timestamp, RunID: runID}
		transformed, err := safeInitialize(p, g.signals, ctx)
		if err != nil {
			out = append(out, g.signals...)
			events = append(events, LifecycleEvent{
				StrategyID: id, Hook: HookInitialize, Status: StatusFailed,
				Detail: trimDetail(err.Error()), Timestamp: timestamp,
			})
			continue
		}
		if transformed == nil {
			transformed = g.signals
		}
		out = append(out, transformed...)
		events = append(events, LifecycleEvent{
			StrategyID: id, Hook: HookInitialize, Status: StatusSuccess,
			Detail: fmt.Sprintf("%d signals emitted.", len(transformed)), Timestamp: timestamp,
		})
	}
	return HookResult{Signals: out, Events: events}
}

// ExecuteCompositePublished notifies every registered plugin, in strategy
// id order, that composite signals are available.
func (r *Registry) ExecuteCompositePublished(signals []model.CompositeSignal, timestamp time.Time, runID string) []LifecycleEvent {
	var events []LifecycleEvent
	for _, id := range r.sortedIDs() {
		ctx := Context{StrategyID: id, Timestamp: timestamp, RunID: runID}
		if err := safeCompositePublished(r.plugins[id], signals, ctx); err != nil {
			events = append(events, LifecycleEvent{
				StrategyID: id, Hook: HookCompositePublished, Status: StatusFailed,
				Detail: trimDetail(err.Error()), Timestamp: timestamp,
			})
			continue
		}
		events = append(events, LifecycleEvent{
			StrategyID: id, Hook: HookCompositePublished, Status: StatusSuccess,
			Detail: "Composite signals observed.", Timestamp: timestamp,
		})
	}
	return events
}

// ExecuteRunCompleted notifies every registered plugin that the run
// finished.
func (r *Registry) ExecuteRunCompleted(run RunView, timestamp time.Time, runID string) []LifecycleEvent {
	var events []LifecycleEvent
	for _, id := range r.sortedIDs() {
		ctx := Context{StrategyID: id, Timestamp: timestamp, RunID: runID}
		if err := safeRunCompleted(r.plugins[id], run, ctx); err != nil {
			events = append(events, LifecycleEvent{
				StrategyID: id, Hook: HookRunCompleted, Status: StatusFailed,
				Detail: trimDetail(err.Error()), Timestamp: timestamp,
			})
			continue
		}
		events = append(events, LifecycleEvent{
			StrategyID: id, Hook: HookRunCompleted, Status: StatusSuccess,
			Detail: "Run completion acknowledged.", Timestamp: timestamp,
		})
	}
	return events
}

func (r *Registry) sortedIDs() []string {
	ids := make([]string, 0, len(r.plugins))
	for id := range r.plugins {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// safeInitialize converts a hook panic into an error so one misbehaving
// plugin cannot unwind the pipeline.
func safeInitialize(p Plugin, signals []model.StrategySignal, ctx Context) (out []model.StrategySignal, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out, err = nil, fmt.Errorf("plugin panic: %v", rec)
		}
	}()
	return p.OnInitialize(signals, ctx)
}

func safeCompositePublished(p Plugin, signals []model.CompositeSignal, ctx Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("plugin panic: %v", rec)
		}
	}()
	return p.OnCompositePublished(signals, ctx)
}

func safeRunCompleted(p Plugin, run RunView, ctx Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("plugin panic: %v", rec)
		}
	}()
	return p.OnRunCompleted(run, ctx)
}

func normalizeID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

func trimDetail(message string) string {
	if strings.TrimSpace(message) == "" {
		return "Plugin hook failed."
	}
	if len(message) <= maxDetailLength {
		return message
	}
	return message[:maxDetailLength]
}

// NoOpPlugin observes hooks without changing anything.
type NoOpPlugin struct {
	ID string
}

func (p NoOpPlugin) StrategyID() string { return p.ID }

func (p NoOpPlugin) OnInitialize(signals []model.StrategySignal, _ Context) ([]model.StrategySignal, error) {
	return signals, nil
}

func (p NoOpPlugin) OnCompositePublished([]model.CompositeSignal, Context) error { return nil }

func (p NoOpPlugin) OnRunCompleted(RunView, Context) error { return nil }

// ConfidenceFloorPlugin raises every signal's confidence to a minimum.
type ConfidenceFloorPlugin struct {
	ID            string
	MinConfidence float64
}

func (p ConfidenceFloorPlugin) StrategyID() string { return p.ID }

func (p ConfidenceFloorPlugin) OnInitialize(signals []model.StrategySignal, _ Context) ([]model.StrategySignal, error) {
	out := make([]model.StrategySignal, len(signals))
	copy(out, signals)
	for i := range out {
		if out[i].Confidence < p.MinConfidence {
			out[i].Confidence = p.MinConfidence
		}
	}
	return out, nil
}

func (p ConfidenceFloorPlugin) OnCompositePublished([]model.CompositeSignal, Context) error {
	return nil
}

func (p ConfidenceFloorPlugin) OnRunCompleted(RunView, Context) error { return nil }

// AlphaScalePlugin scales every signal's alpha score, clamped to [-1, 1].
type AlphaScalePlugin struct {
	ID         string
	AlphaScale float64
}

func (p AlphaScalePlugin) StrategyID() string { return p.ID }

func (p AlphaScalePlugin) OnInitialize(signals []model.StrategySignal, _ Context) ([]model.StrategySignal, error) {
	out := make([]model.StrategySignal, len(signals))
	copy(out, signals)
	for i := range out {
		out[i].AlphaScore = num.Clamp(num.Round6(out[i].AlphaScore*p.AlphaScale), -1, 1)
	}
	return out, nil
}

func (p AlphaScalePlugin) OnCompositePublished([]model.CompositeSignal, Context) error { return nil }

func (p AlphaScalePlugin) OnRunCompleted(RunView, Context) error { return nil }

// DefaultRegistry wires the demo scenario's strategies to deterministic
// plugins.
func DefaultRegistry() *Registry {
	return NewRegistry(
		ConfidenceFloorPlugin{ID: "TREND_CORE", MinConfidence: 0.70},
		AlphaScalePlugin{ID: "MEAN_REV", AlphaScale: 0.92},
		NoOpPlugin{ID: "MACRO_REGIME"},
		NoOpPlugin{ID: "QUALITY_LONG"},
	)
}
