package plugin

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fundlaunch/platform/internal/model"
)

var hookTime = time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

type failingPlugin struct {
	id      string
	message string
	panics  bool
}

func (p failingPlugin) StrategyID() string { return p.id }

func (p failingPlugin) OnInitialize([]model.StrategySignal, Context) ([]model.StrategySignal, error) {
	if p.panics {
		panic(p.message)
	}
	return nil, errors.New(p.message)
}

func (p failingPlugin) OnCompositePublished([]model.CompositeSignal, Context) error {
	if p.panics {
		panic(p.message)
	}
	return errors.New(p.message)
}

func (p failingPlugin) OnRunCompleted(RunView, Context) error {
	if p.panics {
		panic(p.message)
	}
	return errors.New(p.message)
}

func signalsFor(strategy string, confidences ...float64) []model.StrategySignal {
	out := make([]model.StrategySignal, 0, len(confidences))
	for i, c := range confidences {
		out = append(out, model.StrategySignal{
			StrategyID: strategy,
			Symbol:     "AAPL",
			AlphaScore: 0.4 + float64(i)*0.1,
			Confidence: c,
		})
	}
	return out
}

func TestConfidenceFloorRaisesLowConfidence(t *testing.T) {
	reg := NewRegistry(ConfidenceFloorPlugin{ID: "TREND_CORE", MinConfidence: 0.70})
	result := reg.ExecuteInitialize(signalsFor("trend_core", 0.40, 0.85), hookTime, "run-1")

	require.Len(t, result.Signals, 2)
	assert.Equal(t, 0.70, result.Signals[0].Confidence)
	assert.Equal(t, 0.85, result.Signals[1].Confidence)

	require.Len(t, result.Events, 1)
	assert.Equal(t, "TREND_CORE", result.Events[0].StrategyID)
	assert.Equal(t, HookInitialize, result.Events[0].Hook)
	assert.Equal(t, StatusSuccess, result.Events[0].Status)
	assert.Equal(t, "2 signals emitted.", result.Events[0].Detail)
}

func TestAlphaScaleClampsToUnitRange(t *testing.T) {
	reg := NewRegistry(AlphaScalePlugin{ID: "MEAN_REV", AlphaScale: 3})
	in := []model.StrategySignal{{StrategyID: "MEAN_REV", Symbol: "MSFT", AlphaScore: 0.5, Confidence: 0.8}}
	result := reg.ExecuteInitialize(in, hookTime, "run-1")

	require.Len(t, result.Signals, 1)
	assert.Equal(t, 1.0, result.Signals[0].AlphaScore)
}

func TestUnregisteredStrategyPassesThroughWithoutEvents(t *testing.T) {
	reg := Empty()
	in := signalsFor("MACRO_REGIME", 0.30)
	result := reg.ExecuteInitialize(in, hookTime, "run-1")

	assert.Equal(t, in, result.Signals)
	assert.Empty(t, result.Events)
}

func TestFailingInitializeFallsBackToInput(t *testing.T) {
	reg := NewRegistry(failingPlugin{id: "TREND_CORE", message: "feature store offline"})
	in := signalsFor("TREND_CORE", 0.42)
	result := reg.ExecuteInitialize(in, hookTime, "run-1")

	assert.Equal(t, in, result.Signals)
	require.Len(t, result.Events, 1)
	assert.Equal(t, StatusFailed, result.Events[0].Status)
	assert.Equal(t, "feature store offline", result.Events[0].Detail)
}

func TestPanickingPluginIsIsolated(t *testing.T) {
	reg := NewRegistry(failingPlugin{id: "TREND_CORE", message: "boom", panics: true})
	in := signalsFor("TREND_CORE", 0.42)

	result := reg.ExecuteInitialize(in, hookTime, "run-1")
	assert.Equal(t, in, result.Signals)
	require.Len(t, result.Events, 1)
	assert.Equal(t, StatusFailed, result.Events[0].Status)
	assert.Contains(t, result.Events[0].Detail, "boom")

	events := reg.ExecuteCompositePublished(nil, hookTime, "run-1")
	require.Len(t, events, 1)
	assert.Equal(t, StatusFailed, events[0].Status)

	events = reg.ExecuteRunCompleted(RunView{}, hookTime, "run-1")
	require.Len(t, events, 1)
	assert.Equal(t, StatusFailed, events[0].Status)
}

func TestFailureDetailTruncatedTo120Chars(t *testing.T) {
	long := strings.Repeat("x", 300)
	reg := NewRegistry(failingPlugin{id: "TREND_CORE", message: long})
	result := reg.ExecuteInitialize(signalsFor("TREND_CORE", 0.5), hookTime, "run-1")

	require.Len(t, result.Events, 1)
	assert.Len(t, result.Events[0].Detail, 120)
}

func TestCompositePublishedVisitsPluginsInIDOrder(t *testing.T) {
	reg := NewRegistry(
		NoOpPlugin{ID: "QUALITY_LONG"},
		NoOpPlugin{ID: "MACRO_REGIME"},
	)
	events := reg.ExecuteCompositePublished(nil, hookTime, "run-1")

	require.Len(t, events, 2)
	assert.Equal(t, "MACRO_REGIME", events[0].StrategyID)
	assert.Equal(t, "QUALITY_LONG", events[1].StrategyID)
	for _, ev := range events {
		assert.Equal(t, HookCompositePublished, ev.Hook)
		assert.Equal(t, StatusSuccess, ev.Status)
		assert.Equal(t, "Composite signals observed.", ev.Detail)
	}
}

func TestLastRegistrationWinsPerStrategy(t *testing.T) {
	reg := NewRegistry(
		ConfidenceFloorPlugin{ID: "TREND_CORE", MinConfidence: 0.10},
		ConfidenceFloorPlugin{ID: "trend_core", MinConfidence: 0.90},
	)
	result := reg.ExecuteInitialize(signalsFor("TREND_CORE", 0.50), hookTime, "run-1")

	require.Len(t, result.Signals, 1)
	assert.Equal(t, 0.90, result.Signals[0].Confidence)
}

func TestDefaultRegistryCoversDemoStrategies(t *testing.T) {
	reg := DefaultRegistry()
	assert.Equal(t, 4, reg.Len())

	result := reg.ExecuteInitialize(signalsFor("TREND_CORE", 0.20), hookTime, "run-1")
	require.Len(t, result.Signals, 1)
	assert.Equal(t, 0.70, result.Signals[0].Confidence)
}
