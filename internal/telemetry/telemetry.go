// Package telemetry derives control-plane health from a completed run and
// exposes run counters over Prometheus.
package telemetry

import (
	"math"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fundlaunch/platform/internal/feedback"
	"github.com/fundlaunch/platform/internal/incident"
	"github.com/fundlaunch/platform/internal/model"
	"github.com/fundlaunch/platform/internal/num"
)

// Control states.
const (
	StateRunning  = "RUNNING"
	StateDegraded = "DEGRADED"
	StateSafeMode = "SAFE_MODE"
)

// Snapshot is the per-run health summary.
type Snapshot struct {
	FleetHealthScore     float64
	CriticalFlags        int
	WarningFlags         int
	ExecutionIntentCount int
	EstimatedLatencyMs   float64
	ControlState         string
}

// Build scores a run. A rejected risk decision forces SAFE_MODE; an
// approved run with active faults degrades instead.
func Build(allocations []model.AllocationDraft, risk model.RiskDecision, intents []model.ExecutionIntent, inc *incident.Result) Snapshot {
	criticalFlags := 0
	if !risk.Approved {
		criticalFlags = len(risk.Breaches)
		if criticalFlags < 1 {
			criticalFlags = 1
		}
	}

	warningFlags := 0
	for _, a := range allocations {
		delta := math.Abs(a.DeltaWeight)
		if delta >= 0.07 && delta < 0.10 {
			warningFlags++
		}
	}

	faultCount := 0
	if inc != nil {
		for _, fault := range inc.ActiveFaults {
			faultCount++
			if strings.EqualFold(fault, incident.FaultVenueRejectBurst) {
				criticalFlags++
			} else {
				warningFlags++
			}
		}
	}

	fleetScore := 90.0 - float64(warningFlags)*2
	if !risk.Approved {
		fleetScore = 55.0 - float64(criticalFlags)*3
	}
	fleetScore -= float64(faultCount) * 1.5
	fleetScore = num.Clamp(fleetScore, 0, 100)

	latency := 18.0 + float64(len(intents))*2.4 + float64(criticalFlags)*9
	if inc != nil {
		latency += inc.AddedLatencyMs
	}

	state := StateSafeMode
	if risk.Approved {
		state = StateRunning
		if faultCount > 0 {
			state = StateDegraded
		}
	}

	return Snapshot{
		FleetHealthScore:     num.Round6(fleetScore),
		CriticalFlags:        criticalFlags,
		WarningFlags:         warningFlags,
		ExecutionIntentCount: len(intents),
		EstimatedLatencyMs:   num.Round6(latency),
		ControlState:         state,
	}
}

var (
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "platform_runs_total", Help: "Pipeline runs executed"},
		[]string{"control_state"},
	)
	RiskRejectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "platform_risk_rejections_total", Help: "Runs rejected by the risk gate"},
	)
	FaultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "platform_incident_faults_total", Help: "Incident faults activated"},
		[]string{"fault"},
	)
	GuardrailDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "platform_guardrail_decisions_total", Help: "Feedback guardrail decisions emitted"},
		[]string{"guardrail"},
	)
)

func init() {
	prometheus.MustRegister(RunsTotal, RiskRejectionsTotal, FaultsTotal, GuardrailDecisionsTotal)
}

// Observe records a finished run against the process counters.
func Observe(snapshot Snapshot, risk model.RiskDecision, inc *incident.Result, fb feedback.Result) {
	RunsTotal.WithLabelValues(snapshot.ControlState).Inc()
	if !risk.Approved {
		RiskRejectionsTotal.Inc()
	}
	if inc != nil {
		for _, fault := range inc.ActiveFaults {
			FaultsTotal.WithLabelValues(fault).Inc()
		}
	}
	for _, rec := range fb.Recommendations {
		GuardrailDecisionsTotal.WithLabelValues(rec.GuardrailDecision).Inc()
	}
}

// Serve exposes /metrics on addr and returns the server so callers can
// shut it down.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
