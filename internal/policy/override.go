// Package policy applies named limit-field override requests against a
// baseline limit config, producing one effective config and a full audit
// trail. Applied overrides compound in request-timestamp order.
package policy

import (
	"sort"
	"strings"
	"time"

	"github.com/fundlaunch/platform/internal/model"
)

// Override statuses, in resolution priority order.
const (
	StatusUnsupported     = "UNSUPPORTED_POLICY"
	StatusPendingApproval = "PENDING_APPROVAL"
	StatusExpired         = "EXPIRED"
	StatusRejectedValue   = "REJECTED_INVALID_VALUE"
	StatusApplied         = "APPLIED"
)

// OverrideRequest proposes a new value for one named limit field.
type OverrideRequest struct {
	PolicyKey   string     `yaml:"policy_key"`
	Value       float64    `yaml:"value"`
	Reason      string     `yaml:"reason"`
	RequestedBy string     `yaml:"requested_by"`
	ApprovedBy  string     `yaml:"approved_by"`
	RequestedAt time.Time  `yaml:"requested_at"`
	ApprovedAt  *time.Time `yaml:"approved_at"`
	ExpiresAt   *time.Time `yaml:"expires_at"`
}

// AuditEntry records the outcome of one override request.
type AuditEntry struct {
	PolicyKey      string
	RequestedValue float64
	PriorValue     *float64
	AppliedValue   *float64
	Status         string
	Reason         string
	RequestedBy    string
	ApprovedBy     string
	RequestedAt    time.Time
	ApprovedAt     *time.Time
	EvaluatedAt    time.Time
}

// Result is the effective limit config plus the per-request audit trail.
type Result struct {
	EffectiveLimits model.RiskLimitConfig
	AuditTrail      []AuditEntry
}

// Apply evaluates the override requests in request-timestamp order. Each
// applied override is visible to subsequent requests; the final effective
// config must independently re-validate.
func Apply(baseline model.RiskLimitConfig, overrides []OverrideRequest, asOf time.Time) (Result, error) {
	if err := baseline.Validate(); err != nil {
		return Result{}, err
	}
	if len(overrides) == 0 {
		return Result{EffectiveLimits: baseline}, nil
	}

	ordered := make([]OverrideRequest, len(overrides))
	copy(ordered, overrides)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].RequestedAt.Before(ordered[j].RequestedAt)
	})

	effective := baseline
	audit := make([]AuditEntry, 0, len(ordered))

	for _, req := range ordered {
		key := normalizeKey(req.PolicyKey)
		priorValue, supported := readPolicyValue(effective, key)

		var prior, applied *float64
		status := StatusPendingApproval

		switch {
		case !supported:
			status = StatusUnsupported
		case req.ApprovedBy == "":
			status = StatusPendingApproval
		case req.ExpiresAt != nil && !req.ExpiresAt.After(asOf):
			status = StatusExpired
		default:
			candidate := applyPolicyValue(effective, key, req.Value)
			if err := candidate.Validate(); err != nil {
				status = StatusRejectedValue
			} else {
				effective = candidate
				v := req.Value
				applied = &v
				status = StatusApplied
			}
		}
		if supported {
			v := priorValue
			prior = &v
		}

		audit = append(audit, AuditEntry{
			PolicyKey:      req.PolicyKey,
			RequestedValue: req.Value,
			PriorValue:     prior,
			AppliedValue:   applied,
			Status:         status,
			Reason:         req.Reason,
			RequestedBy:    req.RequestedBy,
			ApprovedBy:     req.ApprovedBy,
			RequestedAt:    req.RequestedAt,
			ApprovedAt:     req.ApprovedAt,
			EvaluatedAt:    asOf,
		})
	}

	if err := effective.Validate(); err != nil {
		return Result{}, err
	}
	return Result{EffectiveLimits: effective, AuditTrail: audit}, nil
}

// CountByStatus tallies audit entries with the given status.
func CountByStatus(audit []AuditEntry, status string) int {
	var n int
	for _, e := range audit {
		if e.Status == status {
			n++
		}
	}
	return n
}

// normalizeKey folds case and strips separators so "max_gross_exposure",
// "MaxGrossExposure", and "MAX-GROSS-EXPOSURE" all resolve the same field.
func normalizeKey(key string) string {
	k := strings.ToUpper(strings.TrimSpace(key))
	k = strings.ReplaceAll(k, "_", "")
	return strings.ReplaceAll(k, "-", "")
}

func readPolicyValue(limits model.RiskLimitConfig, key string) (float64, bool) {
	switch key {
	case "MAXABSWEIGHTPERSYMBOL":
		return limits.MaxAbsWeightPerSymbol, true
	case "MAXGROSSEXPOSURE":
		return limits.MaxGrossExposure, true
	case "MAXTURNOVER":
		return limits.MaxTurnover, true
	case "MAXABSNETEXPOSURE":
		return limits.MaxAbsNetExposure, true
	case "MINORDERNOTIONAL":
		return limits.MinOrderNotional, true
	case "CAPITALBASE":
		return limits.CapitalBase, true
	default:
		return 0, false
	}
}

func applyPolicyValue(limits model.RiskLimitConfig, key string, value float64) model.RiskLimitConfig {
	switch key {
	case "MAXABSWEIGHTPERSYMBOL":
		limits.MaxAbsWeightPerSymbol = value
	case "MAXGROSSEXPOSURE":
		limits.MaxGrossExposure = value
	case "MAXTURNOVER":
		limits.MaxTurnover = value
	case "MAXABSNETEXPOSURE":
		limits.MaxAbsNetExposure = value
	case "MINORDERNOTIONAL":
		limits.MinOrderNotional = value
	case "CAPITALBASE":
		limits.CapitalBase = value
	}
	return limits
}
