// Package views provides the eight narrow read models derived from a
// cached analysis. Each adapter re-derives a severity from its section's
// thresholds and a confidence label from the composite trust score; a
// missing or empty snapshot yields conservative defaults, never an error.
package views

import (
	"time"

	"github.com/shopspring/decimal"

	"billing-trust/core/aggregate"
	"billing-trust/core/governance"
	"billing-trust/core/scoring"
	"billing-trust/core/trust"
)

// Severity labels shared by the sectional views.
const (
	SeverityPass = "pass"
	SeverityWarn = "warn"
	SeverityFail = "fail"
)

// Banner impact levels.
const (
	ImpactLow      = "low"
	ImpactMedium   = "medium"
	ImpactHigh     = "high"
	ImpactCritical = "critical"
)

// Status carries the fields every view response shares.
type Status struct {
	LastCheckedTS   time.Time `json:"last_checked_ts"`
	Severity        string    `json:"severity"`
	ConfidenceLevel string    `json:"confidence_level"`
}

// GateSummary is one hard override surfaced in the banner.
type GateSummary struct {
	ID        string  `json:"id"`
	Threshold float64 `json:"threshold"`
	Observed  float64 `json:"observed"`
	Cap       float64 `json:"cap"`
}

// BannerView is the quality-impact banner.
type BannerView struct {
	Status
	TrustScore    float64         `json:"trust_score"`
	TotalRows     int             `json:"total_rows"`
	CostAtRisk    decimal.Decimal `json:"cost_at_risk"`
	GateSummaries []GateSummary   `json:"gate_summaries"`
}

// FreshnessView reports ingestion pipeline health.
type FreshnessView struct {
	Status
	FreshnessLagHours float64   `json:"freshness_lag_hours"`
	LastIngestedAt    time.Time `json:"last_ingested_at"`
	MissingDays30     int       `json:"missing_days_30"`
	DuplicatePct      float64   `json:"duplicate_pct"`
	LatePct           float64   `json:"late_pct"`
	CompletenessPct   float64   `json:"completeness_pct"`
}

// CoverageGatesView reports the hard gates and the denominator trust gate.
type CoverageGatesView struct {
	Status
	TrustGateStatus string        `json:"trust_gate_status"`
	GatesApplied    []GateSummary `json:"gates_applied"`
	CompletenessPct float64       `json:"completeness_pct"`
}

// TagComplianceView reports tag coverage and value validity.
type TagComplianceView struct {
	Status
	Score                float64                     `json:"score"`
	TaggedPct            float64                     `json:"tagged_pct"`
	UntaggedPct          float64                     `json:"untagged_pct"`
	InvalidValueWeighted float64                     `json:"invalid_value_weighted"`
	Keys                 []governance.TagKeyCoverage `json:"keys"`
}

// OwnershipView reports allocation completeness and stability.
type OwnershipView struct {
	Status
	Score               float64 `json:"score"`
	AllocatedPct        float64 `json:"allocated_pct"`
	UnallocatedPct      float64 `json:"unallocated_pct"`
	LeakagePct          float64 `json:"leakage_pct"`
	MappingStabilityPct float64 `json:"mapping_stability_pct"`
	RuleChurnRatePct    float64 `json:"rule_churn_rate_pct"`
}

// CostBasisView reports currency and basis-mode consistency.
type CostBasisView struct {
	Status
	Score               float64                 `json:"score"`
	DominantCurrency    string                  `json:"dominant_currency"`
	DominantCurrencyPct float64                 `json:"dominant_currency_pct"`
	ModeCount           int                     `json:"mode_count"`
	DriftEvents         []governance.DriftEvent `json:"drift_events"`
}

// DenominatorView reports unit-economics data quality.
type DenominatorView struct {
	Status
	Score           float64 `json:"score"`
	CoveragePct     float64 `json:"coverage_pct"`
	MismatchPct     float64 `json:"mismatch_pct"`
	StalePct        float64 `json:"stale_pct"`
	AlignmentPct    float64 `json:"alignment_pct"`
	TrustGateStatus string  `json:"trust_gate_status"`
}

// ViolationsView reports control violations.
type ViolationsView struct {
	Status
	Score          float64               `json:"score"`
	ViolatedPct    float64               `json:"violated_pct"`
	ViolationCount int                   `json:"violation_count"`
	BySeverity     map[string]int        `json:"by_severity"`
	Violations     []aggregate.Violation `json:"violations"`
}

// empty reports whether the snapshot is missing or covers zero rows.
func empty(a *trust.Analysis) bool {
	return a == nil || a.TotalRows == 0
}

func status(a *trust.Analysis, severity string) Status {
	if empty(a) {
		ts := time.Time{}
		if a != nil {
			ts = a.GeneratedAt
		}
		return Status{LastCheckedTS: ts, Severity: SeverityFail, ConfidenceLevel: scoring.ConfidenceLow}
	}
	return Status{
		LastCheckedTS:   a.GeneratedAt,
		Severity:        severity,
		ConfidenceLevel: a.ConfidenceLevel,
	}
}

// scoreSeverity is the shared three-tier severity for score-backed views.
func scoreSeverity(score float64) string {
	switch {
	case score >= 90:
		return SeverityPass
	case score >= 70:
		return SeverityWarn
	default:
		return SeverityFail
	}
}

func gateSummaries(gates []scoring.Gate) []GateSummary {
	out := make([]GateSummary, 0, len(gates))
	for _, g := range gates {
		out = append(out, GateSummary{ID: g.ID, Threshold: g.Threshold, Observed: g.Observed, Cap: g.Cap})
	}
	return out
}

// Banner derives the quality-impact banner. Its severity scale is the
// banner-specific low|medium|high|critical.
func Banner(a *trust.Analysis) BannerView {
	if empty(a) {
		v := BannerView{
			Status:        status(a, ""),
			CostAtRisk:    decimal.Zero,
			GateSummaries: []GateSummary{},
		}
		v.Severity = ImpactCritical
		return v
	}

	impact := ImpactCritical
	switch {
	case a.Score >= 90:
		impact = ImpactLow
	case a.Score >= 75:
		impact = ImpactMedium
	case a.Score >= 60:
		impact = ImpactHigh
	}
	return BannerView{
		Status:        status(a, impact),
		TrustScore:    a.Score,
		TotalRows:     a.TotalRows,
		CostAtRisk:    a.CostAtRisk,
		GateSummaries: gateSummaries(a.Governance.Overview.GatesApplied),
	}
}

// Freshness derives the ingestion-health view. Severity warns once the
// lag exceeds half a day and fails past two days or on gap-heavy windows.
func Freshness(a *trust.Analysis) FreshnessView {
	if empty(a) {
		return FreshnessView{Status: status(a, "")}
	}

	ing := a.Governance.Ingestion
	severity := SeverityPass
	switch {
	case ing.FreshnessLagHours > 48 || ing.MissingDays30 >= 3:
		severity = SeverityFail
	case ing.FreshnessLagHours > 12 || ing.MissingDays30 > 0 || ing.DuplicatePct > 1:
		severity = SeverityWarn
	}
	return FreshnessView{
		Status:            status(a, severity),
		FreshnessLagHours: ing.FreshnessLagHours,
		LastIngestedAt:    ing.LastIngestedAt,
		MissingDays30:     ing.MissingDays30,
		DuplicatePct:      ing.DuplicatePct,
		LatePct:           ing.LatePct,
		CompletenessPct:   ing.CompletenessPct,
	}
}

// CoverageGates derives the hard-gate view: any fired gate or blocked
// denominator fails, a flagged denominator warns.
func CoverageGates(a *trust.Analysis) CoverageGatesView {
	if empty(a) {
		return CoverageGatesView{
			Status:          status(a, ""),
			TrustGateStatus: scoring.GateStatusBlocked,
			GatesApplied:    []GateSummary{},
		}
	}

	gates := a.Governance.Overview.GatesApplied
	gateStatus := a.Governance.Denominator.TrustGateStatus
	severity := SeverityPass
	switch {
	case len(gates) > 0 || gateStatus == scoring.GateStatusBlocked:
		severity = SeverityFail
	case gateStatus == scoring.GateStatusFlagged:
		severity = SeverityWarn
	}
	return CoverageGatesView{
		Status:          status(a, severity),
		TrustGateStatus: gateStatus,
		GatesApplied:    gateSummaries(gates),
		CompletenessPct: a.Governance.Ingestion.CompletenessPct,
	}
}

// TagCompliance derives the tag-coverage view.
func TagCompliance(a *trust.Analysis) TagComplianceView {
	if empty(a) {
		return TagComplianceView{Status: status(a, ""), Keys: []governance.TagKeyCoverage{}}
	}

	tm := a.Governance.TagMetadata
	return TagComplianceView{
		Status:               status(a, scoreSeverity(tm.Score)),
		Score:                tm.Score,
		TaggedPct:            tm.TaggedPct,
		UntaggedPct:          tm.UntaggedPct,
		InvalidValueWeighted: tm.InvalidValueWeighted,
		Keys:                 tm.Keys,
	}
}

// Ownership derives the allocation-completeness view.
func Ownership(a *trust.Analysis) OwnershipView {
	if empty(a) {
		return OwnershipView{Status: status(a, "")}
	}

	own := a.Governance.Ownership
	return OwnershipView{
		Status:              status(a, scoreSeverity(own.Score)),
		Score:               own.Score,
		AllocatedPct:        own.AllocatedPct,
		UnallocatedPct:      own.UnallocatedPct,
		LeakagePct:          own.LeakagePct,
		MappingStabilityPct: own.MappingStabilityPct,
		RuleChurnRatePct:    own.RuleChurnRatePct,
	}
}

// CostBasis derives the currency/basis view: any high drift event fails,
// any drift event warns.
func CostBasis(a *trust.Analysis) CostBasisView {
	if empty(a) {
		return CostBasisView{Status: status(a, ""), DriftEvents: []governance.DriftEvent{}}
	}

	cb := a.Governance.CostBasis
	severity := SeverityPass
	for _, e := range cb.DriftEvents {
		if e.Severity == "high" {
			severity = SeverityFail
			break
		}
		severity = SeverityWarn
	}
	return CostBasisView{
		Status:              status(a, severity),
		Score:               cb.Score,
		DominantCurrency:    cb.DominantCurrency,
		DominantCurrencyPct: cb.DominantCurrencyPct,
		ModeCount:           cb.ModeCount,
		DriftEvents:         cb.DriftEvents,
	}
}

// Denominators derives the unit-economics quality view from the trust
// gate status.
func Denominators(a *trust.Analysis) DenominatorView {
	if empty(a) {
		return DenominatorView{Status: status(a, ""), TrustGateStatus: scoring.GateStatusBlocked}
	}

	den := a.Governance.Denominator
	severity := SeverityPass
	switch den.TrustGateStatus {
	case scoring.GateStatusBlocked:
		severity = SeverityFail
	case scoring.GateStatusFlagged:
		severity = SeverityWarn
	}
	return DenominatorView{
		Status:          status(a, severity),
		Score:           den.Score,
		CoveragePct:     den.CoveragePct,
		MismatchPct:     den.MismatchPct,
		StalePct:        den.StalePct,
		AlignmentPct:    den.AlignmentPct,
		TrustGateStatus: den.TrustGateStatus,
	}
}

// Violations derives the control-violation view: any critical violation
// fails, any violation warns.
func Violations(a *trust.Analysis) ViolationsView {
	if empty(a) {
		return ViolationsView{
			Status:     status(a, ""),
			BySeverity: map[string]int{},
			Violations: []aggregate.Violation{},
		}
	}

	pc := a.Governance.Policy
	severity := SeverityPass
	switch {
	case pc.BySeverity["critical"] > 0:
		severity = SeverityFail
	case pc.ViolationCount > 0:
		severity = SeverityWarn
	}
	return ViolationsView{
		Status:         status(a, severity),
		Score:          pc.Score,
		ViolatedPct:    pc.ViolatedPct,
		ViolationCount: pc.ViolationCount,
		BySeverity:     pc.BySeverity,
		Violations:     pc.Violations,
	}
}
