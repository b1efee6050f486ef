// Package governance assembles the full nested report served to the
// read views: overview, tag metadata, ownership, shared pool, policy
// compliance, ingestion, cost basis and denominator quality, plus the
// static reference tables.
package governance

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"billing-trust/core/aggregate"
	"billing-trust/core/metrics"
	"billing-trust/core/scoring"
)

// Drift-signal identifiers emitted in the cost-basis section.
const (
	SignalBasisModeDrift       = "basis_mode_drift"
	SignalCurrencyMix          = "currency_mix"
	SignalCreditVolatility     = "credit_volatility"
	SignalCommitmentVolatility = "commitment_volatility"
)

// maxViolationRecords bounds the violation list carried in the report;
// the aggregate totals remain exact.
const maxViolationRecords = 200

// Report is the full governance snapshot payload.
type Report struct {
	Overview    Overview         `json:"overview"`
	TagMetadata TagMetadata      `json:"tag_metadata"`
	Ownership   Ownership        `json:"ownership"`
	SharedPool  SharedPool       `json:"shared_pool"`
	Policy      PolicyCompliance `json:"policy_compliance"`
	Ingestion   Ingestion        `json:"ingestion"`
	CostBasis   CostBasis        `json:"cost_basis"`
	Denominator Denominator      `json:"denominator"`
	Reference   Reference        `json:"reference"`
}

// Overview carries the composite score and its derivation.
type Overview struct {
	TrustScore      float64           `json:"trust_score"`
	WeightedBase    float64           `json:"weighted_base"`
	ConfidenceLevel string            `json:"confidence_level"`
	SubScores       scoring.SubScores `json:"sub_scores"`
	GatesApplied    []scoring.Gate    `json:"gates_applied,omitempty"`
	TotalRows       int               `json:"total_rows"`
	TotalSpend      decimal.Decimal   `json:"total_spend"`
	CostAtRisk      decimal.Decimal   `json:"cost_at_risk"`
	GeneratedAt     time.Time         `json:"generated_at"`
}

// TagKeyCoverage is the per-tracked-key spend breakdown.
type TagKeyCoverage struct {
	Key          string          `json:"key"`
	PresentSpend decimal.Decimal `json:"present_spend"`
	InvalidSpend decimal.Decimal `json:"invalid_spend"`
	InvalidPct   float64         `json:"invalid_pct"`
}

// TagMetadata is the tag-compliance section.
type TagMetadata struct {
	Score                float64          `json:"score"`
	TaggedPct            float64          `json:"tagged_pct"`
	UntaggedPct          float64          `json:"untagged_pct"`
	InvalidValueWeighted float64          `json:"invalid_value_weighted"`
	Keys                 []TagKeyCoverage `json:"keys"`
}

// Ownership is the allocation-confidence section.
type Ownership struct {
	Score               float64 `json:"score"`
	AllocatedPct        float64 `json:"allocated_pct"`
	UnallocatedPct      float64 `json:"unallocated_pct"`
	LeakagePct          float64 `json:"leakage_pct"`
	RuleChurnRatePct    float64 `json:"rule_churn_rate_pct"`
	MappingStabilityPct float64 `json:"mapping_stability_pct"`
	AccountCount        int     `json:"account_count"`
	UnallocMoMDeltaPP   float64 `json:"unalloc_mom_delta_pp"`
}

// ServiceSpend attributes spend to one service.
type ServiceSpend struct {
	Service string          `json:"service"`
	Spend   decimal.Decimal `json:"spend"`
}

// SharedPool is the shared-cost-integrity section.
type SharedPool struct {
	Score              float64         `json:"score"`
	SharedPct          float64         `json:"shared_pct"`
	SharedSpend        decimal.Decimal `json:"shared_spend"`
	LeakageSpend       decimal.Decimal `json:"leakage_spend"`
	SharedMoMDeltaPP   float64         `json:"shared_mom_delta_pp"`
	DailySharedShareCV float64         `json:"daily_shared_share_cv"`
	TopServices        []ServiceSpend  `json:"top_services"`
}

// PolicyCompliance is the control-violation section.
type PolicyCompliance struct {
	Score          float64                    `json:"score"`
	ViolatedPct    float64                    `json:"violated_pct"`
	ViolatedSpend  decimal.Decimal            `json:"violated_spend"`
	ViolationCount int                        `json:"violation_count"`
	BySeverity     map[string]int             `json:"by_severity"`
	ByOwner        map[string]decimal.Decimal `json:"by_owner"`
	ByService      map[string]decimal.Decimal `json:"by_service"`
	ByAccount      map[string]decimal.Decimal `json:"by_account"`
	Violations     []aggregate.Violation      `json:"violations"`
}

// Ingestion is the pipeline-reliability section.
type Ingestion struct {
	Score             float64   `json:"score"`
	FreshnessLagHours float64   `json:"freshness_lag_hours"`
	LastIngestedAt    time.Time `json:"last_ingested_at"`
	MissingDays30     int       `json:"missing_days_30"`
	DuplicateRows     int       `json:"duplicate_rows"`
	DuplicatePct      float64   `json:"duplicate_pct"`
	LatePct           float64   `json:"late_pct"`
	Accounts30        int       `json:"accounts_30"`
	ExpectedAccounts  int       `json:"expected_accounts"`
	CompletenessPct   float64   `json:"completeness_pct"`
}

// DriftEvent is one detected cost-basis drift signal.
type DriftEvent struct {
	Signal   string `json:"signal"`
	Severity string `json:"severity"`
	Detail   string `json:"detail"`
}

// CostBasis is the currency/basis-consistency section.
type CostBasis struct {
	Score               float64                    `json:"score"`
	DominantCurrency    string                     `json:"dominant_currency"`
	DominantCurrencyPct float64                    `json:"dominant_currency_pct"`
	Currencies          map[string]decimal.Decimal `json:"currencies"`
	Modes               map[string]decimal.Decimal `json:"modes"`
	ModeCount           int                        `json:"mode_count"`
	CreditPct           float64                    `json:"credit_pct"`
	CommitmentPct       float64                    `json:"commitment_pct"`
	DriftEvents         []DriftEvent               `json:"drift_events"`
}

// Denominator is the unit-economics-quality section.
type Denominator struct {
	Score           float64 `json:"score"`
	CoveragePct     float64 `json:"coverage_pct"`
	MissingPct      float64 `json:"missing_pct"`
	MismatchPct     float64 `json:"mismatch_pct"`
	StalePct        float64 `json:"stale_pct"`
	AlignmentPct    float64 `json:"alignment_pct"`
	TrustGateStatus string  `json:"trust_gate_status"`
}

// Build assembles the report from one finished analysis pass.
func Build(acc *aggregate.Accumulator, d metrics.Derived, s scoring.SubScores,
	comp scoring.CompositeResult, expectedAccounts int, generatedAt time.Time) Report {

	return Report{
		Overview: Overview{
			TrustScore:      comp.Score,
			WeightedBase:    comp.WeightedBase,
			ConfidenceLevel: scoring.ConfidenceLevel(comp.Score),
			SubScores:       s,
			GatesApplied:    comp.Gates,
			TotalRows:       acc.RowCount,
			TotalSpend:      acc.Total,
			CostAtRisk:      acc.Violated.Add(acc.Leakage),
			GeneratedAt:     generatedAt,
		},
		TagMetadata: buildTagMetadata(acc, d, s),
		Ownership: Ownership{
			Score:               s.AllocationConfidence,
			AllocatedPct:        d.AllocatedPct,
			UnallocatedPct:      d.UnallocatedPct,
			LeakagePct:          d.LeakagePct,
			RuleChurnRatePct:    d.RuleChurnRatePct,
			MappingStabilityPct: d.MappingStabilityPct,
			AccountCount:        d.AccountCount,
			UnallocMoMDeltaPP:   d.UnallocMoMDeltaPP,
		},
		SharedPool: buildSharedPool(acc, d, s),
		Policy:     buildPolicy(acc, d, s),
		Ingestion: Ingestion{
			Score:             s.IngestionReliability,
			FreshnessLagHours: d.FreshnessLagHours,
			LastIngestedAt:    acc.LastIngestedAt,
			MissingDays30:     d.MissingDays30,
			DuplicateRows:     acc.DuplicateRows,
			DuplicatePct:      d.DuplicatePct,
			LatePct:           d.LatePct,
			Accounts30:        d.Accounts30,
			ExpectedAccounts:  expectedAccounts,
			CompletenessPct:   s.CompletenessPct,
		},
		CostBasis: buildCostBasis(acc, d, s),
		Denominator: Denominator{
			Score:           s.DenominatorCoverage,
			CoveragePct:     d.DenCoveragePct,
			MissingPct:      d.DenMissingPct,
			MismatchPct:     d.DenMismatchPct,
			StalePct:        d.DenStalePct,
			AlignmentPct:    d.AlignmentPct,
			TrustGateStatus: s.TrustGateStatus,
		},
		Reference: BuildReference(),
	}
}

func buildTagMetadata(acc *aggregate.Accumulator, d metrics.Derived, s scoring.SubScores) TagMetadata {
	var keys []string
	for key := range acc.TagStats {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	coverage := make([]TagKeyCoverage, 0, len(keys))
	for _, key := range keys {
		stat := acc.TagStats[key]
		coverage = append(coverage, TagKeyCoverage{
			Key:          key,
			PresentSpend: stat.Present,
			InvalidSpend: stat.Invalid,
			InvalidPct:   metrics.CostShare(stat.Invalid, stat.Present),
		})
	}
	return TagMetadata{
		Score:                s.TagCompliance,
		TaggedPct:            d.TaggedPct,
		UntaggedPct:          d.UntaggedPct,
		InvalidValueWeighted: d.InvalidValueWeighted,
		Keys:                 coverage,
	}
}

// buildSharedPool attributes the latest month's shared spend to services,
// largest pools first.
func buildSharedPool(acc *aggregate.Accumulator, d metrics.Derived, s scoring.SubScores) SharedPool {
	var latest string
	for month := range acc.Months {
		if month != "unknown" && month > latest {
			latest = month
		}
	}

	var top []ServiceSpend
	if latest != "" {
		for service, spend := range acc.Months[latest].SharedByService {
			top = append(top, ServiceSpend{Service: service, Spend: spend})
		}
		sort.Slice(top, func(i, j int) bool {
			if !top[i].Spend.Equal(top[j].Spend) {
				return top[i].Spend.GreaterThan(top[j].Spend)
			}
			return top[i].Service < top[j].Service
		})
		if len(top) > 10 {
			top = top[:10]
		}
	}

	return SharedPool{
		Score:              s.SharedPoolHealth,
		SharedPct:          d.SharedPct,
		SharedSpend:        acc.Shared,
		LeakageSpend:       acc.Leakage,
		SharedMoMDeltaPP:   d.SharedMoMDeltaPP,
		DailySharedShareCV: d.DailySharedShareCV,
		TopServices:        top,
	}
}

func buildPolicy(acc *aggregate.Accumulator, d metrics.Derived, s scoring.SubScores) PolicyCompliance {
	bySeverity := make(map[string]int)
	for _, v := range acc.Violations {
		bySeverity[v.Severity]++
	}

	violations := acc.Violations
	if len(violations) > maxViolationRecords {
		violations = violations[:maxViolationRecords]
	}
	if violations == nil {
		violations = []aggregate.Violation{}
	}

	return PolicyCompliance{
		Score:          s.PolicyCompliance,
		ViolatedPct:    d.ViolatedPct,
		ViolatedSpend:  acc.Violated,
		ViolationCount: len(acc.Violations),
		BySeverity:     bySeverity,
		ByOwner:        acc.ViolationsByOwner,
		ByService:      acc.ViolationsByService,
		ByAccount:      acc.ViolationsByAccount,
		Violations:     violations,
	}
}

// buildCostBasis derives the drift-event list alongside the currency and
// mode totals. Three or more observed basis modes is a high-severity
// drift signal on its own.
func buildCostBasis(acc *aggregate.Accumulator, d metrics.Derived, s scoring.SubScores) CostBasis {
	var events []DriftEvent
	if d.CostBasisModeCount >= 3 {
		events = append(events, DriftEvent{
			Signal:   SignalBasisModeDrift,
			Severity: "high",
			Detail:   "three or more cost-basis modes observed in one scope",
		})
	}
	if d.DominantCurrencyPct < 99 && acc.RowCount > 0 {
		events = append(events, DriftEvent{
			Signal:   SignalCurrencyMix,
			Severity: "medium",
			Detail:   "dominant currency covers less than 99% of spend",
		})
	}
	if d.DailyCreditShareCV > 0.5 {
		events = append(events, DriftEvent{
			Signal:   SignalCreditVolatility,
			Severity: "medium",
			Detail:   "daily credit share varies widely across the scope",
		})
	}
	if d.DailyCommitmentShareCV > 0.5 {
		events = append(events, DriftEvent{
			Signal:   SignalCommitmentVolatility,
			Severity: "low",
			Detail:   "daily commitment share varies widely across the scope",
		})
	}
	if events == nil {
		events = []DriftEvent{}
	}

	return CostBasis{
		Score:               s.CostBasisConsistency,
		DominantCurrency:    d.DominantCurrency,
		DominantCurrencyPct: d.DominantCurrencyPct,
		Currencies:          acc.ByCurrency,
		Modes:               acc.ByCostBasis,
		ModeCount:           d.CostBasisModeCount,
		CreditPct:           d.CreditPct,
		CommitmentPct:       d.CommitmentPct,
		DriftEvents:         events,
	}
}
