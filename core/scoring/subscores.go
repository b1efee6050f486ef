// Package scoring derives the seven governance sub-scores and the weighted
// composite trust score with its hard override gates. Every score is a
// deterministic function of the derived metrics, bounded to [0,100].
package scoring

import (
	"billing-trust/core/metrics"
)

// Trust gate statuses for denominator quality.
const (
	GateStatusPass    = "pass"
	GateStatusFlagged = "flagged"
	GateStatusBlocked = "blocked"
)

// Inputs bundles everything scoring needs: the derived metric set plus the
// expected distinct account count supplied by the account directory.
type Inputs struct {
	Metrics          metrics.Derived
	ExpectedAccounts int
}

// SubScores holds the seven independent quality dimensions.
type SubScores struct {
	TagCompliance        float64 `json:"tag_compliance"`
	AllocationConfidence float64 `json:"allocation_confidence"`
	SharedPoolHealth     float64 `json:"shared_pool_health"`
	PolicyCompliance     float64 `json:"policy_compliance"`
	IngestionReliability float64 `json:"ingestion_reliability"`
	CostBasisConsistency float64 `json:"cost_basis_consistency"`
	DenominatorCoverage  float64 `json:"denominator_coverage"`

	// TrustGateStatus is the denominator-quality gate: pass, flagged or
	// blocked.
	TrustGateStatus string `json:"trust_gate_status"`

	// CompletenessPct is the 30-day account coverage against the expected
	// account set.
	CompletenessPct float64 `json:"completeness_pct"`
}

// Compute derives all sub-scores from one metric set.
func Compute(in Inputs) SubScores {
	d := in.Metrics
	s := SubScores{
		CompletenessPct: completeness(d.Accounts30, in.ExpectedAccounts),
	}

	s.TagCompliance = round(clamp(d.TaggedPct*0.7 + (100-d.InvalidValueWeighted)*0.3))
	s.AllocationConfidence = allocationConfidence(d)
	s.SharedPoolHealth = sharedPoolHealth(d)
	s.PolicyCompliance = round(clamp(100 - d.ViolatedPct))
	s.IngestionReliability = ingestionReliability(d, s.CompletenessPct)
	s.CostBasisConsistency = costBasisConsistency(d)
	s.DenominatorCoverage, s.TrustGateStatus = denominatorCoverage(d)

	return s
}

// allocationConfidence blends allocated share, ownership churn, mapping
// stability and the month-over-month unallocated trend.
func allocationConfidence(d metrics.Derived) float64 {
	return round(clamp(
		d.AllocatedPct*0.4 +
			(100-clamp(d.RuleChurnRatePct))*0.2 +
			d.MappingStabilityPct*0.2 +
			unallocTrendScore(d.UnallocMoMDeltaPP)*0.2))
}

// unallocTrendScore is a step function of the unallocated-share drift in
// percentage points.
func unallocTrendScore(deltaPP float64) float64 {
	switch {
	case deltaPP <= 0:
		return 100
	case deltaPP <= 2:
		return 70
	case deltaPP <= 5:
		return 40
	default:
		return 20
	}
}

// sharedPoolHealth blends pool drift, leakage and daily basis stability.
func sharedPoolHealth(d metrics.Derived) float64 {
	poolDrift := tierAbove(abs(d.SharedMoMDeltaPP), 1, 3)
	leakage := tierAbove(d.LeakagePct, 1, 3)
	basisStability := clamp(100 - d.DailySharedShareCV*100)
	return round(clamp(poolDrift*0.5 + leakage*0.3 + basisStability*0.2))
}

// ingestionReliability blends freshness, missing days, duplicates and
// account-coverage completeness.
func ingestionReliability(d metrics.Derived, completenessPct float64) float64 {
	freshness := tierAbove(d.FreshnessLagHours, 12, 24)
	missingDays := tierAbove(float64(d.MissingDays30), 0, 2)
	duplicates := tierAbove(d.DuplicatePct, 1, 5)
	completenessScore := tierBelow(completenessPct, 98, 90)
	return round(clamp(freshness*0.35 + missingDays*0.25 + duplicates*0.2 + completenessScore*0.2))
}

// costBasisConsistency blends the dominant-currency share, the cost-basis
// mode spread and the daily credit/commitment stability.
func costBasisConsistency(d metrics.Derived) float64 {
	modeConsistency := ModeConsistency(d.CostBasisModeCount)
	creditConsistency := clamp(100 - d.DailyCreditShareCV*100)
	commitmentConsistency := clamp(100 - d.DailyCommitmentShareCV*100)
	return round(clamp(
		d.DominantCurrencyPct*0.4 +
			modeConsistency*0.2 +
			creditConsistency*0.2 +
			commitmentConsistency*0.2))
}

// ModeConsistency scores the spread of observed cost-basis modes: one mode
// is consistent, two is mixed, three or more is drifting.
func ModeConsistency(modeCount int) float64 {
	switch {
	case modeCount <= 1:
		return 100
	case modeCount == 2:
		return 75
	default:
		return 50
	}
}

// denominatorCoverage blends coverage, unit alignment and staleness, and
// derives the trust gate status.
func denominatorCoverage(d metrics.Derived) (float64, string) {
	score := round(clamp(
		d.DenCoveragePct*0.6 +
			d.AlignmentPct*0.25 +
			(100-d.DenStalePct)*0.15))

	status := GateStatusPass
	switch {
	case d.DenCoveragePct < 70 || d.AlignmentPct < 85:
		status = GateStatusBlocked
	case d.DenCoveragePct < 85 || d.DenStalePct > 10:
		status = GateStatusFlagged
	}
	return score, status
}

// completeness is the 30-day distinct-account coverage against the
// expected account set; with no directory data it reports full coverage.
func completeness(seen, expected int) float64 {
	if expected <= 0 {
		return 100
	}
	return round(clamp(float64(seen) / float64(expected) * 100))
}

// tierAbove scores a "lower is better" value: 100 at or below t1, 70 at or
// below t2, 30 beyond.
func tierAbove(value, t1, t2 float64) float64 {
	switch {
	case value <= t1:
		return 100
	case value <= t2:
		return 70
	default:
		return 30
	}
}

// tierBelow scores a "higher is better" value: 100 at or above t1, 70 at
// or above t2, 30 below.
func tierBelow(value, t1, t2 float64) float64 {
	switch {
	case value >= t1:
		return 100
	case value >= t2:
		return 70
	default:
		return 30
	}
}

func clamp(v float64) float64 { return metrics.Clamp100(v) }
func round(v float64) float64 { return metrics.Round2(v) }

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
