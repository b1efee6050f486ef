package scoring

import (
	"testing"

	"billing-trust/core/metrics"
	"billing-trust/core/policy"
)

// cleanMetrics is a fully healthy metric set: complete tagging and
// allocation, fresh ingestion, one currency, one cost basis, full
// denominator coverage.
func cleanMetrics() metrics.Derived {
	return metrics.Derived{
		TaggedPct:           100,
		AllocatedPct:        100,
		DenCoveragePct:      100,
		AlignmentPct:        100,
		FreshnessLagHours:   2,
		DominantCurrency:    "USD",
		DominantCurrencyPct: 100,
		CostBasisModeCount:  1,
		MappingStabilityPct: 100,
		Accounts30:          1,
	}
}

func TestComputeAllHealthy(t *testing.T) {
	s := Compute(Inputs{Metrics: cleanMetrics()})

	for name, got := range map[string]float64{
		"tag_compliance":         s.TagCompliance,
		"allocation_confidence":  s.AllocationConfidence,
		"shared_pool_health":     s.SharedPoolHealth,
		"policy_compliance":      s.PolicyCompliance,
		"ingestion_reliability":  s.IngestionReliability,
		"cost_basis_consistency": s.CostBasisConsistency,
		"denominator_coverage":   s.DenominatorCoverage,
	} {
		if got != 100 {
			t.Errorf("%s = %v, want 100", name, got)
		}
	}
	if s.TrustGateStatus != GateStatusPass {
		t.Errorf("trust gate = %q, want pass", s.TrustGateStatus)
	}

	result := Composite(s, Inputs{Metrics: cleanMetrics()}, nil, nil)
	if result.Score <= 90 {
		t.Errorf("composite = %v, want > 90", result.Score)
	}
	if len(result.Gates) != 0 {
		t.Errorf("gates fired on healthy input: %+v", result.Gates)
	}
	if ConfidenceLevel(result.Score) != ConfidenceHigh {
		t.Errorf("confidence = %q, want high", ConfidenceLevel(result.Score))
	}
}

func TestFreshnessGateCapsComposite(t *testing.T) {
	d := cleanMetrics()
	d.FreshnessLagHours = 30

	in := Inputs{Metrics: d}
	result := Composite(Compute(in), in, nil, nil)
	if result.Score > 60 {
		t.Errorf("composite = %v with 30h lag, want <= 60", result.Score)
	}
	if len(result.Gates) != 1 || result.Gates[0].ID != GateFreshness {
		t.Errorf("gates = %+v, want single freshness gate", result.Gates)
	}
}

func TestMissingDaysGate(t *testing.T) {
	d := cleanMetrics()
	d.MissingDays30 = 3

	in := Inputs{Metrics: d}
	result := Composite(Compute(in), in, nil, nil)
	if result.Score > 55 {
		t.Errorf("composite = %v with 3 missing days, want <= 55", result.Score)
	}
}

func TestCurrencyGate(t *testing.T) {
	d := cleanMetrics()
	d.DominantCurrencyPct = 98.5

	in := Inputs{Metrics: d}
	result := Composite(Compute(in), in, nil, nil)
	if result.Score > 50 {
		t.Errorf("composite = %v with mixed currencies, want <= 50", result.Score)
	}
}

func TestCompletenessGate(t *testing.T) {
	d := cleanMetrics()
	d.Accounts30 = 8

	in := Inputs{Metrics: d, ExpectedAccounts: 10}
	s := Compute(in)
	if s.CompletenessPct != 80 {
		t.Fatalf("completeness = %v, want 80", s.CompletenessPct)
	}
	result := Composite(s, in, nil, nil)
	if result.Score > 60 {
		t.Errorf("composite = %v at 80%% completeness, want <= 60", result.Score)
	}
}

func TestCompletenessWithoutDirectoryData(t *testing.T) {
	// No expected accounts means no evidence of missing ones: full
	// coverage, no completeness gate.
	d := cleanMetrics()
	d.Accounts30 = 0

	in := Inputs{Metrics: d, ExpectedAccounts: 0}
	s := Compute(in)
	if s.CompletenessPct != 100 {
		t.Fatalf("completeness = %v with no directory data, want 100", s.CompletenessPct)
	}
	for _, g := range Composite(s, in, nil, nil).Gates {
		if g.ID == GateAccountCompleteness {
			t.Errorf("completeness gate fired with no directory data: %+v", g)
		}
	}
}

func TestGatesNeverRaiseScore(t *testing.T) {
	// Everything broken at once: the weighted base is already below every
	// cap, so the gates must leave it alone.
	d := metrics.Derived{
		FreshnessLagHours:    200,
		MissingDays30:        10,
		DominantCurrencyPct:  40,
		ViolatedPct:          100,
		InvalidValueWeighted: 100,
	}
	in := Inputs{Metrics: d, ExpectedAccounts: 10}
	s := Compute(in)
	result := Composite(s, in, nil, nil)
	if result.Score > result.WeightedBase {
		t.Errorf("gated score %v exceeds weighted base %v", result.Score, result.WeightedBase)
	}
	if result.Score < 0 || result.Score > 100 {
		t.Errorf("composite out of bounds: %v", result.Score)
	}
	if len(result.Gates) != 4 {
		t.Errorf("gates fired = %d, want 4", len(result.Gates))
	}
}

func TestModeConsistency(t *testing.T) {
	tests := []struct {
		modes int
		want  float64
	}{
		{0, 100},
		{1, 100},
		{2, 75},
		{3, 50},
		{5, 50},
	}
	for _, tt := range tests {
		if got := ModeConsistency(tt.modes); got != tt.want {
			t.Errorf("ModeConsistency(%d) = %v, want %v", tt.modes, got, tt.want)
		}
	}
}

func TestCostBasisModeDriftLowersConsistency(t *testing.T) {
	d := cleanMetrics()
	d.CostBasisModeCount = 3

	s := Compute(Inputs{Metrics: d})
	// 100*0.4 + 50*0.2 + 100*0.2 + 100*0.2
	if s.CostBasisConsistency != 90 {
		t.Errorf("cost basis consistency = %v, want 90", s.CostBasisConsistency)
	}
}

func TestTrustGateStatuses(t *testing.T) {
	tests := []struct {
		name      string
		coverage  float64
		alignment float64
		stale     float64
		want      string
	}{
		{"full coverage", 100, 100, 0, GateStatusPass},
		{"low coverage blocks", 60, 100, 0, GateStatusBlocked},
		{"misaligned units block", 95, 80, 0, GateStatusBlocked},
		{"partial coverage flags", 80, 95, 0, GateStatusFlagged},
		{"stale denominators flag", 95, 95, 15, GateStatusFlagged},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := cleanMetrics()
			d.DenCoveragePct = tt.coverage
			d.AlignmentPct = tt.alignment
			d.DenStalePct = tt.stale
			s := Compute(Inputs{Metrics: d})
			if s.TrustGateStatus != tt.want {
				t.Errorf("trust gate = %q, want %q", s.TrustGateStatus, tt.want)
			}
		})
	}
}

func TestSubScoresBounded(t *testing.T) {
	inputs := []metrics.Derived{
		{},
		cleanMetrics(),
		{
			TaggedPct: 100, InvalidValueWeighted: 100, ViolatedPct: 100,
			DailySharedShareCV: 9, DailyCreditShareCV: 9, DailyCommitmentShareCV: 9,
			UnallocMoMDeltaPP: -50, SharedMoMDeltaPP: 50, RuleChurnRatePct: 400,
		},
	}
	for _, d := range inputs {
		s := Compute(Inputs{Metrics: d})
		for name, v := range map[string]float64{
			"tag":       s.TagCompliance,
			"alloc":     s.AllocationConfidence,
			"shared":    s.SharedPoolHealth,
			"policy":    s.PolicyCompliance,
			"ingestion": s.IngestionReliability,
			"basis":     s.CostBasisConsistency,
			"den":       s.DenominatorCoverage,
		} {
			if v < 0 || v > 100 {
				t.Errorf("%s sub-score out of bounds: %v", name, v)
			}
		}
	}
}

func TestConfidenceLevels(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{95, ConfidenceHigh},
		{90, ConfidenceHigh},
		{89.99, ConfidenceMedium},
		{75, ConfidenceMedium},
		{74, ConfidenceLow},
		{0, ConfidenceLow},
	}
	for _, tt := range tests {
		if got := ConfidenceLevel(tt.score); got != tt.want {
			t.Errorf("ConfidenceLevel(%v) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestCustomWeights(t *testing.T) {
	s := SubScores{PolicyCompliance: 100, CompletenessPct: 100}
	w := &policy.Weights{PolicyCompliance: 1}
	in := Inputs{Metrics: cleanMetrics()}
	result := Composite(s, in, w, policy.DefaultGates())
	if result.WeightedBase != 100 {
		t.Errorf("weighted base = %v, want 100", result.WeightedBase)
	}
}
