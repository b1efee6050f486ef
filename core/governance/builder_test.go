package governance

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"billing-trust/core/aggregate"
	"billing-trust/core/billing"
	"billing-trust/core/metrics"
	"billing-trust/core/policy"
	"billing-trust/core/scoring"
)

func buildFromRows(t *testing.T, raws []billing.RawRow, now time.Time) Report {
	t.Helper()
	pol := policy.Default()
	n := billing.NewNormalizer(pol)
	rows := make([]billing.NormalizedRow, 0, len(raws))
	for _, raw := range raws {
		rows = append(rows, n.Normalize(raw))
	}
	acc := aggregate.Fold(rows, pol)
	d := metrics.Derive(acc, now)
	in := scoring.Inputs{Metrics: d}
	s := scoring.Compute(in)
	comp := scoring.Composite(s, in, pol.Weights, pol.Gates)
	return Build(acc, d, s, comp, 0, now)
}

func TestBuildEmptyScope(t *testing.T) {
	r := buildFromRows(t, nil, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	if r.Overview.TotalRows != 0 {
		t.Errorf("total rows = %d, want 0", r.Overview.TotalRows)
	}
	if !r.Overview.TotalSpend.IsZero() || !r.Overview.CostAtRisk.IsZero() {
		t.Errorf("empty scope carries spend: total=%v risk=%v", r.Overview.TotalSpend, r.Overview.CostAtRisk)
	}
	if r.Policy.Violations == nil {
		t.Error("violations list is nil, want empty slice")
	}
	if r.CostBasis.DriftEvents == nil {
		t.Error("drift events list is nil, want empty slice")
	}
	if len(r.Reference.KPIs) != 7 {
		t.Errorf("kpi dictionary has %d entries, want 7", len(r.Reference.KPIs))
	}
}

func TestBuildSingleCleanRow(t *testing.T) {
	now := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	raw := billing.RawRow{
		"BilledCost":        100.0,
		"ChargePeriodStart": "2025-06-01T00:00:00Z",
		"createdAt":         "2025-06-01T04:00:00Z",
		"ServiceName":       "compute",
		"SubAccountId":      "acct-1",
		"ConsumedQuantity":  10.0,
		"ConsumedUnit":      "hours",
		"Tags": map[string]any{
			"owner":       "team-platform",
			"costcenter":  "cc-100",
			"environment": "prod",
			"project":     "atlas",
		},
	}
	r := buildFromRows(t, []billing.RawRow{raw}, now)

	if r.Overview.TrustScore <= 90 {
		t.Errorf("trust score = %v, want > 90", r.Overview.TrustScore)
	}
	if r.Overview.ConfidenceLevel != "high" {
		t.Errorf("confidence = %q, want high", r.Overview.ConfidenceLevel)
	}
	if !r.Overview.CostAtRisk.IsZero() {
		t.Errorf("cost at risk = %v, want 0", r.Overview.CostAtRisk)
	}
	if r.TagMetadata.TaggedPct != 100 {
		t.Errorf("tagged pct = %v, want 100", r.TagMetadata.TaggedPct)
	}
	if r.Denominator.TrustGateStatus != scoring.GateStatusPass {
		t.Errorf("denominator gate = %q, want pass", r.Denominator.TrustGateStatus)
	}
	if r.Ingestion.FreshnessLagHours > 24 {
		t.Errorf("freshness lag = %v, want within a day", r.Ingestion.FreshnessLagHours)
	}
}

func TestCostAtRiskIncludesViolatedAndLeakage(t *testing.T) {
	now := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	// Untagged, unowned, non-shared: mandatory_tags violation plus leakage.
	raw := billing.RawRow{
		"BilledCost":        50.0,
		"ChargePeriodStart": "2025-06-01T00:00:00Z",
		"createdAt":         "2025-06-01T01:00:00Z",
		"ServiceName":       "storage",
		"SubAccountId":      "acct-1",
	}
	r := buildFromRows(t, []billing.RawRow{raw}, now)

	// The same 50 of spend is both violated and leaked.
	if want := decimal.NewFromInt(100); !r.Overview.CostAtRisk.Equal(want) {
		t.Errorf("cost at risk = %v, want %v", r.Overview.CostAtRisk, want)
	}
	if r.Policy.BySeverity["critical"] == 0 {
		t.Error("expected a critical mandatory_tags violation")
	}
}

func TestBasisModeDriftEvent(t *testing.T) {
	now := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	row := func(basis string) billing.RawRow {
		return billing.RawRow{
			"BilledCost":        10.0,
			"ChargePeriodStart": "2025-06-01T00:00:00Z",
			"createdAt":         "2025-06-01T01:00:00Z",
			"ServiceName":       "compute",
			"SubAccountId":      "acct-1",
			"CostBasis":         basis,
			"Tags": map[string]any{
				"owner": "team-a", "costcenter": "cc-1",
				"environment": "prod", "project": "atlas",
			},
		}
	}
	r := buildFromRows(t, []billing.RawRow{row("amortized"), row("blended"), row("actual")}, now)

	if r.CostBasis.ModeCount != 3 {
		t.Fatalf("mode count = %d, want 3", r.CostBasis.ModeCount)
	}
	found := false
	for _, e := range r.CostBasis.DriftEvents {
		if e.Signal == SignalBasisModeDrift && e.Severity == "high" {
			found = true
		}
	}
	if !found {
		t.Errorf("no high basis_mode_drift event in %+v", r.CostBasis.DriftEvents)
	}
	if r.Overview.SubScores.CostBasisConsistency >= 100 {
		t.Errorf("basis consistency = %v, want lowered by mode drift", r.Overview.SubScores.CostBasisConsistency)
	}
}

func TestSharedPoolTopServices(t *testing.T) {
	now := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	shared := func(service string, cost float64) billing.RawRow {
		return billing.RawRow{
			"BilledCost":        cost,
			"ChargePeriodStart": "2025-06-01T00:00:00Z",
			"createdAt":         "2025-06-01T01:00:00Z",
			"ServiceName":       service,
			"SubAccountId":      "acct-1",
			"ChargeCategory":    "shared",
		}
	}
	r := buildFromRows(t, []billing.RawRow{shared("network", 30), shared("observability", 70)}, now)

	if len(r.SharedPool.TopServices) != 2 {
		t.Fatalf("top services = %d, want 2", len(r.SharedPool.TopServices))
	}
	if r.SharedPool.TopServices[0].Service != "observability" {
		t.Errorf("top service = %q, want observability first", r.SharedPool.TopServices[0].Service)
	}
}
