package aggregate

import (
	"testing"

	"github.com/shopspring/decimal"

	"billing-trust/core/billing"
	"billing-trust/core/policy"
)

func normalize(t *testing.T, raws []billing.RawRow) []billing.NormalizedRow {
	t.Helper()
	n := billing.NewNormalizer(nil)
	rows := make([]billing.NormalizedRow, 0, len(raws))
	for _, raw := range raws {
		rows = append(rows, n.Normalize(raw))
	}
	return rows
}

func fullyTagged(cost string, date string) billing.RawRow {
	return billing.RawRow{
		"BilledCost":        cost,
		"ChargePeriodStart": date,
		"CreatedAt":         date,
		"ServiceName":       "compute",
		"SubAccountId":      "acct-1",
		"UploadId":          "u1",
		"ResourceId":        "i-1",
		"Tags": map[string]any{
			"owner":       "team-a",
			"costcenter":  "cc-1",
			"environment": "prod",
			"project":     "atlas",
		},
	}
}

func TestFoldTotals(t *testing.T) {
	rows := normalize(t, []billing.RawRow{
		fullyTagged("100", "2025-06-01T00:00:00Z"),
		{
			"BilledCost":        "50",
			"ChargePeriodStart": "2025-06-01T00:00:00Z",
			"ServiceName":       "storage",
			"SubAccountId":      "acct-2",
		},
	})
	acc := Fold(rows, nil)

	if acc.RowCount != 2 {
		t.Fatalf("rows = %d, want 2", acc.RowCount)
	}
	if want := decimal.NewFromInt(150); !acc.Total.Equal(want) {
		t.Errorf("total = %v, want %v", acc.Total, want)
	}
	if want := decimal.NewFromInt(100); !acc.Tagged.Equal(want) {
		t.Errorf("tagged = %v, want %v", acc.Tagged, want)
	}
	if want := decimal.NewFromInt(100); !acc.Allocated.Equal(want) {
		t.Errorf("allocated = %v, want %v", acc.Allocated, want)
	}
	// Second row has no owner and is not shared: leakage.
	if want := decimal.NewFromInt(50); !acc.Leakage.Equal(want) {
		t.Errorf("leakage = %v, want %v", acc.Leakage, want)
	}
	if len(acc.Days) != 1 {
		t.Errorf("day buckets = %d, want 1", len(acc.Days))
	}
	if day := acc.Days["2025-06-01"]; len(day.Accounts) != 2 {
		t.Errorf("distinct accounts = %d, want 2", len(day.Accounts))
	}
}

func TestFoldDuplicateFingerprints(t *testing.T) {
	// Two rows sharing (upload, date, account, service, resource, cost):
	// one duplicate counted, the first occurrence is not.
	rows := normalize(t, []billing.RawRow{
		fullyTagged("100", "2025-06-01T00:00:00Z"),
		fullyTagged("100", "2025-06-01T00:00:00Z"),
	})
	acc := Fold(rows, nil)

	if acc.DuplicateRows != 1 {
		t.Errorf("duplicate rows = %d, want 1", acc.DuplicateRows)
	}

	rows = normalize(t, []billing.RawRow{
		fullyTagged("100", "2025-06-01T00:00:00Z"),
		fullyTagged("100", "2025-06-01T00:00:00Z"),
		fullyTagged("100", "2025-06-01T00:00:00Z"),
	})
	if acc = Fold(rows, nil); acc.DuplicateRows != 2 {
		t.Errorf("duplicate rows = %d for triple, want 2", acc.DuplicateRows)
	}
}

func TestFoldViolationSpendDedup(t *testing.T) {
	// Row missing owner and costcenter, in a restricted region, shared with
	// no owner, cost zero: four policies trip, spend counted once.
	raw := billing.RawRow{
		"BilledCost":        "0",
		"ChargePeriodStart": "2025-06-01T00:00:00Z",
		"ServiceName":       "compute",
		"SubAccountId":      "acct-1",
		"RegionName":        "us-gov-west-1",
		"ChargeCategory":    "shared",
	}
	paid := billing.RawRow{
		"BilledCost":        "40",
		"ChargePeriodStart": "2025-06-01T00:00:00Z",
		"ServiceName":       "compute",
		"SubAccountId":      "acct-1",
	}
	acc := Fold(normalize(t, []billing.RawRow{raw, paid}), nil)

	ids := make(map[string]int)
	for _, v := range acc.Violations {
		ids[v.PolicyID]++
	}
	for _, want := range []string{
		policy.RuleMandatoryTags,
		policy.RuleRestrictedRegion,
		policy.RuleOrphanSharedCost,
		policy.RuleNonPositiveCost,
	} {
		if ids[want] == 0 {
			t.Errorf("rule %s not recorded", want)
		}
	}

	// First row contributes 0, second contributes 40 (mandatory_tags only);
	// neither is double counted across its multiple violations.
	if want := decimal.NewFromInt(40); !acc.Violated.Equal(want) {
		t.Errorf("violated = %v, want %v", acc.Violated, want)
	}
}

func TestFoldSingleRowViolatedOnce(t *testing.T) {
	// Missing owner and costcenter trips mandatory_tags; absolute cost
	// appears in violatedAbs exactly once.
	raw := billing.RawRow{
		"BilledCost":        "25",
		"ChargePeriodStart": "2025-06-01T00:00:00Z",
		"ServiceName":       "compute",
		"SubAccountId":      "acct-1",
		"Tags":              map[string]any{"environment": "prod", "project": "atlas"},
	}
	acc := Fold(normalize(t, []billing.RawRow{raw}), nil)

	critical := 0
	for _, v := range acc.Violations {
		if v.PolicyID == policy.RuleMandatoryTags && v.Severity == policy.SeverityCritical {
			critical++
		}
	}
	if critical != 1 {
		t.Errorf("mandatory_tags critical violations = %d, want 1", critical)
	}
	if want := decimal.NewFromInt(25); !acc.Violated.Equal(want) {
		t.Errorf("violated = %v, want %v", acc.Violated, want)
	}
}

func TestFoldMonthBuckets(t *testing.T) {
	rows := normalize(t, []billing.RawRow{
		fullyTagged("100", "2025-05-15T00:00:00Z"),
		fullyTagged("200", "2025-06-15T00:00:00Z"),
		{
			"BilledCost":        "50",
			"ChargePeriodStart": "2025-06-20T00:00:00Z",
			"ServiceName":       "observability",
			"SubAccountId":      "acct-1",
			"ChargeCategory":    "shared",
		},
	})
	acc := Fold(rows, nil)

	june := acc.Months["2025-06"]
	if june == nil {
		t.Fatal("no june bucket")
	}
	if want := decimal.NewFromInt(250); !june.Total.Equal(want) {
		t.Errorf("june total = %v, want %v", june.Total, want)
	}
	if want := decimal.NewFromInt(50); !june.Shared.Equal(want) {
		t.Errorf("june shared = %v, want %v", june.Shared, want)
	}
	if want := decimal.NewFromInt(50); !june.SharedByService["observability"].Equal(want) {
		t.Errorf("june observability pool = %v, want %v", june.SharedByService["observability"], want)
	}
}

func TestFoldOwnerSpend(t *testing.T) {
	row := func(date, owner string) billing.RawRow {
		return billing.RawRow{
			"BilledCost":        "10",
			"ChargePeriodStart": date,
			"ServiceName":       "compute",
			"SubAccountId":      "acct-1",
			"Tags":              map[string]any{"owner": owner},
		}
	}
	acc := Fold(normalize(t, []billing.RawRow{
		row("2025-05-01T00:00:00Z", "team-a"),
		row("2025-06-01T00:00:00Z", "team-b"),
	}), nil)

	months := acc.OwnerSpend["acct-1"]
	if len(months) != 2 {
		t.Fatalf("owner months = %d, want 2", len(months))
	}
	if _, ok := months["2025-05"]["team-a"]; !ok {
		t.Error("may spend not attributed to team-a")
	}
	if _, ok := months["2025-06"]["team-b"]; !ok {
		t.Error("june spend not attributed to team-b")
	}
}

func TestFoldLastIngestedAt(t *testing.T) {
	rows := normalize(t, []billing.RawRow{
		fullyTagged("1", "2025-06-01T00:00:00Z"),
		{
			"BilledCost":        "1",
			"ChargePeriodStart": "2025-06-02T00:00:00Z",
			"CreatedAt":         "2025-06-03T12:00:00Z",
			"ServiceName":       "compute",
			"SubAccountId":      "acct-1",
		},
	})
	acc := Fold(rows, nil)

	if got := acc.LastIngestedAt.UTC().Format("2006-01-02T15"); got != "2025-06-03T12" {
		t.Errorf("last ingested = %s, want max creation time", got)
	}
}
