package policy

import "testing"

func TestDefaultWeightsSumToOne(t *testing.T) {
	if sum := weightSum(DefaultWeights()); sum < 0.999 || sum > 1.001 {
		t.Errorf("weights sum = %v, want 1.0", sum)
	}
}

func TestMandatoryTagKeysUnion(t *testing.T) {
	p := &Policy{RequiredTags: []string{"App", "owner", ""}}
	keys := p.MandatoryTagKeys()

	want := map[string]bool{"app": true, "owner": true, "costcenter": true, "environment": true, "project": true}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v, want %d distinct", keys, len(want))
	}
	for _, k := range keys {
		if !want[k] {
			t.Errorf("unexpected key %q", k)
		}
	}
	// Configured order is preserved ahead of the baseline keys.
	if keys[0] != "app" {
		t.Errorf("first key = %q, want app", keys[0])
	}
}

func TestEnvironmentValidity(t *testing.T) {
	p := Default()
	for _, valid := range []string{"prod", "Production", " staging ", "NONPROD"} {
		if !p.IsValidEnvironment(valid) {
			t.Errorf("%q rejected", valid)
		}
	}
	for _, invalid := range []string{"", "the-moon", "produktion"} {
		if p.IsValidEnvironment(invalid) {
			t.Errorf("%q accepted", invalid)
		}
	}
}

func TestRestrictedRegions(t *testing.T) {
	p := Default()
	for _, restricted := range []string{"us-gov-west-1", "cn-north-1", "AWS GovCloud"} {
		if !p.IsRestrictedRegion(restricted) {
			t.Errorf("%q not restricted", restricted)
		}
	}
	if p.IsRestrictedRegion("eu-west-1") {
		t.Error("eu-west-1 restricted")
	}
}

func TestOwnerAndCostCenterValidity(t *testing.T) {
	if IsValidOwner("ab") || !IsValidOwner("abc") {
		t.Error("owner length rule broken")
	}
	if !IsValidCostCenter("cc-100/eng_2") {
		t.Error("well-formed cost center rejected")
	}
	if IsValidCostCenter("cc 100") || IsValidCostCenter("x") {
		t.Error("malformed cost center accepted")
	}
}

func TestNormalizePartialGates(t *testing.T) {
	p := &Policy{Gates: &Gates{FreshnessLagHours: 12}}
	p.Normalize()

	if p.Gates.FreshnessLagHours != 12 {
		t.Errorf("explicit threshold overwritten: %v", p.Gates.FreshnessLagHours)
	}
	if p.Gates.MissingDays != 3 || p.Gates.DominantCurrencyCap != 50 {
		t.Errorf("unset gates not backfilled: %+v", p.Gates)
	}
	if p.Weights == nil {
		t.Error("weights not defaulted")
	}
}
