// Package policy defines the governance rule set applied during aggregation
// and scoring: required tags, value validity rules, policy violations and
// hard-gate thresholds.
package policy

import (
	"regexp"
	"strings"
)

// Rule identifiers for policy violations
const (
	RuleMandatoryTags    = "mandatory_tags"
	RuleRestrictedRegion = "restricted_region"
	RuleOrphanSharedCost = "orphan_shared_cost"
	RuleNonPositiveCost  = "non_positive_cost"
)

// Violation severities
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
)

// TrackedTagKeys are the tag keys whose spend coverage and value validity
// are accumulated individually.
var TrackedTagKeys = []string{"owner", "costcenter", "environment", "app", "product", "project", "team"}

// Policy is the governance rule set. It is decodable from an HCL policy
// file; zero values fall back to Default().
type Policy struct {
	// RequiredTags is unioned with owner/costcenter/environment/project
	// when deciding whether a row counts as tagged.
	RequiredTags []string `hcl:"required_tags,optional"`

	// EnvironmentValues is the closed set of valid environment tag values.
	EnvironmentValues []string `hcl:"environment_values,optional"`

	// RestrictedRegionPatterns are substrings that mark a region as restricted.
	RestrictedRegionPatterns []string `hcl:"restricted_region_patterns,optional"`

	// Weights is the sub-score weighting model.
	Weights *Weights `hcl:"weights,block"`

	// Gates holds the hard-gate thresholds.
	Gates *Gates `hcl:"gates,block"`
}

// Weights is the composite trust-score weighting model. Weights sum to 1.0.
type Weights struct {
	TagCompliance        float64 `hcl:"tag_compliance,optional" json:"tag_compliance"`
	AllocationConfidence float64 `hcl:"allocation_confidence,optional" json:"allocation_confidence"`
	SharedPoolHealth     float64 `hcl:"shared_pool_health,optional" json:"shared_pool_health"`
	PolicyCompliance     float64 `hcl:"policy_compliance,optional" json:"policy_compliance"`
	IngestionReliability float64 `hcl:"ingestion_reliability,optional" json:"ingestion_reliability"`
	CostBasisConsistency float64 `hcl:"cost_basis_consistency,optional" json:"cost_basis_consistency"`
	DenominatorCoverage  float64 `hcl:"denominator_coverage,optional" json:"denominator_coverage"`
}

// Gates holds the hard-gate thresholds and caps. Gates only ever lower the
// composite score.
type Gates struct {
	FreshnessLagHours      float64 `hcl:"freshness_lag_hours,optional" json:"freshness_lag_hours"`
	FreshnessCap           float64 `hcl:"freshness_cap,optional" json:"freshness_cap"`
	MissingDays            int     `hcl:"missing_days,optional" json:"missing_days"`
	MissingDaysCap         float64 `hcl:"missing_days_cap,optional" json:"missing_days_cap"`
	DominantCurrencyPct    float64 `hcl:"dominant_currency_pct,optional" json:"dominant_currency_pct"`
	DominantCurrencyCap    float64 `hcl:"dominant_currency_cap,optional" json:"dominant_currency_cap"`
	AccountCompletenessPct float64 `hcl:"account_completeness_pct,optional" json:"account_completeness_pct"`
	AccountCompletenessCap float64 `hcl:"account_completeness_cap,optional" json:"account_completeness_cap"`
}

// Default returns the built-in governance rule set.
func Default() *Policy {
	return &Policy{
		RequiredTags: []string{"owner", "costcenter", "environment", "project"},
		EnvironmentValues: []string{
			"prod", "production", "live",
			"dev", "development",
			"staging", "test", "qa", "sandbox",
			"non-prod", "nonprod",
		},
		RestrictedRegionPatterns: []string{"gov", "cn-"},
		Weights:                  DefaultWeights(),
		Gates:                    DefaultGates(),
	}
}

// DefaultWeights returns the fixed weighting model.
func DefaultWeights() *Weights {
	return &Weights{
		TagCompliance:        0.18,
		AllocationConfidence: 0.18,
		SharedPoolHealth:     0.14,
		PolicyCompliance:     0.15,
		IngestionReliability: 0.15,
		CostBasisConsistency: 0.10,
		DenominatorCoverage:  0.10,
	}
}

// DefaultGates returns the built-in hard-gate thresholds.
func DefaultGates() *Gates {
	return &Gates{
		FreshnessLagHours:      24,
		FreshnessCap:           60,
		MissingDays:            3,
		MissingDaysCap:         55,
		DominantCurrencyPct:    99,
		DominantCurrencyCap:    50,
		AccountCompletenessPct: 90,
		AccountCompletenessCap: 60,
	}
}

// Normalize fills missing sections with defaults so a partially specified
// policy file behaves predictably.
func (p *Policy) Normalize() {
	def := Default()
	if len(p.RequiredTags) == 0 {
		p.RequiredTags = def.RequiredTags
	}
	if len(p.EnvironmentValues) == 0 {
		p.EnvironmentValues = def.EnvironmentValues
	}
	if len(p.RestrictedRegionPatterns) == 0 {
		p.RestrictedRegionPatterns = def.RestrictedRegionPatterns
	}
	if p.Weights == nil || weightSum(p.Weights) == 0 {
		p.Weights = def.Weights
	}
	if p.Gates == nil {
		p.Gates = def.Gates
	} else {
		fillGates(p.Gates, def.Gates)
	}
}

func weightSum(w *Weights) float64 {
	return w.TagCompliance + w.AllocationConfidence + w.SharedPoolHealth +
		w.PolicyCompliance + w.IngestionReliability + w.CostBasisConsistency +
		w.DenominatorCoverage
}

// fillGates backfills unset gate thresholds so a partial gates block in a
// policy file keeps the remaining defaults.
func fillGates(g, def *Gates) {
	if g.FreshnessLagHours == 0 {
		g.FreshnessLagHours = def.FreshnessLagHours
	}
	if g.FreshnessCap == 0 {
		g.FreshnessCap = def.FreshnessCap
	}
	if g.MissingDays == 0 {
		g.MissingDays = def.MissingDays
	}
	if g.MissingDaysCap == 0 {
		g.MissingDaysCap = def.MissingDaysCap
	}
	if g.DominantCurrencyPct == 0 {
		g.DominantCurrencyPct = def.DominantCurrencyPct
	}
	if g.DominantCurrencyCap == 0 {
		g.DominantCurrencyCap = def.DominantCurrencyCap
	}
	if g.AccountCompletenessPct == 0 {
		g.AccountCompletenessPct = def.AccountCompletenessPct
	}
	if g.AccountCompletenessCap == 0 {
		g.AccountCompletenessCap = def.AccountCompletenessCap
	}
}

// MandatoryTagKeys returns the union of the configured required tags with
// the four baseline keys, lower-cased, order-preserving.
func (p *Policy) MandatoryTagKeys() []string {
	seen := make(map[string]bool)
	var keys []string
	add := func(k string) {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || seen[k] {
			return
		}
		seen[k] = true
		keys = append(keys, k)
	}
	for _, k := range p.RequiredTags {
		add(k)
	}
	for _, k := range []string{"owner", "costcenter", "environment", "project"} {
		add(k)
	}
	return keys
}

// IsValidEnvironment reports whether a value belongs to the closed set of
// known environment names.
func (p *Policy) IsValidEnvironment(value string) bool {
	v := strings.ToLower(strings.TrimSpace(value))
	for _, allowed := range p.EnvironmentValues {
		if v == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

// IsRestrictedRegion reports whether a region name matches a restricted
// pattern.
func (p *Policy) IsRestrictedRegion(region string) bool {
	r := strings.ToLower(region)
	for _, pattern := range p.RestrictedRegionPatterns {
		if pattern != "" && strings.Contains(r, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}

var costCenterPattern = regexp.MustCompile(`^[a-zA-Z0-9_/-]{2,64}$`)

// IsValidOwner reports whether an owner value passes the minimum-length rule.
func IsValidOwner(value string) bool {
	return len(strings.TrimSpace(value)) >= 3
}

// IsValidCostCenter reports whether a cost-center value matches the
// accepted identifier format.
func IsValidCostCenter(value string) bool {
	return costCenterPattern.MatchString(strings.TrimSpace(value))
}
