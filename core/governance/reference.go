package governance

// Reference holds the row-independent metadata served with every report:
// the KPI dictionary, the weighting model, the drift-signal catalogue and
// the root-cause playbooks.
type Reference struct {
	KPIs         []KPIDefinition    `json:"kpis"`
	Weights      map[string]float64 `json:"weights"`
	DriftSignals []DriftSignalDef   `json:"drift_signals"`
	Playbooks    []Playbook         `json:"playbooks"`
}

// KPIDefinition documents one sub-score for report consumers.
type KPIDefinition struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// DriftSignalDef documents one drift signal the cost-basis section can emit.
type DriftSignalDef struct {
	Signal      string `json:"signal"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

// Playbook maps a failing dimension to its usual root causes and fix.
type Playbook struct {
	Dimension  string   `json:"dimension"`
	RootCauses []string `json:"root_causes"`
	Remedy     string   `json:"remedy"`
}

// BuildReference returns the static reference tables.
func BuildReference() Reference {
	return Reference{
		KPIs: []KPIDefinition{
			{"tag_compliance", "Tag compliance", "Spend share carrying all mandatory tags, discounted by invalid tag values."},
			{"allocation_confidence", "Allocation confidence", "Spend share mapped to an owner or cost center, with ownership churn and unallocated trend factored in."},
			{"shared_pool_health", "Shared-pool health", "Stability of the shared cost pool: month-over-month drift, leakage and daily variance."},
			{"policy_compliance", "Policy compliance", "Spend share free of governance policy violations."},
			{"ingestion_reliability", "Ingestion reliability", "Freshness, gap-free daily coverage, duplicate rate and account completeness of the billing feed."},
			{"cost_basis_consistency", "Cost-basis consistency", "Single-currency, single-basis-mode discipline plus credit and commitment stability."},
			{"denominator_coverage", "Denominator coverage", "Spend share carrying a valid usage quantity and unit, aligned to each service's dominant unit."},
		},
		Weights: map[string]float64{
			"tag_compliance":         0.18,
			"allocation_confidence":  0.18,
			"shared_pool_health":     0.14,
			"policy_compliance":      0.15,
			"ingestion_reliability":  0.15,
			"cost_basis_consistency": 0.10,
			"denominator_coverage":   0.10,
		},
		DriftSignals: []DriftSignalDef{
			{SignalBasisModeDrift, "high", "Three or more cost-basis modes observed in one scope."},
			{SignalCurrencyMix, "medium", "Dominant currency covers less than 99% of spend."},
			{SignalCreditVolatility, "medium", "Daily credit share varies widely across the scope."},
			{SignalCommitmentVolatility, "low", "Daily commitment share varies widely across the scope."},
		},
		Playbooks: []Playbook{
			{
				Dimension:  "tag_compliance",
				RootCauses: []string{"provisioning templates without mandatory tags", "tag values failing format rules"},
				Remedy:     "Enforce mandatory tags at provisioning time and validate tag values in CI.",
			},
			{
				Dimension:  "allocation_confidence",
				RootCauses: []string{"accounts without a stable owning team", "allocation rules rewritten mid-quarter"},
				Remedy:     "Pin one dominant owner per account and change allocation rules only at period boundaries.",
			},
			{
				Dimension:  "shared_pool_health",
				RootCauses: []string{"new platform services landing in the shared pool", "shared cost without an owning chargeback rule"},
				Remedy:     "Cap the shared pool share and assign chargeback rules to every pooled service.",
			},
			{
				Dimension:  "ingestion_reliability",
				RootCauses: []string{"stalled export pipeline", "re-ingested files creating duplicates", "accounts missing from the feed"},
				Remedy:     "Alert on export lag over 24 hours and reconcile the account directory against the feed weekly.",
			},
			{
				Dimension:  "cost_basis_consistency",
				RootCauses: []string{"mixed amortized and actual exports in one scope", "multi-currency uploads without conversion"},
				Remedy:     "Export one cost basis per scope and convert to a single billing currency upstream.",
			},
			{
				Dimension:  "denominator_coverage",
				RootCauses: []string{"usage quantity or unit missing from the export", "unit renames breaking service alignment"},
				Remedy:     "Require quantity and unit on every usage row and version unit renames explicitly.",
			},
		},
	}
}
