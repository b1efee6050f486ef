package scoring

import (
	"billing-trust/core/policy"
)

// Gate identifiers for the hard overrides applied to the composite score.
const (
	GateFreshness           = "freshness_lag"
	GateMissingDays         = "missing_days"
	GateDominantCurrency    = "dominant_currency"
	GateAccountCompleteness = "account_completeness"
)

// Confidence labels derived from the composite score.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// Gate records one hard override that fired and capped the composite.
type Gate struct {
	ID        string  `json:"id"`
	Threshold float64 `json:"threshold"`
	Observed  float64 `json:"observed"`
	Cap       float64 `json:"cap"`
}

// CompositeResult is the final trust score with the gates that capped it.
type CompositeResult struct {
	Score        float64 `json:"score"`
	WeightedBase float64 `json:"weighted_base"`
	Gates        []Gate  `json:"gates,omitempty"`
}

// Composite computes the weighted trust score and applies the hard gates.
// A gate never raises the score: each fired gate caps the running score at
// its configured ceiling.
func Composite(s SubScores, in Inputs, w *policy.Weights, g *policy.Gates) CompositeResult {
	if w == nil {
		w = policy.DefaultWeights()
	}
	if g == nil {
		g = policy.DefaultGates()
	}

	base := s.TagCompliance*w.TagCompliance +
		s.AllocationConfidence*w.AllocationConfidence +
		s.SharedPoolHealth*w.SharedPoolHealth +
		s.PolicyCompliance*w.PolicyCompliance +
		s.IngestionReliability*w.IngestionReliability +
		s.CostBasisConsistency*w.CostBasisConsistency +
		s.DenominatorCoverage*w.DenominatorCoverage
	base = round(clamp(base))

	result := CompositeResult{Score: base, WeightedBase: base}

	d := in.Metrics
	result.apply(Gate{
		ID:        GateFreshness,
		Threshold: g.FreshnessLagHours,
		Observed:  d.FreshnessLagHours,
		Cap:       g.FreshnessCap,
	}, d.FreshnessLagHours > g.FreshnessLagHours)
	result.apply(Gate{
		ID:        GateMissingDays,
		Threshold: float64(g.MissingDays),
		Observed:  float64(d.MissingDays30),
		Cap:       g.MissingDaysCap,
	}, d.MissingDays30 >= g.MissingDays)
	result.apply(Gate{
		ID:        GateDominantCurrency,
		Threshold: g.DominantCurrencyPct,
		Observed:  d.DominantCurrencyPct,
		Cap:       g.DominantCurrencyCap,
	}, d.DominantCurrencyPct < g.DominantCurrencyPct)
	result.apply(Gate{
		ID:        GateAccountCompleteness,
		Threshold: g.AccountCompletenessPct,
		Observed:  s.CompletenessPct,
		Cap:       g.AccountCompletenessCap,
	}, s.CompletenessPct < g.AccountCompletenessPct)

	return result
}

// apply records the gate and caps the score when the condition holds.
func (r *CompositeResult) apply(gate Gate, fired bool) {
	if !fired {
		return
	}
	r.Gates = append(r.Gates, gate)
	if r.Score > gate.Cap {
		r.Score = gate.Cap
	}
}

// ConfidenceLevel maps a trust score onto a confidence label.
func ConfidenceLevel(score float64) string {
	switch {
	case score >= 90:
		return ConfidenceHigh
	case score >= 75:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}
