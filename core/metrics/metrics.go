// Package metrics turns accumulated sums into bounded percentages and
// rates. Every share-of-total is clamped to [0,100] and a zero denominator
// always yields 0, never NaN or Inf.
package metrics

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"billing-trust/core/aggregate"
	"billing-trust/core/policy"
)

// UnknownFreshnessHours is reported when no ingestion timestamp was
// observed at all; it is pessimistic enough to trip every freshness tier.
const UnknownFreshnessHours = 24 * 365

// Round2 rounds to 2 decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Clamp100 bounds v to [0, 100].
func Clamp100(v float64) float64 {
	return Clamp(v, 0, 100)
}

// CostShare returns part as a percentage of whole, rounded to 2 decimals.
// A zero whole yields 0.
func CostShare(part, whole decimal.Decimal) float64 {
	if whole.IsZero() {
		return 0
	}
	share, _ := part.Div(whole).Mul(decimal.NewFromInt(100)).Float64()
	return Round2(Clamp100(share))
}

// RowShare returns part as a percentage of whole row counts.
func RowShare(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return Round2(Clamp100(float64(part) / float64(whole) * 100))
}

// CoefficientOfVariation returns stddev/|mean| for a sample series; it is
// 0 for fewer than 2 samples or a zero mean.
func CoefficientOfVariation(samples []float64) float64 {
	if len(samples) < 2 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s
	}
	mean := sum / float64(len(samples))
	if mean == 0 {
		return 0
	}
	var variance float64
	for _, s := range samples {
		variance += (s - mean) * (s - mean)
	}
	variance /= float64(len(samples))
	return math.Sqrt(variance) / math.Abs(mean)
}

// Derived is the full metric set computed from one accumulator.
type Derived struct {
	TaggedPct      float64
	UntaggedPct    float64
	AllocatedPct   float64
	UnallocatedPct float64
	SharedPct      float64
	LeakagePct     float64

	DenCoveragePct float64
	DenMissingPct  float64
	DenMismatchPct float64
	DenStalePct    float64
	AlignmentPct   float64

	DuplicatePct  float64
	ViolatedPct   float64
	CreditPct     float64
	CommitmentPct float64
	LatePct       float64

	// Month-over-month drift in percentage points; each month's share is
	// computed against that month's own total.
	UnallocMoMDeltaPP float64
	SharedMoMDeltaPP  float64

	DailySharedShareCV     float64
	DailyCreditShareCV     float64
	DailyCommitmentShareCV float64

	FreshnessLagHours float64
	MissingDays30     int
	Accounts30        int

	DominantCurrency    string
	DominantCurrencyPct float64
	CostBasisModeCount  int

	InvalidValueWeighted float64
	RuleChurnRatePct     float64
	MappingStabilityPct  float64
	AccountCount         int
}

// Derive computes the full metric set. The trailing 30-day window is
// anchored at the max observed charge date, never at "now"; "now" is used
// only for the freshness lag.
func Derive(acc *aggregate.Accumulator, now time.Time) Derived {
	d := Derived{
		TaggedPct:      CostShare(acc.Tagged, acc.Total),
		AllocatedPct:   CostShare(acc.Allocated, acc.Total),
		SharedPct:      CostShare(acc.Shared, acc.Total),
		LeakagePct:     CostShare(acc.Leakage, acc.Total),
		DenCoveragePct: CostShare(acc.DenValid, acc.Total),
		DenMissingPct:  CostShare(acc.DenMissing, acc.Total),
		DenMismatchPct: CostShare(acc.DenMismatch, acc.Total),
		DenStalePct:    CostShare(acc.DenStale, acc.DenValid),
		ViolatedPct:    CostShare(acc.Violated, acc.Total),
		CreditPct:      CostShare(acc.Credit, acc.Total),
		CommitmentPct:  CostShare(acc.Commitment, acc.Total),
		LatePct:        CostShare(acc.LateSpend, acc.Total),
		DuplicatePct:   RowShare(acc.DuplicateRows, acc.RowCount),
	}
	d.UntaggedPct = Round2(math.Max(0, 100-d.TaggedPct))
	d.UnallocatedPct = Round2(math.Max(0, 100-d.AllocatedPct))

	d.AlignmentPct = alignment(acc)
	d.UnallocMoMDeltaPP, d.SharedMoMDeltaPP = monthDrift(acc)
	d.DailySharedShareCV, d.DailyCreditShareCV, d.DailyCommitmentShareCV = dailyShareCVs(acc)
	d.MissingDays30, d.Accounts30 = trailingWindow(acc)

	if acc.LastIngestedAt.IsZero() {
		d.FreshnessLagHours = UnknownFreshnessHours
	} else {
		d.FreshnessLagHours = Round2(math.Max(0, now.Sub(acc.LastIngestedAt).Hours()))
	}

	d.DominantCurrency, d.DominantCurrencyPct = dominantCurrency(acc)
	d.CostBasisModeCount = len(acc.ByCostBasis)
	d.InvalidValueWeighted = invalidValueWeighted(acc)
	d.RuleChurnRatePct, d.MappingStabilityPct, d.AccountCount = ownershipStability(acc)

	return d
}

// alignment is the spend-weighted share of denominator-valid spend whose
// consumed unit matches its service's dominant unit.
func alignment(acc *aggregate.Accumulator) float64 {
	if acc.DenValid.IsZero() {
		return 0
	}
	aligned := decimal.Zero
	for _, units := range acc.UnitSpend {
		dominant := decimal.Zero
		for _, spend := range units {
			if spend.GreaterThan(dominant) {
				dominant = spend
			}
		}
		aligned = aligned.Add(dominant)
	}
	return CostShare(aligned, acc.DenValid)
}

// monthDrift computes current-minus-previous-month deltas for the
// unallocated and shared shares. Fewer than two known months yields 0.
func monthDrift(acc *aggregate.Accumulator) (unalloc, shared float64) {
	months := knownMonths(acc)
	if len(months) < 2 {
		return 0, 0
	}
	prev := acc.Months[months[len(months)-2]]
	curr := acc.Months[months[len(months)-1]]

	unalloc = Round2(CostShare(curr.Unallocated, curr.Total) - CostShare(prev.Unallocated, prev.Total))
	shared = Round2(CostShare(curr.Shared, curr.Total) - CostShare(prev.Shared, prev.Total))
	return unalloc, shared
}

func knownMonths(acc *aggregate.Accumulator) []string {
	var months []string
	for m := range acc.Months {
		if m != "unknown" {
			months = append(months, m)
		}
	}
	sort.Strings(months)
	return months
}

// dailyShareCVs computes coefficient-of-variation series over daily
// shared, credit and commitment spend shares.
func dailyShareCVs(acc *aggregate.Accumulator) (sharedCV, creditCV, commitmentCV float64) {
	var dates []string
	for date := range acc.Days {
		if date != "unknown" {
			dates = append(dates, date)
		}
	}
	sort.Strings(dates)

	var sharedSeries, creditSeries, commitmentSeries []float64
	for _, date := range dates {
		day := acc.Days[date]
		sharedSeries = append(sharedSeries, CostShare(day.Shared, day.Total))
		creditSeries = append(creditSeries, CostShare(day.Credit, day.Total))
		commitmentSeries = append(commitmentSeries, CostShare(day.Commitment, day.Total))
	}
	return CoefficientOfVariation(sharedSeries),
		CoefficientOfVariation(creditSeries),
		CoefficientOfVariation(commitmentSeries)
}

// trailingWindow counts missing days and distinct accounts in the 30-day
// window ending at the max observed date. Days before the first observed
// date are not expected and do not count as missing.
func trailingWindow(acc *aggregate.Accumulator) (missingDays, accounts int) {
	var minDate, maxDate time.Time
	for date := range acc.Days {
		t, err := time.Parse("2006-01-02", date)
		if err != nil {
			continue
		}
		if minDate.IsZero() || t.Before(minDate) {
			minDate = t
		}
		if t.After(maxDate) {
			maxDate = t
		}
	}
	if maxDate.IsZero() {
		return 0, 0
	}

	windowStart := maxDate.AddDate(0, 0, -29)
	if minDate.After(windowStart) {
		windowStart = minDate
	}

	seen := make(map[string]struct{})
	for t := windowStart; !t.After(maxDate); t = t.AddDate(0, 0, 1) {
		key := t.Format("2006-01-02")
		day, ok := acc.Days[key]
		if !ok {
			missingDays++
			continue
		}
		for account := range day.Accounts {
			seen[account] = struct{}{}
		}
	}
	return missingDays, len(seen)
}

// dominantCurrency returns the highest-spend currency and its share.
func dominantCurrency(acc *aggregate.Accumulator) (string, float64) {
	var currency string
	top := decimal.Zero
	for c, spend := range acc.ByCurrency {
		if spend.GreaterThan(top) || (spend.Equal(top) && (currency == "" || c < currency)) {
			currency = c
			top = spend
		}
	}
	return currency, CostShare(top, acc.Total)
}

// invalidValueWeighted is the mean, across all tracked tag keys, of the
// invalid-spend share of present spend. Present spend is floored at 1 to
// avoid division by zero, so a key seen on no row contributes 0.
func invalidValueWeighted(acc *aggregate.Accumulator) float64 {
	one := decimal.NewFromInt(1)
	var sum float64
	for _, key := range policy.TrackedTagKeys {
		stat, ok := acc.TagStats[key]
		if !ok {
			continue
		}
		present := stat.Present
		if present.LessThan(one) {
			present = one
		}
		share, _ := stat.Invalid.Div(present).Mul(decimal.NewFromInt(100)).Float64()
		sum += Clamp100(share)
	}
	return Round2(sum / float64(len(policy.TrackedTagKeys)))
}

// ownershipStability derives the rule churn rate (dominant-owner
// transitions across consecutive months per account) and the mapping
// stability share (accounts with a single dominant owner throughout).
func ownershipStability(acc *aggregate.Accumulator) (churnPct, stabilityPct float64, accountCount int) {
	accountCount = len(acc.OwnerSpend)
	if accountCount == 0 {
		return 0, 100, 0
	}

	transitions := 0
	stable := 0
	for _, months := range acc.OwnerSpend {
		var keys []string
		for m := range months {
			keys = append(keys, m)
		}
		sort.Strings(keys)

		owners := make(map[string]struct{})
		prevDominant := ""
		for _, m := range keys {
			dom := dominantOwner(months[m])
			owners[dom] = struct{}{}
			if prevDominant != "" && dom != prevDominant {
				transitions++
			}
			prevDominant = dom
		}
		if len(owners) == 1 {
			stable++
		}
	}

	churnPct = Round2(float64(transitions) / float64(accountCount) * 100)
	stabilityPct = Round2(float64(stable) / float64(accountCount) * 100)
	return churnPct, stabilityPct, accountCount
}

// dominantOwner picks the highest-spend owner for one account-month;
// ties break to the lexicographically smallest owner for determinism.
func dominantOwner(owners map[string]decimal.Decimal) string {
	var dominant string
	top := decimal.Zero
	for owner, spend := range owners {
		switch {
		case spend.GreaterThan(top):
			dominant = owner
			top = spend
		case spend.Equal(top) && (dominant == "" || owner < dominant):
			dominant = owner
		}
	}
	return dominant
}
