package aggregate

import (
	"fmt"

	"github.com/shopspring/decimal"

	"billing-trust/core/billing"
	"billing-trust/core/policy"
)

// Fold runs the single forward pass over all normalized rows. There is no
// second pass and no ordering requirement on the input.
func Fold(rows []billing.NormalizedRow, pol *policy.Policy) *Accumulator {
	if pol == nil {
		pol = policy.Default()
	}
	acc := NewAccumulator()
	mandatory := pol.MandatoryTagKeys()
	violatedSpendSeen := make(map[string]bool)

	for i, row := range rows {
		acc.RowCount++
		abs := row.AbsCost

		// Totals by currency and cost-basis mode.
		acc.Total = acc.Total.Add(abs)
		acc.ByCurrency[row.Currency] = acc.ByCurrency[row.Currency].Add(abs)
		acc.ByCostBasis[row.CostBasisMode] = acc.ByCostBasis[row.CostBasisMode].Add(abs)

		// Lateness and denominator counters.
		if row.Late {
			acc.LateRows++
			acc.LateSpend = acc.LateSpend.Add(abs)
		}
		switch {
		case row.DenominatorValid:
			acc.DenValid = acc.DenValid.Add(abs)
			if row.Late {
				acc.DenStale = acc.DenStale.Add(abs)
			}
			units, ok := acc.UnitSpend[row.Service]
			if !ok {
				units = make(map[string]decimal.Decimal)
				acc.UnitSpend[row.Service] = units
			}
			units[row.Unit] = units[row.Unit].Add(abs)
		case row.DenominatorMismatch:
			acc.DenMismatch = acc.DenMismatch.Add(abs)
		default:
			acc.DenMissing = acc.DenMissing.Add(abs)
		}

		// Required-tag check decides "tagged".
		tagged := true
		for _, key := range mandatory {
			if !row.HasTag(key) {
				tagged = false
				break
			}
		}
		if tagged {
			acc.Tagged = acc.Tagged.Add(abs)
		}

		// Allocation, shared pool, leakage.
		if row.Allocated {
			acc.Allocated = acc.Allocated.Add(abs)
		}
		if row.IsShared {
			acc.Shared = acc.Shared.Add(abs)
		}
		if !row.HasOwner && !row.IsShared {
			acc.Leakage = acc.Leakage.Add(abs)
		}
		if row.IsCredit {
			acc.Credit = acc.Credit.Add(abs)
		}
		if row.IsCommitment {
			acc.Commitment = acc.Commitment.Add(abs)
		}

		// Per-tracked-key spend and invalid-value accumulation.
		for _, key := range policy.TrackedTagKeys {
			tt := row.TrackedTags[key]
			if !tt.Present {
				continue
			}
			stat := acc.tagStat(key)
			stat.Present = stat.Present.Add(abs)
			if !tt.Valid {
				stat.Invalid = stat.Invalid.Add(abs)
			}
		}

		// Policy violations, spend de-duplicated so a row tripping several
		// policies contributes to the violated total once.
		violated := foldViolations(acc, violatedSpendSeen, i, row, pol)

		// Day bucket.
		d := acc.day(row.DateKey)
		d.Total = d.Total.Add(abs)
		if tagged {
			d.Tagged = d.Tagged.Add(abs)
		}
		if row.Allocated {
			d.Allocated = d.Allocated.Add(abs)
		}
		if row.IsShared {
			d.Shared = d.Shared.Add(abs)
		}
		if violated {
			d.Violated = d.Violated.Add(abs)
		}
		if row.DenominatorValid {
			d.DenValid = d.DenValid.Add(abs)
		}
		if row.DenominatorMismatch {
			d.DenMismatch = d.DenMismatch.Add(abs)
		}
		if row.IsCredit {
			d.Credit = d.Credit.Add(abs)
		}
		if row.IsCommitment {
			d.Commitment = d.Commitment.Add(abs)
		}
		if row.Account != "" {
			d.Accounts[row.Account] = struct{}{}
		}

		// Month bucket.
		m := acc.month(row.MonthKey)
		m.Total = m.Total.Add(abs)
		if !row.Allocated {
			m.Unallocated = m.Unallocated.Add(abs)
		}
		if row.IsShared {
			m.Shared = m.Shared.Add(abs)
			m.SharedByService[row.Service] = m.SharedByService[row.Service].Add(abs)
		}

		// Ownership mapping by account and month.
		if row.Account != "" && row.HasOwner && row.MonthKey != billing.UnknownDateKey {
			months, ok := acc.OwnerSpend[row.Account]
			if !ok {
				months = make(map[string]map[string]decimal.Decimal)
				acc.OwnerSpend[row.Account] = months
			}
			owners, ok := months[row.MonthKey]
			if !ok {
				owners = make(map[string]decimal.Decimal)
				months[row.MonthKey] = owners
			}
			owners[row.Owner] = owners[row.Owner].Add(abs)
		}

		// Duplicate fingerprints count extra occurrences only.
		acc.Fingerprints[row.Fingerprint]++
		if acc.Fingerprints[row.Fingerprint] > 1 {
			acc.DuplicateRows++
		}

		// Last ingestion timestamp is the max creation time seen.
		if row.CreatedAt.After(acc.LastIngestedAt) {
			acc.LastIngestedAt = row.CreatedAt
		}
	}

	return acc
}

// foldViolations evaluates every policy rule independently and appends one
// violation record per tripped rule. The violated spend total takes this
// row's cost at most once, keyed by (rowIndex, account, service, date).
func foldViolations(acc *Accumulator, seen map[string]bool, rowIndex int, row billing.NormalizedRow, pol *policy.Policy) bool {
	type rule struct {
		id       string
		severity string
		tripped  bool
	}
	rules := []rule{
		{policy.RuleMandatoryTags, policy.SeverityCritical,
			!row.HasOwner || !row.HasCostCenter || !row.HasEnvironment || !row.HasProject},
		{policy.RuleRestrictedRegion, policy.SeverityHigh, pol.IsRestrictedRegion(row.Region)},
		{policy.RuleOrphanSharedCost, policy.SeverityMedium, row.IsShared && !row.HasOwner},
		{policy.RuleNonPositiveCost, policy.SeverityLow, !row.Cost.IsPositive()},
	}

	spendKey := fmt.Sprintf("%d|%s|%s|%s", rowIndex, row.Account, row.Service, row.DateKey)
	violated := false
	for _, r := range rules {
		if !r.tripped {
			continue
		}
		violated = true
		acc.Violations = append(acc.Violations, Violation{
			Severity: r.severity,
			PolicyID: r.id,
			Spend:    row.AbsCost,
			Date:     row.DateKey,
			Owner:    row.Owner,
			Service:  row.Service,
			Account:  row.Account,
		})
		if !seen[spendKey] {
			seen[spendKey] = true
			acc.Violated = acc.Violated.Add(row.AbsCost)
			acc.ViolationsByOwner[row.Owner] = acc.ViolationsByOwner[row.Owner].Add(row.AbsCost)
			acc.ViolationsByService[row.Service] = acc.ViolationsByService[row.Service].Add(row.AbsCost)
			acc.ViolationsByAccount[row.Account] = acc.ViolationsByAccount[row.Account].Add(row.AbsCost)
		}
	}
	return violated
}
