// Package aggregate implements the single-pass streaming aggregation over
// normalized billing rows. The fold produces one immutable Accumulator;
// nothing is re-opened after the pass ends.
package aggregate

import (
	"time"

	"github.com/shopspring/decimal"
)

// DayBucket holds running totals for one charge date.
type DayBucket struct {
	Date        string
	Total       decimal.Decimal
	Tagged      decimal.Decimal
	Allocated   decimal.Decimal
	Shared      decimal.Decimal
	Violated    decimal.Decimal
	DenValid    decimal.Decimal
	DenMismatch decimal.Decimal
	Credit      decimal.Decimal
	Commitment  decimal.Decimal
	Accounts    map[string]struct{}
}

// MonthBucket holds running totals for one charge month, including the
// per-service shared-cost sub-map used for pool growth attribution.
type MonthBucket struct {
	Month           string
	Total           decimal.Decimal
	Unallocated     decimal.Decimal
	Shared          decimal.Decimal
	SharedByService map[string]decimal.Decimal
}

// TagKeyStat accumulates spend where a tracked tag key is present and
// spend where it is present but invalid.
type TagKeyStat struct {
	Present decimal.Decimal
	Invalid decimal.Decimal
}

// Violation is one policy breach on one row.
type Violation struct {
	Severity string          `json:"severity"`
	PolicyID string          `json:"policy_id"`
	Spend    decimal.Decimal `json:"spend"`
	Date     string          `json:"date"`
	Owner    string          `json:"owner,omitempty"`
	Service  string          `json:"service,omitempty"`
	Account  string          `json:"account,omitempty"`
}

// Accumulator is the full output of one aggregation pass.
type Accumulator struct {
	RowCount int

	Total      decimal.Decimal
	Tagged     decimal.Decimal
	Allocated  decimal.Decimal
	Shared     decimal.Decimal
	Leakage    decimal.Decimal
	Violated   decimal.Decimal
	Credit     decimal.Decimal
	Commitment decimal.Decimal

	DenValid    decimal.Decimal
	DenMissing  decimal.Decimal
	DenMismatch decimal.Decimal
	DenStale    decimal.Decimal

	LateSpend decimal.Decimal
	LateRows  int

	ByCurrency  map[string]decimal.Decimal
	ByCostBasis map[string]decimal.Decimal

	// UnitSpend maps service -> consumed unit -> denominator-valid spend,
	// used for unit-economics alignment.
	UnitSpend map[string]map[string]decimal.Decimal

	Days   map[string]*DayBucket
	Months map[string]*MonthBucket

	TagStats map[string]*TagKeyStat

	Violations          []Violation
	ViolationsByOwner   map[string]decimal.Decimal
	ViolationsByService map[string]decimal.Decimal
	ViolationsByAccount map[string]decimal.Decimal

	// OwnerSpend maps account -> month -> owner -> spend; it backs the
	// allocation churn/stability analysis.
	OwnerSpend map[string]map[string]map[string]decimal.Decimal

	Fingerprints  map[string]int
	DuplicateRows int

	LastIngestedAt time.Time
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		ByCurrency:          make(map[string]decimal.Decimal),
		ByCostBasis:         make(map[string]decimal.Decimal),
		UnitSpend:           make(map[string]map[string]decimal.Decimal),
		Days:                make(map[string]*DayBucket),
		Months:              make(map[string]*MonthBucket),
		TagStats:            make(map[string]*TagKeyStat),
		ViolationsByOwner:   make(map[string]decimal.Decimal),
		ViolationsByService: make(map[string]decimal.Decimal),
		ViolationsByAccount: make(map[string]decimal.Decimal),
		OwnerSpend:          make(map[string]map[string]map[string]decimal.Decimal),
		Fingerprints:        make(map[string]int),
	}
}

func (a *Accumulator) day(date string) *DayBucket {
	b, ok := a.Days[date]
	if !ok {
		b = &DayBucket{Date: date, Accounts: make(map[string]struct{})}
		a.Days[date] = b
	}
	return b
}

func (a *Accumulator) month(month string) *MonthBucket {
	b, ok := a.Months[month]
	if !ok {
		b = &MonthBucket{Month: month, SharedByService: make(map[string]decimal.Decimal)}
		a.Months[month] = b
	}
	return b
}

func (a *Accumulator) tagStat(key string) *TagKeyStat {
	s, ok := a.TagStats[key]
	if !ok {
		s = &TagKeyStat{}
		a.TagStats[key] = s
	}
	return s
}
