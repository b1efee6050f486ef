// Package billing defines the raw billing-fact shape accepted at the
// boundary and its canonical normalized form. Everything downstream of the
// normalizer operates on NormalizedRow only.
package billing

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RawRow is one billing-fact record as fetched from the store or an upload.
// Field names may appear in PascalCase (FOCUS-style columns) or lowercase
// aliases; resolution happens through the alias tables below.
type RawRow map[string]any

// Logical field names resolved from raw rows.
const (
	FieldBilledCost           = "billedCost"
	FieldChargePeriodStart    = "chargePeriodStart"
	FieldCreatedAt            = "createdAt"
	FieldServiceName          = "serviceName"
	FieldRegionName           = "regionName"
	FieldSubAccountID         = "subAccountId"
	FieldSubAccountName       = "subAccountName"
	FieldResourceID           = "resourceId"
	FieldTags                 = "tags"
	FieldConsumedQuantity     = "consumedQuantity"
	FieldConsumedUnit         = "consumedUnit"
	FieldChargeFrequency      = "chargeFrequency"
	FieldChargeCategory       = "chargeCategory"
	FieldChargeClass          = "chargeClass"
	FieldChargeDescription    = "chargeDescription"
	FieldCommitmentDiscountID = "commitmentDiscountId"
	FieldBillingCurrency      = "billingCurrency"
	FieldBillingAccountID     = "billingAccountId"
	FieldUploadID             = "uploadId"
	FieldCostBasis            = "costBasis"
)

// fieldAliases is the ordered accessor table per logical field. Resolution
// is strictly first-match-wins.
var fieldAliases = map[string][]string{
	FieldBilledCost:           {"BilledCost", "billedcost", "billed_cost", "cost"},
	FieldChargePeriodStart:    {"ChargePeriodStart", "chargeperiodstart", "charge_period_start", "usagedate", "date"},
	FieldCreatedAt:            {"CreatedAt", "createdAt", "createdat", "created_at", "ingestedat"},
	FieldServiceName:          {"ServiceName", "servicename", "service_name", "service"},
	FieldRegionName:           {"RegionName", "regionname", "region_name", "region"},
	FieldSubAccountID:         {"SubAccountId", "subaccountid", "sub_account_id", "accountid", "account_id"},
	FieldSubAccountName:       {"SubAccountName", "subaccountname", "accountname"},
	FieldResourceID:           {"ResourceId", "resourceid", "resource_id"},
	FieldTags:                 {"Tags", "tags"},
	FieldConsumedQuantity:     {"ConsumedQuantity", "consumedquantity", "consumed_quantity", "usageamount"},
	FieldConsumedUnit:         {"ConsumedUnit", "consumedunit", "consumed_unit", "usageunit"},
	FieldChargeFrequency:      {"ChargeFrequency", "chargefrequency", "charge_frequency"},
	FieldChargeCategory:       {"ChargeCategory", "chargecategory", "charge_category"},
	FieldChargeClass:          {"ChargeClass", "chargeclass", "charge_class"},
	FieldChargeDescription:    {"ChargeDescription", "chargedescription", "charge_description"},
	FieldCommitmentDiscountID: {"CommitmentDiscountId", "commitmentdiscountid", "commitment_discount_id"},
	FieldBillingCurrency:      {"BillingCurrency", "billingcurrency", "billing_currency", "currency"},
	FieldBillingAccountID:     {"BillingAccountId", "billingaccountid", "billing_account_id"},
	FieldUploadID:             {"UploadId", "uploadid", "upload_id"},
	FieldCostBasis:            {"CostBasis", "costbasis", "cost_basis", "amortizationmode", "pricingmode"},
}

// tagAliases is the ordered alias chain per tracked tag key. Keys without
// an entry resolve from the tag map directly.
var tagAliases = map[string][]string{
	"owner":       {"owner", "team", "owneremail", "owner_email"},
	"costcenter":  {"costcenter", "cost_center", "costcentre"},
	"environment": {"environment", "env"},
}

// TrackedTag is the resolved state of one tracked tag key on a row.
type TrackedTag struct {
	Value   string
	Present bool
	Valid   bool
}

// NormalizedRow is the canonical working record derived once per raw row.
type NormalizedRow struct {
	Cost    decimal.Decimal
	AbsCost decimal.Decimal

	// DateKey is YYYY-MM-DD, or "unknown" when the charge period is
	// unparseable. MonthKey is the corresponding YYYY-MM.
	DateKey  string
	MonthKey string

	ChargeAt  time.Time
	CreatedAt time.Time
	Late      bool

	Tags        map[string]string
	TrackedTags map[string]TrackedTag

	HasOwner       bool
	HasCostCenter  bool
	HasEnvironment bool
	HasProject     bool
	Owner          string
	Allocated      bool

	Service          string
	Region           string
	Account          string
	AccountName      string
	ResourceID       string
	UploadID         string
	BillingAccountID string

	Currency      string
	CostBasisMode string

	ChargeCategory string
	IsShared       bool
	IsCredit       bool
	IsCommitment   bool

	Quantity            decimal.Decimal
	Unit                string
	DenominatorValid    bool
	DenominatorMismatch bool

	Fingerprint string
}

// UnknownDateKey marks rows whose charge period could not be parsed.
const UnknownDateKey = "unknown"

// present reports whether a raw value carries usable content. Empty
// strings and the literals "null"/"undefined" do not count.
func present(v any) bool {
	if v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		t := strings.ToLower(strings.TrimSpace(s))
		return t != "" && t != "null" && t != "undefined"
	}
	return true
}

// Lookup resolves a logical field through the alias table, exposed for
// the storage layer's column mapping.
func (r RawRow) Lookup(field string) (any, bool) {
	return pick(r, field)
}

// pick resolves a logical field from a raw row via its alias chain.
func pick(raw RawRow, field string) (any, bool) {
	for _, key := range fieldAliases[field] {
		if v, ok := raw[key]; ok && present(v) {
			return v, true
		}
	}
	return nil, false
}

// pickString resolves a logical field as a trimmed string.
func pickString(raw RawRow, field string) string {
	v, ok := pick(raw, field)
	if !ok {
		return ""
	}
	return strings.TrimSpace(toString(v))
}
