package billing

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"billing-trust/core/policy"
)

// LateThreshold is the gap between charge period and ingestion beyond
// which a row counts as late.
const LateThreshold = 48 * time.Hour

// Recognized cost-basis modes.
const (
	BasisAmortized = "amortized"
	BasisBlended   = "blended"
	BasisNet       = "net"
	BasisActual    = "actual"
)

// Normalizer converts raw billing facts into canonical rows. It is pure:
// one raw row in, one normalized row out, no side effects.
type Normalizer struct {
	policy *policy.Policy
}

// NewNormalizer creates a normalizer bound to a governance rule set.
func NewNormalizer(p *policy.Policy) *Normalizer {
	if p == nil {
		p = policy.Default()
	}
	return &Normalizer{policy: p}
}

// Normalize derives the canonical record for one raw row. Malformed
// fields degrade to safe defaults; they never fail the row.
func (n *Normalizer) Normalize(raw RawRow) NormalizedRow {
	row := NormalizedRow{
		Tags:        parseTags(raw),
		TrackedTags: make(map[string]TrackedTag, len(policy.TrackedTagKeys)),
	}

	if v, ok := pick(raw, FieldBilledCost); ok {
		row.Cost = parseDecimal(v)
	}
	row.AbsCost = row.Cost.Abs()

	row.ChargeAt = parseTime(raw, FieldChargePeriodStart)
	row.CreatedAt = parseTime(raw, FieldCreatedAt)
	row.DateKey, row.MonthKey = dateKeys(row.ChargeAt)
	row.Late = !row.ChargeAt.IsZero() && !row.CreatedAt.IsZero() &&
		row.CreatedAt.Sub(row.ChargeAt) > LateThreshold

	row.Service = pickString(raw, FieldServiceName)
	row.Region = pickString(raw, FieldRegionName)
	row.Account = pickString(raw, FieldSubAccountID)
	row.AccountName = pickString(raw, FieldSubAccountName)
	row.ResourceID = pickString(raw, FieldResourceID)
	row.UploadID = pickString(raw, FieldUploadID)
	row.BillingAccountID = pickString(raw, FieldBillingAccountID)

	row.Currency = strings.ToUpper(pickString(raw, FieldBillingCurrency))
	if row.Currency == "" {
		row.Currency = "USD"
	}
	row.CostBasisMode = basisMode(pickString(raw, FieldCostBasis))
	row.ChargeCategory = strings.ToLower(pickString(raw, FieldChargeCategory))

	n.resolveTrackedTags(&row)

	row.IsShared = isShared(row.Tags, row.ChargeCategory)
	row.IsCredit = row.Cost.IsNegative() ||
		row.ChargeCategory == "credit" || row.ChargeCategory == "refund" ||
		strings.ToLower(pickString(raw, FieldChargeClass)) == "correction"
	row.IsCommitment = pickString(raw, FieldCommitmentDiscountID) != ""
	row.Allocated = row.HasOwner || row.HasCostCenter

	if v, ok := pick(raw, FieldConsumedQuantity); ok {
		row.Quantity = parseDecimal(v)
	}
	row.Unit = pickString(raw, FieldConsumedUnit)
	hasQty := row.Quantity.IsPositive()
	hasUnit := row.Unit != ""
	row.DenominatorValid = hasQty && hasUnit
	row.DenominatorMismatch = hasQty != hasUnit

	row.Fingerprint = strings.Join([]string{
		row.UploadID, row.DateKey, row.Account, row.Service, row.ResourceID, row.Cost.String(),
	}, "|")

	return row
}

// resolveTrackedTags fills the per-key tag state and the presence flags.
func (n *Normalizer) resolveTrackedTags(row *NormalizedRow) {
	for _, key := range policy.TrackedTagKeys {
		value, ok := resolveTag(row.Tags, key)
		tt := TrackedTag{Value: value, Present: ok}
		if ok {
			switch key {
			case "environment":
				tt.Valid = n.policy.IsValidEnvironment(value)
			case "owner":
				tt.Valid = policy.IsValidOwner(value)
			case "costcenter":
				tt.Valid = policy.IsValidCostCenter(value)
			default:
				tt.Valid = true
			}
		}
		row.TrackedTags[key] = tt
	}

	row.HasOwner = row.TrackedTags["owner"].Present
	row.HasCostCenter = row.TrackedTags["costcenter"].Present
	row.HasEnvironment = row.TrackedTags["environment"].Present
	row.HasProject = row.TrackedTags["project"].Present
	row.Owner = row.TrackedTags["owner"].Value
}

// HasTag reports whether a lower-cased tag key is present on the row,
// following the alias chain for aliased keys.
func (r NormalizedRow) HasTag(key string) bool {
	_, ok := resolveTag(r.Tags, key)
	return ok
}

// resolveTag looks a tracked key up in the tag map, walking its alias
// chain first-match-wins.
func resolveTag(tags map[string]string, key string) (string, bool) {
	chain, ok := tagAliases[key]
	if !ok {
		chain = []string{key}
	}
	for _, alias := range chain {
		if v, ok := tags[alias]; ok && present(v) {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

// parseTags lower-cases tag keys; JSON-string tag payloads are parsed
// with a {} fallback on failure or non-object results.
func parseTags(raw RawRow) map[string]string {
	v, ok := pick(raw, FieldTags)
	if !ok {
		return map[string]string{}
	}

	switch t := v.(type) {
	case map[string]string:
		return lowerTagKeys(t)
	case map[string]any:
		out := make(map[string]string, len(t))
		for k, val := range t {
			out[strings.ToLower(k)] = toString(val)
		}
		return out
	case string:
		var parsed map[string]any
		if err := json.Unmarshal([]byte(t), &parsed); err != nil {
			return map[string]string{}
		}
		out := make(map[string]string, len(parsed))
		for k, val := range parsed {
			out[strings.ToLower(k)] = toString(val)
		}
		return out
	default:
		return map[string]string{}
	}
}

func lowerTagKeys(tags map[string]string) map[string]string {
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		out[strings.ToLower(k)] = v
	}
	return out
}

// isShared reports whether a row is explicitly marked as shared cost.
func isShared(tags map[string]string, chargeCategory string) bool {
	if chargeCategory == "shared" {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(tags["shared"])) {
	case "true", "yes", "1", "shared":
		return true
	}
	return strings.ToLower(strings.TrimSpace(tags["allocation"])) == "shared"
}

// basisMode maps a raw cost-basis value onto the closed mode set. Rows
// with no recognizable mode count as actual.
func basisMode(value string) string {
	v := strings.ToLower(value)
	switch {
	case strings.Contains(v, "amort"):
		return BasisAmortized
	case strings.Contains(v, "blend"):
		return BasisBlended
	case strings.Contains(v, "net"):
		return BasisNet
	default:
		return BasisActual
	}
}

// parseDecimal converts numeric-ish raw values; unparseable input yields
// zero.
func parseDecimal(v any) decimal.Decimal {
	switch t := v.(type) {
	case decimal.Decimal:
		return t
	case float64:
		return decimal.NewFromFloat(t)
	case float32:
		return decimal.NewFromFloat32(t)
	case int:
		return decimal.NewFromInt(int64(t))
	case int64:
		return decimal.NewFromInt(t)
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		if err != nil {
			return decimal.Zero
		}
		return d
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(t))
		if err != nil {
			return decimal.Zero
		}
		return d
	default:
		return decimal.Zero
	}
}

// timeLayouts are the accepted charge/ingestion timestamp formats.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseTime resolves a timestamp field; unparseable input yields the zero
// time.
func parseTime(raw RawRow, field string) time.Time {
	v, ok := pick(raw, field)
	if !ok {
		return time.Time{}
	}
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed
			}
		}
		return time.Time{}
	default:
		return time.Time{}
	}
}

// dateKeys derives the day and month bucket keys for a charge timestamp.
func dateKeys(t time.Time) (dateKey, monthKey string) {
	if t.IsZero() {
		return UnknownDateKey, UnknownDateKey
	}
	return t.UTC().Format("2006-01-02"), t.UTC().Format("2006-01")
}

// toString renders a raw scalar as a string without scientific notation
// surprises for the common JSON cases.
func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	case float64:
		return decimal.NewFromFloat(t).String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}
