// Package pricing computes role-based price overrides for cart lines.
//
// A Rule carries up to two adjustments: the regular one and a quantity-break
// tier that takes over once the line quantity reaches a threshold. Rules are
// scoped per product, per category or role-wide; Resolver picks the single
// governing rule for a line (product beats category beats general) and
// ApplicableRule applies it.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/clypper/roles-rules/internal/models"
)

var (
	oneHundred = decimal.NewFromInt(100)
	one        = decimal.NewFromInt(1)
)

// ApplicableRule binds a Rule to the minimum-quantity threshold relevant to
// one resolution context. It never mutates the underlying rule.
type ApplicableRule struct {
	Rule        *models.Rule
	MinQuantity int
}

// CalculatePrice computes the overridden unit price for a line, or reports
// no-override (ok=false), in which case the caller keeps the original price.
//
// Tier selection: the quantity-break tier applies when it is configured and
// cartQty meets MinQuantity; otherwise the regular adjustment applies if
// configured. A MinQuantity of zero means the tier always qualifies.
//
// The result is rounded to precision decimal places. A rounded result of
// zero or less is reported as no-override rather than clamped: a
// misconfigured discount must never produce a free or negative price.
func (a ApplicableRule) CalculatePrice(original decimal.Decimal, cartQty int, precision int32) (decimal.Decimal, bool) {
	if a.Rule == nil {
		return decimal.Zero, false
	}

	var adjustType models.AdjustType
	var rawValue string
	switch {
	case a.Rule.HasTier() && cartQty >= a.MinQuantity:
		adjustType, rawValue = a.Rule.TierType, a.Rule.TierValue
	case a.Rule.HasRegular():
		adjustType, rawValue = a.Rule.Type, a.Rule.Value
	default:
		return decimal.Zero, false
	}

	value, err := decimal.NewFromString(rawValue)
	if err != nil {
		return decimal.Zero, false
	}

	var result decimal.Decimal
	switch adjustType {
	case models.AdjustPercent:
		result = original.Mul(one.Sub(value.Div(oneHundred)))
	case models.AdjustPercentAdd:
		result = original.Mul(one.Add(value.Div(oneHundred)))
	case models.AdjustFixed:
		result = original.Sub(value)
	case models.AdjustFixedAdd:
		result = original.Add(value)
	case models.AdjustFixedSet:
		result = value
	default:
		return decimal.Zero, false
	}

	result = result.Round(precision)
	if !result.IsPositive() {
		return decimal.Zero, false
	}
	return result, true
}

// QuantityMessage renders the human-readable savings hint for the rule's
// quantity-break tier, or "" when no tier is configured. Surcharge types
// (percent_add, fixed_add) produce no message.
func (a ApplicableRule) QuantityMessage() string {
	if a.Rule == nil || !a.Rule.HasTier() {
		return ""
	}
	value, err := decimal.NewFromString(a.Rule.TierValue)
	if err != nil {
		return ""
	}
	switch a.Rule.TierType {
	case models.AdjustPercent:
		return fmt.Sprintf("Buy %d+ and save %s%%", a.MinQuantity, value.String())
	case models.AdjustFixed:
		return fmt.Sprintf("Buy %d+ and save %s per unit", a.MinQuantity, value.String())
	case models.AdjustFixedSet:
		return fmt.Sprintf("%d+ for %s per unit", a.MinQuantity, value.String())
	default:
		return ""
	}
}
