package pricing

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/clypper/roles-rules/internal/models"
)

// Line is the explicit resolution context for one cart line. The resolver
// takes everything it needs as parameters; it never reads ambient state.
type Line struct {
	ProductID   int64
	CategoryIDs []int64
	Role        string
	Quantity    int
	OnSale      bool
}

// DefaultPrecision is the currency rounding used when none is configured.
const DefaultPrecision = 2

// Resolver picks the governing rule for a cart line out of a RoleRules
// aggregate and applies it.
type Resolver struct {
	precision int32
}

// NewResolver returns a resolver rounding to the given number of currency
// decimals. Negative precision falls back to DefaultPrecision.
func NewResolver(precision int32) *Resolver {
	if precision < 0 {
		precision = DefaultPrecision
	}
	return &Resolver{precision: precision}
}

// Precision returns the currency rounding this resolver applies.
func (r *Resolver) Precision() int32 { return r.precision }

// Resolve returns the single rule that governs the line, checking in strict
// order and stopping at the first configured match:
//
//  1. a product rule for the exact product id
//  2. a category rule matching any of the line's categories; when several
//     match, the lowest category id wins (deterministic tie-break)
//  3. the role's general rule, only if the aggregate is active and the line
//     falls inside the role-wide category scope; for lines on sale, a
//     configured sale adjustment substitutes for the general rule
//
// ok=false means no override: the original price stands.
func (r *Resolver) Resolve(rr *models.RoleRules, line Line) (ApplicableRule, bool) {
	if rr == nil {
		return ApplicableRule{}, false
	}

	for i := range rr.Products {
		pr := &rr.Products[i]
		if pr.ProductID == line.ProductID && pr.Rule.HasValue() {
			return ApplicableRule{Rule: &pr.Rule, MinQuantity: pr.MinQuantity}, true
		}
	}

	lineCategories := make(map[int64]bool, len(line.CategoryIDs))
	for _, id := range line.CategoryIDs {
		lineCategories[id] = true
	}
	var matched []*models.CategoryRule
	for i := range rr.Categories {
		cr := &rr.Categories[i]
		if lineCategories[cr.CategoryID] && cr.Rule.HasValue() {
			matched = append(matched, cr)
		}
	}
	if len(matched) > 0 {
		sort.Slice(matched, func(i, j int) bool {
			return matched[i].CategoryID < matched[j].CategoryID
		})
		cr := matched[0]
		return ApplicableRule{Rule: &cr.Rule, MinQuantity: cr.MinQuantity}, true
	}

	if !rr.Active || !rr.InCategoryScope(line.CategoryIDs) {
		return ApplicableRule{}, false
	}
	if line.OnSale && rr.HasSale() {
		sale := &models.Rule{Type: rr.SaleType, Value: rr.SaleValue}
		return ApplicableRule{Rule: sale}, true
	}
	if rr.General.HasValue() {
		return ApplicableRule{Rule: &rr.General, MinQuantity: rr.GeneralMinQty}, true
	}
	return ApplicableRule{}, false
}

// ResolvePrice resolves the governing rule and computes the overridden unit
// price in one step. ok=false keeps the original price.
func (r *Resolver) ResolvePrice(rr *models.RoleRules, line Line, original decimal.Decimal) (decimal.Decimal, bool) {
	rule, ok := r.Resolve(rr, line)
	if !ok {
		return decimal.Zero, false
	}
	return rule.CalculatePrice(original, line.Quantity, r.precision)
}
