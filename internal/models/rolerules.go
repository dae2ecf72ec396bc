package models

import (
	"encoding/json"
	"fmt"
)

// RoleRules is the complete pricing configuration owned by one user role.
// It is the unit of persistence: mutations load the whole aggregate, change
// it in memory and store it back in one write.
type RoleRules struct {
	ID       int64  `json:"id"`
	RoleName string `json:"role_name"`
	Active   bool   `json:"active"`

	// Revision increments on every stored write. Updates carry the revision
	// they were loaded at and fail with ErrConflict on mismatch.
	Revision int64 `json:"revision"`

	// General is the role-wide rule, gated by Active. GeneralMinQty is the
	// threshold for its quantity-break tier.
	General       Rule `json:"general"`
	GeneralMinQty int  `json:"general_min_qty"`

	// Sale adjustment replaces the general rule for lines already on sale.
	SaleType  AdjustType `json:"sale_type"`
	SaleValue string     `json:"sale_value"`

	// CouponCode optionally ties a coupon to this role's pricing.
	CouponCode string `json:"coupon_code,omitempty"`

	// CategoryScope restricts the general rule to lines in these categories.
	// Empty means the general rule covers everything. Distinct from
	// Categories, which carry their own per-category rules.
	CategoryScope []int64 `json:"category_scope,omitempty"`

	Categories []CategoryRule `json:"single_categories"`
	Products   []ProductRule  `json:"products"`
}

// HasSale reports whether the sale adjustment is configured.
func (rr *RoleRules) HasSale() bool { return valueSet(rr.SaleValue) }

// InCategoryScope reports whether a line with the given category ids is
// covered by the role-wide category scoping.
func (rr *RoleRules) InCategoryScope(categoryIDs []int64) bool {
	if len(rr.CategoryScope) == 0 {
		return true
	}
	for _, scoped := range rr.CategoryScope {
		for _, id := range categoryIDs {
			if id == scoped {
				return true
			}
		}
	}
	return false
}

// Clone returns a deep copy. The client store snapshots aggregates before
// optimistic mutations and must not alias the live slices.
func (rr *RoleRules) Clone() *RoleRules {
	if rr == nil {
		return nil
	}
	cp := *rr
	cp.CategoryScope = append([]int64(nil), rr.CategoryScope...)
	cp.Categories = append([]CategoryRule(nil), rr.Categories...)
	cp.Products = append([]ProductRule(nil), rr.Products...)
	return &cp
}

// Equal compares two aggregates field by field, ignoring storage identity
// (ID and Revision), which the store assigns.
func (rr *RoleRules) Equal(other *RoleRules) bool {
	if rr == nil || other == nil {
		return rr == other
	}
	a, b := rr.Clone(), other.Clone()
	a.ID, b.ID = 0, 0
	a.Revision, b.Revision = 0, 0
	aj, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bj, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return string(aj) == string(bj)
}

// DocSchemaVersion is the current serialized-document schema. Bump when the
// document shape changes and add an upgrade path in UnmarshalDoc.
const DocSchemaVersion = 1

// roleRulesDoc is the stored document form of a RoleRules aggregate.
// Storage identity (id, revision) lives in dedicated columns, not here.
type roleRulesDoc struct {
	SchemaVersion int            `json:"schema_version"`
	RoleName      string         `json:"role_name"`
	Active        bool           `json:"active"`
	General       Rule           `json:"general"`
	GeneralMinQty int            `json:"general_min_qty"`
	SaleType      AdjustType     `json:"sale_type"`
	SaleValue     string         `json:"sale_value"`
	CouponCode    string         `json:"coupon_code"`
	CategoryScope []int64        `json:"category_scope"`
	Categories    []CategoryRule `json:"single_categories"`
	Products      []ProductRule  `json:"products"`
}

// MarshalDoc serializes the aggregate into its versioned document form.
func (rr *RoleRules) MarshalDoc() ([]byte, error) {
	doc := roleRulesDoc{
		SchemaVersion: DocSchemaVersion,
		RoleName:      rr.RoleName,
		Active:        rr.Active,
		General:       rr.General,
		GeneralMinQty: rr.GeneralMinQty,
		SaleType:      rr.SaleType,
		SaleValue:     rr.SaleValue,
		CouponCode:    rr.CouponCode,
		CategoryScope: rr.CategoryScope,
		Categories:    rr.Categories,
		Products:      rr.Products,
	}
	return json.Marshal(doc)
}

// UnmarshalDoc reconstructs an aggregate from its stored document.
// Documents without a recognized schema_version are rejected; missing fields
// within a known version take their zero defaults.
func UnmarshalDoc(data []byte) (*RoleRules, error) {
	var doc roleRulesDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode role rules document: %w", err)
	}
	if doc.SchemaVersion != DocSchemaVersion {
		return nil, fmt.Errorf("unsupported role rules schema version %d", doc.SchemaVersion)
	}
	return &RoleRules{
		RoleName:      doc.RoleName,
		Active:        doc.Active,
		General:       doc.General,
		GeneralMinQty: doc.GeneralMinQty,
		SaleType:      doc.SaleType,
		SaleValue:     doc.SaleValue,
		CouponCode:    doc.CouponCode,
		CategoryScope: doc.CategoryScope,
		Categories:    doc.Categories,
		Products:      doc.Products,
	}, nil
}
