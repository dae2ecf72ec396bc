package models

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// AdjustType is the closed set of price adjustment kinds. Keeping this a
// typed enum (rather than a bare string) means an unknown type is rejected
// at the boundary instead of silently resolving to "no discount".
type AdjustType uint8

const (
	AdjustNone AdjustType = iota
	AdjustPercent
	AdjustPercentAdd
	AdjustFixed
	AdjustFixedAdd
	AdjustFixedSet
)

var adjustNames = map[AdjustType]string{
	AdjustNone:       "",
	AdjustPercent:    "percent",
	AdjustPercentAdd: "percent_add",
	AdjustFixed:      "fixed",
	AdjustFixedAdd:   "fixed_add",
	AdjustFixedSet:   "fixed_set",
}

// ParseAdjustType converts a wire/storage string into an AdjustType.
// The empty string maps to AdjustNone.
func ParseAdjustType(s string) (AdjustType, error) {
	for t, name := range adjustNames {
		if name == s {
			return t, nil
		}
	}
	return AdjustNone, fmt.Errorf("unknown adjustment type %q", s)
}

func (t AdjustType) String() string {
	return adjustNames[t]
}

func (t AdjustType) MarshalJSON() ([]byte, error) {
	name, ok := adjustNames[t]
	if !ok {
		return nil, fmt.Errorf("unknown adjustment type %d", t)
	}
	return json.Marshal(name)
}

func (t *AdjustType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseAdjustType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Rule is a single adjustment definition: one type/value pair for regular
// pricing and a second pair forming the quantity-break tier. Values are
// decimal strings; an empty or non-positive value disables that tier.
type Rule struct {
	Type      AdjustType `json:"type"`
	Value     string     `json:"value"`
	TierType  AdjustType `json:"tier_type"`
	TierValue string     `json:"tier_value"`
}

// valueSet reports whether s parses as a decimal strictly greater than zero.
// Malformed strings count as unset rather than erroring; a rule row with a
// garbage value simply never applies.
func valueSet(s string) bool {
	if s == "" {
		return false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return false
	}
	return d.IsPositive()
}

// HasRegular reports whether the regular tier is configured.
func (r Rule) HasRegular() bool { return valueSet(r.Value) }

// HasTier reports whether the quantity-break tier is configured.
func (r Rule) HasTier() bool { return valueSet(r.TierValue) }

// HasValue reports whether the rule is configured at either tier.
func (r Rule) HasValue() bool { return r.HasRegular() || r.HasTier() }

// ProductRule scopes a Rule to one product.
type ProductRule struct {
	ProductID   int64  `json:"product_id"`
	Name        string `json:"name"`
	Rule        Rule   `json:"rule"`
	MinQuantity int    `json:"min_quantity"`
}

// CategoryRule scopes a Rule to one category term.
type CategoryRule struct {
	CategoryID  int64  `json:"category_id"`
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Rule        Rule   `json:"rule"`
	MinQuantity int    `json:"min_quantity"`
}

// CategoryRef is a catalog category as resolved by the external catalog.
type CategoryRef struct {
	ID   int64  `json:"id"`
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// Role describes one user role as reported by the role directory.
type Role struct {
	Slug         string   `json:"slug"`
	Name         string   `json:"name"`
	Capabilities []string `json:"capabilities"`
	UserCount    int      `json:"user_count"`
}
