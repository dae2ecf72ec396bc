// Package service implements the mutation and CRUD contract over RoleRules
// aggregates. Every mutation is a whole-aggregate read-modify-write: load the
// aggregate, change it in memory, store it back in one write guarded by its
// revision.
package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/clypper/roles-rules/internal/models"
)

// RuleStore persists RoleRules aggregates. Implemented by
// repository.RoleRulesRepo and repository.MemoryStore.
type RuleStore interface {
	Create(ctx context.Context, rr *models.RoleRules) error
	GetByID(ctx context.Context, id int64) (*models.RoleRules, error)
	GetByRole(ctx context.Context, roleName string) (*models.RoleRules, error)
	List(ctx context.Context) ([]*models.RoleRules, error)
	Update(ctx context.Context, rr *models.RoleRules) error
	Delete(ctx context.Context, id int64) error
	DeleteByRole(ctx context.Context, roleName string) (int64, error)
}

// Catalog resolves product and category identifiers against the external
// catalog. Sub-rule writes validate their targets through it.
type Catalog interface {
	ProductName(ctx context.Context, id int64) (string, error)
	CategoryBySlug(ctx context.Context, slug string) (models.CategoryRef, error)
}

// RuleService coordinates rule-set mutations. Persistence failures are
// logged with operation context and surfaced to callers as ErrStorage; the
// underlying cause never reaches a client.
type RuleService struct {
	store   RuleStore
	catalog Catalog
	log     *zap.Logger
}

func NewRuleService(store RuleStore, catalog Catalog, log *zap.Logger) *RuleService {
	if log == nil {
		log = zap.NewNop()
	}
	return &RuleService{store: store, catalog: catalog, log: log}
}

// passthrough is the set of domain errors callers handle themselves; anything
// else coming out of the store is a persistence failure.
func passthrough(err error) bool {
	return errors.Is(err, models.ErrRuleNotFound) ||
		errors.Is(err, models.ErrDuplicateRule) ||
		errors.Is(err, models.ErrConflict) ||
		errors.Is(err, models.ErrInvalidProduct) ||
		errors.Is(err, models.ErrInvalidCategory) ||
		errors.Is(err, models.ErrInvalidRequest)
}

func (s *RuleService) wrap(op string, err error) error {
	if err == nil || passthrough(err) {
		return err
	}
	s.log.Error("rule store operation failed", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%s: %w", op, models.ErrStorage)
}

// AddRule creates a new, inactive rule set for the role.
func (s *RuleService) AddRule(ctx context.Context, roleName string) (*models.RoleRules, error) {
	if roleName == "" {
		return nil, fmt.Errorf("%w: role name required", models.ErrInvalidRequest)
	}
	rr := &models.RoleRules{RoleName: roleName}
	if err := s.store.Create(ctx, rr); err != nil {
		return nil, s.wrap("add rule", err)
	}
	return rr, nil
}

func (s *RuleService) GetRule(ctx context.Context, id int64) (*models.RoleRules, error) {
	rr, err := s.store.GetByID(ctx, id)
	return rr, s.wrap("get rule", err)
}

// RuleForRole loads the aggregate keyed by role name; this is how the
// checkout read path finds the rules for the purchaser's role.
func (s *RuleService) RuleForRole(ctx context.Context, roleName string) (*models.RoleRules, error) {
	rr, err := s.store.GetByRole(ctx, roleName)
	return rr, s.wrap("get rule for role", err)
}

func (s *RuleService) ListRules(ctx context.Context) ([]*models.RoleRules, error) {
	rules, err := s.store.List(ctx)
	return rules, s.wrap("list rules", err)
}

// RuleUpdate carries the fields of an update. Revision is the revision the
// caller loaded; zero skips the conflict check (the caller accepts
// last-write-wins). A nil sub-list leaves the stored list untouched; a
// non-nil one replaces it wholesale.
type RuleUpdate struct {
	ID            int64             `json:"id"`
	Revision      int64             `json:"revision"`
	Active        bool              `json:"active"`
	General       models.Rule       `json:"general"`
	GeneralMinQty int               `json:"general_min_qty"`
	SaleType      models.AdjustType `json:"sale_type"`
	SaleValue     string            `json:"sale_value"`
	CouponCode    string            `json:"coupon_code"`
	CategoryScope []int64           `json:"category_scope"`

	Categories *[]CategoryRuleRow `json:"single_categories"`
	Products   *[]ProductRuleRow  `json:"products"`
}

// UpdateRule overwrites the aggregate-level fields, replaces any sub-list
// present in the update, and persists the result in a single store write.
// One write means a storage failure leaves the stored aggregate exactly as
// it was; there is no half-applied state for a client to diverge from.
func (s *RuleService) UpdateRule(ctx context.Context, upd RuleUpdate) (*models.RoleRules, error) {
	rr, err := s.store.GetByID(ctx, upd.ID)
	if err != nil {
		return nil, s.wrap("update rule", err)
	}
	if upd.Revision != 0 && upd.Revision != rr.Revision {
		return nil, models.ErrConflict
	}
	rr.Active = upd.Active
	rr.General = upd.General
	rr.GeneralMinQty = upd.GeneralMinQty
	rr.SaleType = upd.SaleType
	rr.SaleValue = upd.SaleValue
	rr.CouponCode = upd.CouponCode
	rr.CategoryScope = upd.CategoryScope
	if upd.Categories != nil {
		rr.Categories = keptCategories(*upd.Categories)
	}
	if upd.Products != nil {
		rr.Products = keptProducts(*upd.Products)
	}
	if err := s.store.Update(ctx, rr); err != nil {
		return nil, s.wrap("update rule", err)
	}
	return rr, nil
}

// CategoryRuleRow is one row of a category sub-list replacement. Remove
// drops the row instead of keeping it.
type CategoryRuleRow struct {
	models.CategoryRule
	Remove bool `json:"remove,omitempty"`
}

// ProductRuleRow is one row of a product sub-list replacement.
type ProductRuleRow struct {
	models.ProductRule
	Remove bool `json:"remove,omitempty"`
}

func keptCategories(rows []CategoryRuleRow) []models.CategoryRule {
	kept := make([]models.CategoryRule, 0, len(rows))
	for _, row := range rows {
		if row.Remove {
			continue
		}
		kept = append(kept, row.CategoryRule)
	}
	return kept
}

func keptProducts(rows []ProductRuleRow) []models.ProductRule {
	kept := make([]models.ProductRule, 0, len(rows))
	for _, row := range rows {
		if row.Remove {
			continue
		}
		kept = append(kept, row.ProductRule)
	}
	return kept
}

// UpdateCategoryRules replaces the entire category sub-list with the given
// rows, dropping rows flagged for removal. Full-list replace avoids
// partial-update drift between client and server.
func (s *RuleService) UpdateCategoryRules(ctx context.Context, id int64, rows []CategoryRuleRow) (*models.RoleRules, error) {
	rr, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, s.wrap("update category rules", err)
	}
	rr.Categories = keptCategories(rows)
	if err := s.store.Update(ctx, rr); err != nil {
		return nil, s.wrap("update category rules", err)
	}
	return rr, nil
}

// UpdateProductRules replaces the entire product sub-list with the given
// rows, dropping rows flagged for removal.
func (s *RuleService) UpdateProductRules(ctx context.Context, id int64, rows []ProductRuleRow) (*models.RoleRules, error) {
	rr, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, s.wrap("update product rules", err)
	}
	rr.Products = keptProducts(rows)
	if err := s.store.Update(ctx, rr); err != nil {
		return nil, s.wrap("update product rules", err)
	}
	return rr, nil
}

// AddProductToRule appends a product sub-rule after validating the product
// against the catalog. Already-listed products are left alone.
func (s *RuleService) AddProductToRule(ctx context.Context, ruleID, productID int64) (*models.RoleRules, error) {
	name, err := s.catalog.ProductName(ctx, productID)
	if err != nil {
		return nil, s.wrap("add product to rule", err)
	}
	rr, err := s.store.GetByID(ctx, ruleID)
	if err != nil {
		return nil, s.wrap("add product to rule", err)
	}
	for _, pr := range rr.Products {
		if pr.ProductID == productID {
			return rr, nil
		}
	}
	rr.Products = append(rr.Products, models.ProductRule{ProductID: productID, Name: name})
	if err := s.store.Update(ctx, rr); err != nil {
		return nil, s.wrap("add product to rule", err)
	}
	return rr, nil
}

// AddCategoriesToRule resolves the slugs against the catalog and appends a
// category sub-rule per slug, skipping categories already listed.
func (s *RuleService) AddCategoriesToRule(ctx context.Context, ruleID int64, slugs []string) (*models.RoleRules, error) {
	if len(slugs) == 0 {
		return nil, fmt.Errorf("%w: no category slugs given", models.ErrInvalidRequest)
	}
	refs := make([]models.CategoryRef, 0, len(slugs))
	for _, slug := range slugs {
		ref, err := s.catalog.CategoryBySlug(ctx, slug)
		if err != nil {
			return nil, s.wrap("add categories to rule", err)
		}
		refs = append(refs, ref)
	}
	rr, err := s.store.GetByID(ctx, ruleID)
	if err != nil {
		return nil, s.wrap("add categories to rule", err)
	}
	existing := make(map[int64]bool, len(rr.Categories))
	for _, cr := range rr.Categories {
		existing[cr.CategoryID] = true
	}
	for _, ref := range refs {
		if existing[ref.ID] {
			continue
		}
		rr.Categories = append(rr.Categories, models.CategoryRule{
			CategoryID: ref.ID,
			Slug:       ref.Slug,
			Name:       ref.Name,
		})
	}
	if err := s.store.Update(ctx, rr); err != nil {
		return nil, s.wrap("add categories to rule", err)
	}
	return rr, nil
}

// CopyScope selects which sub-list a copy operation transfers.
type CopyScope string

const (
	ScopeCategories CopyScope = "categories"
	ScopeProducts   CopyScope = "products"
	ScopeAll        CopyScope = "all"
)

// ParseCopyScope maps the wire value onto a CopyScope; empty means all.
func ParseCopyScope(s string) (CopyScope, error) {
	switch CopyScope(s) {
	case ScopeCategories, ScopeProducts, ScopeAll:
		return CopyScope(s), nil
	case "":
		return ScopeAll, nil
	}
	return "", fmt.Errorf("%w: unknown copy scope %q", models.ErrInvalidRequest, s)
}

// CopyRules copies the scoped sub-list(s) verbatim from the source aggregate
// into each destination, overwriting the destination's corresponding list.
// A destination that fails to resolve is skipped, not fatal; the return
// value is how many destinations were written.
func (s *RuleService) CopyRules(ctx context.Context, fromID int64, toIDs []int64, scope CopyScope) (int, error) {
	src, err := s.store.GetByID(ctx, fromID)
	if err != nil {
		return 0, s.wrap("copy rules", err)
	}
	copied := 0
	for _, toID := range toIDs {
		if toID == fromID {
			continue
		}
		dst, err := s.store.GetByID(ctx, toID)
		if err != nil {
			s.log.Warn("copy destination skipped",
				zap.Int64("from", fromID), zap.Int64("to", toID), zap.Error(err))
			continue
		}
		if scope == ScopeCategories || scope == ScopeAll {
			dst.Categories = append([]models.CategoryRule(nil), src.Categories...)
		}
		if scope == ScopeProducts || scope == ScopeAll {
			dst.Products = append([]models.ProductRule(nil), src.Products...)
		}
		if err := s.store.Update(ctx, dst); err != nil {
			s.log.Warn("copy destination skipped",
				zap.Int64("from", fromID), zap.Int64("to", toID), zap.Error(err))
			continue
		}
		copied++
	}
	return copied, nil
}

// CopyToRoles copies sub-lists to the named destination roles, creating an
// empty rule set for any role that has none yet. It returns the resulting
// destination aggregates and how many of them were actually written; a
// destination resolving to the source itself counts as skipped, not copied.
func (s *RuleService) CopyToRoles(ctx context.Context, fromID int64, roles []string, scope CopyScope) ([]*models.RoleRules, int, error) {
	if len(roles) == 0 {
		return nil, 0, fmt.Errorf("%w: no destination roles given", models.ErrInvalidRequest)
	}
	ids := make([]int64, 0, len(roles))
	for _, roleName := range roles {
		dst, err := s.store.GetByRole(ctx, roleName)
		if errors.Is(err, models.ErrRuleNotFound) {
			dst, err = s.AddRule(ctx, roleName)
		}
		if err != nil {
			return nil, 0, s.wrap("copy rules to roles", err)
		}
		ids = append(ids, dst.ID)
	}
	copied, err := s.CopyRules(ctx, fromID, ids, scope)
	if err != nil {
		return nil, 0, err
	}
	out := make([]*models.RoleRules, 0, len(ids))
	for _, id := range ids {
		dst, err := s.store.GetByID(ctx, id)
		if err != nil {
			return nil, 0, s.wrap("copy rules to roles", err)
		}
		out = append(out, dst)
	}
	return out, copied, nil
}

// DeleteRule hard-deletes the aggregate.
func (s *RuleService) DeleteRule(ctx context.Context, id int64) error {
	return s.wrap("delete rule", s.store.Delete(ctx, id))
}

// DeleteRulesForRole cascades role deletion into the rules store and reports
// how many aggregates were removed.
func (s *RuleService) DeleteRulesForRole(ctx context.Context, roleName string) (int64, error) {
	count, err := s.store.DeleteByRole(ctx, roleName)
	return count, s.wrap("delete rules for role", err)
}
