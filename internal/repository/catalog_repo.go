package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/clypper/roles-rules/internal/models"
	"github.com/clypper/roles-rules/pkg/db"
)

// CatalogRepo reads product and category identities from the host platform's
// catalog tables. The rule engine only ever reads from the catalog.
type CatalogRepo struct {
	q *db.Queries
}

func NewCatalogRepo(q *db.Queries) *CatalogRepo {
	return &CatalogRepo{q: q}
}

func (r *CatalogRepo) ProductName(ctx context.Context, id int64) (string, error) {
	var name string
	if err := r.q.Get(ctx, "get-product-name", &name, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", models.ErrInvalidProduct
		}
		return "", fmt.Errorf("look up product %d: %w", id, err)
	}
	return name, nil
}

func (r *CatalogRepo) CategoryBySlug(ctx context.Context, slug string) (models.CategoryRef, error) {
	var ref models.CategoryRef
	if err := r.q.Get(ctx, "get-category-by-slug", &ref, slug); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.CategoryRef{}, models.ErrInvalidCategory
		}
		return models.CategoryRef{}, fmt.Errorf("look up category %q: %w", slug, err)
	}
	return ref, nil
}

func (r *CatalogRepo) CategoryByID(ctx context.Context, id int64) (models.CategoryRef, error) {
	var ref models.CategoryRef
	if err := r.q.Get(ctx, "get-category-by-id", &ref, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.CategoryRef{}, models.ErrInvalidCategory
		}
		return models.CategoryRef{}, fmt.Errorf("look up category %d: %w", id, err)
	}
	return ref, nil
}
