// Package repository implements persistence for RoleRules aggregates and the
// SQL-backed adapters for the host platform's catalog and role tables.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/clypper/roles-rules/internal/models"
	"github.com/clypper/roles-rules/pkg/db"
)

// RoleRulesRepo stores RoleRules aggregates, one row per role. The aggregate
// body is a versioned JSON document; role_name, active and revision are
// lifted into columns for lookups and the optimistic write check.
type RoleRulesRepo struct {
	q *db.Queries
}

func NewRoleRulesRepo(q *db.Queries) *RoleRulesRepo {
	return &RoleRulesRepo{q: q}
}

type roleRulesRow struct {
	ID       int64  `db:"id"`
	RoleName string `db:"role_name"`
	Active   bool   `db:"active"`
	Revision int64  `db:"revision"`
	Doc      []byte `db:"doc"`
}

func (row roleRulesRow) aggregate() (*models.RoleRules, error) {
	rr, err := models.UnmarshalDoc(row.Doc)
	if err != nil {
		return nil, err
	}
	rr.ID = row.ID
	rr.Revision = row.Revision
	return rr, nil
}

// Create inserts a new aggregate and assigns its storage id.
// Returns ErrDuplicateRule when the role already has a rule set.
func (r *RoleRulesRepo) Create(ctx context.Context, rr *models.RoleRules) error {
	doc, err := rr.MarshalDoc()
	if err != nil {
		return fmt.Errorf("serialize role rules: %w", err)
	}
	var id int64
	if err := r.q.Get(ctx, "create-role-rules", &id, rr.RoleName, rr.Active, doc); err != nil {
		if isUniqueViolation(err) {
			return models.ErrDuplicateRule
		}
		return fmt.Errorf("insert role rules: %w", err)
	}
	rr.ID = id
	rr.Revision = 1
	return nil
}

func (r *RoleRulesRepo) GetByID(ctx context.Context, id int64) (*models.RoleRules, error) {
	var row roleRulesRow
	if err := r.q.Get(ctx, "get-role-rules-by-id", &row, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrRuleNotFound
		}
		return nil, fmt.Errorf("load role rules %d: %w", id, err)
	}
	return row.aggregate()
}

func (r *RoleRulesRepo) GetByRole(ctx context.Context, roleName string) (*models.RoleRules, error) {
	var row roleRulesRow
	if err := r.q.Get(ctx, "get-role-rules-by-role", &row, roleName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrRuleNotFound
		}
		return nil, fmt.Errorf("load role rules for %q: %w", roleName, err)
	}
	return row.aggregate()
}

func (r *RoleRulesRepo) List(ctx context.Context) ([]*models.RoleRules, error) {
	var rows []roleRulesRow
	if err := r.q.Select(ctx, "list-role-rules", &rows); err != nil {
		return nil, fmt.Errorf("list role rules: %w", err)
	}
	out := make([]*models.RoleRules, 0, len(rows))
	for _, row := range rows {
		rr, err := row.aggregate()
		if err != nil {
			return nil, err
		}
		out = append(out, rr)
	}
	return out, nil
}

// Update writes the whole aggregate back, guarded by the revision the caller
// loaded. A revision mismatch fails with ErrConflict instead of silently
// discarding the earlier write. On success the in-memory revision advances.
func (r *RoleRulesRepo) Update(ctx context.Context, rr *models.RoleRules) error {
	doc, err := rr.MarshalDoc()
	if err != nil {
		return fmt.Errorf("serialize role rules: %w", err)
	}
	res, err := r.q.Exec(ctx, "update-role-rules", rr.Active, doc, rr.ID, rr.Revision)
	if err != nil {
		return fmt.Errorf("update role rules %d: %w", rr.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update role rules %d: %w", rr.ID, err)
	}
	if affected == 0 {
		if _, err := r.GetByID(ctx, rr.ID); errors.Is(err, models.ErrRuleNotFound) {
			return models.ErrRuleNotFound
		}
		return models.ErrConflict
	}
	rr.Revision++
	return nil
}

func (r *RoleRulesRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.q.Exec(ctx, "delete-role-rules", id)
	if err != nil {
		return fmt.Errorf("delete role rules %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete role rules %d: %w", id, err)
	}
	if affected == 0 {
		return models.ErrRuleNotFound
	}
	return nil
}

// DeleteByRole removes the role's aggregate, reporting how many rows went
// away. Zero is not an error; role deletion cascades through here whether or
// not the role ever had rules.
func (r *RoleRulesRepo) DeleteByRole(ctx context.Context, roleName string) (int64, error) {
	res, err := r.q.Exec(ctx, "delete-role-rules-by-role", roleName)
	if err != nil {
		return 0, fmt.Errorf("delete role rules for %q: %w", roleName, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete role rules for %q: %w", roleName, err)
	}
	return affected, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}
