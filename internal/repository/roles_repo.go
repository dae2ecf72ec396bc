package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/clypper/roles-rules/internal/models"
	"github.com/clypper/roles-rules/pkg/db"
)

// RolesRepo is the SQL-backed role directory. Capabilities are stored as a
// comma-separated list, matching how the host platform flattens them.
type RolesRepo struct {
	q *db.Queries
}

func NewRolesRepo(q *db.Queries) *RolesRepo {
	return &RolesRepo{q: q}
}

type roleRow struct {
	Slug         string `db:"slug"`
	Name         string `db:"name"`
	Capabilities string `db:"capabilities"`
}

func (row roleRow) role() models.Role {
	role := models.Role{Slug: row.Slug, Name: row.Name}
	if row.Capabilities != "" {
		role.Capabilities = strings.Split(row.Capabilities, ",")
	}
	return role
}

func (r *RolesRepo) List(ctx context.Context) ([]models.Role, error) {
	var rows []roleRow
	if err := r.q.Select(ctx, "list-roles", &rows); err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	roles := make([]models.Role, 0, len(rows))
	for _, row := range rows {
		role := row.role()
		var count int
		if err := r.q.Get(ctx, "count-role-members", &count, row.Slug); err != nil {
			return nil, fmt.Errorf("count members of %q: %w", row.Slug, err)
		}
		role.UserCount = count
		roles = append(roles, role)
	}
	return roles, nil
}

func (r *RolesRepo) Get(ctx context.Context, slug string) (models.Role, error) {
	var row roleRow
	if err := r.q.Get(ctx, "get-role", &row, slug); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Role{}, models.ErrRoleNotFound
		}
		return models.Role{}, fmt.Errorf("load role %q: %w", slug, err)
	}
	return row.role(), nil
}

func (r *RolesRepo) Create(ctx context.Context, role models.Role) (models.Role, error) {
	caps := strings.Join(role.Capabilities, ",")
	if _, err := r.q.Exec(ctx, "create-role", role.Slug, role.Name, caps); err != nil {
		if isUniqueViolation(err) {
			return models.Role{}, models.ErrRoleExists
		}
		return models.Role{}, fmt.Errorf("create role %q: %w", role.Slug, err)
	}
	return role, nil
}

func (r *RolesRepo) Delete(ctx context.Context, slug string) error {
	res, err := r.q.Exec(ctx, "delete-role", slug)
	if err != nil {
		return fmt.Errorf("delete role %q: %w", slug, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete role %q: %w", slug, err)
	}
	if affected == 0 {
		return models.ErrRoleNotFound
	}
	return nil
}
