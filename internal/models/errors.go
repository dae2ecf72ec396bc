package models

import "errors"

// Sentinel errors shared across the service, repository and REST layers.
var (
	// ErrRuleNotFound indicates no RoleRules aggregate for the given id.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrDuplicateRule indicates a rule set already exists for the role.
	ErrDuplicateRule = errors.New("rule already exists for role")

	// ErrConflict indicates a revision mismatch on write; the aggregate was
	// modified since the caller loaded it.
	ErrConflict = errors.New("rule was modified concurrently")

	// ErrRoleNotFound indicates an unknown role slug.
	ErrRoleNotFound = errors.New("role not found")

	// ErrRoleExists indicates a role slug collision on create.
	ErrRoleExists = errors.New("role already exists")

	// ErrProtectedRole indicates an attempt to delete a core platform role.
	ErrProtectedRole = errors.New("role is protected")

	// ErrInvalidProduct indicates a product id unknown to the catalog.
	ErrInvalidProduct = errors.New("product not found in catalog")

	// ErrInvalidCategory indicates a category slug unknown to the catalog.
	ErrInvalidCategory = errors.New("category not found in catalog")

	// ErrInvalidRequest indicates missing or malformed input.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrStorage wraps persistence failures. The underlying cause is logged
	// server-side and never surfaced to clients.
	ErrStorage = errors.New("storage failure")
)
