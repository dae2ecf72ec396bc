package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/clypper/roles-rules/internal/api/apierr"
	"github.com/clypper/roles-rules/internal/models"
	"github.com/clypper/roles-rules/internal/service"
)

// RoleDirectory enumerates and mutates the host platform's user roles.
// Implemented by repository.RolesRepo and repository.MemoryRoleDirectory.
type RoleDirectory interface {
	List(ctx context.Context) ([]models.Role, error)
	Get(ctx context.Context, slug string) (models.Role, error)
	Create(ctx context.Context, role models.Role) (models.Role, error)
	Delete(ctx context.Context, slug string) error
}

// Core platform roles that must never be deleted through this API.
var protectedRoles = map[string]bool{
	"administrator": true,
	"customer":      true,
}

// RolesHandler serves the role management endpoints. Deleting a role
// cascades into the rules store.
type RolesHandler struct {
	dir RoleDirectory
	svc *service.RuleService
}

func NewRolesHandler(dir RoleDirectory, svc *service.RuleService) *RolesHandler {
	return &RolesHandler{dir: dir, svc: svc}
}

// List handles GET /roles.
func (h *RolesHandler) List(w http.ResponseWriter, r *http.Request) {
	roles, err := h.dir.List(r.Context())
	if err != nil {
		apierr.Write(w, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, roles)
}

type createRoleRequest struct {
	RoleName string `json:"role_name"`
	RoleSlug string `json:"role_slug"`
	RoleCap  string `json:"role_cap"`
}

type createRoleResponse struct {
	Success bool        `json:"success"`
	Role    models.Role `json:"role"`
}

var slugCleaner = regexp.MustCompile(`[^a-z0-9_-]`)

// sanitizeSlug lower-cases, turns spaces into hyphens and strips anything
// that is not slug-safe.
func sanitizeSlug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "-")
	return slugCleaner.ReplaceAllString(s, "")
}

// Create handles POST /roles.
func (h *RolesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Write(w, apierr.New(apierr.CodeInvalidRequest, http.StatusBadRequest, "invalid request body"))
		return
	}
	slug := sanitizeSlug(req.RoleSlug)
	if req.RoleName == "" || slug == "" {
		apierr.WriteJSON(w, http.StatusBadRequest,
			apierr.New(apierr.CodeInvalidRequest, http.StatusBadRequest, "role_name and role_slug required"))
		return
	}
	role := models.Role{Slug: slug, Name: req.RoleName}
	if req.RoleCap != "" {
		role.Capabilities = []string{req.RoleCap}
	}
	created, err := h.dir.Create(r.Context(), role)
	if err != nil {
		// Slug collisions report as 400 on this endpoint.
		if apiErr := apierr.FromErr(err); apiErr.Code == apierr.CodeRoleExists {
			apierr.WriteJSON(w, http.StatusBadRequest,
				apierr.New(apierr.CodeRoleExists, http.StatusBadRequest, "role slug already in use"))
			return
		}
		apierr.Write(w, err)
		return
	}
	apierr.WriteJSON(w, http.StatusCreated, createRoleResponse{Success: true, Role: created})
}

type deleteRoleResponse struct {
	Deleted      bool   `json:"deleted"`
	RoleSlug     string `json:"role_slug"`
	RulesDeleted int64  `json:"rules_deleted"`
}

// Delete handles DELETE /roles/{slug}. Core roles are refused; otherwise the
// role goes away together with its rule aggregate, and the response reports
// how many rule sets were removed. The rule aggregate goes first: if that
// write fails the role is still intact and the request can simply be
// retried, whereas the reverse order would orphan the rules.
func (h *RolesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	if protectedRoles[slug] {
		apierr.Write(w, models.ErrProtectedRole)
		return
	}
	if _, err := h.dir.Get(r.Context(), slug); err != nil {
		apierr.Write(w, err)
		return
	}
	rulesDeleted, err := h.svc.DeleteRulesForRole(r.Context(), slug)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	if err := h.dir.Delete(r.Context(), slug); err != nil {
		apierr.Write(w, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, deleteRoleResponse{
		Deleted:      true,
		RoleSlug:     slug,
		RulesDeleted: rulesDeleted,
	})
}
