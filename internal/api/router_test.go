package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/clypper/roles-rules/internal/api/apierr"
	"github.com/clypper/roles-rules/internal/api/middleware"
	"github.com/clypper/roles-rules/internal/models"
	"github.com/clypper/roles-rules/internal/pricing"
	"github.com/clypper/roles-rules/internal/repository"
	"github.com/clypper/roles-rules/internal/service"
)

const (
	adminToken   = "admin-token"
	catalogToken = "catalog-token"
	noCapToken   = "no-cap-token"
)

func newTestRouter(t *testing.T) (http.Handler, *service.RuleService, *repository.MemoryRoleDirectory) {
	t.Helper()
	return newTestRouterWithStore(t, repository.NewMemoryStore())
}

func newTestRouterWithStore(t *testing.T, store service.RuleStore) (http.Handler, *service.RuleService, *repository.MemoryRoleDirectory) {
	t.Helper()
	catalog := repository.NewMemoryCatalog()
	catalog.AddProduct(100, "Hammer")
	catalog.AddCategory(models.CategoryRef{ID: 10, Slug: "fasteners", Name: "Fasteners"})

	dir := repository.NewMemoryRoleDirectory()
	for _, role := range []models.Role{
		{Slug: "administrator", Name: "Administrator"},
		{Slug: "customer", Name: "Customer"},
		{Slug: "wholesale", Name: "Wholesale"},
	} {
		if _, err := dir.Create(context.Background(), role); err != nil {
			t.Fatalf("seed role %q: %v", role.Slug, err)
		}
	}

	svc := service.NewRuleService(store, catalog, nil)
	authn := &middleware.StaticTokenAuthenticator{Tokens: map[string]*middleware.Identity{
		adminToken:   {Subject: "admin", Capabilities: map[string]bool{middleware.CapManageOptions: true}},
		catalogToken: {Subject: "shopkeeper", Capabilities: map[string]bool{middleware.CapManageCatalog: true}},
		noCapToken:   {Subject: "visitor"},
	}}
	return NewRouter(svc, dir, pricing.NewResolver(2), authn, zap.NewNop()), svc, dir
}

func doRequest(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeErr(t *testing.T, rec *httptest.ResponseRecorder) *apierr.Error {
	t.Helper()
	var apiErr apierr.Error
	if err := json.NewDecoder(rec.Body).Decode(&apiErr); err != nil {
		t.Fatalf("decode error envelope: %v (body %q)", err, rec.Body.String())
	}
	return &apiErr
}

func decodeRule(t *testing.T, rec *httptest.ResponseRecorder) *models.RoleRules {
	t.Helper()
	var rr models.RoleRules
	if err := json.NewDecoder(rec.Body).Decode(&rr); err != nil {
		t.Fatalf("decode rule: %v (body %q)", err, rec.Body.String())
	}
	return &rr
}

func TestCapabilityGating(t *testing.T) {
	h, _, _ := newTestRouter(t)

	tests := []struct {
		name       string
		method     string
		path       string
		token      string
		wantStatus int
	}{
		{"anonymous read", http.MethodGet, "/rules/v1/rules", "", http.StatusUnauthorized},
		{"anonymous mutation", http.MethodPost, "/rules/v1/rules", "", http.StatusUnauthorized},
		{"no capability read", http.MethodGet, "/rules/v1/rules", noCapToken, http.StatusForbidden},
		{"catalog read allowed", http.MethodGet, "/rules/v1/rules", catalogToken, http.StatusOK},
		{"catalog mutation refused", http.MethodDelete, "/rules/v1/rules/1", catalogToken, http.StatusForbidden},
		{"catalog role listing", http.MethodGet, "/rules/v1/roles", catalogToken, http.StatusOK},
		{"admin read implied", http.MethodGet, "/rules/v1/rules", adminToken, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, h, tt.method, tt.path, tt.token, nil)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %q)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus == http.StatusUnauthorized || tt.wantStatus == http.StatusForbidden {
				if apiErr := decodeErr(t, rec); apiErr.Code != apierr.CodePermissionDenied {
					t.Errorf("code = %q, want %q", apiErr.Code, apierr.CodePermissionDenied)
				}
			}
		})
	}
}

func TestRuleLifecycle(t *testing.T) {
	h, _, _ := newTestRouter(t)

	rec := doRequest(t, h, http.MethodPost, "/rules/v1/rules", adminToken,
		map[string]string{"role_name": "wholesale"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d (body %q)", rec.Code, rec.Body.String())
	}
	created := decodeRule(t, rec)
	if created.ID == 0 || created.Active {
		t.Fatalf("created = %+v, want inactive row with id", created)
	}

	// Duplicate role is refused with a conflict status.
	rec = doRequest(t, h, http.MethodPost, "/rules/v1/rules", adminToken,
		map[string]string{"role_name": "wholesale"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate create status = %d, want 409", rec.Code)
	}

	path := "/rules/v1/rules/1"
	rec = doRequest(t, h, http.MethodPut, path, adminToken, map[string]any{
		"revision": created.Revision,
		"active":   true,
		"general":  models.Rule{Type: models.AdjustPercent, Value: "10"},
		"single_categories": []service.CategoryRuleRow{
			{CategoryRule: models.CategoryRule{CategoryID: 10, Slug: "fasteners", Rule: models.Rule{Type: models.AdjustPercent, Value: "5"}}},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d (body %q)", rec.Code, rec.Body.String())
	}
	updated := decodeRule(t, rec)
	if !updated.Active || updated.General.Value != "10" || len(updated.Categories) != 1 {
		t.Errorf("updated = %+v, want active with one category rule", updated)
	}

	// A writer still holding the original revision gets a conflict.
	rec = doRequest(t, h, http.MethodPut, path, adminToken, map[string]any{
		"revision": created.Revision,
		"active":   false,
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("stale update status = %d, want 409", rec.Code)
	}
	if apiErr := decodeErr(t, rec); apiErr.Code != apierr.CodeConflict {
		t.Errorf("code = %q, want %q", apiErr.Code, apierr.CodeConflict)
	}

	rec = doRequest(t, h, http.MethodGet, path, catalogToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	if got := decodeRule(t, rec); !got.Active {
		t.Errorf("get = %+v, want the confirmed update", got)
	}

	rec = doRequest(t, h, http.MethodDelete, path, adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}

	rec = doRequest(t, h, http.MethodGet, path, catalogToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want 404", rec.Code)
	}
	if apiErr := decodeErr(t, rec); apiErr.Code != apierr.CodeRuleNotFound {
		t.Errorf("code = %q, want %q", apiErr.Code, apierr.CodeRuleNotFound)
	}
}

func TestRuleSubListEndpoints(t *testing.T) {
	h, _, _ := newTestRouter(t)

	doRequest(t, h, http.MethodPost, "/rules/v1/rules", adminToken,
		map[string]string{"role_name": "wholesale"})

	rec := doRequest(t, h, http.MethodPost, "/rules/v1/rules/1/products", adminToken,
		map[string]int64{"product_id": 100})
	if rec.Code != http.StatusOK {
		t.Fatalf("add product status = %d (body %q)", rec.Code, rec.Body.String())
	}
	if rr := decodeRule(t, rec); len(rr.Products) != 1 || rr.Products[0].Name != "Hammer" {
		t.Errorf("products = %+v, want catalog-resolved entry", rr.Products)
	}

	rec = doRequest(t, h, http.MethodPost, "/rules/v1/rules/1/products", adminToken,
		map[string]int64{"product_id": 999})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown product status = %d, want 400", rec.Code)
	}
	if apiErr := decodeErr(t, rec); apiErr.Code != apierr.CodeInvalidProduct {
		t.Errorf("code = %q, want %q", apiErr.Code, apierr.CodeInvalidProduct)
	}

	rec = doRequest(t, h, http.MethodPost, "/rules/v1/rules/1/categories", adminToken,
		map[string][]string{"slugs": {"fasteners"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("add categories status = %d (body %q)", rec.Code, rec.Body.String())
	}
	if rr := decodeRule(t, rec); len(rr.Categories) != 1 || rr.Categories[0].CategoryID != 10 {
		t.Errorf("categories = %+v, want resolved fasteners", rr.Categories)
	}

	rec = doRequest(t, h, http.MethodPost, "/rules/v1/rules/1/categories", adminToken,
		map[string][]string{"slugs": {"nope"}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown category status = %d, want 400", rec.Code)
	}
}

func TestCopyEndpoint(t *testing.T) {
	h, svc, _ := newTestRouter(t)
	ctx := context.Background()

	src, err := svc.AddRule(ctx, "wholesale")
	if err != nil {
		t.Fatalf("seed source: %v", err)
	}
	if _, err := svc.UpdateCategoryRules(ctx, src.ID, []service.CategoryRuleRow{
		{CategoryRule: models.CategoryRule{CategoryID: 10, Slug: "fasteners", Rule: models.Rule{Type: models.AdjustPercent, Value: "5"}}},
	}); err != nil {
		t.Fatalf("seed source: %v", err)
	}

	rec := doRequest(t, h, http.MethodPost, "/rules/v1/rules/1/copy", adminToken, map[string]any{
		"destination_roles": []string{"retail", "vip"},
		"scope":             "categories",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("copy status = %d (body %q)", rec.Code, rec.Body.String())
	}
	var resp struct {
		Copied int                 `json:"copied"`
		Rules  []*models.RoleRules `json:"rules"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode copy response: %v", err)
	}
	if resp.Copied != 2 || len(resp.Rules) != 2 {
		t.Fatalf("copy response = %+v, want two destinations", resp)
	}
	for _, rr := range resp.Rules {
		if len(rr.Categories) != 1 {
			t.Errorf("destination %q categories = %+v, want copied entry", rr.RoleName, rr.Categories)
		}
	}

	rec = doRequest(t, h, http.MethodPost, "/rules/v1/rules/1/copy", adminToken, map[string]any{
		"destination_roles": []string{"retail"},
		"scope":             "everything",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad scope status = %d, want 400", rec.Code)
	}
}

func TestRoleEndpoints(t *testing.T) {
	h, svc, _ := newTestRouter(t)

	rec := doRequest(t, h, http.MethodPost, "/rules/v1/roles", adminToken, map[string]string{
		"role_name": "Key Accounts",
		"role_slug": "Key Accounts!",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create role status = %d (body %q)", rec.Code, rec.Body.String())
	}
	var created struct {
		Success bool        `json:"success"`
		Role    models.Role `json:"role"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decode create role: %v", err)
	}
	if !created.Success || created.Role.Slug != "key-accounts" {
		t.Errorf("created = %+v, want sanitized slug key-accounts", created)
	}

	// Slug collision reports 400 on this endpoint, not 409.
	rec = doRequest(t, h, http.MethodPost, "/rules/v1/roles", adminToken, map[string]string{
		"role_name": "Key Accounts Again",
		"role_slug": "key-accounts",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("duplicate role status = %d, want 400", rec.Code)
	}
	if apiErr := decodeErr(t, rec); apiErr.Code != apierr.CodeRoleExists {
		t.Errorf("code = %q, want %q", apiErr.Code, apierr.CodeRoleExists)
	}

	rec = doRequest(t, h, http.MethodDelete, "/rules/v1/roles/administrator", adminToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("protected role delete status = %d, want 403", rec.Code)
	}
	if apiErr := decodeErr(t, rec); apiErr.Code != apierr.CodePermissionDenied {
		t.Errorf("code = %q, want %q", apiErr.Code, apierr.CodePermissionDenied)
	}

	// Deleting a role cascades into its rule set.
	if _, err := svc.AddRule(context.Background(), "wholesale"); err != nil {
		t.Fatalf("seed rule: %v", err)
	}
	rec = doRequest(t, h, http.MethodDelete, "/rules/v1/roles/wholesale", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete role status = %d (body %q)", rec.Code, rec.Body.String())
	}
	var deleted struct {
		Deleted      bool   `json:"deleted"`
		RoleSlug     string `json:"role_slug"`
		RulesDeleted int64  `json:"rules_deleted"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&deleted); err != nil {
		t.Fatalf("decode delete role: %v", err)
	}
	if !deleted.Deleted || deleted.RulesDeleted != 1 {
		t.Errorf("deleted = %+v, want one cascaded rule set", deleted)
	}

	rec = doRequest(t, h, http.MethodDelete, "/rules/v1/roles/ghost", adminToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing role delete status = %d, want 404", rec.Code)
	}
	if apiErr := decodeErr(t, rec); apiErr.Code != apierr.CodeRoleNotFound {
		t.Errorf("code = %q, want %q", apiErr.Code, apierr.CodeRoleNotFound)
	}
}

// updateFailStore refuses every write so tests can observe what a failed
// update leaves behind.
type updateFailStore struct {
	*repository.MemoryStore
}

func (s *updateFailStore) Update(context.Context, *models.RoleRules) error {
	return errors.New("disk failure")
}

func TestRuleUpdateFailureLeavesAggregateUntouched(t *testing.T) {
	store := &updateFailStore{MemoryStore: repository.NewMemoryStore()}
	h, svc, _ := newTestRouterWithStore(t, store)
	ctx := context.Background()

	rr, err := svc.AddRule(ctx, "wholesale")
	if err != nil {
		t.Fatalf("seed rule: %v", err)
	}

	rec := doRequest(t, h, http.MethodPut, "/rules/v1/rules/1", adminToken, map[string]any{
		"active":  true,
		"general": models.Rule{Type: models.AdjustPercent, Value: "10"},
		"single_categories": []service.CategoryRuleRow{
			{CategoryRule: models.CategoryRule{CategoryID: 10, Slug: "fasteners", Rule: models.Rule{Type: models.AdjustPercent, Value: "5"}}},
		},
	})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("update status = %d, want 500 (body %q)", rec.Code, rec.Body.String())
	}

	// The failed PUT must not have persisted any part of the payload.
	stored, err := svc.GetRule(ctx, rr.ID)
	if err != nil {
		t.Fatalf("GetRule() error = %v", err)
	}
	if stored.Active || stored.General.HasValue() || len(stored.Categories) != 0 {
		t.Errorf("stored = active=%v general=%q categories=%d, want the pre-update aggregate",
			stored.Active, stored.General.Value, len(stored.Categories))
	}
}

// cascadeFailStore refuses the role-deletion cascade.
type cascadeFailStore struct {
	*repository.MemoryStore
}

func (s *cascadeFailStore) DeleteByRole(context.Context, string) (int64, error) {
	return 0, errors.New("disk failure")
}

func TestRoleDeleteKeepsRoleWhenCascadeFails(t *testing.T) {
	store := &cascadeFailStore{MemoryStore: repository.NewMemoryStore()}
	h, svc, dir := newTestRouterWithStore(t, store)
	ctx := context.Background()

	rr, err := svc.AddRule(ctx, "wholesale")
	if err != nil {
		t.Fatalf("seed rule: %v", err)
	}

	rec := doRequest(t, h, http.MethodDelete, "/rules/v1/roles/wholesale", adminToken, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("delete status = %d, want 500 (body %q)", rec.Code, rec.Body.String())
	}

	// The rules cascade runs before the role deletion, so a cascade failure
	// leaves both the role and its rules in place for a retry.
	if _, err := dir.Get(ctx, "wholesale"); err != nil {
		t.Errorf("role gone after failed cascade: %v", err)
	}
	if _, err := svc.GetRule(ctx, rr.ID); err != nil {
		t.Errorf("rule aggregate gone after failed cascade: %v", err)
	}
}

func TestPriceEndpoint(t *testing.T) {
	h, svc, _ := newTestRouter(t)
	ctx := context.Background()

	rr, err := svc.AddRule(ctx, "wholesale")
	if err != nil {
		t.Fatalf("seed rule: %v", err)
	}
	if _, err := svc.UpdateRule(ctx, service.RuleUpdate{
		ID:      rr.ID,
		Active:  true,
		General: models.Rule{Type: models.AdjustPercent, Value: "10"},
		Products: &[]service.ProductRuleRow{
			{ProductRule: models.ProductRule{ProductID: 100, Name: "Hammer", Rule: models.Rule{Type: models.AdjustFixedSet, Value: "75"}}},
		},
	}); err != nil {
		t.Fatalf("seed rule: %v", err)
	}

	tests := []struct {
		name           string
		body           map[string]any
		wantPrice      string
		wantOverridden bool
	}{
		{
			"product rule wins",
			map[string]any{"role": "wholesale", "product_id": int64(100), "quantity": 1, "price": "100"},
			"75", true,
		},
		{
			"general rule applies",
			map[string]any{"role": "wholesale", "product_id": int64(200), "quantity": 1, "price": "100"},
			"90", true,
		},
		{
			"unknown role keeps price",
			map[string]any{"role": "ghost", "product_id": int64(100), "quantity": 1, "price": "100"},
			"100", false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, h, http.MethodPost, "/rules/v1/price", catalogToken, tt.body)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d (body %q)", rec.Code, rec.Body.String())
			}
			var resp struct {
				Price      string `json:"price"`
				Overridden bool   `json:"overridden"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.Price != tt.wantPrice || resp.Overridden != tt.wantOverridden {
				t.Errorf("response = %+v, want price %q overridden %v", resp, tt.wantPrice, tt.wantOverridden)
			}
		})
	}

	rec := doRequest(t, h, http.MethodPost, "/rules/v1/price", catalogToken,
		map[string]any{"role": "wholesale", "price": "not-a-number"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad price status = %d, want 400", rec.Code)
	}

	rec = doRequest(t, h, http.MethodPost, "/rules/v1/price", "", map[string]any{"role": "wholesale", "price": "100"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous price status = %d, want 401", rec.Code)
	}
}
