// Package handlers implements the rules/v1 REST endpoints.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/clypper/roles-rules/internal/api/apierr"
	"github.com/clypper/roles-rules/internal/models"
	"github.com/clypper/roles-rules/internal/pricing"
	"github.com/clypper/roles-rules/internal/service"
)

// RulesHandler serves the rule-set CRUD and copy endpoints plus the
// storefront price read path.
type RulesHandler struct {
	svc      *service.RuleService
	resolver *pricing.Resolver
}

func NewRulesHandler(svc *service.RuleService, resolver *pricing.Resolver) *RulesHandler {
	return &RulesHandler{svc: svc, resolver: resolver}
}

func ruleID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apierr.New(apierr.CodeInvalidRequest, http.StatusBadRequest, "invalid rule id")
	}
	return id, nil
}

// List handles GET /rules.
func (h *RulesHandler) List(w http.ResponseWriter, r *http.Request) {
	rules, err := h.svc.ListRules(r.Context())
	if err != nil {
		apierr.Write(w, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, rules)
}

type createRuleRequest struct {
	RoleName string `json:"role_name"`
}

// Create handles POST /rules.
func (h *RulesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Write(w, apierr.New(apierr.CodeInvalidRequest, http.StatusBadRequest, "invalid request body"))
		return
	}
	rr, err := h.svc.AddRule(r.Context(), req.RoleName)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	apierr.WriteJSON(w, http.StatusCreated, rr)
}

// Get handles GET /rules/{id}.
func (h *RulesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := ruleID(r)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	rr, err := h.svc.GetRule(r.Context(), id)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, rr)
}

// Update handles PUT /rules/{id}. The aggregate-level fields are always
// overwritten; the sub-lists are replaced wholesale when present in the
// body, untouched when absent. The whole update is one store write, so a
// failure leaves the stored aggregate exactly as it was.
func (h *RulesHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := ruleID(r)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	var upd service.RuleUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		apierr.Write(w, apierr.New(apierr.CodeInvalidRule, http.StatusBadRequest, "invalid rule payload: "+err.Error()))
		return
	}
	upd.ID = id

	rr, err := h.svc.UpdateRule(r.Context(), upd)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, rr)
}

// Delete handles DELETE /rules/{id}.
func (h *RulesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := ruleID(r)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	if err := h.svc.DeleteRule(r.Context(), id); err != nil {
		apierr.Write(w, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, map[string]any{"deleted": true, "id": id})
}

type copyRuleRequest struct {
	DestinationRoles []string `json:"destination_roles"`
	Scope            string   `json:"scope"`
}

type copyRuleResponse struct {
	Copied int                `json:"copied"`
	Rules  []*models.RoleRules `json:"rules"`
}

// Copy handles POST /rules/{id}/copy.
func (h *RulesHandler) Copy(w http.ResponseWriter, r *http.Request) {
	id, err := ruleID(r)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	var req copyRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Write(w, apierr.New(apierr.CodeInvalidRequest, http.StatusBadRequest, "invalid request body"))
		return
	}
	scope, err := service.ParseCopyScope(req.Scope)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	rules, copied, err := h.svc.CopyToRoles(r.Context(), id, req.DestinationRoles, scope)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, copyRuleResponse{Copied: copied, Rules: rules})
}

type addProductRequest struct {
	ProductID int64 `json:"product_id"`
}

// AddProduct handles POST /rules/{id}/products.
func (h *RulesHandler) AddProduct(w http.ResponseWriter, r *http.Request) {
	id, err := ruleID(r)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	var req addProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProductID <= 0 {
		apierr.Write(w, apierr.New(apierr.CodeInvalidRequest, http.StatusBadRequest, "product_id required"))
		return
	}
	rr, err := h.svc.AddProductToRule(r.Context(), id, req.ProductID)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, rr)
}

type addCategoriesRequest struct {
	Slugs []string `json:"slugs"`
}

// AddCategories handles POST /rules/{id}/categories.
func (h *RulesHandler) AddCategories(w http.ResponseWriter, r *http.Request) {
	id, err := ruleID(r)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	var req addCategoriesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Write(w, apierr.New(apierr.CodeInvalidRequest, http.StatusBadRequest, "invalid request body"))
		return
	}
	rr, err := h.svc.AddCategoriesToRule(r.Context(), id, req.Slugs)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	apierr.WriteJSON(w, http.StatusOK, rr)
}

type priceRequest struct {
	Role        string  `json:"role"`
	ProductID   int64   `json:"product_id"`
	CategoryIDs []int64 `json:"category_ids"`
	Quantity    int     `json:"quantity"`
	OnSale      bool    `json:"on_sale"`
	Price       string  `json:"price"`
}

type priceResponse struct {
	Price      string `json:"price"`
	Overridden bool   `json:"overridden"`
	Message    string `json:"message,omitempty"`
}

// Price handles POST /price, the storefront read path: resolve the governing
// rule for one cart line and return the overridden unit price. When no rule
// applies the original price comes back unchanged with overridden=false.
func (h *RulesHandler) Price(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierr.Write(w, apierr.New(apierr.CodeInvalidRequest, http.StatusBadRequest, "invalid request body"))
		return
	}
	original, err := decimal.NewFromString(req.Price)
	if err != nil || req.Role == "" {
		apierr.Write(w, apierr.New(apierr.CodeInvalidRequest, http.StatusBadRequest, "role and a decimal price required"))
		return
	}

	resp := priceResponse{Price: original.String()}
	rr, err := h.svc.RuleForRole(r.Context(), req.Role)
	if err != nil {
		if errors.Is(err, models.ErrRuleNotFound) {
			apierr.WriteJSON(w, http.StatusOK, resp)
			return
		}
		apierr.Write(w, err)
		return
	}

	line := pricing.Line{
		ProductID:   req.ProductID,
		CategoryIDs: req.CategoryIDs,
		Role:        req.Role,
		Quantity:    req.Quantity,
		OnSale:      req.OnSale,
	}
	applicable, ok := h.resolver.Resolve(rr, line)
	if !ok {
		apierr.WriteJSON(w, http.StatusOK, resp)
		return
	}
	if price, ok := applicable.CalculatePrice(original, req.Quantity, h.resolver.Precision()); ok {
		resp.Price = price.String()
		resp.Overridden = true
	}
	resp.Message = applicable.QuantityMessage()
	apierr.WriteJSON(w, http.StatusOK, resp)
}
