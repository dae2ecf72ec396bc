// Package apierr defines the typed error envelope shared by the REST
// handlers, the middleware and the admin client.
package apierr

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/clypper/roles-rules/internal/models"
)

// Recognized error codes.
const (
	CodeInvalidRule      = "invalid_rule"
	CodeRuleNotFound     = "rule_not_found"
	CodePermissionDenied = "permission_denied"
	CodeInvalidProduct   = "invalid_product"
	CodeInvalidCategory  = "invalid_category"
	CodeRoleExists       = "role_exists"
	CodeRoleNotFound     = "role_not_found"
	CodeServiceError     = "service_error"
	CodeInvalidRequest   = "invalid_request"
	CodeConflict         = "conflict"
)

// Error is the wire error object. Failures always serialize to this shape.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// New builds an Error with an explicit code and status.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Message: message, Status: status}
}

// FromErr maps a domain error onto its wire code and HTTP status. Unknown
// errors become service_error with a generic message; the cause is expected
// to have been logged where it happened.
func FromErr(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	switch {
	case errors.Is(err, models.ErrRuleNotFound):
		return New(CodeRuleNotFound, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrRoleNotFound):
		return New(CodeRoleNotFound, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrDuplicateRule), errors.Is(err, models.ErrRoleExists):
		return New(CodeRoleExists, http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrConflict):
		return New(CodeConflict, http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrInvalidProduct):
		return New(CodeInvalidProduct, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrInvalidCategory):
		return New(CodeInvalidCategory, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrProtectedRole):
		return New(CodePermissionDenied, http.StatusForbidden, err.Error())
	case errors.Is(err, models.ErrInvalidRequest):
		return New(CodeInvalidRequest, http.StatusBadRequest, err.Error())
	default:
		return New(CodeServiceError, http.StatusInternalServerError, "internal service error")
	}
}

// WriteJSON writes v as a JSON response body.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Write maps err and writes it as the error envelope.
func Write(w http.ResponseWriter, err error) {
	apiErr := FromErr(err)
	WriteJSON(w, apiErr.Status, apiErr)
}
