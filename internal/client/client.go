// Package client is the admin-side mirror of the rules REST API: a thin
// HTTP client plus a Store that keeps an in-memory copy of the rule sets and
// applies mutations optimistically, rolling back when the server refuses.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/clypper/roles-rules/internal/api/apierr"
	"github.com/clypper/roles-rules/internal/models"
)

// Client speaks the rules/v1 REST surface.
type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
}

// New builds a client for the given base URL (scheme://host[:port], without
// the /rules/v1 prefix) authenticating with the given bearer token.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpc:   &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/rules/v1"+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr apierr.Error
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr != nil || apiErr.Code == "" {
			return apierr.New(apierr.CodeServiceError, resp.StatusCode, resp.Status)
		}
		return &apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) ListRules(ctx context.Context) ([]*models.RoleRules, error) {
	var rules []*models.RoleRules
	if err := c.do(ctx, http.MethodGet, "/rules", nil, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

func (c *Client) CreateRule(ctx context.Context, roleName string) (*models.RoleRules, error) {
	var rr models.RoleRules
	body := map[string]string{"role_name": roleName}
	if err := c.do(ctx, http.MethodPost, "/rules", body, &rr); err != nil {
		return nil, err
	}
	return &rr, nil
}

// UpdateRule sends the full aggregate; the server treats the sub-lists as
// wholesale replacements.
func (c *Client) UpdateRule(ctx context.Context, rr *models.RoleRules) (*models.RoleRules, error) {
	var updated models.RoleRules
	path := fmt.Sprintf("/rules/%d", rr.ID)
	if err := c.do(ctx, http.MethodPut, path, rr, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (c *Client) DeleteRule(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/rules/%d", id), nil, nil)
}

type copyResponse struct {
	Copied int                 `json:"copied"`
	Rules  []*models.RoleRules `json:"rules"`
}

// CopyRule copies the source rule's sub-lists to the destination roles and
// returns the resulting rule rows.
func (c *Client) CopyRule(ctx context.Context, id int64, destinationRoles []string, scope string) ([]*models.RoleRules, error) {
	body := map[string]any{"destination_roles": destinationRoles, "scope": scope}
	var resp copyResponse
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/rules/%d/copy", id), body, &resp); err != nil {
		return nil, err
	}
	return resp.Rules, nil
}
