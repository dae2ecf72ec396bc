package client

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/clypper/roles-rules/internal/models"
)

// Store mirrors server-side rule state for the admin UI. Mutations apply to
// local state immediately so the UI stays responsive, then issue the REST
// call; on success the optimistic row is replaced with the server's
// canonical response, on failure it rolls back to the pre-mutation snapshot
// and the error is recorded.
//
// Each mutation tags its rule with a fresh token. A response (success or
// failure) is applied only while its token is still the latest for that
// rule, so an out-of-order response can never overwrite a later mutation or
// its rollback.
type Store struct {
	api *Client

	mu       sync.Mutex
	rules    map[int64]*models.RoleRules
	inflight map[int64]string
	loading  bool
	lastErr  error
	tempID   int64
}

func NewStore(api *Client) *Store {
	return &Store{
		api:      api,
		rules:    make(map[int64]*models.RoleRules),
		inflight: make(map[int64]string),
	}
}

// Rules returns a snapshot of the cached rule sets ordered by id.
// Optimistically created rows (not yet confirmed) carry negative ids.
func (s *Store) Rules() []*models.RoleRules {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.RoleRules, 0, len(s.rules))
	for _, rr := range s.rules {
		out = append(out, rr.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Rule returns the cached aggregate, or nil.
func (s *Store) Rule(id int64) *models.RoleRules {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rules[id].Clone()
}

// IsLoading reports whether an initial or refresh load is in flight.
func (s *Store) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Err returns the most recent surfaced error, cleared by the next
// successful operation.
func (s *Store) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Load replaces the local cache with the server's rule list.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()

	rules, err := s.api.ListRules(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false
	if err != nil {
		s.lastErr = err
		return err
	}
	s.rules = make(map[int64]*models.RoleRules, len(rules))
	for _, rr := range rules {
		s.rules[rr.ID] = rr
	}
	s.lastErr = nil
	return nil
}

// mark tags the rule with a fresh mutation token.
func (s *Store) mark(id int64) string {
	token := uuid.NewString()
	s.inflight[id] = token
	return token
}

// current reports whether token is still the rule's latest mutation.
func (s *Store) current(id int64, token string) bool {
	return s.inflight[id] == token
}

// UpdateRule optimistically applies the given aggregate state, then
// confirms it against the server.
func (s *Store) UpdateRule(ctx context.Context, rr *models.RoleRules) error {
	s.mu.Lock()
	snapshot := s.rules[rr.ID].Clone()
	s.rules[rr.ID] = rr.Clone()
	token := s.mark(rr.ID)
	s.mu.Unlock()

	updated, err := s.api.UpdateRule(ctx, rr)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.current(rr.ID, token) {
		// Superseded by a later mutation; this response is stale.
		return err
	}
	if err != nil {
		if snapshot != nil {
			s.rules[rr.ID] = snapshot
		} else {
			delete(s.rules, rr.ID)
		}
		s.lastErr = err
		return err
	}
	s.rules[updated.ID] = updated
	s.lastErr = nil
	return nil
}

// ToggleActive flips the rule's active flag through the usual optimistic
// update path.
func (s *Store) ToggleActive(ctx context.Context, id int64) error {
	s.mu.Lock()
	rr := s.rules[id].Clone()
	s.mu.Unlock()
	if rr == nil {
		return models.ErrRuleNotFound
	}
	rr.Active = !rr.Active
	return s.UpdateRule(ctx, rr)
}

// CreateRule inserts an optimistic placeholder row (negative id) and swaps
// it for the server row on success.
func (s *Store) CreateRule(ctx context.Context, roleName string) (*models.RoleRules, error) {
	s.mu.Lock()
	s.tempID--
	placeholderID := s.tempID
	s.rules[placeholderID] = &models.RoleRules{ID: placeholderID, RoleName: roleName}
	token := s.mark(placeholderID)
	s.mu.Unlock()

	created, err := s.api.CreateRule(ctx, roleName)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current(placeholderID, token) {
		delete(s.rules, placeholderID)
		delete(s.inflight, placeholderID)
	}
	if err != nil {
		s.lastErr = err
		return nil, err
	}
	s.rules[created.ID] = created
	s.lastErr = nil
	return created.Clone(), nil
}

// DeleteRule optimistically drops the row, restoring it if the server
// refuses.
func (s *Store) DeleteRule(ctx context.Context, id int64) error {
	s.mu.Lock()
	snapshot := s.rules[id].Clone()
	delete(s.rules, id)
	token := s.mark(id)
	s.mu.Unlock()

	err := s.api.DeleteRule(ctx, id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.current(id, token) {
		return err
	}
	if err != nil {
		if snapshot != nil {
			s.rules[id] = snapshot
		}
		s.lastErr = err
		return err
	}
	delete(s.inflight, id)
	s.lastErr = nil
	return nil
}

// CopyRule copies the source rule to the destination roles. The new rows
// come from the server, so there is nothing to apply optimistically; each
// returned row is merged into local state on success.
func (s *Store) CopyRule(ctx context.Context, fromID int64, destinationRoles []string, scope string) error {
	rules, err := s.api.CopyRule(ctx, fromID, destinationRoles, scope)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.lastErr = err
		return err
	}
	for _, rr := range rules {
		s.rules[rr.ID] = rr
	}
	s.lastErr = nil
	return nil
}
