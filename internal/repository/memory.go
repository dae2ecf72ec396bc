package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/clypper/roles-rules/internal/models"
)

// MemoryStore is an in-memory RoleRules store with the same contract as
// RoleRulesRepo, including the revision check on update. Used by tests and
// available as a throwaway backend for local experiments.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]*models.RoleRules
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[int64]*models.RoleRules)}
}

func (s *MemoryStore) Create(_ context.Context, rr *models.RoleRules) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.byID {
		if existing.RoleName == rr.RoleName {
			return models.ErrDuplicateRule
		}
	}
	s.nextID++
	rr.ID = s.nextID
	rr.Revision = 1
	s.byID[rr.ID] = rr.Clone()
	return nil
}

func (s *MemoryStore) GetByID(_ context.Context, id int64) (*models.RoleRules, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rr, ok := s.byID[id]
	if !ok {
		return nil, models.ErrRuleNotFound
	}
	return rr.Clone(), nil
}

func (s *MemoryStore) GetByRole(_ context.Context, roleName string) (*models.RoleRules, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rr := range s.byID {
		if rr.RoleName == roleName {
			return rr.Clone(), nil
		}
	}
	return nil, models.ErrRuleNotFound
}

func (s *MemoryStore) List(_ context.Context) ([]*models.RoleRules, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.RoleRules, 0, len(s.byID))
	for _, rr := range s.byID {
		out = append(out, rr.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) Update(_ context.Context, rr *models.RoleRules) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.byID[rr.ID]
	if !ok {
		return models.ErrRuleNotFound
	}
	if existing.Revision != rr.Revision {
		return models.ErrConflict
	}
	rr.Revision++
	s.byID[rr.ID] = rr.Clone()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return models.ErrRuleNotFound
	}
	delete(s.byID, id)
	return nil
}

func (s *MemoryStore) DeleteByRole(_ context.Context, roleName string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for id, rr := range s.byID {
		if rr.RoleName == roleName {
			delete(s.byID, id)
			deleted++
		}
	}
	return deleted, nil
}

// MemoryCatalog is a fixed catalog lookup for tests.
type MemoryCatalog struct {
	mu         sync.RWMutex
	products   map[int64]string
	categories map[string]models.CategoryRef
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		products:   make(map[int64]string),
		categories: make(map[string]models.CategoryRef),
	}
}

func (c *MemoryCatalog) AddProduct(id int64, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[id] = name
}

func (c *MemoryCatalog) AddCategory(ref models.CategoryRef) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.categories[ref.Slug] = ref
}

func (c *MemoryCatalog) ProductName(_ context.Context, id int64) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.products[id]
	if !ok {
		return "", models.ErrInvalidProduct
	}
	return name, nil
}

func (c *MemoryCatalog) CategoryBySlug(_ context.Context, slug string) (models.CategoryRef, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ref, ok := c.categories[slug]
	if !ok {
		return models.CategoryRef{}, models.ErrInvalidCategory
	}
	return ref, nil
}

// MemoryRoleDirectory is an in-memory role directory for tests.
type MemoryRoleDirectory struct {
	mu    sync.RWMutex
	roles map[string]models.Role
}

func NewMemoryRoleDirectory() *MemoryRoleDirectory {
	return &MemoryRoleDirectory{roles: make(map[string]models.Role)}
}

func (d *MemoryRoleDirectory) List(_ context.Context) ([]models.Role, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]models.Role, 0, len(d.roles))
	for _, role := range d.roles {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

func (d *MemoryRoleDirectory) Get(_ context.Context, slug string) (models.Role, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	role, ok := d.roles[slug]
	if !ok {
		return models.Role{}, models.ErrRoleNotFound
	}
	return role, nil
}

func (d *MemoryRoleDirectory) Create(_ context.Context, role models.Role) (models.Role, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.roles[role.Slug]; ok {
		return models.Role{}, models.ErrRoleExists
	}
	d.roles[role.Slug] = role
	return role, nil
}

func (d *MemoryRoleDirectory) Delete(_ context.Context, slug string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.roles[slug]; !ok {
		return models.ErrRoleNotFound
	}
	delete(d.roles, slug)
	return nil
}
