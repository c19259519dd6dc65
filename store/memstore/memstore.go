// Package memstore is an in-process PlaygroundStore for single-node runs and
// tests. It keeps the same key, uniqueness and revision rules as the DynamoDB
// store.
package memstore

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/gofrs/uuid/v5"

	"github.com/spectra-gallery/spectra-playground/models"
	"github.com/spectra-gallery/spectra-playground/store"
)

type MemoryStore struct {
	mu        sync.RWMutex
	users     map[string]models.User
	resources map[string]models.Resource
	shares    map[string]models.ShareEntry
}

func New() *MemoryStore {
	return &MemoryStore{
		users:     make(map[string]models.User),
		resources: make(map[string]models.Resource),
		shares:    make(map[string]models.ShareEntry),
	}
}

func (m *MemoryStore) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	if err := ctx.Err(); err != nil {
		return models.User{}, err
	}
	if user.Id == "" {
		id, err := uuid.NewV4()
		if err != nil {
			return models.User{}, err
		}
		user.Id = id.String()
	}

	key := strings.ToLower(user.Username)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[key]; ok {
		return models.User{}, store.ErrItemExists
	}
	m.users[key] = user
	return user, nil
}

func (m *MemoryStore) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	if err := ctx.Err(); err != nil {
		return models.User{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[strings.ToLower(username)]
	if !ok {
		return models.User{}, store.ErrItemNotFound
	}
	return u, nil
}

func (m *MemoryStore) CreateResource(ctx context.Context, resource models.Resource) (models.Resource, error) {
	if err := ctx.Err(); err != nil {
		return models.Resource{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.resources[resource.Id]; ok {
		return models.Resource{}, store.ErrItemExists
	}
	m.resources[resource.Id] = cloneResource(resource)
	return cloneResource(resource), nil
}

func (m *MemoryStore) GetResource(ctx context.Context, id string) (models.Resource, error) {
	if err := ctx.Err(); err != nil {
		return models.Resource{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.resources[id]
	if !ok {
		return models.Resource{}, store.ErrItemNotFound
	}
	return cloneResource(r), nil
}

func (m *MemoryStore) UpdateResource(ctx context.Context, resource models.Resource, expectedRevision int) (models.Resource, error) {
	if err := ctx.Err(); err != nil {
		return models.Resource{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.resources[resource.Id]
	if !ok {
		return models.Resource{}, store.ErrItemNotFound
	}
	if current.Revision != expectedRevision {
		return models.Resource{}, store.ErrConditionFailed
	}

	resource.Revision = expectedRevision + 1
	m.resources[resource.Id] = cloneResource(resource)
	return cloneResource(resource), nil
}

func (m *MemoryStore) PutShare(ctx context.Context, share models.ShareEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.shares[share.Token]; ok {
		return store.ErrItemExists
	}
	m.shares[share.Token] = share
	return nil
}

func (m *MemoryStore) GetShare(ctx context.Context, token string) (models.ShareEntry, error) {
	if err := ctx.Err(); err != nil {
		return models.ShareEntry{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.shares[token]
	if !ok {
		return models.ShareEntry{}, store.ErrItemNotFound
	}
	return s, nil
}

func (m *MemoryStore) ListShares(ctx context.Context, resourceId string) ([]models.ShareEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.ShareEntry
	for _, s := range m.shares {
		if s.ResourceId == resourceId {
			out = append(out, s)
		}
	}
	slices.SortFunc(out, func(a, b models.ShareEntry) int {
		return cmp.Compare(a.ExpiresAt, b.ExpiresAt)
	})
	return out, nil
}

func (m *MemoryStore) DeleteExpiredShares(ctx context.Context, resourceId string, now int64) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted []string
	for token, s := range m.shares {
		if s.ResourceId == resourceId && s.ExpiresAt < now {
			delete(m.shares, token)
			deleted = append(deleted, token)
		}
	}
	return deleted, nil
}

// ShareCount reports how many share entries are stored, expired ones included.
func (m *MemoryStore) ShareCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.shares)
}

func cloneResource(r models.Resource) models.Resource {
	r.Tags = slices.Clone(r.Tags)
	r.Attrs = maps.Clone(r.Attrs)
	r.Layout = slices.Clone(r.Layout)
	r.Transforms = slices.Clone(r.Transforms)
	if r.Envelope != nil {
		env := *r.Envelope
		r.Envelope = &env
	}
	return r
}
