package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"onchain-intel/internal/domain"
	"onchain-intel/internal/storage"
)

type addressKey struct {
	entityID int64
	chain    string
	address  string
}

// EntityStore is an in-memory implementation of storage.EntityStore.
type EntityStore struct {
	mu        sync.RWMutex
	nextID    int64
	bySlug    map[string]domain.Entity
	addresses map[addressKey]domain.EntityAddress
}

// NewEntityStore creates a new EntityStore.
func NewEntityStore() *EntityStore {
	return &EntityStore{
		bySlug:    make(map[string]domain.Entity),
		addresses: make(map[addressKey]domain.EntityAddress),
	}
}

var _ storage.EntityStore = (*EntityStore)(nil)

// GetEntityBySlug returns a copy of the entity with its addresses.
func (s *EntityStore) GetEntityBySlug(_ context.Context, slug string) (domain.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.bySlug[strings.ToLower(slug)]
	if !ok {
		return domain.Entity{}, storage.ErrNotFound
	}
	e.Addresses = s.addressesOf(e.ID)
	return e, nil
}

// ListEntities returns entities ordered by slug.
func (s *EntityStore) ListEntities(_ context.Context) ([]domain.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Entity, 0, len(s.bySlug))
	for _, e := range s.bySlug {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

// EntitiesByAddress returns the sorted slugs owning any of addresses.
func (s *EntityStore) EntitiesByAddress(_ context.Context, addresses []string) ([]string, error) {
	want := make(map[string]struct{}, len(addresses))
	for _, a := range addresses {
		want[strings.ToLower(a)] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make(map[int64]struct{})
	for k := range s.addresses {
		if _, ok := want[k.address]; ok {
			ids[k.entityID] = struct{}{}
		}
	}
	slugs := make([]string, 0, len(ids))
	for slug, e := range s.bySlug {
		if _, ok := ids[e.ID]; ok {
			slugs = append(slugs, slug)
		}
	}
	sort.Strings(slugs)
	return slugs, nil
}

// UpsertEntity creates or updates an entity by slug.
func (s *EntityStore) UpsertEntity(_ context.Context, e domain.Entity) (int64, error) {
	slug := strings.ToLower(strings.TrimSpace(e.Slug))
	if slug == "" {
		return 0, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.bySlug[slug]
	if ok {
		e.ID = existing.ID
		e.CreatedAt = existing.CreatedAt
	} else {
		s.nextID++
		e.ID = s.nextID
		e.CreatedAt = time.Now().UTC()
	}
	e.Slug = slug
	e.Addresses = nil
	s.bySlug[slug] = e
	return e.ID, nil
}

// AddAddresses attaches addresses, replacing duplicates by (entity, chain, address).
func (s *EntityStore) AddAddresses(_ context.Context, addrs []domain.EntityAddress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range addrs {
		if a.Address == "" || !s.hasEntity(a.EntityID) {
			return storage.ErrInvalidInput
		}
	}
	for _, a := range addrs {
		a.Address = strings.ToLower(a.Address)
		a.Chain = strings.ToLower(a.Chain)
		if a.Role == "" {
			a.Role = domain.RoleUnknown
		}
		s.addresses[addressKey{entityID: a.EntityID, chain: a.Chain, address: a.Address}] = a
	}
	return nil
}

func (s *EntityStore) hasEntity(id int64) bool {
	for _, e := range s.bySlug {
		if e.ID == id {
			return true
		}
	}
	return false
}

func (s *EntityStore) addressesOf(id int64) []domain.EntityAddress {
	out := make([]domain.EntityAddress, 0)
	for k, a := range s.addresses {
		if k.entityID == id {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Chain != out[j].Chain {
			return out[i].Chain < out[j].Chain
		}
		return out[i].Address < out[j].Address
	})
	return out
}
