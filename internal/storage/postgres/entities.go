package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"onchain-intel/internal/domain"
	"onchain-intel/internal/storage"
)

const (
	getEntityBySlugSQL = `SELECT id, slug, name, category, created_at
    FROM entities
    WHERE slug = $1;`

	listEntityAddressesSQL = `SELECT entity_id, chain, address, role, label_confidence, first_seen, last_seen
    FROM entity_addresses
    WHERE entity_id = $1
    ORDER BY chain, address;`

	listEntitiesSQL = `SELECT id, slug, name, category, created_at
    FROM entities
    ORDER BY slug;`

	entitiesByAddressSQL = `SELECT DISTINCT e.slug
    FROM entities e
    JOIN entity_addresses a ON a.entity_id = e.id
    WHERE a.address = ANY($1)
    ORDER BY e.slug;`

	upsertEntitySQL = `INSERT INTO entities (slug, name, category)
    VALUES ($1,$2,$3)
    ON CONFLICT (slug) DO UPDATE
    SET name     = EXCLUDED.name,
        category = EXCLUDED.category
    RETURNING id;`

	upsertEntityAddressSQL = `INSERT INTO entity_addresses (
        entity_id,
        chain,
        address,
        role,
        label_confidence,
        first_seen,
        last_seen
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    ON CONFLICT (entity_id, chain, address) DO UPDATE
    SET role             = EXCLUDED.role,
        label_confidence = EXCLUDED.label_confidence,
        first_seen       = COALESCE(entity_addresses.first_seen, EXCLUDED.first_seen),
        last_seen        = GREATEST(entity_addresses.last_seen, EXCLUDED.last_seen);`
)

// GetEntityBySlug returns the entity with its addresses.
func (s *Store) GetEntityBySlug(ctx context.Context, slug string) (domain.Entity, error) {
	pool, err := s.getPool()
	if err != nil {
		return domain.Entity{}, err
	}

	var e domain.Entity
	if err := pool.QueryRow(ctx, getEntityBySlugSQL, strings.ToLower(slug)).
		Scan(&e.ID, &e.Slug, &e.Name, &e.Category, &e.CreatedAt); err != nil {
		if isNotFoundError(err) {
			return domain.Entity{}, storage.ErrNotFound
		}
		return domain.Entity{}, fmt.Errorf("get entity by slug: %w", err)
	}

	rows, err := pool.Query(ctx, listEntityAddressesSQL, e.ID)
	if err != nil {
		return domain.Entity{}, fmt.Errorf("list entity addresses: %w", err)
	}
	defer rows.Close()

	e.Addresses = make([]domain.EntityAddress, 0)
	for rows.Next() {
		var (
			a    domain.EntityAddress
			role string
		)
		if err := rows.Scan(&a.EntityID, &a.Chain, &a.Address, &role, &a.LabelConfidence, &a.FirstSeen, &a.LastSeen); err != nil {
			return domain.Entity{}, fmt.Errorf("scan entity address: %w", err)
		}
		a.Role = domain.ParseAddressRole(role)
		e.Addresses = append(e.Addresses, a)
	}
	if rows.Err() != nil {
		return domain.Entity{}, rows.Err()
	}
	return e, nil
}

// ListEntities returns every entity without addresses.
func (s *Store) ListEntities(ctx context.Context) ([]domain.Entity, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, listEntitiesSQL)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	entities := make([]domain.Entity, 0)
	for rows.Next() {
		var e domain.Entity
		if err := rows.Scan(&e.ID, &e.Slug, &e.Name, &e.Category, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

// EntitiesByAddress returns slugs of entities owning any of the addresses.
func (s *Store) EntitiesByAddress(ctx context.Context, addresses []string) ([]string, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	if len(addresses) == 0 {
		return nil, nil
	}

	lowered := make([]string, len(addresses))
	for i, a := range addresses {
		lowered[i] = strings.ToLower(a)
	}

	rows, err := pool.Query(ctx, entitiesByAddressSQL, lowered)
	if err != nil {
		return nil, fmt.Errorf("entities by address: %w", err)
	}
	defer rows.Close()

	slugs := make([]string, 0)
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, err
		}
		slugs = append(slugs, slug)
	}
	return slugs, rows.Err()
}

// UpsertEntity creates or updates an entity by slug.
func (s *Store) UpsertEntity(ctx context.Context, e domain.Entity) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	slug := strings.ToLower(strings.TrimSpace(e.Slug))
	if slug == "" {
		return 0, storage.ErrInvalidInput
	}

	var id int64
	if err := pool.QueryRow(ctx, upsertEntitySQL, slug, e.Name, e.Category).Scan(&id); err != nil {
		return 0, fmt.Errorf("upsert entity: %w", err)
	}
	return id, nil
}

// AddAddresses attaches addresses to their entities in one transaction.
func (s *Store) AddAddresses(ctx context.Context, addrs []domain.EntityAddress) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if len(addrs) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, a := range addrs {
		if a.Address == "" || a.EntityID == 0 {
			return storage.ErrInvalidInput
		}
		role := a.Role
		if role == "" {
			role = domain.RoleUnknown
		}
		batch.Queue(upsertEntityAddressSQL,
			a.EntityID,
			strings.ToLower(a.Chain),
			strings.ToLower(a.Address),
			string(role),
			a.LabelConfidence,
			a.FirstSeen,
			a.LastSeen,
		)
	}

	if err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		return execBatch(ctx, tx, batch)
	}); err != nil {
		return fmt.Errorf("add entity addresses: %w", err)
	}
	return nil
}
