package storage

import (
	"context"
	"time"

	"onchain-intel/internal/domain"
)

// TokenUniverseStore provides access to the token universe.
type TokenUniverseStore interface {
	// ListActiveTokens returns every token flagged active.
	ListActiveTokens(ctx context.Context) ([]domain.Token, error)

	// UpsertTokens inserts or fully replaces tokens keyed by (contract_address, chain_id).
	UpsertTokens(ctx context.Context, tokens []domain.Token) (int, error)

	// MarkInactive deactivates tokens not updated since olderThan and returns the count.
	MarkInactive(ctx context.Context, olderThan time.Time) (int, error)

	// Stats summarises the universe.
	Stats(ctx context.Context) (domain.UniverseStats, error)
}

// RankingStore persists ranking records.
type RankingStore interface {
	// UpsertRankings atomically replaces the stored ranking with records, keyed by
	// (contract_address, chain_id). Keys missing from records are removed.
	UpsertRankings(ctx context.Context, records []domain.RankingRecord) error

	// Query returns records matching filter in the requested order.
	Query(ctx context.Context, filter domain.RankingFilter, sort domain.RankingSort, limit int) ([]domain.RankingRecord, error)

	// ListByBucket returns records of one bucket ordered by bucket rank.
	ListByBucket(ctx context.Context, bucket domain.Bucket, limit int) ([]domain.RankingRecord, error)

	// Summary counts records per bucket. LastComputed is nil when empty.
	Summary(ctx context.Context) (domain.BucketSummary, error)

	// GetBySymbol returns the record of a symbol. Returns ErrNotFound if absent.
	GetBySymbol(ctx context.Context, symbol string) (domain.RankingRecord, error)

	// TopMovers returns records ordered by momentum score descending.
	TopMovers(ctx context.Context, limit int) ([]domain.RankingRecord, error)
}

// TransferLedger is the read side of the transfer ledger.
type TransferLedger interface {
	FindTransfers(ctx context.Context, filter domain.TransferFilter) ([]domain.Transfer, error)
}

// TransferWriter appends transfers to the ledger. Used by seeding and tests.
type TransferWriter interface {
	InsertTransfers(ctx context.Context, transfers []domain.Transfer) error
}

// EntityStore provides access to entities and their addresses.
type EntityStore interface {
	// GetEntityBySlug returns the entity with its addresses. Returns ErrNotFound if absent.
	GetEntityBySlug(ctx context.Context, slug string) (domain.Entity, error)

	// ListEntities returns every entity without addresses.
	ListEntities(ctx context.Context) ([]domain.Entity, error)

	// EntitiesByAddress returns slugs of entities owning any of the addresses.
	EntitiesByAddress(ctx context.Context, addresses []string) ([]string, error)

	// UpsertEntity creates or updates an entity by slug and returns its id.
	UpsertEntity(ctx context.Context, e domain.Entity) (int64, error)

	// AddAddresses attaches addresses; (entity_id, chain, address) is unique.
	AddAddresses(ctx context.Context, addrs []domain.EntityAddress) error
}

// TokenRegistry stores resolved token metadata.
type TokenRegistry interface {
	// GetToken returns registry metadata. Returns ErrNotFound if absent.
	GetToken(ctx context.Context, address, chain string) (domain.TokenInfo, error)

	UpsertToken(ctx context.Context, info domain.TokenInfo) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}
