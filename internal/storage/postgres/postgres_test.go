package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"onchain-intel/internal/config"
	"onchain-intel/internal/domain"
	"onchain-intel/internal/storage"
	"onchain-intel/internal/storage/migrations"
)

// setupStore starts a PostgreSQL container and applies the embedded migrations.
func setupStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres container tests skipped in -short mode")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("onchain"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := NewPool(ctx, config.DatabaseConfig{DSN: dsn, MaxOpenConns: 4})
	require.NoError(t, err)

	_, err = migrations.RunPostgres(ctx, pool)
	require.NoError(t, err)

	store := NewStore(pool)
	t.Cleanup(store.Close)
	return store
}

func TestPostgresStore(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	t.Run("token universe", func(t *testing.T) {
		n, err := store.UpsertTokens(ctx, []domain.Token{
			{Symbol: "USDC", ContractAddress: "0xA0B86991C6218B36C1D19D4A2E9EB0CE3606EB48", ChainID: 1, MarketCap: 3e10, Volume24h: 5e9, Active: true, LastUpdated: now},
			{Symbol: "OLD", ContractAddress: "0x00000000000000000000000000000000000000cc", ChainID: 137, Active: true, LastUpdated: now.Add(-100 * time.Hour)},
		})
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		deactivated, err := store.MarkInactive(ctx, now.Add(-72*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, deactivated)

		active, err := store.ListActiveTokens(ctx)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", active[0].ContractAddress)

		stats, err := store.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, stats.TotalTokens)
		assert.Equal(t, 1, stats.ActiveTokens)
		assert.Equal(t, 1, stats.ByChain[137])
		require.NotNil(t, stats.LastSync)
	})

	t.Run("rankings", func(t *testing.T) {
		records := []domain.RankingRecord{
			{Symbol: "AAA", ContractAddress: "0x01", ChainID: 1, CompositeScore: 80, MomentumScore: 40, Bucket: domain.BucketBuy, BucketRank: 1, GlobalRank: 1, Source: domain.RankingSource, ComputedAt: now},
			{Symbol: "BBB", ContractAddress: "0x02", ChainID: 1, CompositeScore: 20, MomentumScore: 90, Bucket: domain.BucketSell, BucketRank: 1, GlobalRank: 2, Source: domain.RankingSource, ComputedAt: now},
		}
		require.NoError(t, store.UpsertRankings(ctx, records))
		require.NoError(t, store.UpsertRankings(ctx, records))

		summary, err := store.Summary(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Counts.Buy)
		assert.Equal(t, 1, summary.Counts.Sell)
		require.NotNil(t, summary.LastComputed)

		movers, err := store.TopMovers(ctx, 10)
		require.NoError(t, err)
		require.Len(t, movers, 2)
		assert.Equal(t, "BBB", movers[0].Symbol)

		rec, err := store.GetBySymbol(ctx, "AAA")
		require.NoError(t, err)
		assert.Equal(t, domain.BucketBuy, rec.Bucket)

		_, err = store.GetBySymbol(ctx, "ZZZ")
		assert.ErrorIs(t, err, storage.ErrNotFound)

		err = store.UpsertRankings(ctx, []domain.RankingRecord{{Symbol: "BAD", ContractAddress: "0x03", Bucket: "HOLD"}})
		assert.ErrorIs(t, err, storage.ErrInvalidInput)

		require.NoError(t, store.UpsertRankings(ctx, records[:1]))
		remaining, err := store.Query(ctx, domain.RankingFilter{}, domain.SortGlobalRank, 0)
		require.NoError(t, err)
		require.Len(t, remaining, 1)
		assert.Equal(t, "AAA", remaining[0].Symbol)
	})

	t.Run("entities and ledger", func(t *testing.T) {
		id, err := store.UpsertEntity(ctx, domain.Entity{Slug: "Binance", Name: "Binance", Category: "exchange"})
		require.NoError(t, err)
		require.NoError(t, store.AddAddresses(ctx, []domain.EntityAddress{
			{EntityID: id, Chain: "ethereum", Address: "0x00000000000000000000000000000000000000A1", Role: domain.RoleHot},
		}))

		entity, err := store.GetEntityBySlug(ctx, "binance")
		require.NoError(t, err)
		assert.Equal(t, []string{"0x00000000000000000000000000000000000000a1"}, entity.AddressList())

		slugs, err := store.EntitiesByAddress(ctx, []string{"0x00000000000000000000000000000000000000A1"})
		require.NoError(t, err)
		assert.Equal(t, []string{"binance"}, slugs)

		_, err = store.GetEntityBySlug(ctx, "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)

		transfer := domain.Transfer{
			Chain:        "ethereum",
			TxHash:       "0xabc",
			From:         "0x00000000000000000000000000000000000000e1",
			To:           "0x00000000000000000000000000000000000000a1",
			TokenAddress: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48",
			Amount:       decimal.RequireFromString("10.5"),
			AmountUSD:    decimal.NewNullDecimal(decimal.RequireFromString("10.5")),
			Timestamp:    now,
		}
		require.NoError(t, store.InsertTransfers(ctx, []domain.Transfer{transfer}))
		require.NoError(t, store.InsertTransfers(ctx, []domain.Transfer{transfer}))

		found, err := store.FindTransfers(ctx, domain.TransferFilter{Addresses: entity.AddressList()})
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.True(t, found[0].Amount.Equal(transfer.Amount))
		assert.True(t, found[0].AmountUSD.Valid)
		assert.Nil(t, found[0].Bridge)
	})

	t.Run("registry", func(t *testing.T) {
		_, err := store.GetToken(ctx, "0xdead", "ethereum")
		assert.ErrorIs(t, err, storage.ErrNotFound)

		require.NoError(t, store.UpsertToken(ctx, domain.TokenInfo{Address: "0xDEAD", Chain: "Ethereum", Symbol: "DEAD", Decimals: 18, Verified: true}))
		info, err := store.GetToken(ctx, "0xdead", "ethereum")
		require.NoError(t, err)
		assert.Equal(t, "DEAD", info.Symbol)
		assert.True(t, info.Verified)
	})

	t.Run("advisory lock", func(t *testing.T) {
		unlock, ok, err := store.TryAdvisoryLock(ctx, 99)
		require.NoError(t, err)
		require.True(t, ok)
		unlock()

		unlock, ok, err = store.TryAdvisoryLock(ctx, 99)
		require.NoError(t, err)
		assert.True(t, ok)
		unlock()
	})
}

func TestNilStoreIsNotConfigured(t *testing.T) {
	var store Store
	_, err := store.ListActiveTokens(context.Background())
	assert.ErrorIs(t, err, storage.ErrNotConfigured)
}
