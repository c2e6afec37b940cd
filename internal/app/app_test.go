package app

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onchain-intel/internal/config"
	"onchain-intel/internal/domain"
	"onchain-intel/internal/storage/memory"
)

func dailyBuckets(n int) []domain.FlowBucket {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]domain.FlowBucket, n)
	for i := range out {
		out[i] = domain.FlowBucket{
			Date:      start.AddDate(0, 0, i),
			Inflow:    decimal.NewFromInt(int64(i)),
			InflowUSD: decimal.NewFromInt(int64(i)),
			Net:       decimal.NewFromInt(int64(i)),
			NetUSD:    decimal.NewFromInt(int64(i)),
			TxCount:   i,
		}
	}
	return out
}

func TestDownsampleBucketsKeepsEndpoints(t *testing.T) {
	in := dailyBuckets(30)

	out := downsampleBuckets(in, 5)
	require.Len(t, out, 5)
	assert.Equal(t, in[0].Date, out[0].Date)
	assert.Equal(t, in[29].Date, out[4].Date)

	assert.Len(t, downsampleBuckets(in, 0), 30)
	assert.Len(t, downsampleBuckets(in, 100), 30)
	assert.Equal(t, in[29].Date, downsampleBuckets(in, 1)[0].Date)
}

func TestWriteFlowsCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "flows.csv")
	require.NoError(t, writeFlowsCSV(path, dailyBuckets(3)))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "date", rows[0][0])
	assert.Equal(t, []string{"2025-01-03", "2", "0", "2", "2.00", "0.00", "2.00", "2"}, rows[3])
}

func TestWriteFlowsPNGNeedsTwoPoints(t *testing.T) {
	err := writeFlowsPNG(filepath.Join(t.TempDir(), "flows.png"), "binance", dailyBuckets(1))
	assert.Error(t, err)
}

func TestDecodeTokens(t *testing.T) {
	tokens, err := decodeTokens(strings.NewReader(`[
		{"symbol":"aaa","contractAddress":"0xAA","marketCap":1e9,"volume24h":1e8,"priceChange24h":10},
		{"symbol":"bbb","chainId":137,"marketCap":1e6}
	]`))
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.Equal(t, domain.ChainIDEthereum, tokens[0].ChainID)
	assert.Equal(t, domain.ChainIDPolygon, tokens[1].ChainID)
	assert.True(t, tokens[0].Active)

	_, err = decodeTokens(strings.NewReader(`[]`))
	assert.Error(t, err)

	_, err = decodeTokens(strings.NewReader(`[{"name":"no symbol"}]`))
	assert.Error(t, err)
}

func TestFailedOps(t *testing.T) {
	p := domain.EntityProfile{
		Holdings:     domain.HoldingsResult{Source: domain.SourceIndexed},
		Flows:        domain.FlowsResult{Source: domain.SourceError},
		Bridges:      domain.BridgeResult{Source: domain.SourceNoData},
		Transactions: domain.TransactionsResult{Source: domain.SourceIndexed},
		Patterns:     domain.PatternResult{Source: domain.SourceError},
	}
	assert.Equal(t, []string{"flows", "patterns"}, failedOps(p))
	assert.Empty(t, failedOps(domain.EntityProfile{}))
}

func TestEntitySlugs(t *testing.T) {
	ctx := context.Background()
	store := memory.NewEntityStore()
	_, err := store.UpsertEntity(ctx, domain.Entity{Slug: "binance", Name: "Binance"})
	require.NoError(t, err)

	slugs, err := entitySlugs(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, []string{"binance"}, slugs)
}

func TestOpenStoresFallsBackToMemory(t *testing.T) {
	a := NewApp(&config.Config{}, zerolog.Nop())

	s, err := a.openStores(context.Background())
	require.NoError(t, err)
	defer s.Close()

	assert.False(t, s.durable)
	assert.IsType(t, &memory.TokenUniverseStore{}, s.universe)
	assert.IsType(t, &memory.Locker{}, s.locker)
}
