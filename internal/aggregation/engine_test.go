package aggregation

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onchain-intel/internal/cache"
	"onchain-intel/internal/domain"
	"onchain-intel/internal/storage/memory"
)

func TestHoldingsConservation(t *testing.T) {
	f := newFixture(t, Options{})
	f.addEntity(t, "binance", hotWallet)
	f.add(t,
		transfer(testNow.Add(-72*time.Hour), outsider1, hotWallet, usdcToken, "10", "10"),
		transfer(testNow.Add(-48*time.Hour), outsider2, hotWallet, usdcToken, "20", "20"),
		transfer(testNow.Add(-24*time.Hour), hotWallet, outsider1, usdcToken, "5", "5"),
	)

	res := f.engine.Holdings(context.Background(), "binance")

	require.Equal(t, domain.SourceIndexed, res.Source)
	require.Len(t, res.Holdings, 1)
	h := res.Holdings[0]
	assert.True(t, h.Balance.Equal(dec("25")), h.Balance.String())
	assert.Equal(t, "USDC", h.Symbol)
	assert.True(t, h.Verified)
	require.True(t, h.ValueUSD.Valid)
	assert.True(t, h.ValueUSD.Decimal.Equal(dec("25")))
	assert.Equal(t, 100.0, h.Percentage)
	assert.Equal(t, 3, h.TxCount)
	assert.True(t, res.TotalUSD.Equal(dec("25")))
	assert.Equal(t, 1, res.TotalTokens)
	require.NotNil(t, res.LastUpdated)
	assert.Equal(t, testNow.Add(-24*time.Hour), *res.LastUpdated)
}

func TestHoldingsKeepNegativeAndUnpricedBalances(t *testing.T) {
	f := newFixture(t, Options{})
	f.addEntity(t, "wintermute", hotWallet, coldWallet)
	f.add(t,
		transfer(testNow.Add(-5*time.Hour), hotWallet, outsider1, wethToken, "3", "9000"),
		transfer(testNow.Add(-4*time.Hour), outsider1, coldWallet, usdcToken, "100", ""),
		transfer(testNow.Add(-3*time.Hour), hotWallet, coldWallet, usdcToken, "40", ""),
	)

	res := f.engine.Holdings(context.Background(), "wintermute")
	require.Equal(t, domain.SourceIndexed, res.Source)
	require.Len(t, res.Holdings, 2)

	byToken := map[string]domain.Holding{}
	for _, h := range res.Holdings {
		byToken[h.TokenAddress] = h
	}
	weth := byToken[wethToken]
	assert.True(t, weth.Balance.Equal(dec("-3")))
	assert.Equal(t, "WETH", weth.Symbol)
	require.True(t, weth.ValueUSD.Valid)
	assert.True(t, weth.ValueUSD.Decimal.Equal(dec("-9000")))

	usdc := byToken[usdcToken]
	assert.True(t, usdc.Balance.Equal(dec("100")), "internal shuffle nets to zero")
	assert.False(t, usdc.ValueUSD.Valid)
	assert.Equal(t, 0.0, usdc.Percentage)
}

func TestFlowsDailyBucketingZeroFilled(t *testing.T) {
	f := newFixture(t, Options{})
	f.addEntity(t, "binance", hotWallet)
	f.add(t,
		transfer(time.Date(2025, 3, 7, 23, 59, 0, 0, time.UTC), outsider1, hotWallet, usdcToken, "1", "1"),
		transfer(time.Date(2025, 3, 9, 10, 0, 0, 0, time.UTC), outsider1, hotWallet, usdcToken, "10", "10"),
		transfer(time.Date(2025, 3, 11, 23, 59, 59, 0, time.UTC), hotWallet, outsider2, usdcToken, "4", "4"),
		transfer(time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), outsider1, hotWallet, wethToken, "2", "6000"),
	)

	res := f.engine.Flows(context.Background(), "binance", 7)
	require.Equal(t, domain.SourceIndexed, res.Source)
	require.Len(t, res.Daily, 7)

	assert.Equal(t, time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC), res.Daily[0].Date)
	assert.Equal(t, time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), res.Daily[6].Date)

	active := map[int]bool{1: true, 3: true, 6: true}
	for i, b := range res.Daily {
		if active[i] {
			assert.Equal(t, 1, b.TxCount, "day %d", i)
			continue
		}
		assert.Equal(t, 0, b.TxCount, "day %d", i)
		assert.True(t, b.Inflow.IsZero(), "day %d", i)
		assert.True(t, b.Outflow.IsZero(), "day %d", i)
	}
	assert.True(t, res.Daily[1].Inflow.Equal(dec("10")))
	assert.True(t, res.Daily[3].Net.Equal(dec("-4")))
	assert.True(t, res.Daily[6].InflowUSD.Equal(dec("6000")))

	assert.True(t, res.TotalInflow.Equal(dec("6010")))
	assert.True(t, res.TotalOutflow.Equal(dec("4")))
	assert.True(t, res.NetFlow.Equal(dec("6006")))

	require.Len(t, res.Tokens, 2)
	assert.Equal(t, "WETH", res.Tokens[0].Symbol)
	assert.Equal(t, domain.FlowInflow, res.Tokens[0].DominantFlow)
	assert.Equal(t, "USDC", res.Tokens[1].Symbol)
	assert.True(t, res.Tokens[1].Net.Equal(dec("6")))
	assert.Equal(t, 2, res.Tokens[1].TxCount)
}

func TestFlowsNeutralOnExactZeroNet(t *testing.T) {
	f := newFixture(t, Options{})
	f.addEntity(t, "jump", hotWallet)
	f.add(t,
		transfer(testNow.Add(-2*time.Hour), outsider1, hotWallet, usdcToken, "5.5", "5.5"),
		transfer(testNow.Add(-1*time.Hour), hotWallet, outsider2, usdcToken, "5.50", "5.5"),
		transfer(testNow.Add(-1*time.Hour), hotWallet, outsider2, wethToken, "0.000001", ""),
	)

	res := f.engine.Flows(context.Background(), "jump", 1)
	require.Len(t, res.Daily, 1)
	require.Len(t, res.Tokens, 2)

	byToken := map[string]domain.TokenFlow{}
	for _, tf := range res.Tokens {
		byToken[tf.TokenAddress] = tf
	}
	assert.Equal(t, domain.FlowNeutral, byToken[usdcToken].DominantFlow)
	assert.Equal(t, domain.FlowOutflow, byToken[wethToken].DominantFlow)
}

func TestFlowsRejectsUnsupportedWindow(t *testing.T) {
	f := newFixture(t, Options{})
	f.addEntity(t, "binance", hotWallet)

	res := f.engine.Flows(context.Background(), "binance", 14)
	assert.Equal(t, domain.SourceError, res.Source)
	assert.NotEmpty(t, res.Error)
	assert.Empty(t, res.Daily)
	assert.False(t, f.engine.SupportsWindow(14))
	assert.True(t, f.engine.SupportsWindow(30))
}

func TestFlowsCountsInternalTransfersBothWays(t *testing.T) {
	f := newFixture(t, Options{})
	f.addEntity(t, "okx", hotWallet, coldWallet)
	f.add(t, transfer(testNow.Add(-time.Hour), hotWallet, coldWallet, usdcToken, "7", "7"))

	res := f.engine.Flows(context.Background(), "okx", 1)
	require.Len(t, res.Tokens, 1)
	assert.True(t, res.Tokens[0].Inflow.Equal(dec("7")))
	assert.True(t, res.Tokens[0].Outflow.Equal(dec("7")))
	assert.Equal(t, domain.FlowNeutral, res.Tokens[0].DominantFlow)
	assert.True(t, res.NetFlow.IsZero())
}

func TestBridgeFlowsGroupByRoute(t *testing.T) {
	f := newFixture(t, Options{})
	f.addEntity(t, "binance", hotWallet)
	f.add(t,
		bridged(transfer(testNow.Add(-3*time.Hour), hotWallet, outsider1, usdcToken, "100", "100"), "ethereum", "arbitrum"),
		bridged(transfer(testNow.Add(-2*time.Hour), hotWallet, outsider1, usdcToken, "50", "50"), "ethereum", "arbitrum"),
		bridged(transfer(testNow.Add(-1*time.Hour), outsider2, hotWallet, wethToken, "1", "3000"), "arbitrum", "base"),
		transfer(testNow.Add(-1*time.Hour), hotWallet, outsider2, usdcToken, "999", "999"),
	)

	res := f.engine.BridgeFlows(context.Background(), "binance")
	require.Equal(t, domain.SourceIndexed, res.Source)
	require.Len(t, res.Routes, 2)

	assert.Equal(t, "WETH", res.Routes[0].Asset)
	assert.Equal(t, RouteCrossChain, res.Routes[0].Direction)

	usdc := res.Routes[1]
	assert.Equal(t, "ethereum", usdc.FromChain)
	assert.Equal(t, "arbitrum", usdc.ToChain)
	assert.Equal(t, RouteL1ToL2, usdc.Direction)
	assert.Equal(t, 2, usdc.TxCount)
	assert.True(t, usdc.Volume.Equal(dec("150")))

	assert.True(t, res.Summary.L1ToL2.Equal(dec("150")))
	assert.True(t, res.Summary.CrossChain.Equal(dec("3000")))
	assert.True(t, res.TotalVolumeUSD.Equal(dec("3150")))
}

func TestRouteDirection(t *testing.T) {
	assert.Equal(t, RouteL1ToL2, routeDirection("Ethereum", "zksync"))
	assert.Equal(t, RouteCrossChain, routeDirection("arbitrum", "ethereum"))
	assert.Equal(t, RouteCrossChain, routeDirection("ethereum", "bsc"))
}

func TestTransactionsDirectionAndLimit(t *testing.T) {
	f := newFixture(t, Options{})
	f.addEntity(t, "binance", hotWallet, coldWallet)
	f.add(t,
		transfer(testNow.Add(-3*time.Hour), outsider1, hotWallet, usdcToken, "1", "1"),
		transfer(testNow.Add(-2*time.Hour), hotWallet, coldWallet, usdcToken, "2", "2"),
		transfer(testNow.Add(-1*time.Hour), coldWallet, outsider2, "0x1234567890abcdef1234567890abcdef1234abcd", "3", ""),
	)

	res := f.engine.Transactions(context.Background(), "binance", 0)
	require.Equal(t, domain.SourceIndexed, res.Source)
	require.Len(t, res.Transactions, 3)

	assert.Equal(t, domain.DirectionOut, res.Transactions[0].Direction)
	assert.Equal(t, "0x1234...abcd", res.Transactions[0].Symbol)
	assert.False(t, res.Transactions[0].Verified)
	assert.Equal(t, 18, res.Transactions[0].Decimals)
	assert.Equal(t, "0x0000...00b2", res.Transactions[0].FromShort)

	assert.Equal(t, domain.DirectionInternal, res.Transactions[1].Direction)
	assert.Equal(t, domain.DirectionIn, res.Transactions[2].Direction)
	assert.Equal(t, 6, res.Transactions[2].Decimals)

	limited := f.engine.Transactions(context.Background(), "binance", 1)
	require.Len(t, limited.Transactions, 1)
	assert.Equal(t, res.Transactions[0].TxHash, limited.Transactions[0].TxHash)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 20, ClampLimit(0, DefaultTransactionLimit))
	assert.Equal(t, 20, ClampLimit(-3, DefaultTransactionLimit))
	assert.Equal(t, 100, ClampLimit(500, DefaultTransactionLimit))
	assert.Equal(t, 1, ClampLimit(1, DefaultTransactionLimit))
}

func TestPatternBridgeClassifiesAddresses(t *testing.T) {
	f := newFixture(t, Options{})
	f.addEntity(t, "binance", hotWallet, coldWallet)

	var transfers []domain.Transfer
	for i := 0; i < 4; i++ {
		transfers = append(transfers, transfer(testNow.Add(-time.Duration(48+i)*time.Hour), outsider1, coldWallet, usdcToken, "10", "10"))
	}
	busy := time.Date(2025, 3, 13, 8, 0, 0, 0, time.UTC)
	for i, token := range []string{usdcToken, wethToken, usdcToken, wethToken, usdcToken, wethToken} {
		transfers = append(transfers, transfer(busy.Add(time.Duration(i)*time.Minute), hotWallet, outsider2, token, "1", "2"))
	}
	f.add(t, transfers...)

	res := f.engine.PatternBridge(context.Background(), "binance")
	require.Equal(t, domain.SourceIndexed, res.Source)
	assert.Equal(t, 2, res.TotalAddresses)
	require.Len(t, res.Patterns, 2)

	hf := res.Patterns[0]
	assert.Equal(t, PatternHighFrequency, hf.Pattern)
	assert.Equal(t, 6, hf.TotalTxCount)
	require.Len(t, hf.Addresses, 1)
	assert.Equal(t, hotWallet, hf.Addresses[0].Address)
	assert.Equal(t, 60.0, hf.Addresses[0].PatternScore)
	assert.Equal(t, []string{"USDC", "WETH"}, hf.Addresses[0].DominantTokens)
	assert.True(t, hf.Addresses[0].AvgValueUSD.Equal(dec("2")))

	acc := res.Patterns[1]
	assert.Equal(t, PatternAccumulator, acc.Pattern)
	assert.NotEmpty(t, acc.Description)
	assert.Equal(t, 100.0, acc.AvgPatternScore)
	assert.Equal(t, domain.RoleCold, acc.Addresses[0].Role)
	assert.Equal(t, "0x0000...00b2", acc.Addresses[0].Short)
}

func TestUnknownOrEmptyEntityIsNoData(t *testing.T) {
	f := newFixture(t, Options{})
	f.addEntity(t, "ghost")
	ctx := context.Background()

	for _, slug := range []string{"ghost", "does-not-exist"} {
		assert.Equal(t, domain.SourceNoData, f.engine.Holdings(ctx, slug).Source, slug)
		flows := f.engine.Flows(ctx, slug, 7)
		assert.Equal(t, domain.SourceNoData, flows.Source, slug)
		assert.Len(t, flows.Daily, 7)
		assert.Equal(t, domain.SourceNoData, f.engine.BridgeFlows(ctx, slug).Source, slug)
		assert.Equal(t, domain.SourceNoData, f.engine.Transactions(ctx, slug, 10).Source, slug)
		patterns := f.engine.PatternBridge(ctx, slug)
		assert.Equal(t, domain.SourceNoData, patterns.Source, slug)
		assert.NotNil(t, patterns.Patterns)
	}
}

func TestLedgerFailureDegradesToError(t *testing.T) {
	entities := memory.NewEntityStore()
	ctx := context.Background()
	id, err := entities.UpsertEntity(ctx, domain.Entity{Slug: "binance"})
	require.NoError(t, err)
	require.NoError(t, entities.AddAddresses(ctx, []domain.EntityAddress{{EntityID: id, Chain: "ethereum", Address: hotWallet}}))

	engine := New(entities, failingLedger{}, nil, Options{Now: func() time.Time { return testNow }}, zerolog.Nop())
	defer engine.Close()

	profile := engine.Profile(ctx, "binance", 7)
	assert.Equal(t, domain.SourceError, profile.Holdings.Source)
	assert.Equal(t, "ledger unavailable", profile.Holdings.Error)
	assert.Equal(t, domain.SourceError, profile.Flows.Source)
	assert.Len(t, profile.Flows.Daily, 7)
	assert.Equal(t, domain.SourceError, profile.Bridges.Source)
	assert.Equal(t, domain.SourceError, profile.Transactions.Source)
	assert.Equal(t, domain.SourceError, profile.Patterns.Source)
}

func TestProfileRunsEveryAggregate(t *testing.T) {
	f := newFixture(t, Options{Workers: 2})
	f.addEntity(t, "binance", hotWallet)
	f.add(t,
		transfer(testNow.Add(-time.Hour), outsider1, hotWallet, usdcToken, "10", "10"),
		bridged(transfer(testNow.Add(-time.Hour), hotWallet, outsider1, usdcToken, "1", "1"), "ethereum", "base"),
	)

	p := f.engine.Profile(context.Background(), "binance", 7)
	assert.Equal(t, domain.SourceIndexed, p.Holdings.Source)
	assert.Equal(t, domain.SourceIndexed, p.Flows.Source)
	assert.Equal(t, domain.SourceIndexed, p.Bridges.Source)
	assert.Equal(t, domain.SourceIndexed, p.Transactions.Source)
	assert.Equal(t, domain.SourceIndexed, p.Patterns.Source)
	assert.True(t, p.Holdings.Holdings[0].Balance.Equal(dec("9")))
}

func TestFlowsAreDeterministic(t *testing.T) {
	f := newFixture(t, Options{})
	f.addEntity(t, "binance", hotWallet, coldWallet)
	for i := 0; i < 20; i++ {
		from, to := outsider1, hotWallet
		if i%3 == 0 {
			from, to = coldWallet, outsider2
		}
		token := usdcToken
		if i%2 == 0 {
			token = wethToken
		}
		f.add(t, transfer(testNow.Add(-time.Duration(i*7)*time.Hour), from, to, token, "1.1", "3.3"))
	}

	first := f.engine.Flows(context.Background(), "binance", 30)
	second := f.engine.Flows(context.Background(), "binance", 30)
	assert.Equal(t, first, second)
}

func TestCachedAggregatesInvalidate(t *testing.T) {
	mc := cache.NewMemoryCache()
	f := newFixture(t, Options{Cache: mc, CacheTTL: time.Minute})
	f.addEntity(t, "binance", hotWallet)
	f.add(t, transfer(testNow.Add(-time.Hour), outsider1, hotWallet, usdcToken, "10", "10"))
	ctx := context.Background()

	first := f.engine.Holdings(ctx, "binance")
	require.True(t, first.TotalUSD.Equal(dec("10")))
	assert.Equal(t, 1, mc.Len())

	f.add(t, transfer(testNow.Add(-time.Minute), outsider1, hotWallet, usdcToken, "5", "5"))
	stale := f.engine.Holdings(ctx, "binance")
	assert.True(t, stale.TotalUSD.Equal(dec("10")))

	removed, err := f.engine.Invalidate(ctx, "Binance")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	fresh := f.engine.Holdings(ctx, "binance")
	assert.True(t, fresh.TotalUSD.Equal(dec("15")))
}

func TestNoDataIsNotCached(t *testing.T) {
	mc := cache.NewMemoryCache()
	f := newFixture(t, Options{Cache: mc})
	f.addEntity(t, "binance", hotWallet)

	_ = f.engine.Holdings(context.Background(), "binance")
	assert.Equal(t, 0, mc.Len())
}
