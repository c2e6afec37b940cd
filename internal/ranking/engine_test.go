package ranking

import (
	"fmt"
	"hash/fnv"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onchain-intel/internal/domain"
)

var fixedNow = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

func token(symbol string, marketCap, volume, change float64) domain.Token {
	h := fnv.New64a()
	_, _ = h.Write([]byte(symbol))
	return domain.Token{
		Symbol:          symbol,
		Name:            symbol + " token",
		ContractAddress: fmt.Sprintf("0x%040x", h.Sum64()),
		ChainID:         domain.ChainIDEthereum,
		MarketCap:       marketCap,
		Volume24h:       volume,
		PriceUSD:        1,
		PriceChange24h:  change,
		Active:          true,
	}
}

func recordBySymbol(t *testing.T, res Result, symbol string) domain.RankingRecord {
	t.Helper()
	for _, r := range res.Records {
		if r.Symbol == symbol {
			return r
		}
	}
	t.Fatalf("record %s not found", symbol)
	return domain.RankingRecord{}
}

func TestComputeEmptyInput(t *testing.T) {
	res := Compute(nil, DefaultConfig(), fixedNow)

	assert.Equal(t, 0, res.Computed)
	assert.Empty(t, res.Records)
	assert.Equal(t, domain.BucketCounts{}, res.Buckets)
}

func TestComputeReferenceScores(t *testing.T) {
	tokens := []domain.Token{
		token("BIG", 1e9, 1e8, 10),
		token("SMALL", 1e6, 1e5, -10),
	}

	res := Compute(tokens, DefaultConfig(), fixedNow)
	require.Equal(t, 2, res.Computed)

	big := recordBySymbol(t, res, "BIG")
	assert.Equal(t, 100.0, big.MarketCapScore)
	assert.Equal(t, 100.0, big.VolumeScore)
	assert.Equal(t, 60.0, big.MomentumScore)
	assert.Equal(t, 80.0, big.CompositeScore)
	assert.Equal(t, domain.BucketBuy, big.Bucket)
	assert.Equal(t, 1, big.GlobalRank)
	assert.Equal(t, 1, big.BucketRank)

	small := recordBySymbol(t, res, "SMALL")
	assert.Equal(t, 0.0, small.MarketCapScore)
	assert.Equal(t, 40.0, small.MomentumScore)
	assert.Equal(t, 20.0, small.CompositeScore)
	assert.Equal(t, domain.BucketSell, small.Bucket)
	assert.Equal(t, 2, small.GlobalRank)

	assert.Equal(t, domain.BucketCounts{Buy: 1, Sell: 1}, res.Buckets)
	assert.Equal(t, domain.RankingSource, big.Source)
	assert.Equal(t, 50.0, big.EngineConfidence)
	assert.Equal(t, 50.0, big.EngineRisk)
	assert.Equal(t, 0.0, big.MLAdjustment)
	assert.Equal(t, fixedNow, big.ComputedAt)
}

func TestComputeScoresStayWithinBounds(t *testing.T) {
	tokens := []domain.Token{
		token("A", 5e11, 3e10, 900),
		token("B", 2e6, 1e5, -99),
		token("C", 0, 0, 0),
		token("D", 7.5e7, 4.2e6, 3.3),
		token("E", 0.5, 0.2, -50),
	}

	res := Compute(tokens, DefaultConfig(), fixedNow)
	for _, r := range res.Records {
		for name, v := range map[string]float64{
			"market_cap": r.MarketCapScore,
			"volume":     r.VolumeScore,
			"momentum":   r.MomentumScore,
			"composite":  r.CompositeScore,
		} {
			assert.GreaterOrEqual(t, v, 0.0, "%s %s", r.Symbol, name)
			assert.LessOrEqual(t, v, 100.0, "%s %s", r.Symbol, name)
		}
	}
}

func TestComputeEqualMarketCapsScoreZero(t *testing.T) {
	tokens := []domain.Token{
		token("A", 1e8, 1e6, 0),
		token("B", 1e8, 5e6, 0),
		token("C", 1e8, 9e6, 0),
	}

	res := Compute(tokens, DefaultConfig(), fixedNow)
	for _, r := range res.Records {
		assert.Equal(t, 0.0, r.MarketCapScore, r.Symbol)
	}
}

func TestComputeMomentumSaturates(t *testing.T) {
	tokens := []domain.Token{
		token("MOON", 1e8, 1e6, 500),
		token("CAP", 1e8, 1e6, 50),
		token("DUMP", 1e8, 1e6, -80),
	}

	res := Compute(tokens, DefaultConfig(), fixedNow)
	moon := recordBySymbol(t, res, "MOON")
	capped := recordBySymbol(t, res, "CAP")

	assert.Equal(t, 100.0, moon.MomentumScore)
	assert.Equal(t, capped.MomentumScore, moon.MomentumScore)
	assert.Equal(t, 0.0, recordBySymbol(t, res, "DUMP").MomentumScore)
}

func TestAssignBucketBoundaries(t *testing.T) {
	th := DefaultConfig().Thresholds

	assert.Equal(t, domain.BucketBuy, AssignBucket(70, th))
	assert.Equal(t, domain.BucketWatch, AssignBucket(69.99, th))
	assert.Equal(t, domain.BucketWatch, AssignBucket(40, th))
	assert.Equal(t, domain.BucketSell, AssignBucket(39.99, th))
}

func TestComputeBucketMonotonicAndRanksPermutation(t *testing.T) {
	tokens := make([]domain.Token, 0, 40)
	for i := 0; i < 40; i++ {
		mc := math.Pow(10, 5+float64(i%7)) * float64(1+i%3)
		vol := math.Pow(10, 3+float64(i%5))
		change := float64(i*13%140) - 70
		tokens = append(tokens, token(fmt.Sprintf("T%02d", i), mc, vol, change))
	}

	res := Compute(tokens, DefaultConfig(), fixedNow)
	require.Equal(t, len(tokens), res.Computed)

	order := map[domain.Bucket]int{domain.BucketBuy: 0, domain.BucketWatch: 1, domain.BucketSell: 2}
	seenGlobal := make(map[int]bool)
	perBucket := make(map[domain.Bucket][]int)
	for i, r := range res.Records {
		assert.Equal(t, i+1, r.GlobalRank)
		seenGlobal[r.GlobalRank] = true
		perBucket[r.Bucket] = append(perBucket[r.Bucket], r.BucketRank)

		if i > 0 {
			prev := res.Records[i-1]
			assert.GreaterOrEqual(t, prev.CompositeScore, r.CompositeScore)
			assert.LessOrEqual(t, order[prev.Bucket], order[r.Bucket])
		}
	}
	assert.Len(t, seenGlobal, len(tokens))

	for bucket, ranks := range perBucket {
		for i, rank := range ranks {
			assert.Equal(t, i+1, rank, "bucket %s", bucket)
		}
		assert.Equal(t, len(ranks), res.Buckets.Get(bucket))
	}
	assert.Equal(t, len(tokens), res.Buckets.Total())
}

func TestComputeTiesBreakBySymbol(t *testing.T) {
	a := token("ZED", 1e7, 1e6, 5)
	b := token("ALPHA", 1e7, 1e6, 5)
	c := token("MID", 1e9, 1e8, 5)

	res := Compute([]domain.Token{a, b, c}, DefaultConfig(), fixedNow)
	require.Len(t, res.Records, 3)

	assert.Equal(t, "MID", res.Records[0].Symbol)
	assert.Equal(t, "ALPHA", res.Records[1].Symbol)
	assert.Equal(t, "ZED", res.Records[2].Symbol)
}

func TestComputeIsDeterministic(t *testing.T) {
	tokens := []domain.Token{
		token("A", 3e9, 2e8, 12),
		token("B", 4e7, 9e5, -3),
		token("C", 8e8, 6e7, 41),
	}
	reversed := []domain.Token{tokens[2], tokens[1], tokens[0]}

	first := Compute(tokens, DefaultConfig(), fixedNow)
	second := Compute(reversed, DefaultConfig(), fixedNow.Add(time.Hour))

	require.Len(t, second.Records, len(first.Records))
	for i := range first.Records {
		want := first.Records[i]
		got := second.Records[i]
		got.ComputedAt = want.ComputedAt
		assert.Equal(t, want, got)
	}
}

func TestComputeSanitizesNonFiniteMetrics(t *testing.T) {
	tokens := []domain.Token{
		token("NAN", math.NaN(), 1e6, math.Inf(1)),
		token("OK", 1e9, 1e8, 0),
		token("LOW", 1e6, 1e5, 0),
	}

	res := Compute(tokens, DefaultConfig(), fixedNow)
	require.Equal(t, 3, res.Computed)
	assert.Equal(t, 1, res.Sanitized)

	bad := recordBySymbol(t, res, "NAN")
	assert.Equal(t, 0.0, bad.MarketCapScore)
	assert.Equal(t, 50.0, bad.MomentumScore)
	assert.Equal(t, 0.0, bad.PriceChange24h)
	assert.False(t, math.IsNaN(bad.CompositeScore))
}

func TestLogScaleDegenerateLogRange(t *testing.T) {
	assert.Equal(t, 50.0, logScale(0.8, bounds{min: 0.2, max: 0.9}))
	assert.Equal(t, 0.0, logScale(0, bounds{min: 0, max: 10}))
	assert.Equal(t, 0.0, logScale(5, bounds{min: 5, max: 5}))
}

func TestComputeCustomWeights(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights = Weights{Momentum: 1}
	require.NoError(t, cfg.Validate())

	res := Compute([]domain.Token{token("ONLY", 1e8, 1e6, 20)}, cfg, fixedNow)
	require.Len(t, res.Records, 1)
	assert.Equal(t, 70.0, res.Records[0].CompositeScore)
	assert.Equal(t, domain.BucketBuy, res.Records[0].Bucket)
}
