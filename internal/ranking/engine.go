package ranking

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"onchain-intel/internal/domain"
)

// Result is the outcome of one ranking computation.
type Result struct {
	RunID      string                 `json:"runId,omitempty"`
	Records    []domain.RankingRecord `json:"-"`
	Computed   int                    `json:"computed"`
	Buckets    domain.BucketCounts    `json:"buckets"`
	Duration   time.Duration          `json:"durationMs"`
	ComputedAt time.Time              `json:"computedAt"`
	// Sanitized counts tokens whose metrics were malformed and scored as 0.
	Sanitized int `json:"sanitized"`
}

type scored struct {
	token     domain.Token
	mcScore   float64
	volScore  float64
	momScore  float64
	composite float64
	bucket    domain.Bucket
}

// Compute ranks tokens under cfg. It is a pure function of its inputs; the
// returned records carry now as their computation time.
func Compute(tokens []domain.Token, cfg Config, now time.Time) Result {
	started := time.Now()
	result := Result{ComputedAt: now, Records: []domain.RankingRecord{}}
	if len(tokens) == 0 {
		result.Duration = time.Since(started)
		return result
	}

	caps := make([]float64, len(tokens))
	volumes := make([]float64, len(tokens))
	for i, t := range tokens {
		var ok1, ok2, ok3 bool
		caps[i], ok1 = finite(t.MarketCap)
		volumes[i], ok2 = finite(t.Volume24h)
		_, ok3 = finite(t.PriceChange24h)
		if !ok1 || !ok2 || !ok3 {
			result.Sanitized++
		}
	}
	capBounds := boundsOf(caps)
	volBounds := boundsOf(volumes)

	rows := make([]scored, len(tokens))
	for i, t := range tokens {
		rows[i] = scoreToken(t, caps[i], volumes[i], capBounds, volBounds, cfg)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.composite != b.composite {
			return a.composite > b.composite
		}
		if a.token.Symbol != b.token.Symbol {
			return a.token.Symbol < b.token.Symbol
		}
		if a.token.ChainID != b.token.ChainID {
			return a.token.ChainID < b.token.ChainID
		}
		return a.token.ContractAddress < b.token.ContractAddress
	})

	records := make([]domain.RankingRecord, len(rows))
	var counters domain.BucketCounts
	for i, row := range rows {
		counters.Add(row.bucket)
		records[i] = buildRecord(row, i+1, counters.Get(row.bucket), cfg, now)
	}

	result.Records = records
	result.Computed = len(records)
	result.Buckets = counters
	result.Duration = time.Since(started)
	return result
}

// AssignBucket maps a composite score onto a bucket; boundaries go to the higher bucket.
func AssignBucket(score float64, th Thresholds) domain.Bucket {
	switch {
	case score >= th.Buy:
		return domain.BucketBuy
	case score >= th.Watch:
		return domain.BucketWatch
	default:
		return domain.BucketSell
	}
}

// CompositeScore combines sub-scores with the configured weights.
func CompositeScore(mc, vol, mom float64, cfg Config) float64 {
	w := cfg.Weights
	return round2(w.MarketCap*mc + w.Volume*vol + w.Momentum*mom + w.EngineConfidence*cfg.EngineConfidence)
}

// scoreToken normalises one token. A panic while scoring degrades that token
// to zero sub-scores instead of aborting the batch.
func scoreToken(t domain.Token, marketCap, volume float64, capBounds, volBounds bounds, cfg Config) (row scored) {
	row.token = t
	defer func() {
		if r := recover(); r != nil {
			row.mcScore, row.volScore, row.momScore = 0, 0, 0
			row.composite = CompositeScore(0, 0, 0, cfg)
			row.bucket = AssignBucket(row.composite, cfg.Thresholds)
		}
	}()

	change, _ := finite(t.PriceChange24h)
	row.mcScore = round2(logScale(marketCap, capBounds))
	row.volScore = round2(logScale(volume, volBounds))
	row.momScore = round2(momentum(change))
	row.composite = CompositeScore(row.mcScore, row.volScore, row.momScore, cfg)
	row.bucket = AssignBucket(row.composite, cfg.Thresholds)
	return row
}

func buildRecord(row scored, globalRank, bucketRank int, cfg Config, now time.Time) domain.RankingRecord {
	t := row.token
	marketCap, _ := finite(t.MarketCap)
	volume, _ := finite(t.Volume24h)
	change, _ := finite(t.PriceChange24h)
	price, _ := finite(t.PriceUSD)

	return domain.RankingRecord{
		Symbol:           strings.ToUpper(t.Symbol),
		Name:             t.Name,
		ContractAddress:  strings.ToLower(t.ContractAddress),
		ChainID:          t.ChainID,
		MarketCapScore:   row.mcScore,
		VolumeScore:      row.volScore,
		MomentumScore:    row.momScore,
		EngineConfidence: cfg.EngineConfidence,
		EngineRisk:       cfg.EngineRisk,
		CompositeScore:   row.composite,
		Bucket:           row.bucket,
		BucketRank:       bucketRank,
		GlobalRank:       globalRank,
		PriceUSD:         price,
		PriceChange24h:   change,
		MarketCap:        marketCap,
		Volume24h:        volume,
		ImageURL:         t.ImageURL,
		Source:           domain.RankingSource,
		ComputedAt:       now,
	}
}

// String renders the bucket distribution for logs.
func (r Result) String() string {
	return fmt.Sprintf("computed=%d BUY=%d WATCH=%d SELL=%d", r.Computed, r.Buckets.Buy, r.Buckets.Watch, r.Buckets.Sell)
}
