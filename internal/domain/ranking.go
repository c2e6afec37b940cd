package domain

import "time"

// Bucket is the coarse classification derived from a composite score.
type Bucket string

const (
	BucketBuy   Bucket = "BUY"
	BucketWatch Bucket = "WATCH"
	BucketSell  Bucket = "SELL"
)

// Buckets lists every bucket in descending order of preference.
var Buckets = []Bucket{BucketBuy, BucketWatch, BucketSell}

// Valid reports whether b is a known bucket.
func (b Bucket) Valid() bool {
	switch b {
	case BucketBuy, BucketWatch, BucketSell:
		return true
	}
	return false
}

// RankingSource marks records produced by the rules engine.
const RankingSource = "rules"

// RankingRecord is the persisted ranking of one token.
// Exactly one live record exists per (ContractAddress, ChainID).
type RankingRecord struct {
	Symbol           string
	Name             string
	ContractAddress  string
	ChainID          int64
	MarketCapScore   float64
	VolumeScore      float64
	MomentumScore    float64
	EngineConfidence float64
	EngineRisk       float64
	MLAdjustment     float64
	CompositeScore   float64
	Bucket           Bucket
	BucketRank       int
	GlobalRank       int
	PriceUSD         float64
	PriceChange24h   float64
	MarketCap        float64
	Volume24h        float64
	ImageURL         string
	Source           string
	ComputedAt       time.Time
}

// Key returns the upsert key of the record.
func (r RankingRecord) Key() TokenKey {
	return TokenKey{ContractAddress: r.ContractAddress, ChainID: r.ChainID}
}

// BucketCounts holds the number of tokens assigned to each bucket.
type BucketCounts struct {
	Buy   int `json:"BUY"`
	Watch int `json:"WATCH"`
	Sell  int `json:"SELL"`
}

// Add increments the counter for b.
func (c *BucketCounts) Add(b Bucket) {
	switch b {
	case BucketBuy:
		c.Buy++
	case BucketWatch:
		c.Watch++
	case BucketSell:
		c.Sell++
	}
}

// Set overwrites the counter for b.
func (c *BucketCounts) Set(b Bucket, n int) {
	switch b {
	case BucketBuy:
		c.Buy = n
	case BucketWatch:
		c.Watch = n
	case BucketSell:
		c.Sell = n
	}
}

// Get returns the counter for b.
func (c BucketCounts) Get(b Bucket) int {
	switch b {
	case BucketBuy:
		return c.Buy
	case BucketWatch:
		return c.Watch
	case BucketSell:
		return c.Sell
	}
	return 0
}

// Total returns the sum over all buckets.
func (c BucketCounts) Total() int {
	return c.Buy + c.Watch + c.Sell
}

// BucketSummary is the persisted state of the ranking table.
type BucketSummary struct {
	Counts       BucketCounts
	LastComputed *time.Time
}

// RankingSort selects the order of a ranking query.
type RankingSort string

const (
	SortGlobalRank RankingSort = "global_rank"
	SortBucketRank RankingSort = "bucket_rank"
	SortMomentum   RankingSort = "momentum"
	SortComposite  RankingSort = "composite"
)

// RankingFilter narrows a ranking query. Zero values match everything.
type RankingFilter struct {
	Bucket  Bucket
	Symbol  string
	ChainID int64
}
