package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"onchain-intel/internal/domain"
	"onchain-intel/internal/storage"
)

// RankingStore is an in-memory implementation of storage.RankingStore.
type RankingStore struct {
	mu      sync.RWMutex
	records map[domain.TokenKey]domain.RankingRecord
}

// NewRankingStore creates a new RankingStore.
func NewRankingStore() *RankingStore {
	return &RankingStore{records: make(map[domain.TokenKey]domain.RankingRecord)}
}

var _ storage.RankingStore = (*RankingStore)(nil)

// UpsertRankings replaces the stored ranking with records. Keys absent from
// records are dropped. The batch is validated before any write.
func (s *RankingStore) UpsertRankings(_ context.Context, records []domain.RankingRecord) error {
	for _, r := range records {
		if r.ContractAddress == "" || !r.Bucket.Valid() {
			return storage.ErrInvalidInput
		}
	}

	next := make(map[domain.TokenKey]domain.RankingRecord, len(records))
	for _, r := range records {
		next[r.Key()] = r
	}

	s.mu.Lock()
	s.records = next
	s.mu.Unlock()
	return nil
}

// Query returns matching records in the requested order.
func (s *RankingStore) Query(_ context.Context, filter domain.RankingFilter, order domain.RankingSort, limit int) ([]domain.RankingRecord, error) {
	s.mu.RLock()
	out := make([]domain.RankingRecord, 0, len(s.records))
	for _, r := range s.records {
		if filter.Bucket != "" && r.Bucket != filter.Bucket {
			continue
		}
		if filter.Symbol != "" && !strings.EqualFold(r.Symbol, filter.Symbol) {
			continue
		}
		if filter.ChainID != 0 && r.ChainID != filter.ChainID {
			continue
		}
		out = append(out, r)
	}
	s.mu.RUnlock()

	sort.SliceStable(out, rankingLess(out, order))
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListByBucket returns one bucket ordered by bucket rank.
func (s *RankingStore) ListByBucket(ctx context.Context, bucket domain.Bucket, limit int) ([]domain.RankingRecord, error) {
	return s.Query(ctx, domain.RankingFilter{Bucket: bucket}, domain.SortBucketRank, limit)
}

// Summary counts records per bucket.
func (s *RankingStore) Summary(_ context.Context) (domain.BucketSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var summary domain.BucketSummary
	for _, r := range s.records {
		summary.Counts.Add(r.Bucket)
		if summary.LastComputed == nil || r.ComputedAt.After(*summary.LastComputed) {
			at := r.ComputedAt
			summary.LastComputed = &at
		}
	}
	return summary, nil
}

// GetBySymbol returns the best ranked record of a symbol.
func (s *RankingStore) GetBySymbol(ctx context.Context, symbol string) (domain.RankingRecord, error) {
	rows, err := s.Query(ctx, domain.RankingFilter{Symbol: symbol}, domain.SortGlobalRank, 1)
	if err != nil {
		return domain.RankingRecord{}, err
	}
	if len(rows) == 0 {
		return domain.RankingRecord{}, storage.ErrNotFound
	}
	return rows[0], nil
}

// TopMovers returns records ordered by momentum.
func (s *RankingStore) TopMovers(ctx context.Context, limit int) ([]domain.RankingRecord, error) {
	return s.Query(ctx, domain.RankingFilter{}, domain.SortMomentum, limit)
}

func rankingLess(rows []domain.RankingRecord, order domain.RankingSort) func(i, j int) bool {
	return func(i, j int) bool {
		a, b := rows[i], rows[j]
		switch order {
		case domain.SortBucketRank:
			if a.BucketRank != b.BucketRank {
				return a.BucketRank < b.BucketRank
			}
		case domain.SortMomentum:
			if a.MomentumScore != b.MomentumScore {
				return a.MomentumScore > b.MomentumScore
			}
		case domain.SortComposite:
			if a.CompositeScore != b.CompositeScore {
				return a.CompositeScore > b.CompositeScore
			}
		}
		return a.GlobalRank < b.GlobalRank
	}
}
