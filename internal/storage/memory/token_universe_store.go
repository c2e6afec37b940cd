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

// TokenUniverseStore is an in-memory implementation of storage.TokenUniverseStore.
type TokenUniverseStore struct {
	mu     sync.RWMutex
	tokens map[domain.TokenKey]domain.Token
}

// NewTokenUniverseStore creates a new TokenUniverseStore.
func NewTokenUniverseStore() *TokenUniverseStore {
	return &TokenUniverseStore{tokens: make(map[domain.TokenKey]domain.Token)}
}

var _ storage.TokenUniverseStore = (*TokenUniverseStore)(nil)

// ListActiveTokens returns active tokens ordered by (chain_id, contract_address).
func (s *TokenUniverseStore) ListActiveTokens(_ context.Context) ([]domain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Token, 0, len(s.tokens))
	for _, t := range s.tokens {
		if t.Active {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ChainID != out[j].ChainID {
			return out[i].ChainID < out[j].ChainID
		}
		return out[i].ContractAddress < out[j].ContractAddress
	})
	return out, nil
}

// UpsertTokens fully replaces tokens by key.
func (s *TokenUniverseStore) UpsertTokens(_ context.Context, tokens []domain.Token) (int, error) {
	for _, t := range tokens {
		if t.ContractAddress == "" {
			return 0, storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tokens {
		t.ContractAddress = strings.ToLower(t.ContractAddress)
		s.tokens[t.Key()] = t
	}
	return len(tokens), nil
}

// MarkInactive deactivates stale tokens.
func (s *TokenUniverseStore) MarkInactive(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for k, t := range s.tokens {
		if t.Active && t.LastUpdated.Before(olderThan) {
			t.Active = false
			s.tokens[k] = t
			count++
		}
	}
	return count, nil
}

// Stats summarises the stored universe.
func (s *TokenUniverseStore) Stats(_ context.Context) (domain.UniverseStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := domain.UniverseStats{ByChain: make(map[int64]int)}
	for _, t := range s.tokens {
		stats.TotalTokens++
		if t.Active {
			stats.ActiveTokens++
		}
		stats.ByChain[t.ChainID]++
		if stats.LastSync == nil || t.LastUpdated.After(*stats.LastSync) {
			last := t.LastUpdated
			stats.LastSync = &last
		}
	}
	return stats, nil
}
