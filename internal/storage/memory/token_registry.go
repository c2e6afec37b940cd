package memory

import (
	"context"
	"strings"
	"sync"

	"onchain-intel/internal/domain"
	"onchain-intel/internal/storage"
)

type registryKey struct {
	address string
	chain   string
}

// TokenRegistry is an in-memory implementation of storage.TokenRegistry.
type TokenRegistry struct {
	mu     sync.RWMutex
	tokens map[registryKey]domain.TokenInfo
}

// NewTokenRegistry creates a new TokenRegistry.
func NewTokenRegistry() *TokenRegistry {
	return &TokenRegistry{tokens: make(map[registryKey]domain.TokenInfo)}
}

var _ storage.TokenRegistry = (*TokenRegistry)(nil)

func (r *TokenRegistry) GetToken(_ context.Context, address, chain string) (domain.TokenInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, ok := r.tokens[registryKey{strings.ToLower(address), strings.ToLower(chain)}]
	if !ok {
		return domain.TokenInfo{}, storage.ErrNotFound
	}
	return info, nil
}

func (r *TokenRegistry) UpsertToken(_ context.Context, info domain.TokenInfo) error {
	if info.Address == "" {
		return storage.ErrInvalidInput
	}
	info.Address = strings.ToLower(info.Address)
	info.Chain = strings.ToLower(info.Chain)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[registryKey{info.Address, info.Chain}] = info
	return nil
}
