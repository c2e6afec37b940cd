// Package resolver turns raw token contract addresses into human readable metadata.
package resolver

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"onchain-intel/internal/domain"
	"onchain-intel/internal/storage"
)

const (
	// DefaultChain is assumed when a lookup names no chain.
	DefaultChain = "ethereum"

	defaultDecimals = 18
	// MaxBatch bounds a ResolveMany call.
	MaxBatch = 100
)

var (
	// ErrBatchTooLarge is returned when ResolveMany receives more than MaxBatch addresses.
	ErrBatchTooLarge = errors.New("too many addresses in batch")
	// ErrUnresolvable marks a source miss that retrying will not change.
	ErrUnresolvable = errors.New("token metadata unavailable")
)

// MetadataSource looks up token metadata outside the registry.
type MetadataSource interface {
	Lookup(ctx context.Context, address, chain string) (domain.TokenInfo, error)
}

// Resolver resolves token metadata through the registry, an optional
// metadata source and a per-process memo.
type Resolver struct {
	registry storage.TokenRegistry
	source   MetadataSource
	logger   zerolog.Logger

	mu   sync.RWMutex
	memo map[string]domain.TokenInfo
}

// New constructs a Resolver. source may be nil.
func New(registry storage.TokenRegistry, source MetadataSource, logger zerolog.Logger) *Resolver {
	return &Resolver{
		registry: registry,
		source:   source,
		logger:   logger.With().Str("component", "resolver").Logger(),
		memo:     make(map[string]domain.TokenInfo),
	}
}

// Resolve returns metadata for a token. It never fails: unknown tokens come
// back unverified with a shortened address as symbol. Only hits and definitive
// misses are memoized; a transient failure is retried on the next call.
func (r *Resolver) Resolve(ctx context.Context, address, chain string) domain.TokenInfo {
	address = NormalizeAddress(address)
	chain = normalizeChain(chain)
	key := chain + ":" + address

	r.mu.RLock()
	info, ok := r.memo[key]
	r.mu.RUnlock()
	if ok {
		return info
	}

	info, definitive := r.lookup(ctx, address, chain)
	if !definitive {
		return info
	}

	r.mu.Lock()
	r.memo[key] = info
	r.mu.Unlock()
	return info
}

// ResolveMany resolves a batch of addresses on one chain, keyed by normalized address.
func (r *Resolver) ResolveMany(ctx context.Context, addresses []string, chain string) (map[string]domain.TokenInfo, error) {
	if len(addresses) > MaxBatch {
		return nil, ErrBatchTooLarge
	}
	out := make(map[string]domain.TokenInfo, len(addresses))
	for _, addr := range addresses {
		info := r.Resolve(ctx, addr, chain)
		out[info.Address] = info
	}
	return out, nil
}

// Forget drops memoized entries so the next lookup hits the registry again.
func (r *Resolver) Forget() {
	r.mu.Lock()
	r.memo = make(map[string]domain.TokenInfo)
	r.mu.Unlock()
}

// lookup reports whether the answer is definitive: a hit, or a miss every
// consulted tier confirmed.
func (r *Resolver) lookup(ctx context.Context, address, chain string) (domain.TokenInfo, bool) {
	definitive := true
	if r.registry != nil {
		info, err := r.registry.GetToken(ctx, address, chain)
		switch {
		case err == nil:
			return info, true
		case !errors.Is(err, storage.ErrNotFound):
			definitive = false
			r.logger.Warn().Err(err).Str("address", address).Str("chain", chain).Msg("token registry lookup failed")
		}
	}

	if r.source != nil {
		info, err := r.source.Lookup(ctx, address, chain)
		if err == nil {
			info.Address, info.Chain = address, chain
			r.remember(ctx, info)
			return info, true
		}
		if !errors.Is(err, ErrUnresolvable) {
			definitive = false
		}
		r.logger.Debug().Err(err).Str("address", address).Str("chain", chain).Msg("metadata source lookup failed")
	}

	return Fallback(address, chain), definitive
}

func (r *Resolver) remember(ctx context.Context, info domain.TokenInfo) {
	if r.registry == nil {
		return
	}
	if err := r.registry.UpsertToken(ctx, info); err != nil {
		r.logger.Warn().Err(err).Str("address", info.Address).Msg("failed to persist resolved token")
	}
}

// Fallback describes a token nothing is known about.
func Fallback(address, chain string) domain.TokenInfo {
	return domain.TokenInfo{
		Address:  address,
		Chain:    chain,
		Symbol:   ShortAddress(address),
		Decimals: defaultDecimals,
	}
}

// NormalizeAddress lowercases an address, canonicalising EVM hex addresses.
func NormalizeAddress(address string) string {
	address = strings.TrimSpace(address)
	if common.IsHexAddress(address) {
		return strings.ToLower(common.HexToAddress(address).Hex())
	}
	return strings.ToLower(address)
}

// IsEVMAddress reports whether address is a 20 byte hex address.
func IsEVMAddress(address string) bool {
	return common.IsHexAddress(strings.TrimSpace(address))
}

// ShortAddress renders 0x1234...abcd.
func ShortAddress(address string) string {
	if len(address) <= 10 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}

func normalizeChain(chain string) string {
	chain = strings.ToLower(strings.TrimSpace(chain))
	if chain == "" {
		return DefaultChain
	}
	return chain
}
