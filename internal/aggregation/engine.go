// Package aggregation computes per-entity economic views from the transfer ledger.
package aggregation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/rs/zerolog"

	"onchain-intel/internal/cache"
	"onchain-intel/internal/domain"
	"onchain-intel/internal/observability"
	"onchain-intel/internal/resolver"
	"onchain-intel/internal/storage"
)

// Operation names, used for cache keys and metrics.
const (
	OpHoldings     = "holdings"
	OpFlows        = "flows"
	OpBridges      = "bridges"
	OpTransactions = "transactions"
	OpPatterns     = "patterns"
)

const (
	DefaultTransactionLimit = 20
	MaxTransactionLimit     = 100
)

var errNoAddresses = errors.New("entity has no registered addresses")

// TokenResolver annotates token contracts with display metadata.
type TokenResolver interface {
	Resolve(ctx context.Context, address, chain string) domain.TokenInfo
}

// Options tune the engine.
type Options struct {
	Workers          int
	WindowDays       []int
	TransactionLimit int
	CacheTTL         time.Duration
	Cache            cache.Cache
	Now              func() time.Time
}

// Engine computes holdings, flows, bridge flows, transactions and address
// patterns. Every operation degrades to a tagged result instead of failing.
type Engine struct {
	entities storage.EntityStore
	ledger   storage.TransferLedger
	resolver TokenResolver
	cache    cache.Cache
	cacheTTL time.Duration
	windows  []int
	txLimit  int
	now      func() time.Time
	pool     pond.Pool
	logger   zerolog.Logger
}

// New constructs an Engine. Close releases its worker pool.
func New(entities storage.EntityStore, ledger storage.TransferLedger, tokens TokenResolver, opts Options, logger zerolog.Logger) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = 5
	}
	if len(opts.WindowDays) == 0 {
		opts.WindowDays = []int{1, 7, 30}
	}
	if opts.TransactionLimit <= 0 {
		opts.TransactionLimit = DefaultTransactionLimit
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}

	return &Engine{
		entities: entities,
		ledger:   ledger,
		resolver: tokens,
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
		windows:  opts.WindowDays,
		txLimit:  opts.TransactionLimit,
		now:      opts.Now,
		pool:     pond.NewPool(opts.Workers),
		logger:   logger.With().Str("component", "aggregation").Logger(),
	}
}

// Close stops the worker pool after running tasks finish.
func (e *Engine) Close() {
	e.pool.StopAndWait()
}

// Profile computes every aggregate of an entity concurrently.
func (e *Engine) Profile(ctx context.Context, slug string, windowDays int) domain.EntityProfile {
	var profile domain.EntityProfile

	group := e.pool.NewGroup()
	group.Submit(
		func() { profile.Holdings = e.Holdings(ctx, slug) },
		func() { profile.Flows = e.Flows(ctx, slug, windowDays) },
		func() { profile.Bridges = e.BridgeFlows(ctx, slug) },
		func() { profile.Transactions = e.Transactions(ctx, slug, 0) },
		func() { profile.Patterns = e.PatternBridge(ctx, slug) },
	)
	if err := group.Wait(); err != nil {
		e.logger.Error().Err(err).Str("entity", slug).Msg("profile aggregation interrupted")
	}
	return profile
}

// Invalidate drops cached aggregates of an entity.
func (e *Engine) Invalidate(ctx context.Context, slug string) (int, error) {
	if e.cache == nil {
		return 0, nil
	}
	return e.cache.InvalidateEntity(ctx, normalizeSlug(slug))
}

// scope is an entity resolved to its address set.
type scope struct {
	entity    domain.Entity
	addresses []string
	set       map[string]struct{}
}

func (s scope) owns(address string) bool {
	_, ok := s.set[strings.ToLower(address)]
	return ok
}

func (e *Engine) loadScope(ctx context.Context, slug string) (scope, error) {
	entity, err := e.entities.GetEntityBySlug(ctx, slug)
	if err != nil {
		return scope{}, err
	}
	addrs := entity.AddressList()
	if len(addrs) == 0 {
		return scope{}, errNoAddresses
	}
	set := make(map[string]struct{}, len(addrs))
	for _, a := range addrs {
		set[a] = struct{}{}
	}
	return scope{entity: entity, addresses: addrs, set: set}, nil
}

// classify maps a lookup or ledger error onto the result source.
func (e *Engine) classify(op, slug string, err error) (domain.Source, string) {
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, errNoAddresses) {
		return domain.SourceNoData, ""
	}
	e.logger.Error().Err(err).Str("entity", slug).Str("operation", op).Msg("aggregation failed")
	return domain.SourceError, err.Error()
}

func (e *Engine) cached(ctx context.Context, op, slug string, param int, v any) bool {
	if e.cache == nil {
		return false
	}
	hit := cache.GetJSON(ctx, e.cache, cache.Key(op, slug, param), v)
	observability.RecordCacheLookup(hit)
	return hit
}

func (e *Engine) store(ctx context.Context, op, slug string, param int, source domain.Source, v any) {
	if e.cache == nil || source != domain.SourceIndexed {
		return
	}
	if err := cache.SetJSON(ctx, e.cache, cache.Key(op, slug, param), v, e.cacheTTL); err != nil {
		e.logger.Warn().Err(err).Str("entity", slug).Str("operation", op).Msg("failed to cache aggregate")
	}
}

func (e *Engine) observe(op string, started time.Time, source domain.Source) {
	observability.RecordAggregation(op, string(source), time.Since(started))
}

// tokenInfo resolves a transfer's token, preferring the ledger symbol over
// the shortened address of an unknown contract.
func (e *Engine) tokenInfo(ctx context.Context, t domain.Transfer) domain.TokenInfo {
	info := resolver.Fallback(strings.ToLower(t.TokenAddress), strings.ToLower(t.Chain))
	if e.resolver != nil {
		info = e.resolver.Resolve(ctx, t.TokenAddress, t.Chain)
	}
	if !info.Verified && t.TokenSymbol != "" {
		info.Symbol = t.TokenSymbol
	}
	return info
}

func normalizeSlug(slug string) string {
	return strings.ToLower(strings.TrimSpace(slug))
}

// tokenKey groups transfers of one token contract on one chain.
type tokenKey struct {
	chain string
	token string
}

func keyOf(t domain.Transfer) tokenKey {
	return tokenKey{chain: strings.ToLower(t.Chain), token: strings.ToLower(t.TokenAddress)}
}
