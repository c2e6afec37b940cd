// Package cache stores computed entity aggregates keyed by operation, entity and window.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const keyPrefix = "agg"

// Cache is a byte oriented TTL cache.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	// InvalidateEntity drops every cached aggregate of slug and returns how many were removed.
	InvalidateEntity(ctx context.Context, slug string) (int, error)
}

// Key builds agg:{op}:{slug}:{window}.
func Key(op, slug string, window int) string {
	return fmt.Sprintf("%s:%s:%s:%d", keyPrefix, op, slug, window)
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// entityPattern is the SCAN MATCH glob for slug with its metacharacters escaped.
func entityPattern(slug string) string {
	return fmt.Sprintf("%s:*:%s:*", keyPrefix, globEscaper.Replace(slug))
}

// ownsKey reports whether key was built by Key for slug. The glob alone can
// over-match when slug contains ':'.
func ownsKey(key, slug string) bool {
	rest, ok := strings.CutPrefix(key, keyPrefix+":")
	if !ok {
		return false
	}
	_, rest, ok = strings.Cut(rest, ":")
	if !ok {
		return false
	}
	i := strings.LastIndexByte(rest, ':')
	return i >= 0 && rest[:i] == slug
}

// New connects to Redis at url and falls back to an in-process cache when
// the URL is empty, malformed or the server does not answer.
func New(ctx context.Context, url string, logger zerolog.Logger) Cache {
	log := logger.With().Str("component", "cache").Logger()
	if strings.TrimSpace(url) == "" {
		log.Debug().Msg("redis url not configured, using memory cache")
		return NewMemoryCache()
	}

	opt, err := redis.ParseURL(url)
	if err != nil {
		log.Warn().Err(err).Msg("invalid redis url, using memory cache")
		return NewMemoryCache()
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn().Err(err).Msg("redis unreachable, using memory cache")
		_ = client.Close()
		return NewMemoryCache()
	}
	return &RedisCache{client: client}
}

// RedisCache is backed by go-redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache wraps an existing client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	b, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return b, true
}

func (r *RedisCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, val, ttl).Err()
}

// InvalidateEntity scans for the entity's keys and deletes them in batches.
func (r *RedisCache) InvalidateEntity(ctx context.Context, slug string) (int, error) {
	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := r.client.Scan(ctx, cursor, entityPattern(slug), 100).Result()
		if err != nil {
			return removed, fmt.Errorf("scan cache keys: %w", err)
		}
		keys = slices.DeleteFunc(keys, func(k string) bool { return !ownsKey(k, slug) })
		if len(keys) > 0 {
			n, err := r.client.Del(ctx, keys...).Result()
			if err != nil {
				return removed, fmt.Errorf("delete cache keys: %w", err)
			}
			removed += int(n)
		}
		if next == 0 {
			return removed, nil
		}
		cursor = next
	}
}

// Close closes the Redis client.
func (r *RedisCache) Close() error {
	return r.client.Close()
}

// MemoryCache is an in-process Cache.
type MemoryCache struct {
	mu    sync.Mutex
	items map[string]memItem
	now   func() time.Time
}

type memItem struct {
	val []byte
	exp time.Time
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: make(map[string]memItem), now: time.Now}
}

func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[key]
	if !ok {
		return nil, false
	}
	if !it.exp.IsZero() && m.now().After(it.exp) {
		delete(m.items, key)
		return nil, false
	}
	return it.val, true
}

func (m *MemoryCache) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp := time.Time{}
	if ttl > 0 {
		exp = m.now().Add(ttl)
	}
	m.items[key] = memItem{val: val, exp: exp}
	return nil
}

func (m *MemoryCache) InvalidateEntity(_ context.Context, slug string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key := range m.items {
		if ownsKey(key, slug) {
			delete(m.items, key)
			removed++
		}
	}
	return removed, nil
}

// Len reports the number of stored entries, expired ones included.
func (m *MemoryCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// GetJSON decodes a cached value into v. A decode failure counts as a miss.
func GetJSON(ctx context.Context, c Cache, key string, v any) bool {
	if c == nil {
		return false
	}
	data, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	return json.Unmarshal(data, v) == nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, c Cache, key string, v any, ttl time.Duration) error {
	if c == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}
	return c.Set(ctx, key, data, ttl)
}

var (
	_ Cache = (*RedisCache)(nil)
	_ Cache = (*MemoryCache)(nil)
)
