package cache

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyFormat(t *testing.T) {
	assert.Equal(t, "agg:flows:binance:7", Key("flows", "binance", 7))
	assert.Equal(t, "agg:*:binance:*", entityPattern("binance"))
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCacheInvalidateEntity(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	for _, key := range []string{
		Key("holdings", "binance", 0),
		Key("flows", "binance", 7),
		Key("flows", "binance-us", 7),
		Key("flows", "coinbase", 30),
	} {
		require.NoError(t, c.Set(ctx, key, []byte("{}"), 0))
	}

	removed, err := c.InvalidateEntity(ctx, "binance")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, ok := c.Get(ctx, Key("flows", "binance-us", 7))
	assert.True(t, ok)
	_, ok = c.Get(ctx, Key("flows", "binance", 7))
	assert.False(t, ok)
}

func TestEntityPatternEscapesGlob(t *testing.T) {
	assert.Equal(t, `agg:*:a\*b\?\[c\]:*`, entityPattern("a*b?[c]"))
	assert.Equal(t, `agg:*:back\\slash:*`, entityPattern(`back\slash`))
}

func TestOwnsKey(t *testing.T) {
	assert.True(t, ownsKey(Key("flows", "binance", 7), "binance"))
	assert.True(t, ownsKey(Key("flows", "a:b", 7), "a:b"))
	assert.False(t, ownsKey(Key("flows", "x:b", 7), "b"))
	assert.False(t, ownsKey(Key("flows", "binance", 7), "*"))
	assert.False(t, ownsKey("other:flows:binance:7", "binance"))
}

func TestMemoryCacheInvalidateMetacharacterSlug(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	require.NoError(t, c.Set(ctx, Key("flows", "*", 7), []byte("{}"), 0))
	require.NoError(t, c.Set(ctx, Key("flows", "binance", 7), []byte("{}"), 0))
	require.NoError(t, c.Set(ctx, Key("flows", "team:ops", 7), []byte("{}"), 0))

	removed, err := c.InvalidateEntity(ctx, "*")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	removed, err = c.InvalidateEntity(ctx, "team:ops")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, ok := c.Get(ctx, Key("flows", "binance", 7))
	assert.True(t, ok)
}

func TestJSONHelpers(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	type payload struct {
		Total string `json:"total"`
	}
	require.NoError(t, SetJSON(ctx, c, "agg:holdings:x:0", payload{Total: "25"}, time.Minute))

	var out payload
	require.True(t, GetJSON(ctx, c, "agg:holdings:x:0", &out))
	assert.Equal(t, "25", out.Total)

	require.NoError(t, c.Set(ctx, "bad", []byte("{"), 0))
	assert.False(t, GetJSON(ctx, c, "bad", &out))
	assert.False(t, GetJSON(ctx, nil, "agg:holdings:x:0", &out))
	assert.NoError(t, SetJSON(ctx, nil, "k", out, 0))
}

func TestNewFallsBackToMemory(t *testing.T) {
	ctx := context.Background()

	_, ok := New(ctx, "", zerolog.Nop()).(*MemoryCache)
	assert.True(t, ok)

	_, ok = New(ctx, "not a url", zerolog.Nop()).(*MemoryCache)
	assert.True(t, ok)

	_, ok = New(ctx, "redis://127.0.0.1:1/0", zerolog.Nop()).(*MemoryCache)
	assert.True(t, ok)
}
