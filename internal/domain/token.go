package domain

import (
	"strings"
	"time"
)

// Chain identifiers used across the token universe.
const (
	ChainIDEthereum int64 = 1
	ChainIDOptimism int64 = 10
	ChainIDPolygon  int64 = 137
	ChainIDBase     int64 = 8453
	ChainIDArbitrum int64 = 42161
)

// Token is a normalized entry of the token universe.
// Unique per (ContractAddress, ChainID); addresses are stored lowercase.
type Token struct {
	Symbol          string
	Name            string
	ContractAddress string
	ChainID         int64
	Decimals        int
	MarketCap       float64
	Volume24h       float64
	PriceUSD        float64
	PriceChange24h  float64
	CoingeckoID     string
	ImageURL        string
	Active          bool
	LastUpdated     time.Time
}

// TokenKey identifies a token across chains.
type TokenKey struct {
	ContractAddress string
	ChainID         int64
}

// Key returns the canonical identity of the token.
func (t Token) Key() TokenKey {
	return TokenKey{ContractAddress: strings.ToLower(t.ContractAddress), ChainID: t.ChainID}
}

// UniverseStats summarises the token universe.
type UniverseStats struct {
	TotalTokens  int
	ActiveTokens int
	ByChain      map[int64]int
	LastSync     *time.Time
}

// TokenInfo is the resolved, human readable identity of a token contract.
type TokenInfo struct {
	Address  string
	Chain    string
	Symbol   string
	Name     string
	Decimals int
	Verified bool
}
