package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Source tags where an aggregate came from.
type Source string

const (
	SourceIndexed Source = "indexed_transfers"
	SourceNoData  Source = "no_data"
	SourceError   Source = "error"
)

// FlowDirection classifies the net flow of a token.
type FlowDirection string

const (
	FlowInflow  FlowDirection = "inflow"
	FlowOutflow FlowDirection = "outflow"
	FlowNeutral FlowDirection = "neutral"
)

// TxDirection classifies a transfer relative to an entity.
type TxDirection string

const (
	DirectionIn       TxDirection = "in"
	DirectionOut      TxDirection = "out"
	DirectionInternal TxDirection = "internal"
)

// Holding is the observed net position of an entity in one token.
type Holding struct {
	Chain        string              `json:"chain"`
	TokenAddress string              `json:"tokenAddress"`
	Symbol       string              `json:"symbol"`
	Verified     bool                `json:"verified"`
	Balance      decimal.Decimal     `json:"balance"`
	ValueUSD     decimal.NullDecimal `json:"valueUsd"`
	Percentage   float64             `json:"percentage"`
	TxCount      int                 `json:"txCount"`
}

// HoldingsResult is the point in time holdings view of an entity.
type HoldingsResult struct {
	Entity      string          `json:"entity"`
	Holdings    []Holding       `json:"holdings"`
	TotalUSD    decimal.Decimal `json:"totalValueUsd"`
	TotalTokens int             `json:"totalTokens"`
	LastUpdated *time.Time      `json:"lastUpdated,omitempty"`
	Source      Source          `json:"source"`
	Error       string          `json:"error,omitempty"`
}

// FlowBucket holds one UTC day of flows.
type FlowBucket struct {
	Date       time.Time       `json:"date"`
	Inflow     decimal.Decimal `json:"inflow"`
	Outflow    decimal.Decimal `json:"outflow"`
	Net        decimal.Decimal `json:"net"`
	InflowUSD  decimal.Decimal `json:"inflowUsd"`
	OutflowUSD decimal.Decimal `json:"outflowUsd"`
	NetUSD     decimal.Decimal `json:"netUsd"`
	TxCount    int             `json:"txCount"`
}

// TokenFlow is the per token flow breakdown over a window.
type TokenFlow struct {
	Chain        string          `json:"chain"`
	TokenAddress string          `json:"tokenAddress"`
	Symbol       string          `json:"symbol"`
	Inflow       decimal.Decimal `json:"inflow"`
	Outflow      decimal.Decimal `json:"outflow"`
	Net          decimal.Decimal `json:"net"`
	InflowUSD    decimal.Decimal `json:"inflowUsd"`
	OutflowUSD   decimal.Decimal `json:"outflowUsd"`
	NetUSD       decimal.Decimal `json:"netUsd"`
	DominantFlow FlowDirection   `json:"dominantFlow"`
	TxCount      int             `json:"txCount"`
}

// FlowsResult is the time bucketed flow view of an entity.
type FlowsResult struct {
	Entity       string          `json:"entity"`
	WindowDays   int             `json:"windowDays"`
	Daily        []FlowBucket    `json:"daily"`
	Tokens       []TokenFlow     `json:"tokens"`
	TotalInflow  decimal.Decimal `json:"totalInflow"`
	TotalOutflow decimal.Decimal `json:"totalOutflow"`
	NetFlow      decimal.Decimal `json:"netFlow"`
	Source       Source          `json:"source"`
	Error        string          `json:"error,omitempty"`
}

// BridgeRoute aggregates bridge transfers of one (from, to, asset) route.
type BridgeRoute struct {
	FromChain string          `json:"fromChain"`
	ToChain   string          `json:"toChain"`
	Asset     string          `json:"asset"`
	Volume    decimal.Decimal `json:"volume"`
	VolumeUSD decimal.Decimal `json:"volumeUsd"`
	TxCount   int             `json:"txCount"`
	Direction string          `json:"direction"`
}

// BridgeSummary splits bridge volume by route kind.
type BridgeSummary struct {
	L1ToL2     decimal.Decimal `json:"l1ToL2"`
	CrossChain decimal.Decimal `json:"crossChain"`
}

// BridgeResult is the cross chain flow view of an entity.
type BridgeResult struct {
	Entity         string          `json:"entity"`
	Routes         []BridgeRoute   `json:"routes"`
	Summary        BridgeSummary   `json:"summary"`
	TotalVolumeUSD decimal.Decimal `json:"totalVolumeUsd"`
	Source         Source          `json:"source"`
	Error          string          `json:"error,omitempty"`
}

// EntityTransaction is a ledger transfer annotated for display.
type EntityTransaction struct {
	TxHash       string              `json:"txHash"`
	Chain        string              `json:"chain"`
	From         string              `json:"from"`
	To           string              `json:"to"`
	FromShort    string              `json:"fromShort"`
	ToShort      string              `json:"toShort"`
	TokenAddress string              `json:"tokenAddress"`
	Symbol       string              `json:"symbol"`
	Verified     bool                `json:"verified"`
	Decimals     int                 `json:"decimals"`
	Amount       decimal.Decimal     `json:"amount"`
	AmountUSD    decimal.NullDecimal `json:"amountUsd"`
	Timestamp    time.Time           `json:"timestamp"`
	Direction    TxDirection         `json:"direction"`
}

// TransactionsResult lists the latest transfers touching an entity.
type TransactionsResult struct {
	Entity       string              `json:"entity"`
	Transactions []EntityTransaction `json:"transactions"`
	Source       Source              `json:"source"`
	Error        string              `json:"error,omitempty"`
}

// AddressPattern is the behavioral summary of one entity address.
type AddressPattern struct {
	Address        string          `json:"address"`
	Short          string          `json:"short"`
	Role           AddressRole     `json:"role"`
	TxCount        int             `json:"txCount"`
	AvgValueUSD    decimal.Decimal `json:"avgValueUsd"`
	DominantTokens []string        `json:"dominantTokens"`
	LastActive     *time.Time      `json:"lastActive,omitempty"`
	PatternScore   float64         `json:"patternScore"`
}

// PatternGroup collects addresses sharing a behavioral pattern.
type PatternGroup struct {
	Pattern         string           `json:"pattern"`
	Description     string           `json:"description"`
	Addresses       []AddressPattern `json:"addresses"`
	TotalTxCount    int              `json:"totalTxCount"`
	AvgPatternScore float64          `json:"avgPatternScore"`
}

// PatternResult is the address pattern view of an entity.
type PatternResult struct {
	Entity         string         `json:"entity"`
	Patterns       []PatternGroup `json:"patterns"`
	TotalAddresses int            `json:"totalAddresses"`
	Source         Source         `json:"source"`
	Error          string         `json:"error,omitempty"`
}

// EntityProfile bundles every aggregate of an entity.
type EntityProfile struct {
	Holdings     HoldingsResult     `json:"holdings"`
	Flows        FlowsResult        `json:"flows"`
	Bridges      BridgeResult       `json:"bridges"`
	Transactions TransactionsResult `json:"transactions"`
	Patterns     PatternResult      `json:"patterns"`
}
