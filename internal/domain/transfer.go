package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BridgeTag is attached by the ledger ingestion layer to transfers that move
// value between chains.
type BridgeTag struct {
	FromChain string
	ToChain   string
}

// Transfer is a directed token movement recorded in the transfer ledger.
// Amount is expressed in token units; AmountUSD is null when the price was unknown.
type Transfer struct {
	TxHash       string
	LogIndex     int
	Chain        string
	From         string
	To           string
	TokenAddress string
	TokenSymbol  string
	Amount       decimal.Decimal
	AmountUSD    decimal.NullDecimal
	Timestamp    time.Time
	Bridge       *BridgeTag
}

// IsBridge reports whether the ledger tagged the transfer as a bridge interaction.
func (t Transfer) IsBridge() bool {
	return t.Bridge != nil
}

// TransferFilter selects transfers from the ledger.
type TransferFilter struct {
	// Addresses matches transfers whose from or to is in the set.
	Addresses  []string
	Since      *time.Time
	Until      *time.Time
	BridgeOnly bool
	// Limit caps the result; 0 means unlimited.
	Limit int
	// Descending orders by timestamp newest first.
	Descending bool
}
