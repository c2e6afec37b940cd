package clickhouse

import (
	"context"
	"fmt"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/shopspring/decimal"

	"onchain-intel/internal/domain"
	"onchain-intel/internal/storage"
)

// TransferLedger implements storage.TransferLedger on a ReplacingMergeTree table.
type TransferLedger struct {
	conn *Conn
}

// NewTransferLedger creates a new TransferLedger.
func NewTransferLedger(conn *Conn) *TransferLedger {
	return &TransferLedger{conn: conn}
}

var (
	_ storage.TransferLedger = (*TransferLedger)(nil)
	_ storage.TransferWriter = (*TransferLedger)(nil)
)

// InsertTransfers appends transfers in one batch. Replays collapse on merge
// by (chain, tx_hash, log_index).
func (l *TransferLedger) InsertTransfers(ctx context.Context, transfers []domain.Transfer) error {
	if len(transfers) == 0 {
		return nil
	}

	batch, err := l.conn.PrepareBatch(ctx, `
		INSERT INTO transfers (
			chain, tx_hash, log_index, from_address, to_address, token_address,
			token_symbol, amount, amount_usd, block_time, bridge_from_chain, bridge_to_chain
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, t := range transfers {
		var usd *decimal.Decimal
		if t.AmountUSD.Valid {
			v := t.AmountUSD.Decimal
			usd = &v
		}
		var bridgeFrom, bridgeTo *string
		if t.Bridge != nil {
			from, to := t.Bridge.FromChain, t.Bridge.ToChain
			bridgeFrom, bridgeTo = &from, &to
		}
		if err := batch.Append(
			t.Chain, t.TxHash, uint32(t.LogIndex),
			strings.ToLower(t.From), strings.ToLower(t.To), strings.ToLower(t.TokenAddress),
			t.TokenSymbol, t.Amount, usd, t.Timestamp.UTC(), bridgeFrom, bridgeTo,
		); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// FindTransfers returns transfers touching any filter address. FINAL folds
// replayed rows that have not been merged yet.
func (l *TransferLedger) FindTransfers(ctx context.Context, filter domain.TransferFilter) ([]domain.Transfer, error) {
	if len(filter.Addresses) == 0 {
		return []domain.Transfer{}, nil
	}

	addrs := make([]string, len(filter.Addresses))
	for i, a := range filter.Addresses {
		addrs[i] = strings.ToLower(a)
	}

	args := []any{addrs, addrs}
	where := []string{"(has(?, from_address) OR has(?, to_address))"}
	if filter.Since != nil {
		args = append(args, filter.Since.UTC())
		where = append(where, "block_time >= ?")
	}
	if filter.Until != nil {
		args = append(args, filter.Until.UTC())
		where = append(where, "block_time < ?")
	}
	if filter.BridgeOnly {
		where = append(where, "bridge_from_chain IS NOT NULL")
	}

	dir := "ASC"
	if filter.Descending {
		dir = "DESC"
	}

	query := fmt.Sprintf(`
		SELECT chain, tx_hash, log_index, from_address, to_address, token_address,
			token_symbol, amount, amount_usd, block_time, bridge_from_chain, bridge_to_chain
		FROM transfers FINAL
		WHERE %s
		ORDER BY block_time %s, tx_hash, log_index`, strings.Join(where, " AND "), dir)
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := l.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transfers: %w", err)
	}
	defer rows.Close()

	return scanTransfers(rows)
}

func scanTransfers(rows driver.Rows) ([]domain.Transfer, error) {
	out := make([]domain.Transfer, 0)
	for rows.Next() {
		var (
			t          domain.Transfer
			logIndex   uint32
			usd        *decimal.Decimal
			bridgeFrom *string
			bridgeTo   *string
		)
		if err := rows.Scan(
			&t.Chain, &t.TxHash, &logIndex, &t.From, &t.To, &t.TokenAddress,
			&t.TokenSymbol, &t.Amount, &usd, &t.Timestamp, &bridgeFrom, &bridgeTo,
		); err != nil {
			return nil, fmt.Errorf("scan transfer: %w", err)
		}
		t.LogIndex = int(logIndex)
		if usd != nil {
			t.AmountUSD = decimal.NewNullDecimal(*usd)
		}
		if bridgeFrom != nil {
			tag := domain.BridgeTag{FromChain: *bridgeFrom}
			if bridgeTo != nil {
				tag.ToChain = *bridgeTo
			}
			t.Bridge = &tag
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transfers: %w", err)
	}
	return out, nil
}
