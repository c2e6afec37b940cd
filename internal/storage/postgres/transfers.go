package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"onchain-intel/internal/domain"
)

const (
	insertTransferSQL = `INSERT INTO transfers (
        chain,
        tx_hash,
        log_index,
        from_address,
        to_address,
        token_address,
        token_symbol,
        amount,
        amount_usd,
        block_time,
        bridge_from_chain,
        bridge_to_chain
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
    )
    ON CONFLICT (chain, tx_hash, log_index) DO NOTHING;`

	selectTransferColumns = `SELECT
        chain,
        tx_hash,
        log_index,
        from_address,
        to_address,
        token_address,
        token_symbol,
        amount::text,
        amount_usd::text,
        block_time,
        bridge_from_chain,
        bridge_to_chain
    FROM transfers`
)

// InsertTransfers appends transfers; replays of the same (chain, tx_hash, log_index) are ignored.
func (s *Store) InsertTransfers(ctx context.Context, transfers []domain.Transfer) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if len(transfers) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, t := range transfers {
		var amountUSD any
		if t.AmountUSD.Valid {
			amountUSD = t.AmountUSD.Decimal.String()
		}
		var bridgeFrom, bridgeTo any
		if t.Bridge != nil {
			bridgeFrom = t.Bridge.FromChain
			bridgeTo = t.Bridge.ToChain
		}
		batch.Queue(insertTransferSQL,
			t.Chain,
			t.TxHash,
			t.LogIndex,
			strings.ToLower(t.From),
			strings.ToLower(t.To),
			strings.ToLower(t.TokenAddress),
			t.TokenSymbol,
			t.Amount.String(),
			amountUSD,
			t.Timestamp,
			bridgeFrom,
			bridgeTo,
		)
	}

	if err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		return execBatch(ctx, tx, batch)
	}); err != nil {
		return fmt.Errorf("insert transfers: %w", err)
	}
	return nil
}

// FindTransfers returns transfers touching any of the filter addresses.
func (s *Store) FindTransfers(ctx context.Context, filter domain.TransferFilter) ([]domain.Transfer, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	if len(filter.Addresses) == 0 {
		return []domain.Transfer{}, nil
	}

	addrs := make([]string, len(filter.Addresses))
	for i, a := range filter.Addresses {
		addrs[i] = strings.ToLower(a)
	}

	args := []any{addrs}
	where := []string{"(from_address = ANY($1) OR to_address = ANY($1))"}
	if filter.Since != nil {
		args = append(args, *filter.Since)
		where = append(where, fmt.Sprintf("block_time >= $%d", len(args)))
	}
	if filter.Until != nil {
		args = append(args, *filter.Until)
		where = append(where, fmt.Sprintf("block_time < $%d", len(args)))
	}
	if filter.BridgeOnly {
		where = append(where, "bridge_from_chain IS NOT NULL")
	}

	dir := "ASC"
	if filter.Descending {
		dir = "DESC"
	}

	var sb strings.Builder
	sb.WriteString(selectTransferColumns)
	sb.WriteString(" WHERE ")
	sb.WriteString(strings.Join(where, " AND "))
	fmt.Fprintf(&sb, " ORDER BY block_time %s, tx_hash, log_index", dir)
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}

	rows, err := pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("find transfers: %w", err)
	}
	defer rows.Close()

	transfers := make([]domain.Transfer, 0)
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, t)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return transfers, nil
}

func scanTransfer(rows pgx.Rows) (domain.Transfer, error) {
	var (
		t          domain.Transfer
		amountStr  string
		usdStr     sql.NullString
		bridgeFrom sql.NullString
		bridgeTo   sql.NullString
	)
	if err := rows.Scan(
		&t.Chain,
		&t.TxHash,
		&t.LogIndex,
		&t.From,
		&t.To,
		&t.TokenAddress,
		&t.TokenSymbol,
		&amountStr,
		&usdStr,
		&t.Timestamp,
		&bridgeFrom,
		&bridgeTo,
	); err != nil {
		return domain.Transfer{}, fmt.Errorf("scan transfer: %w", err)
	}

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return domain.Transfer{}, fmt.Errorf("parse amount: %w", err)
	}
	t.Amount = amount

	if usdStr.Valid {
		usd, err := decimal.NewFromString(usdStr.String)
		if err != nil {
			return domain.Transfer{}, fmt.Errorf("parse amount usd: %w", err)
		}
		t.AmountUSD = decimal.NewNullDecimal(usd)
	}
	if bridgeFrom.Valid {
		t.Bridge = &domain.BridgeTag{FromChain: bridgeFrom.String, ToChain: bridgeTo.String}
	}
	return t, nil
}
