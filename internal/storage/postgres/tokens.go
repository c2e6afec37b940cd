package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"onchain-intel/internal/domain"
	"onchain-intel/internal/storage"
)

const (
	upsertTokenSQL = `INSERT INTO token_universe (
        contract_address,
        chain_id,
        symbol,
        name,
        decimals,
        market_cap,
        volume_24h,
        price_usd,
        price_change_24h,
        coingecko_id,
        image_url,
        active,
        last_updated
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
    )
    ON CONFLICT (contract_address, chain_id) DO UPDATE
    SET
        symbol           = EXCLUDED.symbol,
        name             = EXCLUDED.name,
        decimals         = EXCLUDED.decimals,
        market_cap       = EXCLUDED.market_cap,
        volume_24h       = EXCLUDED.volume_24h,
        price_usd        = EXCLUDED.price_usd,
        price_change_24h = EXCLUDED.price_change_24h,
        coingecko_id     = EXCLUDED.coingecko_id,
        image_url        = EXCLUDED.image_url,
        active           = EXCLUDED.active,
        last_updated     = EXCLUDED.last_updated;`

	listActiveTokensSQL = `SELECT
        contract_address,
        chain_id,
        symbol,
        name,
        decimals,
        market_cap,
        volume_24h,
        price_usd,
        price_change_24h,
        coingecko_id,
        image_url,
        active,
        last_updated
    FROM token_universe
    WHERE active
    ORDER BY chain_id, contract_address;`

	markInactiveSQL = `UPDATE token_universe
    SET active = FALSE
    WHERE active AND last_updated < $1;`

	countTokensSQL = `SELECT
        COUNT(*),
        COUNT(*) FILTER (WHERE active),
        MAX(last_updated)
    FROM token_universe;`

	countTokensByChainSQL = `SELECT chain_id, COUNT(*)
    FROM token_universe
    GROUP BY chain_id;`
)

// ListActiveTokens returns every active token.
func (s *Store) ListActiveTokens(ctx context.Context) ([]domain.Token, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listActiveTokensSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list active tokens: %w", queryErr)
	}
	defer rows.Close()

	tokens := make([]domain.Token, 0)
	for rows.Next() {
		var t domain.Token
		if err := rows.Scan(
			&t.ContractAddress,
			&t.ChainID,
			&t.Symbol,
			&t.Name,
			&t.Decimals,
			&t.MarketCap,
			&t.Volume24h,
			&t.PriceUSD,
			&t.PriceChange24h,
			&t.CoingeckoID,
			&t.ImageURL,
			&t.Active,
			&t.LastUpdated,
		); err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		tokens = append(tokens, t)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return tokens, nil
}

// UpsertTokens inserts or replaces tokens in a single transaction.
func (s *Store) UpsertTokens(ctx context.Context, tokens []domain.Token) (int, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	if len(tokens) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, t := range tokens {
		if t.ContractAddress == "" {
			return 0, storage.ErrInvalidInput
		}
		batch.Queue(upsertTokenSQL,
			strings.ToLower(t.ContractAddress),
			t.ChainID,
			t.Symbol,
			t.Name,
			t.Decimals,
			t.MarketCap,
			t.Volume24h,
			t.PriceUSD,
			t.PriceChange24h,
			t.CoingeckoID,
			t.ImageURL,
			t.Active,
			t.LastUpdated,
		)
	}

	if err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		return execBatch(ctx, tx, batch)
	}); err != nil {
		return 0, fmt.Errorf("upsert tokens: %w", err)
	}
	return len(tokens), nil
}

// MarkInactive deactivates tokens whose market data went stale.
func (s *Store) MarkInactive(ctx context.Context, olderThan time.Time) (int, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	tag, execErr := pool.Exec(ctx, markInactiveSQL, olderThan)
	if execErr != nil {
		return 0, fmt.Errorf("mark inactive tokens: %w", execErr)
	}
	return int(tag.RowsAffected()), nil
}

// Stats summarises the universe.
func (s *Store) Stats(ctx context.Context) (domain.UniverseStats, error) {
	pool, err := s.getPool()
	if err != nil {
		return domain.UniverseStats{}, err
	}

	stats := domain.UniverseStats{ByChain: make(map[int64]int)}
	if err := pool.QueryRow(ctx, countTokensSQL).Scan(&stats.TotalTokens, &stats.ActiveTokens, &stats.LastSync); err != nil {
		return domain.UniverseStats{}, fmt.Errorf("count tokens: %w", err)
	}

	rows, err := pool.Query(ctx, countTokensByChainSQL)
	if err != nil {
		return domain.UniverseStats{}, fmt.Errorf("count tokens by chain: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var chainID int64
		var count int
		if err := rows.Scan(&chainID, &count); err != nil {
			return domain.UniverseStats{}, err
		}
		stats.ByChain[chainID] = count
	}
	return stats, rows.Err()
}

func execBatch(ctx context.Context, tx pgx.Tx, batch *pgx.Batch) error {
	results := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return err
		}
	}
	return results.Close()
}
