package postgres

import (
	"context"
	"fmt"
	"strings"

	"onchain-intel/internal/domain"
	"onchain-intel/internal/storage"
)

const (
	getRegistryTokenSQL = `SELECT address, chain, symbol, name, decimals, verified
    FROM token_registry
    WHERE address = $1 AND chain = $2;`

	upsertRegistryTokenSQL = `INSERT INTO token_registry (address, chain, symbol, name, decimals, verified)
    VALUES ($1,$2,$3,$4,$5,$6)
    ON CONFLICT (address, chain) DO UPDATE
    SET symbol     = EXCLUDED.symbol,
        name       = EXCLUDED.name,
        decimals   = EXCLUDED.decimals,
        verified   = EXCLUDED.verified,
        updated_at = now();`
)

// GetToken returns registry metadata for a token contract.
func (s *Store) GetToken(ctx context.Context, address, chain string) (domain.TokenInfo, error) {
	pool, err := s.getPool()
	if err != nil {
		return domain.TokenInfo{}, err
	}

	var info domain.TokenInfo
	if err := pool.QueryRow(ctx, getRegistryTokenSQL, strings.ToLower(address), strings.ToLower(chain)).
		Scan(&info.Address, &info.Chain, &info.Symbol, &info.Name, &info.Decimals, &info.Verified); err != nil {
		if isNotFoundError(err) {
			return domain.TokenInfo{}, storage.ErrNotFound
		}
		return domain.TokenInfo{}, fmt.Errorf("get registry token: %w", err)
	}
	return info, nil
}

// UpsertToken records token metadata.
func (s *Store) UpsertToken(ctx context.Context, info domain.TokenInfo) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if info.Address == "" {
		return storage.ErrInvalidInput
	}

	if _, err := pool.Exec(ctx, upsertRegistryTokenSQL,
		strings.ToLower(info.Address),
		strings.ToLower(info.Chain),
		info.Symbol,
		info.Name,
		info.Decimals,
		info.Verified,
	); err != nil {
		return fmt.Errorf("upsert registry token: %w", err)
	}
	return nil
}
