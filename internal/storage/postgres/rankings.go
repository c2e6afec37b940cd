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
	upsertRankingSQL = `INSERT INTO token_rankings (
        contract_address,
        chain_id,
        symbol,
        name,
        market_cap_score,
        volume_score,
        momentum_score,
        engine_confidence,
        engine_risk,
        ml_adjustment,
        composite_score,
        bucket,
        bucket_rank,
        global_rank,
        price_usd,
        price_change_24h,
        market_cap,
        volume_24h,
        image_url,
        source,
        computed_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21
    )
    ON CONFLICT (contract_address, chain_id) DO UPDATE
    SET
        symbol            = EXCLUDED.symbol,
        name              = EXCLUDED.name,
        market_cap_score  = EXCLUDED.market_cap_score,
        volume_score      = EXCLUDED.volume_score,
        momentum_score    = EXCLUDED.momentum_score,
        engine_confidence = EXCLUDED.engine_confidence,
        engine_risk       = EXCLUDED.engine_risk,
        ml_adjustment     = EXCLUDED.ml_adjustment,
        composite_score   = EXCLUDED.composite_score,
        bucket            = EXCLUDED.bucket,
        bucket_rank       = EXCLUDED.bucket_rank,
        global_rank       = EXCLUDED.global_rank,
        price_usd         = EXCLUDED.price_usd,
        price_change_24h  = EXCLUDED.price_change_24h,
        market_cap        = EXCLUDED.market_cap,
        volume_24h        = EXCLUDED.volume_24h,
        image_url         = EXCLUDED.image_url,
        source            = EXCLUDED.source,
        computed_at       = EXCLUDED.computed_at;`

	selectRankingColumns = `SELECT
        contract_address,
        chain_id,
        symbol,
        name,
        market_cap_score,
        volume_score,
        momentum_score,
        engine_confidence,
        engine_risk,
        ml_adjustment,
        composite_score,
        bucket,
        bucket_rank,
        global_rank,
        price_usd,
        price_change_24h,
        market_cap,
        volume_24h,
        image_url,
        source,
        computed_at
    FROM token_rankings`

	pruneRankingsSQL = `DELETE FROM token_rankings t
    WHERE NOT EXISTS (
        SELECT 1 FROM unnest($1::text[], $2::bigint[]) AS k(contract_address, chain_id)
        WHERE k.contract_address = t.contract_address AND k.chain_id = t.chain_id
    );`

	summarySQL = `SELECT bucket, COUNT(*), MAX(computed_at)
    FROM token_rankings
    GROUP BY bucket;`
)

var rankingOrder = map[domain.RankingSort]string{
	domain.SortGlobalRank: "global_rank ASC",
	domain.SortBucketRank: "bucket_rank ASC, global_rank ASC",
	domain.SortMomentum:   "momentum_score DESC, global_rank ASC",
	domain.SortComposite:  "composite_score DESC, global_rank ASC",
}

// UpsertRankings replaces the stored ranking with records in one transaction:
// rows whose key is absent from records are deleted, so readers never observe
// a mix of two runs.
func (s *Store) UpsertRankings(ctx context.Context, records []domain.RankingRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	addresses := make([]string, 0, len(records))
	chains := make([]int64, 0, len(records))
	for _, r := range records {
		if r.ContractAddress == "" || !r.Bucket.Valid() {
			return storage.ErrInvalidInput
		}
		batch.Queue(upsertRankingSQL,
			r.ContractAddress,
			r.ChainID,
			r.Symbol,
			r.Name,
			r.MarketCapScore,
			r.VolumeScore,
			r.MomentumScore,
			r.EngineConfidence,
			r.EngineRisk,
			r.MLAdjustment,
			r.CompositeScore,
			string(r.Bucket),
			r.BucketRank,
			r.GlobalRank,
			r.PriceUSD,
			r.PriceChange24h,
			r.MarketCap,
			r.Volume24h,
			r.ImageURL,
			r.Source,
			r.ComputedAt,
		)
		addresses = append(addresses, r.ContractAddress)
		chains = append(chains, r.ChainID)
	}

	if err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if err := execBatch(ctx, tx, batch); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, pruneRankingsSQL, addresses, chains)
		return err
	}); err != nil {
		return fmt.Errorf("upsert rankings: %w", err)
	}
	return nil
}

// Query returns records matching filter in the requested order.
func (s *Store) Query(ctx context.Context, filter domain.RankingFilter, sort domain.RankingSort, limit int) ([]domain.RankingRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if filter.Bucket != "" {
		args = append(args, string(filter.Bucket))
		where = append(where, fmt.Sprintf("bucket = $%d", len(args)))
	}
	if filter.Symbol != "" {
		args = append(args, strings.ToUpper(filter.Symbol))
		where = append(where, fmt.Sprintf("UPPER(symbol) = $%d", len(args)))
	}
	if filter.ChainID != 0 {
		args = append(args, filter.ChainID)
		where = append(where, fmt.Sprintf("chain_id = $%d", len(args)))
	}

	order, ok := rankingOrder[sort]
	if !ok {
		order = rankingOrder[domain.SortGlobalRank]
	}

	var sb strings.Builder
	sb.WriteString(selectRankingColumns)
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}
	sb.WriteString(" ORDER BY ")
	sb.WriteString(order)
	if limit > 0 {
		args = append(args, limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}

	rows, queryErr := pool.Query(ctx, sb.String(), args...)
	if queryErr != nil {
		return nil, fmt.Errorf("query rankings: %w", queryErr)
	}
	defer rows.Close()

	records := make([]domain.RankingRecord, 0)
	for rows.Next() {
		rec, scanErr := scanRanking(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// ListByBucket returns one bucket ordered by bucket rank.
func (s *Store) ListByBucket(ctx context.Context, bucket domain.Bucket, limit int) ([]domain.RankingRecord, error) {
	return s.Query(ctx, domain.RankingFilter{Bucket: bucket}, domain.SortBucketRank, limit)
}

// Summary counts records per bucket.
func (s *Store) Summary(ctx context.Context) (domain.BucketSummary, error) {
	pool, err := s.getPool()
	if err != nil {
		return domain.BucketSummary{}, err
	}

	rows, queryErr := pool.Query(ctx, summarySQL)
	if queryErr != nil {
		return domain.BucketSummary{}, fmt.Errorf("summarise rankings: %w", queryErr)
	}
	defer rows.Close()

	var summary domain.BucketSummary
	for rows.Next() {
		var (
			bucket string
			count  int
			last   time.Time
		)
		if err := rows.Scan(&bucket, &count, &last); err != nil {
			return domain.BucketSummary{}, err
		}
		summary.Counts.Set(domain.Bucket(bucket), count)
		if summary.LastComputed == nil || last.After(*summary.LastComputed) {
			summary.LastComputed = &last
		}
	}
	return summary, rows.Err()
}

// GetBySymbol returns the best ranked record of a symbol.
func (s *Store) GetBySymbol(ctx context.Context, symbol string) (domain.RankingRecord, error) {
	records, err := s.Query(ctx, domain.RankingFilter{Symbol: symbol}, domain.SortGlobalRank, 1)
	if err != nil {
		return domain.RankingRecord{}, err
	}
	if len(records) == 0 {
		return domain.RankingRecord{}, storage.ErrNotFound
	}
	return records[0], nil
}

// TopMovers returns records ordered by momentum score.
func (s *Store) TopMovers(ctx context.Context, limit int) ([]domain.RankingRecord, error) {
	return s.Query(ctx, domain.RankingFilter{}, domain.SortMomentum, limit)
}

func scanRanking(rows pgx.Rows) (domain.RankingRecord, error) {
	var (
		rec    domain.RankingRecord
		bucket string
	)
	if err := rows.Scan(
		&rec.ContractAddress,
		&rec.ChainID,
		&rec.Symbol,
		&rec.Name,
		&rec.MarketCapScore,
		&rec.VolumeScore,
		&rec.MomentumScore,
		&rec.EngineConfidence,
		&rec.EngineRisk,
		&rec.MLAdjustment,
		&rec.CompositeScore,
		&bucket,
		&rec.BucketRank,
		&rec.GlobalRank,
		&rec.PriceUSD,
		&rec.PriceChange24h,
		&rec.MarketCap,
		&rec.Volume24h,
		&rec.ImageURL,
		&rec.Source,
		&rec.ComputedAt,
	); err != nil {
		return domain.RankingRecord{}, fmt.Errorf("scan ranking: %w", err)
	}
	rec.Bucket = domain.Bucket(bucket)
	return rec, nil
}
