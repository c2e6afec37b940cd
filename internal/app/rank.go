package app

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"

	"onchain-intel/internal/ranking"
	chstore "onchain-intel/internal/storage/clickhouse"
	"onchain-intel/internal/storage/migrations"
	pgstore "onchain-intel/internal/storage/postgres"
)

// Rank performs one ranking run outside the scheduler.
func (a *App) Rank(ctx context.Context, sync bool) error {
	s, err := a.openStores(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if sync {
		if _, err := a.newIngestor(s).Sync(ctx); err != nil {
			return err
		}
	}

	result, err := a.newRankingService(s).RunLocked(ctx)
	if errors.Is(err, ranking.ErrLockHeld) {
		a.Logger.Warn().Msg("another process is ranking; nothing to do")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(os.Stdout, result.String())
	if !s.durable {
		a.Logger.Warn().Msg("rankings were computed against in-memory stores and are not persisted")
	}
	return nil
}

// Sync refreshes the token universe from CoinGecko and prints the universe stats.
func (a *App) Sync(ctx context.Context) error {
	s, err := a.openStores(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	ing := a.newIngestor(s)
	res, err := ing.Sync(ctx)
	if err != nil {
		return err
	}
	stats, err := ing.Stats(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(os.Stdout, res.String())
	fmt.Fprintf(os.Stdout, "universe: total=%d active=%d\n", stats.TotalTokens, stats.ActiveTokens)
	for _, chain := range slices.Sorted(maps.Keys(stats.ByChain)) {
		fmt.Fprintf(os.Stdout, "  chain %d: %d\n", chain, stats.ByChain[chain])
	}
	return nil
}

// Migrate applies the embedded schema migrations to every configured database.
func (a *App) Migrate(ctx context.Context) error {
	if a.Config.Database.DSN == "" && a.Config.ClickHouse.DSN == "" {
		return errors.New("neither database.dsn nor clickhouse.dsn is configured")
	}

	if a.Config.Database.DSN != "" {
		pool, err := pgstore.NewPool(ctx, a.Config.Database)
		if err != nil {
			return err
		}
		defer pool.Close()

		applied, err := migrations.RunPostgres(ctx, pool)
		if err != nil {
			return err
		}
		a.Logger.Info().Strs("files", applied).Msg("postgres migrations applied")
	}

	if dsn := a.Config.ClickHouse.DSN; dsn != "" {
		conn, err := chstore.NewConn(ctx, dsn)
		if err != nil {
			return err
		}
		defer conn.Close()

		applied, err := migrations.RunClickhouse(ctx, conn)
		if err != nil {
			return err
		}
		a.Logger.Info().Strs("files", applied).Msg("clickhouse migrations applied")
	}
	return nil
}
