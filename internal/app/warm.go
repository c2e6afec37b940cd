package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alitto/pond/v2"

	"onchain-intel/internal/aggregation"
	"onchain-intel/internal/domain"
	"onchain-intel/internal/storage"
)

// warmed names the aggregates of one entity that failed to compute.
type warmed struct {
	slug   string
	failed []string
}

// Warm precomputes every aggregate of the given entities, or of all entities
// when none are named, so later reads are served from the cache.
func (a *App) Warm(ctx context.Context, opts WarmOptions) error {
	s, err := a.openStores(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	slugs := opts.Slugs
	if len(slugs) == 0 {
		slugs, err = entitySlugs(ctx, s.entities)
		if err != nil {
			return err
		}
	}
	if len(slugs) == 0 {
		return errors.New("no entities to warm")
	}

	if opts.DryRun {
		a.Logger.Warn().Strs("entities", slugs).Msg("warm dry-run: no aggregates computed")
		return nil
	}
	if a.Config.Aggregation.CacheTTL <= 0 {
		a.Logger.Warn().Msg("aggregation.cache_ttl is zero; warmed aggregates are not retained")
	}

	engine, closeEngine := a.newEngine(ctx, s)
	defer closeEngine()

	workers := opts.Workers
	if workers <= 0 {
		workers = 2
	}
	pool := pond.NewResultPool[warmed](workers, pond.WithContext(ctx))
	defer pool.StopAndWait()

	window := a.Config.ResolveWindow(opts.WindowDays)
	tasks := make([]pond.Result[warmed], 0, len(slugs))
	for _, slug := range slugs {
		tasks = append(tasks, pool.Submit(func() warmed {
			return warmed{slug: slug, failed: failedOps(engine.Profile(ctx, slug, window))}
		}))
	}

	processed, failed := 0, 0
	for _, task := range tasks {
		res, err := task.Wait()
		if err != nil {
			return fmt.Errorf("warm interrupted: %w", err)
		}
		if len(res.failed) > 0 {
			failed++
			a.Logger.Error().Str("entity", res.slug).Strs("operations", res.failed).Msg("warm failed")
			continue
		}
		processed++
	}

	a.Logger.Info().Int("processed", processed).Int("failed", failed).Int("window_days", window).Msg("warm complete")
	if failed > 0 {
		return fmt.Errorf("%d of %d entities failed to warm", failed, len(slugs))
	}
	return nil
}

func entitySlugs(ctx context.Context, entities storage.EntityStore) ([]string, error) {
	list, err := entities.ListEntities(ctx)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	slugs := make([]string, 0, len(list))
	for _, e := range list {
		slugs = append(slugs, strings.ToLower(e.Slug))
	}
	return slugs, nil
}

// failedOps names the aggregates of a profile that came back with Source error.
func failedOps(p domain.EntityProfile) []string {
	sources := []struct {
		op     string
		source domain.Source
	}{
		{aggregation.OpHoldings, p.Holdings.Source},
		{aggregation.OpFlows, p.Flows.Source},
		{aggregation.OpBridges, p.Bridges.Source},
		{aggregation.OpTransactions, p.Transactions.Source},
		{aggregation.OpPatterns, p.Patterns.Source},
	}

	var out []string
	for _, s := range sources {
		if s.source == domain.SourceError {
			out = append(out, s.op)
		}
	}
	return out
}
