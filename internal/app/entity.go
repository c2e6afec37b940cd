package app

import (
	"context"
	"fmt"
	"os"
	"strings"

	"onchain-intel/internal/aggregation"
)

// Entity prints one aggregate of an entity, or its full profile, as JSON.
func (a *App) Entity(ctx context.Context, opts EntityOptions) error {
	s, err := a.openStores(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	engine, closeEngine := a.newEngine(ctx, s)
	defer closeEngine()

	window := a.Config.ResolveWindow(opts.WindowDays)

	var out any
	switch op := strings.ToLower(strings.TrimSpace(opts.Operation)); op {
	case "", "profile":
		out = engine.Profile(ctx, opts.Slug, window)
	case aggregation.OpHoldings:
		out = engine.Holdings(ctx, opts.Slug)
	case aggregation.OpFlows:
		out = engine.Flows(ctx, opts.Slug, window)
	case aggregation.OpBridges:
		out = engine.BridgeFlows(ctx, opts.Slug)
	case aggregation.OpTransactions:
		out = engine.Transactions(ctx, opts.Slug, opts.Limit)
	case aggregation.OpPatterns:
		out = engine.PatternBridge(ctx, opts.Slug)
	default:
		return fmt.Errorf("unknown operation %q", op)
	}

	return writeJSON(os.Stdout, out)
}
