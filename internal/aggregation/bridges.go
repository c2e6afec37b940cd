package aggregation

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"onchain-intel/internal/domain"
)

const (
	RouteL1ToL2     = "L1→L2"
	RouteCrossChain = "cross-chain"
)

var (
	layerOne = map[string]bool{"ethereum": true}
	layerTwo = map[string]bool{
		"arbitrum": true,
		"optimism": true,
		"base":     true,
		"polygon":  true,
		"zksync":   true,
		"linea":    true,
		"scroll":   true,
	}
)

type routeKey struct {
	from, to, asset string
}

// routeDirection labels a bridge route by the layers it connects.
func routeDirection(from, to string) string {
	if layerOne[strings.ToLower(from)] && layerTwo[strings.ToLower(to)] {
		return RouteL1ToL2
	}
	return RouteCrossChain
}

// BridgeFlows groups the entity's bridge-tagged transfers by route and asset.
func (e *Engine) BridgeFlows(ctx context.Context, slug string) domain.BridgeResult {
	started := time.Now()
	slug = normalizeSlug(slug)

	var result domain.BridgeResult
	if e.cached(ctx, OpBridges, slug, 0, &result) {
		return result
	}

	result = e.bridgeFlows(ctx, slug)
	e.store(ctx, OpBridges, slug, 0, result.Source, result)
	e.observe(OpBridges, started, result.Source)
	return result
}

func (e *Engine) bridgeFlows(ctx context.Context, slug string) domain.BridgeResult {
	result := domain.BridgeResult{
		Entity:         slug,
		Routes:         []domain.BridgeRoute{},
		Summary:        domain.BridgeSummary{L1ToL2: decimal.Zero, CrossChain: decimal.Zero},
		TotalVolumeUSD: decimal.Zero,
	}

	sc, err := e.loadScope(ctx, slug)
	if err != nil {
		result.Source, result.Error = e.classify(OpBridges, slug, err)
		return result
	}

	transfers, err := e.ledger.FindTransfers(ctx, domain.TransferFilter{Addresses: sc.addresses, BridgeOnly: true})
	if err != nil {
		result.Source, result.Error = e.classify(OpBridges, slug, err)
		return result
	}

	routes := make(map[routeKey]*domain.BridgeRoute)
	for _, t := range transfers {
		if t.Bridge == nil {
			continue
		}
		from := strings.ToLower(t.Bridge.FromChain)
		to := strings.ToLower(t.Bridge.ToChain)
		asset := strings.ToUpper(e.tokenInfo(ctx, t).Symbol)

		k := routeKey{from: from, to: to, asset: asset}
		r, ok := routes[k]
		if !ok {
			r = &domain.BridgeRoute{
				FromChain: from,
				ToChain:   to,
				Asset:     asset,
				Volume:    decimal.Zero,
				VolumeUSD: decimal.Zero,
				Direction: routeDirection(from, to),
			}
			routes[k] = r
		}
		r.Volume = r.Volume.Add(t.Amount.Abs())
		r.VolumeUSD = r.VolumeUSD.Add(valueOrZero(t.AmountUSD))
		r.TxCount++
	}

	out := make([]domain.BridgeRoute, 0, len(routes))
	for _, r := range routes {
		if r.Direction == RouteL1ToL2 {
			result.Summary.L1ToL2 = result.Summary.L1ToL2.Add(r.VolumeUSD)
		} else {
			result.Summary.CrossChain = result.Summary.CrossChain.Add(r.VolumeUSD)
		}
		result.TotalVolumeUSD = result.TotalVolumeUSD.Add(r.VolumeUSD)
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if c := a.VolumeUSD.Cmp(b.VolumeUSD); c != 0 {
			return c > 0
		}
		if a.FromChain != b.FromChain {
			return a.FromChain < b.FromChain
		}
		if a.ToChain != b.ToChain {
			return a.ToChain < b.ToChain
		}
		return a.Asset < b.Asset
	})
	result.Routes = out

	if len(out) == 0 {
		result.Source = domain.SourceNoData
	} else {
		result.Source = domain.SourceIndexed
	}
	return result
}
