package aggregation

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"onchain-intel/internal/domain"
)

const day = 24 * time.Hour

// window is a trailing range of whole UTC days ending with today.
type window struct {
	days  int
	start time.Time
	end   time.Time
}

func trailingWindow(now time.Time, days int) window {
	today := now.UTC().Truncate(day)
	return window{
		days:  days,
		start: today.AddDate(0, 0, -(days - 1)),
		end:   today.Add(day),
	}
}

func (w window) index(ts time.Time) (int, bool) {
	ts = ts.UTC()
	if ts.Before(w.start) || !ts.Before(w.end) {
		return 0, false
	}
	return int(ts.Sub(w.start) / day), true
}

func (w window) buckets() []domain.FlowBucket {
	out := make([]domain.FlowBucket, w.days)
	for i := range out {
		out[i] = domain.FlowBucket{
			Date:       w.start.AddDate(0, 0, i),
			Inflow:     decimal.Zero,
			Outflow:    decimal.Zero,
			Net:        decimal.Zero,
			InflowUSD:  decimal.Zero,
			OutflowUSD: decimal.Zero,
			NetUSD:     decimal.Zero,
		}
	}
	return out
}

// SupportsWindow reports whether windowDays is one of the configured windows.
func (e *Engine) SupportsWindow(windowDays int) bool {
	return slices.Contains(e.windows, windowDays)
}

// Flows buckets an entity's transfers into zero-filled UTC days over the
// trailing window and breaks them down per token.
func (e *Engine) Flows(ctx context.Context, slug string, windowDays int) domain.FlowsResult {
	started := time.Now()
	slug = normalizeSlug(slug)

	var result domain.FlowsResult
	if e.cached(ctx, OpFlows, slug, windowDays, &result) {
		return result
	}

	result = e.flows(ctx, slug, windowDays)
	e.store(ctx, OpFlows, slug, windowDays, result.Source, result)
	e.observe(OpFlows, started, result.Source)
	return result
}

func (e *Engine) flows(ctx context.Context, slug string, windowDays int) domain.FlowsResult {
	result := domain.FlowsResult{
		Entity:       slug,
		WindowDays:   windowDays,
		Daily:        []domain.FlowBucket{},
		Tokens:       []domain.TokenFlow{},
		TotalInflow:  decimal.Zero,
		TotalOutflow: decimal.Zero,
		NetFlow:      decimal.Zero,
	}
	if !e.SupportsWindow(windowDays) {
		result.Source = domain.SourceError
		result.Error = fmt.Sprintf("unsupported window %d days, expected one of %v", windowDays, e.windows)
		return result
	}

	w := trailingWindow(e.now(), windowDays)
	result.Daily = w.buckets()

	sc, err := e.loadScope(ctx, slug)
	if err != nil {
		result.Source, result.Error = e.classify(OpFlows, slug, err)
		return result
	}

	transfers, err := e.ledger.FindTransfers(ctx, domain.TransferFilter{
		Addresses: sc.addresses,
		Since:     &w.start,
		Until:     &w.end,
	})
	if err != nil {
		result.Source, result.Error = e.classify(OpFlows, slug, err)
		return result
	}

	tokens := make(map[tokenKey]*domain.TokenFlow)
	samples := make(map[tokenKey]domain.Transfer)
	counted := 0
	for _, t := range transfers {
		idx, ok := w.index(t.Timestamp)
		if !ok {
			continue
		}
		counted++
		bucket := &result.Daily[idx]
		bucket.TxCount++

		k := keyOf(t)
		tf, ok := tokens[k]
		if !ok {
			tf = &domain.TokenFlow{Chain: k.chain, TokenAddress: k.token}
			tokens[k] = tf
			samples[k] = t
		}
		tf.TxCount++

		usd := valueOrZero(t.AmountUSD)
		if sc.owns(t.To) {
			bucket.Inflow = bucket.Inflow.Add(t.Amount)
			bucket.InflowUSD = bucket.InflowUSD.Add(usd)
			tf.Inflow = tf.Inflow.Add(t.Amount)
			tf.InflowUSD = tf.InflowUSD.Add(usd)
		}
		if sc.owns(t.From) {
			bucket.Outflow = bucket.Outflow.Add(t.Amount)
			bucket.OutflowUSD = bucket.OutflowUSD.Add(usd)
			tf.Outflow = tf.Outflow.Add(t.Amount)
			tf.OutflowUSD = tf.OutflowUSD.Add(usd)
		}
	}

	for i := range result.Daily {
		b := &result.Daily[i]
		b.Net = b.Inflow.Sub(b.Outflow)
		b.NetUSD = b.InflowUSD.Sub(b.OutflowUSD)
		result.TotalInflow = result.TotalInflow.Add(b.InflowUSD)
		result.TotalOutflow = result.TotalOutflow.Add(b.OutflowUSD)
	}
	result.NetFlow = result.TotalInflow.Sub(result.TotalOutflow)

	flows := make([]domain.TokenFlow, 0, len(tokens))
	for k, tf := range tokens {
		tf.Symbol = e.tokenInfo(ctx, samples[k]).Symbol
		tf.Net = tf.Inflow.Sub(tf.Outflow)
		tf.NetUSD = tf.InflowUSD.Sub(tf.OutflowUSD)
		tf.DominantFlow = dominantFlow(tf.Net)
		flows = append(flows, *tf)
	}
	sort.Slice(flows, func(i, j int) bool {
		a, b := flows[i], flows[j]
		if c := a.NetUSD.Abs().Cmp(b.NetUSD.Abs()); c != 0 {
			return c > 0
		}
		if a.Chain != b.Chain {
			return a.Chain < b.Chain
		}
		return a.TokenAddress < b.TokenAddress
	})
	result.Tokens = flows

	if counted == 0 {
		result.Source = domain.SourceNoData
	} else {
		result.Source = domain.SourceIndexed
	}
	return result
}

// dominantFlow classifies an exact net amount; only exact zero is neutral.
func dominantFlow(net decimal.Decimal) domain.FlowDirection {
	switch net.Sign() {
	case 1:
		return domain.FlowInflow
	case -1:
		return domain.FlowOutflow
	default:
		return domain.FlowNeutral
	}
}
