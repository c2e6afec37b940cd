package aggregation

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"onchain-intel/internal/domain"
)

var hundred = decimal.NewFromInt(100)

type position struct {
	key       tokenKey
	sample    domain.Transfer
	balance   decimal.Decimal
	unitPrice decimal.NullDecimal
	pricedAt  time.Time
	txCount   int
}

// Holdings reports the net position of an entity per token over its full
// transfer history. Balances are inflows minus outflows and may be negative.
func (e *Engine) Holdings(ctx context.Context, slug string) domain.HoldingsResult {
	started := time.Now()
	slug = normalizeSlug(slug)

	var result domain.HoldingsResult
	if e.cached(ctx, OpHoldings, slug, 0, &result) {
		return result
	}

	result = e.holdings(ctx, slug)
	e.store(ctx, OpHoldings, slug, 0, result.Source, result)
	e.observe(OpHoldings, started, result.Source)
	return result
}

func (e *Engine) holdings(ctx context.Context, slug string) domain.HoldingsResult {
	result := domain.HoldingsResult{Entity: slug, Holdings: []domain.Holding{}, TotalUSD: decimal.Zero}

	sc, err := e.loadScope(ctx, slug)
	if err != nil {
		result.Source, result.Error = e.classify(OpHoldings, slug, err)
		return result
	}

	transfers, err := e.ledger.FindTransfers(ctx, domain.TransferFilter{Addresses: sc.addresses})
	if err != nil {
		result.Source, result.Error = e.classify(OpHoldings, slug, err)
		return result
	}
	if len(transfers) == 0 {
		result.Source = domain.SourceNoData
		return result
	}

	positions := make(map[tokenKey]*position)
	var lastUpdated time.Time
	for _, t := range transfers {
		k := keyOf(t)
		p, ok := positions[k]
		if !ok {
			p = &position{key: k, sample: t}
			positions[k] = p
		}
		p.txCount++

		if sc.owns(t.To) {
			p.balance = p.balance.Add(t.Amount)
		}
		if sc.owns(t.From) {
			p.balance = p.balance.Sub(t.Amount)
		}

		if price, ok := unitPrice(t); ok && !t.Timestamp.Before(p.pricedAt) {
			p.unitPrice = decimal.NewNullDecimal(price)
			p.pricedAt = t.Timestamp
		}
		if t.Timestamp.After(lastUpdated) {
			lastUpdated = t.Timestamp
		}
	}

	total := decimal.Zero
	holdings := make([]domain.Holding, 0, len(positions))
	for _, p := range positions {
		info := e.tokenInfo(ctx, p.sample)
		h := domain.Holding{
			Chain:        p.key.chain,
			TokenAddress: p.key.token,
			Symbol:       info.Symbol,
			Verified:     info.Verified,
			Balance:      p.balance,
			TxCount:      p.txCount,
		}
		if p.unitPrice.Valid {
			value := p.balance.Mul(p.unitPrice.Decimal).Round(2)
			h.ValueUSD = decimal.NewNullDecimal(value)
			total = total.Add(value)
		}
		holdings = append(holdings, h)
	}

	for i := range holdings {
		if holdings[i].ValueUSD.Valid && !total.IsZero() {
			holdings[i].Percentage = holdings[i].ValueUSD.Decimal.Div(total).Mul(hundred).Round(2).InexactFloat64()
		}
	}
	sort.Slice(holdings, func(i, j int) bool {
		a, b := holdings[i], holdings[j]
		if c := valueOrZero(a.ValueUSD).Cmp(valueOrZero(b.ValueUSD)); c != 0 {
			return c > 0
		}
		if c := a.Balance.Abs().Cmp(b.Balance.Abs()); c != 0 {
			return c > 0
		}
		if a.Chain != b.Chain {
			return a.Chain < b.Chain
		}
		return a.TokenAddress < b.TokenAddress
	})

	updated := lastUpdated.UTC()
	result.Holdings = holdings
	result.TotalUSD = total
	result.TotalTokens = len(holdings)
	result.LastUpdated = &updated
	result.Source = domain.SourceIndexed
	return result
}

// unitPrice derives the USD price per token unit from a priced transfer.
func unitPrice(t domain.Transfer) (decimal.Decimal, bool) {
	if !t.AmountUSD.Valid || t.Amount.IsZero() {
		return decimal.Decimal{}, false
	}
	return t.AmountUSD.Decimal.Div(t.Amount.Abs()), true
}

func valueOrZero(v decimal.NullDecimal) decimal.Decimal {
	if !v.Valid {
		return decimal.Zero
	}
	return v.Decimal
}
