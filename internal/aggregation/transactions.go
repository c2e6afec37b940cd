package aggregation

import (
	"context"
	"strings"
	"time"

	"onchain-intel/internal/domain"
	"onchain-intel/internal/resolver"
)

// ClampLimit bounds a transaction limit to [1, MaxTransactionLimit]; zero or
// negative picks def.
func ClampLimit(limit, def int) int {
	if limit <= 0 {
		limit = def
	}
	if limit > MaxTransactionLimit {
		return MaxTransactionLimit
	}
	if limit < 1 {
		return 1
	}
	return limit
}

// Transactions returns the most recent transfers touching the entity,
// newest first, annotated with token metadata and direction.
func (e *Engine) Transactions(ctx context.Context, slug string, limit int) domain.TransactionsResult {
	started := time.Now()
	slug = normalizeSlug(slug)
	limit = ClampLimit(limit, e.txLimit)

	var result domain.TransactionsResult
	if e.cached(ctx, OpTransactions, slug, limit, &result) {
		return result
	}

	result = e.transactions(ctx, slug, limit)
	e.store(ctx, OpTransactions, slug, limit, result.Source, result)
	e.observe(OpTransactions, started, result.Source)
	return result
}

func (e *Engine) transactions(ctx context.Context, slug string, limit int) domain.TransactionsResult {
	result := domain.TransactionsResult{Entity: slug, Transactions: []domain.EntityTransaction{}}

	sc, err := e.loadScope(ctx, slug)
	if err != nil {
		result.Source, result.Error = e.classify(OpTransactions, slug, err)
		return result
	}

	transfers, err := e.ledger.FindTransfers(ctx, domain.TransferFilter{
		Addresses:  sc.addresses,
		Limit:      limit,
		Descending: true,
	})
	if err != nil {
		result.Source, result.Error = e.classify(OpTransactions, slug, err)
		return result
	}

	txs := make([]domain.EntityTransaction, 0, len(transfers))
	for _, t := range transfers {
		info := e.tokenInfo(ctx, t)
		from := strings.ToLower(t.From)
		to := strings.ToLower(t.To)
		txs = append(txs, domain.EntityTransaction{
			TxHash:       t.TxHash,
			Chain:        strings.ToLower(t.Chain),
			From:         from,
			To:           to,
			FromShort:    resolver.ShortAddress(from),
			ToShort:      resolver.ShortAddress(to),
			TokenAddress: strings.ToLower(t.TokenAddress),
			Symbol:       info.Symbol,
			Verified:     info.Verified,
			Decimals:     info.Decimals,
			Amount:       t.Amount,
			AmountUSD:    t.AmountUSD,
			Timestamp:    t.Timestamp.UTC(),
			Direction:    direction(sc, from, to),
		})
	}
	result.Transactions = txs

	if len(txs) == 0 {
		result.Source = domain.SourceNoData
	} else {
		result.Source = domain.SourceIndexed
	}
	return result
}

func direction(sc scope, from, to string) domain.TxDirection {
	switch fromOwned, toOwned := sc.owns(from), sc.owns(to); {
	case fromOwned && toOwned:
		return domain.DirectionInternal
	case toOwned:
		return domain.DirectionIn
	default:
		return domain.DirectionOut
	}
}
