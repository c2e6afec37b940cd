package aggregation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"onchain-intel/internal/domain"
	"onchain-intel/internal/resolver"
	"onchain-intel/internal/storage/memory"
)

const (
	hotWallet  = "0x00000000000000000000000000000000000000a1"
	coldWallet = "0x00000000000000000000000000000000000000b2"
	outsider1  = "0x00000000000000000000000000000000000000e1"
	outsider2  = "0x00000000000000000000000000000000000000e2"
	usdcToken  = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
	wethToken  = "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
)

var testNow = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

type fixture struct {
	entities *memory.EntityStore
	ledger   *memory.TransferLedger
	engine   *Engine
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	ctx := context.Background()

	registry := memory.NewTokenRegistry()
	require.NoError(t, registry.UpsertToken(ctx, domain.TokenInfo{
		Address: usdcToken, Chain: "ethereum", Symbol: "USDC", Name: "USD Coin", Decimals: 6, Verified: true,
	}))

	if opts.Now == nil {
		opts.Now = func() time.Time { return testNow }
	}

	f := &fixture{
		entities: memory.NewEntityStore(),
		ledger:   memory.NewTransferLedger(),
	}
	f.engine = New(f.entities, f.ledger, resolver.New(registry, nil, zerolog.Nop()), opts, zerolog.Nop())
	t.Cleanup(f.engine.Close)
	return f
}

func (f *fixture) addEntity(t *testing.T, slug string, addrs ...string) {
	t.Helper()
	ctx := context.Background()
	id, err := f.entities.UpsertEntity(ctx, domain.Entity{Slug: slug, Name: slug, Category: "exchange"})
	require.NoError(t, err)

	roles := []domain.AddressRole{domain.RoleHot, domain.RoleCold, domain.RoleDeposit}
	list := make([]domain.EntityAddress, 0, len(addrs))
	for i, a := range addrs {
		list = append(list, domain.EntityAddress{EntityID: id, Chain: "ethereum", Address: a, Role: roles[i%len(roles)]})
	}
	if len(list) > 0 {
		require.NoError(t, f.entities.AddAddresses(ctx, list))
	}
}

func (f *fixture) add(t *testing.T, transfers ...domain.Transfer) {
	t.Helper()
	require.NoError(t, f.ledger.InsertTransfers(context.Background(), transfers))
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var txSeq int

func transfer(ts time.Time, from, to, token, amount, usd string) domain.Transfer {
	txSeq++
	t := domain.Transfer{
		TxHash:       "0x" + decimal.NewFromInt(int64(txSeq)).String(),
		Chain:        "ethereum",
		From:         from,
		To:           to,
		TokenAddress: token,
		Amount:       dec(amount),
		Timestamp:    ts,
	}
	if token == wethToken {
		t.TokenSymbol = "WETH"
	}
	if usd != "" {
		t.AmountUSD = decimal.NewNullDecimal(dec(usd))
	}
	return t
}

func bridged(t domain.Transfer, from, to string) domain.Transfer {
	t.Bridge = &domain.BridgeTag{FromChain: from, ToChain: to}
	return t
}

type failingLedger struct{}

func (failingLedger) FindTransfers(context.Context, domain.TransferFilter) ([]domain.Transfer, error) {
	return nil, errors.New("ledger unavailable")
}
