package universe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"onchain-intel/internal/domain"
	"onchain-intel/internal/observability"
	"onchain-intel/internal/resolver"
	"onchain-intel/internal/storage"
)

const defaultDecimals = 18

// platformChains maps CoinGecko platform ids to EVM chain ids.
var platformChains = map[string]int64{
	"ethereum":            domain.ChainIDEthereum,
	"arbitrum-one":        domain.ChainIDArbitrum,
	"polygon-pos":         domain.ChainIDPolygon,
	"optimistic-ethereum": domain.ChainIDOptimism,
	"base":                domain.ChainIDBase,
}

// DefaultPlatforms is the platform preference order used when none is configured.
var DefaultPlatforms = []string{"ethereum", "arbitrum-one", "polygon-pos"}

// MarketSource supplies market rows and contract platforms.
type MarketSource interface {
	Markets(ctx context.Context) ([]MarketCoin, error)
	Platforms(ctx context.Context) (map[string]map[string]string, error)
}

var _ MarketSource = (*CoinGecko)(nil)

// Options tune qualification of market rows.
type Options struct {
	MinMarketCap float64
	MinVolume24h float64
	MaxTokens    int
	StaleAfter   time.Duration
	// Platforms in preference order; the first one a coin is deployed on wins.
	Platforms []string
	Now       func() time.Time
}

// SyncResult summarises one synchronisation.
type SyncResult struct {
	Fetched     int
	EVM         int
	Qualified   int
	Upserted    int
	Deactivated int
	Duration    time.Duration
}

func (r SyncResult) String() string {
	return fmt.Sprintf("fetched=%d evm=%d qualified=%d upserted=%d deactivated=%d took=%s",
		r.Fetched, r.EVM, r.Qualified, r.Upserted, r.Deactivated, r.Duration.Round(time.Millisecond))
}

// Ingestor normalises market data into the token universe.
type Ingestor struct {
	source MarketSource
	store  storage.TokenUniverseStore
	opts   Options
	logger zerolog.Logger
}

// NewIngestor builds an Ingestor, filling unset options with the defaults.
func NewIngestor(source MarketSource, store storage.TokenUniverseStore, opts Options, logger zerolog.Logger) *Ingestor {
	if opts.MinMarketCap <= 0 {
		opts.MinMarketCap = 1_000_000
	}
	if opts.MinVolume24h <= 0 {
		opts.MinVolume24h = 100_000
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1000
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 72 * time.Hour
	}
	if len(opts.Platforms) == 0 {
		opts.Platforms = DefaultPlatforms
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Ingestor{
		source: source,
		store:  store,
		opts:   opts,
		logger: logger.With().Str("component", "universe_ingestor").Logger(),
	}
}

// Sync fetches the market listing, upserts qualifying tokens and deactivates stale ones.
func (i *Ingestor) Sync(ctx context.Context) (SyncResult, error) {
	start := time.Now()
	res, err := i.sync(ctx)
	res.Duration = time.Since(start)

	if err != nil {
		observability.RecordUniverseSync("error", 0)
		i.logger.Error().Err(err).Msg("universe sync failed")
		return res, err
	}

	observability.RecordUniverseSync("success", res.Upserted)
	i.logger.Info().
		Int("fetched", res.Fetched).
		Int("evm", res.EVM).
		Int("qualified", res.Qualified).
		Int("upserted", res.Upserted).
		Int("deactivated", res.Deactivated).
		Dur("duration", res.Duration).
		Msg("universe sync completed")
	return res, nil
}

func (i *Ingestor) sync(ctx context.Context) (SyncResult, error) {
	var res SyncResult

	coins, err := i.source.Markets(ctx)
	if err != nil {
		return res, fmt.Errorf("fetch markets: %w", err)
	}
	res.Fetched = len(coins)

	platforms, err := i.source.Platforms(ctx)
	if err != nil {
		return res, fmt.Errorf("fetch platforms: %w", err)
	}

	now := i.opts.Now().UTC()
	tokens := make([]domain.Token, 0, len(coins))
	seen := make(map[domain.TokenKey]struct{}, len(coins))
	for _, coin := range coins {
		address, chainID, ok := i.deployment(platforms[coin.ID])
		if !ok {
			continue
		}
		res.EVM++

		if coin.MarketCap < i.opts.MinMarketCap || coin.TotalVolume < i.opts.MinVolume24h {
			continue
		}
		res.Qualified++

		if len(tokens) >= i.opts.MaxTokens {
			continue
		}
		token := normalize(coin, address, chainID, now)
		if _, dup := seen[token.Key()]; dup {
			continue
		}
		seen[token.Key()] = struct{}{}
		tokens = append(tokens, token)
	}

	if len(tokens) > 0 {
		n, err := i.store.UpsertTokens(ctx, tokens)
		if err != nil {
			return res, fmt.Errorf("upsert tokens: %w", err)
		}
		res.Upserted = n
	}

	deactivated, err := i.store.MarkInactive(ctx, now.Add(-i.opts.StaleAfter))
	if err != nil {
		return res, fmt.Errorf("mark inactive: %w", err)
	}
	res.Deactivated = deactivated
	return res, nil
}

// Stats summarises the stored universe.
func (i *Ingestor) Stats(ctx context.Context) (domain.UniverseStats, error) {
	stats, err := i.store.Stats(ctx)
	if err != nil {
		return domain.UniverseStats{}, fmt.Errorf("universe stats: %w", err)
	}
	return stats, nil
}

// deployment picks the preferred EVM contract of a coin.
func (i *Ingestor) deployment(platforms map[string]string) (string, int64, bool) {
	for _, p := range i.opts.Platforms {
		chainID, known := platformChains[p]
		if !known {
			continue
		}
		address := strings.TrimSpace(platforms[p])
		if !resolver.IsEVMAddress(address) {
			continue
		}
		return resolver.NormalizeAddress(address), chainID, true
	}
	return "", 0, false
}

func normalize(coin MarketCoin, address string, chainID int64, now time.Time) domain.Token {
	return domain.Token{
		Symbol:          strings.ToUpper(strings.TrimSpace(coin.Symbol)),
		Name:            coin.Name,
		ContractAddress: address,
		ChainID:         chainID,
		Decimals:        defaultDecimals,
		MarketCap:       coin.MarketCap,
		Volume24h:       coin.TotalVolume,
		PriceUSD:        coin.CurrentPrice,
		PriceChange24h:  coin.PriceChangePercentage24h,
		CoingeckoID:     coin.ID,
		ImageURL:        coin.Image,
		Active:          true,
		LastUpdated:     now,
	}
}
