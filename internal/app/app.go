package app

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"onchain-intel/internal/aggregation"
	"onchain-intel/internal/cache"
	"onchain-intel/internal/config"
	"onchain-intel/internal/ingest"
	"onchain-intel/internal/observability"
	"onchain-intel/internal/ranking"
	"onchain-intel/internal/resolver"
	"onchain-intel/internal/scheduler"
	"onchain-intel/internal/service"
	"onchain-intel/internal/storage"
	chstore "onchain-intel/internal/storage/clickhouse"
	"onchain-intel/internal/storage/memory"
	pgstore "onchain-intel/internal/storage/postgres"
	"onchain-intel/internal/universe"
	"onchain-intel/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// stores bundles the storage backends selected by configuration.
type stores struct {
	universe storage.TokenUniverseStore
	rankings storage.RankingStore
	entities storage.EntityStore
	ledger   storage.TransferLedger
	registry storage.TokenRegistry
	locker   storage.AdvisoryLocker
	durable  bool
	closers  []func()
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openStores uses PostgreSQL when database.dsn is set and falls back to
// process-local memory stores otherwise. clickhouse.dsn moves the transfer
// ledger to ClickHouse.
func (a *App) openStores(ctx context.Context) (*stores, error) {
	s := &stores{}

	if a.Config.Database.DSN == "" {
		a.Logger.Warn().Msg("database.dsn not configured; using in-memory stores")
		s.universe = memory.NewTokenUniverseStore()
		s.rankings = memory.NewRankingStore()
		s.entities = memory.NewEntityStore()
		s.ledger = memory.NewTransferLedger()
		s.registry = memory.NewTokenRegistry()
		s.locker = memory.NewLocker()
	} else {
		pool, err := pgstore.NewPool(ctx, a.Config.Database)
		if err != nil {
			return nil, err
		}
		store := pgstore.NewStore(pool)
		s.closers = append(s.closers, store.Close)
		s.universe = store
		s.rankings = store
		s.entities = store
		s.ledger = store
		s.registry = store
		s.locker = store
		s.durable = true
	}

	if dsn := a.Config.ClickHouse.DSN; dsn != "" {
		conn, err := chstore.NewConn(ctx, dsn)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, func() { _ = conn.Close() })
		s.ledger = chstore.NewTransferLedger(conn)
		a.Logger.Info().Msg("transfer ledger served by clickhouse")
	}

	return s, nil
}

func (a *App) newRankingService(s *stores) *ranking.Service {
	return ranking.NewService(s.universe, s.rankings, a.Config.Ranking, a.Logger,
		ranking.WithLocker(s.locker, a.Config.Scheduler.AdvisoryLockKey))
}

func (a *App) newIngestor(s *stores) *universe.Ingestor {
	cfg := a.Config.Universe
	client := universe.NewCoinGecko(universe.CoinGeckoOptions{
		BaseURL:   cfg.BaseURL,
		APIKey:    cfg.APIKey,
		PerPage:   cfg.PerPage,
		MaxPages:  cfg.MaxPages,
		Timeout:   cfg.RequestTimeout,
		UserAgent: cfg.UserAgent,
	}, a.Logger)

	return universe.NewIngestor(client, s.universe, universe.Options{
		MinMarketCap: cfg.MinMarketCap,
		MinVolume24h: cfg.MinVolume24h,
		MaxTokens:    cfg.MaxTokens,
		StaleAfter:   cfg.StaleAfter,
		Platforms:    cfg.Platforms,
	}, a.Logger)
}

// newResolver returns the token resolver and a cleanup for its RPC client.
func (a *App) newResolver(s *stores) (*resolver.Resolver, func()) {
	if a.Config.Ethereum.RPCURL == "" {
		return resolver.New(s.registry, nil, a.Logger), func() {}
	}
	source := resolver.NewERC20(resolver.ERC20Options{
		RPCURL:  a.Config.Ethereum.RPCURL,
		Chain:   resolver.DefaultChain,
		Timeout: a.Config.Ethereum.RequestTimeout,
	}, a.Logger)
	return resolver.New(s.registry, source, a.Logger), source.Close
}

// newEngine wires the aggregation engine; the returned func releases it.
func (a *App) newEngine(ctx context.Context, s *stores) (*aggregation.Engine, func()) {
	tokens, closeResolver := a.newResolver(s)

	var c cache.Cache
	if a.Config.Aggregation.CacheTTL > 0 {
		c = cache.New(ctx, a.Config.Redis.URL, a.Logger)
	}

	engine := aggregation.New(s.entities, s.ledger, tokens, aggregation.Options{
		Workers:          a.Config.Aggregation.Workers,
		WindowDays:       a.Config.Aggregation.WindowDays,
		TransactionLimit: a.Config.Aggregation.TransactionLimit,
		CacheTTL:         a.Config.Aggregation.CacheTTL,
		Cache:            c,
	}, a.Logger)

	return engine, func() {
		engine.Close()
		if closer, ok := c.(interface{ Close() error }); ok {
			_ = closer.Close()
		}
		closeResolver()
	}
}

// Run executes the long-running ranking service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	s, err := a.openStores(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if a.Config.Metrics.Enabled {
		srv := a.startMetrics()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if a.Config.Kafka.Enabled() {
		engine, closeEngine := a.newEngine(ctx, s)
		defer closeEngine()

		stop, err := a.startConsumer(ctx, s, engine)
		if err != nil {
			return err
		}
		defer stop()
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
		RunOnStart:   a.Config.Scheduler.RunOnStart,
	}, a.Logger)

	var syncer service.Syncer
	if a.Config.Scheduler.SyncUniverse {
		syncer = a.newIngestor(s)
	}

	svc := service.New(sched, a.newRankingService(s), syncer, s.locker, a.Config.Scheduler.AdvisoryLockKey, a.Logger)

	a.Logger.Info().Str("version", version.Version).Str("commit", version.Commit).Dur("interval", a.Config.Scheduler.Interval).Bool("sync_universe", syncer != nil).Msg("starting ranking service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("ranking service stopped")
	return nil
}

func (a *App) startMetrics() *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: a.Config.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		a.Logger.Info().Str("addr", srv.Addr).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error().Err(err).Msg("metrics server failed")
		}
	}()
	return srv
}

// startConsumer runs the cache invalidation consumer until ctx ends.
func (a *App) startConsumer(ctx context.Context, s *stores, engine *aggregation.Engine) (func(), error) {
	cfg := a.Config.Kafka
	client, err := ingest.NewClient(cfg.Brokers, a.Config.App.Name)
	if err != nil {
		return nil, err
	}

	handler := ingest.NewHandler(s.entities, engine, a.Logger)
	consumer, err := ingest.NewConsumer(client, cfg.Topic, cfg.GroupID, handler, a.Logger)
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	consumerCtx, stopConsumer := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := consumer.Run(consumerCtx); err != nil {
			a.Logger.Error().Err(err).Msg("transfer event consumer stopped")
		}
	}()

	return func() {
		stopConsumer()
		<-done
		_ = consumer.Close()
		_ = client.Close()
	}, nil
}

// ShowOptions configure the rankings command.
type ShowOptions struct {
	Bucket string
	Symbol string
	Movers bool
	Limit  int
	JSON   bool
}

// EntityOptions configure the entity command.
type EntityOptions struct {
	Slug       string
	Operation  string
	WindowDays int
	Limit      int
}

// ExportOptions hold parameters for exporting entity flows.
type ExportOptions struct {
	Slug       string
	WindowDays int
	PNGPath    string
	CSVPath    string
	MaxPoints  int
}

// WarmOptions configure the cache warm job.
type WarmOptions struct {
	Slugs      []string
	WindowDays int
	Workers    int
	DryRun     bool
}
