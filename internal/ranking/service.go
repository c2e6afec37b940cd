package ranking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"onchain-intel/internal/domain"
	"onchain-intel/internal/observability"
	"onchain-intel/internal/storage"
)

// ErrLockHeld is returned by RunLocked when another process holds the ranking lock.
var ErrLockHeld = errors.New("ranking lock held elsewhere")

// Service runs the ranking engine against the stores and answers ranking queries.
type Service struct {
	universe storage.TokenUniverseStore
	rankings storage.RankingStore
	locker   storage.AdvisoryLocker
	lockKey  int64
	cfg      Config
	logger   zerolog.Logger
	now      func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithLocker serialises runs across processes through an advisory lock.
func WithLocker(locker storage.AdvisoryLocker, key int64) Option {
	return func(s *Service) {
		s.locker = locker
		s.lockKey = key
	}
}

// WithClock overrides the computation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService constructs a ranking service.
func NewService(universe storage.TokenUniverseStore, rankings storage.RankingStore, cfg Config, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		universe: universe,
		rankings: rankings,
		cfg:      cfg,
		logger:   logger.With().Str("component", "ranking").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the configuration the service ranks with.
func (s *Service) Config() Config {
	return s.cfg
}

// Run ranks every active token and replaces the stored records in one transaction.
func (s *Service) Run(ctx context.Context) (Result, error) {
	started := time.Now()
	runID := uuid.NewString()
	log := s.logger.With().Str("run_id", runID).Logger()

	tokens, err := s.universe.ListActiveTokens(ctx)
	if err != nil {
		observability.RecordRankingRun("error", time.Since(started), 0, 0, 0)
		return Result{}, fmt.Errorf("list active tokens: %w", err)
	}

	result := Compute(tokens, s.cfg, s.now())
	result.RunID = runID
	if result.Sanitized > 0 {
		log.Warn().Int("tokens", result.Sanitized).Msg("malformed market metrics scored as zero")
	}

	if len(result.Records) > 0 {
		if err := s.rankings.UpsertRankings(ctx, result.Records); err != nil {
			observability.RecordRankingRun("error", time.Since(started), 0, 0, 0)
			return Result{}, fmt.Errorf("upsert rankings: %w", err)
		}
	}

	result.Duration = time.Since(started)
	observability.RecordRankingRun("success", result.Duration, result.Buckets.Buy, result.Buckets.Watch, result.Buckets.Sell)
	log.Info().
		Int("computed", result.Computed).
		Int("buy", result.Buckets.Buy).
		Int("watch", result.Buckets.Watch).
		Int("sell", result.Buckets.Sell).
		Dur("duration", result.Duration).
		Msg("ranking run complete")

	return result, nil
}

// RunLocked wraps Run with the advisory lock when one is configured.
func (s *Service) RunLocked(ctx context.Context) (Result, error) {
	if s.locker == nil || s.lockKey == 0 {
		return s.Run(ctx)
	}

	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return Result{}, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		s.logger.Debug().Int64("lock_key", s.lockKey).Msg("skip ranking run because advisory lock held elsewhere")
		return Result{}, ErrLockHeld
	}
	defer unlock()

	return s.Run(ctx)
}

// Bucket returns the top records of one bucket ordered by bucket rank.
func (s *Service) Bucket(ctx context.Context, bucket domain.Bucket, limit int) ([]domain.RankingRecord, error) {
	if !bucket.Valid() {
		return nil, fmt.Errorf("%w: unknown bucket %q", storage.ErrInvalidInput, bucket)
	}
	return s.rankings.ListByBucket(ctx, bucket, s.limit(limit))
}

// Summary returns bucket counts and the latest computation time.
func (s *Service) Summary(ctx context.Context) (domain.BucketSummary, error) {
	return s.rankings.Summary(ctx)
}

// Token returns the ranking of one symbol.
func (s *Service) Token(ctx context.Context, symbol string) (domain.RankingRecord, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return domain.RankingRecord{}, fmt.Errorf("%w: empty symbol", storage.ErrInvalidInput)
	}
	return s.rankings.GetBySymbol(ctx, strings.ToUpper(symbol))
}

// TopMovers returns records ordered by momentum score.
func (s *Service) TopMovers(ctx context.Context, limit int) ([]domain.RankingRecord, error) {
	return s.rankings.TopMovers(ctx, s.limit(limit))
}

// Query runs a filtered ranking query.
func (s *Service) Query(ctx context.Context, filter domain.RankingFilter, sort domain.RankingSort, limit int) ([]domain.RankingRecord, error) {
	if filter.Bucket != "" && !filter.Bucket.Valid() {
		return nil, fmt.Errorf("%w: unknown bucket %q", storage.ErrInvalidInput, filter.Bucket)
	}
	return s.rankings.Query(ctx, filter, sort, s.limit(limit))
}

func (s *Service) limit(requested int) int {
	if requested <= 0 {
		return s.cfg.MaxPerBucket
	}
	return requested
}
