// Package service drives scheduled universe syncs and ranking runs.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"onchain-intel/internal/ranking"
	"onchain-intel/internal/scheduler"
	"onchain-intel/internal/storage"
	"onchain-intel/internal/universe"
)

// Ranker runs one ranking pass.
type Ranker interface {
	Run(ctx context.Context) (ranking.Result, error)
}

// Syncer refreshes the token universe.
type Syncer interface {
	Sync(ctx context.Context) (universe.SyncResult, error)
}

var (
	_ Ranker = (*ranking.Service)(nil)
	_ Syncer = (*universe.Ingestor)(nil)
)

// Service orchestrates the scheduled ranking loop.
type Service struct {
	scheduler *scheduler.Scheduler
	ranker    Ranker
	syncer    Syncer
	logger    zerolog.Logger

	locker  storage.AdvisoryLocker
	lockKey int64
}

// New constructs the ranking loop. syncer may be nil to skip universe syncs.
func New(sched *scheduler.Scheduler, ranker Ranker, syncer Syncer, locker storage.AdvisoryLocker, lockKey int64, logger zerolog.Logger) *Service {
	return &Service{
		scheduler: sched,
		ranker:    ranker,
		syncer:    syncer,
		logger:    logger.With().Str("component", "service").Logger(),
		locker:    locker,
		lockKey:   lockKey,
	}
}

// Run begins the aligned ranking loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessBucket)
}

// ProcessBucket runs one tick: an optional universe sync followed by a ranking run.
func (s *Service) ProcessBucket(ctx context.Context, bucket time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("bucket", bucket).Msg("skip bucket because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	return s.executeBucket(ctx, bucket)
}

func (s *Service) executeBucket(ctx context.Context, bucket time.Time) error {
	if s.syncer != nil {
		// A failed sync still ranks the last known universe.
		if res, err := s.syncer.Sync(ctx); err != nil {
			s.logger.Error().Err(err).Time("bucket", bucket).Msg("universe sync failed")
		} else {
			s.logger.Debug().Time("bucket", bucket).Stringer("sync", res).Msg("universe synced")
		}
	}

	result, err := s.ranker.Run(ctx)
	if err != nil {
		return fmt.Errorf("ranking run: %w", err)
	}

	s.logger.Info().Time("bucket", bucket).
		Str("run_id", result.RunID).
		Int("computed", result.Computed).
		Msg("bucket ranked")
	return nil
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
