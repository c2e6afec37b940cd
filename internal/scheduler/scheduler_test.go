package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 14, 12, 7, 30, 0, time.UTC)

func TestNextTickAligned(t *testing.T) {
	s := New(Options{Interval: 15 * time.Minute, AlignToStart: true}, zerolog.Nop())

	assert.Equal(t, time.Date(2025, 3, 14, 12, 15, 0, 0, time.UTC), s.nextTick(fixedNow))
	onBoundary := time.Date(2025, 3, 14, 12, 15, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 3, 14, 12, 30, 0, 0, time.UTC), s.nextTick(onBoundary))
	assert.Equal(t, time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC), s.bucketStart(fixedNow))
}

func TestNextTickUnaligned(t *testing.T) {
	s := New(Options{Interval: 15 * time.Minute}, zerolog.Nop())

	assert.Equal(t, fixedNow.Add(15*time.Minute), s.nextTick(fixedNow))
	assert.Equal(t, fixedNow, s.bucketStart(fixedNow))
}

func TestRunOnStartFiresCurrentBucket(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := New(Options{
		Interval:     time.Hour,
		AlignToStart: true,
		RunOnStart:   true,
		Now:          func() time.Time { return fixedNow },
	}, zerolog.Nop())

	var buckets []time.Time
	err := s.Run(ctx, func(_ context.Context, bucket time.Time) error {
		buckets = append(buckets, bucket)
		cancel()
		return errors.New("tick errors are logged, not returned")
	})

	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, buckets, 1)
	assert.Equal(t, time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC), buckets[0])
}

func TestRunStopsDuringStartupDelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New(Options{Interval: time.Minute, StartupDelay: time.Hour, RunOnStart: true}, zerolog.Nop())
	err := s.Run(ctx, func(context.Context, time.Time) error {
		t.Fatal("tick must not fire before the startup delay elapses")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewRejectsNonPositiveInterval(t *testing.T) {
	assert.Panics(t, func() { New(Options{}, zerolog.Nop()) })
}
