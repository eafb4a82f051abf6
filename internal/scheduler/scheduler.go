package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// CycleFunc runs one collection cycle for the given bucket instant.
type CycleFunc func(ctx context.Context, bucket time.Time) error

// Options tune the collection cadence.
type Options struct {
	Interval time.Duration
	// AlignToBucket snaps execution to wall-clock interval boundaries
	// (every :00 and :30 for a 30m interval) so history rows from
	// different deployments land on comparable instants.
	AlignToBucket bool
	StartupDelay  time.Duration
}

// Scheduler fires collection cycles at a fixed, optionally aligned cadence.
// A cycle that overruns its interval delays the next one; buckets are never
// executed concurrently and missed buckets are skipped, not replayed.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Run blocks, invoking the cycle at each interval until ctx is cancelled.
// Cycle errors are logged and swallowed; one bad cycle must not stop the
// collection loop.
func (s *Scheduler) Run(ctx context.Context, cycle CycleFunc) error {
	if s.opts.StartupDelay > 0 {
		if err := sleep(ctx, s.opts.StartupDelay); err != nil {
			return err
		}
	}

	next := s.nextBucket(time.Now().UTC())
	for {
		if time.Until(next) < 0 {
			// Overran past the next boundary; skip to the one after.
			next = s.nextBucket(time.Now().UTC())
		}

		s.logger.Debug().Time("next_bucket", next).Msg("waiting for next bucket")
		if err := sleep(ctx, time.Until(next)); err != nil {
			return err
		}

		bucket := next
		if s.opts.AlignToBucket {
			bucket = bucket.Truncate(s.opts.Interval)
		}
		s.logger.Info().Time("bucket", bucket).Msg("running collection cycle")

		if err := cycle(ctx, bucket); err != nil {
			s.logger.Error().Err(err).Time("bucket", bucket).Msg("collection cycle failed")
		}

		next = next.Add(s.opts.Interval)
	}
}

func (s *Scheduler) nextBucket(now time.Time) time.Time {
	if !s.opts.AlignToBucket {
		return now.Add(s.opts.Interval)
	}
	bucket := now.Truncate(s.opts.Interval)
	for !bucket.After(now) {
		bucket = bucket.Add(s.opts.Interval)
	}
	return bucket
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
