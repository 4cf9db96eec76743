// Package retention periodically deletes old submissions and expired
// cache entries.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/abhisek/psytest/internal/clock"
	"github.com/abhisek/psytest/internal/kv"
)

// Deleter removes rows created before cutoff.
type Deleter interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Report summarises one sweep.
type Report struct {
	Cutoff          time.Time
	Sessions        int64
	Feedback        int64
	ExpiredKVPurged int
}

// Sweeper deletes sessions and feedback older than MaxAge and purges
// expired kv entries.
type Sweeper struct {
	Sessions Deleter
	Feedback Deleter
	KV       kv.Purger
	MaxAge   time.Duration
	Clock    clock.Clock
	Logger   *slog.Logger

	scheduler *gocron.Scheduler
}

// RunOnce performs a single sweep. Each step runs even if an earlier one
// failed; the first error is returned.
func (s *Sweeper) RunOnce(ctx context.Context) (Report, error) {
	c := s.Clock
	if c == nil {
		c = clock.System{}
	}
	rep := Report{Cutoff: c.Now().UTC().Add(-s.MaxAge)}

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if s.Sessions != nil {
		n, err := s.Sessions.DeleteOlderThan(ctx, rep.Cutoff)
		rep.Sessions = n
		if err != nil {
			keep(fmt.Errorf("sweep sessions: %w", err))
		}
	}
	if s.Feedback != nil {
		n, err := s.Feedback.DeleteOlderThan(ctx, rep.Cutoff)
		rep.Feedback = n
		if err != nil {
			keep(fmt.Errorf("sweep feedback: %w", err))
		}
	}
	if s.KV != nil {
		n, err := s.KV.PurgeExpired(ctx)
		rep.ExpiredKVPurged = n
		if err != nil {
			keep(fmt.Errorf("purge kv: %w", err))
		}
	}
	return rep, firstErr
}

// Start schedules RunOnce every interval, in UTC, without blocking. The
// first run happens immediately.
func (s *Sweeper) Start(interval time.Duration) error {
	log := s.logger()
	s.scheduler = gocron.NewScheduler(time.UTC)
	_, err := s.scheduler.Every(interval).Do(func() {
		rep, err := s.RunOnce(context.Background())
		if err != nil {
			log.Error("retention sweep failed", "error", err)
		}
		log.Info("retention sweep",
			"cutoff", rep.Cutoff,
			"sessions", rep.Sessions,
			"feedback", rep.Feedback,
			"kv_purged", rep.ExpiredKVPurged,
		)
	})
	if err != nil {
		return fmt.Errorf("schedule retention sweep: %w", err)
	}
	s.scheduler.StartAsync()
	return nil
}

// Stop terminates the schedule.
func (s *Sweeper) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

func (s *Sweeper) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default().With("component", "retention")
	}
	return s.Logger.With("component", "retention")
}
