// Package scheduler owns the live per-feed polling jobs and the daily
// maintenance jobs. The job registry maps feed id to a cancellable handle;
// enable and disable are idempotent and log instead of failing.
package scheduler

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/feedhook/feedhook/app/cfg"
	"github.com/feedhook/feedhook/app/database"
	"github.com/feedhook/feedhook/app/feed"
	"github.com/feedhook/feedhook/app/pool"
)

type Scheduler struct {
	feedRepo database.FeedRepository
	poller   *feed.Poller
	pools    *pool.Set

	jitterMax time.Duration
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	mu   sync.Mutex
	jobs map[int64]context.CancelFunc
}

func NewScheduler(feedRepo database.FeedRepository, poller *feed.Poller, pools *pool.Set) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	// Jitter spreads poll starts so feeds sharing a schedule do not hit
	// the network in lockstep. Short in debug to keep iteration fast.
	jitterMax := time.Minute
	if cfg.Get().Debug {
		jitterMax = 5 * time.Second
	}

	return &Scheduler{
		feedRepo:  feedRepo,
		poller:    poller,
		pools:     pools,
		jitterMax: jitterMax,
		ctx:       ctx,
		cancel:    cancel,
		jobs:      make(map[int64]context.CancelFunc),
	}
}

// Context returns the scheduler's lifetime context, the scope detached
// background work should bind to.
func (s *Scheduler) Context() context.Context {
	return s.ctx
}

// Start schedules every enabled feed from the store.
func (s *Scheduler) Start() error {
	feeds, err := s.feedRepo.GetEnabledFeeds()
	if err != nil {
		return err
	}
	for i := range feeds {
		s.Enable(&feeds[i])
	}
	slog.Info("Scheduler started", "jobs", s.JobCount())
	return nil
}

// Stop cancels all jobs and waits for in-flight ticks to settle.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	slog.Info("Scheduler stopped")
}

// Enable starts a polling job for the feed. It warns and no-ops when the
// feed is disabled, already scheduled, or carries an unresolvable schedule.
func (s *Scheduler) Enable(f *database.Feed) {
	if !f.IsEnabled {
		slog.Warn("Refusing to schedule a disabled feed", "feed_id", f.ID)
		return
	}

	schedule, err := resolveSchedule(f.Cron)
	if err != nil {
		slog.Warn("Refusing to schedule feed", "feed_id", f.ID, "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[f.ID]; exists {
		slog.Warn("Feed is already scheduled", "feed_id", f.ID)
		return
	}

	jobCtx, jobCancel := context.WithCancel(s.ctx)
	s.jobs[f.ID] = jobCancel

	s.wg.Add(1)
	go s.runJob(jobCtx, f.ID, schedule)
	slog.Info("Feed scheduled", "feed_id", f.ID, "url", f.URL, "cron", f.Cron)
}

// Disable cancels the feed's job if one is registered.
func (s *Scheduler) Disable(f *database.Feed) {
	s.mu.Lock()
	defer s.mu.Unlock()
	jobCancel, exists := s.jobs[f.ID]
	if !exists {
		slog.Debug("Feed is not scheduled", "feed_id", f.ID)
		return
	}
	jobCancel()
	delete(s.jobs, f.ID)
	slog.Info("Feed unscheduled", "feed_id", f.ID)
}

// JobCount reports the number of live jobs.
func (s *Scheduler) JobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// IsScheduled reports whether a job exists for the feed id.
func (s *Scheduler) IsScheduled(feedID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[feedID]
	return ok
}

func (s *Scheduler) runJob(ctx context.Context, feedID int64, schedule cron.Schedule) {
	defer s.wg.Done()

	for {
		next := schedule.Next(time.Now())
		if !s.sleepUntil(ctx, next) {
			return
		}
		if s.jitterMax > 0 {
			if !s.sleepFor(ctx, rand.N(s.jitterMax)) {
				return
			}
		}
		s.tick(ctx, feedID)
	}
}

// tick reloads the feed and polls it inside a feed-pool slot. A stale or
// disabled row ends the job; the registry entry is cleaned up as well.
func (s *Scheduler) tick(ctx context.Context, feedID int64) {
	f, err := s.feedRepo.GetFeed(feedID)
	if err != nil {
		slog.Error("Failed to reload feed for tick", "feed_id", feedID, "error", err)
		return
	}
	if f == nil || !f.IsEnabled {
		slog.Info("Feed gone or disabled, stopping its job", "feed_id", feedID)
		s.Disable(&database.Feed{ID: feedID})
		return
	}

	err = s.pools.Feed.Do(ctx, func(ctx context.Context) error {
		s.poller.Poll(ctx, f, nil)
		return nil
	})
	if err != nil {
		slog.Debug("Skipped feed tick", "feed_id", feedID, "error", err)
	}
}

func (s *Scheduler) sleepUntil(ctx context.Context, t time.Time) bool {
	return s.sleepFor(ctx, time.Until(t))
}

func (s *Scheduler) sleepFor(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
