package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/feedhook/feedhook/app/cfg"
	"github.com/feedhook/feedhook/app/database"
	"github.com/feedhook/feedhook/app/feed"
	"github.com/feedhook/feedhook/app/fetch"
	"github.com/feedhook/feedhook/app/pool"
)

type noopDispatcher struct{}

func (noopDispatcher) Trigger(context.Context, *database.Feed, []*database.Article) {}
func (noopDispatcher) ReverseTrigger(context.Context, *database.Feed, error)        {}

func newTestScheduler(t *testing.T) (*Scheduler, database.FeedRepository, int64) {
	t.Helper()
	cfg.SetForTest(&cfg.Cfg{Debug: true})

	db, err := database.OpenInMemory()
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, _, err := database.RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	userRepo := database.NewUserRepository(db)
	user := &database.User{Username: "tester"}
	if err := userRepo.UpsertUser(user); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}

	feedRepo := database.NewFeedRepository(db)
	articleRepo := database.NewArticleRepository(db)
	poller := feed.NewPoller(feedRepo, articleRepo, fetch.NewClient("test"), feed.NewParser(), noopDispatcher{})

	s := NewScheduler(feedRepo, poller, pool.NewSet(1, 1, 1, 1, 1, 1))
	t.Cleanup(s.Stop)
	return s, feedRepo, user.ID
}

func testFeed(t *testing.T, repo database.FeedRepository, userID int64, url, cron string, enabled bool) *database.Feed {
	t.Helper()
	f := &database.Feed{UserID: userID, URL: url, Title: "t", Cron: cron, IsEnabled: enabled}
	if err := repo.UpsertFeed(f); err != nil {
		t.Fatalf("Failed to create feed: %v", err)
	}
	return f
}

func TestResolveSchedule(t *testing.T) {
	tests := []struct {
		name    string
		label   string
		wantErr bool
	}{
		{"known label", "EVERY_10_MINUTES", false},
		{"hourly label", "EVERY_HOUR", false},
		{"raw cron expression", "*/7 * * * *", false},
		{"garbage", "WHENEVER", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schedule, err := resolveSchedule(tt.label)
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			now := time.Now()
			if !schedule.Next(now).After(now) {
				t.Error("Expected a future next tick")
			}
		})
	}
}

func TestEnableIsIdempotent(t *testing.T) {
	s, repo, userID := newTestScheduler(t)
	f := testFeed(t, repo, userID, "https://example.com/a.xml", "EVERY_HOUR", true)

	s.Enable(f)
	s.Enable(f)

	if got := s.JobCount(); got != 1 {
		t.Errorf("Expected one job after double enable, got %d", got)
	}
	if !s.IsScheduled(f.ID) {
		t.Error("Expected the feed to be scheduled")
	}
}

func TestEnableRefusesDisabledAndUnresolvable(t *testing.T) {
	s, repo, userID := newTestScheduler(t)

	disabled := testFeed(t, repo, userID, "https://example.com/off.xml", "EVERY_HOUR", false)
	s.Enable(disabled)
	if s.IsScheduled(disabled.ID) {
		t.Error("Expected disabled feed to stay unscheduled")
	}

	badCron := testFeed(t, repo, userID, "https://example.com/bad.xml", "NOT_A_SCHEDULE", true)
	s.Enable(badCron)
	if s.IsScheduled(badCron.ID) {
		t.Error("Expected unresolvable schedule to stay unscheduled")
	}
}

func TestDisableRemovesJob(t *testing.T) {
	s, repo, userID := newTestScheduler(t)
	f := testFeed(t, repo, userID, "https://example.com/a.xml", "EVERY_HOUR", true)

	s.Enable(f)
	s.Disable(f)
	if s.IsScheduled(f.ID) {
		t.Error("Expected the job to be removed")
	}

	// Disabling again is a quiet no-op.
	s.Disable(f)
	if got := s.JobCount(); got != 0 {
		t.Errorf("Expected no jobs, got %d", got)
	}
}

func TestStartSchedulesEnabledFeeds(t *testing.T) {
	s, repo, userID := newTestScheduler(t)
	testFeed(t, repo, userID, "https://example.com/a.xml", "EVERY_HOUR", true)
	testFeed(t, repo, userID, "https://example.com/b.xml", "EVERY_10_MINUTES", true)
	testFeed(t, repo, userID, "https://example.com/c.xml", "EVERY_HOUR", false)

	if err := s.Start(); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if got := s.JobCount(); got != 2 {
		t.Errorf("Expected two jobs for two enabled feeds, got %d", got)
	}
}
