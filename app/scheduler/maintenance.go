package scheduler

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/feedhook/feedhook/app/cfg"
	"github.com/feedhook/feedhook/app/database"
)

// databaseFilePattern guards the retention sweep: files looking like a
// database are never deleted from the download directory.
var databaseFilePattern = regexp.MustCompile(`\.(sqlite|db)$`)

// Maintenance runs the daily aggregation and the retention sweeps.
type Maintenance struct {
	articleRepo  database.ArticleRepository
	resourceRepo database.ResourceRepository
	logRepo      database.WebhookLogRepository
	dailyRepo    database.DailyCountRepository

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewMaintenance(articleRepo database.ArticleRepository, resourceRepo database.ResourceRepository,
	logRepo database.WebhookLogRepository, dailyRepo database.DailyCountRepository) *Maintenance {
	ctx, cancel := context.WithCancel(context.Background())
	return &Maintenance{
		articleRepo:  articleRepo,
		resourceRepo: resourceRepo,
		logRepo:      logRepo,
		dailyRepo:    dailyRepo,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start launches the midnight loop. Dates are evaluated in the configured
// timezone (applied to time.Local at startup).
func (m *Maintenance) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			next := nextMidnight(time.Now())
			timer := time.NewTimer(time.Until(next))
			select {
			case <-m.ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			m.RunDaily(time.Now())
		}
	}()
	slog.Info("Maintenance scheduled", "next", nextMidnight(time.Now()))
}

func (m *Maintenance) Stop() {
	m.cancel()
	m.wg.Wait()
}

// RunDaily aggregates the prior calendar day and runs the retention sweeps.
func (m *Maintenance) RunDaily(now time.Time) {
	if _, err := m.AggregateDay(now.AddDate(0, 0, -1)); err != nil {
		slog.Error("Daily aggregation failed", "error", err)
	}
	m.SweepRetention(now)
}

// AggregateDay counts the day's created rows and upserts the daily-count
// row, writing only when the stored values differ. Returns whether a write
// happened.
func (m *Maintenance) AggregateDay(day time.Time) (bool, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)
	date := start.Format("2006-01-02")

	articles, err := m.articleRepo.CountCreatedBetween(start.UTC(), end.UTC())
	if err != nil {
		return false, err
	}
	resources, err := m.resourceRepo.CountCreatedBetween(start.UTC(), end.UTC())
	if err != nil {
		return false, err
	}
	logs, err := m.logRepo.CountCreatedBetween(start.UTC(), end.UTC())
	if err != nil {
		return false, err
	}

	existing, err := m.dailyRepo.GetByDate(date)
	if err != nil {
		return false, err
	}
	if existing == nil {
		count := &database.DailyCount{
			Date:            date,
			ArticleCount:    articles,
			ResourceCount:   resources,
			WebhookLogCount: logs,
		}
		if err := m.dailyRepo.InsertDailyCount(count); err != nil {
			return false, err
		}
		slog.Info("Daily counts recorded", "date", date,
			"articles", articles, "resources", resources, "logs", logs)
		return true, nil
	}

	if existing.ArticleCount == articles && existing.ResourceCount == resources &&
		existing.WebhookLogCount == logs {
		slog.Debug("Daily counts unchanged", "date", date)
		return false, nil
	}

	existing.ArticleCount = articles
	existing.ResourceCount = resources
	existing.WebhookLogCount = logs
	if err := m.dailyRepo.UpdateDailyCount(existing); err != nil {
		return false, err
	}
	slog.Info("Daily counts corrected", "date", date)
	return true, nil
}

// SweepRetention deletes rows past their retention windows and removes
// orphaned files from the download directory.
func (m *Maintenance) SweepRetention(now time.Time) {
	c := cfg.Get()

	if c.ArticleSaveDays > 0 {
		cutoff := now.AddDate(0, 0, -c.ArticleSaveDays).UTC()
		if deleted, err := m.articleRepo.DeleteCreatedBefore(cutoff); err != nil {
			slog.Error("Article sweep failed", "error", err)
		} else if deleted > 0 {
			slog.Info("Swept old articles", "deleted", deleted)
		}
	}
	if c.ResourceSaveDays > 0 {
		cutoff := now.AddDate(0, 0, -c.ResourceSaveDays).UTC()
		if deleted, err := m.resourceRepo.DeleteCreatedBefore(cutoff); err != nil {
			slog.Error("Resource sweep failed", "error", err)
		} else if deleted > 0 {
			slog.Info("Swept old resources", "deleted", deleted)
		}
	}
	if c.LogSaveDays > 0 {
		cutoff := now.AddDate(0, 0, -c.LogSaveDays).UTC()
		if deleted, err := m.logRepo.DeleteCreatedBefore(cutoff); err != nil {
			slog.Error("Webhook log sweep failed", "error", err)
		} else if deleted > 0 {
			slog.Info("Swept old webhook logs", "deleted", deleted)
		}
	}

	m.sweepOrphanedFiles(c.DownloadDir)
}

// sweepOrphanedFiles removes download-dir files no success resource
// references. Database-looking files are left alone no matter what.
func (m *Maintenance) sweepOrphanedFiles(dir string) {
	if dir == "" {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Error("Failed to read download directory", "dir", dir, "error", err)
		}
		return
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if databaseFilePattern.MatchString(name) {
			continue
		}
		referenced, err := m.resourceRepo.HasSuccessByName(name)
		if err != nil {
			slog.Error("Failed to check resource reference", "name", name, "error", err)
			continue
		}
		if referenced {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			slog.Warn("Failed to remove orphaned file", "name", name, "error", err)
			continue
		}
		slog.Info("Removed orphaned file", "name", name)
	}
}

func nextMidnight(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
}
