package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feedhook/feedhook/app/cfg"
	"github.com/feedhook/feedhook/app/database"
)

// Scheduler is the slice of the feed scheduler the status surface reports on.
type Scheduler interface {
	JobCount() int
	IsScheduled(feedID int64) bool
}

type Handler struct {
	feedRepo     database.FeedRepository
	articleRepo  database.ArticleRepository
	resourceRepo database.ResourceRepository
	logRepo      database.WebhookLogRepository
	dailyRepo    database.DailyCountRepository
	scheduler    Scheduler
}

func NewHandler(feedRepo database.FeedRepository, articleRepo database.ArticleRepository,
	resourceRepo database.ResourceRepository, logRepo database.WebhookLogRepository,
	dailyRepo database.DailyCountRepository, scheduler Scheduler) *Handler {
	return &Handler{
		feedRepo:     feedRepo,
		articleRepo:  articleRepo,
		resourceRepo: resourceRepo,
		logRepo:      logRepo,
		dailyRepo:    dailyRepo,
		scheduler:    scheduler,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"status":    "ok",
		"version":   cfg.Get().Version,
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if feedCount, err := h.feedRepo.GetFeedCount(); err == nil {
		health["feeds"] = feedCount
	}

	health["scheduled_jobs"] = h.scheduler.JobCount()

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	stats := map[string]interface{}{
		"scheduled_jobs": h.scheduler.JobCount(),
	}

	if count, err := h.feedRepo.GetFeedCount(); err == nil {
		stats["feeds"] = count
	}
	if count, err := h.articleRepo.GetArticleCount(); err == nil {
		stats["articles"] = count
	}
	if count, err := h.resourceRepo.GetResourceCount(); err == nil {
		stats["resources"] = count
	}
	if count, err := h.logRepo.GetLogCount(); err == nil {
		stats["webhook_logs"] = count
	}

	today := time.Now().In(time.Local).Format("2006-01-02")
	if daily, err := h.dailyRepo.GetByDate(today); err == nil && daily != nil {
		stats["today"] = map[string]interface{}{
			"date":         daily.Date,
			"articles":     daily.ArticleCount,
			"resources":    daily.ResourceCount,
			"webhook_logs": daily.WebhookLogCount,
		}
	}

	c.JSON(http.StatusOK, stats)
}

func (h *Handler) ListFeeds(c *gin.Context) {
	feeds, err := h.feedRepo.ListFeeds()
	if err != nil {
		slog.Error("Database error", "operation", "list_feeds", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	list := make([]map[string]interface{}, 0, len(feeds))
	for _, f := range feeds {
		list = append(list, map[string]interface{}{
			"id":         f.ID,
			"title":      f.Title,
			"url":        f.URL,
			"cron":       f.Cron,
			"enabled":    f.IsEnabled,
			"scheduled":  h.scheduler.IsScheduled(f.ID),
			"updated_at": f.UpdatedAt.Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"feeds": list,
		"total": len(list),
	})
}
