package hook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/feedhook/feedhook/app/database"
	"github.com/feedhook/feedhook/app/fetch"
	"github.com/feedhook/feedhook/app/pool"
	"github.com/feedhook/feedhook/app/push"
	"github.com/feedhook/feedhook/app/retry"
)

const (
	summaryWaitRetries  = 10
	summaryWaitInitial  = 10 * time.Second
	summaryWaitInterval = time.Hour
)

var errSummariesPending = errors.New("summaries not ready")

// NotificationSink delivers matched articles as push notifications.
type NotificationSink struct {
	sender      push.Sender
	articleRepo database.ArticleRepository
	logRepo     database.WebhookLogRepository
	pools       *pool.Set
}

func NewNotificationSink(sender push.Sender, articleRepo database.ArticleRepository,
	logRepo database.WebhookLogRepository, pools *pool.Set) *NotificationSink {
	return &NotificationSink{
		sender:      sender,
		articleRepo: articleRepo,
		logRepo:     logRepo,
		pools:       pools,
	}
}

func (s *NotificationSink) Handle(ctx context.Context, f *database.Feed, h *database.Hook, articles []*database.Article) error {
	config, err := decodeNotificationConfig(h.Config)
	if err != nil {
		return err
	}

	if config.UseAISummary {
		articles = s.waitForSummaries(ctx, articles)
	}

	for _, msg := range buildMessages(f, articles, config) {
		s.deliver(ctx, f, h, config, msg)
	}
	return nil
}

// HandleReverse sends a single failure notification for a broken feed.
func (s *NotificationSink) HandleReverse(ctx context.Context, f *database.Feed, h *database.Hook, cause error, includeDetail bool) error {
	config, err := decodeNotificationConfig(h.Config)
	if err != nil {
		return err
	}

	body := fmt.Sprintf("Feed %s could not be polled.", f.URL)
	if includeDetail {
		body = fmt.Sprintf("Feed %s could not be polled: %v", f.URL, cause)
	}
	msg := message{
		Title: truncateRunes("Feed failed: "+f.Title, titleMaxRunes),
		Body:  body,
	}
	s.deliver(ctx, f, h, config, msg)
	return nil
}

// deliver sends one chunk inside the notification pool and records the
// outcome. Send failures end up in the log, not in the returned error.
func (s *NotificationSink) deliver(ctx context.Context, f *database.Feed, h *database.Hook,
	config *NotificationConfig, msg message) {

	var resp *fetch.Response
	err := s.pools.Notification.Do(ctx, func(ctx context.Context) error {
		var sendErr error
		resp, sendErr = s.sender.Send(ctx, msg.Title, msg.Body, config.Push, h.ProxyURL)
		return sendErr
	})
	if err != nil {
		slog.Error("Notification send failed", "hook_id", h.ID, "feed_id", f.ID, "error", err)
	}
	recordOutcome(s.logRepo, f, h, database.HookTypeNotification, resp, err)
}

// waitForSummaries polls storage until every article carries an AI summary,
// backing off from 10s toward an hour. On exhaustion the freshest rows are
// used as-is; a missing summary delays a notification, it never blocks it
// forever.
func (s *NotificationSink) waitForSummaries(ctx context.Context, articles []*database.Article) []*database.Article {
	ids := make([]int64, 0, len(articles))
	for _, a := range articles {
		ids = append(ids, a.ID)
	}

	latest := articles
	err := retry.Do(ctx, func(ctx context.Context) error {
		refreshed, err := s.articleRepo.GetArticlesByIDs(ids)
		if err != nil {
			return err
		}
		pointers := make([]*database.Article, 0, len(refreshed))
		ready := true
		for i := range refreshed {
			if refreshed[i].AISummary == "" {
				ready = false
			}
			pointers = append(pointers, &refreshed[i])
		}
		latest = pointers
		if !ready {
			return errSummariesPending
		}
		return nil
	}, retry.Options{
		MaxRetries:      summaryWaitRetries,
		InitialInterval: summaryWaitInitial,
		MaxInterval:     summaryWaitInterval,
	})
	if err != nil {
		slog.Warn("Gave up waiting for AI summaries", "error", err)
	}
	return latest
}
