package hook

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/feedhook/feedhook/app/cfg"
	"github.com/feedhook/feedhook/app/database"
	"github.com/feedhook/feedhook/app/feed"
	"github.com/feedhook/feedhook/app/pool"
)

// Dispatcher routes a feed's fresh articles (or its poll failure) to the
// feed's hooks. Each hook runs in its own goroutine behind the hook pool;
// one hook's failure never reaches its siblings.
type Dispatcher struct {
	feedRepo database.FeedRepository
	userRepo database.UserRepository
	logRepo  database.WebhookLogRepository
	pools    *pool.Set
	regexes  *regexCache

	notification *NotificationSink
	webhook      *WebhookSink
	download     *DownloadSink
	bitTorrent   *BitTorrentSink
	aiSummary    *AISink
	regular      *RegularSink
}

var _ feed.Dispatcher = (*Dispatcher)(nil)

func NewDispatcher(feedRepo database.FeedRepository, userRepo database.UserRepository,
	logRepo database.WebhookLogRepository, pools *pool.Set,
	notification *NotificationSink, webhook *WebhookSink, download *DownloadSink,
	bitTorrent *BitTorrentSink, aiSummary *AISink, regular *RegularSink) *Dispatcher {
	return &Dispatcher{
		feedRepo:     feedRepo,
		userRepo:     userRepo,
		logRepo:      logRepo,
		pools:        pools,
		regexes:      newRegexCache(),
		notification: notification,
		webhook:      webhook,
		download:     download,
		bitTorrent:   bitTorrent,
		aiSummary:    aiSummary,
		regular:      regular,
	}
}

// Trigger fans newly inserted articles out to the feed's forward hooks.
// Hooks are reloaded fresh so edits made since the feed job started apply.
func (d *Dispatcher) Trigger(ctx context.Context, f *database.Feed, articles []*database.Article) {
	hooks, err := d.feedRepo.GetFeedHooks(f.ID)
	if err != nil {
		slog.Error("Failed to load feed hooks", "feed_id", f.ID, "error", err)
		return
	}

	// Rewrite hooks mutate article content, so they run first and alone;
	// every later hook then sees the same content the store does. The
	// remaining hooks run concurrently, each on its own copy of the
	// articles so none observes a sibling's in-progress mutations.
	for i := range hooks {
		h := &hooks[i]
		if h.IsReversed || h.Type != database.HookTypeRegular {
			continue
		}
		if err := d.runHook(ctx, f, h, articles); err != nil {
			slog.Error("Hook execution failed",
				"hook_id", h.ID, "hook_type", h.Type, "feed_id", f.ID, "error", err)
		}
	}

	var g errgroup.Group
	for i := range hooks {
		h := &hooks[i]
		if h.IsReversed || h.Type == database.HookTypeRegular {
			continue
		}
		g.Go(func() error {
			if err := d.runHook(ctx, f, h, cloneArticles(articles)); err != nil {
				slog.Error("Hook execution failed",
					"hook_id", h.ID, "hook_type", h.Type, "feed_id", f.ID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// cloneArticles gives a hook private article structs to read and annotate.
func cloneArticles(articles []*database.Article) []*database.Article {
	out := make([]*database.Article, len(articles))
	for i, a := range articles {
		copied := *a
		copied.Categories = append([]string(nil), a.Categories...)
		out[i] = &copied
	}
	return out
}

func (d *Dispatcher) runHook(ctx context.Context, f *database.Feed, h *database.Hook, articles []*database.Article) error {
	filter, err := decodeFilter(h.Filter)
	if err != nil {
		return err
	}
	matched, err := filter.apply(d.regexes, articles)
	if err != nil {
		return err
	}
	if len(matched) == 0 {
		slog.Debug("No articles matched hook filter", "hook_id", h.ID, "feed_id", f.ID)
		return nil
	}

	return d.pools.Hook.Do(ctx, func(ctx context.Context) error {
		slog.Debug("Running hook", "hook_id", h.ID, "hook_type", h.Type, "articles", len(matched))
		switch h.Type {
		case database.HookTypeNotification:
			return d.notification.Handle(ctx, f, h, matched)
		case database.HookTypeWebhook:
			return d.webhook.Handle(ctx, f, h, matched)
		case database.HookTypeDownload:
			return d.download.Handle(ctx, f, h, matched)
		case database.HookTypeBitTorrent:
			return d.bitTorrent.Handle(ctx, f, h, matched)
		case database.HookTypeAISummary:
			return d.aiSummary.Handle(ctx, f, h, matched)
		case database.HookTypeRegular:
			return d.regular.Handle(ctx, f, h, matched)
		default:
			return &UnsupportedTypeError{Kind: "hook", Value: h.Type}
		}
	})
}

// ReverseTrigger notifies reversed hooks about a poll failure. A trailing
// one hour webhook-log count gates dispatch so a permanently broken feed
// cannot flood its sinks.
func (d *Dispatcher) ReverseTrigger(ctx context.Context, f *database.Feed, cause error) {
	limit := cfg.Get().ReverseTriggerLimit
	count, err := d.logRepo.CountForFeedSince(f.ID, time.Now().Add(-time.Hour))
	if err != nil {
		slog.Error("Failed to count recent webhook logs", "feed_id", f.ID, "error", err)
		return
	}
	if count >= limit {
		slog.Warn("Reverse trigger rate limit reached, skipping",
			"feed_id", f.ID, "count", count, "limit", limit)
		return
	}

	hooks, err := d.feedRepo.GetFeedHooks(f.ID)
	if err != nil {
		slog.Error("Failed to load feed hooks", "feed_id", f.ID, "error", err)
		return
	}

	includeDetail := d.errorDetailAllowed(f.UserID)

	var g errgroup.Group
	for i := range hooks {
		h := &hooks[i]
		if !h.IsReversed {
			continue
		}
		// Only delivery hooks make sense on failure.
		if h.Type != database.HookTypeNotification && h.Type != database.HookTypeWebhook {
			continue
		}
		g.Go(func() error {
			err := d.pools.Hook.Do(ctx, func(ctx context.Context) error {
				switch h.Type {
				case database.HookTypeNotification:
					return d.notification.HandleReverse(ctx, f, h, cause, includeDetail)
				case database.HookTypeWebhook:
					return d.webhook.HandleReverse(ctx, f, h, cause, includeDetail)
				}
				return nil
			})
			if err != nil {
				slog.Error("Reverse hook execution failed",
					"hook_id", h.ID, "hook_type", h.Type, "feed_id", f.ID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// errorDetailAllowed reports whether reverse-trigger payloads may carry the
// raw error chain: admins always, everyone in debug builds.
func (d *Dispatcher) errorDetailAllowed(userID int64) bool {
	if cfg.Get().Debug {
		return true
	}
	user, err := d.userRepo.GetUser(userID)
	if err != nil {
		slog.Warn("Failed to load user for error-detail check", "user_id", userID, "error", err)
		return false
	}
	return user.IsAdmin()
}
