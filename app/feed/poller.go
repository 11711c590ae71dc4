package feed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/feedhook/feedhook/app/database"
	"github.com/feedhook/feedhook/app/fetch"
	"github.com/feedhook/feedhook/app/retry"
)

const (
	fetchTimeout         = 60 * time.Second
	fetchInitialInterval = 10 * time.Second
	// Bounded by the smallest polling interval so retries of one tick
	// cannot outlive the next.
	fetchMaxInterval = 10 * time.Minute
)

// Dispatcher is the hook fan-out the poller feeds into. Implemented by the
// hook package; declared here to keep the dependency one-way.
type Dispatcher interface {
	Trigger(ctx context.Context, feed *database.Feed, articles []*database.Article)
	ReverseTrigger(ctx context.Context, feed *database.Feed, cause error)
}

// Poller fetches one feed, persists unseen items and hands them to the
// dispatcher.
type Poller struct {
	feedRepo    database.FeedRepository
	articleRepo database.ArticleRepository
	client      *fetch.Client
	parser      *Parser
	dispatcher  Dispatcher
}

func NewPoller(feedRepo database.FeedRepository, articleRepo database.ArticleRepository,
	client *fetch.Client, parser *Parser, dispatcher Dispatcher) *Poller {
	return &Poller{
		feedRepo:    feedRepo,
		articleRepo: articleRepo,
		client:      client,
		parser:      parser,
		dispatcher:  dispatcher,
	}
}

// SetDispatcher installs the hook fan-out after construction. The poller,
// scheduler and dispatcher reference each other at startup, so the
// dispatcher is bound last. Must be called before the first Poll.
func (p *Poller) SetDispatcher(d Dispatcher) {
	p.dispatcher = d
}

// Poll runs one polling cycle for the feed. A pre-parsed document may be
// supplied to skip the fetch (manual trigger path). Failures never
// propagate: they are logged and redirected to reverse-trigger hooks. The
// returned count is the number of newly inserted articles.
func (p *Poller) Poll(ctx context.Context, f *database.Feed, doc *Document) int {
	runID := uuid.NewString()
	log := slog.With("feed_id", f.ID, "url", f.URL, "run_id", runID)

	newCount, err := p.poll(ctx, f, doc, log)
	if err != nil {
		log.Error("Feed poll failed", "error", err)
		p.dispatcher.ReverseTrigger(ctx, f, err)
		return 0
	}

	log.Info("Feed poll completed", "new", newCount)
	return newCount
}

func (p *Poller) poll(ctx context.Context, f *database.Feed, doc *Document, log *slog.Logger) (int, error) {
	if doc == nil {
		fetched, err := p.fetchDocument(ctx, f)
		if err != nil {
			return 0, err
		}
		doc = fetched
	}

	// Backfill feed metadata the admin surface left empty.
	if (f.Description == "" && doc.Description != "") || (f.ImageURL == "" && doc.ImageURL != "") {
		if f.Description == "" {
			f.Description = doc.Description
		}
		if f.ImageURL == "" {
			f.ImageURL = doc.ImageURL
		}
		if err := p.feedRepo.UpdateFeedMetadata(f.ID, f.Description, f.ImageURL); err != nil {
			return 0, err
		}
	}

	if len(doc.Items) == 0 {
		return 0, nil
	}

	guids := make([]string, 0, len(doc.Items))
	for _, item := range doc.Items {
		guids = append(guids, item.GUID)
	}
	existing, err := p.articleRepo.GetExistingGUIDs(f.UserID, guids)
	if err != nil {
		return 0, err
	}

	var articles []*database.Article
	for _, item := range doc.Items {
		if _, seen := existing[item.GUID]; seen {
			continue
		}
		articles = append(articles, ItemToArticle(item, doc, f))
	}

	if len(articles) == 0 {
		return 0, nil
	}

	if err := p.articleRepo.InsertArticles(articles); err != nil {
		return 0, err
	}

	log.Debug("Inserted new articles", "count", len(articles))
	p.dispatcher.Trigger(ctx, f, articles)

	return len(articles), nil
}

func (p *Poller) fetchDocument(ctx context.Context, f *database.Feed) (*Document, error) {
	proxyURL := f.ProxyURL
	if f.ProxyID != nil && proxyURL == "" {
		resolved, err := p.feedRepo.GetProxyURL(*f.ProxyID)
		if err != nil {
			return nil, fmt.Errorf("feed %d proxy is unresolvable: %w", f.ID, err)
		}
		proxyURL = resolved
	}

	var data []byte
	err := retry.Do(ctx, func(ctx context.Context) error {
		resp, err := p.client.Do(ctx, f.URL, fetch.Options{
			ProxyURL: proxyURL,
			Timeout:  fetchTimeout,
		})
		if err != nil {
			return err
		}
		data = resp.Body
		return nil
	}, retry.Options{
		MaxRetries:      f.MaxRetries,
		InitialInterval: fetchInitialInterval,
		MaxInterval:     fetchMaxInterval,
	})
	if err != nil {
		return nil, err
	}

	return p.parser.Run(data)
}
