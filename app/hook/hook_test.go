package hook

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/feedhook/feedhook/app/btclient"
	"github.com/feedhook/feedhook/app/cfg"
	"github.com/feedhook/feedhook/app/database"
	"github.com/feedhook/feedhook/app/fetch"
	"github.com/feedhook/feedhook/app/pool"
	"github.com/feedhook/feedhook/app/push"
)

// fixture wires a real in-memory store with seeded user and feed.
type fixture struct {
	db           *database.DB
	userID       int64
	feed         *database.Feed
	feedRepo     database.FeedRepository
	articleRepo  database.ArticleRepository
	resourceRepo database.ResourceRepository
	logRepo      database.WebhookLogRepository
	hookRepo     database.HookRepository
	userRepo     database.UserRepository
	pools        *pool.Set
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg.SetForTest(&cfg.Cfg{
		DownloadDir:         t.TempDir(),
		ReverseTriggerLimit: 5,
	})

	db, err := database.OpenInMemory()
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, _, err := database.RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	fx := &fixture{
		db:           db,
		feedRepo:     database.NewFeedRepository(db),
		articleRepo:  database.NewArticleRepository(db),
		resourceRepo: database.NewResourceRepository(db),
		logRepo:      database.NewWebhookLogRepository(db),
		hookRepo:     database.NewHookRepository(db),
		userRepo:     database.NewUserRepository(db),
		pools:        pool.NewSet(2, 2, 2, 2, 2, 2),
	}

	user := &database.User{Username: "tester"}
	if err := fx.userRepo.UpsertUser(user); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	fx.userID = user.ID

	fx.feed = &database.Feed{
		UserID: fx.userID, URL: "https://example.com/atom.xml",
		Title: "Example", Cron: "EVERY_10_MINUTES", IsEnabled: true,
	}
	if err := fx.feedRepo.UpsertFeed(fx.feed); err != nil {
		t.Fatalf("Failed to create feed: %v", err)
	}
	return fx
}

var hookNameSeq int

// addHook creates a hook with the given type and JSON-encodable config and
// links it to the fixture feed.
func (fx *fixture) addHook(t *testing.T, hookType string, config any, filter any, reversed bool) *database.Hook {
	t.Helper()

	hookNameSeq++
	h := &database.Hook{
		UserID:     fx.userID,
		Name:       fmt.Sprintf("hook-%d", hookNameSeq),
		Type:       hookType,
		IsReversed: reversed,
	}
	if config != nil {
		raw, err := json.Marshal(config)
		if err != nil {
			t.Fatalf("Failed to encode hook config: %v", err)
		}
		h.Config = raw
	}
	if filter != nil {
		raw, err := json.Marshal(filter)
		if err != nil {
			t.Fatalf("Failed to encode hook filter: %v", err)
		}
		h.Filter = raw
	}
	if err := fx.hookRepo.UpsertHook(h); err != nil {
		t.Fatalf("Failed to create hook: %v", err)
	}
	if err := fx.hookRepo.LinkFeedHook(fx.feed.ID, h.ID); err != nil {
		t.Fatalf("Failed to link hook to feed: %v", err)
	}
	return h
}

// addUser creates another user, for cross-user dedup cases.
func (fx *fixture) addUser(t *testing.T, username string) int64 {
	t.Helper()
	user := &database.User{Username: username}
	if err := fx.userRepo.UpsertUser(user); err != nil {
		t.Fatalf("Failed to create user %s: %v", username, err)
	}
	return user.ID
}

func (fx *fixture) insertArticles(t *testing.T, articles ...*database.Article) []*database.Article {
	t.Helper()
	for _, a := range articles {
		a.FeedID = fx.feed.ID
		a.UserID = fx.userID
	}
	if err := fx.articleRepo.InsertArticles(articles); err != nil {
		t.Fatalf("Failed to insert articles: %v", err)
	}
	return articles
}

// newDispatcher assembles a dispatcher with all sinks over the fixture's
// store; callers pass the collaborator fakes they care about.
func (fx *fixture) newDispatcher(sender push.Sender, completer *fakeCompleter, bt btclient.Client) *Dispatcher {
	client := fetch.NewClient("test")
	if sender == nil {
		sender = &fakeSender{}
	}
	if completer == nil {
		completer = &fakeCompleter{}
	}

	btSink := NewBitTorrentSink(client, fx.resourceRepo, fx.articleRepo, fx.pools, context.Background())
	if bt != nil {
		btSink.newClient = func(string, string, string) (btclient.Client, error) { return bt, nil }
	}

	return NewDispatcher(fx.feedRepo, fx.userRepo, fx.logRepo, fx.pools,
		NewNotificationSink(sender, fx.articleRepo, fx.logRepo, fx.pools),
		NewWebhookSink(client, fx.logRepo),
		NewDownloadSink(client, fx.resourceRepo, fx.pools),
		btSink,
		NewAISink(completer, fx.articleRepo, fx.pools),
		NewRegularSink(fx.articleRepo),
	)
}

// fakeSender records push deliveries.
type fakeSender struct {
	mu   sync.Mutex
	sent []message
	fail bool
}

func (s *fakeSender) Send(ctx context.Context, title, body string, _ push.Config, _ string) (*fetch.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, fmt.Errorf("push channel unreachable")
	}
	s.sent = append(s.sent, message{Title: title, Body: body})
	return &fetch.Response{StatusCode: 200, StatusText: "OK", Body: []byte(`{"ok":true}`)}, nil
}

func (s *fakeSender) messages() []message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]message(nil), s.sent...)
}
