package database

import (
	"strings"
	"testing"
	"time"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenInMemory()
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, _, err := RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return db
}

func seedUser(t *testing.T, db *DB) int64 {
	t.Helper()
	user := &User{Username: "tester"}
	if err := NewUserRepository(db).UpsertUser(user); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	return user.ID
}

func seedFeed(t *testing.T, db *DB, userID int64) *Feed {
	t.Helper()
	feed := &Feed{UserID: userID, URL: "https://example.com/atom.xml", Title: "Example", Cron: "EVERY_10_MINUTES", IsEnabled: true}
	if err := NewFeedRepository(db).UpsertFeed(feed); err != nil {
		t.Fatalf("Failed to create feed: %v", err)
	}
	return feed
}

func TestArticleRepository_GuidUniquePerUser(t *testing.T) {
	db := newTestDB(t)
	userID := seedUser(t, db)
	feed := seedFeed(t, db, userID)
	repo := NewArticleRepository(db)

	first := []*Article{{FeedID: feed.ID, UserID: userID, GUID: "guid-1", Title: "one"}}
	if err := repo.InsertArticles(first); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	// Same guid for the same user must be rejected by the store.
	dup := []*Article{{FeedID: feed.ID, UserID: userID, GUID: "guid-1", Title: "dup"}}
	if err := repo.InsertArticles(dup); err == nil {
		t.Error("Expected unique constraint violation for duplicate (guid, user)")
	}

	// Same guid for a different user is a different article.
	other := &User{Username: "other"}
	if err := NewUserRepository(db).UpsertUser(other); err != nil {
		t.Fatalf("Failed to create second user: %v", err)
	}
	crossUser := []*Article{{FeedID: feed.ID, UserID: other.ID, GUID: "guid-1", Title: "cross"}}
	if err := repo.InsertArticles(crossUser); err != nil {
		t.Errorf("Same guid under another user should insert, got %v", err)
	}
}

func TestArticleRepository_GetExistingGUIDs(t *testing.T) {
	db := newTestDB(t)
	userID := seedUser(t, db)
	feed := seedFeed(t, db, userID)
	repo := NewArticleRepository(db)

	seedArticles := []*Article{
		{FeedID: feed.ID, UserID: userID, GUID: "a"},
		{FeedID: feed.ID, UserID: userID, GUID: "b"},
	}
	if err := repo.InsertArticles(seedArticles); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	existing, err := repo.GetExistingGUIDs(userID, []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("GetExistingGUIDs failed: %v", err)
	}
	if len(existing) != 2 {
		t.Errorf("Expected 2 existing guids, got %d", len(existing))
	}
	if _, ok := existing["c"]; ok {
		t.Error("Unseen guid reported as existing")
	}
}

func TestResourceRepository_CrossUserLookup(t *testing.T) {
	db := newTestDB(t)
	userID := seedUser(t, db)
	repo := NewResourceRepository(db)

	res := &Resource{UserID: userID, URL: "https://cdn.example.com/a.jpg", Name: "a.jpg", Path: "/data/a.jpg", Status: StatusSuccess, Size: 10, Hash: "deadbeef"}
	if err := repo.InsertResource(res); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	found, err := repo.GetSuccessByURL("https://cdn.example.com/a.jpg")
	if err != nil {
		t.Fatalf("GetSuccessByURL failed: %v", err)
	}
	if found == nil || found.Hash != "deadbeef" {
		t.Errorf("Expected success resource across users, got %+v", found)
	}

	missing, err := repo.GetByHashAndUser("deadbeef", userID+1)
	if err != nil {
		t.Fatalf("GetByHashAndUser failed: %v", err)
	}
	if missing != nil {
		t.Error("Hash lookup must be scoped to the user")
	}
}

func TestResourceRepository_HashUniquePerUser(t *testing.T) {
	db := newTestDB(t)
	userID := seedUser(t, db)
	repo := NewResourceRepository(db)

	if err := repo.InsertResource(&Resource{UserID: userID, URL: "u1", Hash: "h1", Status: StatusSuccess}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	err := repo.InsertResource(&Resource{UserID: userID, URL: "u2", Hash: "h1", Status: StatusSuccess})
	if err == nil {
		t.Error("Expected unique constraint violation for duplicate (hash, user)")
	}
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "unique") {
		t.Logf("constraint error text: %v", err)
	}

	// Empty hashes do not collide (partial index).
	if err := repo.InsertResource(&Resource{UserID: userID, URL: "u3", Hash: ""}); err != nil {
		t.Fatalf("Insert with empty hash failed: %v", err)
	}
	if err := repo.InsertResource(&Resource{UserID: userID, URL: "u4", Hash: ""}); err != nil {
		t.Errorf("Second empty hash should not violate uniqueness: %v", err)
	}
}

func TestWebhookLogRepository_CountForFeedSince(t *testing.T) {
	db := newTestDB(t)
	userID := seedUser(t, db)
	feed := seedFeed(t, db, userID)
	repo := NewWebhookLogRepository(db)

	old := &WebhookLog{UserID: userID, HookID: 1, FeedID: feed.ID, Type: "webhook", Status: StatusSuccess,
		CreatedAt: time.Now().UTC().Add(-2 * time.Hour)}
	if err := repo.InsertLog(old); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	recent := &WebhookLog{UserID: userID, HookID: 1, FeedID: feed.ID, Type: "webhook", Status: StatusFail}
	if err := repo.InsertLog(recent); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	count, err := repo.CountForFeedSince(feed.ID, time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatalf("CountForFeedSince failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 log in the trailing hour, got %d", count)
	}
}

func TestDailyCountRepository_UpsertCycle(t *testing.T) {
	db := newTestDB(t)
	repo := NewDailyCountRepository(db)

	dc := &DailyCount{Date: "2026-08-27", ArticleCount: 3, ResourceCount: 1, WebhookLogCount: 2}
	if err := repo.InsertDailyCount(dc); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := repo.GetByDate("2026-08-27")
	if err != nil {
		t.Fatalf("GetByDate failed: %v", err)
	}
	if got == nil || got.ArticleCount != 3 {
		t.Fatalf("Expected stored row, got %+v", got)
	}

	got.ArticleCount = 4
	if err := repo.UpdateDailyCount(got); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	updated, err := repo.GetByDate("2026-08-27")
	if err != nil {
		t.Fatalf("GetByDate failed: %v", err)
	}
	if updated.ArticleCount != 4 {
		t.Errorf("Expected updated count 4, got %d", updated.ArticleCount)
	}
}

func TestFeedRepository_HooksReload(t *testing.T) {
	db := newTestDB(t)
	userID := seedUser(t, db)
	feed := seedFeed(t, db, userID)
	hookRepo := NewHookRepository(db)
	feedRepo := NewFeedRepository(db)

	hook := &Hook{UserID: userID, Name: "notify", Type: HookTypeNotification, Config: []byte(`{"channel":"bark"}`)}
	if err := hookRepo.UpsertHook(hook); err != nil {
		t.Fatalf("UpsertHook failed: %v", err)
	}
	if err := hookRepo.LinkFeedHook(feed.ID, hook.ID); err != nil {
		t.Fatalf("LinkFeedHook failed: %v", err)
	}

	hooks, err := feedRepo.GetFeedHooks(feed.ID)
	if err != nil {
		t.Fatalf("GetFeedHooks failed: %v", err)
	}
	if len(hooks) != 1 {
		t.Fatalf("Expected 1 hook, got %d", len(hooks))
	}
	if hooks[0].Type != HookTypeNotification {
		t.Errorf("Expected notification hook, got %s", hooks[0].Type)
	}
	if string(hooks[0].Config) != `{"channel":"bark"}` {
		t.Errorf("Unexpected config payload: %s", hooks[0].Config)
	}
}
