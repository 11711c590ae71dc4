package database

import (
	"time"
)

// FeedRepository covers the feed operations the scheduler and poller need.
type FeedRepository interface {
	GetFeed(id int64) (*Feed, error)
	GetEnabledFeeds() ([]Feed, error)
	ListFeeds() ([]Feed, error)
	GetFeedCount() (int, error)
	// GetFeedHooks reloads the feed's hooks fresh from storage, proxy
	// relations resolved.
	GetFeedHooks(feedID int64) ([]Hook, error)
	GetProxyURL(proxyID int64) (string, error)
	UpsertFeed(feed *Feed) error
	UpdateFeedMetadata(id int64, description, imageURL string) error
}

// ArticleRepository covers article persistence and the dedup lookup.
type ArticleRepository interface {
	GetExistingGUIDs(userID int64, guids []string) (map[string]struct{}, error)
	GetArticlesByIDs(ids []int64) ([]Article, error)
	InsertArticles(articles []*Article) error
	// Updates are per column group so concurrent hooks writing different
	// fields of the same article never clobber each other's rows.
	UpdateArticleContent(article *Article) error
	UpdateArticleSummary(article *Article) error
	UpdateArticleEnclosureLength(article *Article) error
	GetArticleCount() (int, error)
	CountCreatedBetween(start, end time.Time) (int, error)
	DeleteCreatedBefore(cutoff time.Time) (int64, error)
}

// ResourceRepository covers the content-addressed dedup store.
type ResourceRepository interface {
	GetByURLAndUser(url string, userID int64) (*Resource, error)
	GetByHashAndUser(hash string, userID int64) (*Resource, error)
	// GetSuccessByURL looks the url up across all users for cross-user reuse.
	GetSuccessByURL(url string) (*Resource, error)
	HasSuccessByName(name string) (bool, error)
	InsertResource(resource *Resource) error
	UpdateResource(resource *Resource) error
	GetResourceCount() (int, error)
	CountCreatedBetween(start, end time.Time) (int, error)
	DeleteCreatedBefore(cutoff time.Time) (int64, error)
}

// WebhookLogRepository records sink outcomes; rows are never mutated.
type WebhookLogRepository interface {
	InsertLog(log *WebhookLog) error
	CountForFeedSince(feedID int64, since time.Time) (int, error)
	GetLogCount() (int, error)
	CountCreatedBetween(start, end time.Time) (int, error)
	DeleteCreatedBefore(cutoff time.Time) (int64, error)
}

// HookRepository exists for the seed importer; runtime hook loading goes
// through FeedRepository.GetFeedHooks.
type HookRepository interface {
	UpsertHook(hook *Hook) error
	LinkFeedHook(feedID, hookID int64) error
}

type UserRepository interface {
	GetUser(id int64) (*User, error)
	UpsertUser(user *User) error
}

type DailyCountRepository interface {
	GetByDate(date string) (*DailyCount, error)
	InsertDailyCount(count *DailyCount) error
	UpdateDailyCount(count *DailyCount) error
}
