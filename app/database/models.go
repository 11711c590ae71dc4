package database

import (
	"time"
)

// Hook types form a closed set; the dispatcher switches exhaustively over
// them and rejects anything else.
const (
	HookTypeNotification = "notification"
	HookTypeWebhook      = "webhook"
	HookTypeDownload     = "download"
	HookTypeBitTorrent   = "bitTorrent"
	HookTypeAISummary    = "aiSummary"
	HookTypeRegular      = "regular"
)

// Resource and webhook-log statuses.
const (
	StatusUnknown = "unknown"
	StatusSuccess = "success"
	StatusFail    = "fail"
	StatusSkip    = "skip"
)

// MIMETypeBitTorrent marks torrent enclosures and acquired torrent resources.
const MIMETypeBitTorrent = "application/x-bittorrent"

// RoleAdmin grants visibility of raw error stacks in reverse-trigger payloads.
const RoleAdmin = "admin"

// Feed is one polling target with its own schedule.
type Feed struct {
	ID          int64
	UserID      int64
	URL         string
	Title       string
	Description string
	ImageURL    string
	Cron        string
	IsEnabled   bool
	MaxRetries  int
	ProxyID     *int64
	ProxyURL    string // resolved relation, empty unless loaded
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Article is one feed item. Identity is (GUID, UserID); the same guid may
// exist for different users.
type Article struct {
	ID              int64
	FeedID          int64
	UserID          int64
	GUID            string
	Link            string
	Title           string
	Content         string
	ContentSnippet  string
	Summary         string
	AISummary       string
	Author          string
	Categories      []string
	EnclosureURL    string
	EnclosureType   string
	EnclosureLength int64
	PublishedAt     *time.Time
	CreatedAt       time.Time
}

// Hook is one sink configuration. Config and Filter are raw JSON; the hook
// package decodes Config into the payload shape matching Type.
type Hook struct {
	ID         int64
	UserID     int64
	Name       string
	Type       string
	Config     []byte
	Filter     []byte
	IsReversed bool
	ProxyID    *int64
	ProxyURL   string // resolved relation, empty unless loaded
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Resource is a downloaded file or an acquired torrent, deduplicated by
// content hash (md5 for files, info-hash for torrents).
type Resource struct {
	ID        int64
	UserID    int64
	URL       string
	Name      string
	Path      string // empty for magnet-only entries and cross-user clones
	Status    string
	Size      int64
	Type      string
	Hash      string
	CreatedAt time.Time
}

// WebhookLog is the immutable record of one notification/webhook attempt.
type WebhookLog struct {
	ID         int64
	UserID     int64
	HookID     int64
	FeedID     int64
	Type       string // webhook or notification
	Status     string
	StatusCode int
	StatusText string
	Data       string
	Headers    string
	CreatedAt  time.Time
}

// User exists only for ownership scoping and the admin-detail flag.
type User struct {
	ID        int64
	Username  string
	Roles     string // comma separated
	CreatedAt time.Time
}

// IsAdmin reports whether the user carries the admin role.
func (u *User) IsAdmin() bool {
	if u == nil {
		return false
	}
	for _, r := range splitComma(u.Roles) {
		if r == RoleAdmin {
			return true
		}
	}
	return false
}

// DailyCount holds one calendar date's entity counts.
type DailyCount struct {
	ID              int64
	Date            string // YYYY-MM-DD
	ArticleCount    int
	ResourceCount   int
	WebhookLogCount int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ProxyConfig is the outbound proxy relation referenced by feeds and hooks.
type ProxyConfig struct {
	ID     int64
	UserID int64
	Name   string
	URL    string
}
