package database

import (
	"database/sql"
	"fmt"
	"time"
)

var _ FeedRepository = (*feedRepository)(nil)

type feedRepository struct {
	db *DB
}

func NewFeedRepository(db *DB) FeedRepository {
	return &feedRepository{db: db}
}

const feedColumns = `id, user_id, url, title, description, image_url, cron, is_enabled, max_retries, proxy_id, created_at, updated_at`

func (r *feedRepository) GetFeed(id int64) (*Feed, error) {
	row := r.db.QueryRow(`SELECT `+feedColumns+` FROM feeds WHERE id = ?`, id)
	feed, err := scanFeed(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feed: %w", err)
	}
	return feed, nil
}

func (r *feedRepository) GetEnabledFeeds() ([]Feed, error) {
	rows, err := r.db.Query(`SELECT ` + feedColumns + ` FROM feeds WHERE is_enabled = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled feeds: %w", err)
	}
	defer rows.Close()

	var feeds []Feed
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed: %w", err)
		}
		feeds = append(feeds, *feed)
	}
	return feeds, rows.Err()
}

func (r *feedRepository) ListFeeds() ([]Feed, error) {
	rows, err := r.db.Query(`SELECT ` + feedColumns + ` FROM feeds ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list feeds: %w", err)
	}
	defer rows.Close()

	var feeds []Feed
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed: %w", err)
		}
		feeds = append(feeds, *feed)
	}
	return feeds, rows.Err()
}

func (r *feedRepository) GetFeedCount() (int, error) {
	var count int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM feeds`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count feeds: %w", err)
	}
	return count, nil
}

func (r *feedRepository) GetFeedHooks(feedID int64) ([]Hook, error) {
	rows, err := r.db.Query(`
		SELECT h.id, h.user_id, h.name, h.type, h.config, h.filter, h.is_reversed, h.proxy_id,
		       COALESCE(p.url, ''), h.created_at, h.updated_at
		FROM hooks h
		JOIN feed_hooks fh ON fh.hook_id = h.id
		LEFT JOIN proxy_configs p ON p.id = h.proxy_id
		WHERE fh.feed_id = ?
		ORDER BY h.id`, feedID)
	if err != nil {
		return nil, fmt.Errorf("failed to load feed hooks: %w", err)
	}
	defer rows.Close()

	var hooks []Hook
	for rows.Next() {
		var h Hook
		var config, filter string
		var isReversed int
		if err := rows.Scan(&h.ID, &h.UserID, &h.Name, &h.Type, &config, &filter,
			&isReversed, &h.ProxyID, &h.ProxyURL, &h.CreatedAt, &h.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan hook: %w", err)
		}
		h.Config = []byte(config)
		h.Filter = []byte(filter)
		h.IsReversed = isReversed != 0
		hooks = append(hooks, h)
	}
	return hooks, rows.Err()
}

func (r *feedRepository) GetProxyURL(proxyID int64) (string, error) {
	var url string
	err := r.db.QueryRow(`SELECT url FROM proxy_configs WHERE id = ?`, proxyID).Scan(&url)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("proxy config %d not found", proxyID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve proxy config: %w", err)
	}
	return url, nil
}

// UpsertFeed inserts the feed or updates it in place, keyed by (user_id, url).
func (r *feedRepository) UpsertFeed(feed *Feed) error {
	now := time.Now().UTC()
	err := r.db.QueryRow(`
		INSERT INTO feeds (user_id, url, title, description, image_url, cron, is_enabled, max_retries, proxy_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, url) DO UPDATE SET
			title = excluded.title,
			cron = excluded.cron,
			is_enabled = excluded.is_enabled,
			max_retries = excluded.max_retries,
			proxy_id = excluded.proxy_id,
			updated_at = excluded.updated_at
		RETURNING id`,
		feed.UserID, feed.URL, feed.Title, feed.Description, feed.ImageURL,
		feed.Cron, boolToInt(feed.IsEnabled), feed.MaxRetries, feed.ProxyID, now, now,
	).Scan(&feed.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert feed: %w", err)
	}
	return nil
}

func (r *feedRepository) UpdateFeedMetadata(id int64, description, imageURL string) error {
	_, err := r.db.Exec(`
		UPDATE feeds SET description = ?, image_url = ?, updated_at = ?
		WHERE id = ?`, description, imageURL, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update feed metadata: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFeed(row rowScanner) (*Feed, error) {
	var f Feed
	var isEnabled int
	err := row.Scan(&f.ID, &f.UserID, &f.URL, &f.Title, &f.Description, &f.ImageURL,
		&f.Cron, &isEnabled, &f.MaxRetries, &f.ProxyID, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	f.IsEnabled = isEnabled != 0
	return &f, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
