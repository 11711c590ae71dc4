package database

import (
	"database/sql"
	"fmt"
	"time"
)

var _ WebhookLogRepository = (*webhookLogRepository)(nil)

type webhookLogRepository struct {
	db *DB
}

func NewWebhookLogRepository(db *DB) WebhookLogRepository {
	return &webhookLogRepository{db: db}
}

func (r *webhookLogRepository) InsertLog(log *WebhookLog) error {
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	err := r.db.QueryRow(`
		INSERT INTO webhook_logs (user_id, hook_id, feed_id, type, status, status_code, status_text, data, headers, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		log.UserID, log.HookID, log.FeedID, log.Type, log.Status,
		log.StatusCode, log.StatusText, log.Data, log.Headers, log.CreatedAt,
	).Scan(&log.ID)
	if err != nil {
		return fmt.Errorf("failed to insert webhook log: %w", err)
	}
	return nil
}

func (r *webhookLogRepository) CountForFeedSince(feedID int64, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM webhook_logs WHERE feed_id = ? AND created_at >= ?`, feedID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count webhook logs for feed: %w", err)
	}
	return count, nil
}

func (r *webhookLogRepository) GetLogCount() (int, error) {
	var count int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM webhook_logs`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count webhook logs: %w", err)
	}
	return count, nil
}

func (r *webhookLogRepository) CountCreatedBetween(start, end time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM webhook_logs WHERE created_at >= ? AND created_at < ?`, start, end).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count webhook logs in range: %w", err)
	}
	return count, nil
}

func (r *webhookLogRepository) DeleteCreatedBefore(cutoff time.Time) (int64, error) {
	res, err := r.db.Exec(`DELETE FROM webhook_logs WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old webhook logs: %w", err)
	}
	return res.RowsAffected()
}

var _ DailyCountRepository = (*dailyCountRepository)(nil)

type dailyCountRepository struct {
	db *DB
}

func NewDailyCountRepository(db *DB) DailyCountRepository {
	return &dailyCountRepository{db: db}
}

func (r *dailyCountRepository) GetByDate(date string) (*DailyCount, error) {
	var dc DailyCount
	err := r.db.QueryRow(`
		SELECT id, date, article_count, resource_count, webhook_log_count, created_at, updated_at
		FROM daily_counts WHERE date = ?`, date).
		Scan(&dc.ID, &dc.Date, &dc.ArticleCount, &dc.ResourceCount, &dc.WebhookLogCount, &dc.CreatedAt, &dc.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get daily count: %w", err)
	}
	return &dc, nil
}

func (r *dailyCountRepository) InsertDailyCount(count *DailyCount) error {
	now := time.Now().UTC()
	err := r.db.QueryRow(`
		INSERT INTO daily_counts (date, article_count, resource_count, webhook_log_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`,
		count.Date, count.ArticleCount, count.ResourceCount, count.WebhookLogCount, now, now,
	).Scan(&count.ID)
	if err != nil {
		return fmt.Errorf("failed to insert daily count: %w", err)
	}
	return nil
}

func (r *dailyCountRepository) UpdateDailyCount(count *DailyCount) error {
	_, err := r.db.Exec(`
		UPDATE daily_counts SET article_count = ?, resource_count = ?, webhook_log_count = ?, updated_at = ?
		WHERE id = ?`,
		count.ArticleCount, count.ResourceCount, count.WebhookLogCount, time.Now().UTC(), count.ID)
	if err != nil {
		return fmt.Errorf("failed to update daily count: %w", err)
	}
	return nil
}
